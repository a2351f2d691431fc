package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/movaschool/movaschool/internal/content"
	"github.com/movaschool/movaschool/internal/middleware"
	"github.com/movaschool/movaschool/internal/model"
)

// PostServiceInterface は記事ハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	CreatePost(ctx context.Context, actor *model.Profile, input content.PostInput) (*model.Post, error)
	UpdatePost(ctx context.Context, actor *model.Profile, slug string, input content.PostInput) (*model.Post, error)
	DeletePost(ctx context.Context, actor *model.Profile, slug string) error
	GetPost(ctx context.Context, slug string) (*model.Post, error)
	ListPosts(ctx context.Context, lang string, limit, offset int) ([]*model.Post, error)
}

// ProfileFinder はリクエストの操作主体プロフィールを解決するインターフェース。
type ProfileFinder interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// PostHandler はブログ・ニュース記事のHTTPハンドラー。
type PostHandler struct {
	service  PostServiceInterface
	profiles ProfileFinder
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, profiles ProfileFinder) *PostHandler {
	return &PostHandler{
		service:  service,
		profiles: profiles,
	}
}

// postRequest は記事の作成・更新リクエストのボディ。
type postRequest struct {
	Slug        string    `json:"slug"`
	Lang        string    `json:"lang"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	PublishedAt time.Time `json:"published_at"`
}

// postResponse は記事情報のAPIレスポンス。
type postResponse struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id,omitempty"`
	Slug        string    `json:"slug"`
	Lang        string    `json:"lang"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	SourceURL   string    `json:"source_url,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListPosts は記事一覧を返す。
// GET /api/posts?lang=uk&limit=20&offset=0
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	limit := parseIntQuery(r, "limit", 0)
	offset := parseIntQuery(r, "offset", 0)

	posts, err := h.service.ListPosts(r.Context(), lang, limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]postResponse, len(posts))
	for i, p := range posts {
		results[i] = toPostResponse(p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"posts": results,
	})
}

// GetPost は記事詳細を返す。
// GET /api/posts/{slug}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	post, err := h.service.GetPost(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// CreatePost は記事を作成する。講師・管理者のみ。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	post, err := h.service.CreatePost(r.Context(), actor, content.PostInput{
		Slug:        req.Slug,
		Lang:        req.Lang,
		Title:       req.Title,
		BodyHTML:    req.BodyHTML,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// UpdatePost は記事を更新する。講師・管理者のみ。
// PATCH /api/posts/{slug}
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")

	var req postRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, invalidRequestError())
		return
	}

	post, err := h.service.UpdatePost(r.Context(), actor, slug, content.PostInput{
		Slug:        req.Slug,
		Lang:        req.Lang,
		Title:       req.Title,
		BodyHTML:    req.BodyHTML,
		PublishedAt: req.PublishedAt,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPostResponse(post))
}

// DeletePost は記事を削除する。講師・管理者のみ。
// DELETE /api/posts/{slug}
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	actor, ok := resolveActor(w, r, h.profiles)
	if !ok {
		return
	}

	slug := chi.URLParam(r, "slug")

	if err := h.service.DeletePost(r.Context(), actor, slug); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// resolveActor はリクエストコンテキストから操作主体のプロフィールを解決する。
// 解決できない場合はエラーレスポンスを書き込みfalseを返す。
func resolveActor(w http.ResponseWriter, r *http.Request, profiles ProfileFinder) (*model.Profile, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return nil, false
	}

	profile, err := profiles.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return nil, false
	}
	if profile == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProfileNotFoundError())
		return nil, false
	}
	return profile, true
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(post *model.Post) postResponse {
	return postResponse{
		ID:          post.ID,
		AuthorID:    post.AuthorID,
		Slug:        post.Slug,
		Lang:        post.Lang,
		Title:       post.Title,
		BodyHTML:    post.BodyHTML,
		SourceURL:   post.SourceURL,
		PublishedAt: post.PublishedAt,
		CreatedAt:   post.CreatedAt,
		UpdatedAt:   post.UpdatedAt,
	}
}

// parseIntQuery はクエリパラメータを整数として解析する。
// 欠落または不正な値の場合はフォールバック値を返す。
func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
