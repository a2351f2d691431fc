package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/movaschool/movaschool/internal/search"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, query string, limit int) (*search.Results, error)
}

// SearchHandler は横断検索のHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

// Search は記事と講師を横断検索する。
// GET /api/search?q=запит&limit=10
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := parseIntQuery(r, "limit", 0)

	results, err := h.service.Search(r.Context(), query, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	posts := make([]postResponse, len(results.Posts))
	for i, p := range results.Posts {
		posts[i] = toPostResponse(p)
	}
	teachers := make([]profileResponse, len(results.Teachers))
	for i, t := range results.Teachers {
		teachers[i] = toProfileResponse(t)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"posts":    posts,
		"teachers": teachers,
	})
}
