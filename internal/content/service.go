// Package content はブログ・ニュース記事の管理機能を提供する。
package content

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
	"github.com/movaschool/movaschool/internal/security"
)

// Service は記事に関するビジネスロジックを提供する。
type Service struct {
	postRepo  repository.PostRepository
	sanitizer security.ContentSanitizerService
}

// NewService はServiceを生成する。
func NewService(postRepo repository.PostRepository, sanitizer security.ContentSanitizerService) *Service {
	return &Service{postRepo: postRepo, sanitizer: sanitizer}
}

// PostInput は記事の作成・更新入力を表す。
type PostInput struct {
	Slug        string
	Lang        string
	Title       string
	BodyHTML    string
	PublishedAt time.Time
}

// CreatePost は記事を作成する。本文はサニタイズされてから保存される。
// manageContent権限（講師・管理者）が必要。
func (s *Service) CreatePost(ctx context.Context, actor *model.Profile, input PostInput) (*model.Post, error) {
	if !actor.Can(model.CapabilityManageContent) {
		return nil, model.NewForbiddenError()
	}
	if !model.ValidLang(input.Lang) {
		return nil, model.NewInvalidLangError(input.Lang)
	}

	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = Slugify(input.Title)
	}
	publishedAt := input.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}

	now := time.Now()
	post := &model.Post{
		ID:          uuid.New().String(),
		AuthorID:    actor.ID,
		Slug:        slug,
		Lang:        input.Lang,
		Title:       strings.TrimSpace(input.Title),
		BodyHTML:    s.sanitizer.SanitizeHTML(input.BodyHTML),
		PublishedAt: publishedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.postRepo.Create(ctx, post); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewSlugTakenError(slug)
		}
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	slog.Info("post created",
		slog.String("post_id", post.ID),
		slog.String("slug", post.Slug),
		slog.String("author_id", actor.ID),
	)
	return post, nil
}

// UpdatePost は記事を更新する。manageContent権限が必要。
func (s *Service) UpdatePost(ctx context.Context, actor *model.Profile, slug string, input PostInput) (*model.Post, error) {
	if !actor.Can(model.CapabilityManageContent) {
		return nil, model.NewForbiddenError()
	}

	post, err := s.postRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}

	if input.Lang != "" {
		if !model.ValidLang(input.Lang) {
			return nil, model.NewInvalidLangError(input.Lang)
		}
		post.Lang = input.Lang
	}
	if input.Title != "" {
		post.Title = strings.TrimSpace(input.Title)
	}
	if input.BodyHTML != "" {
		post.BodyHTML = s.sanitizer.SanitizeHTML(input.BodyHTML)
	}
	if !input.PublishedAt.IsZero() {
		post.PublishedAt = input.PublishedAt
	}
	post.UpdatedAt = time.Now()

	if err := s.postRepo.Update(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to update post: %w", err)
	}

	slog.Info("post updated", slog.String("slug", slug), slog.String("actor_id", actor.ID))
	return post, nil
}

// DeletePost は記事を削除する。manageContent権限が必要。
func (s *Service) DeletePost(ctx context.Context, actor *model.Profile, slug string) error {
	if !actor.Can(model.CapabilityManageContent) {
		return model.NewForbiddenError()
	}

	post, err := s.postRepo.FindBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return model.NewPostNotFoundError(slug)
	}

	if err := s.postRepo.Delete(ctx, post.ID); err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}

	slog.Info("post deleted", slog.String("slug", slug), slog.String("actor_id", actor.ID))
	return nil
}

// GetPost はスラッグで記事を取得する。
func (s *Service) GetPost(ctx context.Context, slug string) (*model.Post, error) {
	post, err := s.postRepo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(slug)
	}
	return post, nil
}

// ListPosts は記事一覧をpublished_at降順で返す。langが空の場合は全言語。
func (s *Service) ListPosts(ctx context.Context, lang string, limit, offset int) ([]*model.Post, error) {
	if lang != "" && !model.ValidLang(lang) {
		return nil, model.NewInvalidLangError(lang)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	posts, err := s.postRepo.List(ctx, lang, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return posts, nil
}

// slugScrub はスラッグに使えない文字のパターン。
var slugScrub = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify はタイトルからURL用スラッグを生成する。
// 非ASCII文字（キリル文字等）は除去されるため、空になった場合は
// ランダムなサフィックスのみのスラッグになる。
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugScrub.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return uuid.New().String()[:8]
	}
	if len(slug) > 80 {
		slug = strings.Trim(slug[:80], "-")
	}
	return slug
}
