// Package search は記事と講師の横断検索を提供する。
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
)

// defaultLimit はカテゴリごとの既定取得件数。
const defaultLimit = 10

// Results は横断検索の結果を表す。
type Results struct {
	Posts    []*model.Post
	Teachers []*model.Profile
}

// Service は横断検索のビジネスロジックを提供する。
type Service struct {
	postRepo    repository.PostRepository
	profileRepo repository.ProfileRepository
}

// NewService はServiceを生成する。
func NewService(postRepo repository.PostRepository, profileRepo repository.ProfileRepository) *Service {
	return &Service{postRepo: postRepo, profileRepo: profileRepo}
}

// Search は記事（タイトル・本文）と講師（氏名）を部分一致で検索する。
// クエリが空の場合は空の結果を返す。
func (s *Service) Search(ctx context.Context, query string, limit int) (*Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return &Results{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = defaultLimit
	}

	posts, err := s.postRepo.Search(ctx, query, "", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}

	teachers, err := s.profileRepo.SearchTeachers(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search teachers: %w", err)
	}

	return &Results{Posts: posts, Teachers: teachers}, nil
}
