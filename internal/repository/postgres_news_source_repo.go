package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/movaschool/movaschool/internal/model"
)

// PostgresNewsSourceRepo はPostgreSQLを使用したニュースソースリポジトリ。
type PostgresNewsSourceRepo struct {
	db *sql.DB
}

// NewPostgresNewsSourceRepo はPostgresNewsSourceRepoを生成する。
func NewPostgresNewsSourceRepo(db *sql.DB) *PostgresNewsSourceRepo {
	return &PostgresNewsSourceRepo{db: db}
}

// Create はニュースソースを登録する。
func (r *PostgresNewsSourceRepo) Create(ctx context.Context, source *model.NewsSource) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO news_sources (id, feed_url, lang, consecutive_errors, error_message, next_fetch_at, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		source.ID, source.FeedURL, source.Lang, source.ConsecutiveErrors,
		source.ErrorMessage, source.NextFetchAt, source.Active,
		source.CreatedAt, source.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert news source: %w", err)
	}
	return nil
}

// ListDueForFetch は取り込み対象のソースを取得する。
// FOR UPDATE SKIP LOCKEDで複数ワーカーの重複取得を防ぐ。
func (r *PostgresNewsSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.NewsSource, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, feed_url, lang, consecutive_errors, error_message, next_fetch_at, active, created_at, updated_at
		 FROM news_sources
		 WHERE active AND next_fetch_at <= now()
		 ORDER BY next_fetch_at
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due news sources: %w", err)
	}
	defer rows.Close()

	var sources []*model.NewsSource
	for rows.Next() {
		source := &model.NewsSource{}
		if err := rows.Scan(
			&source.ID, &source.FeedURL, &source.Lang, &source.ConsecutiveErrors,
			&source.ErrorMessage, &source.NextFetchAt, &source.Active,
			&source.CreatedAt, &source.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan news source: %w", err)
		}
		sources = append(sources, source)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate news sources: %w", err)
	}
	return sources, nil
}

// UpdateFetchState はソースの取り込み状態を更新する。
func (r *PostgresNewsSourceRepo) UpdateFetchState(ctx context.Context, source *model.NewsSource) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE news_sources
		 SET active = $2, consecutive_errors = $3, error_message = $4, next_fetch_at = $5, updated_at = now()
		 WHERE id = $1`,
		source.ID, source.Active, source.ConsecutiveErrors, source.ErrorMessage, source.NextFetchAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update news source fetch state: %w", err)
	}
	return nil
}

// compile-time interface check
var _ NewsSourceRepository = (*PostgresNewsSourceRepo)(nil)
