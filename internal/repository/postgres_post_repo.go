package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/movaschool/movaschool/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const postColumns = `id, author_id, slug, lang, title, body_html, source_url, published_at, created_at, updated_at`

func scanPost(row rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var authorID, sourceURL sql.NullString
	err := row.Scan(
		&post.ID, &authorID, &post.Slug, &post.Lang, &post.Title, &post.BodyHTML,
		&sourceURL, &post.PublishedAt, &post.CreatedAt, &post.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	post.AuthorID = authorID.String
	post.SourceURL = sourceURL.String
	return post, nil
}

// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySlug(ctx context.Context, slug string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE slug = $1`,
		slug,
	)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by slug: %w", err)
	}
	return post, nil
}

// FindBySourceURL は取り込み元URLで記事を検索する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE source_url = $1`,
		sourceURL,
	)
	post, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post by source URL: %w", err)
	}
	return post, nil
}

// Create は記事を作成する。スラッグ重複時はUNIQUE制約違反をそのまま返す。
func (r *PostgresPostRepo) Create(ctx context.Context, post *model.Post) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts (id, author_id, slug, lang, title, body_html, source_url, published_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		post.ID, nullString(post.AuthorID), post.Slug, post.Lang, post.Title, post.BodyHTML,
		nullString(post.SourceURL), post.PublishedAt, post.CreatedAt, post.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update は記事を上書き更新する。履歴は保持しない。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE posts
		 SET lang = $2, title = $3, body_html = $4, published_at = $5, updated_at = now()
		 WHERE id = $1`,
		post.ID, post.Lang, post.Title, post.BodyHTML, post.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", post.ID)
	}
	return nil
}

// Delete は指定IDの記事を削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM posts WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("post not found: %s", id)
	}
	return nil
}

// List は指定言語の記事一覧をpublished_at降順で返す。
// langが空の場合は全言語を対象とする。
func (r *PostgresPostRepo) List(ctx context.Context, lang string, limit, offset int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE ($1 = '' OR lang = $1)
		 ORDER BY published_at DESC
		 LIMIT $2 OFFSET $3`,
		lang, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

// Search は記事をタイトル・本文の部分一致で検索する。
func (r *PostgresPostRepo) Search(ctx context.Context, query, lang string, limit int) ([]*model.Post, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+postColumns+`
		 FROM posts
		 WHERE ($2 = '' OR lang = $2)
		   AND (title ILIKE '%' || $1 || '%' OR body_html ILIKE '%' || $1 || '%')
		 ORDER BY published_at DESC
		 LIMIT $3`,
		query, lang, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search posts: %w", err)
	}
	defer rows.Close()
	return collectPosts(rows)
}

func collectPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
