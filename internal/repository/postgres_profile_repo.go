package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/movaschool/movaschool/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, role, first_name, last_name, age, avatar_url, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	profile := &model.Profile{}
	var age sql.NullInt64
	var avatarURL sql.NullString
	err := row.Scan(
		&profile.ID, &profile.Email, &profile.Role,
		&profile.FirstName, &profile.LastName, &age, &avatarURL,
		&profile.CreatedAt, &profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		profile.Age = &v
	}
	if avatarURL.Valid {
		profile.AvatarURL = avatarURL.String
	}
	return profile, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return profile, nil
}

// Create はプロフィールを作成する。
// 同一IDの行が既に存在する場合はUNIQUE制約違反をそのまま返す。
// 同時作成の競合判定は呼び出し側がIsUniqueViolationで行う。
func (r *PostgresProfileRepo) Create(ctx context.Context, profile *model.Profile) error {
	var age sql.NullInt64
	if profile.Age != nil {
		age = sql.NullInt64{Int64: int64(*profile.Age), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, role, first_name, last_name, age, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		profile.ID, profile.Email, profile.Role,
		profile.FirstName, profile.LastName, age, nullString(profile.AvatarURL),
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

// Update はパッチのnil以外のフィールドをプロフィールに書き込む。
// COALESCEで未指定フィールドの既存値を維持する部分更新を行う。
func (r *PostgresProfileRepo) Update(ctx context.Context, id string, patch model.ProfilePatch) error {
	var firstName, lastName sql.NullString
	var age sql.NullInt64
	if patch.FirstName != nil {
		firstName = sql.NullString{String: *patch.FirstName, Valid: true}
	}
	if patch.LastName != nil {
		lastName = sql.NullString{String: *patch.LastName, Valid: true}
	}
	if patch.Age != nil {
		age = sql.NullInt64{Int64: int64(*patch.Age), Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles
		 SET first_name = COALESCE($2, first_name),
		     last_name  = COALESCE($3, last_name),
		     age        = COALESCE($4, age),
		     updated_at = now()
		 WHERE id = $1`,
		id, firstName, lastName, age,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// UpdateAvatarURL はアバターURLを更新する。
func (r *PostgresProfileRepo) UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = $2, updated_at = now() WHERE id = $1`,
		id, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("failed to update avatar URL: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

// SearchTeachers は講師プロフィールを氏名の部分一致で検索する。
func (r *PostgresProfileRepo) SearchTeachers(ctx context.Context, query string, limit int) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+`
		 FROM profiles
		 WHERE role = 'teacher'
		   AND (first_name || ' ' || last_name) ILIKE '%' || $1 || '%'
		 ORDER BY last_name, first_name
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search teachers: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan teacher profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate teacher profiles: %w", err)
	}
	return profiles, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
