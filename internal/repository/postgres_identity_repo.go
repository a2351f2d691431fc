package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/movaschool/movaschool/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

const identityColumns = `id, email, password_hash, email_confirmed, first_name, last_name, age, created_at`

func scanIdentity(row rowScanner) (*model.Identity, error) {
	identity := &model.Identity{}
	var age sql.NullInt64
	err := row.Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.EmailConfirmed,
		&identity.FirstName, &identity.LastName, &age, &identity.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		identity.Age = &v
	}
	return identity, nil
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`,
		id,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}
	return identity, nil
}

// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`,
		email,
	)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by email: %w", err)
	}
	return identity, nil
}

// Create はidentityを作成する。
// メールアドレス重複時はUNIQUE制約違反をそのまま返す。
func (r *PostgresIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	var age sql.NullInt64
	if identity.Age != nil {
		age = sql.NullInt64{Int64: int64(*identity.Age), Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (id, email, password_hash, email_confirmed, first_name, last_name, age, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.EmailConfirmed,
		identity.FirstName, identity.LastName, age, identity.CreatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("failed to insert identity: %w", err)
	}
	return nil
}

// ConfirmEmail はメールアドレス確認済みフラグを立てる。
func (r *PostgresIdentityRepo) ConfirmEmail(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE identities SET email_confirmed = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("identity not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
