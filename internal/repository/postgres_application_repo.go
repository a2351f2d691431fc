package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/movaschool/movaschool/internal/model"
)

// PostgresApplicationRepo はPostgreSQLを使用したレッスン申込リポジトリ。
type PostgresApplicationRepo struct {
	db *sql.DB
}

// NewPostgresApplicationRepo はPostgresApplicationRepoを生成する。
func NewPostgresApplicationRepo(db *sql.DB) *PostgresApplicationRepo {
	return &PostgresApplicationRepo{db: db}
}

const applicationColumns = `id, student_id, teacher_id, subject, message, status, starts_at, created_at, updated_at`

func scanApplication(row rowScanner) (*model.Application, error) {
	app := &model.Application{}
	err := row.Scan(
		&app.ID, &app.StudentID, &app.TeacherID, &app.Subject, &app.Message,
		&app.Status, &app.StartsAt, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Create は申込を作成する。
func (r *PostgresApplicationRepo) Create(ctx context.Context, app *model.Application) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO applications (id, student_id, teacher_id, subject, message, status, starts_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		app.ID, app.StudentID, app.TeacherID, app.Subject, app.Message,
		app.Status, app.StartsAt, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert application: %w", err)
	}
	return nil
}

// FindByID は指定IDの申込を取得する。見つからない場合はnilを返す。
func (r *PostgresApplicationRepo) FindByID(ctx context.Context, id string) (*model.Application, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`,
		id,
	)
	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find application: %w", err)
	}
	return app, nil
}

// ListByStudent は生徒の申込一覧をcreated_at降順で返す。
func (r *PostgresApplicationRepo) ListByStudent(ctx context.Context, studentID string) ([]*model.Application, error) {
	return r.list(ctx, `student_id`, studentID)
}

// ListByTeacher は講師宛の申込一覧をcreated_at降順で返す。
func (r *PostgresApplicationRepo) ListByTeacher(ctx context.Context, teacherID string) ([]*model.Application, error) {
	return r.list(ctx, `teacher_id`, teacherID)
}

func (r *PostgresApplicationRepo) list(ctx context.Context, column, id string) ([]*model.Application, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE `+column+` = $1 ORDER BY created_at DESC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate applications: %w", err)
	}
	return apps, nil
}

// UpdateStatus は申込の状態を更新する。
func (r *PostgresApplicationRepo) UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE applications SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update application status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("application not found: %s", id)
	}
	return nil
}

// DeleteDeclinedBefore は指定日時より前に更新された却下済み申込を削除する。
func (r *PostgresApplicationRepo) DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM applications WHERE status = $1 AND updated_at < $2`,
		model.ApplicationDeclined, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete declined applications: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted applications: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ ApplicationRepository = (*PostgresApplicationRepo)(nil)
