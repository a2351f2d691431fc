// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/movaschool/movaschool/internal/model"
)

// IdentityRepository は認証主体の永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByEmail はメールアドレスでidentityを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Identity, error)

	// Create はidentityを作成する。
	// メールアドレス重複時はUNIQUE制約違反をそのまま返す。
	Create(ctx context.Context, identity *model.Identity) error

	// ConfirmEmail はメールアドレス確認済みフラグを立てる。
	ConfirmEmail(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れの全セッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィールの永続化インターフェース。
// プロフィールはidentityと1:1で対応し、主キー制約が
// 同時作成の競合検出（UNIQUE制約違反）に使われる。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// Create はプロフィールを作成する。
	// 同一IDの行が既に存在する場合はUNIQUE制約違反をそのまま返す。
	// 呼び出し側はIsUniqueViolationで競合を判定する。
	Create(ctx context.Context, profile *model.Profile) error

	// Update はパッチのnil以外のフィールドをプロフィールに書き込む。
	// 対象が存在しない場合はエラーを返す。
	Update(ctx context.Context, id string, patch model.ProfilePatch) error

	// UpdateAvatarURL はアバターURLを更新する。
	UpdateAvatarURL(ctx context.Context, id string, avatarURL string) error

	// SearchTeachers は講師プロフィールを氏名の部分一致で検索する。
	SearchTeachers(ctx context.Context, query string, limit int) ([]*model.Profile, error)
}

// PostRepository はブログ・ニュース記事の永続化インターフェース。
type PostRepository interface {
	// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Post, error)

	// FindBySourceURL は取り込み元URLで記事を検索する。見つからない場合はnilを返す。
	// ニュース取り込みの同一性判定に使用する。
	FindBySourceURL(ctx context.Context, sourceURL string) (*model.Post, error)

	// Create は記事を作成する。スラッグ重複時はUNIQUE制約違反をそのまま返す。
	Create(ctx context.Context, post *model.Post) error

	// Update は記事を上書き更新する。
	Update(ctx context.Context, post *model.Post) error

	// Delete は指定IDの記事を削除する。
	Delete(ctx context.Context, id string) error

	// List は指定言語の記事一覧をpublished_at降順で返す。
	// langが空の場合は全言語を対象とする。
	List(ctx context.Context, lang string, limit, offset int) ([]*model.Post, error)

	// Search は記事をタイトル・本文の部分一致で検索する。
	Search(ctx context.Context, query, lang string, limit int) ([]*model.Post, error)
}

// ApplicationRepository はレッスン申込の永続化インターフェース。
type ApplicationRepository interface {
	// Create は申込を作成する。
	Create(ctx context.Context, app *model.Application) error

	// FindByID は指定IDの申込を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Application, error)

	// ListByStudent は生徒の申込一覧をcreated_at降順で返す。
	ListByStudent(ctx context.Context, studentID string) ([]*model.Application, error)

	// ListByTeacher は講師宛の申込一覧をcreated_at降順で返す。
	ListByTeacher(ctx context.Context, teacherID string) ([]*model.Application, error)

	// UpdateStatus は申込の状態を更新する。
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus) error

	// DeleteDeclinedBefore は指定日時より前に更新された却下済み申込を削除し、
	// 削除件数を返す。
	DeleteDeclinedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MessageRepository はチャットメッセージの永続化インターフェース。
type MessageRepository interface {
	// Create はメッセージを作成する。
	Create(ctx context.Context, msg *model.Message) error

	// ListConversation は2ユーザー間のメッセージをcreated_at昇順で返す。
	// sinceがゼロ値の場合は先頭から取得する。
	ListConversation(ctx context.Context, userA, userB string, since time.Time, limit int) ([]*model.Message, error)
}

// NewsSourceRepository は外部ニュースフィードの永続化インターフェース。
type NewsSourceRepository interface {
	// Create はニュースソースを登録する。
	Create(ctx context.Context, source *model.NewsSource) error

	// ListDueForFetch は取り込み対象のソースを取得する。
	// next_fetch_at <= now() かつ active なソースを
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForFetch(ctx context.Context) ([]*model.NewsSource, error)

	// UpdateFetchState はソースの取り込み状態を更新する。
	// active、consecutive_errors、error_message、next_fetch_atを更新する。
	UpdateFetchState(ctx context.Context, source *model.NewsSource) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
