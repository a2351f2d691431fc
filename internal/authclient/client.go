// Package authclient は認証サービスへのクライアントインターフェースを定義する。
// セッション同期層はこのインターフェースのみに依存し、
// 認証サービスの実体（同一プロセス内実装、外部IdP等）には依存しない。
package authclient

import (
	"context"

	"github.com/movaschool/movaschool/internal/model"
)

// Subscription は認証状態変更通知の購読を表す。
type Subscription struct {
	unsubscribe func()
}

// NewSubscription は解除関数からSubscriptionを生成する。
// Client実装が購読の解除手段を返すために使う。
func NewSubscription(unsubscribe func()) *Subscription {
	return &Subscription{unsubscribe: unsubscribe}
}

// Unsubscribe は購読を解除する。複数回呼んでも安全。
func (s *Subscription) Unsubscribe() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// SignUpMetadata はサインアップ時に付与されるユーザー情報。
type SignUpMetadata struct {
	FirstName string
	LastName  string
	Age       *int
}

// Client は認証サービスのクライアントインターフェース。
type Client interface {
	// GetSession は現在のセッションを返す。未認証の場合はnilを返す。
	GetSession(ctx context.Context) (*model.Session, error)

	// OnAuthStateChange は認証状態変更の通知を購読する。
	// コールバックは通知配送ゴルーチンから呼ばれるため、
	// 呼び出し側でブロックしないこと。
	OnAuthStateChange(callback func(event model.AuthEvent)) *Subscription

	// SignInWithPassword はメールアドレスとパスワードでサインインする。
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.Identity, error)

	// SignOut は現在のセッションを破棄する。
	SignOut(ctx context.Context) error

	// GetUser は現在のセッションに対応するユーザーを返す。未認証の場合はnilを返す。
	GetUser(ctx context.Context) (*model.Identity, error)

	// SignUp は新規ユーザーを登録する。
	SignUp(ctx context.Context, email, password string, metadata SignUpMetadata) (*model.Identity, error)
}
