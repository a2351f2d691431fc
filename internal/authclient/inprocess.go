package authclient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/movaschool/movaschool/internal/auth"
	"github.com/movaschool/movaschool/internal/model"
)

// InProcessClient はauth.Serviceを同一プロセス内で呼び出すClient実装。
// 現在のセッションを内部に保持し、サインイン・サインアウト時に
// 購読者へAuthEventを配送する。
type InProcessClient struct {
	service *auth.Service

	mu          sync.Mutex
	current     *model.Session
	subscribers map[int]func(event model.AuthEvent)
	nextSubID   int
}

// NewInProcessClient はInProcessClientを生成する。
func NewInProcessClient(service *auth.Service) *InProcessClient {
	return &InProcessClient{
		service:     service,
		subscribers: make(map[int]func(event model.AuthEvent)),
	}
}

// GetSession は現在のセッションを返す。
// 保持中のセッションが期限切れの場合は破棄してnilを返す。
func (c *InProcessClient) GetSession(ctx context.Context) (*model.Session, error) {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	session, err := c.service.GetSession(ctx, current.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil {
		// 期限切れ。保持中のセッションを破棄する。
		c.mu.Lock()
		if c.current != nil && c.current.ID == current.ID {
			c.current = nil
		}
		c.mu.Unlock()
		return nil, nil
	}
	return session, nil
}

// OnAuthStateChange は認証状態変更の通知を購読する。
func (c *InProcessClient) OnAuthStateChange(callback func(event model.AuthEvent)) *Subscription {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = callback
	c.mu.Unlock()

	return &Subscription{
		unsubscribe: func() {
			c.mu.Lock()
			delete(c.subscribers, id)
			c.mu.Unlock()
		},
	}
}

// SignInWithPassword はメールアドレスとパスワードでサインインする。
// 成功時はSIGNED_INイベントを購読者へ配送する。
func (c *InProcessClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, *model.Identity, error) {
	session, identity, err := c.service.SignIn(ctx, email, password)
	if err != nil {
		return nil, nil, err
	}

	c.mu.Lock()
	c.current = session
	c.mu.Unlock()

	c.emit(model.AuthEvent{Type: model.AuthEventSignedIn, Session: session, User: identity})
	return session, identity, nil
}

// SignOut は現在のセッションを破棄し、SIGNED_OUTイベントを配送する。
// リモート側の削除に失敗してもローカル状態は破棄する。
func (c *InProcessClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	c.mu.Unlock()

	c.emit(model.AuthEvent{Type: model.AuthEventSignedOut})

	if current == nil {
		return nil
	}
	if err := c.service.SignOut(ctx, current.ID); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	return nil
}

// GetUser は現在のセッションに対応するユーザーを返す。
func (c *InProcessClient) GetUser(ctx context.Context) (*model.Identity, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}
	return c.service.GetUser(ctx, session.UserID)
}

// SignUp は新規ユーザーを登録する。
func (c *InProcessClient) SignUp(ctx context.Context, email, password string, metadata SignUpMetadata) (*model.Identity, error) {
	return c.service.SignUp(ctx, auth.SignUpParams{
		Email:     email,
		Password:  password,
		FirstName: metadata.FirstName,
		LastName:  metadata.LastName,
		Age:       metadata.Age,
	})
}

// emit は全購読者へイベントを配送する。
// 購読者リストのスナップショットを取り、ロック外でコールバックを呼ぶ。
func (c *InProcessClient) emit(event model.AuthEvent) {
	c.mu.Lock()
	callbacks := make([]func(event model.AuthEvent), 0, len(c.subscribers))
	for _, cb := range c.subscribers {
		callbacks = append(callbacks, cb)
	}
	c.mu.Unlock()

	slog.Debug("auth event emitted",
		slog.String("type", string(event.Type)),
		slog.Int("subscribers", len(callbacks)),
	)
	for _, cb := range callbacks {
		cb(event)
	}
}

// compile-time interface check
var _ Client = (*InProcessClient)(nil)
