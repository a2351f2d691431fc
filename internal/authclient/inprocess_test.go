package authclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/movaschool/movaschool/internal/auth"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/security/password"
)

// memIdentityRepo はテスト用のインメモリIdentityRepository。
type memIdentityRepo struct {
	mu         sync.Mutex
	identities map[string]*model.Identity // key: id
}

func newMemIdentityRepo() *memIdentityRepo {
	return &memIdentityRepo{identities: make(map[string]*model.Identity)}
}

func (r *memIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identities[id], nil
}

func (r *memIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, identity := range r.identities {
		if identity.Email == email {
			return identity, nil
		}
	}
	return nil, nil
}

func (r *memIdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.identities[identity.ID] = identity
	return nil
}

func (r *memIdentityRepo) ConfirmEmail(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if identity, ok := r.identities[id]; ok {
		identity.EmailConfirmed = true
	}
	return nil
}

// memSessionRepo はテスト用のインメモリSessionRepository。
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(ctx context.Context, session *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.ExpiresAt.Before(time.Now()) {
		return nil, nil
	}
	return session, nil
}

func (r *memSessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, session := range r.sessions {
		if session.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(time.Now()) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

// newTestClient はインメモリリポジトリで構成したInProcessClientと
// 登録済みテストユーザーを返す。
func newTestClient(t *testing.T) *InProcessClient {
	t.Helper()

	service := auth.NewService(newMemIdentityRepo(), newMemSessionRepo(), auth.ServiceConfig{
		SessionMaxAge:       3600,
		SignInAttemptLimit:  100,
		SignInAttemptWindow: time.Minute,
		MinPasswordLength:   8,
		PasswordParams:      password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32},
	})
	client := NewInProcessClient(service)

	age := 16
	_, err := client.SignUp(context.Background(), "anna@example.com", "Парол1234!", SignUpMetadata{
		FirstName: "Анна",
		LastName:  "Коваленко",
		Age:       &age,
	})
	if err != nil {
		t.Fatalf("SignUp() returned error: %v", err)
	}
	return client
}

// TestInProcessClient_SignInEmitsSignedIn はサインイン成功時の
// SIGNED_INイベント配送をテストする。
func TestInProcessClient_SignInEmitsSignedIn(t *testing.T) {
	client := newTestClient(t)

	events := make(chan model.AuthEvent, 4)
	sub := client.OnAuthStateChange(func(event model.AuthEvent) {
		events <- event
	})
	defer sub.Unsubscribe()

	session, identity, err := client.SignInWithPassword(context.Background(), "anna@example.com", "Парол1234!")
	if err != nil {
		t.Fatalf("SignInWithPassword() returned error: %v", err)
	}
	if session == nil || identity == nil {
		t.Fatal("expected session and identity on success")
	}

	select {
	case event := <-events:
		if event.Type != model.AuthEventSignedIn {
			t.Errorf("event.Type = %q, want %q", event.Type, model.AuthEventSignedIn)
		}
		if event.Session == nil || event.Session.ID != session.ID {
			t.Error("event should carry the new session")
		}
		if event.User == nil || event.User.Email != "anna@example.com" {
			t.Error("event should carry the signed-in user")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SIGNED_IN event")
	}

	got, err := client.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession() returned error: %v", err)
	}
	if got == nil || got.ID != session.ID {
		t.Error("GetSession should return the current session after sign-in")
	}
}

// TestInProcessClient_SignInFailureEmitsNothing はサインイン失敗時に
// イベントが配送されず、セッションも保持されないことをテストする。
func TestInProcessClient_SignInFailureEmitsNothing(t *testing.T) {
	client := newTestClient(t)

	events := make(chan model.AuthEvent, 4)
	sub := client.OnAuthStateChange(func(event model.AuthEvent) {
		events <- event
	})
	defer sub.Unsubscribe()

	_, _, err := client.SignInWithPassword(context.Background(), "anna@example.com", "wrong-password")
	if err == nil {
		t.Fatal("expected error for wrong password")
	}

	select {
	case event := <-events:
		t.Errorf("no event should be emitted on failed sign-in, got %q", event.Type)
	case <-time.After(50 * time.Millisecond):
	}

	session, err := client.GetSession(context.Background())
	if err != nil {
		t.Fatalf("GetSession() returned error: %v", err)
	}
	if session != nil {
		t.Error("no session should be held after failed sign-in")
	}
}

// TestInProcessClient_SignOut はサインアウト時のSIGNED_OUTイベント配送と
// セッション破棄をテストする。
func TestInProcessClient_SignOut(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	if _, _, err := client.SignInWithPassword(ctx, "anna@example.com", "Парол1234!"); err != nil {
		t.Fatalf("SignInWithPassword() returned error: %v", err)
	}

	events := make(chan model.AuthEvent, 4)
	sub := client.OnAuthStateChange(func(event model.AuthEvent) {
		events <- event
	})
	defer sub.Unsubscribe()

	if err := client.SignOut(ctx); err != nil {
		t.Fatalf("SignOut() returned error: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != model.AuthEventSignedOut {
			t.Errorf("event.Type = %q, want %q", event.Type, model.AuthEventSignedOut)
		}
		if event.Session != nil {
			t.Error("SIGNED_OUT event should carry no session")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SIGNED_OUT event")
	}

	session, err := client.GetSession(ctx)
	if err != nil {
		t.Fatalf("GetSession() returned error: %v", err)
	}
	if session != nil {
		t.Error("GetSession should return nil after sign-out")
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("GetUser() returned error: %v", err)
	}
	if user != nil {
		t.Error("GetUser should return nil after sign-out")
	}
}

// TestInProcessClient_GetUser は現在のセッションに対応するユーザー取得をテストする。
func TestInProcessClient_GetUser(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	user, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("GetUser() returned error: %v", err)
	}
	if user != nil {
		t.Fatal("GetUser should return nil before sign-in")
	}

	if _, _, err := client.SignInWithPassword(ctx, "anna@example.com", "Парол1234!"); err != nil {
		t.Fatalf("SignInWithPassword() returned error: %v", err)
	}

	user, err = client.GetUser(ctx)
	if err != nil {
		t.Fatalf("GetUser() returned error: %v", err)
	}
	if user == nil || user.FirstName != "Анна" {
		t.Errorf("unexpected user: %+v", user)
	}
}

// TestSubscription_Unsubscribe は購読解除後にイベントが配送されないこと、
// および二重解除が安全であることをテストする。
func TestSubscription_Unsubscribe(t *testing.T) {
	client := newTestClient(t)

	var mu sync.Mutex
	received := 0
	sub := client.OnAuthStateChange(func(event model.AuthEvent) {
		mu.Lock()
		received++
		mu.Unlock()
	})

	sub.Unsubscribe()
	sub.Unsubscribe() // 二重解除は無害

	if _, _, err := client.SignInWithPassword(context.Background(), "anna@example.com", "Парол1234!"); err != nil {
		t.Fatalf("SignInWithPassword() returned error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if received != 0 {
		t.Errorf("unsubscribed callback received %d events, want 0", received)
	}
}
