// Package sessionsync は「現在のユーザー」のローカル状態を認証サービスと同期する。
//
// 認証イベントの購読、初期セッションの復元、初回ログイン時の
// プロフィール遅延プロビジョニングを担い、
// {User, Session, Profile, Loading} の一貫したスナップショットを公開する。
// プロフィール作成の同時実行競合（複数プロセス・タブ）は
// プロフィール層の作成または再取得で単一の行へ収束する。
package sessionsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/movaschool/movaschool/internal/authclient"
	"github.com/movaschool/movaschool/internal/model"
)

// ProfileProvider はプロフィールの取得・作成・更新インターフェース。
// 実体はprofile.Service。
type ProfileProvider interface {
	// EnsureProfile はプロフィール行の存在を保証する。
	EnsureProfile(ctx context.Context, user *model.Identity) (*model.Profile, error)
	// UpdateProfile はパッチを適用し、更新後の行を返す。
	UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error)
	// UpdateAvatar はアバターを保存し、更新後の行を返す。
	UpdateAvatar(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*model.Profile, error)
}

// Snapshot は現在の認証状態の一貫したコピーを表す。
type Snapshot struct {
	User    *model.Identity
	Session *model.Session
	Profile *model.Profile
	Loading bool
}

// Authenticated はユーザーとプロフィールの両方が揃っている場合のみtrueを返す。
// プロフィール未作成のidentityは認証済みとして扱わない。
func (s Snapshot) Authenticated() bool {
	return s.User != nil && s.Profile != nil
}

// Role は現在のプロフィールのロールを返す。未認証の場合は空文字列。
func (s Snapshot) Role() model.Role {
	if s.Profile == nil {
		return ""
	}
	return s.Profile.Role
}

// Config はSyncerの設定。ゼロ値はデフォルトに置き換えられる。
type Config struct {
	// FailSafeTimeout は初期化が完了しない場合にLoadingを強制解除するまでの時間。
	FailSafeTimeout time.Duration
	// EventBuffer は認証イベントチャネルのバッファサイズ。
	EventBuffer int
}

const (
	defaultFailSafeTimeout = 10 * time.Second
	defaultEventBuffer     = 16
)

// Syncer は認証状態のローカルスナップショットを管理する。
//
// スナップショットの更新はすべてmuで保護され、イベントは
// 単一のループゴルーチンで直列に処理される。サインアウトは
// 世代カウンタを進め、進行中のプロフィール取得や遅延到着した
// イベントの結果を古い世代として破棄する。
type Syncer struct {
	client   authclient.Client
	profiles ProfileProvider
	config   Config

	mu         sync.Mutex
	user       *model.Identity
	session    *model.Session
	profile    *model.Profile
	loading    bool
	generation uint64

	events chan model.AuthEvent
	sub    *authclient.Subscription
	done   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	stopOnce  sync.Once
}

// NewSyncer はSyncerを生成する。初期状態はLoading=true。
func NewSyncer(client authclient.Client, profiles ProfileProvider, config Config) *Syncer {
	if config.FailSafeTimeout <= 0 {
		config.FailSafeTimeout = defaultFailSafeTimeout
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = defaultEventBuffer
	}
	return &Syncer{
		client:   client,
		profiles: profiles,
		config:   config,
		loading:  true,
		events:   make(chan model.AuthEvent, config.EventBuffer),
		done:     make(chan struct{}),
	}
}

// Start は認証イベントの購読と初期セッションの復元を開始する。
// 2回目以降の呼び出しは無視される。
func (s *Syncer) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		// Stopから進行中の認証サービス呼び出しを中断できるよう、
		// 内部コンテキストを派生させる。
		runCtx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		// 購読はイベントループより先に確立し、初期化中のイベント欠落を防ぐ。
		s.sub = s.client.OnAuthStateChange(func(event model.AuthEvent) {
			select {
			case s.events <- event:
			case <-s.done:
			}
		})

		s.wg.Add(1)
		go s.run(runCtx)
	})
}

// Stop は購読を解除し、イベントループを停止する。
// 初期化が認証サービス呼び出しで停滞していても、
// 内部コンテキストのキャンセルにより有限時間で返る。
func (s *Syncer) Stop() {
	s.stopOnce.Do(func() {
		if s.sub != nil {
			s.sub.Unsubscribe()
		}
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
		s.wg.Wait()
	})
}

// Snapshot は現在の状態のコピーを返す。
func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		User:    s.user,
		Session: s.session,
		Profile: s.profile,
		Loading: s.loading,
	}
}

// run はイベントループ本体。初期化、認証イベントの直列処理、
// フェイルセーフタイマーを担う。
func (s *Syncer) run(ctx context.Context) {
	defer s.wg.Done()

	// 初期化が完了しない場合でもLoadingを解除し、
	// 呼び出し側が待ち続けないようにする。
	failSafe := time.AfterFunc(s.config.FailSafeTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.loading {
			slog.Warn("session initialization timed out, clearing loading state")
			s.loading = false
		}
	})

	s.initialize(ctx)
	failSafe.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		case event := <-s.events:
			s.handleEvent(ctx, event)
		}
	}
}

// initialize は保存済みセッションから状態を復元する。
// セッション取得に失敗した場合は未認証へ倒す。
func (s *Syncer) initialize(ctx context.Context) {
	defer s.setLoading(false)

	session, err := s.client.GetSession(ctx)
	if err != nil {
		slog.Error("failed to restore session", slog.String("error", err.Error()))
		s.clear(s.currentGeneration())
		return
	}
	if session == nil {
		s.clear(s.currentGeneration())
		return
	}

	user, err := s.client.GetUser(ctx)
	if err != nil || user == nil {
		slog.Error("failed to load user for restored session")
		s.clear(s.currentGeneration())
		return
	}

	gen := s.currentGeneration()
	s.mu.Lock()
	if s.generation == gen {
		s.session = session
		s.user = user
	}
	s.mu.Unlock()

	s.syncProfile(ctx, gen, user)
}

// handleEvent は認証イベントを1件処理する。
// どの分岐でも最後にLoadingを解除する。
func (s *Syncer) handleEvent(ctx context.Context, event model.AuthEvent) {
	defer s.setLoading(false)

	// サインアウト、およびセッションを伴わないサインイン・更新イベントは
	// サインアウトとして扱う。USER_UPDATEDは既存セッションを保持したまま
	// 届くことがあるため対象外。
	if event.Type == model.AuthEventSignedOut ||
		(event.Session == nil && event.Type != model.AuthEventUserUpdated) {
		gen := s.bumpGeneration()
		s.clear(gen)
		return
	}

	switch event.Type {
	case model.AuthEventSignedIn, model.AuthEventTokenRefreshed:
		gen := s.currentGeneration()
		user := event.User
		if user == nil {
			var err error
			user, err = s.client.GetUser(ctx)
			if err != nil || user == nil {
				slog.Error("failed to load user for auth event", slog.String("type", string(event.Type)))
				s.clear(gen)
				return
			}
		}

		s.mu.Lock()
		if s.generation != gen {
			// 処理中にサインアウトが入った。結果を破棄する。
			s.mu.Unlock()
			return
		}
		s.session = event.Session
		s.user = user
		s.mu.Unlock()

		s.syncProfile(ctx, gen, user)

	case model.AuthEventUserUpdated:
		// ユーザー属性（メールアドレス等）が変わった可能性があるため、
		// セッションとユーザーを取り込み直し、プロフィールも再取得する。
		gen := s.currentGeneration()
		user := event.User
		if user == nil {
			var err error
			user, err = s.client.GetUser(ctx)
			if err != nil || user == nil {
				slog.Error("failed to load user for USER_UPDATED event")
				return
			}
		}

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if event.Session != nil {
			s.session = event.Session
		}
		s.user = user
		s.mu.Unlock()

		s.syncProfile(ctx, gen, user)

	default:
		slog.Debug("ignoring auth event", slog.String("type", string(event.Type)))
	}
}

// syncProfile はユーザーのプロフィール行を確保し、スナップショットへ反映する。
// 取得・作成に失敗した場合はプロフィールのみ空にする（認証済み・未プロビジョニング状態）。
// 反映前に世代を確認し、サインアウト後の遅延結果は破棄する。
func (s *Syncer) syncProfile(ctx context.Context, gen uint64, user *model.Identity) {
	profile, err := s.profiles.EnsureProfile(ctx, user)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	if err != nil {
		slog.Error("failed to ensure profile",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		s.profile = nil
		return
	}
	s.profile = profile
}

// SignIn はメールアドレスとパスワードでサインインする。
// 試行前にローカル状態を空へ戻し、既存セッションを破棄する。
// これにより認証失敗後に前のユーザーの状態が残ることはない。
// 成功時の状態反映はSIGNED_INイベント経由で行われる。
func (s *Syncer) SignIn(ctx context.Context, email, password string) error {
	gen := s.bumpGeneration()
	s.clear(gen)

	if err := s.client.SignOut(ctx); err != nil {
		// 既存セッションの破棄失敗はサインイン試行を妨げない。
		slog.Error("failed to discard previous session", slog.String("error", err.Error()))
	}

	if _, _, err := s.client.SignInWithPassword(ctx, email, password); err != nil {
		return err
	}
	return nil
}

// SignOut はローカル状態を即座に未認証へ倒し、リモートのセッションを破棄する。
// 世代カウンタを進めるため、進行中のプロフィール取得や
// 遅延到着した認証イベントの結果が状態を復活させることはない。
// リモート呼び出しの失敗はログのみで、エラーとしては返さない。
func (s *Syncer) SignOut(ctx context.Context) {
	gen := s.bumpGeneration()
	s.clear(gen)
	s.setLoading(false)

	if err := s.client.SignOut(ctx); err != nil {
		slog.Error("remote sign-out failed", slog.String("error", err.Error()))
	}
}

// UpdateProfile は現在のユーザーのプロフィールを更新し、スナップショットへ反映する。
// 未認証の場合はエラーを返す。
func (s *Syncer) UpdateProfile(ctx context.Context, patch model.ProfilePatch) (*model.Profile, error) {
	userID, gen, err := s.requireAuthenticated()
	if err != nil {
		return nil, err
	}

	updated, err := s.profiles.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	s.applyProfile(gen, updated)
	return updated, nil
}

// UpdateAvatar は現在のユーザーのアバターを更新し、スナップショットへ反映する。
// アップロードに失敗した場合、スナップショットのアバターURLは変更されない。
func (s *Syncer) UpdateAvatar(ctx context.Context, contentType string, size int64, r io.Reader) (*model.Profile, error) {
	userID, gen, err := s.requireAuthenticated()
	if err != nil {
		return nil, err
	}

	updated, err := s.profiles.UpdateAvatar(ctx, userID, contentType, size, r)
	if err != nil {
		return nil, err
	}

	s.applyProfile(gen, updated)
	return updated, nil
}

// requireAuthenticated はユーザーとプロフィールの両方が揃っていることを確認し、
// ユーザーIDと現在の世代を返す。
func (s *Syncer) requireAuthenticated() (string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil || s.profile == nil {
		return "", 0, model.NewUnauthorizedError()
	}
	return s.user.ID, s.generation, nil
}

// applyProfile は更新後のプロフィールをスナップショットへ反映する。
// 世代が進んでいる場合は破棄する。
func (s *Syncer) applyProfile(gen uint64, profile *model.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.profile = profile
}

// clear は指定世代のままであれば状態を未認証へ戻す。
func (s *Syncer) clear(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.user = nil
	s.session = nil
	s.profile = nil
}

func (s *Syncer) setLoading(v bool) {
	s.mu.Lock()
	s.loading = v
	s.mu.Unlock()
}

func (s *Syncer) currentGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// bumpGeneration は世代を進め、新しい世代を返す。
func (s *Syncer) bumpGeneration() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}
