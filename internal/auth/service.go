// Package auth はパスワード認証、サインアップ、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
	"github.com/movaschool/movaschool/internal/security/password"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge       int           // セッション有効期間（秒）
	SignInAttemptLimit  int           // メールアドレスごとのサインイン試行上限（ウィンドウあたり）
	SignInAttemptWindow time.Duration // サインイン試行ウィンドウ
	MinPasswordLength   int
	// RequireEmailConfirmation が有効な場合、確認済みメールアドレスのみサインインできる。
	RequireEmailConfirmation bool
	PasswordParams           password.Params
}

// SignUpParams はサインアップ時の入力を表す。
type SignUpParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Age       *int
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	attempts    *attemptLimiter
}

// NewService はServiceを生成する。
func NewService(
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		attempts:    newAttemptLimiter(config.SignInAttemptLimit, config.SignInAttemptWindow),
	}
}

// SignUp は新規ユーザーを登録する。
// パスワードはargon2idでハッシュ化され、平文は保存されない。
// メールアドレス重複の場合はAPIError(EMAIL_TAKEN)を返す。
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*model.Identity, error) {
	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, model.NewInvalidCredentialsError()
	}
	if len(params.Password) < s.config.MinPasswordLength {
		return nil, model.NewWeakPasswordError(s.config.MinPasswordLength)
	}

	hash, err := password.Hash(s.config.PasswordParams, params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		Email:          email,
		PasswordHash:   hash,
		EmailConfirmed: !s.config.RequireEmailConfirmation,
		FirstName:      strings.TrimSpace(params.FirstName),
		LastName:       strings.TrimSpace(params.LastName),
		Age:            params.Age,
		CreatedAt:      time.Now(),
	}

	if err := s.identRepo.Create(ctx, identity); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, model.NewEmailTakenError()
		}
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	slog.Info("new user registered",
		slog.String("user_id", identity.ID),
		slog.String("email", identity.Email),
	)
	return identity, nil
}

// SignIn はメールアドレスとパスワードを検証し、セッションを発行する。
// 失敗分類:
//   - 試行上限超過: APIError(RATE_LIMITED)
//   - メールアドレス不明またはパスワード不一致: APIError(INVALID_CREDENTIALS)
//   - メールアドレス未確認: APIError(EMAIL_NOT_CONFIRMED)
func (s *Service) SignIn(ctx context.Context, email, plain string) (*model.Session, *model.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	if !s.attempts.Allow(email) {
		slog.Warn("sign-in attempt limit exceeded", slog.String("email", email))
		return nil, nil, model.NewRateLimitedError()
	}

	identity, err := s.identRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find identity: %w", err)
	}
	// ユーザー不在でもパスワード検証を実行し、応答時間での存在推測を防ぐ。
	if identity == nil {
		password.Verify(plain, dummyHash)
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if !password.Verify(plain, identity.PasswordHash) {
		slog.Info("sign-in rejected: wrong password", slog.String("user_id", identity.ID))
		return nil, nil, model.NewInvalidCredentialsError()
	}

	if s.config.RequireEmailConfirmation && !identity.EmailConfirmed {
		return nil, nil, model.NewEmailNotConfirmedError()
	}

	session, err := s.createSession(ctx, identity.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.attempts.Reset(email)
	slog.Info("user signed in", slog.String("user_id", identity.ID))
	return session, identity, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out", slog.String("session_id", sessionID))
	return nil
}

// SignOutUser は指定ユーザーの全セッションを破棄する。
func (s *Service) SignOutUser(ctx context.Context, userID string) error {
	if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

// GetSession は有効なセッションを取得する。期限切れまたは不明の場合はnilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// GetUser は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (s *Service) GetUser(ctx context.Context, userID string) (*model.Identity, error) {
	identity, err := s.identRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return identity, nil
}

// ConfirmEmail はメールアドレスを確認済みにする。
func (s *Service) ConfirmEmail(ctx context.Context, userID string) error {
	if err := s.identRepo.ConfirmEmail(ctx, userID); err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	slog.Info("email confirmed", slog.String("user_id", userID))
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// dummyHash はユーザー不在時のダミー検証に使う固定PHC文字列。
// 実在パスワードとは対応しない。
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
