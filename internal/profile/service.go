// Package profile はプロフィールの遅延プロビジョニングと更新を提供する。
package profile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/movaschool/movaschool/internal/blob"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
)

// Metrics はプロビジョニング関連のメトリクス通知インターフェース。
type Metrics interface {
	IncProfilesProvisioned()
	IncProvisionConflicts()
}

// ServiceConfig はプロフィールサービスの設定。
type ServiceConfig struct {
	AvatarMaxSize int64 // アバターのアップロード上限（バイト）
}

// Service はプロフィールに関するビジネスロジックを提供する。
type Service struct {
	profileRepo repository.ProfileRepository
	storage     blob.Storage
	metrics     Metrics
	config      ServiceConfig
}

// NewService はServiceを生成する。metricsはnil可。
func NewService(
	profileRepo repository.ProfileRepository,
	storage blob.Storage,
	metrics Metrics,
	config ServiceConfig,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		storage:     storage,
		metrics:     metrics,
		config:      config,
	}
}

// 競合後の再取得リトライ設定。
// 書き込み直後の読み取り遅延を吸収するため、上限付きで間隔を倍々に伸ばす。
const (
	conflictRefetchAttempts = 4
	conflictRefetchInitial  = 50 * time.Millisecond
)

// EnsureProfile は認証済みユーザーに対応するプロフィール行の存在を保証する。
// 存在しない場合はrole=student、氏名空で新規作成する。
// 複数プロセス・タブからの同時作成はUNIQUE制約違反として検出され、
// 勝者の行を再取得して成功として扱う。どの呼び出し経路でも
// 最終的に同一のプロフィール行へ収束する。
func (s *Service) EnsureProfile(ctx context.Context, user *model.Identity) (*model.Profile, error) {
	if user == nil {
		return nil, fmt.Errorf("user is required")
	}

	// 作成前の再確認。イベントの重複配送で既に作成済みの場合が多い。
	existing, err := s.profileRepo.FindByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	newProfile := &model.Profile{
		ID:        user.ID,
		Email:     user.Email,
		Role:      model.RoleStudent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err = s.profileRepo.Create(ctx, newProfile)
	if err == nil {
		if s.metrics != nil {
			s.metrics.IncProfilesProvisioned()
		}
		slog.Info("profile provisioned",
			slog.String("user_id", user.ID),
			slog.String("role", string(model.RoleStudent)),
		)
		return newProfile, nil
	}

	if !repository.IsUniqueViolation(err) {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	// 他のプロセスが先に作成した。勝者の行を再取得する。
	if s.metrics != nil {
		s.metrics.IncProvisionConflicts()
	}
	slog.Info("profile already created concurrently, refetching",
		slog.String("user_id", user.ID),
	)
	return s.refetchAfterConflict(ctx, user.ID)
}

// refetchAfterConflict はUNIQUE制約違反の検出後に勝者の行を取得する。
// 勝者の書き込みがまだ読み取れない場合に備え、上限付きバックオフで再試行する。
func (s *Service) refetchAfterConflict(ctx context.Context, userID string) (*model.Profile, error) {
	delay := conflictRefetchInitial
	for attempt := 1; attempt <= conflictRefetchAttempts; attempt++ {
		profile, err := s.profileRepo.FindByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to refetch profile: %w", err)
		}
		if profile != nil {
			return profile, nil
		}
		if attempt == conflictRefetchAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, fmt.Errorf("profile not visible after duplicate-key conflict: %s", userID)
}

// GetProfile は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	profile, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return profile, nil
}

// UpdateProfile はパッチのnil以外のフィールドを書き込み、更新後の行を返す。
func (s *Service) UpdateProfile(ctx context.Context, userID string, patch model.ProfilePatch) (*model.Profile, error) {
	existing, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing == nil {
		return nil, model.NewProfileNotFoundError()
	}

	if err := s.profileRepo.Update(ctx, userID, patch); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	updated, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload profile: %w", err)
	}
	slog.Info("profile updated", slog.String("user_id", userID))
	return updated, nil
}

// avatarExtensions はアップロードを許可するContent-Typeと拡張子の対応。
var avatarExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/webp": "webp",
}

// UpdateAvatar はアバター画像を保存し、プロフィールの公開URLを更新する。
// 保存に失敗した場合、プロフィールのアバターURLは変更されない。
func (s *Service) UpdateAvatar(ctx context.Context, userID, contentType string, size int64, r io.Reader) (*model.Profile, error) {
	existing, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if existing == nil {
		return nil, model.NewProfileNotFoundError()
	}

	if size > s.config.AvatarMaxSize {
		return nil, model.NewAvatarTooLargeError(s.config.AvatarMaxSize)
	}
	ext, ok := avatarExtensions[contentType]
	if !ok {
		return nil, model.NewUnsupportedAvatarError(contentType)
	}

	// タイムスタンプ入りのパスにして古いURLのキャッシュと衝突しないようにする。
	path := fmt.Sprintf("%s/%d.%s", userID, time.Now().Unix(), ext)
	url, err := s.storage.Put(ctx, path, io.LimitReader(r, s.config.AvatarMaxSize))
	if err != nil {
		return nil, fmt.Errorf("failed to upload avatar: %w", err)
	}

	if err := s.profileRepo.UpdateAvatarURL(ctx, userID, url); err != nil {
		return nil, fmt.Errorf("failed to update avatar URL: %w", err)
	}

	updated, err := s.profileRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload profile: %w", err)
	}
	slog.Info("avatar updated", slog.String("user_id", userID), slog.String("path", path))
	return updated, nil
}
