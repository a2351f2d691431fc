// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと、保持期間（デフォルト90日）を超過した
// 却下済みレッスン申込を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/movaschool/movaschool/internal/repository"
)

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessionRepo repository.SessionRepository
	appRepo     repository.ApplicationRepository
	logger      *slog.Logger

	// Interval はジョブの実行間隔（デフォルト: 24時間）。
	Interval time.Duration
	// DeclinedRetention は却下済み申込の保持期間（デフォルト: 90日）。
	DeclinedRetention time.Duration
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(
	sessionRepo repository.SessionRepository,
	appRepo repository.ApplicationRepository,
	logger *slog.Logger,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo:       sessionRepo,
		appRepo:           appRepo,
		logger:            logger,
		Interval:          24 * time.Hour,
		DeclinedRetention: 90 * 24 * time.Hour,
	}
}

// Start はクリーンアップジョブをティッカーで定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	j.logger.Info("cleanup job started",
		slog.Duration("interval", j.Interval),
		slog.Duration("declined_retention", j.DeclinedRetention),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup cycle failed",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("cleanup job stopped")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Run は1回のクリーンアップサイクルを実行する。
// 期限切れセッションと保持期間を過ぎた却下済み申込を削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	cutoff := time.Now().Add(-j.DeclinedRetention)
	applications, err := j.appRepo.DeleteDeclinedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to delete declined applications: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("cleanup cycle completed",
		slog.Int64("sessions_deleted", sessions),
		slog.Int64("applications_deleted", applications),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
