// Package newsimport は外部ニュースフィードのバックグラウンド取り込みを提供する。
// スケジューラ、インポータ、リトライ/バックオフ戦略を含む。
package newsimport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
)

// SourceImporter はニュースソース取り込みの実行インターフェース。
type SourceImporter interface {
	// Import は指定ソースを取り込み、結果に応じてソース状態を更新する。
	Import(ctx context.Context, source *model.NewsSource) error
}

// Scheduler はニュース取り込みのスケジューリングと並列制御を行う。
// ティッカーで取り込み対象ソースを取得し、
// semaphoreパターンで最大並列数を制御しながら取り込みを実行する。
type Scheduler struct {
	sourceRepo     repository.NewsSourceRepository
	importer       SourceImporter
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	sourceRepo repository.NewsSourceRepository,
	importer SourceImporter,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sourceRepo:     sourceRepo,
		importer:       importer,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("news import scheduler started",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("news import cycle failed",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("news import scheduler stopped")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("news import cycle failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は取り込み対象ソースを1回取得し、並列で取り込みを実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()

	// 取り込み対象ソースを取得（FOR UPDATE SKIP LOCKED）
	sources, err := s.sourceRepo.ListDueForFetch(ctx)
	if err != nil {
		return err
	}

	if len(sources) == 0 {
		s.logger.Info("no news sources due for import")
		return nil
	}

	s.logger.Info("news import cycle started",
		slog.Int("source_count", len(sources)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, source := range sources {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(src *model.NewsSource) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.importer.Import(ctx, src); err != nil {
				s.logger.Error("news source import failed",
					slog.String("source_id", src.ID),
					slog.String("feed_url", src.FeedURL),
					slog.String("error", err.Error()),
				)
			}
		}(source)
	}

	wg.Wait()

	duration := time.Since(start)
	s.logger.Info("news import cycle completed",
		slog.Int("source_count", len(sources)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
