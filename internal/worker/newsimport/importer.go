package newsimport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/movaschool/movaschool/internal/content"
	"github.com/movaschool/movaschool/internal/model"
	"github.com/movaschool/movaschool/internal/repository"
)

// SSRFValidator はSSRF検証のインターフェース。
// security.SSRFGuardServiceを抽象化してテスタビリティを向上させる。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// Sanitizer は取り込み記事のサニタイズ処理のインターフェース。
type Sanitizer interface {
	SanitizeHTML(rawHTML string) string
	SanitizePlain(raw string) string
}

// ImportMetrics は取り込み結果のメトリクス記録のインターフェース。
type ImportMetrics interface {
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordPostsImported(count int)
}

// noopMetrics はメトリクス未設定時のフォールバック。
type noopMetrics struct{}

func (noopMetrics) RecordFetchSuccess(string)          {}
func (noopMetrics) RecordFetchFailure(string, string)  {}
func (noopMetrics) RecordParseFailure(string)          {}
func (noopMetrics) RecordHTTPStatus(int)               {}
func (noopMetrics) RecordFetchLatency(time.Duration)   {}
func (noopMetrics) RecordPostsImported(int)            {}

// Importer は個別ニュースソースのHTTPフェッチ・パース・記事保存を行う。
// SSRF検証付きクライアントでフィードを取得し、gofeedでパースし、
// サニタイズ済みの記事をsource_urlをキーにpostsへUPSERTする。
// 取得先がHTMLページの場合はheadタグからフィードURLを自動検出する。
type Importer struct {
	sourceRepo    repository.NewsSourceRepository
	postRepo      repository.PostRepository
	sanitizer     Sanitizer
	ssrfGuard     SSRFValidator
	metrics       ImportMetrics
	logger        *slog.Logger
	timeout       time.Duration
	maxBodySize   int64
	fetchInterval time.Duration
}

// NewImporter はImporterの新しいインスタンスを生成する。
// metricsがnilの場合は何も記録しない実装を使用する。
func NewImporter(
	sourceRepo repository.NewsSourceRepository,
	postRepo repository.PostRepository,
	sanitizer Sanitizer,
	ssrfGuard SSRFValidator,
	metrics ImportMetrics,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	fetchInterval time.Duration,
) *Importer {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Importer{
		sourceRepo:    sourceRepo,
		postRepo:      postRepo,
		sanitizer:     sanitizer,
		ssrfGuard:     ssrfGuard,
		metrics:       metrics,
		logger:        logger,
		timeout:       timeout,
		maxBodySize:   maxBodySize,
		fetchInterval: fetchInterval,
	}
}

// Import はニュースソースを取り込み、結果に応じてソース状態を更新する。
// SourceImporterインターフェースを実装する。
func (i *Importer) Import(ctx context.Context, source *model.NewsSource) error {
	start := time.Now()

	// SSRF検証
	if err := i.ssrfGuard.ValidateURL(source.FeedURL); err != nil {
		i.logger.Error("ssrf validation failed",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		i.metrics.RecordFetchFailure(source.ID, "ssrf_blocked")
		ApplyDisable(source, fmt.Sprintf("ssrf validation failed: %s", err.Error()))
		i.saveState(ctx, source)
		return fmt.Errorf("ssrf validation failed: %w", err)
	}

	client := i.ssrfGuard.NewSafeClient(i.timeout, i.maxBodySize)
	resp, body, err := i.fetch(ctx, client, source.FeedURL)
	if err != nil {
		i.logger.Error("feed request failed",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		i.metrics.RecordFetchFailure(source.ID, "http_error")
		ApplyBackoff(source, fmt.Sprintf("http request failed: %s", err.Error()))
		i.saveState(ctx, source)
		return fmt.Errorf("http request failed: %w", err)
	}

	duration := time.Since(start)
	i.metrics.RecordHTTPStatus(resp.StatusCode)
	i.metrics.RecordFetchLatency(duration)

	// HTTPステータスに基づく処理分岐
	switch ClassifyHTTPStatus(resp.StatusCode) {
	case FetchResultNotModified:
		// 304: コンテンツ未変更 - next_fetch_atのみ更新
		i.logger.Info("feed not modified",
			slog.String("source_id", source.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.Float64("duration_ms", float64(duration.Milliseconds())),
		)
		i.metrics.RecordFetchSuccess(source.ID)
		ApplySuccess(source, i.fetchInterval)
		return i.sourceRepo.UpdateFetchState(ctx, source)

	case FetchResultStop:
		// 404/410/401/403: ソース無効化
		reason := fmt.Sprintf("disabled by http status %d", resp.StatusCode)
		i.logger.Warn("disabling news source",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
		)
		i.metrics.RecordFetchFailure(source.ID, fmt.Sprintf("http_%d", resp.StatusCode))
		ApplyDisable(source, reason)
		return i.sourceRepo.UpdateFetchState(ctx, source)

	case FetchResultBackoff, FetchResultUnknown:
		// 429/5xx/その他: バックオフ
		reason := fmt.Sprintf("backoff on http status %d", resp.StatusCode)
		i.logger.Warn("applying backoff to news source",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.Int("http_status", resp.StatusCode),
			slog.Int("consecutive_errors", source.ConsecutiveErrors+1),
		)
		i.metrics.RecordFetchFailure(source.ID, fmt.Sprintf("http_%d", resp.StatusCode))
		ApplyBackoff(source, reason)
		return i.sourceRepo.UpdateFetchState(ctx, source)
	}

	// 200: サイトトップページが登録されている場合はフィードURLを自動検出
	contentType := resp.Header.Get("Content-Type")
	if !IsDirectFeed(contentType, body) && isHTML(contentType) {
		feedURL := DiscoverFeedURL(body, source.FeedURL)
		if feedURL == "" {
			i.metrics.RecordParseFailure(source.ID)
			ApplyParseFailure(source, "no feed link found in html page")
			i.saveState(ctx, source)
			return nil
		}
		if err := i.ssrfGuard.ValidateURL(feedURL); err != nil {
			i.metrics.RecordFetchFailure(source.ID, "ssrf_blocked")
			ApplyDisable(source, fmt.Sprintf("discovered feed url blocked: %s", err.Error()))
			i.saveState(ctx, source)
			return fmt.Errorf("ssrf validation failed: %w", err)
		}
		i.logger.Info("discovered feed url from html page",
			slog.String("source_id", source.ID),
			slog.String("page_url", source.FeedURL),
			slog.String("feed_url", feedURL),
		)
		feedResp, feedBody, err := i.fetch(ctx, client, feedURL)
		if err != nil || feedResp.StatusCode != http.StatusOK {
			i.metrics.RecordFetchFailure(source.ID, "http_error")
			ApplyBackoff(source, "discovered feed url fetch failed")
			i.saveState(ctx, source)
			return nil
		}
		body = feedBody
	}

	// gofeedでフィードをパース
	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		i.logger.Error("feed parse failed",
			slog.String("source_id", source.ID),
			slog.String("feed_url", source.FeedURL),
			slog.String("error", err.Error()),
		)
		i.metrics.RecordParseFailure(source.ID)
		ApplyParseFailure(source, err.Error())
		i.saveState(ctx, source)
		return nil // パース失敗は取り込みエラーとしない（カウントして継続）
	}

	// 記事をUPSERT
	inserted, updated, err := i.upsertItems(ctx, source, feed.Items)
	if err != nil {
		i.logger.Error("post upsert failed",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
		i.metrics.RecordParseFailure(source.ID)
		ApplyParseFailure(source, fmt.Sprintf("post upsert failed: %s", err.Error()))
		i.saveState(ctx, source)
		return nil
	}

	i.metrics.RecordFetchSuccess(source.ID)
	i.metrics.RecordPostsImported(inserted)
	ApplySuccess(source, i.fetchInterval)

	if updateErr := i.sourceRepo.UpdateFetchState(ctx, source); updateErr != nil {
		i.logger.Error("news source state update failed",
			slog.String("source_id", source.ID),
			slog.String("error", updateErr.Error()),
		)
		return updateErr
	}

	i.logger.Info("news import completed",
		slog.String("source_id", source.ID),
		slog.String("feed_url", source.FeedURL),
		slog.Int("posts_inserted", inserted),
		slog.Int("posts_updated", updated),
		slog.Int("items_total", len(feed.Items)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// fetch はURLにGETリクエストを送信し、レスポンスと
// 最大サイズ制限付きで読み込んだボディを返す。
func (i *Importer) fetch(ctx context.Context, client *http.Client, rawURL string) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", "MovaSchool/1.0 News Importer")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html, */*")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBodySize))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp, body, nil
}

// upsertItems はフィード記事をpostsへ保存する。
// source_urlで既存記事を検索し、存在しなければ挿入、
// タイトルまたは本文が変わっていれば更新する。
func (i *Importer) upsertItems(ctx context.Context, source *model.NewsSource, items []*gofeed.Item) (int, int, error) {
	inserted := 0
	updated := 0

	for _, item := range items {
		if item == nil {
			continue
		}

		link := item.Link
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}
		if link == "" {
			continue
		}

		title := i.sanitizer.SanitizePlain(item.Title)
		if title == "" {
			continue
		}

		rawBody := item.Content
		if rawBody == "" {
			rawBody = item.Description
		}
		bodyHTML := i.sanitizer.SanitizeHTML(rawBody)

		publishedAt := time.Now()
		if item.PublishedParsed != nil {
			publishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			publishedAt = *item.UpdatedParsed
		}

		existing, err := i.postRepo.FindBySourceURL(ctx, link)
		if err != nil {
			return inserted, updated, fmt.Errorf("failed to find post by source url: %w", err)
		}

		if existing == nil {
			now := time.Now()
			post := &model.Post{
				ID:          uuid.New().String(),
				Slug:        content.Slugify(title),
				Lang:        source.Lang,
				Title:       title,
				BodyHTML:    bodyHTML,
				SourceURL:   link,
				PublishedAt: publishedAt,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := i.postRepo.Create(ctx, post); err != nil {
				if !repository.IsUniqueViolation(err) {
					return inserted, updated, fmt.Errorf("failed to insert post: %w", err)
				}
				// スラッグ衝突: サフィックスを付けて1回だけ再試行
				post.Slug = post.Slug + "-" + uuid.New().String()[:8]
				if err := i.postRepo.Create(ctx, post); err != nil {
					return inserted, updated, fmt.Errorf("failed to insert post: %w", err)
				}
			}
			inserted++
			continue
		}

		if existing.Title == title && existing.BodyHTML == bodyHTML {
			continue
		}
		existing.Title = title
		existing.BodyHTML = bodyHTML
		existing.PublishedAt = publishedAt
		existing.UpdatedAt = time.Now()
		if err := i.postRepo.Update(ctx, existing); err != nil {
			return inserted, updated, fmt.Errorf("failed to update post: %w", err)
		}
		updated++
	}

	return inserted, updated, nil
}

// saveState はソース状態を更新し、失敗はログのみに留める。
func (i *Importer) saveState(ctx context.Context, source *model.NewsSource) {
	if err := i.sourceRepo.UpdateFetchState(ctx, source); err != nil {
		i.logger.Error("news source state update failed",
			slog.String("source_id", source.ID),
			slog.String("error", err.Error()),
		)
	}
}

// isHTML はContent-TypeがHTMLかどうかを返す。
func isHTML(contentType string) bool {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return strings.Contains(strings.ToLower(mediaType), "html")
}
