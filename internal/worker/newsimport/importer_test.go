package newsimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/movaschool/movaschool/internal/model"
)

// newTestLogger はテスト用のslogロガーを生成する。
func newTestLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

// mockSourceRepo はNewsSourceRepositoryのテスト用モック。
type mockSourceRepo struct {
	listDueFunc          func(ctx context.Context) ([]*model.NewsSource, error)
	updateFetchStateFunc func(ctx context.Context, source *model.NewsSource) error
	updateCalls          int
}

func (m *mockSourceRepo) Create(_ context.Context, _ *model.NewsSource) error {
	return nil
}

func (m *mockSourceRepo) ListDueForFetch(ctx context.Context) ([]*model.NewsSource, error) {
	if m.listDueFunc != nil {
		return m.listDueFunc(ctx)
	}
	return nil, nil
}

func (m *mockSourceRepo) UpdateFetchState(ctx context.Context, source *model.NewsSource) error {
	m.updateCalls++
	if m.updateFetchStateFunc != nil {
		return m.updateFetchStateFunc(ctx, source)
	}
	return nil
}

// mockPostRepo はPostRepositoryのテスト用モック。
type mockPostRepo struct {
	findBySourceURLFunc func(ctx context.Context, sourceURL string) (*model.Post, error)
	createFunc          func(ctx context.Context, post *model.Post) error
	updateFunc          func(ctx context.Context, post *model.Post) error
	created             []*model.Post
	updated             []*model.Post
}

func (m *mockPostRepo) FindBySlug(_ context.Context, _ string) (*model.Post, error) {
	return nil, nil
}

func (m *mockPostRepo) FindBySourceURL(ctx context.Context, sourceURL string) (*model.Post, error) {
	if m.findBySourceURLFunc != nil {
		return m.findBySourceURLFunc(ctx, sourceURL)
	}
	return nil, nil
}

func (m *mockPostRepo) Create(ctx context.Context, post *model.Post) error {
	if m.createFunc != nil {
		if err := m.createFunc(ctx, post); err != nil {
			return err
		}
	}
	m.created = append(m.created, post)
	return nil
}

func (m *mockPostRepo) Update(ctx context.Context, post *model.Post) error {
	if m.updateFunc != nil {
		if err := m.updateFunc(ctx, post); err != nil {
			return err
		}
	}
	m.updated = append(m.updated, post)
	return nil
}

func (m *mockPostRepo) Delete(_ context.Context, _ string) error {
	return nil
}

func (m *mockPostRepo) List(_ context.Context, _ string, _, _ int) ([]*model.Post, error) {
	return nil, nil
}

func (m *mockPostRepo) Search(_ context.Context, _, _ string, _ int) ([]*model.Post, error) {
	return nil, nil
}

// mockSanitizer はサニタイザのテスト用モック。入力をそのまま返す。
type mockSanitizer struct{}

func (mockSanitizer) SanitizeHTML(rawHTML string) string {
	return rawHTML
}

func (mockSanitizer) SanitizePlain(raw string) string {
	return strings.TrimSpace(raw)
}

// mockSSRFGuard はSSRFGuardServiceのテスト用モック。
type mockSSRFGuard struct {
	validateErr error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration, _ int64) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(_ string) error {
	return m.validateErr
}

// mockMetrics はImportMetricsのテスト用モック。
type mockMetrics struct {
	fetchSuccess  int
	fetchFailures []string
	parseFailures int
	httpStatuses  []int
	latencies     int
	postsImported int
}

func (m *mockMetrics) RecordFetchSuccess(_ string) { m.fetchSuccess++ }
func (m *mockMetrics) RecordFetchFailure(_ string, reason string) {
	m.fetchFailures = append(m.fetchFailures, reason)
}
func (m *mockMetrics) RecordParseFailure(_ string)        { m.parseFailures++ }
func (m *mockMetrics) RecordHTTPStatus(statusCode int)    { m.httpStatuses = append(m.httpStatuses, statusCode) }
func (m *mockMetrics) RecordFetchLatency(_ time.Duration) { m.latencies++ }
func (m *mockMetrics) RecordPostsImported(count int)      { m.postsImported += count }

const testRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Новини освіти</title>
    <item>
      <title>Весняний набір відкрито</title>
      <link>https://news.example.com/articles/spring</link>
      <guid>guid-spring</guid>
      <description>&lt;p&gt;Запрошуємо на курси української мови.&lt;/p&gt;</description>
      <pubDate>Mon, 03 Aug 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Нові викладачі</title>
      <link>https://news.example.com/articles/teachers</link>
      <guid>guid-teachers</guid>
      <description>&lt;p&gt;Троє нових викладачів приєдналися.&lt;/p&gt;</description>
    </item>
  </channel>
</rss>`

func newTestImporter(sourceRepo *mockSourceRepo, postRepo *mockPostRepo, guard *mockSSRFGuard, metrics *mockMetrics) *Importer {
	var buf bytes.Buffer
	return NewImporter(
		sourceRepo,
		postRepo,
		mockSanitizer{},
		guard,
		metrics,
		newTestLogger(&buf),
		10*time.Second,
		5*1024*1024,
		time.Hour,
	)
}

func testSource(feedURL string) *model.NewsSource {
	return &model.NewsSource{
		ID:      "src-1",
		FeedURL: feedURL,
		Lang:    model.LangUkrainian,
		Active:  true,
	}
}

// --- 取り込み成功のテスト ---

func TestImporter_Import_InsertsNewPosts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	sourceRepo := &mockSourceRepo{}
	postRepo := &mockPostRepo{}
	metrics := &mockMetrics{}
	imp := newTestImporter(sourceRepo, postRepo, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if len(postRepo.created) != 2 {
		t.Fatalf("作成された記事数 = %d, want 2", len(postRepo.created))
	}

	post := postRepo.created[0]
	if post.Title != "Весняний набір відкрито" {
		t.Errorf("Title = %q", post.Title)
	}
	if post.SourceURL != "https://news.example.com/articles/spring" {
		t.Errorf("SourceURL = %q", post.SourceURL)
	}
	if post.Lang != model.LangUkrainian {
		t.Errorf("Lang = %q, want uk", post.Lang)
	}
	if post.AuthorID != "" {
		t.Errorf("取り込み記事のAuthorIDは空でなければならない: %q", post.AuthorID)
	}
	if post.Slug == "" {
		t.Error("Slugが生成されていない")
	}
	wantPub := time.Date(2026, 8, 3, 10, 0, 0, 0, time.UTC)
	if !post.PublishedAt.Equal(wantPub) {
		t.Errorf("PublishedAt = %v, want %v", post.PublishedAt, wantPub)
	}

	// 成功時はエラー状態がリセットされ、次回取り込みが予約されること
	if source.ConsecutiveErrors != 0 {
		t.Errorf("ConsecutiveErrors = %d, want 0", source.ConsecutiveErrors)
	}
	if !source.Active {
		t.Error("成功後もActiveを維持しなければならない")
	}
	if sourceRepo.updateCalls != 1 {
		t.Errorf("UpdateFetchState呼び出し回数 = %d, want 1", sourceRepo.updateCalls)
	}

	// メトリクスが記録されること
	if metrics.fetchSuccess != 1 {
		t.Errorf("fetchSuccess = %d, want 1", metrics.fetchSuccess)
	}
	if metrics.postsImported != 2 {
		t.Errorf("postsImported = %d, want 2", metrics.postsImported)
	}
	if len(metrics.httpStatuses) != 1 || metrics.httpStatuses[0] != 200 {
		t.Errorf("httpStatuses = %v, want [200]", metrics.httpStatuses)
	}
	if metrics.latencies != 1 {
		t.Errorf("latencies = %d, want 1", metrics.latencies)
	}
}

func TestImporter_Import_UpdatesChangedPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	existing := &model.Post{
		ID:        "post-1",
		Slug:      "vesnyanyy-nabir",
		Lang:      model.LangUkrainian,
		Title:     "Стара назва",
		BodyHTML:  "<p>старий текст</p>",
		SourceURL: "https://news.example.com/articles/spring",
	}
	postRepo := &mockPostRepo{
		findBySourceURLFunc: func(_ context.Context, sourceURL string) (*model.Post, error) {
			if sourceURL == existing.SourceURL {
				return existing, nil
			}
			return nil, nil
		},
	}
	metrics := &mockMetrics{}
	imp := newTestImporter(&mockSourceRepo{}, postRepo, &mockSSRFGuard{}, metrics)

	if err := imp.Import(context.Background(), testSource(server.URL)); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	// 1件目は更新、2件目は新規挿入
	if len(postRepo.updated) != 1 {
		t.Fatalf("更新された記事数 = %d, want 1", len(postRepo.updated))
	}
	if postRepo.updated[0].Title != "Весняний набір відкрито" {
		t.Errorf("更新後のTitle = %q", postRepo.updated[0].Title)
	}
	if len(postRepo.created) != 1 {
		t.Errorf("作成された記事数 = %d, want 1", len(postRepo.created))
	}
	if metrics.postsImported != 1 {
		t.Errorf("postsImported = %d, want 1", metrics.postsImported)
	}
}

func TestImporter_Import_SkipsUnchangedPost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	}))
	defer server.Close()

	existing := &model.Post{
		ID:        "post-1",
		Title:     "Весняний набір відкрито",
		BodyHTML:  "<p>Запрошуємо на курси української мови.</p>",
		SourceURL: "https://news.example.com/articles/spring",
	}
	postRepo := &mockPostRepo{
		findBySourceURLFunc: func(_ context.Context, sourceURL string) (*model.Post, error) {
			if sourceURL == existing.SourceURL {
				return existing, nil
			}
			return nil, nil
		},
	}
	imp := newTestImporter(&mockSourceRepo{}, postRepo, &mockSSRFGuard{}, &mockMetrics{})

	if err := imp.Import(context.Background(), testSource(server.URL)); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if len(postRepo.updated) != 0 {
		t.Errorf("変更のない記事を更新してはならない: %d件更新", len(postRepo.updated))
	}
}

// --- HTTPステータス処理のテスト ---

func TestImporter_Import_NotModified304(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer server.Close()

	sourceRepo := &mockSourceRepo{}
	postRepo := &mockPostRepo{}
	metrics := &mockMetrics{}
	imp := newTestImporter(sourceRepo, postRepo, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	source.ConsecutiveErrors = 2
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if len(postRepo.created) != 0 {
		t.Errorf("304では記事を作成してはならない")
	}
	if source.ConsecutiveErrors != 0 {
		t.Errorf("304でもエラー状態はリセットされる: ConsecutiveErrors = %d", source.ConsecutiveErrors)
	}
	if metrics.fetchSuccess != 1 {
		t.Errorf("fetchSuccess = %d, want 1", metrics.fetchSuccess)
	}
}

func TestImporter_Import_DisablesSourceOn404(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	sourceRepo := &mockSourceRepo{}
	metrics := &mockMetrics{}
	imp := newTestImporter(sourceRepo, &mockPostRepo{}, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if source.Active {
		t.Error("404ではソースを無効化しなければならない")
	}
	if sourceRepo.updateCalls != 1 {
		t.Errorf("UpdateFetchState呼び出し回数 = %d, want 1", sourceRepo.updateCalls)
	}
	if len(metrics.fetchFailures) != 1 || metrics.fetchFailures[0] != "http_404" {
		t.Errorf("fetchFailures = %v, want [http_404]", metrics.fetchFailures)
	}
}

func TestImporter_Import_BacksOffOn503(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	metrics := &mockMetrics{}
	imp := newTestImporter(&mockSourceRepo{}, &mockPostRepo{}, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if !source.Active {
		t.Error("503ではActiveを維持しなければならない")
	}
	if source.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", source.ConsecutiveErrors)
	}
	if source.NextFetchAt.Before(time.Now().Add(29 * time.Minute)) {
		t.Errorf("NextFetchAt = %v, want at least 30m from now", source.NextFetchAt)
	}
	if len(metrics.fetchFailures) != 1 || metrics.fetchFailures[0] != "http_503" {
		t.Errorf("fetchFailures = %v, want [http_503]", metrics.fetchFailures)
	}
}

// --- SSRF検証のテスト ---

func TestImporter_Import_BlockedBySSRFGuard(t *testing.T) {
	sourceRepo := &mockSourceRepo{}
	metrics := &mockMetrics{}
	guard := &mockSSRFGuard{validateErr: errors.New("private ip blocked")}
	imp := newTestImporter(sourceRepo, &mockPostRepo{}, guard, metrics)

	source := testSource("http://169.254.169.254/feed")
	err := imp.Import(context.Background(), source)
	if err == nil {
		t.Fatal("SSRF検証失敗時はエラーを返さなければならない")
	}

	if source.Active {
		t.Error("SSRF検証失敗時はソースを無効化しなければならない")
	}
	if len(metrics.fetchFailures) != 1 || metrics.fetchFailures[0] != "ssrf_blocked" {
		t.Errorf("fetchFailures = %v, want [ssrf_blocked]", metrics.fetchFailures)
	}
}

// --- パース失敗のテスト ---

func TestImporter_Import_ParseFailureCountsAndContinues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, "this is not xml at all")
	}))
	defer server.Close()

	metrics := &mockMetrics{}
	imp := newTestImporter(&mockSourceRepo{}, &mockPostRepo{}, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	// パース失敗は取り込みエラーとして伝播しない
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if source.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", source.ConsecutiveErrors)
	}
	if !source.Active {
		t.Error("1回のパース失敗でソースを無効化してはならない")
	}
	if metrics.parseFailures != 1 {
		t.Errorf("parseFailures = %d, want 1", metrics.parseFailures)
	}
}

// --- フィード自動検出のテスト ---

func TestImporter_Import_DiscoversFeedFromHTMLPage(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><head>
<link rel="alternate" type="application/rss+xml" href="%s/feed.xml">
</head><body></body></html>`, server.URL)
	})
	mux.HandleFunc("/feed.xml", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, testRSS)
	})

	postRepo := &mockPostRepo{}
	metrics := &mockMetrics{}
	imp := newTestImporter(&mockSourceRepo{}, postRepo, &mockSSRFGuard{}, metrics)

	// ソースにはフィードURLではなくサイトトップページが登録されている
	source := testSource(server.URL + "/")
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if len(postRepo.created) != 2 {
		t.Errorf("作成された記事数 = %d, want 2", len(postRepo.created))
	}
	if metrics.fetchSuccess != 1 {
		t.Errorf("fetchSuccess = %d, want 1", metrics.fetchSuccess)
	}
}

func TestImporter_Import_HTMLWithoutFeedLinkIsParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><head><title>no feed here</title></head><body></body></html>`)
	}))
	defer server.Close()

	metrics := &mockMetrics{}
	imp := newTestImporter(&mockSourceRepo{}, &mockPostRepo{}, &mockSSRFGuard{}, metrics)

	source := testSource(server.URL)
	if err := imp.Import(context.Background(), source); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if source.ConsecutiveErrors != 1 {
		t.Errorf("ConsecutiveErrors = %d, want 1", source.ConsecutiveErrors)
	}
	if metrics.parseFailures != 1 {
		t.Errorf("parseFailures = %d, want 1", metrics.parseFailures)
	}
}

// --- 記事フィルタのテスト ---

func TestImporter_Import_SkipsItemsWithoutLink(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>t</title>
<item><title>без посилання</title><description>текст</description></item>
</channel></rss>`)
	}))
	defer server.Close()

	postRepo := &mockPostRepo{}
	imp := newTestImporter(&mockSourceRepo{}, postRepo, &mockSSRFGuard{}, &mockMetrics{})

	if err := imp.Import(context.Background(), testSource(server.URL)); err != nil {
		t.Fatalf("Import() がエラーを返した: %v", err)
	}

	if len(postRepo.created) != 0 {
		t.Errorf("リンクのない記事を作成してはならない: %d件作成", len(postRepo.created))
	}
}
