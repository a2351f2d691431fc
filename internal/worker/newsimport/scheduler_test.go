package newsimport

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/movaschool/movaschool/internal/model"
)

// mockImporter はSourceImporterのテスト用モック。
type mockImporter struct {
	mu       sync.Mutex
	imported []string
	err      error
	delay    time.Duration
	active   int32
	maxSeen  int32
}

func (m *mockImporter) Import(_ context.Context, source *model.NewsSource) error {
	cur := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)

	// 同時実行数の最大値を記録
	for {
		seen := atomic.LoadInt32(&m.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&m.maxSeen, seen, cur) {
			break
		}
	}

	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	m.imported = append(m.imported, source.ID)
	m.mu.Unlock()
	return m.err
}

func newSources(n int) []*model.NewsSource {
	sources := make([]*model.NewsSource, 0, n)
	for i := 0; i < n; i++ {
		sources = append(sources, &model.NewsSource{
			ID:      "src-" + string(rune('a'+i)),
			FeedURL: "https://news.example.com/feed.xml",
			Active:  true,
		})
	}
	return sources
}

func TestNewScheduler_DefaultsConcurrency(t *testing.T) {
	var buf bytes.Buffer
	s := NewScheduler(&mockSourceRepo{}, &mockImporter{}, newTestLogger(&buf), 0)
	if s.maxConcurrency != 10 {
		t.Errorf("maxConcurrency = %d, want 10", s.maxConcurrency)
	}
}

func TestScheduler_RunOnce_ImportsAllDueSources(t *testing.T) {
	sources := newSources(5)
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return sources, nil
		},
	}
	importer := &mockImporter{}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, importer, newTestLogger(&buf), 3)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	importer.mu.Lock()
	defer importer.mu.Unlock()
	if len(importer.imported) != 5 {
		t.Errorf("取り込まれたソース数 = %d, want 5", len(importer.imported))
	}
}

func TestScheduler_RunOnce_RespectsConcurrencyLimit(t *testing.T) {
	sources := newSources(8)
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return sources, nil
		},
	}
	importer := &mockImporter{delay: 20 * time.Millisecond}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, importer, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	if max := atomic.LoadInt32(&importer.maxSeen); max > 2 {
		t.Errorf("同時実行数の最大値 = %d, want <= 2", max)
	}
}

func TestScheduler_RunOnce_NoDueSources(t *testing.T) {
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return nil, nil
		},
	}
	importer := &mockImporter{}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, importer, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}
	if len(importer.imported) != 0 {
		t.Errorf("ソースなしで取り込みが実行された: %d件", len(importer.imported))
	}
}

func TestScheduler_RunOnce_PropagatesListError(t *testing.T) {
	wantErr := errors.New("db unavailable")
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return nil, wantErr
		},
	}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, &mockImporter{}, newTestLogger(&buf), 2)

	if err := s.RunOnce(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("RunOnce() error = %v, want %v", err, wantErr)
	}
}

func TestScheduler_RunOnce_ContinuesAfterImportError(t *testing.T) {
	sources := newSources(3)
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return sources, nil
		},
	}
	importer := &mockImporter{err: errors.New("feed unreachable")}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, importer, newTestLogger(&buf), 2)

	// 個別ソースの失敗はサイクル全体の失敗にしない
	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() がエラーを返した: %v", err)
	}

	importer.mu.Lock()
	defer importer.mu.Unlock()
	if len(importer.imported) != 3 {
		t.Errorf("取り込み試行数 = %d, want 3", len(importer.imported))
	}
}

func TestScheduler_Start_StopsOnContextCancel(t *testing.T) {
	sourceRepo := &mockSourceRepo{
		listDueFunc: func(_ context.Context) ([]*model.NewsSource, error) {
			return nil, nil
		},
	}

	var buf bytes.Buffer
	s := NewScheduler(sourceRepo, &mockImporter{}, newTestLogger(&buf), 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストキャンセル後にStartが停止しない")
	}
}
