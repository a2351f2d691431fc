// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	IncProfilesProvisioned()
	IncProvisionConflicts()
	RecordFetchSuccess(sourceID string)
	RecordFetchFailure(sourceID string, reason string)
	RecordParseFailure(sourceID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordPostsImported(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess       prometheus.Counter
	loginFail          *prometheus.CounterVec
	profilesProvision  prometheus.Counter
	provisionConflicts prometheus.Counter
	fetchSuccess       prometheus.Counter
	fetchFail          prometheus.Counter
	parseFail          prometheus.Counter
	httpStatus         *prometheus.CounterVec
	fetchLatency       prometheus.Histogram
	postsImported      prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movaschool_login_fail_total",
			Help: "理由別のログイン失敗数",
		}, []string{"reason"}),
		profilesProvision: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_profiles_provisioned_total",
			Help: "初回ログイン時に作成されたプロフィールの合計数",
		}),
		provisionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_provision_conflicts_total",
			Help: "プロフィール作成時の重複競合の合計数",
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_news_fetch_success_total",
			Help: "ニュースフィード取り込み成功の合計数",
		}),
		fetchFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_news_fetch_fail_total",
			Help: "ニュースフィード取り込み失敗の合計数",
		}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_news_parse_fail_total",
			Help: "ニュースフィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "movaschool_news_http_status_total",
			Help: "HTTPステータスコード別のフィード取得レスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "movaschool_news_fetch_latency_seconds",
			Help:    "ニュースフィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		postsImported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "movaschool_news_posts_imported_total",
			Help: "取り込まれた記事の合計数",
		}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFail,
		c.profilesProvision,
		c.provisionConflicts,
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.postsImported,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure は理由付きでログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFail.WithLabelValues(reason).Inc()
}

// IncProfilesProvisioned はプロフィールの新規作成を記録する。
func (c *Collector) IncProfilesProvisioned() {
	c.profilesProvision.Inc()
}

// IncProvisionConflicts はプロフィール作成時の重複競合を記録する。
func (c *Collector) IncProvisionConflicts() {
	c.provisionConflicts.Inc()
}

// RecordFetchSuccess はフィード取り込み成功を記録する。
func (c *Collector) RecordFetchSuccess(sourceID string) {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure はフィード取り込み失敗を記録する。
func (c *Collector) RecordFetchFailure(sourceID string, reason string) {
	c.fetchFail.Inc()
}

// RecordParseFailure はフィードパース失敗を記録する。
func (c *Collector) RecordParseFailure(sourceID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はフィード取得のHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordPostsImported は取り込まれた記事数を記録する。
func (c *Collector) RecordPostsImported(count int) {
	c.postsImported.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
