// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン結果のラベル値。
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCanceled = "canceled"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやサービス層から利用する。
type MetricsCollector interface {
	RecordSignIn(provider string, outcome string)
	RecordSignOut()
	RecordProfileCreated()
	RecordTokenRefresh(outcome string)
	RecordRouteDecision(decision string)
	RecordBootstrapLatency(duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn           *prometheus.CounterVec
	signOut          prometheus.Counter
	profileCreated   prometheus.Counter
	tokenRefresh     *prometheus.CounterVec
	routeDecision    *prometheus.CounterVec
	bootstrapLatency prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steppath_signin_total",
			Help: "プロバイダー・結果別のサインイン試行数",
		}, []string{"provider", "outcome"}),
		signOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steppath_signout_total",
			Help: "サインアウト成功の合計数",
		}),
		profileCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "steppath_profile_created_total",
			Help: "作成されたプロファイルの合計数",
		}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steppath_token_refresh_total",
			Help: "結果別のトークンリフレッシュ数",
		}, []string{"outcome"}),
		routeDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steppath_route_decision_total",
			Help: "遷移先別のルート判定数",
		}, []string{"decision"}),
		bootstrapLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "steppath_bootstrap_latency_seconds",
			Help:    "セッション復元とプロファイル取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "steppath_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.signIn,
		c.signOut,
		c.profileCreated,
		c.tokenRefresh,
		c.routeDecision,
		c.bootstrapLatency,
		c.httpStatus,
	)

	return c
}

// RecordSignIn はサインイン試行の結果を記録する。
func (c *Collector) RecordSignIn(provider string, outcome string) {
	c.signIn.WithLabelValues(provider, outcome).Inc()
}

// RecordSignOut はサインアウト成功を記録する。
func (c *Collector) RecordSignOut() {
	c.signOut.Inc()
}

// RecordProfileCreated はプロファイル作成を記録する。
func (c *Collector) RecordProfileCreated() {
	c.profileCreated.Inc()
}

// RecordTokenRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) RecordTokenRefresh(outcome string) {
	c.tokenRefresh.WithLabelValues(outcome).Inc()
}

// RecordRouteDecision はルート判定の遷移先を記録する。
func (c *Collector) RecordRouteDecision(decision string) {
	c.routeDecision.WithLabelValues(decision).Inc()
}

// RecordBootstrapLatency はブートストラップのレイテンシを記録する。
func (c *Collector) RecordBootstrapLatency(duration time.Duration) {
	c.bootstrapLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
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
