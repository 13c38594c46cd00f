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
// ゲートウェイとセッションストアから利用する。
type MetricsCollector interface {
	RecordRequest(resource, operation string, statusCode int, duration time.Duration)
	RecordTransportFailure(resource, operation string)
	RecordLogin(outcome string)
}

// ログイン結果のラベル値
const (
	LoginSucceeded = "succeeded"
	LoginRejected  = "rejected"
	LoginError     = "error"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests       *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	transportFails *prometheus.CounterVec
	logins         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrisport_gateway_requests_total",
			Help: "リソース・操作・HTTPステータス別のAPIリクエスト数",
		}, []string{"resource", "operation", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nutrisport_gateway_request_duration_seconds",
			Help:    "APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"resource", "operation"}),
		transportFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrisport_gateway_transport_errors_total",
			Help: "APIサーバーへの接続失敗の合計数",
		}, []string{"resource", "operation"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "nutrisport_login_total",
			Help: "結果別のログイン試行数",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.transportFails,
		c.logins,
	)

	return c
}

// RecordRequest はレスポンスを受け取ったリクエストを記録する。
func (c *Collector) RecordRequest(resource, operation string, statusCode int, duration time.Duration) {
	c.requests.WithLabelValues(resource, operation, strconv.Itoa(statusCode)).Inc()
	c.latency.WithLabelValues(resource, operation).Observe(duration.Seconds())
}

// RecordTransportFailure は接続失敗を記録する。
func (c *Collector) RecordTransportFailure(resource, operation string) {
	c.transportFails.WithLabelValues(resource, operation).Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// Nop は何も記録しないMetricsCollector。
type Nop struct{}

func (Nop) RecordRequest(string, string, int, time.Duration) {}
func (Nop) RecordTransportFailure(string, string)            {}
func (Nop) RecordLogin(string)                               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
