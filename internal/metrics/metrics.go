// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 結果ラベル値
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・アダプタ・ワーカーから利用する。
type MetricsCollector interface {
	RecordRegistration(outcome string)
	RecordAdapterCall(method, outcome string)
	RecordSignIn(outcome string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordCleanup(sessions, users int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	registrations  *prometheus.CounterVec
	adapterCalls   *prometheus.CounterVec
	signIns        *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	cleanedUp      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ignitecall_registrations_total",
			Help: "ユーザー名登録リクエストの結果別件数",
		}, []string{"outcome"}),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ignitecall_adapter_calls_total",
			Help: "セッションアダプタのメソッド別・結果別呼び出し数",
		}, []string{"method", "outcome"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ignitecall_signins_total",
			Help: "Googleサインインの結果別件数",
		}, []string{"outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ignitecall_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ignitecall_request_latency_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cleanedUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ignitecall_cleanup_deleted_total",
			Help: "クリーンアップで削除された行数",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		c.registrations,
		c.adapterCalls,
		c.signIns,
		c.httpStatus,
		c.requestLatency,
		c.cleanedUp,
	)

	return c
}

// RecordRegistration はユーザー名登録の結果を記録する。
func (c *Collector) RecordRegistration(outcome string) {
	c.registrations.WithLabelValues(outcome).Inc()
}

// RecordAdapterCall はアダプタ呼び出しを記録する。
func (c *Collector) RecordAdapterCall(method, outcome string) {
	c.adapterCalls.WithLabelValues(method, outcome).Inc()
}

// RecordSignIn はサインインの結果を記録する。
func (c *Collector) RecordSignIn(outcome string) {
	c.signIns.WithLabelValues(outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordCleanup はクリーンアップで削除した行数を記録する。
func (c *Collector) RecordCleanup(sessions, users int64) {
	c.cleanedUp.WithLabelValues("session").Add(float64(sessions))
	c.cleanedUp.WithLabelValues("provisional_user").Add(float64(users))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordRegistration(string) {}
func (Nop) RecordAdapterCall(string, string) {}
func (Nop) RecordSignIn(string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordCleanup(int64, int64) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
