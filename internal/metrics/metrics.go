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
// ディスパッチャー、Mailchimpクライアント、ハンドラーから利用する。
type MetricsCollector interface {
	RecordWebhookEvent(action string)
	RecordDispatchOutcome(outcome string)
	RecordRemoteCall(operation string, statusCode int, duration time.Duration, err error)
	RecordSubscriberSync(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	webhookEvents   *prometheus.CounterVec
	dispatchOutcome *prometheus.CounterVec
	remoteCalls     *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	subscriberSync  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatch_webhook_events_total",
			Help: "受信したコンテンツ変更イベント数",
		}, []string{"action"}),
		dispatchOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatch_dispatch_outcome_total",
			Help: "ディスパッチ結果別のイベント処理数",
		}, []string{"outcome"}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatch_remote_calls_total",
			Help: "Mailchimp API呼び出し数（操作・ステータス別）",
		}, []string{"operation", "status_code"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsdispatch_remote_call_latency_seconds",
			Help:    "Mailchimp API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		subscriberSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "newsdispatch_subscriber_sync_total",
			Help: "購読者同期の結果別件数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.webhookEvents,
		c.dispatchOutcome,
		c.remoteCalls,
		c.remoteLatency,
		c.subscriberSync,
	)

	return c
}

// RecordWebhookEvent は受信イベントを記録する。
func (c *Collector) RecordWebhookEvent(action string) {
	c.webhookEvents.WithLabelValues(action).Inc()
}

// RecordDispatchOutcome はディスパッチ結果を記録する。
func (c *Collector) RecordDispatchOutcome(outcome string) {
	c.dispatchOutcome.WithLabelValues(outcome).Inc()
}

// RecordRemoteCall はMailchimp API呼び出しを記録する。
// ネットワークエラーなどステータスがない場合は "error" ラベルで記録する。
func (c *Collector) RecordRemoteCall(operation string, statusCode int, duration time.Duration, err error) {
	status := strconv.Itoa(statusCode)
	if statusCode == 0 {
		status = "error"
	}
	c.remoteCalls.WithLabelValues(operation, status).Inc()
	c.remoteLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordSubscriberSync は購読者同期の結果を記録する。
func (c *Collector) RecordSubscriberSync(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.subscriberSync.WithLabelValues(result).Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストや未設定時に使う。
type NopCollector struct{}

func (NopCollector) RecordWebhookEvent(string) {}
func (NopCollector) RecordDispatchOutcome(string) {}
func (NopCollector) RecordRemoteCall(string, int, time.Duration, error) {}
func (NopCollector) RecordSubscriberSync(bool) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
