package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は収集結果から指定名のメトリクスファミリーを探すヘルパー。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// counterByLabel はラベル値ごとのカウンタ値をマップで返すヘルパー。
func counterByLabel(mf *dto.MetricFamily, labelName string) map[string]float64 {
	out := make(map[string]float64)
	for _, m := range mf.GetMetric() {
		for _, l := range m.GetLabel() {
			if l.GetName() == labelName {
				out[l.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordWebhookEvent_IncrementsCounterWithLabel はイベント種別ごとにカウントされることを検証する。
func TestRecordWebhookEvent_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("created")
	c.RecordWebhookEvent("updated")
	c.RecordWebhookEvent("updated")

	got := counterByLabel(findMetricFamily(t, reg, "newsdispatch_webhook_events_total"), "action")
	if got["created"] != 1 {
		t.Errorf("webhook_events_total{action=created} = %v, want 1", got["created"])
	}
	if got["updated"] != 2 {
		t.Errorf("webhook_events_total{action=updated} = %v, want 2", got["updated"])
	}
}

// TestRecordDispatchOutcome_IncrementsCounterWithLabel はディスパッチ結果がラベル付きで記録されることを検証する。
func TestRecordDispatchOutcome_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordDispatchOutcome("created")
	c.RecordDispatchOutcome("failed")
	c.RecordDispatchOutcome("failed")

	got := counterByLabel(findMetricFamily(t, reg, "newsdispatch_dispatch_outcome_total"), "outcome")
	if got["created"] != 1 || got["failed"] != 2 {
		t.Errorf("dispatch_outcome_total = %v, want created=1 failed=2", got)
	}
}

// TestRecordRemoteCall_StatusLabels はHTTPステータスとネットワークエラーが区別されることを検証する。
func TestRecordRemoteCall_StatusLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRemoteCall("create", 200, 100*time.Millisecond, nil)
	c.RecordRemoteCall("create", 429, 50*time.Millisecond, errors.New("rate limited"))
	c.RecordRemoteCall("create", 0, 2*time.Second, errors.New("dial tcp: timeout"))

	got := counterByLabel(findMetricFamily(t, reg, "newsdispatch_remote_calls_total"), "status_code")
	for _, label := range []string{"200", "429", "error"} {
		if got[label] != 1 {
			t.Errorf("remote_calls_total{status_code=%s} = %v, want 1", label, got[label])
		}
	}

	h := findMetricFamily(t, reg, "newsdispatch_remote_call_latency_seconds").GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 3 {
		t.Errorf("sample_count = %d, want 3", h.GetSampleCount())
	}
	// 合計は0.1 + 0.05 + 2.0 = 2.15秒
	if h.GetSampleSum() < 2.1 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.15", h.GetSampleSum())
	}
}

// TestRecordSubscriberSync_IncrementsCounter は購読者同期の成否がカウントされることを検証する。
func TestRecordSubscriberSync_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSubscriberSync(true)
	c.RecordSubscriberSync(true)
	c.RecordSubscriberSync(false)

	got := counterByLabel(findMetricFamily(t, reg, "newsdispatch_subscriber_sync_total"), "result")
	if got["success"] != 2 || got["failure"] != 1 {
		t.Errorf("subscriber_sync_total = %v, want success=2 failure=1", got)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("updated")
	c.RecordDispatchOutcome("updated")
	c.RecordRemoteCall("set_content", 200, 10*time.Millisecond, nil)
	c.RecordSubscriberSync(true)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"newsdispatch_webhook_events_total",
		"newsdispatch_dispatch_outcome_total",
		"newsdispatch_remote_calls_total",
		"newsdispatch_remote_call_latency_seconds",
		"newsdispatch_subscriber_sync_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
	var _ MetricsCollector = NopCollector{}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordDispatchOutcome("created")
	c2.RecordDispatchOutcome("created")
	c2.RecordDispatchOutcome("created")

	got1 := counterByLabel(findMetricFamily(t, reg1, "newsdispatch_dispatch_outcome_total"), "outcome")
	got2 := counterByLabel(findMetricFamily(t, reg2, "newsdispatch_dispatch_outcome_total"), "outcome")

	if got1["created"] != 1 {
		t.Errorf("reg1 created = %v, want 1", got1["created"])
	}
	if got2["created"] != 2 {
		t.Errorf("reg2 created = %v, want 2", got2["created"])
	}
}
