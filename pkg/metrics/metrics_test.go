package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestPaystackMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaystackMetrics(reg)

	m.IncDelivery("charge.success", "applied")
	m.IncDelivery("charge.success", "applied")
	m.IncDelivery("invoice.update", "ignored")
	m.IncSignatureFailure()
	m.IncInitialization("success")
	m.ObservePaystackRequest("transaction_initialize", 150*time.Millisecond, errors.New("boom"))

	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("charge.success", "applied")); got != 2 {
		t.Fatalf("expected 2 applied deliveries, got %f", got)
	}
	if got := testutil.ToFloat64(m.deliveries.WithLabelValues("other", "ignored")); got != 1 {
		t.Fatalf("expected unknown event folded into other, got %f", got)
	}
	if got := testutil.ToFloat64(m.signatureFailures); got != 1 {
		t.Fatalf("expected 1 signature failure, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "subscription_initializations_total", "result", "success"); err != nil {
		t.Fatalf("fetch initializations: %v", err)
	} else if got != 1 {
		t.Fatalf("expected initializations=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "paystack_request_duration_seconds", "operation", "transaction_initialize"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *PaystackMetrics
	m.IncDelivery("charge.success", "applied")
	m.IncSignatureFailure()
	m.IncInitialization("failure")
	m.ObservePaystackRequest("x", time.Second, nil)

	unregistered := NewPaystackMetrics(nil)
	unregistered.IncDelivery("charge.success", "applied")

	var o *OutboxMetrics
	o.IncPublished("subscription_status_changed")
	o.IncFailed("subscription_status_changed", true)
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewOutboxMetrics(reg)
	o.IncPublished("subscription_status_changed")
	o.IncFailed("subscription_status_changed", false)
	o.IncFailed("subscription_status_changed", true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_events_published_total", "event_type", "subscription_status_changed"); err != nil || got != 1 {
		t.Fatalf("expected one published event, got %f (%v)", got, err)
	}
	if got := testutil.ToFloat64(o.failed.WithLabelValues("subscription_status_changed", "true")); got != 1 {
		t.Fatalf("expected one terminal failure, got %f", got)
	}
}

func TestJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	j := NewJobMetrics(reg)
	j.ObserveRun("outbox-retention", 20*time.Millisecond, nil)
	j.ObserveRun("outbox-retention", 10*time.Millisecond, errors.New("boom"))
	j.AddRowsDeleted("outbox-retention", 7)
	j.AddRowsDeleted("outbox-retention", 0)

	if got := testutil.ToFloat64(j.runs.WithLabelValues("outbox-retention", "success")); got != 1 {
		t.Fatalf("expected one successful run, got %f", got)
	}
	if got := testutil.ToFloat64(j.runs.WithLabelValues("outbox-retention", "failure")); got != 1 {
		t.Fatalf("expected one failed run, got %f", got)
	}
	if got := testutil.ToFloat64(j.rows.WithLabelValues("outbox-retention")); got != 7 {
		t.Fatalf("expected 7 rows deleted, got %f", got)
	}

	var nilJobs *JobMetrics
	nilJobs.ObserveRun("x", time.Second, nil)
	nilJobs.AddRowsDeleted("x", 1)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
