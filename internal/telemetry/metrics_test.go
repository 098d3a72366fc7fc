package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetricsWith(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	if m.VerdictTotal == nil {
		t.Error("VerdictTotal should not be nil")
	}
	if m.SourceOutcomeTotal == nil {
		t.Error("SourceOutcomeTotal should not be nil")
	}
	if m.UpstreamDurationMs == nil {
		t.Error("UpstreamDurationMs should not be nil")
	}
	if m.ModerationDurationMs == nil {
		t.Error("ModerationDurationMs should not be nil")
	}
	if m.CacheLookupTotal == nil {
		t.Error("CacheLookupTotal should not be nil")
	}
}

func TestRecordVerdict(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg)

	m.RecordVerdict("FLAG", 120)
	m.RecordVerdict("FLAG", 80)
	m.RecordVerdict("APPROVE", 10)

	if v := counterValue(t, m.VerdictTotal.WithLabelValues("FLAG")); v != 2 {
		t.Errorf("expected 2 FLAG verdicts, got %v", v)
	}
	if v := counterValue(t, m.VerdictTotal.WithLabelValues("APPROVE")); v != 1 {
		t.Errorf("expected 1 APPROVE verdict, got %v", v)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == "moderation_duration_ms" {
			if c := f.GetMetric()[0].GetHistogram().GetSampleCount(); c != 3 {
				t.Errorf("expected 3 duration samples, got %d", c)
			}
			return
		}
	}
	t.Error("moderation_duration_ms not gathered")
}

func TestRecordSource(t *testing.T) {
	m := NewMetricsWith(prometheus.NewRegistry())

	m.RecordSource("text-model", OutcomeFailed)
	m.RecordSource("text-model", OutcomeOK)
	m.RecordSource("text-model", OutcomeOK)

	if v := counterValue(t, m.SourceOutcomeTotal.WithLabelValues("text-model", OutcomeOK)); v != 2 {
		t.Errorf("expected 2 ok outcomes, got %v", v)
	}
	if v := counterValue(t, m.SourceOutcomeTotal.WithLabelValues("text-model", OutcomeFailed)); v != 1 {
		t.Errorf("expected 1 failed outcome, got %v", v)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordVerdict("APPROVE", 1)
	m.RecordSource("lexical", OutcomeOK)
	m.RecordUpstream("openai", "ok", 1)
	m.RecordCacheLookup("hit")
}
