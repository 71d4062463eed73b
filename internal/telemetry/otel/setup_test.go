package otel

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewProviders_EmptyEndpointIsNoop(t *testing.T) {
	p, err := NewProviders(context.Background(), "", "atg-test", false)
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	if p.TracerProvider == nil || p.MeterProvider == nil {
		t.Fatal("expected non-nil providers")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestNewProviders_MissingHost(t *testing.T) {
	if _, err := NewProviders(context.Background(), "http://", "atg-test", false); err == nil {
		t.Fatal("expected error for endpoint without host")
	}
}

func TestCounters_Record(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	c, err := NewCounters(mp)
	if err != nil {
		t.Fatalf("NewCounters: %v", err)
	}

	c.IncAttempt(false)
	c.IncAttempt(false)
	c.IncAlert("BRUTE_FORCE", "CRITICAL")
	c.IncBlocked()
	c.IncDecision("withdraw", true)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			got[m.Name] = true
		}
	}
	for _, name := range []string{"atg.login_attempts", "atg.alerts", "atg.blocked_sources", "atg.policy_decisions"} {
		if !got[name] {
			t.Fatalf("expected metric %s to be recorded, got %v", name, got)
		}
	}
}
