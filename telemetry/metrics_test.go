package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsInitialized(t *testing.T) {
	Init()
	Init() // idempotent

	if BetsObserved == nil || ParseFailures == nil || GatewayFailures == nil || RoundsClosed == nil {
		t.Fatal("counters not initialized")
	}
	if GatewayDuration == nil || RoundDuration == nil {
		t.Fatal("histograms not initialized")
	}
	if TeamStake == nil || BettingOpen == nil || OwnBalance == nil {
		t.Fatal("gauges not initialized")
	}
}

func TestSetTotals(t *testing.T) {
	Init()

	SetTotals(true, 1500, 3, 700, 2)
	if v := gaugeValue(t, BettingOpen); v != 1 {
		t.Errorf("betting_open = %v, want 1", v)
	}
	if v := gaugeValue(t, TeamStake.WithLabelValues("blue")); v != 1500 {
		t.Errorf("blue stake = %v, want 1500", v)
	}
	if v := gaugeValue(t, TeamBets.WithLabelValues("red")); v != 2 {
		t.Errorf("red bets = %v, want 2", v)
	}

	SetTotals(false, 0, 0, 0, 0)
	if v := gaugeValue(t, BettingOpen); v != 0 {
		t.Errorf("betting_open = %v, want 0", v)
	}
}

func TestGatewayFailed(t *testing.T) {
	Init()

	c := GatewayFailures.WithLabelValues("test_gateway")
	before := counterValue(t, c)
	GatewayFailed("test_gateway")
	GatewayFailed("test_gateway")
	if got := counterValue(t, c) - before; got != 2 {
		t.Errorf("gateway failures delta = %v, want 2", got)
	}
	ObserveGateway("test_gateway", 20*time.Millisecond)
}

func TestRoundClosedCountsReason(t *testing.T) {
	Init()

	c := RoundsClosed.WithLabelValues("timeout")
	before := counterValue(t, c)
	RoundClosed("timeout", 330*time.Second)
	if got := counterValue(t, c) - before; got != 1 {
		t.Errorf("timeout closes delta = %v, want 1", got)
	}
}

func TestTimeFuncRecordsObservation(t *testing.T) {
	testHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_duration_seconds",
		Help:    "Test duration",
		Buckets: prometheus.DefBuckets,
	})

	executed := false
	duration := TimeFunc(testHistogram, func() {
		time.Sleep(10 * time.Millisecond)
		executed = true
	})

	if !executed {
		t.Error("TimeFunc did not execute provided function")
	}
	if duration < 10*time.Millisecond {
		t.Errorf("TimeFunc duration = %v, want >= 10ms", duration)
	}

	metric := &dto.Metric{}
	if err := testHistogram.Write(metric); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() == 0 {
		t.Error("TimeFunc did not record observation in histogram")
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("empty context corr = %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Errorf("corr = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
