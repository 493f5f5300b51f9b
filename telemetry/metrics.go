// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	BetsObserved    prometheus.Counter
	BetsDispatched  prometheus.Counter
	FarmsDispatched prometheus.Counter
	RoundsOpened    prometheus.Counter
	RoundsClosed    *prometheus.CounterVec // reason=announced|timeout
	ParseFailures   prometheus.Counter
	GatewayFailures *prometheus.CounterVec // gateway=balances|rounds|stats_http|...
	StatsDropped    prometheus.Counter

	// Histograms (seconds)
	GatewayDuration *prometheus.HistogramVec
	RoundDuration   prometheus.Observer

	// Gauges
	TeamStake   *prometheus.GaugeVec // team=blue|red
	TeamBets    *prometheus.GaugeVec
	BettingOpen prometheus.Gauge // 1=open,0=closed
	OwnBalance  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		BetsObserved = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_bets_observed_total", Help: "Number of bet confirmations applied to the round"})
		BetsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_bets_dispatched_total", Help: "Number of own bet commands queued for chat"})
		FarmsDispatched = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_farms_dispatched_total", Help: "Number of farm commands queued for chat"})
		RoundsOpened = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_rounds_opened_total", Help: "Number of betting rounds opened"})
		RoundsClosed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "saltbet_rounds_closed_total", Help: "Number of betting rounds closed by reason"}, []string{"reason"})
		ParseFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_parse_failures_total", Help: "Recognised chat lines that could not be parsed"})
		GatewayFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "saltbet_gateway_failures_total", Help: "Failed persistence or stats gateway calls"}, []string{"gateway"})
		StatsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "saltbet_stats_dropped_total", Help: "Live stats updates dropped because a sink was busy"})
		GatewayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "saltbet_gateway_duration_seconds", Help: "Gateway call duration seconds", Buckets: prometheus.DefBuckets}, []string{"gateway"})
		RoundDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "saltbet_round_duration_seconds", Help: "Time a round stayed open", Buckets: []float64{30, 60, 90, 120, 145, 180, 240, 330, 600}})
		TeamStake = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "saltbet_team_stake", Help: "Mushrooms staked on a team in the current round"}, []string{"team"})
		TeamBets = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "saltbet_team_bets", Help: "Bets placed on a team in the current round"}, []string{"team"})
		BettingOpen = promauto.NewGauge(prometheus.GaugeOpts{Name: "saltbet_betting_open", Help: "Betting open=1 closed=0"})
		OwnBalance = promauto.NewGauge(prometheus.GaugeOpts{Name: "saltbet_own_balance", Help: "Last known balance of the bot account"})
	})
}

// GatewayFailed counts a failed gateway call. Safe before Init.
func GatewayFailed(gateway string) {
	if GatewayFailures != nil {
		GatewayFailures.WithLabelValues(gateway).Inc()
	}
}

// ObserveGateway records a gateway call duration. Safe before Init.
func ObserveGateway(gateway string, d time.Duration) {
	if GatewayDuration != nil {
		GatewayDuration.WithLabelValues(gateway).Observe(d.Seconds())
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// RoundClosed counts a close with the given reason and records how long the round stayed open.
func RoundClosed(reason string, open time.Duration) {
	if RoundsClosed != nil {
		RoundsClosed.WithLabelValues(reason).Inc()
	}
	if RoundDuration != nil && open > 0 {
		RoundDuration.Observe(open.Seconds())
	}
}

// SetTotals mirrors the live round totals into gauges.
func SetTotals(open bool, blueStake, blueBets, redStake, redBets int64) {
	if BettingOpen == nil {
		return
	}
	if open {
		BettingOpen.Set(1)
	} else {
		BettingOpen.Set(0)
	}
	TeamStake.WithLabelValues("blue").Set(float64(blueStake))
	TeamStake.WithLabelValues("red").Set(float64(redStake))
	TeamBets.WithLabelValues("blue").Set(float64(blueBets))
	TeamBets.WithLabelValues("red").Set(float64(redBets))
}

// SetBalance records the bot account's balance.
func SetBalance(n int64) {
	if OwnBalance != nil {
		OwnBalance.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
