// Package stats publishes live round totals to external consumers.
//
// A Reporter fans every update out to a set of sinks. Each sink has its own
// small buffer and worker goroutine, so a slow or hung sink drops updates
// instead of stalling the bot's event loop. Delivery is best effort: failures
// are logged, counted and otherwise ignored.
package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/saltbet-bot/round"
	"github.com/onnwee/saltbet-bot/telemetry"
)

// TeamStats is one team's share of the live totals.
type TeamStats struct {
	Bets      int64 `json:"bets"`
	Mushrooms int64 `json:"mushrooms"`
}

// LiveStats is the published view of the current round.
type LiveStats struct {
	BettingOpen bool      `json:"betting_is_open"`
	Blue        TeamStats `json:"blue"`
	Red         TeamStats `json:"red"`

	// RoundID and At are carried for sinks that key or order messages; they
	// are not part of the JSON body.
	RoundID string    `json:"-"`
	At      time.Time `json:"-"`
}

type envelope struct {
	LiveStats LiveStats `json:"live_stats"`
}

// FromSnapshot builds LiveStats from a round snapshot.
func FromSnapshot(s round.Snapshot, at time.Time) LiveStats {
	l := LiveStats{
		BettingOpen: s.Open,
		Blue:        TeamStats{Bets: s.Blue.Bets, Mushrooms: s.Blue.Stake},
		Red:         TeamStats{Bets: s.Red.Bets, Mushrooms: s.Red.Stake},
		At:          at,
	}
	if s.Open {
		l.RoundID = s.ID.String()
	}
	return l
}

// Ended returns the final update for a round that just closed: zeroed totals
// with betting marked closed. RoundID and At are kept so keyed sinks can tie
// the update to the round it ends.
func (l LiveStats) Ended() LiveStats {
	return LiveStats{RoundID: l.RoundID, At: l.At}
}

// Marshal encodes l in the {"live_stats": {...}} wire format.
func Marshal(l LiveStats) ([]byte, error) {
	return json.Marshal(envelope{LiveStats: l})
}

// Unmarshal decodes the wire format produced by Marshal.
func Unmarshal(b []byte) (LiveStats, error) {
	var e envelope
	err := json.Unmarshal(b, &e)
	return e.LiveStats, err
}

// Sink receives live stats updates.
type Sink interface {
	Name() string
	Send(ctx context.Context, l LiveStats) error
}

// SinkFunc adapts a function into a Sink.
type SinkFunc struct {
	ID string
	Fn func(ctx context.Context, l LiveStats) error
}

func (s SinkFunc) Name() string { return s.ID }

func (s SinkFunc) Send(ctx context.Context, l LiveStats) error { return s.Fn(ctx, l) }

const (
	defaultBuffer  = 8
	defaultTimeout = 5 * time.Second
)

type worker struct {
	sink Sink
	ch   chan LiveStats
}

// Reporter fans updates out to sinks without blocking the publisher.
type Reporter struct {
	workers []*worker
	timeout time.Duration

	mu   sync.RWMutex
	last LiveStats
	wg   sync.WaitGroup
}

// NewReporter returns a Reporter over sinks. Nil sinks are skipped.
func NewReporter(sinks ...Sink) *Reporter {
	r := &Reporter{timeout: defaultTimeout}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		r.workers = append(r.workers, &worker{sink: s, ch: make(chan LiveStats, defaultBuffer)})
	}
	return r
}

// Start launches one worker per sink. Workers exit when ctx is cancelled.
func (r *Reporter) Start(ctx context.Context) {
	for _, w := range r.workers {
		r.wg.Add(1)
		go r.run(ctx, w)
	}
}

// Wait blocks until every worker has exited.
func (r *Reporter) Wait() { r.wg.Wait() }

// Publish queues l for every sink. It never blocks; a sink whose buffer is
// full misses this update.
func (r *Reporter) Publish(l LiveStats) {
	r.mu.Lock()
	r.last = l
	r.mu.Unlock()
	for _, w := range r.workers {
		select {
		case w.ch <- l:
		default:
			telemetry.Inc(telemetry.StatsDropped)
			slog.Debug("live stats dropped", slog.String("sink", w.sink.Name()), slog.String("component", "stats"))
		}
	}
}

// Last returns the most recently published update.
func (r *Reporter) Last() LiveStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

func (r *Reporter) run(ctx context.Context, w *worker) {
	defer r.wg.Done()
	gateway := "stats_" + w.sink.Name()
	for {
		select {
		case <-ctx.Done():
			return
		case l := <-w.ch:
			sendCtx, cancel := context.WithTimeout(ctx, r.timeout)
			err := telemetry.TraceGateway(sendCtx, gateway, "send", func(ctx context.Context) error {
				return w.sink.Send(ctx, l)
			})
			cancel()
			if err != nil {
				slog.Warn("live stats publish failed", slog.String("sink", w.sink.Name()), slog.Any("err", err), slog.String("component", "stats"))
			}
		}
	}
}
