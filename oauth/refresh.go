// Package oauth keeps the stored chat OAuth token fresh. A Refresher wakes up
// with jitter, and when the token in oauth_tokens is about to expire it calls a
// provider refresh function, persists the result and notifies a callback
// (the chat client swaps its IRC password).
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/saltbet-bot/db"
	"github.com/onnwee/saltbet-bot/telemetry"
)

// Store is the token persistence the refresher needs. *db.TokenStore satisfies it.
type Store interface {
	Get(ctx context.Context, provider string) (db.Token, error)
	Upsert(ctx context.Context, provider string, t db.Token) error
}

// RefreshFunc exchanges a refresh token for a new token.
type RefreshFunc func(ctx context.Context, refreshToken string) (db.Token, error)

// Refresher refreshes one provider's token.
type Refresher struct {
	store     Store
	provider  string
	window    time.Duration
	refresh   RefreshFunc
	onRefresh func(db.Token)
	now       func() time.Time
	log       *slog.Logger
}

// NewRefresher returns a Refresher that refreshes when the remaining lifetime
// is at most window (default 15m).
func NewRefresher(store Store, provider string, window time.Duration, fn RefreshFunc) *Refresher {
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &Refresher{
		store:    store,
		provider: provider,
		window:   window,
		refresh:  fn,
		now:      time.Now,
		log:      slog.Default().With(slog.String("component", "oauth"), slog.String("provider", provider)),
	}
}

// OnRefresh registers fn to receive every refreshed token.
func (r *Refresher) OnRefresh(fn func(db.Token)) { r.onRefresh = fn }

// Check refreshes the token when it is inside the window. It reports whether
// a refresh happened. A missing row or a row without refresh token is not an error.
func (r *Refresher) Check(ctx context.Context) (bool, error) {
	cur, err := r.store.Get(ctx, r.provider)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if cur.Refresh == "" {
		return false, nil
	}
	if !cur.Expiry.IsZero() && cur.Expiry.Sub(r.now()) > r.window {
		return false, nil
	}

	var next db.Token
	err = telemetry.TraceGateway(ctx, "oauth", "refresh", func(ctx context.Context) error {
		rctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		var err error
		next, err = r.refresh(rctx, cur.Refresh)
		return err
	})
	if err != nil {
		return false, err
	}
	if next.Refresh == "" {
		next.Refresh = cur.Refresh
	}
	if next.Scope == "" {
		next.Scope = cur.Scope
	}
	if err := r.store.Upsert(ctx, r.provider, next); err != nil {
		return false, err
	}
	if r.onRefresh != nil {
		r.onRefresh(next)
	}
	r.log.Info("token refreshed", slog.Time("expires_at", next.Expiry))
	return true, nil
}

// Start launches the check loop. interval defaults to 5m; each sleep is
// jittered by ±20% and the first one by up to half an interval.
func (r *Refresher) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	//nolint:gosec // G404: scheduling jitter, not security sensitive
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	initial := time.Duration(rng.Int63n(int64(interval/2) + 1))
	go func() {
		sleep := initial
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleep):
			}
			if _, err := r.Check(ctx); err != nil && ctx.Err() == nil {
				r.log.Warn("token refresh failed", slog.Any("err", err))
			}
			sleep = jitter(interval, rng)
		}
	}()
}

func jitter(interval time.Duration, rng *rand.Rand) time.Duration {
	spread := int64(interval / 5)
	if spread <= 0 {
		return interval
	}
	d := interval + time.Duration(rng.Int63n(spread*2)-spread)
	if d < interval/2 {
		d = interval / 2
	}
	return d
}
