package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/saltbet-bot/telemetry"
)

// TickInput is everything Plan looks at.
type TickInput struct {
	Now time.Time

	Open         bool
	OpenedAt     time.Time
	OwnBetPlaced bool

	LastFarm  time.Time
	FarmDelay time.Duration

	BettingDelay     time.Duration
	MaxRoundDuration time.Duration
}

// TickPlan lists the actions one tick should take, executed in field order.
type TickPlan struct {
	Farm       bool
	ForceClose bool
	Bet        bool
}

// Plan decides what a tick does. The force-close check runs before the bet
// check and the bet check sees the round as closed when it was forced, so a
// stale round is never bet into.
func Plan(in TickInput) TickPlan {
	var p TickPlan
	p.Farm = in.Now.Sub(in.LastFarm) >= in.FarmDelay

	open := in.Open
	if open && in.Now.Sub(in.OpenedAt) >= in.MaxRoundDuration {
		p.ForceClose = true
		open = false
	}

	p.Bet = open && !in.OwnBetPlaced && in.Now.Sub(in.OpenedAt) >= in.BettingDelay
	return p
}

func (b *Bot) tickInput(now time.Time) TickInput {
	return TickInput{
		Now:              now,
		Open:             b.round.IsOpen(),
		OpenedAt:         b.round.OpenedAt(),
		OwnBetPlaced:     b.round.OwnBetPlaced(),
		LastFarm:         b.lastFarm,
		FarmDelay:        b.farmDelay,
		BettingDelay:     b.cfg.BettingDelay,
		MaxRoundDuration: b.cfg.MaxRoundDuration,
	}
}

// Tick runs one pass of the timer loop. It must be called from the loop goroutine.
func (b *Bot) Tick(ctx context.Context) TickPlan {
	now := b.clock.Now()
	plan := Plan(b.tickInput(now))

	if plan.Farm {
		b.farm(now)
	}
	if plan.ForceClose {
		b.closeRound(now, closeTimeout)
	}
	if plan.Bet {
		b.autoBet()
	}
	return plan
}

func (b *Bot) farm(now time.Time) {
	b.out.Say("!farm")
	b.lastFarm = now
	b.farmDelay = b.drawFarmDelay()
	telemetry.Inc(telemetry.FarmsDispatched)
	b.log.Info("farm queued", slog.Duration("next_in", b.farmDelay))
}

// drawFarmDelay picks the next farm delay uniformly from [FarmDelayMin, FarmDelayMax].
func (b *Bot) drawFarmDelay() time.Duration {
	lo, hi := b.cfg.FarmDelayMin, b.cfg.FarmDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(b.rng.Int63n(int64(hi-lo)+1))
}
