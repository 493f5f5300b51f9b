// Package strategy decides which team to back and how much to stake.
// Decide is a pure function of the round totals, the cached balance and a
// random source; degenerate inputs are clamped rather than reported.
package strategy

import (
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/onnwee/saltbet-bot/round"
)

// Params tunes the heuristic.
type Params struct {
	// Floor is the smallest stake ever placed.
	Floor int64
	// Min and Max bound the random candidate stake (inclusive). When both
	// are zero the candidate is Default.
	Min, Max int64
	Default  int64
	// Reserve is the balance the bot tries to keep untouched.
	Reserve int64
	// MaxFraction caps the stake to this share of the balance above Reserve.
	MaxFraction decimal.Decimal
	// CloseOddsRatio is the trailing/leading stake ratio above which the
	// round counts as balanced and FallbackTeam is backed instead.
	CloseOddsRatio decimal.Decimal
	FallbackTeam   round.Team
}

// DefaultParams returns the stock tuning.
func DefaultParams() Params {
	return Params{
		Floor:          350,
		Min:            500,
		Max:            1500,
		Default:        1234,
		Reserve:        100000,
		MaxFraction:    decimal.NewFromFloat(0.1),
		CloseOddsRatio: decimal.NewFromFloat(0.80),
		FallbackTeam:   round.TeamBlue,
	}
}

// Input is what the engine knows about the world.
type Input struct {
	Blue, Red round.TeamTotals
	Balance   int64
}

// Intent is a wager the bot wants to place.
type Intent struct {
	Team   round.Team
	Amount int64
	// Fallback is set when the balanced-odds override picked the team.
	Fallback bool
}

// Decide picks the trailing team (or FallbackTeam when stakes are close)
// and a stake drawn from [Min, Max], capped to keep Reserve, never below Floor.
func Decide(in Input, p Params, rng *rand.Rand) Intent {
	// Ties leave blue leading, so red is backed.
	trailing := round.TeamRed
	leadStake, trailStake := in.Blue.Stake, in.Red.Stake
	if in.Red.Stake > in.Blue.Stake {
		trailing = round.TeamBlue
		leadStake, trailStake = in.Red.Stake, in.Blue.Stake
	}

	intent := Intent{Team: trailing}
	if leadStake > 0 {
		ratio := decimal.NewFromInt(trailStake).Div(decimal.NewFromInt(leadStake))
		if ratio.GreaterThan(p.CloseOddsRatio) {
			intent.Team = p.FallbackTeam
			intent.Fallback = true
		}
	}

	intent.Amount = Stake(in.Balance, p, rng)
	return intent
}

// Stake draws a candidate from [Min, Max] and applies the reserve cap and floor.
func Stake(balance int64, p Params, rng *rand.Rand) int64 {
	stake := candidate(p, rng)
	maxBet := decimal.NewFromInt(balance - p.Reserve).Mul(p.MaxFraction).Floor().IntPart()
	if stake > maxBet {
		stake = maxBet
	}
	if stake < p.Floor || stake <= 0 {
		stake = p.Floor
	}
	return stake
}

func candidate(p Params, rng *rand.Rand) int64 {
	if p.Min == 0 && p.Max == 0 {
		return p.Default
	}
	lo, hi := p.Min, p.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if rng == nil || hi == lo {
		return lo
	}
	return lo + rng.Int63n(hi-lo+1)
}
