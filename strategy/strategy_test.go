package strategy

import (
	"math/rand"
	"testing"

	"github.com/onnwee/saltbet-bot/round"
)

func totals(stake int64) round.TeamTotals { return round.TeamTotals{Stake: stake, Bets: 1} }

func TestDecideTeam(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		name         string
		blue, red    int64
		want         round.Team
		wantFallback bool
	}{
		{"red trailing", 1000, 100, round.TeamRed, false},
		{"blue trailing", 100, 1000, round.TeamBlue, false},
		{"close odds fall back to blue (red trailing)", 100, 90, round.TeamBlue, true},
		{"close odds fall back to blue (blue trailing)", 90, 100, round.TeamBlue, true},
		{"exactly 0.80 is not close", 100, 80, round.TeamRed, false},
		{"tie falls back", 500, 500, round.TeamBlue, true},
		{"no stakes keeps trailing team", 0, 0, round.TeamRed, false},
		{"only red staked", 0, 700, round.TeamBlue, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(Input{Blue: totals(tt.blue), Red: totals(tt.red), Balance: 500000}, p, rng)
			if got.Team != tt.want {
				t.Errorf("team = %v, want %v", got.Team, tt.want)
			}
			if got.Fallback != tt.wantFallback {
				t.Errorf("fallback = %v, want %v", got.Fallback, tt.wantFallback)
			}
		})
	}
}

func TestDecideFallbackTeamConfigurable(t *testing.T) {
	p := DefaultParams()
	p.FallbackTeam = round.TeamRed
	got := Decide(Input{Blue: totals(90), Red: totals(100), Balance: 500000}, p, rand.New(rand.NewSource(2)))
	if got.Team != round.TeamRed || !got.Fallback {
		t.Errorf("got %+v, want red fallback", got)
	}
}

func TestStakeBounds(t *testing.T) {
	p := DefaultParams()
	rng := rand.New(rand.NewSource(42))
	balances := []int64{0, -5000, 50000, 100000, 100349, 100350, 103500, 105000, 110000, 115000, 1000000, 1 << 40}
	for _, balance := range balances {
		for i := 0; i < 200; i++ {
			stake := Stake(balance, p, rng)
			if stake < p.Floor || stake > p.Max {
				t.Fatalf("balance %d: stake %d outside [%d, %d]", balance, stake, p.Floor, p.Max)
			}
			if balance >= p.Reserve+p.Floor {
				if balance-stake < p.Reserve {
					t.Fatalf("balance %d: stake %d dips into reserve", balance, stake)
				}
			} else if stake != p.Floor {
				t.Fatalf("balance %d below reserve+floor: stake %d, want floor %d", balance, stake, p.Floor)
			}
		}
	}
}

func TestStakeCap(t *testing.T) {
	p := DefaultParams()
	p.Min, p.Max = 1500, 1500
	// 10% of (110000 - 100000) = 1000.
	if got := Stake(110000, p, rand.New(rand.NewSource(3))); got != 1000 {
		t.Errorf("Stake = %d, want 1000", got)
	}
	// Large balance leaves the candidate untouched.
	if got := Stake(10000000, p, nil); got != 1500 {
		t.Errorf("Stake = %d, want 1500", got)
	}
	// Cap below floor is lifted to the floor.
	if got := Stake(101000, p, nil); got != 350 {
		t.Errorf("Stake = %d, want 350", got)
	}
}

func TestCandidateInclusiveRange(t *testing.T) {
	p := DefaultParams()
	p.Min, p.Max = 500, 502
	seen := map[int64]bool{}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		c := candidate(p, rng)
		if c < 500 || c > 502 {
			t.Fatalf("candidate %d out of range", c)
		}
		seen[c] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected all of 500..502 drawn, saw %v", seen)
	}
}

func TestCandidateDefaultWhenRangeDisabled(t *testing.T) {
	p := DefaultParams()
	p.Min, p.Max = 0, 0
	if got := Stake(10000000, p, rand.New(rand.NewSource(1))); got != p.Default {
		t.Errorf("Stake = %d, want default %d", got, p.Default)
	}
}
