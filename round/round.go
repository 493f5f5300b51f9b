// Package round tracks the state of the current betting round: per-team
// totals, when the round opened, and whether this account already has a wager
// in it. A round is open exactly while either team has a positive stake.
//
// Round is not safe for concurrent use. It is owned by the bot event loop.
package round

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Team identifies one side of a round.
type Team int

const (
	// TeamBlue is team "A", the default side.
	TeamBlue Team = iota
	// TeamRed is team "B".
	TeamRed
)

// String returns the chat name of the team.
func (t Team) String() string {
	switch t {
	case TeamRed:
		return "red"
	default:
		return "blue"
	}
}

// Other returns the opposing team.
func (t Team) Other() Team {
	if t == TeamRed {
		return TeamBlue
	}
	return TeamRed
}

// ParseTeam maps "blue"/"a" and "red"/"b" (any case) to a Team.
func ParseTeam(s string) (Team, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blue", "a":
		return TeamBlue, nil
	case "red", "b":
		return TeamRed, nil
	default:
		return TeamBlue, fmt.Errorf("unknown team %q", s)
	}
}

// TeamTotals is the aggregate of all bets placed on one team this round.
type TeamTotals struct {
	Stake int64 `json:"mushrooms"`
	Bets  int64 `json:"bets"`
}

// Bet is one accepted wager as seen in chat, with its amount already resolved.
type Bet struct {
	User   string
	Team   Team
	Amount int64
}

// Wager is the bet this account committed to in the current round.
type Wager struct {
	Team   Team
	Amount int64
	// Manual is set when the wager was typed in chat rather than dispatched by the bot.
	Manual bool
}

// Snapshot is a read-only copy of the round state.
type Snapshot struct {
	ID           uuid.UUID
	Open         bool
	Blue         TeamTotals
	Red          TeamTotals
	OpenedAt     time.Time
	OwnBetPlaced bool
	OwnWager     *Wager
}

// Totals returns the totals of the given team.
func (s Snapshot) Totals(t Team) TeamTotals {
	if t == TeamRed {
		return s.Red
	}
	return s.Blue
}

// Round is the current betting round.
type Round struct {
	self string

	id           uuid.UUID
	blue, red    TeamTotals
	openedAt     time.Time
	ownBetPlaced bool
	ownWager     *Wager
}

// New returns a closed round. self is this account's login, compared
// case-insensitively against bet authors.
func New(self string) *Round {
	return &Round{self: strings.ToLower(strings.TrimPrefix(self, "@"))}
}

// IsOpen reports whether betting is currently open.
func (r *Round) IsOpen() bool { return r.blue.Stake > 0 || r.red.Stake > 0 }

// ID identifies the open round. It is the zero UUID before the first round opens.
func (r *Round) ID() uuid.UUID { return r.id }

// OpenedAt returns the time the current round opened.
func (r *Round) OpenedAt() time.Time { return r.openedAt }

// Elapsed returns how long the current round has been open, or zero when closed.
func (r *Round) Elapsed(now time.Time) time.Duration {
	if !r.IsOpen() {
		return 0
	}
	return now.Sub(r.openedAt)
}

// OwnBetPlaced reports whether this account already bet (or tried to) this round.
func (r *Round) OwnBetPlaced() bool { return r.ownBetPlaced }

// IsSelf reports whether user is this account.
func (r *Round) IsSelf(user string) bool {
	return r.self != "" && strings.EqualFold(strings.TrimPrefix(user, "@"), r.self)
}

// ApplyBetPlaced adds a bet to the totals, opening the round first if it was
// closed. It reports whether the bet opened a new round. Amounts below 1 are
// ignored so the open invariant cannot be broken by a degenerate bet.
func (r *Round) ApplyBetPlaced(b Bet, now time.Time) (opened bool) {
	if b.Amount <= 0 {
		return false
	}
	if !r.IsOpen() {
		r.openedAt = now
		r.id = uuid.New()
		opened = true
	}
	t := r.totals(b.Team)
	t.Stake = addStake(t.Stake, b.Amount)
	t.Bets++
	if r.IsSelf(b.User) {
		r.MarkOwnBet(Wager{Team: b.Team, Amount: b.Amount})
	}
	return opened
}

// MarkOwnBet records this account's wager so the bot does not bet again.
func (r *Round) MarkOwnBet(w Wager) {
	r.ownBetPlaced = true
	r.ownWager = &w
}

// ApplyRoundClosed resets the round to the closed state. It is idempotent and
// reports whether an open round was actually closed.
func (r *Round) ApplyRoundClosed() bool {
	wasOpen := r.IsOpen()
	r.blue = TeamTotals{}
	r.red = TeamTotals{}
	r.ownBetPlaced = false
	r.ownWager = nil
	return wasOpen
}

// ForceTimeout closes the round when it has been open for at least maxAge.
// It guards against the betting bot never announcing the close.
func (r *Round) ForceTimeout(now time.Time, maxAge time.Duration) bool {
	if !r.IsOpen() || now.Sub(r.openedAt) < maxAge {
		return false
	}
	return r.ApplyRoundClosed()
}

// Snapshot returns a copy of the current state.
func (r *Round) Snapshot() Snapshot {
	s := Snapshot{
		ID:           r.id,
		Open:         r.IsOpen(),
		Blue:         r.blue,
		Red:          r.red,
		OpenedAt:     r.openedAt,
		OwnBetPlaced: r.ownBetPlaced,
	}
	if r.ownWager != nil {
		w := *r.ownWager
		s.OwnWager = &w
	}
	return s
}

// addStake adds a positive amount, saturating at math.MaxInt64 so hostile
// amounts cannot wrap a total negative.
func addStake(total, amount int64) int64 {
	if amount > math.MaxInt64-total {
		return math.MaxInt64
	}
	return total + amount
}

func (r *Round) totals(t Team) *TeamTotals {
	if t == TeamRed {
		return &r.red
	}
	return &r.blue
}
