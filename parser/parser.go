// Package parser turns free-text messages from the betting bot into
// structured events. Recognition is driven by a Grammar, an ordered table of
// phrase rules, so a change in the upstream bot's wording is a change to one
// table rather than to the code that consumes events.
//
// Parsing is stateless: the parser never looks at or mutates the round.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/onnwee/saltbet-bot/round"
)

// MinAmount is the smallest stake a single bet contributes to the totals.
const MinAmount int64 = 2

// ErrMalformed is wrapped by every ParseError.
var ErrMalformed = errors.New("malformed line")

// ParseError reports a line that matched a rule but could not be turned into an event.
type ParseError struct {
	Rule   string
	Line   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s: %q", e.Rule, e.Reason, e.Line)
}

func (e *ParseError) Unwrap() error { return ErrMalformed }

// Event is one of BetPlaced or RoundClosed.
type Event interface {
	eventName() string
}

// BetPlaced is a confirmation that a user's bet was accepted.
type BetPlaced struct {
	User string
	Team round.Team
	// Amount is the clamped stake. It is zero when AllIn is set and the
	// caller has not resolved it yet.
	Amount int64
	// AllIn marks "you placed all of your ..." bets whose amount must be
	// looked up from the user's last known balance.
	AllIn bool
	// NewBalance is the user's balance after the bet, valid when HasBalance is set.
	NewBalance int64
	HasBalance bool
}

func (BetPlaced) eventName() string { return "bet_placed" }

// Bet converts the event into the round's bet type.
func (b BetPlaced) Bet() round.Bet {
	return round.Bet{User: b.User, Team: b.Team, Amount: b.Amount}
}

// Resolve returns a copy with the all-in amount filled in and clamped.
func (b BetPlaced) Resolve(amount int64) BetPlaced {
	b.Amount = Clamp(amount)
	return b
}

// RoundClosed announces that betting has ended. The caller ignores it when no
// round is open.
type RoundClosed struct {
	Phrase string
}

func (RoundClosed) eventName() string { return "round_closed" }

// Name returns a short identifier for logs and metrics.
func Name(e Event) string {
	if e == nil {
		return "none"
	}
	return e.eventName()
}

// Clamp raises amounts below MinAmount to MinAmount.
func Clamp(amount int64) int64 {
	if amount < MinAmount {
		return MinAmount
	}
	return amount
}

// Normalize lowercases text and strips the punctuation the betting bot uses
// inside numbers and at sentence ends.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.NewReplacer(".", "", ",", "").Replace(text)
}

// Parser applies a Grammar to lines.
type Parser struct {
	grammar Grammar
}

// New returns a parser for g. A nil grammar recognises nothing.
func New(g Grammar) *Parser {
	return &Parser{grammar: g}
}

// Parse normalizes raw and returns the event built by the first matching
// rule. Lines no rule matches return (nil, nil). Lines a rule matches but
// cannot build return a *ParseError.
func (p *Parser) Parse(raw string) (Event, error) {
	line := Normalize(raw)
	if line == "" {
		return nil, nil
	}
	for _, r := range p.grammar {
		if !r.Match(line) {
			continue
		}
		ev, err := r.Build(line)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				return nil, err
			}
			return nil, &ParseError{Rule: r.Name, Line: line, Reason: err.Error()}
		}
		return ev, nil
	}
	return nil, nil
}
