package parser

import (
	"errors"
	"strconv"
	"strings"

	"github.com/onnwee/saltbet-bot/round"
)

// Rule recognises one shape of message. Match and Build receive the
// normalized line.
type Rule struct {
	Name  string
	Match func(line string) bool
	Build func(line string) (Event, error)
}

// Grammar is evaluated in order; the first matching rule wins.
type Grammar []Rule

// Marker assigns a bet to Team when Substr occurs in the line.
type Marker struct {
	Team   round.Team
	Substr string
}

// Policy holds the heuristics that tie the betting bot's wording to events.
type Policy struct {
	// BetPhrase precedes the amount token in a bet confirmation.
	BetPhrase string
	// BalancePhrase precedes the user's new balance.
	BalancePhrase string
	// AllToken is the amount token for all-in bets.
	AllToken string
	// Markers are checked in order; the first present decides the team.
	Markers []Marker
	// DefaultTeam is used when no marker is present.
	DefaultTeam round.Team
	// ClosingPhrases announce the end of betting.
	ClosingPhrases []string
}

// DefaultPolicy matches messages such as
//
//	@user You placed 500 mushrooms on RED. Your new balance is 5,956 mushrooms.
//	@user You placed all of your mushrooms on RED.
//	Betting has ended
func DefaultPolicy() Policy {
	return Policy{
		BetPhrase:      "you placed ",
		BalancePhrase:  "new balance is ",
		AllToken:       "all",
		Markers:        []Marker{{Team: round.TeamRed, Substr: " red"}, {Team: round.TeamBlue, Substr: " blue"}},
		DefaultTeam:    round.TeamBlue,
		ClosingPhrases: []string{"betting has ended", "has closed", "not available"},
	}
}

// DefaultGrammar builds the bet and close rules for p.
func DefaultGrammar(p Policy) Grammar {
	return Grammar{
		{
			Name:  "bet_placed",
			Match: func(line string) bool { return strings.Contains(line, p.BetPhrase) },
			Build: p.buildBetPlaced,
		},
		{
			Name:  "round_closed",
			Match: func(line string) bool { return p.closingPhrase(line) != "" },
			Build: func(line string) (Event, error) {
				return RoundClosed{Phrase: p.closingPhrase(line)}, nil
			},
		},
	}
}

func (p Policy) closingPhrase(line string) string {
	for _, phrase := range p.ClosingPhrases {
		if phrase != "" && strings.Contains(line, phrase) {
			return phrase
		}
	}
	return ""
}

func (p Policy) team(line string) round.Team {
	for _, m := range p.Markers {
		if m.Substr != "" && strings.Contains(line, m.Substr) {
			return m.Team
		}
	}
	return p.DefaultTeam
}

func (p Policy) buildBetPlaced(line string) (Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.New("empty line")
	}
	user := strings.TrimPrefix(fields[0], "@")
	if user == "" {
		return nil, errors.New("missing user")
	}
	_, rest, _ := strings.Cut(line, p.BetPhrase)
	tokens := strings.Fields(rest)
	if len(tokens) == 0 {
		return nil, &ParseError{Rule: "bet_placed", Line: line, Reason: "missing amount"}
	}

	ev := BetPlaced{User: user, Team: p.team(line)}
	if tokens[0] == p.AllToken {
		// Everything was wagered, so the balance left is zero.
		ev.AllIn = true
		ev.HasBalance = true
		return ev, nil
	}

	amount, err := strconv.ParseInt(tokens[0], 10, 64)
	if err != nil {
		return nil, &ParseError{Rule: "bet_placed", Line: line, Reason: "non-numeric amount " + strconv.Quote(tokens[0])}
	}
	ev.Amount = Clamp(amount)

	if _, after, ok := strings.Cut(line, p.BalancePhrase); ok {
		if bal := strings.Fields(after); len(bal) > 0 {
			if n, err := strconv.ParseInt(bal[0], 10, 64); err == nil {
				ev.NewBalance = n
				ev.HasBalance = true
			}
		}
	}
	return ev, nil
}
