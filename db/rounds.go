package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/saltbet-bot/round"
)

// Close reasons stored with each round.
const (
	CloseAnnounced = "announced"
	CloseTimeout   = "timeout"
)

// RoundRecord is one closed round.
type RoundRecord struct {
	ID          uuid.UUID        `json:"id"`
	OpenedAt    time.Time        `json:"opened_at"`
	ClosedAt    time.Time        `json:"closed_at"`
	CloseReason string           `json:"close_reason"`
	Blue        round.TeamTotals `json:"blue"`
	Red         round.TeamTotals `json:"red"`
	OwnWager    *OwnWager        `json:"own_wager,omitempty"`
}

// OwnWager is the bot's committed wager for a recorded round.
type OwnWager struct {
	Team   string `json:"team"`
	Amount int64  `json:"amount"`
	Manual bool   `json:"manual"`
}

// NewRoundRecord builds a record from the snapshot taken just before close.
func NewRoundRecord(s round.Snapshot, closedAt time.Time, reason string) RoundRecord {
	r := RoundRecord{
		ID:          s.ID,
		OpenedAt:    s.OpenedAt,
		ClosedAt:    closedAt,
		CloseReason: reason,
		Blue:        s.Blue,
		Red:         s.Red,
	}
	if s.OwnWager != nil {
		r.OwnWager = &OwnWager{Team: s.OwnWager.Team.String(), Amount: s.OwnWager.Amount, Manual: s.OwnWager.Manual}
	}
	return r
}

// RoundStore keeps the history of closed rounds.
type RoundStore struct {
	DB *sql.DB
}

// NewRoundStore returns a RoundStore over database.
func NewRoundStore(database *sql.DB) *RoundStore {
	return &RoundStore{DB: database}
}

// RecordRound inserts r. Recording the same round twice keeps the first row.
func (s *RoundStore) RecordRound(ctx context.Context, r RoundRecord) error {
	var ownTeam sql.NullString
	var ownAmount sql.NullInt64
	manual := false
	if r.OwnWager != nil {
		ownTeam = sql.NullString{String: r.OwnWager.Team, Valid: true}
		ownAmount = sql.NullInt64{Int64: r.OwnWager.Amount, Valid: true}
		manual = r.OwnWager.Manual
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO rounds
		(id, opened_at, closed_at, close_reason, blue_stake, blue_bets, red_stake, red_bets, own_team, own_amount, own_manual)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.OpenedAt, r.ClosedAt, r.CloseReason,
		r.Blue.Stake, r.Blue.Bets, r.Red.Stake, r.Red.Bets,
		ownTeam, ownAmount, manual)
	if err != nil {
		return fmt.Errorf("record round %s: %w", r.ID, err)
	}
	return nil
}

// RecentRounds returns up to limit rounds, newest first.
func (s *RoundStore) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id, opened_at, closed_at, close_reason,
		blue_stake, blue_bets, red_stake, red_bets, own_team, own_amount, own_manual
		FROM rounds ORDER BY closed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var (
			r         RoundRecord
			ownTeam   sql.NullString
			ownAmount sql.NullInt64
			manual    bool
		)
		if err := rows.Scan(&r.ID, &r.OpenedAt, &r.ClosedAt, &r.CloseReason,
			&r.Blue.Stake, &r.Blue.Bets, &r.Red.Stake, &r.Red.Bets,
			&ownTeam, &ownAmount, &manual); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		if ownTeam.Valid {
			r.OwnWager = &OwnWager{Team: ownTeam.String, Amount: ownAmount.Int64, Manual: manual}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
