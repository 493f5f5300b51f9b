package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// BalanceStore persists the last known mushroom balance of each chat user.
type BalanceStore struct {
	DB *sql.DB
}

// NewBalanceStore returns a BalanceStore over database.
func NewBalanceStore(database *sql.DB) *BalanceStore {
	return &BalanceStore{DB: database}
}

func normUser(user string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(user), "@"))
}

// GetBalance returns the stored balance for user, or ErrNotFound.
func (s *BalanceStore) GetBalance(ctx context.Context, user string) (int64, error) {
	var balance int64
	err := s.DB.QueryRowContext(ctx, `SELECT balance FROM balances WHERE username=$1`, normUser(user)).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", user, err)
	}
	return balance, nil
}

// SetBalance upserts the balance for user. Last write wins.
func (s *BalanceStore) SetBalance(ctx context.Context, user string, balance int64) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO balances (username, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO UPDATE SET balance=EXCLUDED.balance, updated_at=NOW()`, normUser(user), balance)
	if err != nil {
		return fmt.Errorf("set balance %s: %w", user, err)
	}
	return nil
}
