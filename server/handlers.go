package server

import (
	"context"

	"github.com/onnwee/saltbet-bot/db"
	"github.com/onnwee/saltbet-bot/stats"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RoundLister returns closed rounds, newest first.
type RoundLister interface {
	RecentRounds(ctx context.Context, limit int) ([]db.RoundRecord, error)
}

// LiveSource returns the latest live stats update.
type LiveSource interface {
	Last() stats.LiveStats
}

// Deps are the collaborators behind the HTTP routes. Any of them may be nil;
// routes whose collaborator is missing answer 503.
type Deps struct {
	DB     Pinger
	Rounds RoundLister
	Live   LiveSource
	Hub    *Hub
	// MigrationVersion reports the schema version for /readyz.
	MigrationVersion func() (version uint, dirty bool, err error)
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}
