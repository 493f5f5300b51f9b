package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"

	"github.com/onnwee/saltbet-bot/chat"
	"github.com/onnwee/saltbet-bot/console"
	"github.com/onnwee/saltbet-bot/db"
	"github.com/onnwee/saltbet-bot/parser"
	"github.com/onnwee/saltbet-bot/round"
	"github.com/onnwee/saltbet-bot/stats"
	"github.com/onnwee/saltbet-bot/strategy"
	"github.com/onnwee/saltbet-bot/telemetry"
)

const (
	closeAnnounced = db.CloseAnnounced
	closeTimeout   = db.CloseTimeout
)

// Balances is the persistence gateway for user balances.
type Balances interface {
	GetBalance(ctx context.Context, user string) (int64, error)
	SetBalance(ctx context.Context, user string, balance int64) error
}

// RoundRecorder stores closed rounds.
type RoundRecorder interface {
	RecordRound(ctx context.Context, r db.RoundRecord) error
}

// Publisher receives live stats. Publish must not block.
type Publisher interface {
	Publish(l stats.LiveStats)
}

// Sayer queues a chat line for the tracked channel.
type Sayer interface {
	Say(text string)
}

// Config holds the bot's identities, timings and betting policy.
type Config struct {
	Self       string
	TrackedBot string
	DryRun     bool

	Strategy strategy.Params
	// Grammar defaults to parser.DefaultGrammar with Strategy.FallbackTeam
	// as the team for unmarked bets.
	Grammar parser.Grammar

	BettingDelay     time.Duration
	MaxRoundDuration time.Duration
	FarmDelayMin     time.Duration
	FarmDelayMax     time.Duration
	TickInterval     time.Duration

	BalanceFallback int64
	GatewayTimeout  time.Duration
}

// Deps are the bot's collaborators. Out is required; the gateways may be nil.
type Deps struct {
	Out      Sayer
	Balances Balances
	Rounds   RoundRecorder
	Stats    Publisher
	Console  *console.Printer
	Clock    quartz.Clock
	Rand     *rand.Rand
}

// Bot is the betting state machine plus the effect shell around it. All
// state is owned by the goroutine running Run; other goroutines talk to it
// through Deliver and Do.
type Bot struct {
	cfg Config
	log *slog.Logger

	clock   quartz.Clock
	rng     *rand.Rand
	parser  *parser.Parser
	round   *round.Round
	out     Sayer
	bals    Balances
	rounds  RoundRecorder
	stats   Publisher
	console *console.Printer

	balance      int64
	balanceKnown bool
	lastFarm     time.Time
	farmDelay    time.Duration
	// closes counts closed rounds; async work compares it to detect that
	// the round it started in has ended.
	closes uint64
	// pendingAllIns counts all-in bets still waiting on a balance lookup.
	pendingAllIns int

	ctx   context.Context
	inbox chan chat.Message
	calls chan func()
	done  chan struct{}
}

// New builds a Bot. The first farm is due FarmDelayMax after New.
func New(cfg Config, deps Deps) *Bot {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 5 * time.Second
	}
	if cfg.Grammar == nil {
		// Unmarked bets go to the same configured team the strategy falls back to.
		policy := parser.DefaultPolicy()
		policy.DefaultTeam = cfg.Strategy.FallbackTeam
		cfg.Grammar = parser.DefaultGrammar(policy)
	}
	cfg.TrackedBot = strings.ToLower(strings.TrimPrefix(cfg.TrackedBot, "@"))

	b := &Bot{
		cfg:     cfg,
		log:     slog.Default().With(slog.String("component", "bot")),
		clock:   deps.Clock,
		rng:     deps.Rand,
		parser:  parser.New(cfg.Grammar),
		round:   round.New(cfg.Self),
		out:     deps.Out,
		bals:    deps.Balances,
		rounds:  deps.Rounds,
		stats:   deps.Stats,
		console: deps.Console,
		ctx:     context.Background(),
		inbox:   make(chan chat.Message, 256),
		calls:   make(chan func(), 64),
		done:    make(chan struct{}),
	}
	if b.clock == nil {
		b.clock = quartz.NewReal()
	}
	if b.rng == nil {
		//nolint:gosec // G404: stake and delay jitter, not security sensitive
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if b.console == nil {
		b.console = console.New(io.Discard, cfg.Self, false)
	}
	b.lastFarm = b.clock.Now()
	b.farmDelay = cfg.FarmDelayMax
	return b
}

// Run loads the own balance and then processes messages, async completions
// and ticks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	defer close(b.done)
	b.ctx = ctx

	ticker := b.clock.NewTicker(b.cfg.TickInterval, "bot", "tick")
	defer ticker.Stop()

	b.loadOwnBalance()
	b.log.Info("bot started",
		slog.String("self", b.cfg.Self),
		slog.String("tracked_bot", b.cfg.TrackedBot),
		slog.Bool("dry_run", b.cfg.DryRun))

	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot stopped")
			return nil
		case m := <-b.inbox:
			b.Handle(m)
		case fn := <-b.calls:
			fn()
		case <-ticker.C:
			b.Tick(ctx)
		}
	}
}

// Deliver hands an inbound message to the loop. It blocks while the inbox is
// full and returns without delivering once Run has exited.
func (b *Bot) Deliver(m chat.Message) {
	select {
	case b.inbox <- m:
	case <-b.done:
	}
}

// Do runs fn on the loop goroutine and waits for it.
func (b *Bot) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case b.calls <- func() { fn(); close(finished) }:
	case <-b.done:
		return errors.New("bot stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-b.done:
		return errors.New("bot stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the round state. It must be called from the loop goroutine
// (or through Do).
func (b *Bot) Snapshot() round.Snapshot { return b.round.Snapshot() }

// Balance returns the cached own balance. Loop goroutine only.
func (b *Bot) Balance() int64 { return b.balance }

// post queues fn to run on the loop. It drops fn once Run has exited.
func (b *Bot) post(fn func()) {
	select {
	case b.calls <- fn:
	case <-b.done:
	}
}

// Handle routes one inbound message. Loop goroutine only.
func (b *Bot) Handle(m chat.Message) {
	switch {
	case m.Whisper:
		b.console.Mention(m.User, m.Text, true)
	case strings.EqualFold(m.User, b.cfg.TrackedBot):
		b.handleTracked(m.Text)
	case b.round.IsSelf(m.User):
		b.handleOwn(m.User, m.Text)
	default:
		b.console.Mention(m.User, m.Text, false)
	}
}

func (b *Bot) handleTracked(text string) {
	ev, err := b.parser.Parse(text)
	if err != nil {
		if errors.Is(err, parser.ErrMalformed) {
			telemetry.Inc(telemetry.ParseFailures)
		}
		b.log.Debug("unparseable tracked bot line", slog.String("line", text), slog.Any("err", err))
		return
	}
	now := b.clock.Now()
	switch e := ev.(type) {
	case parser.BetPlaced:
		if e.AllIn {
			b.resolveAllIn(e, now)
			return
		}
		b.applyBet(e, now)
	case parser.RoundClosed:
		if !b.round.IsOpen() && b.pendingAllIns > 0 {
			// The close belongs to a round whose only bets are unresolved all-ins.
			b.closes++
			b.log.Info("round closed before its all-in bets resolved", slog.Int("pending", b.pendingAllIns))
		}
		b.closeRound(now, closeAnnounced)
	}
}

// resolveAllIn looks up the user's last balance off the loop and applies the
// bet once it is known. The bet is dropped when the round it arrived in has
// closed in the meantime.
func (b *Bot) resolveAllIn(e parser.BetPlaced, at time.Time) {
	if b.bals == nil {
		b.applyBet(e.Resolve(b.cfg.BalanceFallback), at)
		return
	}
	closes := b.closes
	ctx := b.ctx
	b.pendingAllIns++
	go func() {
		amount := b.lookupBalance(ctx, e.User)
		b.post(func() {
			b.pendingAllIns--
			if b.closes != closes {
				b.log.Info("all-in bet arrived after round close; dropped", slog.String("user", e.User))
				return
			}
			b.applyBet(e.Resolve(amount), at)
		})
	}()
}

// lookupBalance fetches user's balance, falling back on any error.
func (b *Bot) lookupBalance(ctx context.Context, user string) int64 {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
	defer cancel()
	var n int64
	err := telemetry.TraceGateway(ctx, "balances", "get", func(ctx context.Context) error {
		var err error
		n, err = b.bals.GetBalance(ctx, user)
		return err
	})
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			b.log.Warn("balance lookup failed; using fallback", slog.String("user", user), slog.Any("err", err))
		}
		return b.cfg.BalanceFallback
	}
	return n
}

func (b *Bot) applyBet(e parser.BetPlaced, at time.Time) {
	if b.round.ApplyBetPlaced(e.Bet(), at) {
		telemetry.Inc(telemetry.RoundsOpened)
		b.console.RoundStarted()
		b.log.Info("round opened", slog.String("round_id", b.round.ID().String()))
	}
	telemetry.Inc(telemetry.BetsObserved)

	if e.HasBalance {
		if b.round.IsSelf(e.User) {
			b.setBalance(e.NewBalance)
		}
		b.saveBalance(e.User, e.NewBalance)
	}

	snap := b.round.Snapshot()
	b.publish(stats.FromSnapshot(snap, at))
	b.console.Totals(snap, b.round.Elapsed(b.clock.Now()))
}

// closeRound resets the round and emits the close side effects. It is a
// no-op when the round is already closed.
func (b *Bot) closeRound(now time.Time, reason string) {
	snap := b.round.Snapshot()
	var closed bool
	if reason == closeTimeout {
		closed = b.round.ForceTimeout(now, b.cfg.MaxRoundDuration)
	} else {
		closed = b.round.ApplyRoundClosed()
	}
	if !closed {
		return
	}
	b.closes++

	telemetry.RoundClosed(reason, now.Sub(snap.OpenedAt))
	b.console.RoundEnded(reason)
	b.log.Info("round closed",
		slog.String("round_id", snap.ID.String()),
		slog.String("reason", reason),
		slog.Int64("blue", snap.Blue.Stake),
		slog.Int64("red", snap.Red.Stake))

	b.publish(stats.FromSnapshot(snap, now).Ended())
	b.recordRound(db.NewRoundRecord(snap, now, reason))
}

// autoBet runs the decision engine for the open round and dispatches the
// wager unless in dry-run. Either way the round is marked so the next tick
// does not decide again.
func (b *Bot) autoBet() {
	snap := b.round.Snapshot()
	intent := strategy.Decide(strategy.Input{Blue: snap.Blue, Red: snap.Red, Balance: b.balance}, b.cfg.Strategy, b.rng)
	if intent.Fallback {
		b.log.Info("odds are close; falling back", slog.String("team", intent.Team.String()))
	}
	b.placeBet(intent, b.cfg.DryRun)
}

// placeBet marks the wager on an open round and queues the command.
func (b *Bot) placeBet(intent strategy.Intent, dryRun bool) {
	cmd := BetCommand(intent.Team, intent.Amount)
	if b.round.IsOpen() {
		b.round.MarkOwnBet(round.Wager{Team: intent.Team, Amount: intent.Amount})
	}
	if dryRun {
		b.console.Notice("Dry run, not sending: %s", cmd)
		b.log.Info("bet decided (dry run)", slog.String("team", intent.Team.String()), slog.Int64("amount", intent.Amount))
		return
	}
	b.out.Say(cmd)
	telemetry.Inc(telemetry.BetsDispatched)
	b.console.Notice("Bet attempted: %s %d", intent.Team, intent.Amount)
	b.log.Info("bet queued", slog.String("team", intent.Team.String()), slog.Int64("amount", intent.Amount))
}

// BetCommand formats the chat command for a wager.
func BetCommand(team round.Team, amount int64) string {
	return fmt.Sprintf("!%s %d", team, amount)
}

// betCommands maps the own-account chat commands that bet on a team.
var betCommands = map[string]round.Team{
	"!blue":       round.TeamBlue,
	"!red":        round.TeamRed,
	"saltyt1blue": round.TeamBlue,
	"saltyt1red":  round.TeamRed,
}

// handleOwn reacts to messages typed from the bot's own account. A bare bet
// command bets on that team with a decided stake; any other line starting
// with a bet command is a manual bet and stops the automatic one.
func (b *Bot) handleOwn(user, text string) {
	b.console.OwnMessage(user, text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	team, ok := betCommands[strings.ToLower(fields[0])]
	if !ok {
		return
	}
	if len(fields) == 1 {
		amount := strategy.Stake(b.balance, b.cfg.Strategy, b.rng)
		b.placeBet(strategy.Intent{Team: team, Amount: amount}, b.cfg.DryRun)
		return
	}
	if !b.round.IsOpen() {
		return
	}
	w := round.Wager{Team: team, Manual: true}
	if n, err := strconv.ParseInt(strings.ReplaceAll(fields[1], ",", ""), 10, 64); err == nil {
		w.Amount = n
	}
	b.round.MarkOwnBet(w)
	b.console.Notice("Bet placed manually in chat")
	b.log.Info("manual bet detected", slog.String("team", team.String()), slog.Int64("amount", w.Amount))
}

func (b *Bot) setBalance(n int64) {
	b.balance = n
	b.balanceKnown = true
	telemetry.SetBalance(n)
}

// loadOwnBalance fetches the own balance off the loop and applies it unless a
// confirmation already updated it.
func (b *Bot) loadOwnBalance() {
	if b.bals == nil || b.cfg.Self == "" {
		return
	}
	ctx := b.ctx
	go func() {
		n := b.lookupBalance(ctx, b.cfg.Self)
		b.post(func() {
			if b.balanceKnown {
				return
			}
			b.setBalance(n)
			b.console.Notice("Latest balance: %s", console.Thousands(n))
		})
	}()
}

// saveBalance persists a user's balance without waiting for the result.
func (b *Bot) saveBalance(user string, n int64) {
	if b.bals == nil {
		return
	}
	ctx := b.ctx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
		defer cancel()
		err := telemetry.TraceGateway(ctx, "balances", "set", func(ctx context.Context) error {
			return b.bals.SetBalance(ctx, user, n)
		})
		if err != nil {
			b.log.Warn("balance write failed", slog.String("user", user), slog.Any("err", err))
		}
	}()
}

func (b *Bot) recordRound(r db.RoundRecord) {
	if b.rounds == nil {
		return
	}
	ctx := b.ctx
	go func() {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.GatewayTimeout)
		defer cancel()
		err := telemetry.TraceGateway(ctx, "rounds", "record", func(ctx context.Context) error {
			return b.rounds.RecordRound(ctx, r)
		})
		if err != nil {
			b.log.Warn("round record failed", slog.String("round_id", r.ID.String()), slog.Any("err", err))
		}
	}()
}

func (b *Bot) publish(l stats.LiveStats) {
	telemetry.SetTotals(l.BettingOpen, l.Blue.Mushrooms, l.Blue.Bets, l.Red.Mushrooms, l.Red.Bets)
	if b.stats != nil {
		b.stats.Publish(l)
	}
}
