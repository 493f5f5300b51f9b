// Command saltbet-bot is a Twitch chat bettor. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Tracks betting rounds announced by the tracked bot, places its own wager
//     after the betting delay and periodically sends the farm command.
//   - Publishes live totals to the configured sinks (HTTP, Redis, Kafka,
//     websocket) and refreshes the stored chat OAuth token.
//   - Exposes /healthz, /readyz, /metrics, /live, /live/ws and /rounds.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/saltbet-bot/bot"
	"github.com/onnwee/saltbet-bot/cache"
	"github.com/onnwee/saltbet-bot/chat"
	"github.com/onnwee/saltbet-bot/config"
	"github.com/onnwee/saltbet-bot/console"
	"github.com/onnwee/saltbet-bot/db"
	"github.com/onnwee/saltbet-bot/dispatch"
	"github.com/onnwee/saltbet-bot/oauth"
	"github.com/onnwee/saltbet-bot/server"
	"github.com/onnwee/saltbet-bot/stats"
	"github.com/onnwee/saltbet-bot/strategy"
	"github.com/onnwee/saltbet-bot/telemetry"
)

func main() {
	// Local dev convenience only; production relies on real env.
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Error("chat not configured", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("saltbet-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(ctx, database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	pgBalances := db.NewBalanceStore(database)
	var balances bot.Balances = pgBalances
	rounds := db.NewRoundStore(database)
	tokens, err := db.NewTokenStore(database, cfg.EncryptionKey)
	if err != nil {
		slog.Error("token store init failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Live stats sinks. Each is optional.
	hub := server.NewHub()
	sinks := []stats.Sink{hub}
	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			slog.Warn("redis unavailable; continuing without cache", slog.Any("err", err))
		} else {
			defer func() { _ = rdb.Close() }()
			balances = cache.NewBalances(rdb, pgBalances, cfg.RedisBalanceTTL)
			sinks = append(sinks, stats.NewRedisSink(rdb, cfg.RedisStatsChannel, 2*cfg.MaxRoundDuration))
			slog.Info("redis enabled", slog.String("addr", cfg.RedisAddr))
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		ks := stats.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaStatsTopic)
		defer func() { _ = ks.Close() }()
		sinks = append(sinks, ks)
		slog.Info("kafka live stats enabled", slog.String("topic", cfg.KafkaStatsTopic))
	}
	if cfg.LiveStatsURL != "" {
		sinks = append(sinks, stats.NewHTTPSink(cfg.LiveStatsURL, &http.Client{Timeout: 5 * time.Second}, 2))
	}
	reporter := stats.NewReporter(sinks...)
	reporter.Start(ctx)

	// Chat
	token, err := chat.ResolveToken(ctx, cfg.TwitchOAuthToken, tokens)
	if err != nil {
		slog.Error("no chat token", slog.Any("err", err))
		os.Exit(1)
	}
	client := chat.New(cfg.TwitchBotUsername, token, cfg.TwitchChannel)

	if cfg.TwitchOAuthToken == "" {
		refresher := oauth.NewRefresher(tokens, chat.Provider, 15*time.Minute,
			oauth.TwitchRefreshFunc(cfg.TwitchClientID, cfg.TwitchClientSecret, ""))
		refresher.OnRefresh(func(t db.Token) { client.SetToken(t.Access) })
		refresher.Start(ctx, 5*time.Minute)
	}

	dispatcher := dispatch.New(nil, cfg.DispatchSpacing)
	b := bot.New(bot.Config{
		Self:       cfg.TwitchBotUsername,
		TrackedBot: cfg.TrackedBot,
		DryRun:     cfg.DryRun,
		Strategy: strategy.Params{
			Floor:          cfg.BetFloor,
			Min:            cfg.BetMin,
			Max:            cfg.BetMax,
			Default:        cfg.BetDefault,
			Reserve:        cfg.BetReserve,
			MaxFraction:    cfg.BetMaxFraction,
			CloseOddsRatio: cfg.BetCloseOddsRatio,
			FallbackTeam:   cfg.BetDefaultTeam,
		},
		BettingDelay:     cfg.BettingDelay,
		MaxRoundDuration: cfg.MaxRoundDuration,
		FarmDelayMin:     cfg.FarmDelayMin,
		FarmDelayMax:     cfg.FarmDelayMax,
		TickInterval:     cfg.TickInterval,
		BalanceFallback:  cfg.BalanceFallback,
	}, bot.Deps{
		Out:      dispatch.NewChat(dispatcher, client, cfg.TwitchChannel),
		Balances: balances,
		Rounds:   rounds,
		Stats:    reporter,
		Console:  console.New(os.Stdout, cfg.TwitchBotUsername, cfg.ConsolePretty),
	})
	client.OnMessage(b.Deliver)

	go func() {
		if err := server.Start(ctx, cfg.HTTPAddr, server.Deps{
			DB:     database,
			Rounds: rounds,
			Live:   reporter,
			Hub:    hub,
			MigrationVersion: func() (uint, bool, error) {
				return db.GetMigrationVersion(database)
			},
		}); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	botDone := make(chan error, 1)
	go func() { botDone <- b.Run(ctx) }()

	slog.Info("connecting to chat", slog.String("channel", cfg.TwitchChannel), slog.Bool("dry_run", cfg.DryRun))
	if err := client.Connect(ctx); err != nil {
		slog.Error("chat connection failed", slog.Any("err", err))
		stop()
	}

	<-ctx.Done()
	slog.Info("shutting down")
	<-botDone
	reporter.Wait()
}

// setupLogging configures slog from LOG_LEVEL and LOG_FORMAT. Defaults:
// level=info, format=text.
func setupLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stderr, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	// Logs go to stderr; stdout carries the console view.
	format := strings.ToLower(os.Getenv("LOG_FORMAT"))
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}
