package config

import (
	"testing"
	"time"

	"github.com/onnwee/saltbet-bot/round"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"TWITCH_CHANNEL", "DRY_RUN", "BET_FLOOR", "BET_MIN", "BET_MAX", "BET_RESERVE",
		"BET_DEFAULT_TEAM", "FARM_DELAY_MIN", "FARM_DELAY_MAX", "BETTING_DELAY", "MAX_ROUND_DURATION",
		"DISPATCH_SPACING", "TICK_INTERVAL", "TRACKED_BOT", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "saltyteemo" {
		t.Errorf("channel = %q", cfg.TwitchChannel)
	}
	if !cfg.DryRun {
		t.Error("dry run should default to on")
	}
	if cfg.BetFloor != 350 || cfg.BetMin != 500 || cfg.BetMax != 1500 || cfg.BetReserve != 100000 {
		t.Errorf("bet defaults = %d/%d/%d/%d", cfg.BetFloor, cfg.BetMin, cfg.BetMax, cfg.BetReserve)
	}
	if cfg.BetMaxFraction.String() != "0.1" || cfg.BetCloseOddsRatio.String() != "0.8" {
		t.Errorf("decimal defaults = %s/%s", cfg.BetMaxFraction, cfg.BetCloseOddsRatio)
	}
	if cfg.BetDefaultTeam != round.TeamBlue {
		t.Errorf("default team = %v", cfg.BetDefaultTeam)
	}
	if cfg.FarmDelayMin != 24*time.Hour || cfg.FarmDelayMax != 48*time.Hour {
		t.Errorf("farm delays = %v..%v", cfg.FarmDelayMin, cfg.FarmDelayMax)
	}
	if cfg.BettingDelay != 145*time.Second || cfg.MaxRoundDuration != 330*time.Second {
		t.Errorf("round timing = %v/%v", cfg.BettingDelay, cfg.MaxRoundDuration)
	}
	if cfg.DispatchSpacing != 1500*time.Millisecond || cfg.TickInterval != time.Second {
		t.Errorf("loop timing = %v/%v", cfg.DispatchSpacing, cfg.TickInterval)
	}
	if cfg.TrackedBot != "malphite_bot" {
		t.Errorf("tracked bot = %q", cfg.TrackedBot)
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Errorf("kafka brokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "#SomeChannel")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("BETTING_DELAY", "90")
	t.Setenv("MAX_ROUND_DURATION", "5m")
	t.Setenv("BET_DEFAULT_TEAM", "red")
	t.Setenv("BET_MAX_FRACTION", "0.25")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.TwitchChannel != "somechannel" {
		t.Errorf("channel = %q", cfg.TwitchChannel)
	}
	if cfg.DryRun {
		t.Error("DRY_RUN=false should disable dry run")
	}
	if cfg.BettingDelay != 90*time.Second {
		t.Errorf("betting delay = %v", cfg.BettingDelay)
	}
	if cfg.MaxRoundDuration != 5*time.Minute {
		t.Errorf("max round = %v", cfg.MaxRoundDuration)
	}
	if cfg.BetDefaultTeam != round.TeamRed {
		t.Errorf("default team = %v", cfg.BetDefaultTeam)
	}
	if cfg.BetMaxFraction.String() != "0.25" {
		t.Errorf("max fraction = %s", cfg.BetMaxFraction)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("kafka brokers = %v", cfg.KafkaBrokers)
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	tests := []struct{ key, value string }{
		{"BET_FLOOR", "lots"},
		{"DRY_RUN", "maybe"},
		{"BETTING_DELAY", "soon"},
		{"BET_DEFAULT_TEAM", "green"},
		{"BET_CLOSE_ODDS_RATIO", "eighty"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoadRejectsInvertedRanges(t *testing.T) {
	t.Setenv("BET_MIN", "2000")
	t.Setenv("BET_MAX", "1000")
	if _, err := Load(); err == nil {
		t.Error("expected error for BET_MIN > BET_MAX")
	}
}

func TestValidateChatReady(t *testing.T) {
	t.Setenv("TWITCH_CHANNEL", "chan")
	t.Setenv("TWITCH_BOT_USERNAME", "bot")
	cfg, _ := Load()
	if err := cfg.ValidateChatReady(); err != nil {
		t.Errorf("expected valid chat config, got %v", err)
	}
	t.Setenv("TWITCH_BOT_USERNAME", "")
	cfg, _ = Load()
	if err := cfg.ValidateChatReady(); err == nil {
		t.Errorf("expected error when missing bot username")
	}
}
