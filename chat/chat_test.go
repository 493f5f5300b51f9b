package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/saltbet-bot/db"
)

func TestIRCToken(t *testing.T) {
	tests := map[string]string{
		"":          "",
		"abc":       "oauth:abc",
		" abc ":     "oauth:abc",
		"oauth:abc": "oauth:abc",
	}
	for in, want := range tests {
		if got := IRCToken(in); got != want {
			t.Errorf("IRCToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromPrivate(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	m := fromPrivate(twitch.PrivateMessage{
		User:    twitch.User{Name: "Malphite_Bot"},
		Channel: "saltyteemo",
		Message: "@viewer - You placed 500 mushrooms on RED.",
		Time:    at,
	})
	if m.User != "malphite_bot" || m.Channel != "saltyteemo" || m.Whisper || !m.Time.Equal(at) {
		t.Errorf("fromPrivate = %+v", m)
	}
}

func TestFromWhisper(t *testing.T) {
	now := time.Now()
	m := fromWhisper(twitch.WhisperMessage{User: twitch.User{Name: "Friend"}, Message: "hi"}, now)
	if !m.Whisper || m.User != "friend" || m.Text != "hi" || !m.Time.Equal(now) {
		t.Errorf("fromWhisper = %+v", m)
	}
}

func TestDeliverUsesLatestHandler(t *testing.T) {
	c := New("SaltBot", "tok", "#SaltyTeemo")
	if c.channel != "saltyteemo" {
		t.Errorf("channel = %q", c.channel)
	}
	c.deliver(Message{Text: "dropped"}) // no handler yet

	var got []string
	c.OnMessage(func(m Message) { got = append(got, m.Text) })
	c.deliver(Message{Text: "one"})
	if len(got) != 1 || got[0] != "one" {
		t.Errorf("got %v", got)
	}
}

type fakeTokens struct {
	tok db.Token
	err error
}

func (f fakeTokens) Get(_ context.Context, provider string) (db.Token, error) {
	if provider != Provider {
		return db.Token{}, db.ErrNotFound
	}
	return f.tok, f.err
}

func TestResolveToken(t *testing.T) {
	ctx := context.Background()
	if tok, err := ResolveToken(ctx, "env", nil); err != nil || tok != "env" {
		t.Errorf("env token: %q, %v", tok, err)
	}
	if tok, err := ResolveToken(ctx, "", fakeTokens{tok: db.Token{Access: "stored"}}); err != nil || tok != "stored" {
		t.Errorf("stored token: %q, %v", tok, err)
	}
	if _, err := ResolveToken(ctx, "", fakeTokens{err: db.ErrNotFound}); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("missing token err = %v", err)
	}
	if _, err := ResolveToken(ctx, "", fakeTokens{}); err == nil {
		t.Error("expected error for empty stored token")
	}
	if _, err := ResolveToken(ctx, "", nil); err == nil {
		t.Error("expected error without env token or store")
	}
}
