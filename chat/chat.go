package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/onnwee/saltbet-bot/db"
)

// Provider is the oauth_tokens key for the chat token.
const Provider = "twitch"

// Message is one inbound chat line or whisper.
type Message struct {
	Channel string
	User    string
	Text    string
	Whisper bool
	Time    time.Time
}

// Client is a Twitch IRC connection for one channel.
type Client struct {
	irc     *twitch.Client
	channel string

	mu      sync.Mutex
	handler func(Message)
}

// New returns a client that will join channel as username.
func New(username, token, channel string) *Client {
	c := &Client{
		irc:     twitch.NewClient(strings.ToLower(username), IRCToken(token)),
		channel: strings.TrimPrefix(strings.ToLower(channel), "#"),
	}
	c.irc.OnPrivateMessage(func(m twitch.PrivateMessage) { c.deliver(fromPrivate(m)) })
	c.irc.OnWhisperMessage(func(m twitch.WhisperMessage) { c.deliver(fromWhisper(m, time.Now())) })
	c.irc.OnConnect(func() {
		slog.Info("twitch chat connected", slog.String("channel", c.channel), slog.String("component", "chat"))
	})
	return c
}

// OnMessage sets the handler for inbound messages. It is called on the IRC
// reader goroutine and must not block.
func (c *Client) OnMessage(fn func(Message)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Say sends text to channel immediately.
func (c *Client) Say(channel, text string) {
	c.irc.Say(channel, text)
}

// SetToken replaces the token used on the next (re)connect.
func (c *Client) SetToken(token string) {
	c.irc.SetIRCToken(IRCToken(token))
}

// Connect joins the channel and blocks until ctx is cancelled or the
// connection fails for good.
func (c *Client) Connect(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.irc.Disconnect()
		case <-done:
		}
	}()

	c.irc.Join(c.channel)
	err := c.irc.Connect()
	if ctx.Err() != nil || errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("twitch chat connect: %w", err)
	}
	return nil
}

func (c *Client) deliver(m Message) {
	c.mu.Lock()
	fn := c.handler
	c.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

func fromPrivate(m twitch.PrivateMessage) Message {
	at := m.Time
	if at.IsZero() {
		at = time.Now()
	}
	return Message{
		Channel: m.Channel,
		User:    strings.ToLower(m.User.Name),
		Text:    m.Message,
		Time:    at,
	}
}

func fromWhisper(m twitch.WhisperMessage, now time.Time) Message {
	return Message{
		User:    strings.ToLower(m.User.Name),
		Text:    m.Message,
		Whisper: true,
		Time:    now,
	}
}

// IRCToken returns token with the "oauth:" prefix IRC expects.
func IRCToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}

// TokenSource reads stored OAuth tokens.
type TokenSource interface {
	Get(ctx context.Context, provider string) (db.Token, error)
}

// ResolveToken returns envToken when set, otherwise the stored chat token.
func ResolveToken(ctx context.Context, envToken string, store TokenSource) (string, error) {
	if envToken != "" {
		return envToken, nil
	}
	if store == nil {
		return "", errors.New("no TWITCH_OAUTH_TOKEN and no token store")
	}
	tok, err := store.Get(ctx, Provider)
	if err != nil {
		return "", fmt.Errorf("load stored twitch token: %w", err)
	}
	if tok.Access == "" {
		return "", errors.New("stored twitch token is empty")
	}
	return tok.Access, nil
}
