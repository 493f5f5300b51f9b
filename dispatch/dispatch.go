// Package dispatch serializes outgoing chat actions so that no two run closer
// together than a fixed spacing, which keeps the bot under the chat server's
// message rate limits.
package dispatch

import (
	"log/slog"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// DefaultSpacing is the minimum gap between two chat messages.
const DefaultSpacing = 1500 * time.Millisecond

// Dispatcher runs queued actions in FIFO order, at most one per spacing
// interval. It is safe for concurrent use. Once enqueued an action always
// runs unless the process exits first.
type Dispatcher struct {
	clock   quartz.Clock
	spacing time.Duration

	mu      sync.Mutex
	queue   []func()
	cooling bool
}

// New returns a Dispatcher. A non-positive spacing uses DefaultSpacing.
func New(clock quartz.Clock, spacing time.Duration) *Dispatcher {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if spacing <= 0 {
		spacing = DefaultSpacing
	}
	return &Dispatcher{clock: clock, spacing: spacing}
}

// Enqueue adds fn to the queue. When the dispatcher is idle fn runs
// immediately on the caller's goroutine; otherwise it runs from the cooldown
// timer once every earlier action has run.
func (d *Dispatcher) Enqueue(fn func()) {
	if fn == nil {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	d.next()
}

// Len returns the number of actions waiting to run.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// next pops and runs the head of the queue unless a cooldown is active.
func (d *Dispatcher) next() {
	d.mu.Lock()
	if d.cooling || len(d.queue) == 0 {
		d.mu.Unlock()
		return
	}
	fn := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.cooling = true
	d.mu.Unlock()

	d.run(fn)

	d.clock.AfterFunc(d.spacing, func() {
		d.mu.Lock()
		d.cooling = false
		d.mu.Unlock()
		d.next()
	}, "dispatch", "cooldown")
}

func (d *Dispatcher) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch action panicked", slog.Any("panic", r), slog.String("component", "dispatch"))
		}
	}()
	fn()
}

// Sender is the outbound chat transport.
type Sender interface {
	Say(channel, text string)
}

// Chat queues chat messages through a Dispatcher.
type Chat struct {
	d       *Dispatcher
	sender  Sender
	channel string
}

// NewChat returns a Chat sending to channel through d.
func NewChat(d *Dispatcher, sender Sender, channel string) *Chat {
	return &Chat{d: d, sender: sender, channel: channel}
}

// Say queues text for the tracked channel.
func (c *Chat) Say(text string) {
	c.d.Enqueue(func() {
		c.sender.Say(c.channel, text)
		slog.Debug("chat message sent", slog.String("channel", c.channel), slog.String("text", text), slog.String("component", "dispatch"))
	})
}
