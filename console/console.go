// Package console prints the human-facing view of the bot: running round
// totals, round transitions and chat lines that mention the bot account.
package console

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/onnwee/saltbet-bot/round"
)

const (
	teamWidth    = 34
	secondsWidth = 16
)

type styles struct {
	blue, red, seconds lipgloss.Style
	started, ended     lipgloss.Style
	notice             lipgloss.Style
	user               lipgloss.Style
	mention, mentioned lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, pretty bool) styles {
	if !pretty {
		plain := r.NewStyle()
		return styles{
			blue: plain.Width(teamWidth), red: plain.Width(teamWidth), seconds: plain.Width(secondsWidth).Align(lipgloss.Right),
			started: plain, ended: plain, notice: plain, user: plain, mention: plain, mentioned: plain,
		}
	}
	return styles{
		blue:      r.NewStyle().Foreground(lipgloss.Color("12")).Width(teamWidth),
		red:       r.NewStyle().Foreground(lipgloss.Color("9")).Width(teamWidth),
		seconds:   r.NewStyle().Width(secondsWidth).Align(lipgloss.Right),
		started:   r.NewStyle().Foreground(lipgloss.Color("10")),
		ended:     r.NewStyle().Foreground(lipgloss.Color("8")),
		notice:    r.NewStyle().Foreground(lipgloss.Color("#626262")),
		user:      r.NewStyle().Foreground(lipgloss.Color("14")),
		mention:   r.NewStyle().Background(lipgloss.Color("1")),
		mentioned: r.NewStyle().Foreground(lipgloss.Color("15")).Bold(true),
	}
}

// Printer writes console lines. It is safe for concurrent use.
type Printer struct {
	mu    sync.Mutex
	w     io.Writer
	self  string
	clock func() time.Time
	st    styles
}

// New returns a Printer writing to w. self is the bot's login, used to spot
// mentions. pretty enables colors.
func New(w io.Writer, self string, pretty bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:     w,
		self:  strings.ToLower(strings.TrimPrefix(self, "@")),
		clock: time.Now,
		st:    newStyles(r, pretty),
	}
}

// Totals prints the running totals of the open round with its age.
func (p *Printer) Totals(s round.Snapshot, elapsed time.Duration) {
	blue := fmt.Sprintf("%s (%d bets)", Thousands(s.Blue.Stake), s.Blue.Bets)
	red := fmt.Sprintf("%s (%d bets)", Thousands(s.Red.Stake), s.Red.Bets)
	secs := fmt.Sprintf("[%d seconds]", int64(elapsed/time.Second))
	p.println(p.st.blue.Render(blue) + " | " + p.st.red.Render(red) + p.st.seconds.Render(secs))
}

// RoundStarted prints the round-open banner.
func (p *Printer) RoundStarted() {
	p.println("\n" + p.st.started.Render(fmt.Sprintf("[%s] Betting has started", p.stamp())) + "\n")
}

// RoundEnded prints the round-close banner with the reason.
func (p *Printer) RoundEnded(reason string) {
	msg := fmt.Sprintf("[%s] Betting has ended", p.stamp())
	if reason != "" {
		msg += " (" + reason + ")"
	}
	p.println("\n" + p.st.ended.Render(msg) + "\n")
}

// Notice prints a timestamped informational line.
func (p *Printer) Notice(format string, args ...any) {
	p.println(p.st.notice.Render(fmt.Sprintf("[%s] ", p.stamp()) + fmt.Sprintf(format, args...)))
}

// OwnMessage echoes a message sent from the bot's own account.
func (p *Printer) OwnMessage(user, text string) {
	p.println(fmt.Sprintf("[%s] <%s> %s", p.stamp(), p.st.user.Render(user), text))
}

// Mention prints text highlighted when it mentions the bot account or is a
// whisper. It reports whether anything was printed.
func (p *Printer) Mention(user, text string, whisper bool) bool {
	tag := "@" + p.self
	if !whisper && (p.self == "" || !strings.Contains(strings.ToLower(text), tag)) {
		return false
	}
	words := strings.Split(text, " ")
	for i, w := range words {
		if p.self != "" && strings.Contains(strings.ToLower(w), tag) {
			words[i] = p.st.mentioned.Render(w)
		}
	}
	p.println(p.st.mention.Render(fmt.Sprintf("[%s] <%s> %s", p.stamp(), user, strings.Join(words, " "))))
	return true
}

func (p *Printer) stamp() string {
	return p.clock().Format("3:04:05 PM")
}

func (p *Printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = io.WriteString(p.w, line+"\n")
}

// Thousands formats n with comma separators, e.g. 1234567 -> "1,234,567".
func Thousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
