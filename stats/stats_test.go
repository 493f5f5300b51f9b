package stats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/onnwee/saltbet-bot/round"
)

func TestMarshalWireFormat(t *testing.T) {
	l := LiveStats{
		BettingOpen: true,
		Blue:        TeamStats{Bets: 3, Mushrooms: 1500},
		Red:         TeamStats{Bets: 1, Mushrooms: 700},
		RoundID:     "ignored",
	}
	b, err := Marshal(l)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"live_stats":{"betting_is_open":true,"blue":{"bets":3,"mushrooms":1500},"red":{"bets":1,"mushrooms":700}}}`
	if string(b) != want {
		t.Errorf("Marshal = %s\nwant      %s", b, want)
	}
}

func TestFromSnapshotAndEnded(t *testing.T) {
	id := uuid.New()
	s := round.Snapshot{ID: id, Open: true, Blue: round.TeamTotals{Stake: 10, Bets: 1}, Red: round.TeamTotals{Stake: 20, Bets: 2}}
	l := FromSnapshot(s, time.Unix(100, 0))
	if !l.BettingOpen || l.Blue.Mushrooms != 10 || l.Red.Bets != 2 || l.RoundID != id.String() {
		t.Fatalf("FromSnapshot = %+v", l)
	}
	e := l.Ended()
	if e.BettingOpen {
		t.Error("Ended should mark betting closed")
	}
	if e.Blue != (TeamStats{}) || e.Red != (TeamStats{}) {
		t.Errorf("Ended totals = %+v %+v, want zero", e.Blue, e.Red)
	}
	if e.RoundID != id.String() || !e.At.Equal(l.At) {
		t.Errorf("Ended dropped round id or time: %+v", e)
	}
	if !l.BettingOpen {
		t.Error("Ended must not modify the receiver")
	}
}

type recordingSink struct {
	name string
	mu   sync.Mutex
	got  []LiveStats
	done chan struct{}
}

func newRecordingSink(name string, n int) *recordingSink {
	return &recordingSink{name: name, done: make(chan struct{}, n)}
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Send(_ context.Context, l LiveStats) error {
	s.mu.Lock()
	s.got = append(s.got, l)
	s.mu.Unlock()
	s.done <- struct{}{}
	return nil
}

type blockingSink struct{ release chan struct{} }

func (blockingSink) Name() string { return "blocking" }

func (b blockingSink) Send(ctx context.Context, _ LiveStats) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return errors.New("blocked")
}

func TestReporterFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, b := newRecordingSink("a", 4), newRecordingSink("b", 4)
	r := NewReporter(a, nil, b)
	r.Start(ctx)

	r.Publish(LiveStats{BettingOpen: true, Blue: TeamStats{Mushrooms: 1}})
	for _, s := range []*recordingSink{a, b} {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("sink %s never received the update", s.name)
		}
	}
	if got := r.Last(); got.Blue.Mushrooms != 1 {
		t.Errorf("Last = %+v", got)
	}
	cancel()
	r.Wait()
}

func TestReporterPublishNeverBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	fast := newRecordingSink("fast", 100)
	r := NewReporter(blockingSink{release: release}, fast)
	r.Start(ctx)

	finished := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Publish(LiveStats{Blue: TeamStats{Bets: int64(i)}})
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked behind a hung sink")
	}
	close(release)
	cancel()
	r.Wait()
}

func TestHTTPSinkPostsJSON(t *testing.T) {
	var (
		mu   sync.Mutex
		body []byte
		ct   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body, ct = b, r.Header.Get("Content-Type")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, srv.Client(), 100)
	if err := s.Send(context.Background(), LiveStats{BettingOpen: false, Red: TeamStats{Bets: 2, Mushrooms: 900}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if ct != "application/json" {
		t.Errorf("content-type = %q", ct)
	}
	got, err := Unmarshal(body)
	if err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.BettingOpen || got.Red.Mushrooms != 900 || got.Red.Bets != 2 {
		t.Errorf("posted %+v", got)
	}
}

func TestHTTPSinkReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewHTTPSink(srv.URL, srv.Client(), 100)
	if err := s.Send(context.Background(), LiveStats{}); err == nil {
		t.Fatal("expected error on 500")
	}
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSinkKeysByRound(t *testing.T) {
	fw := &fakeWriter{}
	s := &KafkaSink{w: fw}
	at := time.Unix(1700000000, 0)
	if err := s.Send(context.Background(), LiveStats{BettingOpen: true, RoundID: "r-1", At: at}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fw.msgs) != 1 {
		t.Fatalf("wrote %d messages", len(fw.msgs))
	}
	m := fw.msgs[0]
	if string(m.Key) != "r-1" || !m.Time.Equal(at) {
		t.Errorf("message key=%q time=%v", m.Key, m.Time)
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(m.Value, &env); err != nil || env["live_stats"] == nil {
		t.Errorf("value not in live_stats envelope: %s", m.Value)
	}

	fw.err = errors.New("broker down")
	if err := s.Send(context.Background(), LiveStats{}); err == nil {
		t.Error("expected writer error to surface")
	}
}

func TestRedisSinkPublishes(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis test")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	s := NewRedisSink(rdb, "saltbet_test_live_stats", time.Minute)
	sub := rdb.Subscribe(ctx, "saltbet_test_live_stats")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := s.Send(ctx, LiveStats{BettingOpen: true, Blue: TeamStats{Bets: 1, Mushrooms: 5}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case msg := <-sub.Channel():
		got, err := Unmarshal([]byte(msg.Payload))
		if err != nil || got.Blue.Mushrooms != 5 {
			t.Errorf("payload = %s (%v)", msg.Payload, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no pub/sub message received")
	}
	latest, err := rdb.Get(ctx, s.LatestKey()).Bytes()
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if got, _ := Unmarshal(latest); !got.BettingOpen {
		t.Errorf("latest = %s", latest)
	}
}
