package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"
)

// HTTPSink POSTs each update as JSON to a fixed URL.
type HTTPSink struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPSink returns a sink posting to url at most rps times per second.
// A nil client uses a client with a 10s timeout.
func NewHTTPSink(url string, client *http.Client, rps float64) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if rps <= 0 {
		rps = 2
	}
	return &HTTPSink{url: url, client: client, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (s *HTTPSink) Name() string { return "http" }

func (s *HTTPSink) Send(ctx context.Context, l LiveStats) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	body, err := Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal live stats: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post live stats: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post live stats: status %d", resp.StatusCode)
	}
	return nil
}

// RedisSink publishes each update on a pub/sub channel and keeps the latest
// one under a key for late readers.
type RedisSink struct {
	rdb     *redis.Client
	channel string
	ttl     time.Duration
}

// NewRedisSink returns a sink publishing on channel. The latest update is
// stored under channel+":latest" for ttl.
func NewRedisSink(rdb *redis.Client, channel string, ttl time.Duration) *RedisSink {
	return &RedisSink{rdb: rdb, channel: channel, ttl: ttl}
}

func (s *RedisSink) Name() string { return "redis" }

// LatestKey is the key holding the last published update.
func (s *RedisSink) LatestKey() string { return s.channel + ":latest" }

func (s *RedisSink) Send(ctx context.Context, l LiveStats) error {
	b, err := Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal live stats: %w", err)
	}
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.LatestKey(), b, s.ttl)
		p.Publish(ctx, s.channel, b)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes each update to a topic, keyed by round id.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink returns a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, l LiveStats) error {
	b, err := Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal live stats: %w", err)
	}
	at := l.At
	if at.IsZero() {
		at = time.Now()
	}
	msg := kafka.Message{Key: []byte(l.RoundID), Value: b, Time: at}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error { return s.w.Close() }
