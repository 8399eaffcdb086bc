// Package redis mirrors engine events and portfolio snapshots to Redis so
// external dashboards can consume them without touching the controller API.
// The mirror is optional: every method on a nil *Mirror is a no-op.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"soltrader/internal/circuit"

	goredis "github.com/go-redis/redis/v8"
)

const (
	eventChannelPrefix = "trader:events:"
	latestKeyPrefix    = "trader:latest:"
	defaultLatestTTL   = 30 * time.Minute
	defaultMaxBuffer   = 10000
)

// Config configures the Redis mirror.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// pendingWrite is an event buffered while the circuit is open.
type pendingWrite struct {
	Event string
	Data  []byte
}

// Mirror publishes events and keeps latest-value keys in Redis, behind a
// circuit breaker. While the circuit is open, events are buffered locally
// and replayed when the circuit closes again.
type Mirror struct {
	client *goredis.Client
	cb     *circuit.Breaker

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// New connects to Redis and pings the server.
func New(cfg Config) (*Mirror, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)

	m := &Mirror{
		client: client,
		cb:     circuit.NewBreaker(3, 30*time.Second),
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: defaultMaxBuffer,
	}
	m.cb.OnStateChange = func(from, to circuit.State) {
		log.Printf("[redis] circuit %v -> %v", from, to)
		if to == circuit.StateClosed {
			go m.flush(context.Background())
		}
	}
	return m, nil
}

// PublishEvent publishes a JSON payload on the event's pubsub channel.
// Open circuit buffers the event instead of dropping it.
func (m *Mirror) PublishEvent(ctx context.Context, event string, payload interface{}) {
	if m == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[redis] marshal %s: %v", event, err)
		return
	}
	err = m.cb.Execute(func() error {
		return m.client.Publish(ctx, eventChannelPrefix+event, data).Err()
	})
	if err == circuit.ErrOpen {
		m.bufferWrite(event, data)
		return
	}
	if err != nil {
		log.Printf("[redis] publish %s: %v", event, err)
	}
}

// SetLatest stores a JSON payload under a latest-value key with a TTL.
// SET + PUBLISH run in one pipeline so subscribers and pollers agree.
func (m *Mirror) SetLatest(ctx context.Context, name string, payload interface{}) {
	if m == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[redis] marshal %s: %v", name, err)
		return
	}
	err = m.cb.Execute(func() error {
		pipe := m.client.Pipeline()
		pipe.Set(ctx, latestKeyPrefix+name, data, defaultLatestTTL)
		pipe.Publish(ctx, eventChannelPrefix+name, data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err == circuit.ErrOpen {
		m.bufferWrite(name, data)
		return
	}
	if err != nil {
		log.Printf("[redis] set latest %s: %v", name, err)
	}
}

func (m *Mirror) bufferWrite(event string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buffer) >= m.maxBuf {
		// Buffer full, drop oldest
		m.buffer = m.buffer[1:]
	}
	m.buffer = append(m.buffer, pendingWrite{Event: event, Data: data})

	if m.OnBuffer != nil {
		m.OnBuffer()
	}
}

// flush replays buffered events as plain publishes.
func (m *Mirror) flush(ctx context.Context) {
	m.mu.Lock()
	if len(m.buffer) == 0 {
		m.mu.Unlock()
		return
	}
	toFlush := m.buffer
	m.buffer = make([]pendingWrite, 0, 256)
	m.mu.Unlock()

	for _, pw := range toFlush {
		if err := m.client.Publish(ctx, eventChannelPrefix+pw.Event, pw.Data).Err(); err != nil {
			log.Printf("[redis] flush publish %s: %v", pw.Event, err)
		}
	}

	log.Printf("[redis] flushed %d buffered events", len(toFlush))
	if m.OnFlush != nil {
		m.OnFlush(len(toFlush))
	}
}

// PendingCount returns the number of buffered events waiting to be flushed.
func (m *Mirror) PendingCount() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buffer)
}

// Client returns the underlying Redis client for health checks.
func (m *Mirror) Client() *goredis.Client {
	if m == nil {
		return nil
	}
	return m.client
}

// Close closes the Redis client.
func (m *Mirror) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
