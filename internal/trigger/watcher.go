// Package trigger watches on-chain program logs over the Solana websocket
// RPC and surfaces matches to the engine. Snipers use it to react to new
// Raydium pools instead of polling.
package trigger

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RaydiumProgramID is the Raydium AMM v4 program, the default watch target
// for liquidity-pool creation.
const RaydiumProgramID = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"

const (
	reconnectBase = time.Second
	reconnectMax  = 30 * time.Second
	readTimeout   = 90 * time.Second
)

// Match is one log notification that mentioned the watched program.
type Match struct {
	Signature string
	Logs      []string
}

// Watcher maintains one logsSubscribe subscription with reconnects.
// Attach and Teardown are idempotent.
type Watcher struct {
	url     string
	program string
	dialer  *websocket.Dialer

	// OnMatch is invoked from the read loop for every successful
	// transaction mentioning the program. Must not block.
	OnMatch func(m Match)

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewWatcher creates a watcher for a program on a websocket RPC endpoint.
// An empty program defaults to the Raydium AMM.
func NewWatcher(wsURL, program string) *Watcher {
	if program == "" {
		program = RaydiumProgramID
	}
	return &Watcher{
		url:     wsURL,
		program: program,
		dialer:  websocket.DefaultDialer,
	}
}

// Program returns the watched program id.
func (w *Watcher) Program() string { return w.program }

// Attach starts the subscription loop. A second attach on a running
// watcher is a no-op.
func (w *Watcher) Attach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go func() {
		defer close(w.done)
		w.run(ctx)
	}()
	log.Printf("[trigger] attached to program %s", w.program)
}

// Teardown stops the loop and waits for it to exit. Safe to call twice.
func (w *Watcher) Teardown() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	log.Printf("[trigger] detached from program %s", w.program)
}

// Running reports whether the subscription loop is active.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// run dials, subscribes, and reads until cancelled, reconnecting with
// capped exponential backoff on any failure.
func (w *Watcher) run(ctx context.Context) {
	delay := reconnectBase
	for {
		if err := w.session(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[trigger] %s session error, reconnecting in %v: %v", w.program, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > reconnectMax {
				delay = reconnectMax
			}
			continue
		}
		return
	}
}

func (w *Watcher) session(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the context dies so ReadMessage unblocks.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	sub := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string][]string{"mentions": {w.program}},
			map[string]string{"commitment": "processed"},
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.handleMessage(data)
	}
}

func (w *Watcher) handleMessage(data []byte) {
	var msg struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string          `json:"signature"`
					Err       json.RawMessage `json:"err"`
					Logs      []string        `json:"logs"`
				} `json:"value"`
			} `json:"result"`
		} `json:"params"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if msg.Method != "logsNotification" {
		return
	}
	v := msg.Params.Result.Value
	// Failed transactions carry a non-null err; skip them.
	if len(v.Err) > 0 && string(v.Err) != "null" {
		return
	}
	if w.OnMatch != nil {
		w.OnMatch(Match{Signature: v.Signature, Logs: v.Logs})
	}
}
