// Package gateway fans engine events out to WebSocket observers. Events
// carry a monotonic sequence number; a replay buffer lets a reconnecting
// client backfill the gap instead of resyncing from scratch.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"soltrader/internal/store/redis"

	"github.com/gorilla/websocket"
)

// Envelope is the wire format for one event.
type Envelope struct {
	Seq   int64           `json:"seq"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	TS    string          `json:"ts"`
}

// Hub manages WebSocket clients and event fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	latest  map[string]Envelope
	replay  *replayLog

	// mirror duplicates events to Redis for out-of-process consumers.
	// Nil disables mirroring.
	mirror *redis.Mirror

	upgrader websocket.Upgrader

	// OnClientCount is invoked on connect/disconnect (for metrics).
	OnClientCount func(n int)
}

// NewHub creates a hub. mirror may be nil.
func NewHub(mirror *redis.Mirror) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string]Envelope),
		replay:  newReplayLog(1024),
		mirror:  mirror,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Emit broadcasts an event to every connected client, records it for
// replay, and mirrors it to Redis. Slow clients are skipped, not waited on.
func (h *Hub) Emit(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[gateway] marshal %s: %v", event, err)
		return
	}

	h.mu.Lock()
	h.seq++
	env := Envelope{
		Seq:   h.seq,
		Event: event,
		Data:  data,
		TS:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	frame, err := json.Marshal(env)
	if err != nil {
		h.mu.Unlock()
		return
	}
	h.latest[event] = env
	h.replay.push(env.Seq, frame)
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			// client write queue full, drop for this client
		}
	}
	h.mu.Unlock()

	if h.mirror != nil {
		go h.mirror.PublishEvent(context.Background(), event, env)
	}
}

// ServeWS upgrades the request and registers the client. A from_seq query
// parameter replays buffered events newer than that sequence first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] upgrade: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	log.Printf("[gateway] client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.sendBacklog(r.URL.Query().Get("from_seq"))
	go client.writePump()
	go client.readPump()
}

// RemoveClient unregisters a client and closes its queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// Latest returns the most recent envelope per event type.
func (h *Hub) Latest() map[string]Envelope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]Envelope, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v
	}
	return cp
}

// Replay returns the retained frames with sequence numbers after fromSeq.
func (h *Hub) Replay(fromSeq int64) [][]byte {
	return h.replay.since(fromSeq)
}

// Seq returns the current sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
