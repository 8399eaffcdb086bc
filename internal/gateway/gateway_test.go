package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestReplayLog_EvictsOldestAndBackfills(t *testing.T) {
	l := newReplayLog(4)
	for seq := int64(1); seq <= 6; seq++ {
		l.push(seq, []byte(fmt.Sprintf("e%d", seq)))
	}
	if l.size() != 4 {
		t.Fatalf("size = %d, want 4", l.size())
	}

	// 1 and 2 fell off; a client behind the horizon gets what is left.
	got := l.since(0)
	if len(got) != 4 || string(got[0]) != "e3" {
		t.Fatalf("since(0) = %d frames, first %q", len(got), got[0])
	}

	got = l.since(4)
	if len(got) != 2 {
		t.Fatalf("since(4) len = %d, want 2", len(got))
	}
	if string(got[0]) != "e5" || string(got[1]) != "e6" {
		t.Errorf("since(4) = %q, %q", got[0], got[1])
	}

	if got := l.since(6); len(got) != 0 {
		t.Errorf("since(6) returned %d frames, want 0", len(got))
	}
}

func TestHub_EmitSequencesAndLatest(t *testing.T) {
	h := NewHub(nil)
	h.Emit("log", map[string]string{"msg": "a"})
	h.Emit("portfolio", map[string]int{"v": 1})
	h.Emit("log", map[string]string{"msg": "b"})

	if h.Seq() != 3 {
		t.Errorf("seq = %d, want 3", h.Seq())
	}
	latest := h.Latest()
	if len(latest) != 2 {
		t.Fatalf("latest kinds = %d, want 2", len(latest))
	}
	var m map[string]string
	json.Unmarshal(latest["log"].Data, &m)
	if m["msg"] != "b" {
		t.Errorf("latest log = %+v", m)
	}
	if latest["log"].Seq != 3 {
		t.Errorf("latest log seq = %d", latest["log"].Seq)
	}
}

func TestHub_ReplayFromSeq(t *testing.T) {
	h := NewHub(nil)
	for i := 0; i < 5; i++ {
		h.Emit("log", map[string]int{"i": i})
	}
	frames := h.Replay(3)
	if len(frames) != 2 {
		t.Fatalf("replay len = %d, want 2", len(frames))
	}
	var env Envelope
	json.Unmarshal(frames[0], &env)
	if env.Seq != 4 {
		t.Errorf("first replayed seq = %d, want 4", env.Seq)
	}
}

func dialHub(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelopes(t *testing.T, conn *websocket.Conn, want int) []Envelope {
	t.Helper()
	var envs []Envelope
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for len(envs) < want {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read after %d envelopes: %v", len(envs), err)
		}
		// Coalesced frames are newline separated.
		for _, part := range strings.Split(string(frame), "\n") {
			if part == "" {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(part), &env); err != nil {
				t.Fatalf("bad envelope %q: %v", part, err)
			}
			envs = append(envs, env)
		}
	}
	return envs
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.Emit("trade", map[string]string{"asset": "BONK"})
	envs := readEnvelopes(t, conn, 1)
	if envs[0].Event != "trade" {
		t.Errorf("event = %q", envs[0].Event)
	}
}

func TestHub_ReconnectBackfill(t *testing.T) {
	h := NewHub(nil)
	h.Emit("log", map[string]int{"i": 1})
	h.Emit("log", map[string]int{"i": 2})
	h.Emit("log", map[string]int{"i": 3})

	conn := dialHub(t, h, "?from_seq=1")
	envs := readEnvelopes(t, conn, 2)
	if envs[0].Seq != 2 || envs[1].Seq != 3 {
		t.Errorf("backfill seqs = %d,%d want 2,3", envs[0].Seq, envs[1].Seq)
	}
}
