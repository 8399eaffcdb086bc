package trigger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// wsServer upgrades connections, checks the subscribe request, then sends
// the provided frames and holds the connection open.
func wsServer(t *testing.T, frames []interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Method string `json:"method"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Method != "logsSubscribe" {
			t.Errorf("expected logsSubscribe, got %q", sub.Method)
		}
		conn.WriteJSON(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": 42})

		for _, f := range frames {
			conn.WriteJSON(f)
		}
		// Hold open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func notification(signature string, errField interface{}, logs ...string) map[string]interface{} {
	return map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "logsNotification",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"value": map[string]interface{}{
					"signature": signature,
					"err":       errField,
					"logs":      logs,
				},
			},
		},
	}
}

func TestWatcher_DeliversMatchesAndSkipsFailedTxs(t *testing.T) {
	srv := wsServer(t, []interface{}{
		notification("sig-ok", nil, "Program log: initialize2"),
		notification("sig-failed", map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}, "x"),
		notification("sig-ok-2", nil, "Program log: swap"),
	})
	defer srv.Close()

	w := NewWatcher("ws"+strings.TrimPrefix(srv.URL, "http"), "")
	if w.Program() != RaydiumProgramID {
		t.Errorf("default program = %q", w.Program())
	}

	matches := make(chan Match, 8)
	w.OnMatch = func(m Match) { matches <- m }
	w.Attach()
	defer w.Teardown()

	var got []string
	timeout := time.After(3 * time.Second)
	for len(got) < 2 {
		select {
		case m := <-matches:
			got = append(got, m.Signature)
		case <-timeout:
			t.Fatalf("timed out, matches so far: %v", got)
		}
	}
	if got[0] != "sig-ok" || got[1] != "sig-ok-2" {
		t.Errorf("matches = %v", got)
	}
	select {
	case m := <-matches:
		t.Errorf("failed tx delivered: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatcher_AttachIdempotentTeardownTwice(t *testing.T) {
	srv := wsServer(t, nil)
	defer srv.Close()

	w := NewWatcher("ws"+strings.TrimPrefix(srv.URL, "http"), "Prog111")
	w.Attach()
	w.Attach() // no-op
	if !w.Running() {
		t.Fatal("watcher should be running")
	}

	w.Teardown()
	if w.Running() {
		t.Fatal("watcher should have stopped")
	}
	w.Teardown() // no-op
}

func TestHandleMessage_IgnoresNonNotifications(t *testing.T) {
	w := NewWatcher("ws://unused", "")
	called := false
	w.OnMatch = func(Match) { called = true }

	w.handleMessage([]byte(`{"jsonrpc":"2.0","id":1,"result":42}`))
	w.handleMessage([]byte(`not json`))
	if called {
		t.Fatal("subscription confirmations must not match")
	}

	frame, _ := json.Marshal(notification("sig", nil, "log"))
	w.handleMessage(frame)
	if !called {
		t.Fatal("valid notification dropped")
	}
}
