package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"soltrader/config"
	"soltrader/internal/engine"
	"soltrader/internal/execution"
	"soltrader/internal/market"
	"soltrader/internal/model"
	"soltrader/internal/store/sqlite"
)

func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *market.Cache) {
	t.Helper()

	cfg := &config.Config{
		TickInterval:       200 * time.Millisecond,
		MonitorInterval:    time.Second,
		MarketRefresh:      time.Minute,
		SQLitePath:         filepath.Join(t.TempDir(), "state.db"),
		DefaultSimBalance:  100,
		DefaultSlippageBps: 0,
	}
	store, err := sqlite.NewStateStore(cfg.SQLitePath)
	if err != nil {
		t.Fatalf("state store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache := market.NewCache()
	eng, err := engine.New(engine.Options{
		Config: cfg,
		Store:  store,
		Cache:  cache,
		Paper:  execution.NewPaperProvider(0, nil),
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	if err := eng.Boot(); err != nil {
		t.Fatalf("boot: %v", err)
	}

	srv := httptest.NewServer(NewServer(eng, nil, cache, apiKey).Router())
	t.Cleanup(srv.Close)
	return srv, cache
}

func doJSON(t *testing.T, method, url, apiKey string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := newTestServer(t, "sekrit")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/status", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/status", "wrong", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/status", "sekrit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthDisabledWhenNoKey(t *testing.T) {
	srv, _ := newTestServer(t, "")
	resp := doJSON(t, http.MethodGet, srv.URL+"/api/status", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStrategyEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/strategies", "", map[string]interface{}{
		"type": "DCA",
		"config": map[string]interface{}{
			"dca": map[string]interface{}{
				"target_asset": "SOL", "size_per_order": 0.1, "total_size": 1, "interval_ms": 60000,
			},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status = %d, want 201", resp.StatusCode)
	}
	var created model.Strategy
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode created: %v", err)
	}
	if created.ID == "" || created.Status != model.StatusStopped {
		t.Fatalf("created = %+v, want non-empty id with STOPPED status", created)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/strategies", "", map[string]string{"type": "GRID"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown type: status = %d, want 400", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/strategies/"+created.ID+"/start", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/strategies/"+created.ID+"/stop", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop: status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/strategies/"+created.ID, "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete: status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/strategies/nope/start", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("start unknown: status = %d, want 404", resp.StatusCode)
	}
}

func TestSettingsLiveFlipRejected(t *testing.T) {
	srv, _ := newTestServer(t, "")

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/settings", "", nil)
	var settings model.Settings
	if err := json.NewDecoder(resp.Body).Decode(&settings); err != nil {
		t.Fatalf("decode settings: %v", err)
	}
	if !settings.Simulated {
		t.Fatal("default settings should be simulated")
	}

	settings.Simulated = false
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/settings", "", settings)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("live flip without wallet: status = %d, want 403", resp.StatusCode)
	}
}

func TestTradeAndReset(t *testing.T) {
	srv, cache := newTestServer(t, "")
	cache.Replace([]model.Token{{Address: "bonk-mint", Symbol: "BONK", Price: 2.0, Rank: 1}})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/wallets", "", map[string]interface{}{
		"public_key": "SimWallet1", "label": "paper", "simulated": true,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create wallet: status = %d, want 201", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/trade", "", map[string]interface{}{
		"wallet_public_key": "SimWallet1", "action": "BUY", "asset": "BONK", "size_sol": 1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trade: status = %d, want 200", resp.StatusCode)
	}
	var out execution.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode outcome: %v", err)
	}
	if !out.Success {
		t.Fatalf("trade outcome: %+v", out)
	}

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/reset", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset: status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/wallets", "", nil)
	var wallets []model.Wallet
	if err := json.NewDecoder(resp.Body).Decode(&wallets); err != nil {
		t.Fatalf("decode wallets: %v", err)
	}
	if len(wallets) != 1 || len(wallets[0].Positions) != 0 {
		t.Fatalf("wallets after reset = %+v, want one empty wallet", wallets)
	}
}

func TestLogsAndMarket(t *testing.T) {
	srv, cache := newTestServer(t, "")
	cache.Replace([]model.Token{{Address: "m", Symbol: "SOL", Price: 150}})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/market", "", nil)
	var tokens []model.Token
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		t.Fatalf("decode market: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Symbol != "SOL" {
		t.Fatalf("market = %+v, want one SOL row", tokens)
	}

	resp = doJSON(t, http.MethodGet, srv.URL+"/api/logs?limit=5", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("logs: status = %d, want 200", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/logs", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("PUT logs: status = %d, want 405", resp.StatusCode)
	}
}
