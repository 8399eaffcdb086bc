// Package api exposes the REST and WebSocket surface of the controller.
// Every mutation routes through the engine; handlers never touch the state
// document directly.
package api

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"soltrader/internal/engine"
	"soltrader/internal/gateway"
	"soltrader/internal/logger"
	"soltrader/internal/market"
	"soltrader/internal/model"
)

// Server holds the handler dependencies.
type Server struct {
	engine *engine.Engine
	hub    *gateway.Hub
	cache  *market.Cache
	apiKey string // empty disables auth
}

// NewServer builds the API server.
func NewServer(eng *engine.Engine, hub *gateway.Hub, cache *market.Cache, apiKey string) *Server {
	return &Server{engine: eng, hub: hub, cache: cache, apiKey: apiKey}
}

// Router assembles the route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/strategies", s.handleStrategies)
	mux.HandleFunc("/api/strategies/", s.handleStrategyByID)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/wallets", s.handleWallets)
	mux.HandleFunc("/api/wallets/", s.handleWalletByKey)
	mux.HandleFunc("/api/trade", s.handleTrade)
	mux.HandleFunc("/api/portfolio/history", s.handlePortfolioHistory)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.HandleFunc("/api/market", s.handleMarket)
	mux.HandleFunc("/api/reset", s.handleReset)

	if s.hub != nil {
		mux.HandleFunc("/ws", s.hub.ServeWS)
	}

	return s.accessLog(s.auth(mux))
}

// accessLog tags each request with a trace ID and emits a structured access
// log line once the handler returns.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The WebSocket upgrade needs the raw ResponseWriter (Hijacker).
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		ctx := logger.WithTraceID(r.Context(), logger.NewTraceID("api"))
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r.WithContext(ctx))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
		}
		attrs = append(attrs, logger.LogWithTrace(ctx)...)
		slog.Info("request", attrs...)
	})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// auth enforces the bearer key on every /api route. The WebSocket endpoint
// and health surface stay open: observers are read-only.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && strings.HasPrefix(r.URL.Path, "/api/") {
			header := r.Header.Get("Authorization")
			if header != "Bearer "+s.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	settings := s.engine.Settings()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trading_active": s.engine.TradingActive(),
		"simulated":      settings.Simulated,
		"stats":          s.engine.Stats(),
		"strategies":     len(s.engine.Strategies()),
		"wallets":        len(s.engine.Wallets()),
		"market_tokens":  s.cache.Len(),
	})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.engine.StartTrading()
	writeJSON(w, http.StatusOK, map[string]bool{"trading_active": true})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.engine.StopTrading()
	writeJSON(w, http.StatusOK, map[string]bool{"trading_active": false})
}

type createStrategyRequest struct {
	Type            model.StrategyType   `json:"type"`
	WalletPublicKey string               `json:"wallet_public_key"`
	Config          model.StrategyConfig `json:"config"`
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Strategies())
	case http.MethodPost:
		var req createStrategyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := s.engine.CreateStrategy(req.Type, req.Config, req.WalletPublicKey)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w)
	}
}

// handleStrategyByID routes /api/strategies/{id}[/start|/stop].
func (s *Server) handleStrategyByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/strategies/")
	id, verb, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusNotFound, "strategy id required")
		return
	}

	var err error
	switch {
	case verb == "start" && r.Method == http.MethodPost:
		err = s.engine.StartStrategy(id)
	case verb == "stop" && r.Method == http.MethodPost:
		err = s.engine.StopStrategy(id)
	case verb == "" && r.Method == http.MethodDelete:
		err = s.engine.DeleteStrategy(id)
	default:
		methodNotAllowed(w)
		return
	}
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type updateSettingsRequest struct {
	model.Settings
	TOTPCode string `json:"totp_code,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Settings())
	case http.MethodPut:
		var req updateSettingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.engine.UpdateSettings(req.Settings, req.TOTPCode); err != nil {
			writeError(w, http.StatusForbidden, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.engine.Settings())
	default:
		methodNotAllowed(w)
	}
}

type createWalletRequest struct {
	PublicKey string `json:"public_key"`
	Label     string `json:"label"`
	Simulated bool   `json:"simulated"`
}

func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.engine.Wallets())
	case http.MethodPost:
		var req createWalletRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := s.engine.CreateWallet(req.PublicKey, req.Label, req.Simulated)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleWalletByKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/wallets/")
	if err := s.engine.DeleteWallet(key); err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleTrade(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req engine.ManualTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	out, err := s.engine.ManualTrade(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.PortfolioHistory())
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := queryInt(r, "limit", 200)
	writeJSON(w, http.StatusOK, s.engine.Logs(limit))
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := queryInt(r, "limit", 100)
	trades, err := s.engine.Trades(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "trade journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.cache.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.engine.Reset(); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
