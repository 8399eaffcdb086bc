// cmd/traderd — the autonomous trading controller daemon.
//
// Boots the persisted state (forcing every strategy STOPPED), primes the
// market cache, and serves the REST/WebSocket surface plus the metrics and
// health endpoints. Trading stays off until an operator calls /api/start.
//
// Config (env vars): see config.Load for the full list. The important ones:
//
//	LISTEN_ADDR     — REST/WS listen address          (default ":8080")
//	METRICS_ADDR    — metrics/health listen address   (default ":9090")
//	SQLITE_PATH     — state document database         (default "data/state.db")
//	JOURNAL_PATH    — trade journal database          (default "data/journal.db")
//	REDIS_ADDR      — optional event mirror, empty disables it
//	WALLET_SEED     — base64 signing seed, empty disables live execution
//	API_KEY         — bearer key for /api, empty disables auth
//	TOTP_SECRET     — authenticator secret arming live-mode flips
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"soltrader/config"
	"soltrader/internal/api"
	"soltrader/internal/engine"
	"soltrader/internal/execution"
	"soltrader/internal/gateway"
	"soltrader/internal/logger"
	"soltrader/internal/market"
	"soltrader/internal/metrics"
	redisstore "soltrader/internal/store/redis"
	sqlitestore "soltrader/internal/store/sqlite"
	"soltrader/internal/venue"
	"soltrader/internal/wallet"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[traderd] starting...")

	logger.Init("traderd", slog.LevelInfo)
	cfg := config.Load()

	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Stores ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.NewStateStore(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[traderd] state store init failed: %v", err)
	}
	defer store.Close()
	log.Println("[traderd] state store ready")

	journal, err := execution.NewJournal(cfg.JournalPath)
	if err != nil {
		log.Fatalf("[traderd] trade journal init failed: %v", err)
	}
	defer journal.Close()
	log.Println("[traderd] trade journal ready")

	// ---- Redis mirror (optional) ----
	var mirror *redisstore.Mirror
	if cfg.RedisAddr != "" {
		mirror, err = redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			log.Printf("[traderd] WARNING: redis init failed: %v (continuing without mirror)", err)
			mirror = nil
		} else {
			log.Println("[traderd] redis mirror ready")
			mirror.OnBuffer = func() {
				prom.RedisBufferedEvents.Set(float64(mirror.PendingCount()))
			}
			mirror.OnFlush = func(n int) {
				log.Printf("[traderd] redis mirror flushed %d buffered events", n)
				prom.RedisBufferedEvents.Set(float64(mirror.PendingCount()))
			}
			defer mirror.Close()
		}
	}

	// ---- Observer hub ----
	hub := gateway.NewHub(mirror)
	hub.OnClientCount = func(n int) {
		prom.WSClients.Set(float64(n))
	}

	// ---- Venue clients ----
	rpc := venue.NewRPCClient(cfg.SolanaRPCURL)
	jupiter := venue.NewJupiterClient(cfg.JupiterQuoteAPI, cfg.JupiterSwapAPI)
	jito := venue.NewJitoClient(cfg.JitoBundleAPI)

	// ---- Execution providers ----
	paper := execution.NewPaperProvider(cfg.DefaultSlippageBps, journal)

	var real *execution.RealProvider
	if cfg.WalletSeed != "" {
		kp, err := wallet.FromEncoded(cfg.WalletSeed)
		if err != nil {
			log.Fatalf("[traderd] invalid WALLET_SEED: %v", err)
		}
		real = execution.NewRealProvider(jupiter, jito, rpc, kp, journal)
		log.Printf("[traderd] live execution armed for wallet %s", kp.PublicKey())
	} else {
		log.Println("[traderd] no WALLET_SEED set, live execution disabled")
	}

	// ---- Engine ----
	cache := market.NewCache()
	eng, err := engine.New(engine.Options{
		Config:  cfg,
		Store:   store,
		Journal: journal,
		Cache:   cache,
		Scanner: market.NewScanner(),
		Paper:   paper,
		Real:    real,
		RPC:     rpc,
		Hub:     hub,
		Metrics: prom,
		Health:  health,
	})
	if err != nil {
		log.Fatalf("[traderd] engine init failed: %v", err)
	}
	if real != nil {
		real.Tier = eng.PriorityTier
	}
	if err := eng.Boot(); err != nil {
		log.Fatalf("[traderd] boot failed: %v", err)
	}

	// ---- Liveness checks ----
	health.StartLivenessChecker(ctx, mirror.Client(), store.DB(), 15*time.Second)

	// ---- REST / WebSocket server ----
	apiSrv := api.NewServer(eng, hub, cache, cfg.APIKey)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiSrv.Router(),
	}
	go func() {
		log.Printf("[traderd] api listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[traderd] api server error: %v", err)
		}
	}()

	// ---- Run until signalled ----
	go func() {
		sig := <-sigCh
		log.Printf("[traderd] received %v, shutting down", sig)
		cancel()
	}()

	eng.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	log.Println("[traderd] bye")
}
