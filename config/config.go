package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Chain / venue endpoints
	SolanaRPCURL    string
	SolanaWSURL     string
	JupiterQuoteAPI string
	JupiterSwapAPI  string
	JitoBundleAPI   string

	// Engine cadence
	TickInterval    time.Duration
	MonitorInterval time.Duration
	MarketRefresh   time.Duration

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	JournalPath   string
	MetricsAddr   string
	ListenAddr    string

	// Access control
	APIKey     string // bearer key for the REST surface, empty disables auth
	TOTPSecret string // arming secret for live-mode flips, empty disables the check

	// Signing
	WalletSeed string // base64 ed25519 seed; empty disables live execution

	// Trading defaults
	DefaultSimBalance  float64
	DefaultSlippageBps int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		SolanaRPCURL:    getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),
		SolanaWSURL:     getEnv("SOLANA_WS_URL", "wss://api.mainnet-beta.solana.com"),
		JupiterQuoteAPI: getEnv("JUPITER_QUOTE_API", "https://quote-api.jup.ag/v6/quote"),
		JupiterSwapAPI:  getEnv("JUPITER_SWAP_API", "https://quote-api.jup.ag/v6/swap"),
		JitoBundleAPI:   getEnv("JITO_BUNDLE_API", "https://mainnet.block-engine.jito.wtf/api/v1/bundles"),

		TickInterval:    getDurationMs("TICK_INTERVAL_MS", 200),
		MonitorInterval: getDurationMs("MONITOR_INTERVAL_MS", 1000),
		MarketRefresh:   getDurationMs("MARKET_REFRESH_MS", 60000),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "data/state.db"),
		JournalPath:   getEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:   getEnv("METRICS_ADDR", ":9090"),
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),

		APIKey:     getEnv("API_KEY", ""),
		TOTPSecret: getEnv("TOTP_SECRET", ""),

		WalletSeed: getEnv("WALLET_SEED", ""),

		DefaultSimBalance:  getFloat("DEFAULT_SIM_BALANCE", 100),
		DefaultSlippageBps: getInt("DEFAULT_SLIPPAGE_BPS", 50),
	}
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func getDurationMs(key string, fallbackMs int) time.Duration {
	return time.Duration(getInt(key, fallbackMs)) * time.Millisecond
}
