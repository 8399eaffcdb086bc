// Package model defines the shared data types for the trading controller:
// the persisted state document (strategies, wallets, settings, stats, logs,
// portfolio history) and the in-memory market snapshot rows.
package model

// StrategyType identifies the processor that evaluates a strategy.
type StrategyType string

const (
	StrategySniper   StrategyType = "SNIPER"
	StrategyDCA      StrategyType = "DCA"
	StrategyMomentum StrategyType = "MOMENTUM_HUNTER"
)

// StrategyStatus is the lifecycle state of a strategy.
type StrategyStatus string

const (
	StatusStopped   StrategyStatus = "STOPPED"
	StatusRunning   StrategyStatus = "RUNNING"
	StatusPaused    StrategyStatus = "PAUSED"
	StatusCompleted StrategyStatus = "COMPLETED"
)

// LookupState tracks an in-flight async entry-price lookup.
// Monotonic: None -> Pending -> Resolved. A second tick must never
// double-issue the same lookup.
type LookupState int

const (
	LookupNone LookupState = iota
	LookupPending
	LookupResolved
)

// SniperConfig configures a one-shot liquidity snipe on a target asset.
// An empty TargetAsset degrades the strategy to momentum scanning.
type SniperConfig struct {
	TargetAsset   string  `json:"target_asset"`
	SizeSOL       float64 `json:"size_sol"`
	TakeProfitPct float64 `json:"take_profit_pct"`
	StopLossPct   float64 `json:"stop_loss_pct"`
	SlippageBps   int     `json:"slippage_bps"`
}

// DCAConfig configures a fixed-interval accumulation strategy.
type DCAConfig struct {
	TargetAsset  string  `json:"target_asset"`
	SizePerOrder float64 `json:"size_per_order"`
	TotalSize    float64 `json:"total_size"`
	IntervalMs   int64   `json:"interval_ms"`
	SlippageBps  int     `json:"slippage_bps"`
}

// MomentumConfig configures the market-wide momentum hunter.
type MomentumConfig struct {
	MinChange24hPct float64 `json:"min_change_24h_pct"`
	MinVolume24h    float64 `json:"min_volume_24h"`
	MaxPositions    int     `json:"max_positions"`
	SizePerPosition float64 `json:"size_per_position"`
	TakeProfitPct   float64 `json:"take_profit_pct"`
	StopLossPct     float64 `json:"stop_loss_pct"`
	SlippageBps     int     `json:"slippage_bps"`
}

// StrategyConfig is a tagged union keyed by Strategy.Type. Exactly the
// member matching the type is set; processors only read their own member.
type StrategyConfig struct {
	Sniper   *SniperConfig   `json:"sniper,omitempty"`
	DCA      *DCAConfig      `json:"dca,omitempty"`
	Momentum *MomentumConfig `json:"momentum,omitempty"`
}

// Strategy is one user-defined trading strategy. Owned exclusively by the
// engine: mutated only inside a tick or through the strategy CRUD surface,
// never concurrently with itself.
type Strategy struct {
	ID              string         `json:"id"`
	Type            StrategyType   `json:"type"`
	Status          StrategyStatus `json:"status"`
	WalletPublicKey string         `json:"wallet_public_key,omitempty"`
	Config          StrategyConfig `json:"config"`

	Positions       []Position `json:"positions"`
	LastExecutionAt int64      `json:"last_execution_at"` // unix ms, 0 = never
	ExecutedSize    float64    `json:"executed_size"`
	LastTradeAsset  string     `json:"last_trade_asset,omitempty"`
	LastTradeAt     int64      `json:"last_trade_at"`

	// Runtime-only async guard for the paper sniper price lookup.
	// Not persisted: a restart resets the state machine along with the
	// forced STOPPED status.
	PriceLookup LookupState `json:"-"`
}

// ClearRuntimeState zeroes the per-strategy counters and open positions.
// Used by reset and by strategy recreation.
func (s *Strategy) ClearRuntimeState() {
	s.Positions = nil
	s.LastExecutionAt = 0
	s.ExecutedSize = 0
	s.LastTradeAsset = ""
	s.LastTradeAt = 0
	s.PriceLookup = LookupNone
}
