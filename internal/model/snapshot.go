package model

// PositionView is one open holding priced for observers.
type PositionView struct {
	Asset        string  `json:"asset"`
	Size         float64 `json:"size"`
	EntryPrice   float64 `json:"entry_price"`
	CurrentPrice float64 `json:"current_price"`
	PnLPct       float64 `json:"pnl_pct"`
	Value        float64 `json:"value"`
}

// PortfolioSnapshot is one point of the append-only portfolio time series.
// Snapshots are the only durable record of the series; they are never
// recomputed retroactively.
type PortfolioSnapshot struct {
	Timestamp     int64          `json:"timestamp"` // unix ms
	SimValue      float64        `json:"sim_value"`
	LiveValue     float64        `json:"live_value"`
	RealizedPnL   float64        `json:"realized_pnl"`
	UnrealizedPnL float64        `json:"unrealized_pnl"`
	WinRate       float64        `json:"win_rate"`
	TotalTrades   int            `json:"total_trades"`
	Positions     []PositionView `json:"positions"`
}

// MaxPortfolioHistory bounds the persisted time series (FIFO eviction).
const MaxPortfolioHistory = 2000
