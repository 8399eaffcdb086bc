package portfolio

import (
	"sync"

	"soltrader/internal/model"
)

// RiskLimits defines the guardrails applied to every new entry.
type RiskLimits struct {
	MaxOpenPositions int     `json:"max_open_positions"`
	MaxExposureSOL   float64 `json:"max_exposure_sol"`   // total open notional
	MaxDailyLossSOL  float64 `json:"max_daily_loss_sol"` // realized, resets with the process
	MaxDrawdownPct   float64 `json:"max_drawdown_pct"`
}

// DefaultRiskLimits returns conservative defaults for an unattended bot.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxOpenPositions: 10,
		MaxExposureSOL:   50,
		MaxDailyLossSOL:  5,
		MaxDrawdownPct:   25,
	}
}

// RiskManager validates new entries against the limits and tracks equity.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits

	dailyPnL   float64
	equity     float64
	peakEquity float64
}

// NewRiskManager creates a manager seeded with the starting equity in SOL.
func NewRiskManager(limits RiskLimits, initialEquity float64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// CanTrade checks whether opening sizeSOL more exposure would violate any
// limit. Returns false with the reason if not.
func (rm *RiskManager) CanTrade(st *model.State, sizeSOL float64) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if OpenPositionCount(st) >= rm.limits.MaxOpenPositions {
		return false, "max open positions reached"
	}
	if ExposureSOL(st)+sizeSOL > rm.limits.MaxExposureSOL {
		return false, "max exposure exceeded"
	}
	if rm.dailyPnL < -rm.limits.MaxDailyLossSOL {
		return false, "max daily loss reached"
	}
	if rm.peakEquity > 0 {
		drawdown := (rm.peakEquity - rm.equity) / rm.peakEquity * 100
		if drawdown > rm.limits.MaxDrawdownPct {
			return false, "max drawdown exceeded"
		}
	}
	return true, ""
}

// RecordPnL folds realized PnL into the daily and equity tallies.
func (rm *RiskManager) RecordPnL(pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}
}

// Limits returns the configured limits.
func (rm *RiskManager) Limits() RiskLimits {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.limits
}
