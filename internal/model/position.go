package model

// Position is a single open holding created by a successful BUY.
//
// EntryPrice may be provisionally 0 when the fill raced the price feed
// (sniper entries). It must be backfilled from a live lookup or the market
// cache before any percentage-based exit logic may act on it.
type Position struct {
	Asset       string  `json:"asset"`                  // mint address or upper-cased symbol
	EntryPrice  float64 `json:"entry_price"`            // quote currency per unit, 0 = unknown
	Size        float64 `json:"size"`                   // asset units held
	SettledSize float64 `json:"settled_size,omitempty"` // raw units from the venue fill, used for real sells
	OpenedAt    int64   `json:"opened_at"`              // unix ms
}

// PnLPct returns the percentage move from entry to current.
// Callers must not use this while EntryPrice is zero.
func (p *Position) PnLPct(currentPrice float64) float64 {
	return (currentPrice - p.EntryPrice) / p.EntryPrice * 100
}
