// Package portfolio turns the state document plus the market snapshot into
// portfolio metrics: per-position views, unrealized PnL, and the append-only
// value time series observers chart.
package portfolio

import (
	"time"

	"soltrader/internal/model"
)

// BuildSnapshot prices the current holdings. Positions with an unknown
// entry price or an unpriced asset contribute zero unrealized PnL rather
// than NaN; their market value still counts when a price exists.
func BuildSnapshot(st *model.State, tokens []model.Token, now time.Time) model.PortfolioSnapshot {
	snap := model.PortfolioSnapshot{
		Timestamp:   now.UnixMilli(),
		RealizedPnL: st.Stats.RealizedPnL,
		WinRate:     st.Stats.WinRate,
		TotalTrades: st.Stats.TotalTrades,
	}

	for i := range st.Wallets {
		w := &st.Wallets[i]
		sol := float64(w.BalanceLamports) / float64(model.LamportsPerSOL)
		if w.IsSimulated {
			snap.SimValue += sol
		} else {
			snap.LiveValue += sol
		}
	}

	for i := range st.Strategies {
		s := &st.Strategies[i]
		for j := range s.Positions {
			view := priceView(&s.Positions[j], tokens)
			snap.Positions = append(snap.Positions, view)
			snap.UnrealizedPnL += view.Value * view.PnLPct / 100
			snap.SimValue += view.Value
		}
	}
	for i := range st.Wallets {
		w := &st.Wallets[i]
		for j := range w.Positions {
			view := priceView(&w.Positions[j], tokens)
			snap.Positions = append(snap.Positions, view)
			snap.UnrealizedPnL += view.Value * view.PnLPct / 100
			if w.IsSimulated {
				snap.SimValue += view.Value
			} else {
				snap.LiveValue += view.Value
			}
		}
	}
	return snap
}

func priceView(pos *model.Position, tokens []model.Token) model.PositionView {
	view := model.PositionView{
		Asset:      pos.Asset,
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
	}
	tok := model.FindToken(tokens, pos.Asset)
	if tok != nil && tok.Price > 0 {
		view.CurrentPrice = tok.Price
		if pos.EntryPrice > 0 {
			view.PnLPct = pos.PnLPct(tok.Price)
		}
	}
	// Position sizes are SOL notionals, so value tracks the entry notional
	// adjusted by the move since entry.
	view.Value = pos.Size * (1 + view.PnLPct/100)
	return view
}

// AppendHistory adds a snapshot to the document's time series, evicting
// the oldest entries past the cap.
func AppendHistory(st *model.State, snap model.PortfolioSnapshot) {
	st.PortfolioHistory = append(st.PortfolioHistory, snap)
	if len(st.PortfolioHistory) > model.MaxPortfolioHistory {
		st.PortfolioHistory = st.PortfolioHistory[len(st.PortfolioHistory)-model.MaxPortfolioHistory:]
	}
}

// OpenPositionCount counts open positions across strategies and wallets.
func OpenPositionCount(st *model.State) int {
	n := 0
	for i := range st.Strategies {
		n += len(st.Strategies[i].Positions)
	}
	for i := range st.Wallets {
		n += len(st.Wallets[i].Positions)
	}
	return n
}

// ExposureSOL sums the SOL notional of every open position.
func ExposureSOL(st *model.State) float64 {
	total := 0.0
	for i := range st.Strategies {
		for j := range st.Strategies[i].Positions {
			total += st.Strategies[i].Positions[j].Size
		}
	}
	for i := range st.Wallets {
		for j := range st.Wallets[i].Positions {
			total += st.Wallets[i].Positions[j].Size
		}
	}
	return total
}
