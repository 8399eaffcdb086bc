package strategy

import (
	"context"
	"time"

	"soltrader/internal/execution"
	"soltrader/internal/model"
)

// backfillEntryPrices resolves missing entry prices from the market
// snapshot before any exit math runs. Positions restored from an older
// document (or opened before a price was known) can carry a zero entry
// price, and a zero entry makes every PnL percentage meaningless.
//
// The lookup is a one-way state machine per strategy: None marks the gap
// on the first tick, Pending resolves from subsequent snapshots (falling
// back to a live price lookup when the snapshot stays dry), Resolved ends
// it. Returns true while the lookup is still in flight.
func backfillEntryPrices(ctx context.Context, tick *Tick, s *model.Strategy) bool {
	missing := false
	for i := range s.Positions {
		if s.Positions[i].EntryPrice <= 0 {
			missing = true
			break
		}
	}
	if !missing {
		if s.PriceLookup == model.LookupPending {
			s.PriceLookup = model.LookupResolved
		}
		return false
	}

	if s.PriceLookup == model.LookupNone {
		s.PriceLookup = model.LookupPending
		tick.logf(model.LogInfo, "strategy %s: resolving entry prices for %d position(s)", s.ID, len(s.Positions))
		return true
	}

	// Pending: fill what the snapshot knows, then ask the live lookup
	// for anything the snapshot does not carry.
	unresolved := 0
	for i := range s.Positions {
		pos := &s.Positions[i]
		if pos.EntryPrice > 0 {
			continue
		}
		if tok := model.FindToken(tick.Tokens, pos.Asset); tok != nil && tok.Price > 0 {
			pos.EntryPrice = tok.Price
			tick.logf(model.LogInfo, "strategy %s: backfilled %s entry at %.8f", s.ID, pos.Asset, tok.Price)
			continue
		}
		if tick.SpotPrice != nil {
			price, err := tick.SpotPrice(ctx, pos.Asset)
			if err != nil {
				tick.logf(model.LogWarn, "strategy %s: live price lookup for %s failed: %v", s.ID, pos.Asset, err)
			} else if price > 0 {
				pos.EntryPrice = price
				tick.logf(model.LogInfo, "strategy %s: backfilled %s entry at %.8f from live lookup", s.ID, pos.Asset, price)
				continue
			}
		}
		unresolved++
	}
	if unresolved == 0 {
		s.PriceLookup = model.LookupResolved
		return false
	}
	return true
}

// manageExits closes positions that hit the take-profit or stop-loss
// bounds. Realized PnL is recorded exactly once, when the position is
// removed after a successful sell; failed sells keep the position for the
// next tick.
func manageExits(ctx context.Context, tick *Tick, s *model.Strategy, tpPct, slPct float64, slippageBps int) {
	if len(s.Positions) == 0 {
		return
	}
	if tpPct <= 0 {
		tpPct = DefaultTakeProfitPct
	}
	if slPct <= 0 {
		slPct = DefaultStopLossPct
	}
	if backfillEntryPrices(ctx, tick, s) {
		return
	}

	kept := make([]model.Position, 0, len(s.Positions))
	for i := range s.Positions {
		pos := s.Positions[i]
		tok := model.FindToken(tick.Tokens, pos.Asset)
		if tok == nil || tok.Price <= 0 {
			kept = append(kept, pos)
			continue
		}

		pnl := pos.PnLPct(tok.Price)
		var reason string
		switch {
		case pnl >= tpPct:
			reason = "take profit"
		case pnl <= -slPct:
			reason = "stop loss"
		default:
			kept = append(kept, pos)
			continue
		}

		out := tick.Provider.Execute(ctx, execution.Request{
			StrategyID:  s.ID,
			Action:      execution.ActionSell,
			Asset:       pos.Asset,
			Mint:        tok.Address,
			SizeSOL:     pos.Size,
			Price:       tok.Price,
			SlippageBps: slippageBps,
			Reason:      reason,
		})
		if !out.Success {
			tick.logf(model.LogWarn, "strategy %s: %s sell of %s failed: %s", s.ID, reason, pos.Asset, out.Message)
			kept = append(kept, pos)
			continue
		}

		// LastTradeAsset/LastTradeAt track buys only; sells leave them.
		realized := pos.Size * pnl / 100
		tick.Stats.RecordClose(realized)
		tick.logf(model.LogSuccess, "strategy %s: closed %s on %s at %.8f (%+.2f%%)",
			s.ID, pos.Asset, reason, out.Price, pnl)
	}
	s.Positions = kept
}

// openPosition buys into an asset and appends the position on success.
func openPosition(ctx context.Context, tick *Tick, s *model.Strategy, tok model.Token, sizeSOL float64, slippageBps int, reason string) bool {
	out := tick.Provider.Execute(ctx, execution.Request{
		StrategyID:  s.ID,
		Action:      execution.ActionBuy,
		Asset:       tok.Symbol,
		Mint:        tok.Address,
		SizeSOL:     sizeSOL,
		Price:       tok.Price,
		SlippageBps: slippageBps,
		Reason:      reason,
	})
	if !out.Success {
		tick.logf(model.LogWarn, "strategy %s: buy %s failed: %s", s.ID, tok.Symbol, out.Message)
		return false
	}

	s.Positions = append(s.Positions, model.Position{
		Asset:       tok.Symbol,
		EntryPrice:  out.Price,
		Size:        out.FilledSize,
		SettledSize: out.FilledSize,
		OpenedAt:    tick.Now.UnixMilli(),
	})
	s.LastTradeAsset = tok.Symbol
	s.LastTradeAt = tick.Now.UnixMilli()
	tick.logf(model.LogSuccess, "strategy %s: opened %s size=%.4f at %.8f (%s)",
		s.ID, tok.Symbol, out.FilledSize, out.Price, reason)
	return true
}

// holdsAsset reports whether the strategy has an open position in the asset.
func holdsAsset(s *model.Strategy, asset string) bool {
	for i := range s.Positions {
		if s.Positions[i].Asset == asset {
			return true
		}
	}
	return false
}

// sinceMs returns the elapsed time since a unix-millisecond stamp.
func sinceMs(now time.Time, ms int64) time.Duration {
	if ms == 0 {
		return time.Duration(1<<62 - 1)
	}
	return now.Sub(time.UnixMilli(ms))
}
