package strategy

import (
	"context"

	"soltrader/internal/model"
)

// Sniper buys a single target asset once, then rides the position to its
// take-profit or stop-loss bound. With no target configured it degrades
// to taking the strongest momentum candidate instead.
type Sniper struct{}

// NewSniper creates the sniper processor.
func NewSniper() *Sniper { return &Sniper{} }

func (Sniper) Type() model.StrategyType { return model.StrategySniper }

func (Sniper) Process(ctx context.Context, tick *Tick, s *model.Strategy) {
	cfg := s.Config.Sniper
	if cfg == nil {
		tick.logf(model.LogError, "strategy %s: sniper config missing", s.ID)
		s.Status = model.StatusPaused
		return
	}

	manageExits(ctx, tick, s, cfg.TakeProfitPct, cfg.StopLossPct, cfg.SlippageBps)

	// One shot: entered and fully exited means done.
	if s.ExecutedSize > 0 && len(s.Positions) == 0 {
		s.Status = model.StatusCompleted
		tick.logf(model.LogSuccess, "strategy %s: sniper run complete", s.ID)
		return
	}
	if s.ExecutedSize > 0 || len(s.Positions) > 0 {
		return
	}

	// Live entries come from the on-chain watcher, never the tick.
	if !tick.Settings.Simulated {
		return
	}

	var tok *model.Token
	if cfg.TargetAsset != "" {
		tok = model.FindToken(tick.Tokens, cfg.TargetAsset)
		if tok == nil {
			tok = resolveTarget(ctx, tick, s, cfg.TargetAsset)
			if tok == nil {
				return
			}
		}
	} else {
		candidates := momentumCandidates(tick.Tokens, s, defaultMinChangePct, defaultMinVolume)
		if len(candidates) == 0 {
			return
		}
		tok = &candidates[0]
	}

	if openPosition(ctx, tick, s, *tok, cfg.SizeSOL, cfg.SlippageBps, "snipe entry") {
		s.ExecutedSize += cfg.SizeSOL
		s.LastExecutionAt = tick.Now.UnixMilli()
		s.PriceLookup = model.LookupResolved
	}
}

// resolveTarget runs the async price lookup for a target the snapshot does
// not carry. The first miss marks the lookup pending; later ticks query the
// live price until one lands. The state only moves to Resolved once the
// entry actually fills, so a failed buy retries on the next tick.
func resolveTarget(ctx context.Context, tick *Tick, s *model.Strategy, asset string) *model.Token {
	switch s.PriceLookup {
	case model.LookupNone:
		s.PriceLookup = model.LookupPending
		tick.logf(model.LogInfo, "strategy %s: %s not in market snapshot, resolving live price", s.ID, asset)
	case model.LookupPending:
		if tick.SpotPrice == nil {
			return nil
		}
		price, err := tick.SpotPrice(ctx, asset)
		if err != nil {
			tick.logf(model.LogWarn, "strategy %s: live price lookup for %s failed: %v", s.ID, asset, err)
			return nil
		}
		if price > 0 {
			return &model.Token{Symbol: asset, Price: price}
		}
	}
	return nil
}
