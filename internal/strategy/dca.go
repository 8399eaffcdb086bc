package strategy

import (
	"context"
	"math"

	"soltrader/internal/model"
)

// DCA accumulates a target asset in fixed slices on a fixed interval
// until the total size is filled, then completes. It never exits; the
// accumulated position is left for the owner.
type DCA struct{}

// NewDCA creates the dollar-cost-averaging processor.
func NewDCA() *DCA { return &DCA{} }

func (DCA) Type() model.StrategyType { return model.StrategyDCA }

func (DCA) Process(ctx context.Context, tick *Tick, s *model.Strategy) {
	cfg := s.Config.DCA
	if cfg == nil || cfg.TargetAsset == "" || cfg.SizePerOrder <= 0 || cfg.TotalSize <= 0 {
		tick.logf(model.LogError, "strategy %s: dca config invalid", s.ID)
		s.Status = model.StatusPaused
		return
	}

	if s.ExecutedSize >= cfg.TotalSize {
		s.Status = model.StatusCompleted
		tick.logf(model.LogSuccess, "strategy %s: dca filled %.4f/%.4f, complete", s.ID, s.ExecutedSize, cfg.TotalSize)
		return
	}

	if s.LastExecutionAt != 0 && sinceMs(tick.Now, s.LastExecutionAt).Milliseconds() < cfg.IntervalMs {
		return
	}

	tok := model.FindToken(tick.Tokens, cfg.TargetAsset)
	if tok == nil {
		tick.logf(model.LogWarn, "strategy %s: %s not in market snapshot", s.ID, cfg.TargetAsset)
		return
	}

	size := math.Min(cfg.SizePerOrder, cfg.TotalSize-s.ExecutedSize)
	if !openPosition(ctx, tick, s, *tok, size, cfg.SlippageBps, "dca slice") {
		return
	}
	s.ExecutedSize += size
	s.LastExecutionAt = tick.Now.UnixMilli()

	if s.ExecutedSize >= cfg.TotalSize {
		s.Status = model.StatusCompleted
		tick.logf(model.LogSuccess, "strategy %s: dca filled %.4f/%.4f, complete", s.ID, s.ExecutedSize, cfg.TotalSize)
	}
}
