package strategy

import (
	"context"
	"sort"
	"strings"
	"time"

	"soltrader/internal/model"
)

const (
	defaultMinChangePct = 5.0
	defaultMinVolume    = 50_000.0
	defaultMaxPositions = 5
	defaultSizeSOL      = 0.1

	// entryDebounce blocks re-entering the last-bought asset too soon.
	entryDebounce = 5 * time.Minute
)

// excludedAssets are never hunted: the quote currency itself and the
// stables, which have no momentum worth chasing.
var excludedAssets = map[string]bool{
	"SOL":  true,
	"USDC": true,
	"USDT": true,
}

// Momentum scans the whole snapshot for movers and rotates into the
// strongest ones, bounded by a position cap and a per-asset re-entry
// debounce.
type Momentum struct{}

// NewMomentum creates the momentum-hunter processor.
func NewMomentum() *Momentum { return &Momentum{} }

func (Momentum) Type() model.StrategyType { return model.StrategyMomentum }

func (Momentum) Process(ctx context.Context, tick *Tick, s *model.Strategy) {
	cfg := s.Config.Momentum
	if cfg == nil {
		tick.logf(model.LogError, "strategy %s: momentum config missing", s.ID)
		s.Status = model.StatusPaused
		return
	}

	manageExits(ctx, tick, s, cfg.TakeProfitPct, cfg.StopLossPct, cfg.SlippageBps)

	maxPositions := cfg.MaxPositions
	if maxPositions <= 0 {
		maxPositions = defaultMaxPositions
	}
	if len(s.Positions) >= maxPositions {
		return
	}

	minChange := cfg.MinChange24hPct
	if minChange <= 0 {
		minChange = defaultMinChangePct
	}
	minVolume := cfg.MinVolume24h
	if minVolume <= 0 {
		minVolume = defaultMinVolume
	}

	candidates := momentumCandidates(tick.Tokens, s, minChange, minVolume)
	if len(candidates) == 0 {
		return
	}

	// The debounce only blocks re-entering the asset bought last; a new
	// leader is taken immediately.
	if strings.EqualFold(candidates[0].Symbol, s.LastTradeAsset) &&
		sinceMs(tick.Now, s.LastTradeAt) < entryDebounce {
		return
	}

	size := cfg.SizePerPosition
	if size <= 0 {
		size = defaultSizeSOL
	}
	openPosition(ctx, tick, s, candidates[0], size, cfg.SlippageBps, "momentum entry")
}

// momentumCandidates filters and ranks the snapshot for entries. Ordering
// is deterministic: 24h change descending, then 24h volume descending,
// then symbol, so equal snapshots always produce the same pick.
func momentumCandidates(tokens []model.Token, s *model.Strategy, minChange, minVolume float64) []model.Token {
	out := make([]model.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Price <= 0 {
			continue
		}
		if excludedAssets[strings.ToUpper(t.Symbol)] {
			continue
		}
		if holdsAsset(s, t.Symbol) {
			continue
		}
		if t.Change24Pct < minChange || t.Volume24h < minVolume {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Change24Pct != out[j].Change24Pct {
			return out[i].Change24Pct > out[j].Change24Pct
		}
		if out[i].Volume24h != out[j].Volume24h {
			return out[i].Volume24h > out[j].Volume24h
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}
