// Package strategy evaluates trading strategies against the market
// snapshot. Each strategy type has a Processor; the engine calls the
// matching processor once per tick for every RUNNING strategy.
//
// Processors mutate the strategy they are handed (positions, counters,
// status) and route trades through the execution provider. They never
// touch other strategies, which makes the tick fan-out safe.
package strategy

import (
	"context"
	"fmt"
	"time"

	"soltrader/internal/execution"
	"soltrader/internal/model"
)

// Exit defaults applied when a config leaves them zero.
const (
	DefaultTakeProfitPct = 20.0
	DefaultStopLossPct   = 10.0
)

// Tick is everything a processor may read or act on during one pass.
type Tick struct {
	Now      time.Time
	Tokens   []model.Token
	Settings model.Settings
	Stats    *model.Stats
	Provider execution.Provider

	// Log records a user-visible event; the engine appends it to the
	// state document and fans it out to observers.
	Log func(level model.LogLevel, format string, args ...interface{})

	// SpotPrice resolves a single asset's live price when the snapshot
	// does not carry it. Nil when no market scanner is wired.
	SpotPrice func(ctx context.Context, asset string) (float64, error)
}

// logf is nil-safe so processors can log unconditionally.
func (t *Tick) logf(level model.LogLevel, format string, args ...interface{}) {
	if t.Log != nil {
		t.Log(level, format, args...)
	}
}

// Processor evaluates one strategy type.
type Processor interface {
	Type() model.StrategyType
	Process(ctx context.Context, tick *Tick, s *model.Strategy)
}

// Registry maps strategy types to processors.
type Registry struct {
	processors map[model.StrategyType]Processor
}

// NewRegistry builds a registry with the standard processors.
func NewRegistry() *Registry {
	r := &Registry{processors: make(map[model.StrategyType]Processor)}
	r.Register(NewSniper())
	r.Register(NewDCA())
	r.Register(NewMomentum())
	return r
}

// Register adds or replaces a processor.
func (r *Registry) Register(p Processor) {
	r.processors[p.Type()] = p
}

// Lookup returns the processor for a type.
func (r *Registry) Lookup(t model.StrategyType) (Processor, error) {
	p, ok := r.processors[t]
	if !ok {
		return nil, fmt.Errorf("no processor for strategy type %q", t)
	}
	return p, nil
}
