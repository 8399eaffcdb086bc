package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"soltrader/internal/execution"
	"soltrader/internal/metrics"
	"soltrader/internal/model"
	"soltrader/internal/portfolio"
	"soltrader/internal/strategy"
)

const (
	balanceRefreshEvery = 10 * time.Second
	snapshotEvery       = 2500 * time.Millisecond
	balanceTimeout      = 5 * time.Second
)

// tickLoop drives strategy evaluation on the configured cadence.
func (e *Engine) tickLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tickWork is one strategy's evaluation slot for a tick: a private copy of
// the strategy plus local collectors, so the evaluation can run without the
// engine lock.
type tickWork struct {
	id       string
	snap     model.Strategy
	stats    model.Stats
	fills    []execution.Outcome
	logs     []tickLog
	panicked interface{}
}

type tickLog struct {
	level model.LogLevel
	msg   string
}

// recordingProvider wraps the tick's provider so successful fills can be
// settled against wallets once the evaluation rejoins the lock.
type recordingProvider struct {
	inner   execution.Provider
	work    *tickWork
	metrics *metrics.Metrics
}

func (p *recordingProvider) Name() string { return p.inner.Name() }

func (p *recordingProvider) Execute(ctx context.Context, req execution.Request) execution.Outcome {
	start := time.Now()
	out := p.inner.Execute(ctx, req)
	if p.metrics != nil {
		p.metrics.ObserveTrade(p.inner.Name(), string(req.Action), out.Success, time.Since(start))
	}
	if out.Success {
		p.work.fills = append(p.work.fills, out)
	}
	return out
}

// tick evaluates every RUNNING strategy once. Each strategy runs in its own
// goroutine against a private copy of its document entry, the tick joins
// them all, and the results are folded back under the lock. The lock is
// never held across a provider call, so API reads stay responsive while
// trades are in flight.
func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	if !e.active {
		e.mu.Unlock()
		return
	}
	settings := e.state.Settings
	work := make([]*tickWork, 0, len(e.state.Strategies))
	for i := range e.state.Strategies {
		s := &e.state.Strategies[i]
		if s.Status != model.StatusRunning {
			continue
		}
		snap := *s
		snap.Positions = append([]model.Position(nil), s.Positions...)
		work = append(work, &tickWork{id: s.ID, snap: snap})
	}
	e.mu.Unlock()

	if e.health != nil {
		e.health.SetLastTickTime(time.Now())
	}
	if len(work) == 0 {
		return
	}

	start := time.Now()
	tokens := e.cache.Snapshot()
	provider := e.provider(settings)
	var spot func(context.Context, string) (float64, error)
	if e.scanner != nil {
		spot = e.scanner.SpotPrice
	}

	var wg sync.WaitGroup
	for _, w := range work {
		wg.Add(1)
		go func(w *tickWork) {
			defer wg.Done()
			e.evaluate(ctx, w, tokens, settings, provider, spot, start)
		}(w)
	}
	wg.Wait()

	e.applyTick(work)
	e.reapWatchers()

	if e.metrics != nil {
		e.metrics.TicksTotal.Inc()
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}
	if err := e.save(); err != nil {
		log.Printf("[engine] tick save failed: %v", err)
	}
}

// evaluate runs one strategy's processor against its private copy. It
// never takes the engine lock; a panic pauses the copy and is surfaced
// when the results are applied.
func (e *Engine) evaluate(ctx context.Context, w *tickWork, tokens []model.Token, settings model.Settings,
	provider execution.Provider, spot func(context.Context, string) (float64, error), now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			w.panicked = r
			w.snap.Status = model.StatusPaused
		}
	}()

	proc, err := e.reg.Lookup(w.snap.Type)
	if err != nil {
		w.snap.Status = model.StatusPaused
		w.logs = append(w.logs, tickLog{level: model.LogError, msg: fmt.Sprintf("strategy %s: %v", w.id, err)})
		return
	}

	tick := &strategy.Tick{
		Now:       now,
		Tokens:    tokens,
		Settings:  settings,
		Stats:     &w.stats,
		Provider:  &recordingProvider{inner: provider, work: w, metrics: e.metrics},
		SpotPrice: spot,
		Log: func(level model.LogLevel, format string, args ...interface{}) {
			w.logs = append(w.logs, tickLog{level: level, msg: fmt.Sprintf(format, args...)})
		},
	}
	proc.Process(ctx, tick, &w.snap)
}

// applyTick folds the evaluations back into the document. Fills already
// happened, so stats and wallet deltas always land; strategy field changes
// are dropped when a CRUD call won the race and the strategy is gone or no
// longer RUNNING.
func (e *Engine) applyTick(work []*tickWork) {
	traded := false
	e.mu.Lock()
	for _, w := range work {
		e.state.Stats.Merge(w.stats)
		if w.stats.RealizedPnL != 0 {
			e.risk.RecordPnL(w.stats.RealizedPnL)
		}
		e.settleSimFillsLocked(w.snap.WalletPublicKey, w.fills, w.stats.RealizedPnL)
		if len(w.fills) > 0 {
			traded = true
		}
		if s := e.state.StrategyByID(w.id); s != nil && s.Status == model.StatusRunning {
			*s = w.snap
		}
	}
	e.mu.Unlock()

	for _, w := range work {
		if w.panicked != nil {
			e.logEvent(model.LogError, "strategy %s panicked and was paused: %v", w.id, w.panicked)
		}
		for _, l := range w.logs {
			e.logEvent(l.level, "%s", l.msg)
		}
		if e.hub != nil {
			for _, out := range w.fills {
				e.hub.Emit("trade", out)
			}
		}
	}
	if traded {
		e.emitWallets()
	}
}

// settleSimFillsLocked adjusts the owning simulated wallet for strategy
// fills: buys debit the spent notional, sells credit it back plus the
// realized result. Real wallet balances come from the RPC refresh instead.
func (e *Engine) settleSimFillsLocked(walletKey string, fills []execution.Outcome, realized float64) {
	if len(fills) == 0 {
		return
	}
	w := e.state.WalletByKey(walletKey)
	if w == nil {
		w = e.state.SimulatedWallet()
	}
	if w == nil || !w.IsSimulated {
		return
	}
	delta := realized
	for _, out := range fills {
		switch out.Action {
		case execution.ActionBuy:
			delta -= out.FilledSize
		case execution.ActionSell:
			delta += out.FilledSize
		}
	}
	w.BalanceLamports += int64(delta * model.LamportsPerSOL)
}

// monitorLoop keeps observers and wallet balances fresh: real balances on
// a slow cadence, portfolio snapshots on a faster one.
func (e *Engine) monitorLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			now := time.Now()
			if e.rpc != nil && now.Sub(e.lastBalanceRefresh) >= balanceRefreshEvery {
				e.lastBalanceRefresh = now
				e.refreshBalances(ctx)
			}
			if now.Sub(e.lastSnapshot) >= snapshotEvery {
				e.lastSnapshot = now
				e.publishSnapshot(now)
			}
		}
	}
}

// refreshBalances polls the RPC node for every real wallet, best effort
// and in parallel. Failures leave the last known balance in place.
func (e *Engine) refreshBalances(ctx context.Context) {
	e.mu.Lock()
	keys := make([]string, 0, len(e.state.Wallets))
	for i := range e.state.Wallets {
		if !e.state.Wallets[i].IsSimulated {
			keys = append(keys, e.state.Wallets[i].PublicKey)
		}
	}
	e.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	type result struct {
		key      string
		lamports uint64
		err      error
	}
	results := make(chan result, len(keys))
	for _, key := range keys {
		go func(key string) {
			rctx, cancel := context.WithTimeout(ctx, balanceTimeout)
			defer cancel()
			lamports, err := e.rpc.GetBalance(rctx, key)
			results <- result{key: key, lamports: lamports, err: err}
		}(key)
	}

	for range keys {
		r := <-results
		if r.err != nil {
			log.Printf("[engine] balance refresh for %s failed: %v", r.key, r.err)
			continue
		}
		e.mu.Lock()
		if w := e.state.WalletByKey(r.key); w != nil {
			w.BalanceLamports = int64(r.lamports)
		}
		e.mu.Unlock()
	}
	e.emitWallets()
}

// publishSnapshot computes the portfolio view, appends it to the history
// series, and fans it out to observers.
func (e *Engine) publishSnapshot(now time.Time) {
	tokens := e.cache.Snapshot()

	e.mu.Lock()
	snap := portfolio.BuildSnapshot(e.state, tokens, now)
	portfolio.AppendHistory(e.state, snap)
	openPositions := portfolio.OpenPositionCount(e.state)
	realized := e.state.Stats.RealizedPnL
	runningStrategies := 0
	for i := range e.state.Strategies {
		if e.state.Strategies[i].Status == model.StatusRunning {
			runningStrategies++
		}
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.OpenPositions.Set(float64(openPositions))
		e.metrics.PortfolioSim.Set(snap.SimValue)
		e.metrics.PortfolioLive.Set(snap.LiveValue)
		e.metrics.RealizedPnL.Set(realized)
		e.metrics.StrategiesActive.Set(float64(runningStrategies))
	}
	if e.hub != nil {
		e.hub.Emit("portfolio_update", snap)
	}
}

// marketLoop refreshes the tradable-asset snapshot on a fixed cadence.
func (e *Engine) marketLoop(ctx context.Context) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.MarketRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.refreshMarket(ctx)
		}
	}
}

// refreshMarket pulls a fresh snapshot into the cache. A dry refresh keeps
// the previous snapshot and counts as an error.
func (e *Engine) refreshMarket(ctx context.Context) {
	if e.scanner == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokens, err := e.scanner.TopTokens(rctx)
	if err != nil || len(tokens) == 0 {
		if e.metrics != nil {
			e.metrics.MarketRefreshErrors.Inc()
		}
		log.Printf("[engine] market refresh failed: %v", err)
		return
	}

	e.cache.Replace(tokens)
	if e.metrics != nil {
		e.metrics.MarketTokens.Set(float64(len(tokens)))
	}
	if e.health != nil {
		e.health.SetMarketFreshAt(time.Now())
	}
	if e.hub != nil {
		e.hub.Emit("market", tokens)
	}
	log.Printf("[engine] market snapshot refreshed: %d tokens", len(tokens))
}
