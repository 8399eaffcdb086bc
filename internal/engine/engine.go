// Package engine orchestrates the trading controller: it owns the state
// document, runs the tick / monitor / market-refresh loops, and exposes the
// mutations the REST surface calls. All state access goes through the
// engine's mutex; strategy processors run concurrently inside the tick
// against private copies that are folded back under the lock.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"

	"soltrader/config"
	"soltrader/internal/execution"
	"soltrader/internal/gateway"
	"soltrader/internal/market"
	"soltrader/internal/metrics"
	"soltrader/internal/model"
	"soltrader/internal/notification"
	"soltrader/internal/portfolio"
	"soltrader/internal/store/sqlite"
	"soltrader/internal/strategy"
	"soltrader/internal/trigger"
	"soltrader/internal/venue"
)

// Options wires the engine's collaborators. Hub, Metrics, Health, Real and
// RPC may be nil; the engine degrades gracefully without them.
type Options struct {
	Config  *config.Config
	Store   *sqlite.StateStore
	Journal *execution.Journal
	Cache   *market.Cache
	Scanner *market.Scanner
	Paper   execution.Provider
	Real    *execution.RealProvider
	RPC     *venue.RPCClient
	Hub     *gateway.Hub
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
}

// Engine is the single owner of the state document.
type Engine struct {
	cfg *config.Config

	mu    sync.Mutex
	state *model.State

	store   *sqlite.StateStore
	journal *execution.Journal
	cache   *market.Cache
	scanner *market.Scanner
	reg     *strategy.Registry

	paper execution.Provider
	real  *execution.RealProvider
	rpc   *venue.RPCClient

	hub      *gateway.Hub
	notifier *notification.Fanout
	risk     *portfolio.RiskManager
	metrics  *metrics.Metrics
	health   *metrics.HealthStatus

	watchers map[string]*trigger.Watcher
	sniping  map[string]bool // trigger buys in flight, keyed by strategy ID

	active bool // global trading switch, off until StartTrading
	stop   chan struct{}
	wg     sync.WaitGroup

	lastBalanceRefresh time.Time
	lastSnapshot       time.Time
}

// New builds an engine around an already-loaded store.
func New(opts Options) (*Engine, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, fmt.Errorf("engine: config and store are required")
	}
	e := &Engine{
		cfg:      opts.Config,
		store:    opts.Store,
		journal:  opts.Journal,
		cache:    opts.Cache,
		scanner:  opts.Scanner,
		reg:      strategy.NewRegistry(),
		paper:    opts.Paper,
		real:     opts.Real,
		rpc:      opts.RPC,
		hub:      opts.Hub,
		metrics:  opts.Metrics,
		health:   opts.Health,
		watchers: make(map[string]*trigger.Watcher),
		sniping:  make(map[string]bool),
		stop:     make(chan struct{}),
	}
	if e.cache == nil {
		e.cache = market.NewCache()
	}
	if e.paper == nil {
		e.paper = execution.NewPaperProvider(opts.Config.DefaultSlippageBps, opts.Journal)
	}
	return e, nil
}

// Boot loads the persisted document and forces every strategy STOPPED.
// A restart must never resume trading on its own: positions and stats
// survive, statuses do not.
func (e *Engine) Boot() error {
	st, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("engine: load state: %w", err)
	}

	stopped := 0
	for i := range st.Strategies {
		if st.Strategies[i].Status == model.StatusRunning {
			stopped++
		}
		st.Strategies[i].Status = model.StatusStopped
		st.Strategies[i].PriceLookup = model.LookupNone
	}

	e.mu.Lock()
	e.state = st
	e.notifier = notification.FromSettings(st.Settings)
	e.risk = portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), st.Settings.DefaultSimBalance)
	e.mu.Unlock()

	if stopped > 0 {
		e.logEvent(model.LogWarn, "boot: forced %d running strategies to STOPPED", stopped)
	}
	if e.health != nil {
		e.health.SetSimulated(st.Settings.Simulated)
	}
	log.Printf("[engine] booted: %d strategies, %d wallets, simulated=%v",
		len(st.Strategies), len(st.Wallets), st.Settings.Simulated)
	return e.save()
}

// Run starts the loops and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	// Prime the market cache before the first tick can fire.
	e.refreshMarket(ctx)

	e.wg.Add(3)
	go e.tickLoop(ctx)
	go e.monitorLoop(ctx)
	go e.marketLoop(ctx)

	<-ctx.Done()
	close(e.stop)
	e.wg.Wait()

	e.teardownWatchers()
	if err := e.save(); err != nil {
		log.Printf("[engine] final save failed: %v", err)
	}
	log.Printf("[engine] stopped")
}

// StartTrading flips the global switch on.
func (e *Engine) StartTrading() {
	e.mu.Lock()
	e.active = true
	e.mu.Unlock()
	if e.health != nil {
		e.health.SetTradingActive(true)
	}
	e.logEvent(model.LogSuccess, "trading started")
}

// StopTrading flips the global switch off. Strategies keep their status;
// the tick simply stops evaluating them.
func (e *Engine) StopTrading() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
	if e.health != nil {
		e.health.SetTradingActive(false)
	}
	e.logEvent(model.LogWarn, "trading stopped")
}

// TradingActive reports the global switch.
func (e *Engine) TradingActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// provider returns the execution provider matching the current mode.
func (e *Engine) provider(settings model.Settings) execution.Provider {
	if settings.Simulated || e.real == nil {
		return e.paper
	}
	return e.real
}

// save persists the document. Callers must not hold e.mu.
func (e *Engine) save() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Save(e.state)
}

// logEvent appends a log entry, emits it to observers, and mirrors ERROR
// level entries to the notifier. Callers must not hold e.mu.
func (e *Engine) logEvent(level model.LogLevel, format string, args ...interface{}) {
	e.mu.Lock()
	ev, notifier := e.appendLogLocked(level, format, args...)
	e.mu.Unlock()
	e.fanoutLog(ev, notifier)
}

func (e *Engine) appendLogLocked(level model.LogLevel, format string, args ...interface{}) (model.LogEvent, *notification.Fanout) {
	ev := model.LogEvent{
		Timestamp: time.Now().UnixMilli(),
		Message:   fmt.Sprintf(format, args...),
		Level:     level,
	}
	e.state.AppendLog(ev)
	return ev, e.notifier
}

func (e *Engine) fanoutLog(ev model.LogEvent, notifier *notification.Fanout) {
	log.Printf("[engine] %s: %s", ev.Level, ev.Message)
	if e.hub != nil {
		e.hub.Emit("log", ev)
	}
	if ev.Level == model.LogError && notifier != nil {
		go notifier.Send(context.Background(), notification.Alert{
			Level:   notification.AlertCritical,
			Title:   "Engine error",
			Message: ev.Message,
		})
	}
}

// Strategies returns a copy of the strategy list.
func (e *Engine) Strategies() []model.Strategy {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Strategy, len(e.state.Strategies))
	copy(out, e.state.Strategies)
	return out
}

// CreateStrategy validates the type against the registry and appends a new
// STOPPED strategy.
func (e *Engine) CreateStrategy(typ model.StrategyType, cfg model.StrategyConfig, walletKey string) (model.Strategy, error) {
	if _, err := e.reg.Lookup(typ); err != nil {
		return model.Strategy{}, err
	}

	s := model.Strategy{
		ID:              uuid.NewString(),
		Type:            typ,
		Status:          model.StatusStopped,
		WalletPublicKey: walletKey,
		Config:          cfg,
	}

	e.mu.Lock()
	e.state.Strategies = append(e.state.Strategies, s)
	e.mu.Unlock()

	e.logEvent(model.LogInfo, "strategy %s created (%s)", s.ID, s.Type)
	return s, e.save()
}

// StartStrategy moves a strategy to RUNNING. Sniper strategies also get an
// on-chain log watcher attached.
func (e *Engine) StartStrategy(id string) error {
	e.mu.Lock()
	s := e.state.StrategyByID(id)
	if s == nil {
		e.mu.Unlock()
		return fmt.Errorf("strategy %q not found", id)
	}
	if s.Status == model.StatusCompleted {
		e.mu.Unlock()
		return fmt.Errorf("strategy %q is completed", id)
	}
	s.Status = model.StatusRunning
	typ := s.Type
	e.mu.Unlock()

	if typ == model.StrategySniper {
		e.attachWatcher(id)
	}
	e.logEvent(model.LogSuccess, "strategy %s started", id)
	return e.save()
}

// StopStrategy moves a strategy to STOPPED and tears down its watcher.
func (e *Engine) StopStrategy(id string) error {
	e.mu.Lock()
	s := e.state.StrategyByID(id)
	if s == nil {
		e.mu.Unlock()
		return fmt.Errorf("strategy %q not found", id)
	}
	s.Status = model.StatusStopped
	e.mu.Unlock()

	e.detachWatcher(id)
	e.logEvent(model.LogInfo, "strategy %s stopped", id)
	return e.save()
}

// DeleteStrategy removes a strategy and tears down its watcher. Strategies
// with open positions must be stopped first so the operator has seen them.
func (e *Engine) DeleteStrategy(id string) error {
	e.mu.Lock()
	idx := -1
	for i := range e.state.Strategies {
		if e.state.Strategies[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("strategy %q not found", id)
	}
	if e.state.Strategies[idx].Status == model.StatusRunning {
		e.mu.Unlock()
		return fmt.Errorf("strategy %q is running, stop it first", id)
	}
	e.state.Strategies = append(e.state.Strategies[:idx], e.state.Strategies[idx+1:]...)
	e.mu.Unlock()

	e.detachWatcher(id)
	e.logEvent(model.LogInfo, "strategy %s deleted", id)
	return e.save()
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() model.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Settings
}

// UpdateSettings applies new settings. Flipping Simulated from true to
// false is armed: it requires a valid TOTP code when a secret is
// configured, and fails outright when live execution is not wired.
func (e *Engine) UpdateSettings(next model.Settings, totpCode string) error {
	e.mu.Lock()
	current := e.state.Settings
	e.mu.Unlock()

	if current.Simulated && !next.Simulated {
		if e.real == nil {
			return fmt.Errorf("live mode unavailable: no signing wallet configured")
		}
		if e.cfg.TOTPSecret != "" && !totp.Validate(totpCode, e.cfg.TOTPSecret) {
			return fmt.Errorf("live mode requires a valid authenticator code")
		}
	}

	e.mu.Lock()
	e.state.Settings = next
	e.notifier = notification.FromSettings(next)
	e.mu.Unlock()

	if e.health != nil {
		e.health.SetSimulated(next.Simulated)
	}
	if current.Simulated && !next.Simulated {
		e.logEvent(model.LogWarn, "LIVE MODE ENABLED: real funds at risk")
	} else {
		e.logEvent(model.LogInfo, "settings updated (simulated=%v, slippage=%dbps, priority=%s)",
			next.Simulated, next.SlippageBps, next.PriorityFee)
	}
	return e.save()
}

// PriorityTier reads the current tip tier; the real provider calls this
// per trade so settings flips apply without rebuilding.
func (e *Engine) PriorityTier() model.PriorityTier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Settings.PriorityFee
}

// emitWallets pushes the current wallet set to observers.
func (e *Engine) emitWallets() {
	if e.hub == nil {
		return
	}
	e.hub.Emit("wallets_update", e.Wallets())
}

// Wallets returns a copy of the wallet list with key material stripped.
func (e *Engine) Wallets() []model.Wallet {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Wallet, len(e.state.Wallets))
	copy(out, e.state.Wallets)
	for i := range out {
		out[i].EncryptedKey = ""
	}
	return out
}

// CreateWallet registers a wallet. Simulated wallets start with the
// configured paper balance; real wallets start at zero and are refreshed
// from the RPC node by the monitor loop.
func (e *Engine) CreateWallet(publicKey, label string, simulated bool) (model.Wallet, error) {
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return model.Wallet{}, fmt.Errorf("wallet public key is required")
	}

	e.mu.Lock()
	if e.state.WalletByKey(publicKey) != nil {
		e.mu.Unlock()
		return model.Wallet{}, fmt.Errorf("wallet %q already exists", publicKey)
	}
	w := model.Wallet{
		PublicKey:   publicKey,
		Label:       label,
		IsSimulated: simulated,
	}
	if simulated {
		w.BalanceLamports = int64(e.state.Settings.DefaultSimBalance * model.LamportsPerSOL)
	}
	e.state.Wallets = append(e.state.Wallets, w)
	e.mu.Unlock()

	e.logEvent(model.LogInfo, "wallet %s added (%s, simulated=%v)", publicKey, label, simulated)
	e.emitWallets()
	return w, e.save()
}

// DeleteWallet removes a wallet. Wallets referenced by a strategy are kept.
func (e *Engine) DeleteWallet(publicKey string) error {
	e.mu.Lock()
	for i := range e.state.Strategies {
		if e.state.Strategies[i].WalletPublicKey == publicKey {
			e.mu.Unlock()
			return fmt.Errorf("wallet %q is referenced by strategy %s", publicKey, e.state.Strategies[i].ID)
		}
	}
	idx := -1
	for i := range e.state.Wallets {
		if e.state.Wallets[i].PublicKey == publicKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		e.mu.Unlock()
		return fmt.Errorf("wallet %q not found", publicKey)
	}
	e.state.Wallets = append(e.state.Wallets[:idx], e.state.Wallets[idx+1:]...)
	e.mu.Unlock()

	e.logEvent(model.LogInfo, "wallet %s removed", publicKey)
	e.emitWallets()
	return e.save()
}

// ManualTradeRequest is an operator-initiated trade against a wallet.
type ManualTradeRequest struct {
	WalletPublicKey string  `json:"wallet_public_key"`
	Action          string  `json:"action"` // BUY or SELL
	Asset           string  `json:"asset"`
	SizeSOL         float64 `json:"size_sol"`
}

// ManualTrade executes an operator trade through the risk manager and the
// current provider, adjusting the wallet's holdings on success.
func (e *Engine) ManualTrade(ctx context.Context, req ManualTradeRequest) (execution.Outcome, error) {
	action := execution.Action(strings.ToUpper(req.Action))
	if action != execution.ActionBuy && action != execution.ActionSell {
		return execution.Outcome{}, fmt.Errorf("action must be BUY or SELL")
	}
	if req.SizeSOL <= 0 {
		return execution.Outcome{}, fmt.Errorf("size must be positive")
	}

	e.mu.Lock()
	settings := e.state.Settings
	w := e.state.WalletByKey(req.WalletPublicKey)
	if w == nil {
		e.mu.Unlock()
		return execution.Outcome{}, fmt.Errorf("wallet %q not found", req.WalletPublicKey)
	}
	if action == execution.ActionBuy {
		if ok, reason := e.risk.CanTrade(e.state, req.SizeSOL); !ok {
			e.mu.Unlock()
			return execution.Outcome{}, fmt.Errorf("risk check failed: %s", reason)
		}
	}
	e.mu.Unlock()

	tok, ok := e.cache.Find(req.Asset)
	if !ok {
		return execution.Outcome{}, fmt.Errorf("asset %q is not priced", req.Asset)
	}

	start := time.Now()
	provider := e.provider(settings)
	out := provider.Execute(ctx, execution.Request{
		StrategyID:  "manual",
		Action:      action,
		Asset:       tok.Symbol,
		Mint:        tok.Address,
		SizeSOL:     req.SizeSOL,
		Price:       tok.Price,
		SlippageBps: settings.SlippageBps,
		Reason:      "manual trade",
	})
	if e.metrics != nil {
		e.metrics.ObserveTrade(provider.Name(), string(action), out.Success, time.Since(start))
	}
	if !out.Success {
		e.logEvent(model.LogError, "manual %s %s failed: %s", action, tok.Symbol, out.Message)
		return out, nil
	}

	e.applyManualFill(req.WalletPublicKey, tok, action, out)
	e.logEvent(model.LogSuccess, "manual %s %.4f SOL of %s at %.6f", action, req.SizeSOL, tok.Symbol, out.Price)
	if e.hub != nil {
		e.hub.Emit("trade", out)
	}
	e.emitWallets()
	return out, e.save()
}

// applyManualFill mutates the wallet's holdings for a successful manual
// trade. BUY opens or grows a position; SELL closes it and records the
// realized result exactly once.
func (e *Engine) applyManualFill(walletKey string, tok model.Token, action execution.Action, out execution.Outcome) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w := e.state.WalletByKey(walletKey)
	if w == nil {
		return
	}

	if action == execution.ActionBuy {
		if w.IsSimulated {
			w.BalanceLamports -= int64(out.FilledSize * model.LamportsPerSOL)
		}
		w.Positions = append(w.Positions, model.Position{
			Asset:       tok.Symbol,
			EntryPrice:  out.Price,
			Size:        out.FilledSize,
			SettledSize: out.FilledSize,
			OpenedAt:    out.FilledAt.UnixMilli(),
		})
		return
	}

	for i := range w.Positions {
		if !strings.EqualFold(w.Positions[i].Asset, tok.Symbol) {
			continue
		}
		pos := w.Positions[i]
		pnl := 0.0
		if pos.EntryPrice > 0 {
			pnl = pos.PnLPct(out.Price)
		}
		realized := pos.Size * pnl / 100
		e.state.Stats.RecordClose(realized)
		e.risk.RecordPnL(realized)
		if w.IsSimulated {
			w.BalanceLamports += int64(pos.Size * (1 + pnl/100) * model.LamportsPerSOL)
		}
		w.Positions = append(w.Positions[:i], w.Positions[i+1:]...)
		return
	}
}

// Logs returns the most recent persisted events, newest last.
func (e *Engine) Logs(limit int) []model.LogEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	logs := e.state.Logs
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	out := make([]model.LogEvent, len(logs))
	copy(out, logs)
	return out
}

// PortfolioHistory returns a copy of the snapshot series.
func (e *Engine) PortfolioHistory() []model.PortfolioSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.PortfolioSnapshot, len(e.state.PortfolioHistory))
	copy(out, e.state.PortfolioHistory)
	return out
}

// Stats returns the current trade tallies.
func (e *Engine) Stats() model.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Stats
}

// Trades returns recent journal entries, newest first.
func (e *Engine) Trades(limit int) ([]execution.TradeRecord, error) {
	if e.journal == nil {
		return nil, nil
	}
	return e.journal.GetTrades(limit)
}

// RiskLimits exposes the active risk configuration.
func (e *Engine) RiskLimits() portfolio.RiskLimits {
	return e.risk.Limits()
}

// Reset wipes strategies' runtime state, stats, logs and history. Refused
// outright in live mode: a reset must never erase the record of real
// trades.
func (e *Engine) Reset() error {
	e.mu.Lock()
	if !e.state.Settings.Simulated {
		e.mu.Unlock()
		return fmt.Errorf("reset is only available in simulated mode")
	}
	for i := range e.state.Strategies {
		e.state.Strategies[i].ClearRuntimeState()
		if e.state.Strategies[i].Status != model.StatusStopped {
			e.state.Strategies[i].Status = model.StatusStopped
		}
	}
	for i := range e.state.Wallets {
		if e.state.Wallets[i].IsSimulated {
			e.state.Wallets[i].BalanceLamports = int64(e.state.Settings.DefaultSimBalance * model.LamportsPerSOL)
			e.state.Wallets[i].Positions = nil
		}
	}
	e.state.Stats = model.Stats{}
	e.state.Logs = nil
	e.state.PortfolioHistory = nil
	e.risk = portfolio.NewRiskManager(portfolio.DefaultRiskLimits(), e.state.Settings.DefaultSimBalance)
	e.mu.Unlock()

	e.logEvent(model.LogWarn, "simulation reset")
	// Observers get the wiped portfolio right away instead of waiting for
	// the next monitor pass.
	e.publishSnapshot(time.Now())
	return e.save()
}

// attachWatcher starts an on-chain log watcher for a sniper strategy.
func (e *Engine) attachWatcher(strategyID string) {
	e.mu.Lock()
	if _, ok := e.watchers[strategyID]; ok {
		e.mu.Unlock()
		return
	}
	w := trigger.NewWatcher(e.cfg.SolanaWSURL, "")
	e.watchers[strategyID] = w
	e.mu.Unlock()

	w.OnMatch = func(m trigger.Match) {
		if e.metrics != nil {
			e.metrics.TriggerMatches.Inc()
		}
		// The buy and the teardown both run off the watcher's read loop.
		go func() {
			if e.fireSniperTrigger(context.Background(), strategyID, m) {
				e.detachWatcher(strategyID)
			}
		}()
	}
	w.Attach()
}

// fireSniperTrigger inspects an on-chain log match for the strategy's
// target asset and fires the one-shot buy on the first mention. The
// execution runs outside the lock; the sniping guard keeps a burst of
// matches from double-buying. Returns true when the trigger was consumed
// and the subscription should go away.
func (e *Engine) fireSniperTrigger(ctx context.Context, strategyID string, m trigger.Match) bool {
	e.mu.Lock()
	if !e.active || e.sniping[strategyID] {
		e.mu.Unlock()
		return false
	}
	s := e.state.StrategyByID(strategyID)
	if s == nil || s.Type != model.StrategySniper || s.Status != model.StatusRunning {
		e.mu.Unlock()
		return false
	}
	cfg := s.Config.Sniper
	if cfg == nil || cfg.TargetAsset == "" || s.ExecutedSize > 0 || len(s.Positions) > 0 {
		e.mu.Unlock()
		return false
	}
	settings := e.state.Settings
	target := cfg.TargetAsset
	size := cfg.SizeSOL
	slippage := cfg.SlippageBps
	if slippage == 0 {
		slippage = settings.SlippageBps
	}
	e.sniping[strategyID] = true
	e.mu.Unlock()

	tok, priced := e.cache.Find(target)
	if !priced {
		// Keep watching; the paper path resolves the price on the tick.
		e.clearSnipeGuard(strategyID)
		return false
	}

	mentioned := false
	for _, line := range m.Logs {
		if strings.Contains(line, target) || strings.Contains(line, tok.Address) {
			mentioned = true
			break
		}
	}
	if !mentioned {
		e.clearSnipeGuard(strategyID)
		return false
	}

	start := time.Now()
	provider := e.provider(settings)
	out := provider.Execute(ctx, execution.Request{
		StrategyID:  strategyID,
		Action:      execution.ActionBuy,
		Asset:       tok.Symbol,
		Mint:        tok.Address,
		SizeSOL:     size,
		Price:       tok.Price,
		SlippageBps: slippage,
		Reason:      "sniper trigger " + m.Signature,
	})
	if e.metrics != nil {
		e.metrics.ObserveTrade(provider.Name(), string(execution.ActionBuy), out.Success, time.Since(start))
	}
	if !out.Success {
		e.clearSnipeGuard(strategyID)
		e.logEvent(model.LogError, "sniper %s trigger buy failed: %s", strategyID, out.Message)
		return true
	}

	e.mu.Lock()
	delete(e.sniping, strategyID)
	s = e.state.StrategyByID(strategyID)
	if s == nil || s.Status != model.StatusRunning {
		e.mu.Unlock()
		e.logEvent(model.LogWarn, "sniper %s changed during trigger buy, fill dropped", strategyID)
		return true
	}
	s.Positions = append(s.Positions, model.Position{
		Asset:       tok.Symbol,
		EntryPrice:  out.Price,
		Size:        out.FilledSize,
		SettledSize: out.FilledSize,
		OpenedAt:    out.FilledAt.UnixMilli(),
	})
	s.ExecutedSize += size
	s.LastExecutionAt = out.FilledAt.UnixMilli()
	s.LastTradeAsset = tok.Symbol
	s.LastTradeAt = out.FilledAt.UnixMilli()
	w := e.state.WalletByKey(s.WalletPublicKey)
	if w == nil {
		w = e.state.SimulatedWallet()
	}
	if w != nil && w.IsSimulated {
		w.BalanceLamports -= int64(out.FilledSize * model.LamportsPerSOL)
	}
	e.mu.Unlock()

	e.logEvent(model.LogSuccess, "sniper %s fired on pool activity %s: bought %.4f SOL of %s",
		strategyID, m.Signature, size, tok.Symbol)
	if e.hub != nil {
		e.hub.Emit("trade", out)
	}
	e.emitWallets()
	return true
}

func (e *Engine) clearSnipeGuard(strategyID string) {
	e.mu.Lock()
	delete(e.sniping, strategyID)
	e.mu.Unlock()
}

// detachWatcher tears down the watcher for a strategy, if any.
func (e *Engine) detachWatcher(strategyID string) {
	e.mu.Lock()
	w, ok := e.watchers[strategyID]
	if ok {
		delete(e.watchers, strategyID)
	}
	e.mu.Unlock()
	if ok {
		w.Teardown()
	}
}

// reapWatchers tears down watchers whose strategy is gone or no longer
// RUNNING (completed snipers included).
func (e *Engine) reapWatchers() {
	e.mu.Lock()
	var stale []string
	for id := range e.watchers {
		s := e.state.StrategyByID(id)
		if s == nil || s.Status != model.StatusRunning {
			stale = append(stale, id)
		}
	}
	e.mu.Unlock()
	for _, id := range stale {
		e.detachWatcher(id)
	}
}

func (e *Engine) teardownWatchers() {
	e.mu.Lock()
	ws := make([]*trigger.Watcher, 0, len(e.watchers))
	for id, w := range e.watchers {
		ws = append(ws, w)
		delete(e.watchers, id)
	}
	e.mu.Unlock()
	for _, w := range ws {
		w.Teardown()
	}
}
