package strategy

import (
	"context"
	"testing"
	"time"

	"soltrader/internal/execution"
	"soltrader/internal/model"
)

func snapshot(tokens ...model.Token) []model.Token { return tokens }

func tok(symbol string, price, change, volume float64) model.Token {
	return model.Token{Address: "Mint" + symbol, Symbol: symbol, Price: price, Change24Pct: change, Volume24h: volume}
}

func testTick(tokens []model.Token) *Tick {
	return &Tick{
		Now:      time.Now(),
		Tokens:   tokens,
		Settings: model.DefaultState().Settings,
		Stats:    &model.Stats{},
		Provider: execution.NewPaperProvider(0, nil),
	}
}

func sniperStrategy(target string, size float64) *model.Strategy {
	return &model.Strategy{
		ID:     "snipe-1",
		Type:   model.StrategySniper,
		Status: model.StatusRunning,
		Config: model.StrategyConfig{Sniper: &model.SniperConfig{
			TargetAsset: target, SizeSOL: size, TakeProfitPct: 20, StopLossPct: 10,
		}},
	}
}

func TestSniper_EntersOnceAndCompletesAfterTakeProfit(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("BONK", 0.5)

	tick := testTick(snapshot(tok("BONK", 100, 0, 0)))
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 1 {
		t.Fatalf("expected entry, positions=%d", len(s.Positions))
	}
	if s.ExecutedSize != 0.5 {
		t.Errorf("executed size = %v", s.ExecutedSize)
	}

	// Holding: no re-entry on the next tick.
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 1 {
		t.Fatalf("re-entered while holding, positions=%d", len(s.Positions))
	}

	// Price above take-profit closes, then the strategy completes.
	up := testTick(snapshot(tok("BONK", 125, 0, 0)))
	up.Stats = tick.Stats
	proc.Process(context.Background(), up, s)
	if len(s.Positions) != 0 {
		t.Fatalf("expected exit at +25%%, positions=%d", len(s.Positions))
	}
	if tick.Stats.TotalTrades != 1 || tick.Stats.RealizedPnL <= 0 {
		t.Errorf("stats after close: %+v", tick.Stats)
	}

	proc.Process(context.Background(), up, s)
	if s.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", s.Status)
	}
	if tick.Stats.TotalTrades != 1 {
		t.Errorf("realized PnL must be recorded once, stats=%+v", tick.Stats)
	}
}

func TestSniper_StopLoss(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("WIF", 1)

	proc.Process(context.Background(), testTick(snapshot(tok("WIF", 2, 0, 0))), s)
	if len(s.Positions) != 1 {
		t.Fatal("expected entry")
	}

	down := testTick(snapshot(tok("WIF", 1.7, 0, 0))) // -15%
	proc.Process(context.Background(), down, s)
	if len(s.Positions) != 0 {
		t.Fatal("expected stop-loss exit at -15%")
	}
	if down.Stats.RealizedPnL >= 0 {
		t.Errorf("stop loss should realize a loss, got %+v", down.Stats)
	}
	if down.Stats.Wins != 0 {
		t.Errorf("loss counted as win: %+v", down.Stats)
	}
}

func TestSniper_PaperRejectionWithoutPriceRetriesLater(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("NEW", 1)

	// Target absent from the snapshot: no entry, no state consumed.
	proc.Process(context.Background(), testTick(snapshot(tok("BONK", 1, 0, 0))), s)
	if len(s.Positions) != 0 || s.ExecutedSize != 0 {
		t.Fatalf("should not enter without the target priced: %+v", s)
	}

	// Target shows up later: entry happens then.
	proc.Process(context.Background(), testTick(snapshot(tok("NEW", 3, 0, 0))), s)
	if len(s.Positions) != 1 {
		t.Fatal("expected entry once target is priced")
	}
}

func TestBackfill_ResolvesEntryPriceBeforeExits(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("BONK", 1)
	s.ExecutedSize = 1
	s.Positions = []model.Position{{Asset: "BONK", EntryPrice: 0, Size: 1}}

	// Tick 1: lookup moves None -> Pending; no exit may fire even though
	// any PnL math on a zero entry would scream take-profit.
	tick := testTick(snapshot(tok("BONK", 100, 0, 0)))
	proc.Process(context.Background(), tick, s)
	if s.PriceLookup != model.LookupPending {
		t.Fatalf("lookup state = %v", s.PriceLookup)
	}
	if len(s.Positions) != 1 || s.Positions[0].EntryPrice != 0 {
		t.Fatalf("position touched during pending lookup: %+v", s.Positions)
	}

	// Tick 2: entry backfilled from the snapshot, lookup resolved.
	proc.Process(context.Background(), tick, s)
	if s.PriceLookup != model.LookupResolved {
		t.Fatalf("lookup state = %v", s.PriceLookup)
	}
	if s.Positions[0].EntryPrice != 100 {
		t.Fatalf("entry not backfilled: %+v", s.Positions[0])
	}
	if tick.Stats.TotalTrades != 0 {
		t.Errorf("no close should have been recorded: %+v", tick.Stats)
	}

	// Tick 3: exits operate normally against the backfilled entry.
	up := testTick(snapshot(tok("BONK", 130, 0, 0)))
	proc.Process(context.Background(), up, s)
	if len(s.Positions) != 0 {
		t.Fatal("expected take-profit after backfill")
	}
}

func TestSniper_LiveModeLeavesEntryToTrigger(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("BONK", 0.5)

	// Target priced, trading live: the tick must not buy.
	tick := testTick(snapshot(tok("BONK", 100, 0, 0)))
	tick.Settings.Simulated = false
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 0 || s.ExecutedSize != 0 {
		t.Fatalf("live tick entered a position: %+v", s)
	}

	// Exits still run live for a position the trigger opened.
	s.ExecutedSize = 0.5
	s.Positions = []model.Position{{Asset: "BONK", EntryPrice: 100, Size: 0.5}}
	up := testTick(snapshot(tok("BONK", 125, 0, 0)))
	up.Settings.Simulated = false
	proc.Process(context.Background(), up, s)
	if len(s.Positions) != 0 {
		t.Fatal("live take-profit did not close the position")
	}
}

func TestSniper_ResolvesUnlistedTargetWithLiveLookup(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("NEW", 1)

	calls := 0
	spot := func(ctx context.Context, asset string) (float64, error) {
		calls++
		if asset != "NEW" {
			t.Errorf("lookup asset = %q, want NEW", asset)
		}
		return 3.5, nil
	}

	// Tick 1: the miss only marks the lookup pending.
	tick := testTick(snapshot(tok("BONK", 1, 0, 0)))
	tick.SpotPrice = spot
	proc.Process(context.Background(), tick, s)
	if s.PriceLookup != model.LookupPending {
		t.Fatalf("lookup state = %v, want pending", s.PriceLookup)
	}
	if calls != 0 || len(s.Positions) != 0 {
		t.Fatalf("tick 1 acted early: calls=%d positions=%d", calls, len(s.Positions))
	}

	// Tick 2: the live price lands and the entry fills at it.
	tick = testTick(snapshot(tok("BONK", 1, 0, 0)))
	tick.SpotPrice = spot
	proc.Process(context.Background(), tick, s)
	if calls != 1 {
		t.Fatalf("lookup calls = %d, want 1", calls)
	}
	if len(s.Positions) != 1 || s.Positions[0].EntryPrice != 3.5 {
		t.Fatalf("expected entry at 3.5, got %+v", s.Positions)
	}
	if s.PriceLookup != model.LookupResolved {
		t.Errorf("lookup state = %v, want resolved", s.PriceLookup)
	}
}

func TestBackfill_FallsBackToLiveLookup(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("GHOST", 1)
	s.ExecutedSize = 1
	s.Positions = []model.Position{{Asset: "GHOST", EntryPrice: 0, Size: 1}}

	spot := func(ctx context.Context, asset string) (float64, error) { return 42, nil }

	// GHOST never shows up in the snapshot; the live lookup fills the gap.
	tick := testTick(snapshot(tok("BONK", 1, 0, 0)))
	tick.SpotPrice = spot
	proc.Process(context.Background(), tick, s)
	if s.PriceLookup != model.LookupPending || s.Positions[0].EntryPrice != 0 {
		t.Fatalf("first tick should only mark pending: %+v", s)
	}

	proc.Process(context.Background(), tick, s)
	if s.Positions[0].EntryPrice != 42 {
		t.Fatalf("entry not backfilled from live lookup: %+v", s.Positions[0])
	}
	if s.PriceLookup != model.LookupResolved {
		t.Errorf("lookup state = %v, want resolved", s.PriceLookup)
	}
}

type failSellProvider struct {
	inner execution.Provider
}

func (f failSellProvider) Name() string { return "failsell" }

func (f failSellProvider) Execute(ctx context.Context, req execution.Request) execution.Outcome {
	if req.Action == execution.ActionSell {
		return execution.Outcome{Asset: req.Asset, Action: req.Action, Message: "venue down"}
	}
	return f.inner.Execute(ctx, req)
}

func TestExits_FailedSellKeepsPositionAndStats(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("BONK", 1)
	s.ExecutedSize = 1
	s.Positions = []model.Position{{Asset: "BONK", EntryPrice: 100, Size: 1}}

	tick := testTick(snapshot(tok("BONK", 130, 0, 0)))
	tick.Provider = failSellProvider{inner: execution.NewPaperProvider(0, nil)}
	proc.Process(context.Background(), tick, s)

	if len(s.Positions) != 1 {
		t.Fatal("failed sell must keep the position")
	}
	if tick.Stats.TotalTrades != 0 || tick.Stats.RealizedPnL != 0 {
		t.Errorf("failed sell must not touch stats: %+v", tick.Stats)
	}
	if s.Status == model.StatusCompleted {
		t.Error("strategy must not complete while still holding")
	}
}

func TestDCA_FillsInSlicesAndCompletes(t *testing.T) {
	proc := NewDCA()
	s := &model.Strategy{
		ID:     "dca-1",
		Type:   model.StrategyDCA,
		Status: model.StatusRunning,
		Config: model.StrategyConfig{DCA: &model.DCAConfig{
			TargetAsset: "JUP", SizePerOrder: 0.2, TotalSize: 1.0, IntervalMs: 0,
		}},
	}

	tick := testTick(snapshot(tok("JUP", 0.8, 0, 0)))
	for i := 0; i < 5; i++ {
		proc.Process(context.Background(), tick, s)
	}

	if s.ExecutedSize != 1.0 {
		t.Errorf("executed = %v, want 1.0", s.ExecutedSize)
	}
	if s.Status != model.StatusCompleted {
		t.Errorf("status = %s, want COMPLETED", s.Status)
	}
	if len(s.Positions) != 5 {
		t.Errorf("expected 5 slices, got %d", len(s.Positions))
	}

	// Completed strategies stay completed.
	proc.Process(context.Background(), tick, s)
	if s.ExecutedSize != 1.0 {
		t.Errorf("completed dca traded again: %v", s.ExecutedSize)
	}
}

func TestDCA_RespectsInterval(t *testing.T) {
	proc := NewDCA()
	s := &model.Strategy{
		ID: "dca-2", Type: model.StrategyDCA, Status: model.StatusRunning,
		Config: model.StrategyConfig{DCA: &model.DCAConfig{
			TargetAsset: "JUP", SizePerOrder: 0.5, TotalSize: 2, IntervalMs: 60_000,
		}},
	}

	tick := testTick(snapshot(tok("JUP", 0.8, 0, 0)))
	proc.Process(context.Background(), tick, s)
	proc.Process(context.Background(), tick, s)
	if s.ExecutedSize != 0.5 {
		t.Errorf("second slice fired inside the interval: %v", s.ExecutedSize)
	}

	s.LastExecutionAt = tick.Now.Add(-2 * time.Minute).UnixMilli()
	proc.Process(context.Background(), tick, s)
	if s.ExecutedSize != 1.0 {
		t.Errorf("slice should fire after the interval: %v", s.ExecutedSize)
	}
}

func TestMomentumCandidates_FilterAndOrder(t *testing.T) {
	s := &model.Strategy{ID: "m1", Positions: []model.Position{{Asset: "HELD", EntryPrice: 1, Size: 1}}}
	tokens := snapshot(
		tok("SOL", 150, 12, 1e9),       // excluded: quote currency
		tok("USDC", 1, 8, 1e9),         // excluded: stable
		tok("HELD", 2, 30, 1e6),        // excluded: already held
		tok("SLOW", 1, 2, 1e6),         // below change threshold
		tok("THIN", 1, 40, 10_000),     // below volume threshold
		tok("B", 1, 15, 200_000),
		tok("A", 1, 25, 100_000),
		tok("C", 1, 15, 900_000),
	)

	got := momentumCandidates(tokens, s, 5, 50_000)
	want := []string{"A", "C", "B"} // change desc, then volume desc
	if len(got) != len(want) {
		t.Fatalf("candidates = %d, want %d", len(got), len(want))
	}
	for i, sym := range want {
		if got[i].Symbol != sym {
			t.Errorf("candidate[%d] = %s, want %s", i, got[i].Symbol, sym)
		}
	}
}

func TestMomentum_RotatesIntoNewLeadersAndCaps(t *testing.T) {
	proc := NewMomentum()
	s := &model.Strategy{
		ID: "mom-1", Type: model.StrategyMomentum, Status: model.StatusRunning,
		Config: model.StrategyConfig{Momentum: &model.MomentumConfig{
			MinChange24hPct: 5, MinVolume24h: 50_000, MaxPositions: 2, SizePerPosition: 0.1,
		}},
	}

	tick := testTick(snapshot(tok("A", 1, 25, 1e6), tok("B", 1, 20, 1e6), tok("C", 1, 15, 1e6)))
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 1 || s.Positions[0].Asset != "A" {
		t.Fatalf("expected one entry in A, got %+v", s.Positions)
	}

	// A new leader is a different asset: no debounce applies.
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 2 || s.Positions[1].Asset != "B" {
		t.Fatalf("expected immediate rotation into B, got %+v", s.Positions)
	}

	// At the cap no more entries fire.
	s.LastTradeAt = tick.Now.Add(-6 * time.Minute).UnixMilli()
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 2 {
		t.Fatalf("position cap violated: %+v", s.Positions)
	}
}

func TestMomentum_DebouncesReentryOfLastAsset(t *testing.T) {
	proc := NewMomentum()
	s := &model.Strategy{
		ID: "mom-2", Type: model.StrategyMomentum, Status: model.StatusRunning,
		Config: model.StrategyConfig{Momentum: &model.MomentumConfig{
			MinChange24hPct: 5, MinVolume24h: 50_000, MaxPositions: 2, SizePerPosition: 0.1,
		}},
	}

	// A was just bought and closed; it leads the snapshot again.
	tick := testTick(snapshot(tok("A", 1, 25, 1e6)))
	s.LastTradeAsset = "A"
	s.LastTradeAt = tick.Now.Add(-10 * time.Second).UnixMilli()
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 0 {
		t.Fatalf("re-entered %s inside the debounce window: %+v", s.LastTradeAsset, s.Positions)
	}

	// Past the window the re-entry goes through.
	s.LastTradeAt = tick.Now.Add(-6 * time.Minute).UnixMilli()
	proc.Process(context.Background(), tick, s)
	if len(s.Positions) != 1 || s.Positions[0].Asset != "A" {
		t.Fatalf("expected re-entry in A after the window, got %+v", s.Positions)
	}
}

func TestExits_SellDoesNotStampLastTrade(t *testing.T) {
	proc := NewSniper()
	s := sniperStrategy("BONK", 1)
	s.ExecutedSize = 1
	s.Positions = []model.Position{{Asset: "BONK", EntryPrice: 100, Size: 1}}
	buyAt := time.Now().Add(-2 * time.Minute).UnixMilli()
	s.LastTradeAsset = "BONK"
	s.LastTradeAt = buyAt

	up := testTick(snapshot(tok("BONK", 130, 0, 0)))
	proc.Process(context.Background(), up, s)
	if len(s.Positions) != 0 {
		t.Fatal("expected take-profit exit")
	}
	if s.LastTradeAsset != "BONK" || s.LastTradeAt != buyAt {
		t.Errorf("sell stamped last-trade state: asset=%s at=%d want at=%d", s.LastTradeAsset, s.LastTradeAt, buyAt)
	}
}

func TestRegistry_LookupUnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Lookup(model.StrategyType("GRID")); err == nil {
		t.Fatal("expected error for unregistered type")
	}
	for _, typ := range []model.StrategyType{model.StrategySniper, model.StrategyDCA, model.StrategyMomentum} {
		if _, err := r.Lookup(typ); err != nil {
			t.Errorf("Lookup(%s): %v", typ, err)
		}
	}
}
