package sqlite

import (
	"path/filepath"
	"testing"

	"soltrader/internal/model"
)

func openTestStore(t *testing.T) *StateStore {
	t.Helper()
	store, err := NewStateStore(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("NewStateStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStateStore_LoadEmptyReturnsDefault(t *testing.T) {
	store := openTestStore(t)

	st, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !st.Settings.Simulated {
		t.Error("expected default state to start simulated")
	}
	if len(st.Strategies) != 0 {
		t.Errorf("expected no strategies, got %d", len(st.Strategies))
	}
}

func TestStateStore_RoundTrip(t *testing.T) {
	store := openTestStore(t)

	st := model.DefaultState()
	st.Strategies = append(st.Strategies, model.Strategy{
		ID:     "strat-1",
		Type:   model.StrategySniper,
		Status: model.StatusRunning,
		Config: model.StrategyConfig{
			Sniper: &model.SniperConfig{TargetAsset: "BONK", SizeSOL: 0.5},
		},
	})
	st.Stats.RecordClose(12.5)

	if err := store.Save(st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded.Strategies) != 1 {
		t.Fatalf("expected 1 strategy, got %d", len(loaded.Strategies))
	}
	got := loaded.Strategies[0]
	if got.ID != "strat-1" || got.Type != model.StrategySniper {
		t.Errorf("strategy mismatch: %+v", got)
	}
	if got.Config.Sniper == nil || got.Config.Sniper.TargetAsset != "BONK" {
		t.Errorf("sniper config not preserved: %+v", got.Config)
	}
	if loaded.Stats.TotalTrades != 1 || loaded.Stats.RealizedPnL != 12.5 {
		t.Errorf("stats not preserved: %+v", loaded.Stats)
	}
}

func TestStateStore_SaveOverwrites(t *testing.T) {
	store := openTestStore(t)

	st := model.DefaultState()
	st.Settings.SlippageBps = 100
	if err := store.Save(st); err != nil {
		t.Fatalf("first Save: %v", err)
	}

	st.Settings.SlippageBps = 250
	if err := store.Save(st); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Settings.SlippageBps != 250 {
		t.Errorf("expected slippage 250, got %d", loaded.Settings.SlippageBps)
	}
}
