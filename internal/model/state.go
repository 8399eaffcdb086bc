package model

// PriorityTier selects the bundle tip size for real executions.
type PriorityTier string

const (
	PriorityLow      PriorityTier = "low"
	PriorityStandard PriorityTier = "standard"
	PriorityHigh     PriorityTier = "high"
)

// Settings are the account-level knobs.
type Settings struct {
	Simulated         bool         `json:"simulated"`
	DefaultSimBalance float64      `json:"default_sim_balance"` // quote-currency starting balance for simulated wallets
	PriorityFee       PriorityTier `json:"priority_fee"`
	SlippageBps       int          `json:"slippage_bps"`

	TelegramToken  string `json:"telegram_token,omitempty"`
	TelegramChatID string `json:"telegram_chat_id,omitempty"`
	DiscordWebhook string `json:"discord_webhook,omitempty"`
}

// Stats are the running trade tallies. RealizedPnL is incremented exactly
// once per closed position, at the moment the position is removed after a
// successful SELL.
type Stats struct {
	RealizedPnL float64 `json:"realized_pnl"`
	TotalTrades int     `json:"total_trades"`
	Wins        int     `json:"wins"`
	WinRate     float64 `json:"win_rate"` // percent over closed trades
}

// RecordClose folds one closed trade into the tallies.
func (st *Stats) RecordClose(realized float64) {
	st.RealizedPnL += realized
	st.TotalTrades++
	if realized > 0 {
		st.Wins++
	}
	st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
}

// Merge folds a delta of closed trades into the tallies and recomputes
// the win rate. The delta's own WinRate is ignored.
func (st *Stats) Merge(d Stats) {
	if d.TotalTrades == 0 && d.RealizedPnL == 0 {
		return
	}
	st.RealizedPnL += d.RealizedPnL
	st.TotalTrades += d.TotalTrades
	st.Wins += d.Wins
	if st.TotalTrades > 0 {
		st.WinRate = float64(st.Wins) / float64(st.TotalTrades) * 100
	}
}

// LogLevel classifies an event for observers.
type LogLevel string

const (
	LogInfo    LogLevel = "INFO"
	LogSuccess LogLevel = "SUCCESS"
	LogWarn    LogLevel = "WARN"
	LogError   LogLevel = "ERROR"
	LogDebug   LogLevel = "DEBUG"
)

// LogEvent is a timestamped, user-visible engine event.
type LogEvent struct {
	Timestamp int64    `json:"timestamp"` // unix ms
	Message   string   `json:"message"`
	Level     LogLevel `json:"level"`
}

// MaxStoredLogs caps the persisted log list (oldest evicted first).
const MaxStoredLogs = 500

// State is the full persisted document. The engine reads it once at boot,
// owns it in memory, and writes it back whole; the store treats it as a
// single-writer document, not a transactional database.
type State struct {
	Strategies       []Strategy          `json:"strategies"`
	Wallets          []Wallet            `json:"wallets"`
	Settings         Settings            `json:"settings"`
	Stats            Stats               `json:"stats"`
	Logs             []LogEvent          `json:"logs"`
	PortfolioHistory []PortfolioSnapshot `json:"portfolio_history"`
}

// DefaultState returns the document used when the store is empty.
func DefaultState() *State {
	return &State{
		Settings: Settings{
			Simulated:         true,
			DefaultSimBalance: 100,
			PriorityFee:       PriorityStandard,
			SlippageBps:       50,
		},
	}
}

// StrategyByID returns a pointer into the document, or nil.
func (st *State) StrategyByID(id string) *Strategy {
	for i := range st.Strategies {
		if st.Strategies[i].ID == id {
			return &st.Strategies[i]
		}
	}
	return nil
}

// WalletByKey returns a pointer into the document, or nil.
func (st *State) WalletByKey(publicKey string) *Wallet {
	for i := range st.Wallets {
		if st.Wallets[i].PublicKey == publicKey {
			return &st.Wallets[i]
		}
	}
	return nil
}

// SimulatedWallet returns the first simulated wallet, or nil.
func (st *State) SimulatedWallet() *Wallet {
	for i := range st.Wallets {
		if st.Wallets[i].IsSimulated {
			return &st.Wallets[i]
		}
	}
	return nil
}

// AppendLog appends an event, evicting the oldest past MaxStoredLogs.
func (st *State) AppendLog(ev LogEvent) {
	st.Logs = append(st.Logs, ev)
	if len(st.Logs) > MaxStoredLogs {
		st.Logs = st.Logs[len(st.Logs)-MaxStoredLogs:]
	}
}
