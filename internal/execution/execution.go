// Package execution turns strategy trade requests into fills. Two
// providers implement the same contract: a paper provider that settles
// against the market snapshot, and a real provider that routes through
// Jupiter and submits Jito bundles.
package execution

import (
	"context"
	"time"
)

// Action is the trade direction.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Request is one trade the engine wants executed.
type Request struct {
	StrategyID  string
	Action      Action
	Asset       string  // symbol, for logs and position bookkeeping
	Mint        string  // token mint address
	SizeSOL     float64 // trade size in SOL
	Price       float64 // last known price; 0 = unknown
	SlippageBps int
	Reason      string
}

// Outcome is the result of an execution attempt. It is a value, never an
// error: a failed trade is a normal outcome the strategy layer reacts to.
type Outcome struct {
	Success    bool      `json:"success"`
	OrderID    string    `json:"order_id"`
	BundleID   string    `json:"bundle_id,omitempty"`
	Asset      string    `json:"asset"`
	Action     Action    `json:"action"`
	FilledSize float64   `json:"filled_size"`
	Price      float64   `json:"price"`
	Message    string    `json:"message,omitempty"`
	FilledAt   time.Time `json:"filled_at"`
}

// Provider executes trade requests.
type Provider interface {
	Name() string
	Execute(ctx context.Context, req Request) Outcome
}
