package model

// Wallet is one funding account. Simulated wallet balances are adjusted
// synchronously on trade; real wallet balances are refreshed from the RPC
// node on a fixed cadence and never written by trading logic.
type Wallet struct {
	PublicKey    string `json:"public_key"`
	Label        string `json:"label"`
	EncryptedKey string `json:"encrypted_key,omitempty"`

	BalanceLamports int64 `json:"balance_lamports"`
	IsSimulated     bool  `json:"is_simulated"`

	// Manual holdings on a simulated wallet (outside any strategy).
	Positions []Position `json:"positions,omitempty"`
}

// LamportsPerSOL is the native unit scale of the chain.
const LamportsPerSOL = 1_000_000_000
