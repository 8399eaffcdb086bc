package model

import "strings"

// Token is one row of the cached market snapshot. The snapshot is written
// only by the engine's refresh loop and read everywhere else.
type Token struct {
	Address     string  `json:"address"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	Change24Pct float64 `json:"change_24h_pct"`
	Volume24h   float64 `json:"volume_24h"`
	Rank        int     `json:"rank"` // market-cap rank, 1 = largest
}

// MatchesAsset reports whether the row refers to the given mint address or
// symbol (case-insensitive on symbols).
func (t *Token) MatchesAsset(asset string) bool {
	return t.Address == asset || strings.EqualFold(t.Symbol, asset)
}

// FindToken scans a snapshot for an asset. Returns nil when unpriced.
func FindToken(snapshot []Token, asset string) *Token {
	for i := range snapshot {
		if snapshot[i].MatchesAsset(asset) {
			return &snapshot[i]
		}
	}
	return nil
}
