// Package market fetches and caches the tradable-asset snapshot the engine
// and strategy processors read each tick.
//
// The scanner has two sources: a ranked discovery list (CoinGecko, Solana
// ecosystem category) and a per-mint fallback (DexScreener) used when the
// primary is rate-limited or down. A circuit breaker around the primary
// avoids hammering it while it is failing.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"soltrader/internal/circuit"
	"soltrader/internal/model"
)

const (
	defaultGeckoURL = "https://api.coingecko.com/api/v3/coins/markets" +
		"?vs_currency=usd&category=solana-ecosystem&order=market_cap_desc" +
		"&per_page=100&page=1&sparkline=false&price_change_percentage=24h"
	defaultDexScreenerURL = "https://api.dexscreener.com/latest/dex/tokens"
)

// fallbackMints is the major-token list priced through DexScreener when the
// discovery source is unavailable, so the bot always has something real to
// trade.
var fallbackMints = []string{
	"So11111111111111111111111111111111111111112", // SOL
	"JUPyiwrYJFskUPiHa7hkeR8VUtkPHCLkh5FZnPfryoo", // JUP
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263", // BONK
	"EKpQGSJtjMFqKZ9KQanSqYXRcF8fBopzLHYxdM65zcjm", // WIF
	"7GCihgDB8fe6KNjn2MYtkzZcRjQy3t9GHdC8uHYkW2hr", // POPCAT
}

// Scanner fetches market snapshots and spot prices.
type Scanner struct {
	client  *http.Client
	gecko   string
	dex     string
	breaker *circuit.Breaker
}

// NewScanner creates a scanner with default endpoints.
func NewScanner() *Scanner {
	return &Scanner{
		client:  &http.Client{Timeout: 10 * time.Second},
		gecko:   defaultGeckoURL,
		dex:     defaultDexScreenerURL,
		breaker: circuit.NewBreaker(3, 2*time.Minute),
	}
}

// NewScannerWithEndpoints creates a scanner against explicit endpoints
// (used in tests with httptest servers).
func NewScannerWithEndpoints(geckoURL, dexURL string) *Scanner {
	s := NewScanner()
	s.gecko = geckoURL
	s.dex = dexURL
	return s
}

// TopTokens returns the ranked snapshot of tradable assets, trying the
// primary source first and falling back to DexScreener pricing of the major
// list. An empty snapshot with nil error means both sources were dry.
func (s *Scanner) TopTokens(ctx context.Context) ([]model.Token, error) {
	var tokens []model.Token
	err := s.breaker.Execute(func() error {
		var ferr error
		tokens, ferr = s.fetchGecko(ctx)
		return ferr
	})
	if err == nil && len(tokens) > 0 {
		return tokens, nil
	}
	if err != nil && err != circuit.ErrOpen {
		log.Printf("[market] primary source failed (%v), trying fallback", err)
	}

	tokens, err = s.fetchDexScreener(ctx, fallbackMints)
	if err != nil {
		return nil, fmt.Errorf("market: all sources failed: %w", err)
	}
	return tokens, nil
}

// SpotPrice looks up a single asset's current price. Returns 0 with nil
// error when the asset is simply unpriced.
func (s *Scanner) SpotPrice(ctx context.Context, asset string) (float64, error) {
	tokens, err := s.fetchDexScreener(ctx, []string{asset})
	if err != nil {
		return 0, err
	}
	if t := model.FindToken(tokens, asset); t != nil {
		return t.Price, nil
	}
	return 0, nil
}

type geckoRow struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"current_price"`
	Change24Pct float64 `json:"price_change_percentage_24h"`
	Volume24h   float64 `json:"total_volume"`
	Rank        int     `json:"market_cap_rank"`
}

func (s *Scanner) fetchGecko(ctx context.Context) ([]model.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.gecko, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d", resp.StatusCode)
	}

	var rows []geckoRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("coingecko: decode: %w", err)
	}

	tokens := make([]model.Token, 0, len(rows))
	for _, r := range rows {
		tokens = append(tokens, model.Token{
			Address:     r.ID,
			Symbol:      strings.ToUpper(r.Symbol),
			Price:       r.Price,
			Change24Pct: r.Change24Pct,
			Volume24h:   r.Volume24h,
			Rank:        r.Rank,
		})
	}
	return tokens, nil
}

type dexScreenerResponse struct {
	Pairs []struct {
		BaseToken struct {
			Address string `json:"address"`
			Symbol  string `json:"symbol"`
		} `json:"baseToken"`
		QuoteToken struct {
			Symbol string `json:"symbol"`
		} `json:"quoteToken"`
		PriceUsd    string `json:"priceUsd"`
		PriceChange struct {
			H24 float64 `json:"h24"`
		} `json:"priceChange"`
		Volume struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
	} `json:"pairs"`
}

func (s *Scanner) fetchDexScreener(ctx context.Context, mints []string) ([]model.Token, error) {
	u := s.dex + "/" + url.PathEscape(strings.Join(mints, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dexscreener: status %d", resp.StatusCode)
	}

	var dr dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("dexscreener: decode: %w", err)
	}

	// Keep the deepest SOL/USDC pair per base token.
	best := make(map[string]model.Token)
	depth := make(map[string]float64)
	for _, p := range dr.Pairs {
		if p.QuoteToken.Symbol != "SOL" && p.QuoteToken.Symbol != "USDC" {
			continue
		}
		price, err := strconv.ParseFloat(p.PriceUsd, 64)
		if err != nil {
			continue
		}
		sym := strings.ToUpper(p.BaseToken.Symbol)
		if p.Liquidity.USD <= depth[sym] && depth[sym] > 0 {
			continue
		}
		depth[sym] = p.Liquidity.USD
		best[sym] = model.Token{
			Address:     p.BaseToken.Address,
			Symbol:      sym,
			Price:       price,
			Change24Pct: p.PriceChange.H24,
			Volume24h:   p.Volume.H24,
		}
	}

	tokens := make([]model.Token, 0, len(best))
	for _, t := range best {
		tokens = append(tokens, t)
	}
	// Rank by liquidity depth so index 0 is the deepest market.
	sort.Slice(tokens, func(i, j int) bool {
		return depth[tokens[i].Symbol] > depth[tokens[j].Symbol]
	})
	for i := range tokens {
		tokens[i].Rank = i + 1
	}
	return tokens, nil
}
