package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"soltrader/internal/model"
)

func TestTopTokensPrimarySource(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"id":"solana","symbol":"sol","current_price":150.5,"price_change_percentage_24h":3.2,"total_volume":900000000,"market_cap_rank":1},
			{"id":"bonk","symbol":"bonk","current_price":0.00002,"price_change_percentage_24h":12.5,"total_volume":45000000,"market_cap_rank":2}
		]`))
	}))
	defer gecko.Close()

	s := NewScannerWithEndpoints(gecko.URL, "http://127.0.0.1:1")
	tokens, err := s.TopTokens(context.Background())
	if err != nil {
		t.Fatalf("TopTokens: %v", err)
	}
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if tokens[0].Symbol != "SOL" {
		t.Errorf("symbol = %q, want upper-cased SOL", tokens[0].Symbol)
	}
	if tokens[0].Price != 150.5 || tokens[0].Rank != 1 {
		t.Errorf("token[0] = %+v, want price 150.5 rank 1", tokens[0])
	}
	if tokens[1].Change24Pct != 12.5 {
		t.Errorf("change = %v, want 12.5", tokens[1].Change24Pct)
	}
}

func TestTopTokensFallsBackToDexScreener(t *testing.T) {
	gecko := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer gecko.Close()

	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[
			{"baseToken":{"address":"mint-bonk","symbol":"Bonk"},"quoteToken":{"symbol":"SOL"},
			 "priceUsd":"0.00003","priceChange":{"h24":9.1},"volume":{"h24":1000000},"liquidity":{"usd":500000}},
			{"baseToken":{"address":"mint-bonk","symbol":"Bonk"},"quoteToken":{"symbol":"SOL"},
			 "priceUsd":"0.00004","priceChange":{"h24":9.1},"volume":{"h24":2000000},"liquidity":{"usd":900000}},
			{"baseToken":{"address":"mint-wif","symbol":"WIF"},"quoteToken":{"symbol":"USDC"},
			 "priceUsd":"1.25","priceChange":{"h24":-2.0},"volume":{"h24":3000000},"liquidity":{"usd":400000}},
			{"baseToken":{"address":"mint-odd","symbol":"ODD"},"quoteToken":{"symbol":"DOGE"},
			 "priceUsd":"5","priceChange":{"h24":1},"volume":{"h24":100},"liquidity":{"usd":100}}
		]}`))
	}))
	defer dex.Close()

	s := NewScannerWithEndpoints(gecko.URL, dex.URL)
	tokens, err := s.TopTokens(context.Background())
	if err != nil {
		t.Fatalf("TopTokens: %v", err)
	}

	// The DOGE-quoted pair is dropped; the deeper BONK pair wins.
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2: %+v", len(tokens), tokens)
	}
	if tokens[0].Symbol != "BONK" || tokens[0].Price != 0.00004 {
		t.Errorf("deepest market first: got %+v", tokens[0])
	}
	if tokens[0].Rank != 1 || tokens[1].Rank != 2 {
		t.Errorf("ranks = %d,%d, want 1,2", tokens[0].Rank, tokens[1].Rank)
	}
}

func TestSpotPriceUnpricedAsset(t *testing.T) {
	dex := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pairs":[]}`))
	}))
	defer dex.Close()

	s := NewScannerWithEndpoints("http://127.0.0.1:1", dex.URL)
	price, err := s.SpotPrice(context.Background(), "ghost-mint")
	if err != nil {
		t.Fatalf("SpotPrice: %v", err)
	}
	if price != 0 {
		t.Errorf("price = %v, want 0 for unpriced asset", price)
	}
}

func TestCacheReplaceIgnoresEmptySnapshot(t *testing.T) {
	c := NewCache()
	c.Replace([]model.Token{{Symbol: "SOL", Price: 150}})
	c.Replace(nil)

	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1 after empty replace", c.Len())
	}
	if tok, ok := c.Find("sol"); !ok || tok.Price != 150 {
		t.Errorf("Find(sol) = %+v %v, want the kept row", tok, ok)
	}
}
