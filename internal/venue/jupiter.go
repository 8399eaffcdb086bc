// Package venue holds the thin HTTP clients for the external trading
// surfaces: Jupiter for quotes and swap building, Jito for bundle
// submission, and the Solana JSON-RPC node for chain reads.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	defaultQuoteURL = "https://quote-api.jup.ag/v6/quote"
	defaultSwapURL  = "https://quote-api.jup.ag/v6/swap"
)

// QuoteRequest asks Jupiter for a route between two mints.
type QuoteRequest struct {
	InputMint      string
	OutputMint     string
	AmountLamports uint64 // amount of the input mint, base units
	SlippageBps    int
}

// Quote is the raw Jupiter quote response. The full body is kept verbatim
// because the swap endpoint wants it echoed back unchanged.
type Quote struct {
	InputMint      string `json:"inputMint"`
	OutputMint     string `json:"outputMint"`
	InAmount       string `json:"inAmount"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`

	raw json.RawMessage
}

// OutAmountLamports parses the quoted output amount.
func (q *Quote) OutAmountLamports() (uint64, error) {
	n, err := strconv.ParseUint(q.OutAmount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse outAmount %q: %w", q.OutAmount, err)
	}
	return n, nil
}

// JupiterClient talks to the Jupiter aggregator HTTP API.
type JupiterClient struct {
	client   *http.Client
	quoteURL string
	swapURL  string
}

// NewJupiterClient creates a client with the given endpoints; empty strings
// select the public v6 API.
func NewJupiterClient(quoteURL, swapURL string) *JupiterClient {
	if quoteURL == "" {
		quoteURL = defaultQuoteURL
	}
	if swapURL == "" {
		swapURL = defaultSwapURL
	}
	return &JupiterClient{
		client:   &http.Client{Timeout: 10 * time.Second},
		quoteURL: quoteURL,
		swapURL:  swapURL,
	}
}

// GetQuote fetches a swap route for the request.
func (c *JupiterClient) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	q := url.Values{}
	q.Set("inputMint", req.InputMint)
	q.Set("outputMint", req.OutputMint)
	q.Set("amount", strconv.FormatUint(req.AmountLamports, 10))
	q.Set("slippageBps", strconv.Itoa(req.SlippageBps))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.quoteURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("jupiter quote: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jupiter quote: status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("jupiter quote decode: %w", err)
	}
	var quote Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, fmt.Errorf("jupiter quote decode: %w", err)
	}
	if quote.OutAmount == "" {
		return nil, fmt.Errorf("jupiter quote: no route for %s -> %s", req.InputMint, req.OutputMint)
	}
	quote.raw = raw
	return &quote, nil
}

// BuildSwapTransaction asks Jupiter to assemble the swap transaction for a
// quote. Returns the base64-encoded unsigned transaction.
func (c *JupiterClient) BuildSwapTransaction(ctx context.Context, quote *Quote, userPublicKey string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"quoteResponse":    quote.raw,
		"userPublicKey":    userPublicKey,
		"wrapAndUnwrapSol": true,
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.swapURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("jupiter swap: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jupiter swap: status %d", resp.StatusCode)
	}

	var out struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("jupiter swap decode: %w", err)
	}
	if out.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter swap: empty transaction")
	}
	return out.SwapTransaction, nil
}
