package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"soltrader/internal/model"
)

const defaultJitoURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

// tipAccounts are the Jito block-engine tip destinations. One is picked at
// random per bundle to spread load across the set.
var tipAccounts = []string{
	"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
	"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
	"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
	"ADaUMid9yfUytqMBgopwjb2DTLSokTSzL1zt6iGPaS49",
	"DfXygSm4jCyNCybVYYK6DwvWqjKee8pbDmJGcLWNDXjh",
	"ADuUkR4vqLUMWXxW9gh6D6L8pMSawimctcNZ5pGwDcEt",
	"DttWaMuVvTiduZRnguLF7jNxTgiMBZ1hyAumKUiL2KRL",
	"3AVi9Tg9Uo68tJfuvoKvqKNWKkC5wPdSSdeBnizKZ6jT",
}

// tipLamports maps a priority tier to the bundle tip size.
var tipLamports = map[model.PriorityTier]uint64{
	model.PriorityLow:      1_000,
	model.PriorityStandard: 10_000,
	model.PriorityHigh:     100_000,
}

// TipLamports returns the tip size for a tier, defaulting to standard.
func TipLamports(tier model.PriorityTier) uint64 {
	if v, ok := tipLamports[tier]; ok {
		return v
	}
	return tipLamports[model.PriorityStandard]
}

// TipAccount returns a random tip destination.
func TipAccount() string {
	return tipAccounts[rand.Intn(len(tipAccounts))]
}

// JitoClient submits transaction bundles to the Jito block engine.
type JitoClient struct {
	client *http.Client
	url    string
}

// NewJitoClient creates a client; an empty URL selects the mainnet engine.
func NewJitoClient(url string) *JitoClient {
	if url == "" {
		url = defaultJitoURL
	}
	return &JitoClient{
		client: &http.Client{Timeout: 15 * time.Second},
		url:    url,
	}
}

// SubmitBundle sends base64-encoded signed transactions as one atomic
// bundle. The tip transaction must already be included (last). Returns the
// bundle id assigned by the engine.
func (c *JitoClient) SubmitBundle(ctx context.Context, signedTxs []string) (string, error) {
	if len(signedTxs) == 0 {
		return "", fmt.Errorf("jito: empty bundle")
	}

	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "sendBundle",
		"params":  []interface{}{signedTxs, map[string]string{"encoding": "base64"}},
	})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("jito sendBundle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("jito sendBundle: status %d", resp.StatusCode)
	}

	var out struct {
		Result string `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("jito sendBundle decode: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("jito sendBundle: %s (code %d)", out.Error.Message, out.Error.Code)
	}
	if out.Result == "" {
		return "", fmt.Errorf("jito sendBundle: empty bundle id")
	}
	return out.Result, nil
}
