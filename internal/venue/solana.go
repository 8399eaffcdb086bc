package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

const defaultRPCURL = "https://api.mainnet-beta.solana.com"

// RPCClient is a minimal Solana JSON-RPC client covering the chain reads
// the controller needs: balances and recent blockhashes.
type RPCClient struct {
	client *http.Client
	url    string
	seq    uint64
}

// NewRPCClient creates a client; an empty URL selects the public mainnet
// endpoint.
func NewRPCClient(url string) *RPCClient {
	if url == "" {
		url = defaultRPCURL
	}
	return &RPCClient{
		client: &http.Client{Timeout: 10 * time.Second},
		url:    url,
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      atomic.AddUint64(&c.seq, 1),
		"method":  method,
		"params":  params,
	})
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}

	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("rpc %s decode: %w", method, err)
	}
	if out.Error != nil {
		return fmt.Errorf("rpc %s: %s (code %d)", method, out.Error.Message, out.Error.Code)
	}
	if result != nil {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("rpc %s result decode: %w", method, err)
		}
	}
	return nil
}

// GetBalance returns the lamport balance of an account.
func (c *RPCClient) GetBalance(ctx context.Context, publicKey string) (uint64, error) {
	var res struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{publicKey}, &res); err != nil {
		return 0, err
	}
	return res.Value, nil
}

// GetLatestBlockhash returns a recent blockhash for transaction assembly.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) (string, error) {
	var res struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getLatestBlockhash", params, &res); err != nil {
		return "", err
	}
	if res.Value.Blockhash == "" {
		return "", fmt.Errorf("rpc getLatestBlockhash: empty blockhash")
	}
	return res.Value.Blockhash, nil
}
