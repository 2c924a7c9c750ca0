package sui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	// Public fullnodes allow ~100 req/s; stay well under.
	readRatePerSec = 20

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// rpcResponse is a JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is the Sui fullnode JSON-RPC client with rate limiting and retries
// on transport-level failures. Write submissions are never retried here:
// retrying a possibly-landed transaction is the caller's decision, and every
// caller defers it to the next tick.
type Client struct {
	http    *http.Client
	rpcURL  string
	limiter *rate.Limiter
}

// NewClient creates a Client for the given fullnode URL.
func NewClient(rpcURL string) *Client {
	return &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		rpcURL:  rpcURL,
		limiter: rate.NewLimiter(readRatePerSec, 5),
	}
}

// Call performs one JSON-RPC call with retries and decodes the result into out.
func (c *Client) Call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("sui.Call: marshal %s: %w", method, err)
	}

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return fmt.Errorf("sui.Call: %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("sui.Call: %s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("sui.Call: %s: decode result: %w", method, err)
	}
	return nil
}

// CallOnce is Call without transport retries, for transaction execution where
// a duplicate submission could double-spend a fund handle.
func (c *Client) CallOnce(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("sui.CallOnce: marshal %s: %w", method, err)
	}

	resp, err := c.do(ctx, body)
	if err != nil {
		return fmt.Errorf("sui.CallOnce: %s: %w", method, err)
	}
	if resp.Error != nil {
		return fmt.Errorf("sui.CallOnce: %s: %w", method, resp.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("sui.CallOnce: %s: decode result: %w", method, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, body []byte) (*rpcResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(b))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rpcResp, nil
}

// doWithRetry retries transport failures and 429/5xx with exponential backoff.
func (c *Client) doWithRetry(ctx context.Context, body []byte) (*rpcResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.do(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if attempt < maxRetries {
			slog.Debug("sui: rpc call failed, retrying", "attempt", attempt+1, "err", err)
			c.sleep(ctx, attempt)
		}
	}
	return nil, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// sleep waits with exponential backoff, respecting the context.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
