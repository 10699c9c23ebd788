package chainread

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/solguard/solguard/internal/types"
)

// DefaultRequestTimeout bounds a single RPC request. A slow chain read
// degrades the verification leg to "unavailable"; it must never hang the
// whole request.
const DefaultRequestTimeout = 15 * time.Second

// Account is the raw account state returned by the chain.
type Account struct {
	// Lamports is the account balance.
	Lamports uint64

	// Owner is the program that owns this account. Deployed programs are
	// owned by one of the BPF loaders.
	Owner types.Pubkey

	// Data is the decoded raw account bytes.
	Data []byte

	// Executable indicates a program account.
	Executable bool

	// RentEpoch is the epoch at which rent was last collected.
	RentEpoch uint64

	// Slot is the slot at which this read was served.
	Slot uint64
}

// Client reads account state over Solana JSON-RPC.
type Client struct {
	httpClient *http.Client
	pool       Pool
	commitment string
}

// NewClient creates a new chain reader with the given pool.
// An empty commitment defaults to "confirmed".
func NewClient(pool Pool, timeout time.Duration, commitment string) *Client {
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		pool:       pool,
		commitment: commitment,
	}
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC error.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// accountInfoResult is the getAccountInfo RPC result envelope.
type accountInfoResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value *accountInfoValue `json:"value"`
}

// accountInfoValue is the account description inside the envelope.
// Data arrives as a [content, encoding] pair.
type accountInfoValue struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// call makes a JSON-RPC call to a healthy endpoint.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	endpoint, err := c.pool.GetEndpoint(ctx)
	if err != nil {
		return fmt.Errorf("get endpoint: %w", err)
	}

	start := time.Now()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.pool.MarkUnhealthy(endpoint.URL, fmt.Errorf("status %d", resp.StatusCode))
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		c.pool.MarkUnhealthy(endpoint.URL, err)
		return fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		// RPC errors are not endpoint health issues
		return &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}

	c.pool.MarkHealthy(endpoint.URL, time.Since(start))
	return nil
}

// GetAccountInfo fetches the raw account at the given address.
// Returns ErrAccountNotFound when no account exists there; that outcome
// feeds the not-deployed verdict and is not a failure.
func (c *Client) GetAccountInfo(ctx context.Context, pubkey types.Pubkey) (*Account, error) {
	params := []interface{}{
		pubkey.String(),
		map[string]interface{}{
			"encoding":   string(EncodingBase64Zstd),
			"commitment": c.commitment,
		},
	}

	var result accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}

	if result.Value == nil {
		return nil, ErrAccountNotFound
	}

	return convertAccount(result.Context.Slot, result.Value)
}

// GetSlot fetches the current slot from the cluster.
func (c *Client) GetSlot(ctx context.Context) (uint64, error) {
	params := []interface{}{
		map[string]interface{}{
			"commitment": c.commitment,
		},
	}

	var slot uint64
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

// convertAccount converts an RPC account value to an Account.
func convertAccount(slot uint64, v *accountInfoValue) (*Account, error) {
	acc := &Account{
		Lamports:   v.Lamports,
		Executable: v.Executable,
		RentEpoch:  v.RentEpoch,
		Slot:       slot,
	}

	if v.Owner != "" {
		owner, err := types.PubkeyFromBase58(v.Owner)
		if err != nil {
			return nil, fmt.Errorf("parse owner: %w", err)
		}
		acc.Owner = owner
	}

	// Data is a [content, encoding] pair. Some endpoints ignore the
	// requested encoding and answer in plain base64, so trust the
	// response's own tag.
	if len(v.Data) >= 2 {
		data, err := DecodeAccountData(v.Data[0], Encoding(v.Data[1]))
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		acc.Data = data
	} else if len(v.Data) == 1 {
		data, err := DecodeAccountData(v.Data[0], EncodingBase64)
		if err != nil {
			return nil, fmt.Errorf("decode account data: %w", err)
		}
		acc.Data = data
	}

	return acc, nil
}
