// Package rpcnode adapts a Bitcoin Core JSON-RPC endpoint to the
// internal/tp ports: ChainstateManager, Mempool, and BlockAssembler. The
// node itself builds block templates and validates submissions; this
// package's job is purely request/response plumbing.
package rpcnode

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"sv2tp/internal/tp"
)

// Client is a minimal Bitcoin Core JSON-RPC client. It implements
// tp.ChainstateManager, tp.Mempool, and tp.BlockAssembler.
type Client struct {
	httpClient *http.Client
	url        *url.URL
}

// New builds a Client against a node RPC URL that may carry basic-auth
// userinfo.
func New(rawURL string) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("rpcnode: parse rpc url: %w", err)
	}
	return &Client{httpClient: &http.Client{Timeout: 10 * time.Second}, url: parsed}, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "sv2tp", Method: method, Params: params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url.String(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.url.User != nil {
		pw, _ := c.url.User.Password()
		req.SetBasicAuth(c.url.User.Username(), pw)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("rpcnode: %s: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("rpcnode: %s: read response: %w", method, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("rpcnode: %s: status %d: %s", method, resp.StatusCode, string(data))
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("rpcnode: %s: decode envelope: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("rpcnode: %s: rpc error %d: %s", method, envelope.Error.Code, envelope.Error.Message)
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, result); err != nil {
		return fmt.Errorf("rpcnode: %s: decode result: %w", method, err)
	}
	return nil
}

// reverseHash decodes a big-endian display hex hash (as bitcoind prints
// it) into the little-endian 32-byte internal form used throughout the
// Template Distribution wire format and SubmitSolution reconstitution.
func reverseHash(hexStr string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("rpcnode: expected a 32-byte hash, got %d bytes", len(raw))
	}
	for i := range raw {
		out[i] = raw[len(raw)-1-i]
	}
	return out, nil
}

// IsIBD implements tp.ChainstateManager.
func (c *Client) IsIBD(ctx context.Context) (bool, error) {
	var info struct {
		InitialBlockDownload bool `json:"initialblockdownload"`
	}
	if err := c.call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return false, err
	}
	return info.InitialBlockDownload, nil
}

// BestBlockHash implements tp.ChainstateManager.
func (c *Client) BestBlockHash(ctx context.Context) ([32]byte, error) {
	var info struct {
		BestBlockHash string `json:"bestblockhash"`
	}
	if err := c.call(ctx, "getblockchaininfo", nil, &info); err != nil {
		return [32]byte{}, err
	}
	return reverseHash(info.BestBlockHash)
}

// ProcessNewBlock implements tp.ChainstateManager: it hex-encodes a fully
// serialized block and relays it via submitblock.
func (c *Client) ProcessNewBlock(ctx context.Context, rawBlock []byte) error {
	blockHex := hex.EncodeToString(rawBlock)
	var result *string
	if err := c.call(ctx, "submitblock", []interface{}{blockHex}, &result); err != nil {
		return err
	}
	if result != nil && *result != "" {
		return fmt.Errorf("rpcnode: submitblock rejected: %s", *result)
	}
	return nil
}

// TransactionsUpdated implements tp.Mempool. Bitcoin Core's RPC surface
// has no single monotonic mempool-version counter, so this combines
// getmempoolinfo's transaction count and byte total into one value that
// changes whenever the mempool's contents change, which is sufficient for
// the dispatch loop's equality-based "did anything change" check.
func (c *Client) TransactionsUpdated(ctx context.Context) (uint64, error) {
	var info struct {
		Size  uint64 `json:"size"`
		Bytes uint64 `json:"bytes"`
	}
	if err := c.call(ctx, "getmempoolinfo", nil, &info); err != nil {
		return 0, err
	}
	return info.Size<<32 | (info.Bytes & 0xffffffff), nil
}

var _ tp.ChainstateManager = (*Client)(nil)
var _ tp.Mempool = (*Client)(nil)
