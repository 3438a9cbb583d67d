// Package fetchcli implements the JSON-RPC client used by the
// archfetch CLI to talk to a running daemon over its local socket,
// named pipe, or TCP fallback.
package fetchcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/archfetch/archfetch/common"
)

// Client is a JSON-RPC 2.0 client for the archfetch daemon.
type Client struct {
	http   *http.Client
	base   string
	secret string
	nextID int64
}

// NewClient connects to the daemon using the platform transport:
// Unix socket (or named pipe on Windows), or TCP when forced via
// ARCHFETCH_FORCE_TCP.
func NewClient() (*Client, error) {
	transport, base := newTransport()
	c := &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,
		},
		base:   base,
		secret: os.Getenv(common.SecretEnv),
	}
	// Probe the daemon so connection errors surface at construction,
	// like a failed dial would.
	if _, err := c.GetVersion(); err != nil {
		return nil, fmt.Errorf("error connecting to server: %s", err.Error())
	}
	return c, nil
}

// RPCError is a JSON-RPC error returned by the daemon.
type RPCError struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int64         `json:"id"`
	Method  common.Method `json:"method"`
	Params  any           `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

func (c *Client) invoke(method common.Method, params any) (json.RawMessage, error) {
	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddInt64(&c.nextID, 1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %s", method, err.Error())
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %s", method, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %s", method, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %s", method, err.Error())
	}
	var res rpcResponse
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to read %s: %s", method, err.Error())
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return res.Result, nil
}

func invokeAs[T any](c *Client, method common.Method, params any) (*T, error) {
	raw, err := c.invoke(method, params)
	if err != nil {
		return nil, err
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %s", method, err.Error())
	}
	return &out, nil
}
