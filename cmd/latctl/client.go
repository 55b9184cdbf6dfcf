package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"latchain/core/types"
	"latchain/crypto"
	"latchain/rpc"
)

const requestTimeout = 30 * time.Second

// RPCError is a JSON-RPC error returned by the node.
type RPCError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

func newClient(endpoint, token string) *client {
	return &client{
		endpoint: strings.TrimSpace(endpoint),
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: requestTimeout},
	}
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	} `json:"error"`
}

func (c *client) call(ctx context.Context, method string, requireAuth bool, params ...interface{}) (json.RawMessage, error) {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		encoded, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		rawParams = append(rawParams, encoded)
	}
	payload, err := json.Marshal(rpc.RPCRequest{JSONRPC: "2.0", Method: method, Params: rawParams, ID: 1})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if c.token == "" {
			return nil, fmt.Errorf("privileged RPC call requires LAT_RPC_TOKEN or --token")
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return nil, &RPCError{Code: out.Error.Code, Message: out.Error.Message, Data: out.Error.Data}
	}
	return out.Result, nil
}

// nextNonce asks the node for the nonce the caller's next instruction needs.
func (c *client) nextNonce(ctx context.Context, addr crypto.Address) (uint64, error) {
	raw, err := c.call(ctx, "lat_getNonce", false, addr.String())
	if err != nil {
		return 0, err
	}
	var result rpc.NonceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, err
	}
	return result.Next, nil
}

// submit signs ix with key using the caller's next nonce and sends it.
func (c *client) submit(ctx context.Context, method string, requireAuth bool, key *crypto.PrivateKey, ix *types.Instruction) (*types.Receipt, error) {
	nonce, err := c.nextNonce(ctx, key.PubKey().Address())
	if err != nil {
		return nil, fmt.Errorf("fetch nonce: %w", err)
	}
	ix.Nonce = nonce
	if err := ix.Sign(key); err != nil {
		return nil, err
	}
	raw, err := c.call(ctx, method, requireAuth, ix)
	if err != nil {
		return nil, err
	}
	var receipt types.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &receipt, nil
}
