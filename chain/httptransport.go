package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Austin-Williams/cid-accumulator-client/internal/accerr"
	"github.com/Austin-Williams/cid-accumulator-client/internal/logging"
)

// HTTPTransport is the plain JSON-RPC-over-HTTP Transport: the common
// case for a node endpoint that only serves request/response, not a
// push feed. Subscribe always fails here — per spec.md §4.7, that
// failure is exactly what tells the reconciliation pipeline to fall
// back to polling, so it is a normal, expected outcome rather than a
// shortfall of this implementation.
type HTTPTransport struct {
	URL  string
	HTTP *http.Client
}

// NewHTTPTransport returns an HTTPTransport using http.DefaultClient if
// client is nil.
func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{URL: url, HTTP: client}
}

type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type jsonrpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Call issues a single JSON-RPC request over HTTP and returns its
// result field. Each call is tagged with a fresh correlation ID purely
// for log correlation across the retry/throttle layers above it.
func (t *HTTPTransport) Call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	const op = "chain.HTTPTransport.Call"
	correlationID := uuid.NewString()

	body, err := json.Marshal(jsonrpcRequest{JSONRPC: "2.0", ID: correlationID, Method: method, Params: params})
	if err != nil {
		return nil, accerr.New(accerr.Invariant, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(body))
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	logging.Sugar.Debugw("chain: dispatching JSON-RPC call", "method", method, "correlation_id", correlationID)

	resp, err := t.HTTP.Do(req)
	if err != nil {
		return nil, accerr.New(accerr.Transport, op, err)
	}
	defer resp.Body.Close()

	var rpcResp jsonrpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, accerr.New(accerr.Invariant, op, fmt.Errorf("decode JSON-RPC response: %w", err))
	}
	if rpcResp.Error != nil {
		return nil, accerr.Newf(accerr.Transport, op, "%s: %d %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

// Subscribe always returns an error: a plain request/response HTTP
// endpoint has no push channel. Callers treat this as "fall back to
// polling."
func (t *HTTPTransport) Subscribe(ctx context.Context, method string, params ...any) (Subscription, error) {
	return nil, accerr.Newf(accerr.ConfigError, "chain.HTTPTransport.Subscribe", "HTTP transport does not support push subscriptions")
}
