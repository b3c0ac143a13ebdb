// Package client implements an A2A protocol client: unary task calls over
// JSON-RPC POST and streaming subscriptions over the SSE response of
// tasks/sendSubscribe.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenticdao/a2aserver/shared"
	a2aSchema "github.com/agenticdao/a2aserver/shared/a2a/schema"
)

// Client provides methods to interact with an A2A server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// Headers is merged into every outgoing request, e.g. the signed-nonce
	// auth headers.
	Headers map[string]string
	logger  *zap.Logger
}

// Option configures the client.
type Option func(*Client)

// WithLogger sets a custom logger. A no-op logger is used by default.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger.Named("a2a-client").With(zap.String("baseURL", c.baseURL))
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// New creates a new A2A client instance.
func New(baseURL string, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	client := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		Headers:    make(map[string]string),
		logger:     zap.NewNop(),
	}
	for _, option := range options {
		option(client)
	}
	return client, nil
}

// FetchAgentCard retrieves the agent card from the well-known endpoint.
func (c *Client) FetchAgentCard(ctx context.Context) (*a2aSchema.AgentCard, error) {
	cardURL := strings.TrimSuffix(c.baseURL, "/") + "/.well-known/agent.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cardURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent card request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent card request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent card request returned status %d", resp.StatusCode)
	}
	var card a2aSchema.AgentCard
	if err := json.NewDecoder(resp.Body).Decode(&card); err != nil {
		return nil, fmt.Errorf("failed to decode agent card: %w", err)
	}
	return &card, nil
}

// SendTask performs a synchronous tasks/send call.
func (c *Client) SendTask(ctx context.Context, params *a2aSchema.TaskSendParams) (*a2aSchema.Task, error) {
	var task a2aSchema.Task
	if err := c.call(ctx, "tasks/send", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask performs a tasks/get call.
func (c *Client) GetTask(ctx context.Context, params *a2aSchema.TaskQueryParams) (*a2aSchema.Task, error) {
	var task a2aSchema.Task
	if err := c.call(ctx, "tasks/get", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask performs a tasks/cancel call.
func (c *Client) CancelTask(ctx context.Context, params *a2aSchema.TaskIdParams) (*a2aSchema.Task, error) {
	var task a2aSchema.Task
	if err := c.call(ctx, "tasks/cancel", params, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// call performs one JSON-RPC POST round trip and unmarshals the result.
// A JSON-RPC error body is returned as *shared.JSONRPCError.
func (c *Client) call(ctx context.Context, method string, params interface{}, target interface{}) error {
	logger := c.logger.With(zap.String("method", method))

	resp, err := c.post(ctx, method, params, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var rpcResponse struct {
		JSONRPC string               `json:"jsonrpc"`
		ID      *shared.RequestID    `json:"id"`
		Result  *json.RawMessage     `json:"result"`
		Error   *shared.JSONRPCError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResponse); err != nil {
		// Surface the HTTP status when the body was not a JSON-RPC
		// envelope (403 auth rejections are already handled by post).
		return fmt.Errorf("failed to decode JSON-RPC response (HTTP %d) for %s: %w",
			resp.StatusCode, method, err)
	}
	if rpcResponse.Error != nil {
		logger.Debug("Received JSON-RPC error",
			zap.Int("code", rpcResponse.Error.Code), zap.String("message", rpcResponse.Error.Message))
		return rpcResponse.Error
	}
	if target != nil {
		if rpcResponse.Result == nil {
			return fmt.Errorf("JSON-RPC response missing expected result for %s", method)
		}
		if err := json.Unmarshal(*rpcResponse.Result, target); err != nil {
			return fmt.Errorf("failed to unmarshal result for %s: %w", method, err)
		}
	}
	return nil
}

func (c *Client) post(ctx context.Context, method string, params interface{}, accept string) (*http.Response, error) {
	var paramsRaw *json.RawMessage
	if params != nil {
		paramsBytes, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params for %s: %w", method, err)
		}
		raw := json.RawMessage(paramsBytes)
		paramsRaw = &raw
	}

	rpcRequest := shared.JSONRPCRequest{
		JSONRPC: shared.JSONRPCVersion,
		ID:      shared.NewRequestID(uuid.NewString()),
		Method:  method,
		Params:  paramsRaw,
	}
	reqBytes, err := json.Marshal(rpcRequest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON-RPC request for %s: %w", method, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request for %s: %w", method, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", accept)
	for key, value := range c.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request for %s failed: %w", method, err)
	}
	if resp.StatusCode == http.StatusForbidden {
		// Read the JSON-RPC auth error out of the 403 body if present.
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		var errResp shared.JSONRPCErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != nil {
			return nil, errResp.Error
		}
		return nil, fmt.Errorf("HTTP 403 for %s: %s", method, string(body))
	}
	return resp, nil
}
