// Package cliclient provides HTTP access to a running bridge daemon for
// CLI commands.
package cliclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/connect"
	"github.com/n8n-bridge/bridged-go/internal/discovery"
	"github.com/n8n-bridge/bridged-go/internal/gateway"
	"github.com/n8n-bridge/bridged-go/internal/index"
	"github.com/n8n-bridge/bridged-go/internal/storage"
)

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a CLI HTTP client for the given daemon address.
func NewClient(listen string, logger *zap.SugaredLogger) *Client {
	baseURL := listen
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

// Ping reports whether the daemon is reachable.
func (c *Client) Ping(ctx context.Context) bool {
	var out map[string]interface{}
	return c.get(ctx, "/healthz", &out) == nil
}

// StartConnect begins a handshake and returns the session id.
func (c *Client) StartConnect(ctx context.Context, baseURL string) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.post(ctx, "/api/connect", map[string]string{"base_url": baseURL}, &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// CancelConnect cancels the in-flight handshake.
func (c *Client) CancelConnect(ctx context.Context) (*connect.Status, error) {
	var out connect.Status
	if err := c.post(ctx, "/api/connect/cancel", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConnectStatus fetches the current handshake state.
func (c *Client) ConnectStatus(ctx context.Context) (*connect.Status, error) {
	var out connect.Status
	if err := c.get(ctx, "/api/connect/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Connections lists stored connections.
func (c *Client) Connections(ctx context.Context) ([]*storage.ConnectionInfo, error) {
	var out struct {
		Connections []*storage.ConnectionInfo `json:"connections"`
	}
	if err := c.get(ctx, "/api/connections", &out); err != nil {
		return nil, err
	}
	return out.Connections, nil
}

// SaveConnection stores a manually-entered connection.
func (c *Client) SaveConnection(ctx context.Context, baseURL, clientID, apiKey string) (*storage.ConnectionInfo, error) {
	var out storage.ConnectionInfo
	payload := map[string]string{
		"base_url":  baseURL,
		"client_id": clientID,
		"api_key":   apiKey,
	}
	if err := c.post(ctx, "/api/connections", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteConnection removes a stored connection.
func (c *Client) DeleteConnection(ctx context.Context, connectionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/connections/"+url.PathEscape(connectionID), nil, nil)
}

// ListTools fetches the broker's tool catalog through the daemon.
func (c *Client) ListTools(ctx context.Context) ([]gateway.ToolDescriptor, error) {
	var out struct {
		Tools []gateway.ToolDescriptor `json:"tools"`
	}
	if err := c.get(ctx, "/api/tools", &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// SearchTools queries the daemon's local tool index.
func (c *Client) SearchTools(ctx context.Context, query string, limit int) ([]index.SearchResult, error) {
	var out struct {
		Results []index.SearchResult `json:"results"`
	}
	path := "/api/tools/search?q=" + url.QueryEscape(query) + "&limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ExecuteTool runs a tool and returns the result envelope.
func (c *Client) ExecuteTool(ctx context.Context, toolName string, args json.RawMessage) (*gateway.StructuredResult, error) {
	var out gateway.StructuredResult
	payload := map[string]interface{}{"tool": toolName}
	if len(args) > 0 {
		payload["args"] = args
	}
	if err := c.post(ctx, "/api/execute", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Discover probes an n8n instance through the daemon.
func (c *Client) Discover(ctx context.Context, baseURL string) (*discovery.Result, error) {
	var out discovery.Result
	if err := c.post(ctx, "/api/discovery", map[string]string{"base_url": baseURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, payload, out)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(data))
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
