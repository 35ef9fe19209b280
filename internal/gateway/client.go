package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/observability"
	"github.com/n8n-bridge/bridged-go/internal/storage"
)

const defaultRequestTimeout = 30 * time.Second

// maxErrorBodySize bounds how much of an error body is kept for messages.
const maxErrorBodySize = 4 * 1024

// ConnectionStore resolves the user's connection records.
type ConnectionStore interface {
	FetchActive(userID string) (*storage.ConnectionInfo, error)
	ActiveCredentialRecord(userID string) (*storage.ConnectionRecord, error)
}

// CredentialDecrypter recovers the bearer secret from an encrypted record.
type CredentialDecrypter interface {
	Decrypt(record string) string
}

// Client talks to the broker backend on behalf of one bridge instance.
type Client struct {
	backendURL string
	httpClient *http.Client
	store      ConnectionStore
	vault      CredentialDecrypter
	metrics    *observability.MetricsManager
	logger     *zap.Logger
}

// NewClient creates a broker client. metrics may be nil in tests.
func NewClient(backendURL string, store ConnectionStore, vault CredentialDecrypter, metrics *observability.MetricsManager, logger *zap.Logger) *Client {
	return &Client{
		backendURL: strings.TrimRight(backendURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		store:      store,
		vault:      vault,
		metrics:    metrics,
		logger:     logger.Named("gateway"),
	}
}

// InitAuthorization asks the broker to start a delegated-authorization flow
// for the given instance and returns the authorization URL to open.
func (c *Client) InitAuthorization(ctx context.Context, userID, baseURL string) (string, error) {
	payload := map[string]string{
		"base_url": baseURL,
		"user_id":  userID,
	}

	body, err := c.postJSON(ctx, "/api/auth/init", payload, "")
	if err != nil {
		return "", err
	}

	var resp struct {
		AuthorizationURL string `json:"authorization_url"`
		// Older broker builds used a camelCase field.
		AuthURL string `json:"authUrl"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Error != "" {
		return "", fmt.Errorf("broker rejected authorization init: %s", resp.Error)
	}

	authURL := resp.AuthorizationURL
	if authURL == "" {
		authURL = resp.AuthURL
	}
	if authURL == "" {
		return "", fmt.Errorf("%w: missing authorization_url", ErrMalformedResponse)
	}

	c.logger.Info("Authorization flow initiated",
		zap.String("user_id", userID),
		zap.String("base_url", baseURL))

	return authURL, nil
}

// ListTools fetches the remote tool catalog for the user's active
// connection. An empty catalog is a valid result; transport and protocol
// failures surface as errors so callers can tell "no tools" from "could not
// ask".
func (c *Client) ListTools(ctx context.Context, userID string) ([]ToolDescriptor, error) {
	record, err := c.store.ActiveCredentialRecord(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNoConnection) || errors.Is(err, storage.ErrConnectionInactive) {
			return nil, fmt.Errorf("%w: %v", ErrNoActiveConnection, err)
		}
		return nil, err
	}

	endpoint := c.backendURL + "/api/tools?user_id=" + url.QueryEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req, record)

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Tools []ToolDescriptor `json:"tools"`
		Error string           `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("broker failed to list tools: %s", resp.Error)
	}

	c.logger.Debug("Listed remote tools",
		zap.String("user_id", userID),
		zap.Int("tool_count", len(resp.Tools)))

	return resp.Tools, nil
}

// ExecuteTool runs a remote tool and always returns a StructuredResult,
// never an error. rawArgs is the caller-supplied argument text; it must be a
// JSON object (empty means no arguments).
func (c *Client) ExecuteTool(ctx context.Context, userID, toolName, rawArgs string) *StructuredResult {
	started := time.Now()
	result := c.executeTool(ctx, userID, toolName, rawArgs)

	if c.metrics != nil {
		c.metrics.RecordToolExecution(result.Status, time.Since(started))
	}
	if result.Status == StatusError {
		c.logger.Warn("Tool execution failed",
			zap.String("tool", toolName),
			zap.String("error_kind", result.ErrorKind))
	} else {
		c.logger.Info("Tool executed",
			zap.String("tool", toolName),
			zap.Duration("elapsed", time.Since(started)))
	}

	return result
}

func (c *Client) executeTool(ctx context.Context, userID, toolName, rawArgs string) *StructuredResult {
	args, err := parseArguments(rawArgs)
	if err != nil {
		return errorResult(toolName, KindMalformedArguments, err.Error())
	}

	record, err := c.store.ActiveCredentialRecord(userID)
	if err != nil {
		if errors.Is(err, storage.ErrNoConnection) || errors.Is(err, storage.ErrConnectionInactive) {
			return errorResult(toolName, KindNoActiveConnection, err.Error())
		}
		return errorResult(toolName, KindNoActiveConnection, fmt.Sprintf("failed to resolve active connection: %v", err))
	}

	payload := map[string]interface{}{
		"user_id":       userID,
		"connection_id": record.ID,
		"tool_name":     toolName,
		"args":          args,
	}

	body, err := c.postJSON(ctx, "/api/execute", payload, c.vault.Decrypt(record.EncryptedCredential))
	if err != nil {
		return errorResult(toolName, KindNetworkError, err.Error())
	}

	return normalizeExecuteResponse(toolName, body)
}

// parseArguments decodes the caller-supplied argument text into a JSON
// object. Empty input means no arguments.
func parseArguments(rawArgs string) (map[string]interface{}, error) {
	trimmed := strings.TrimSpace(rawArgs)
	if trimmed == "" {
		return map[string]interface{}{}, nil
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a valid JSON object: %v", err)
	}
	return args, nil
}

// authorize attaches the decrypted bearer secret. The vault is only ever
// consulted here, inside the execution boundary.
func (c *Client) authorize(req *http.Request, record *storage.ConnectionRecord) {
	if record.EncryptedCredential == "" {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.vault.Decrypt(record.EncryptedCredential))
}

// postJSON issues a POST with a JSON body and returns the response body.
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, bearer string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.backendURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	return c.do(req)
}

// do executes the request, converting non-2xx responses into *HTTPError.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("broker request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read broker response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody := string(body)
		if len(errBody) > maxErrorBodySize {
			errBody = errBody[:maxErrorBodySize]
		}
		// Prefer the broker's own error message when the body carries one.
		var remote struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &remote) == nil && remote.Error != "" {
			errBody = remote.Error
		}
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       errBody,
			Method:     req.Method,
			URL:        req.URL.String(),
		}
	}

	return body, nil
}
