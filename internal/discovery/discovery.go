// Package discovery probes n8n instances for OAuth authorization server
// metadata via the RFC 8414 well-known locations.
package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/config"
)

// Metadata is the subset of RFC 8414 OAuth Authorization Server Metadata
// the bridge cares about.
type Metadata struct {
	Issuer                string `json:"issuer,omitempty"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
}

// Result captures one discovery run, including the per-path probe log the
// CLI and HTTP API surface to the user.
type Result struct {
	Found    bool      `json:"found"`
	Metadata *Metadata `json:"metadata,omitempty"`
	Probes   []Probe   `json:"probes"`
}

// Probe records the outcome of one well-known location attempt.
type Probe struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// ErrNoMetadata means none of the well-known locations yielded usable
// endpoints.
var ErrNoMetadata = errors.New("no OAuth metadata found at any well-known location")

const probeTimeout = 5 * time.Second

// Discoverer probes candidate metadata locations on an n8n instance.
type Discoverer struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDiscoverer builds a discoverer with the default probe timeout.
func NewDiscoverer(logger *zap.Logger) *Discoverer {
	return &Discoverer{
		httpClient: &http.Client{Timeout: probeTimeout},
		logger:     logger.Named("discovery"),
	}
}

// Discover normalizes the instance URL and tries the well-known locations
// in order, stopping at the first one that returns both an authorization
// and a token endpoint. The probe log is returned even on failure.
func (d *Discoverer) Discover(ctx context.Context, instanceURL string) (*Result, error) {
	baseURL := config.NormalizeInstanceURL(instanceURL)
	result := &Result{}

	candidates := []string{
		baseURL + "/.well-known/oauth-authorization-server",
		baseURL + "/.well-known/oauth-protected-resource",
		baseURL + "/.well-known/openid-configuration",
		baseURL + "/mcp-server/http/.well-known/oauth-authorization-server",
	}

	d.logger.Info("starting endpoint discovery", zap.String("base_url", baseURL))

	for _, url := range candidates {
		probe := Probe{URL: url}
		metadata, status, err := d.fetch(ctx, url)
		probe.Status = status
		if err != nil {
			probe.Error = err.Error()
			result.Probes = append(result.Probes, probe)
			d.logger.Debug("probe failed", zap.String("url", url), zap.Error(err))
			continue
		}
		result.Probes = append(result.Probes, probe)

		if metadata.AuthorizationEndpoint != "" && metadata.TokenEndpoint != "" {
			d.logger.Info("endpoints found", zap.String("url", url))
			result.Found = true
			result.Metadata = metadata
			return result, nil
		}
	}

	d.logger.Warn("no usable OAuth metadata found", zap.String("base_url", baseURL))
	return result, ErrNoMetadata
}

func (d *Discoverer) fetch(ctx context.Context, url string) (*Metadata, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("metadata endpoint returned %d", resp.StatusCode)
	}

	var metadata Metadata
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to parse metadata: %w", err)
	}

	return &metadata, resp.StatusCode, nil
}
