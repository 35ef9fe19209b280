// Package server wires the bridge's components together: configuration,
// credential vault, connection repository, broker gateway, handshake
// orchestrator, and the local tool index.
package server

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/config"
	"github.com/n8n-bridge/bridged-go/internal/connect"
	"github.com/n8n-bridge/bridged-go/internal/discovery"
	"github.com/n8n-bridge/bridged-go/internal/gateway"
	"github.com/n8n-bridge/bridged-go/internal/index"
	"github.com/n8n-bridge/bridged-go/internal/observability"
	"github.com/n8n-bridge/bridged-go/internal/secret"
	"github.com/n8n-bridge/bridged-go/internal/storage"
	"github.com/n8n-bridge/bridged-go/internal/vault"
)

// Bridge is the assembled service. The HTTP API and the CLI both drive it.
type Bridge struct {
	cfg          *config.Config
	logger       *zap.Logger
	store        *storage.BoltDB
	vault        *vault.Vault
	gateway      *gateway.Client
	orchestrator *connect.Orchestrator
	index        *index.ToolIndex
	discoverer   *discovery.Discoverer
	metrics      *observability.MetricsManager
	startTime    time.Time
}

// NewBridge assembles a bridge from validated configuration. The encryption
// key may be a secret reference, resolved before the vault is built.
func NewBridge(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Bridge, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	resolver := secret.NewResolver()
	key, err := resolver.ResolveString(ctx, cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve encryption key: %w", err)
	}

	v, err := vault.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault: %w", err)
	}

	store, err := storage.NewBoltDB(cfg.DataDir, logger.Sugar())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection store: %w", err)
	}

	toolIndex, err := index.NewToolIndex(cfg.DataDir, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open tool index: %w", err)
	}

	origin, err := cfg.ResolveBackendOrigin()
	if err != nil {
		store.Close()
		toolIndex.Close()
		return nil, err
	}

	metrics := observability.NewMetricsManager(logger.Sugar())
	gw := gateway.NewClient(cfg.BackendURL, store, v, metrics, logger)
	orchestrator := connect.NewOrchestrator(gw, store, cfg.UserID, origin, connect.Options{
		PollInterval: cfg.PollInterval.Duration(),
		Deadline:     cfg.HandshakeTimeout.Duration(),
	}, metrics, logger)

	return &Bridge{
		cfg:          cfg,
		logger:       logger.Named("bridge"),
		store:        store,
		vault:        v,
		gateway:      gw,
		orchestrator: orchestrator,
		index:        toolIndex,
		discoverer:   discovery.NewDiscoverer(logger),
		metrics:      metrics,
		startTime:    time.Now(),
	}, nil
}

// Close releases the bridge's resources. The orchestrator is disposed first
// so no poll goroutine touches the store after it closes.
func (b *Bridge) Close() error {
	b.orchestrator.Dispose()
	if err := b.index.Close(); err != nil {
		b.logger.Warn("failed to close tool index", zap.Error(err))
	}
	return b.store.Close()
}

// Config returns the bridge configuration.
func (b *Bridge) Config() *config.Config { return b.cfg }

// Metrics returns the metrics manager for the HTTP surface.
func (b *Bridge) Metrics() *observability.MetricsManager { return b.metrics }

// Uptime reports how long the bridge has been running.
func (b *Bridge) Uptime() time.Duration { return time.Since(b.startTime) }

// StartHandshake normalizes the instance URL and begins a linking session.
func (b *Bridge) StartHandshake(ctx context.Context, instanceURL string) (string, error) {
	return b.orchestrator.Start(ctx, config.NormalizeInstanceURL(instanceURL))
}

// CancelHandshake cancels the in-flight linking session.
func (b *Bridge) CancelHandshake() error {
	return b.orchestrator.Cancel()
}

// HandshakeStatus reports the current linking session state.
func (b *Bridge) HandshakeStatus() connect.Status {
	return b.orchestrator.Status()
}

// DeliverCallback feeds an authorization completion message into the
// orchestrator. Origin filtering happens inside.
func (b *Bridge) DeliverCallback(origin string, msg connect.CompletionMessage) {
	b.orchestrator.DeliverMessage(origin, msg)
}

// Connections lists the user's stored connections, metadata only.
func (b *Bridge) Connections() ([]*storage.ConnectionInfo, error) {
	return b.store.FetchAll(b.cfg.UserID)
}

// ActiveConnection returns the user's active connection metadata.
func (b *Bridge) ActiveConnection() (*storage.ConnectionInfo, error) {
	return b.store.FetchActive(b.cfg.UserID)
}

// SaveConnection persists a manually-entered connection. The API key is
// encrypted before it reaches the store and never leaves this method in
// plaintext.
func (b *Bridge) SaveConnection(instanceURL, clientID, apiKey string) (*storage.ConnectionInfo, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key cannot be empty")
	}
	encrypted, err := b.vault.Encrypt(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credential: %w", err)
	}

	return b.store.Upsert(b.cfg.UserID, &storage.ConnectionRecord{
		BaseURL:             config.NormalizeInstanceURL(instanceURL),
		ClientID:            clientID,
		EncryptedCredential: encrypted,
	})
}

// DeleteConnection removes a stored connection.
func (b *Bridge) DeleteConnection(connectionID string) error {
	return b.store.Delete(b.cfg.UserID, connectionID)
}

// ListTools fetches the broker's tool catalog and refreshes the local
// search index with it. Index failures do not fail the listing.
func (b *Bridge) ListTools(ctx context.Context) ([]gateway.ToolDescriptor, error) {
	tools, err := b.gateway.ListTools(ctx, b.cfg.UserID)
	if err != nil {
		return nil, err
	}
	if err := b.index.ReplaceCatalog(tools); err != nil {
		b.logger.Warn("failed to refresh tool index", zap.Error(err))
	}
	return tools, nil
}

// SearchTools queries the local tool index.
func (b *Bridge) SearchTools(query string, limit int) ([]index.SearchResult, error) {
	return b.index.Search(query, limit)
}

// ExecuteTool runs a tool through the broker. The result envelope carries
// failures; this never returns an error.
func (b *Bridge) ExecuteTool(ctx context.Context, toolName, rawArgs string) *gateway.StructuredResult {
	return b.gateway.ExecuteTool(ctx, b.cfg.UserID, toolName, rawArgs)
}

// Discover probes an n8n instance for OAuth endpoint metadata.
func (b *Bridge) Discover(ctx context.Context, instanceURL string) (*discovery.Result, error) {
	return b.discoverer.Discover(ctx, instanceURL)
}
