package main

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/cliclient"
	"github.com/n8n-bridge/bridged-go/internal/logs"
)

// daemonClient builds an HTTP client pointed at the configured daemon
// address. Commands that need the daemon call this and fail fast when the
// daemon is not reachable.
func daemonClient() (*cliclient.Client, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logs.SetupCommandLogger(false, logLevel, false, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	return cliclient.NewClient(cfg.Listen, logger.Sugar()), logger, nil
}

// printJSON writes a value as indented JSON to stdout.
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
