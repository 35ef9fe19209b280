package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/n8n-bridge/bridged-go/internal/config"
	"github.com/n8n-bridge/bridged-go/internal/httpapi"
	"github.com/n8n-bridge/bridged-go/internal/logs"
	"github.com/n8n-bridge/bridged-go/internal/server"
)

var (
	configFile string
	dataDir    string
	listen     string
	logLevel   string
	logToFile  bool

	version = "v0.1.0" // Injected by -ldflags during build
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "bridged",
		Short:   "n8n bridge - links an n8n account to the tool broker and executes tools through it",
		Version: version,
		RunE:    runServe,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory path (default: ~/.bridged)")
	rootCmd.PersistentFlags().StringVarP(&listen, "listen", "l", "", "Listen address for the local HTTP API")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logToFile, "log-to-file", true, "Enable logging to file in the data directory")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge daemon",
		RunE:  runServe,
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newConnectCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newDisconnectCommand())
	rootCmd.AddCommand(newConnectionsCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newToolsCommand())
	rootCmd.AddCommand(newSecretsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Logging == nil {
		cfg.Logging = logs.DefaultLogConfig()
	}
	cfg.Logging.Level = logLevel
	cfg.Logging.EnableFile = logToFile
	if cfg.Logging.LogDir == "" {
		cfg.Logging.LogDir = cfg.DataDir
	}

	logger, err := logs.SetupLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bridge, err := server.NewBridge(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer bridge.Close()

	api := httpapi.NewServer(bridge, logger)
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("bridge daemon listening",
			zap.String("listen", cfg.Listen),
			zap.String("backend_url", cfg.BackendURL),
			zap.String("version", version))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return httpServer.Shutdown(shutdownCtx)
}

// loadConfig loads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error

	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if listen != "" {
		cfg.Listen = listen
	}
	return cfg, nil
}
