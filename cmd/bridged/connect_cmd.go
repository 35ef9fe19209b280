package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8n-bridge/bridged-go/internal/connect"
)

func newConnectCommand() *cobra.Command {
	var (
		apiKey   string
		clientID string
		wait     bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "connect <instance-url>",
		Short: "Link an n8n instance to the broker",
		Long: `Start the account-linking handshake for an n8n instance. The daemon
requests an authorization URL from the broker and opens it in the system
browser; the link completes when the broker confirms the connection.

With --api-key the browser flow is skipped and the connection is stored
directly with the given credential.

Examples:
  bridged connect https://n8n.example.com
  bridged connect https://n8n.example.com --wait
  bridged connect https://n8n.example.com --api-key=<key> --client-id=<id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if apiKey != "" {
				info, err := client.SaveConnection(ctx, args[0], clientID, apiKey)
				if err != nil {
					return fmt.Errorf("failed to save connection: %w", err)
				}
				fmt.Printf("Connection saved and activated: %s (%s)\n", info.BaseURL, info.ID)
				return nil
			}

			sessionID, err := client.StartConnect(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to start handshake: %w", err)
			}
			fmt.Printf("Handshake started (session %s). Complete the authorization in your browser.\n", sessionID)

			if !wait {
				fmt.Println("Run 'bridged status' to follow progress.")
				return nil
			}
			return waitForSettle(ctx, client)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "Skip the browser flow and store this n8n API key directly")
	cmd.Flags().StringVar(&clientID, "client-id", "", "Client id to store with a manual connection")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Block until the handshake settles")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Minute, "Overall command timeout")

	return cmd
}

// waitForSettle polls handshake status until a terminal state is reached.
func waitForSettle(ctx context.Context, client statusClient) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for handshake: %w", ctx.Err())
		case <-ticker.C:
			status, err := client.ConnectStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch handshake status: %w", err)
			}
			switch status.State {
			case connect.StateConnected.String():
				fmt.Println("Connected.")
				return nil
			case connect.StateFailed.String():
				return fmt.Errorf("handshake failed (%s): %s", status.Failure, status.Detail)
			case connect.StateTimedOut.String():
				return fmt.Errorf("handshake timed out")
			case connect.StateCancelled.String():
				return fmt.Errorf("handshake was cancelled")
			}
		}
	}
}

// statusClient is the slice of the daemon client waitForSettle needs.
type statusClient interface {
	ConnectStatus(ctx context.Context) (*connect.Status, error)
}

func newCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the in-flight linking handshake",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			status, err := client.CancelConnect(context.Background())
			if err != nil {
				return fmt.Errorf("failed to cancel handshake: %w", err)
			}
			fmt.Printf("Handshake %s cancelled.\n", status.SessionID)
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show handshake and connection status",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := context.Background()
			status, err := client.ConnectStatus(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch handshake status: %w", err)
			}

			connections, err := client.Connections(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch connections: %w", err)
			}

			return printJSON(map[string]interface{}{
				"handshake":   status,
				"connections": connections,
			})
		},
	}
}

func newDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Remove the active connection",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := context.Background()
			connections, err := client.Connections(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch connections: %w", err)
			}

			for _, conn := range connections {
				if conn.IsActive {
					if err := client.DeleteConnection(ctx, conn.ID); err != nil {
						return fmt.Errorf("failed to delete connection: %w", err)
					}
					fmt.Printf("Disconnected from %s.\n", conn.BaseURL)
					return nil
				}
			}
			return fmt.Errorf("no active connection")
		},
	}
}

func newConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "Connection management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored connections",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			connections, err := client.Connections(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch connections: %w", err)
			}
			return printJSON(connections)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <connection-id>",
		Short: "Delete a stored connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if err := client.DeleteConnection(context.Background(), args[0]); err != nil {
				return fmt.Errorf("failed to delete connection: %w", err)
			}
			fmt.Println("Connection deleted.")
			return nil
		},
	})

	return cmd
}
