package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDiscoverCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover <instance-url>",
		Short: "Probe an n8n instance for OAuth endpoint metadata",
		Long: `Probe the instance's well-known locations for OAuth authorization
server metadata. The per-location probe log is printed either way, which
helps diagnose instances that do not expose metadata where expected.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := client.Discover(ctx, args[0])
			if err != nil {
				return fmt.Errorf("discovery failed: %w", err)
			}
			return printJSON(result)
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Command timeout")
	return cmd
}
