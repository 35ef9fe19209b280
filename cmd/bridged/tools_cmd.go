package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Tool catalog commands",
		Long:  "List, search, and execute the broker's tools for the linked account",
	}

	var timeout time.Duration
	cmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "Command timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the broker's tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			tools, err := client.ListTools(ctx)
			if err != nil {
				return fmt.Errorf("failed to list tools: %w", err)
			}
			if len(tools) == 0 {
				fmt.Println("No tools available.")
				return nil
			}
			return printJSON(tools)
		},
	})

	var searchLimit int
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local tool index",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			results, err := client.SearchTools(ctx, args[0], searchLimit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if len(results) == 0 {
				fmt.Println("No matching tools.")
				return nil
			}
			return printJSON(results)
		},
	}
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
	cmd.AddCommand(searchCmd)

	var rawArgs string
	callCmd := &cobra.Command{
		Use:   "call <tool-name>",
		Short: "Execute a tool through the broker",
		Long: `Execute a tool and print the result envelope. Failures are reported
inside the envelope, so the command exits zero whenever the daemon answered.

Example:
  bridged tools call search_workflows --args='{"q":"mail"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			client, logger, err := daemonClient()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			result, err := client.ExecuteTool(ctx, args[0], json.RawMessage(rawArgs))
			if err != nil {
				return fmt.Errorf("failed to execute tool: %w", err)
			}
			return printJSON(result)
		},
	}
	callCmd.Flags().StringVarP(&rawArgs, "args", "a", "", "Tool arguments as a JSON object")
	cmd.AddCommand(callCmd)

	return cmd
}
