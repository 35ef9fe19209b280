package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8n-bridge/bridged-go/internal/secret"
)

func newSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage secrets stored in the OS keyring",
		Long:  "Store, retrieve, and delete secrets using the operating system's secure keyring (Keychain on macOS, Secret Service on Linux, WinCred on Windows). The vault encryption key is the usual tenant: store it once and reference it as ${keyring:<name>} in the config.",
	}

	cmd.AddCommand(newSecretsSetCommand())
	cmd.AddCommand(newSecretsGetCommand())
	cmd.AddCommand(newSecretsDeleteCommand())

	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	var fromEnv string

	cmd := &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret in the keyring",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]
			var value string

			switch {
			case len(args) >= 2:
				value = args[1]
			case fromEnv != "":
				value = os.Getenv(fromEnv)
				if value == "" {
					return fmt.Errorf("environment variable %s is not set or empty", fromEnv)
				}
			default:
				fmt.Print("Enter secret value: ")
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil {
					return fmt.Errorf("failed to read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}

			if value == "" {
				return fmt.Errorf("secret value cannot be empty")
			}

			resolver := secret.NewResolver()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: name}
			if err := resolver.Store(ctx, ref, value); err != nil {
				return fmt.Errorf("failed to store secret: %w", err)
			}

			fmt.Printf("Secret '%s' stored.\n", name)
			fmt.Printf("Use in config: ${%s:%s}\n", secret.SecretTypeKeyring, name)
			return nil
		},
	}

	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read value from an environment variable")
	return cmd
}

func newSecretsGetCommand() *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Retrieve a secret from the keyring",
		Long:  "Retrieve a secret from the OS keyring. Output is masked unless --reveal is given.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			resolver := secret.NewResolver()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: args[0]}
			value, err := resolver.Resolve(ctx, ref)
			if err != nil {
				return fmt.Errorf("failed to retrieve secret: %w", err)
			}

			if reveal {
				fmt.Println(value)
			} else {
				fmt.Println(secret.MaskValue(value))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print the secret in plaintext")
	return cmd
}

func newSecretsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			provider := secret.NewKeyringProvider()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			ref := secret.Ref{Type: secret.SecretTypeKeyring, Name: args[0]}
			if err := provider.Delete(ctx, ref); err != nil {
				return fmt.Errorf("failed to delete secret: %w", err)
			}
			fmt.Printf("Secret '%s' deleted.\n", args[0])
			return nil
		},
	}
}
