package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/echov2/echoshell/api"
	"github.com/echov2/echoshell/internal/credentials"
	"github.com/spf13/cobra"
)

var (
	credEndpoint string
	credFrom     string
	credStdin    bool
	credReveal   bool
)

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage provider API keys in the OS secret store",
	Long: `Store, read and remove per-provider API keys. Keys live in the operating
system's secret store (or OpenBao when vault.backend is "openbao"), never in
shell.yaml.

Providers: ` + strings.Join(credentials.Catalog(), ", ") + `

Examples:
  echoshell credential store openai sk-xxx
  echoshell credential store ollama --endpoint http://localhost:11434
  echo sk-xxx | echoshell credential store anthropic --stdin
  echoshell credential get openai
  echoshell credential list
  echoshell credential delete google
  echoshell credential migrate --from ~/.echov2/.env`,
}

var credStoreCmd = &cobra.Command{
	Use:   "store <provider> [api-key]",
	Short: "Store a provider's credential, replacing any previous one",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runCredStore,
}

var credGetCmd = &cobra.Command{
	Use:   "get <provider>",
	Short: "Show a provider's credential (masked)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredGet,
}

var credDeleteCmd = &cobra.Command{
	Use:   "delete <provider>",
	Short: "Delete a provider's credential",
	Args:  cobra.ExactArgs(1),
	RunE:  runCredDelete,
}

var credListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers with a stored credential",
	Args:  cobra.NoArgs,
	RunE:  runCredList,
}

var credMigrateCmd = &cobra.Command{
	Use:   "migrate [provider] [api-key]",
	Short: "Move credentials out of legacy plaintext storage",
	Long: `Without arguments, import every known provider from a legacy KEY=VALUE
file (default: credentials.env in the data directory) and remove each entry
from that file once it is stored securely. With a provider and key, migrate
that single credential.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runCredMigrate,
}

func init() {
	credStoreCmd.Flags().StringVar(&credEndpoint, "endpoint", "", "Custom API endpoint for this provider")
	credStoreCmd.Flags().BoolVar(&credStdin, "stdin", false, "Read the API key from stdin")
	credGetCmd.Flags().BoolVar(&credReveal, "reveal", false, "Print the full API key")
	credMigrateCmd.Flags().StringVar(&credFrom, "from", "", "Legacy credential file to import")
	credMigrateCmd.Flags().StringVar(&credEndpoint, "endpoint", "", "Custom API endpoint (single-provider form)")

	credentialCmd.AddCommand(credStoreCmd, credGetCmd, credDeleteCmd, credListCmd, credMigrateCmd)
}

// withVault opens the configured vault for one command.
func withVault(fn func(ctx context.Context, v *credentials.Vault) error) error {
	_, cfg, err := loadShell()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	vault, closeVault, err := openVault(cfg, logger)
	if err != nil {
		return err
	}
	defer closeVault()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return fn(ctx, vault)
}

func endpointFlag() *string {
	if credEndpoint == "" {
		return nil
	}
	return &credEndpoint
}

func readSecretArg(args []string, in io.Reader) (string, error) {
	if credStdin {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("reading api key from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if len(args) > 1 {
		return args[1], nil
	}
	return "", nil
}

func runCredStore(cmd *cobra.Command, args []string) error {
	provider := args[0]
	secret, err := readSecretArg(args, cmd.InOrStdin())
	if err != nil {
		return err
	}
	if secret == "" && credEndpoint == "" {
		return fmt.Errorf("an api key or --endpoint is required")
	}
	return withVault(func(ctx context.Context, v *credentials.Vault) error {
		if err := v.Store(ctx, provider, secret, endpointFlag()); err != nil {
			return err
		}
		printSuccess(fmt.Sprintf("Stored %s credential (%s)", provider, v.Backend()))
		return nil
	})
}

func runCredGet(cmd *cobra.Command, args []string) error {
	provider := args[0]
	return withVault(func(ctx context.Context, v *credentials.Vault) error {
		rec, err := v.Get(ctx, provider)
		if err != nil {
			return err
		}
		if outputJSON {
			if rec == nil {
				return printJSON(nil)
			}
			key := rec.APIKey
			if !credReveal {
				key = maskSecret(key)
			}
			return printJSON(api.CredentialResponse{Provider: rec.Provider, APIKey: key, CustomEndpoint: rec.CustomEndpoint})
		}
		if rec == nil {
			fmt.Printf("No credential stored for %s.\n", provider)
			return nil
		}
		key := rec.APIKey
		if !credReveal {
			key = maskSecret(key)
		}
		fmt.Printf("  %s = %s\n", provider, key)
		if rec.CustomEndpoint != nil {
			fmt.Printf("  endpoint = %s\n", *rec.CustomEndpoint)
		}
		return nil
	})
}

func runCredDelete(cmd *cobra.Command, args []string) error {
	provider := args[0]
	return withVault(func(ctx context.Context, v *credentials.Vault) error {
		if err := v.Delete(ctx, provider); err != nil {
			return err
		}
		printSuccess(fmt.Sprintf("Deleted %s credential", provider))
		return nil
	})
}

func runCredList(cmd *cobra.Command, args []string) error {
	return withVault(func(ctx context.Context, v *credentials.Vault) error {
		providers, err := v.ListStoredProviders(ctx)
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(api.ListProvidersResponse{Providers: providers})
		}
		if len(providers) == 0 {
			fmt.Println("No credentials stored.")
			return nil
		}
		printHeader(fmt.Sprintf("Credentials (%s)", v.Backend()))
		for _, p := range providers {
			fmt.Printf("  %s\n", p)
		}
		return nil
	})
}

func runCredMigrate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		provider := args[0]
		secret, err := readSecretArg(args, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return withVault(func(ctx context.Context, v *credentials.Vault) error {
			if err := v.Migrate(ctx, provider, secret, endpointFlag()); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Migrated %s credential (%s)", provider, v.Backend()))
			return nil
		})
	}

	from := credFrom
	if from == "" {
		r, _, err := loadShell()
		if err != nil {
			return err
		}
		from = r.LegacyEnvPath()
	}
	return withVault(func(ctx context.Context, v *credentials.Vault) error {
		migrated, err := v.MigrateLegacy(ctx, credentials.OpenLegacyFile(from))
		for _, p := range migrated {
			printSuccess(fmt.Sprintf("Migrated %s", p))
		}
		if err != nil {
			return err
		}
		if len(migrated) == 0 {
			printInfo(fmt.Sprintf("Nothing to migrate in %s", from))
		}
		return nil
	})
}

// maskSecret keeps the first and last four characters of long keys.
func maskSecret(v string) string {
	if len(v) > 8 {
		return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
	}
	return strings.Repeat("*", len(v))
}
