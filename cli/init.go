package cli

import (
	"fmt"
	"os"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/root"
	"github.com/spf13/cobra"
)

var (
	initForce      bool
	initMode       string
	initBackendDir string
	initVault      string
	initBaoAddr    string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default shell.yaml",
	Long: `Create the data directory and write shell.yaml with defaults.

Examples:
  echoshell init
  echoshell init --mode development --backend-dir ~/src/echov2/backend
  echoshell init --vault openbao --openbao-addr http://127.0.0.1:8200`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing shell.yaml")
	initCmd.Flags().StringVar(&initMode, "mode", config.ModePackaged, "Backend mode: packaged | development")
	initCmd.Flags().StringVar(&initBackendDir, "backend-dir", "", "Backend source directory (development mode)")
	initCmd.Flags().StringVar(&initVault, "vault", config.VaultKeyring, "Secret store: keyring | openbao")
	initCmd.Flags().StringVar(&initBaoAddr, "openbao-addr", "", "OpenBao address when --vault openbao")
}

func runInit(cmd *cobra.Command, args []string) error {
	r, err := root.Open(resolveHome())
	if err != nil {
		return err
	}
	path := resolveConfigPath()
	if path == "" {
		path = r.ConfigPath()
	}
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.DefaultShellConfig()
	cfg.Backend.Mode = initMode
	cfg.Backend.Development.Dir = initBackendDir
	cfg.Vault.Backend = initVault
	if initVault == config.VaultOpenBao {
		cfg.Vault.OpenBao = &config.OpenBaoConfig{
			Address: initBaoAddr,
			Auth:    config.OpenBaoAuthConfig{Method: "token", TokenEnv: "BAO_TOKEN"},
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Write(cfg, path); err != nil {
		return err
	}

	printSuccess(fmt.Sprintf("Wrote %s", path))
	printInfo("echoshell run          Start the shell")
	printInfo("echoshell credential   Manage provider API keys")
	return nil
}
