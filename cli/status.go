package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/echov2/echoshell/api"
	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/root"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running shell",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask a running shell to stop its backend and exit",
	Args:  cobra.NoArgs,
	RunE:  runStop,
}

// bridgeURL returns the base URL of the local bridge from shell.yaml and
// the token to present to it.
func bridgeURL() (string, string, error) {
	r, cfg, err := loadShell()
	if err != nil {
		return "", "", err
	}
	host := cfg.Bridge.BindAddress
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Bridge.Port), bridgeToken(r, cfg), nil
}

// bridgeToken returns the configured api_key, else the token a running
// shell generated for this data directory.
func bridgeToken(r *root.Root, cfg *config.ShellConfig) string {
	if cfg.Bridge.APIKey != "" {
		return cfg.Bridge.APIKey
	}
	data, err := os.ReadFile(r.BridgeTokenPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func bridgeRequest(method, path, apiKey string) (*http.Response, error) {
	base, key, err := bridgeURL()
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		apiKey = key
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, base+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("shell not running at %s", base)
	}
	return resp, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	resp, err := bridgeRequest(http.MethodGet, "/health", "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if outputJSON {
		return printJSON(health)
	}
	printHeader("Shell")
	fmt.Printf("  status:  %s\n", health.Status)
	fmt.Printf("  backend: %s\n", colorState(health.Backend))
	vault := health.Vault
	if !health.VaultReachable {
		vault += " \033[31m(unreachable)\033[0m"
	}
	fmt.Printf("  vault:   %s\n", vault)
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	resp, err := bridgeRequest(http.MethodPost, "/shutdown", "")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("shell rejected the bridge token; is it running with this --home?")
	}
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("shell returned %d", resp.StatusCode)
	}
	printSuccess("Shutdown requested")
	return nil
}

func colorState(s string) string {
	switch s {
	case "ready":
		return "\033[32m" + s + "\033[0m"
	case "failed":
		return "\033[31m" + s + "\033[0m"
	case "starting":
		return "\033[33m" + s + "\033[0m"
	default:
		return s
	}
}
