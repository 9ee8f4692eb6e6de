// Package cli implements the echoshell command-line interface.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/root"
	"github.com/spf13/cobra"
)

var (
	// rootFlags
	homeDir    string
	configPath string
	outputJSON bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "echoshell",
	Short: "Desktop shell host for EchoV2",
	Long: `echoshell hosts the EchoV2 desktop app: it supervises the local backend
service and keeps provider API keys in the operating system's secret store.

Get started:
  echoshell init                  Write a default shell.yaml
  echoshell run                   Start the backend and the UI bridge
  echoshell credential store ...  Save a provider API key
  echoshell status                Ask a running shell for its state`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "Data directory (default: $ECHOSHELL_HOME or the OS config dir)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to shell.yaml (default: <home>/shell.yaml, or $ECHOSHELL_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		initCmd,
		runCmd,
		credentialCmd,
		backendCmd,
		statusCmd,
		stopCmd,
		logsCmd,
	)
}

// resolveHome returns the data directory from flag, env, or default.
func resolveHome() string {
	if homeDir != "" {
		return homeDir
	}
	return root.DefaultRoot()
}

// loadShell opens the data directory and loads the validated config.
func loadShell() (*root.Root, *config.ShellConfig, error) {
	r, err := root.Open(resolveHome())
	if err != nil {
		return nil, nil, err
	}

	cfg, err := r.LoadConfig(resolveConfigPath())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return r, cfg, nil
}

// resolveConfigPath returns the --config flag or $ECHOSHELL_CONFIG. Empty
// means shell.yaml in the data directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("ECHOSHELL_CONFIG")
}

// newLogger builds the process logger from the log section of shell.yaml.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func printSuccess(msg string) { fprintSuccess(os.Stdout, msg) }
func printInfo(msg string)    { fprintInfo(os.Stdout, msg) }
func printError(msg string)   { fprintError(os.Stderr, msg) }

func fprintSuccess(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[32m✔\033[0m %s\n", msg)
}

func fprintInfo(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[36m→\033[0m %s\n", msg)
}

func fprintError(w io.Writer, msg string) {
	fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
}

func printHeader(msg string) {
	fmt.Printf("\n\033[1m%s\033[0m\n", msg)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
