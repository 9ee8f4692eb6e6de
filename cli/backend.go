package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/supervisor"
	"github.com/spf13/cobra"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Inspect the supervised backend",
}

var backendProbeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Wait for the backend health endpoint without launching anything",
	Long: `Poll backend.health_url with the configured attempt budget. Useful for
checking a backend started by hand before wiring it into shell.yaml.`,
	Args: cobra.NoArgs,
	RunE: runBackendProbe,
}

var backendLocateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Print the command line run would use for the backend",
	Args:  cobra.NoArgs,
	RunE:  runBackendLocate,
}

func init() {
	backendLocateCmd.Flags().BoolVar(&runDev, "dev", false, "Resolve the development-mode backend")
	backendLocateCmd.Flags().StringVar(&runBackendDir, "backend-dir", "", "Backend source directory for development mode")
	backendCmd.AddCommand(backendProbeCmd, backendLocateCmd)
}

func runBackendProbe(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadShell()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, os.Stderr)
	noLaunch := supervisor.ResolverFunc(func() (*supervisor.LaunchSpec, error) {
		return nil, fmt.Errorf("probe does not launch")
	})
	sup := supervisor.NewWithResolver(noLaunch, supervisor.OptionsFromConfig(cfg.Backend), logger)

	printInfo(fmt.Sprintf("Probing %s ...", cfg.Backend.HealthURL))
	if err := sup.WaitForReady(context.Background()); err != nil {
		return err
	}
	printSuccess("Backend is ready")
	return nil
}

func runBackendLocate(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadShell()
	if err != nil {
		return err
	}
	if runDev {
		cfg.Backend.Mode = config.ModeDevelopment
	}
	if runBackendDir != "" {
		cfg.Backend.Development.Dir = runBackendDir
	}
	spec, err := supervisor.NewLocator(cfg.Backend).Resolve()
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(spec)
	}
	fmt.Printf("  path: %s\n", spec.Path)
	if len(spec.Args) > 0 {
		fmt.Printf("  args: %v\n", spec.Args)
	}
	if spec.Dir != "" {
		fmt.Printf("  dir:  %s\n", spec.Dir)
	}
	return nil
}
