package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/echov2/echoshell/internal/bridge"
	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/credentials"
	"github.com/echov2/echoshell/internal/fault"
	"github.com/echov2/echoshell/internal/lifecycle"
	"github.com/echov2/echoshell/internal/root"
	"github.com/echov2/echoshell/internal/supervisor"
	"github.com/spf13/cobra"
)

var (
	runDev        bool
	runBackendDir string
	runNoBridge   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the backend and serve the UI bridge",
	Long: `Start the supervised backend, wait until its health endpoint answers,
then serve the loopback bridge the UI uses for credentials and shutdown.

The shell exits after SIGINT/SIGTERM or POST /shutdown, stopping the backend
first. If the backend cannot be launched or never becomes ready, the shell
prints the reason and exits with status 1.

Examples:
  echoshell run                          # packaged backend next to this binary
  echoshell run --dev                    # python main.py from ../../../backend
  echoshell run --dev --backend-dir ./backend`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDev, "dev", false, "Run the backend from source (development mode)")
	runCmd.Flags().StringVar(&runBackendDir, "backend-dir", "", "Backend source directory for development mode")
	runCmd.Flags().BoolVar(&runNoBridge, "no-bridge", false, "Supervise the backend without serving the bridge")
}

func runRun(cmd *cobra.Command, args []string) error {
	r, cfg, err := loadShell()
	if err != nil {
		return err
	}
	if runDev {
		cfg.Backend.Mode = config.ModeDevelopment
	}
	if runBackendDir != "" {
		cfg.Backend.Development.Dir = runBackendDir
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sr := &shellRun{
		root:     r,
		cfg:      cfg,
		logger:   logger,
		noBridge: runNoBridge,
		out:      os.Stdout,
		errOut:   os.Stderr,
	}
	if code := sr.run(ctx); code != 0 {
		stop()
		os.Exit(code)
	}
	return nil
}

// shellRun is one `echoshell run` session.
type shellRun struct {
	root     *root.Root
	cfg      *config.ShellConfig
	resolver supervisor.Resolver // nil locates the backend from cfg
	logger   *slog.Logger
	noBridge bool
	out      io.Writer
	errOut   io.Writer

	sup   *supervisor.Supervisor
	hook  *lifecycle.Hook
	ready chan struct{} // closed once the backend is up and the bridge is serving
}

// run supervises the backend until ctx is cancelled, the hook fires or the
// bridge fails, and returns the process exit code.
func (s *shellRun) run(ctx context.Context) int {
	cfg := s.cfg
	supLog := s.logger.With("component", "supervisor")
	if s.resolver != nil {
		s.sup = supervisor.NewWithResolver(s.resolver, supervisor.OptionsFromConfig(cfg.Backend), supLog)
	} else {
		s.sup = supervisor.New(cfg.Backend, supLog)
	}
	s.hook = lifecycle.NewHook(s.sup, s.logger)
	if s.ready == nil {
		s.ready = make(chan struct{})
	}

	stopTimeout := cfg.Backend.StopGraceDuration() + 5*time.Second
	shutdown := func() error {
		sctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return s.hook.Shutdown(sctx)
	}

	if err := s.sup.Start(ctx); err != nil {
		shutdown() //nolint:errcheck
		switch {
		case errors.Is(err, context.Canceled):
			fprintInfo(s.out, "Startup interrupted, backend stopped")
			return 0
		case fault.IsFatal(err):
			fmt.Fprintf(s.errOut, "fatal: %s\n%s\n", err, fatalHint(err, cfg))
		default:
			fprintError(s.errOut, err.Error())
		}
		return 1
	}
	fprintSuccess(s.out, fmt.Sprintf("Backend ready (pid %d, %s)", s.sup.PID(), cfg.Backend.HealthURL))

	vault, closeVault, err := openVault(cfg, s.logger)
	if err != nil {
		shutdown() //nolint:errcheck
		fprintError(s.errOut, fmt.Sprintf("opening credential vault: %s", err))
		return 1
	}
	defer closeVault()

	migrateLegacyFile(ctx, vault, s.root, s.logger)

	serveErr := make(chan error, 1)
	serveCtx, cancelServe := context.WithCancel(ctx)
	defer cancelServe()
	if !s.noBridge {
		srv := bridge.New(cfg.Bridge, vault, s.sup, s.hook, s.logger.With("component", "bridge"))
		tokenPath := s.root.BridgeTokenPath()
		if err := writeBridgeToken(tokenPath, srv.Token()); err != nil {
			shutdown() //nolint:errcheck
			fprintError(s.errOut, fmt.Sprintf("writing bridge token: %s", err))
			return 1
		}
		defer os.Remove(tokenPath)
		fprintInfo(s.out, fmt.Sprintf("Bridge → http://%s (token in %s)", srv.Addr(), tokenPath))
		go func() { serveErr <- srv.Start(serveCtx, srv.Addr()) }()
	}
	close(s.ready)

	code := 0
	select {
	case <-ctx.Done():
		s.logger.Info("signal received")
	case <-s.hook.Done():
	case err := <-serveErr:
		if err != nil {
			s.logger.Error("bridge stopped", "error", err)
			fprintError(s.errOut, fmt.Sprintf("bridge: %s", err))
			code = 1
		}
	}
	cancelServe()

	if err := shutdown(); err != nil {
		fprintError(s.errOut, fmt.Sprintf("stopping backend: %s", err))
		return 1
	}
	fprintSuccess(s.out, "Backend stopped")
	return code
}

// writeBridgeToken replaces the token file, readable by the owner only.
func writeBridgeToken(path, token string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(token + "\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// openVault builds the vault from shell.yaml, with its audit trail in a
// separate JSON-lines file when one is configured.
func openVault(cfg *config.ShellConfig, logger *slog.Logger) (*credentials.Vault, func(), error) {
	store, err := credentials.NewStore(cfg)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {}
	audit := credentials.NewAudit(logger)
	if cfg.Vault.AuditLog != "" {
		a, closer, err := credentials.OpenAuditFile(cfg.Vault.AuditLog)
		if err != nil {
			return nil, nil, err
		}
		audit = a
		closeFn = func() { closer.Close() }
	}
	vlog := logger.With("component", "vault")
	return credentials.NewVault(store, cfg.Vault.KeyPrefix, audit, vlog), closeFn, nil
}

// migrateLegacyFile drains a plaintext credential file left by an older
// release. Failures are logged; the legacy file stays in place for a retry.
func migrateLegacyFile(ctx context.Context, vault *credentials.Vault, r *root.Root, logger *slog.Logger) {
	migrated, err := vault.MigrateLegacy(ctx, credentials.OpenLegacyFile(r.LegacyEnvPath()))
	if len(migrated) > 0 {
		logger.Info("migrated legacy credentials", "providers", migrated)
	}
	if err != nil {
		logger.Warn("legacy credential migration incomplete", "error", err)
	}
}

// fatalHint returns the actionable part of a fatal startup message.
func fatalHint(err error, cfg *config.ShellConfig) string {
	var rte *supervisor.ReadinessTimeoutError
	switch {
	case errors.Is(err, supervisor.ErrExitedEarly):
		return fmt.Sprintf("The backend crashed during startup. Its output is in %s.", cfg.Backend.LogFile)
	case errors.As(err, &rte):
		return fmt.Sprintf("The backend did not answer %s in time. Check %s, or raise backend.ready_attempts.",
			rte.URL, cfg.Backend.LogFile)
	case cfg.Backend.Mode == config.ModeDevelopment:
		return "Check backend.development.dir (or --backend-dir) and that the interpreter is on PATH."
	default:
		return "The backend executable is missing next to echoshell. Reinstall the application."
	}
}
