package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/credentials"
	"github.com/echov2/echoshell/internal/root"
	"github.com/echov2/echoshell/internal/supervisor"
	"github.com/zalando/go-keyring"
)

// TestHelperProcess is not a real test. It stands in for the backend when
// re-executed by the run tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("ECHOSHELL_HELPER") != "serve" {
		return
	}
	fmt.Println("backend up")
	time.Sleep(time.Minute)
	os.Exit(0)
}

var helperBackend = supervisor.ResolverFunc(func() (*supervisor.LaunchSpec, error) {
	return &supervisor.LaunchSpec{
		Path: os.Args[0],
		Args: []string{"-test.run=^TestHelperProcess$"},
		Env:  []string{"ECHOSHELL_HELPER=serve"},
	}, nil
})

// syncBuffer collects output written from the run goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newShellRun(t *testing.T, healthURL string, resolver supervisor.Resolver) (*shellRun, *syncBuffer, *syncBuffer) {
	t.Helper()
	keyring.MockInit()
	r, err := root.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultShellConfig()
	cfg.Backend.HealthURL = healthURL
	cfg.Backend.ReadyInterval = "1ms"
	cfg.Backend.StopGrace = "2s"
	cfg.Backend.LogFile = r.BackendLogPath()
	cfg.Vault.AuditLog = r.AuditLogPath()
	cfg.Bridge.Port = 0

	var out, errOut syncBuffer
	return &shellRun{
		root:     r,
		cfg:      cfg,
		resolver: resolver,
		logger:   slog.New(slog.NewTextHandler(&errOut, &slog.HandlerOptions{Level: slog.LevelWarn})),
		out:      &out,
		errOut:   &errOut,
		ready:    make(chan struct{}),
	}, &out, &errOut
}

func TestRunFatalLaunch(t *testing.T) {
	missing := supervisor.ResolverFunc(func() (*supervisor.LaunchSpec, error) {
		return nil, &supervisor.LaunchError{Path: "/opt/echov2/backend", Err: os.ErrNotExist}
	})
	sr, _, errOut := newShellRun(t, "http://127.0.0.1:1/health", missing)

	if code := sr.run(context.Background()); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	out := errOut.String()
	if !strings.Contains(out, "fatal: launching backend /opt/echov2/backend") {
		t.Errorf("stderr = %q", out)
	}
	if !strings.Contains(out, "Reinstall") {
		t.Errorf("missing packaged-mode hint: %q", out)
	}
	if sr.sup.State() != supervisor.Failed {
		t.Errorf("state = %v, want failed", sr.sup.State())
	}
}

func TestRunUntilShutdownHook(t *testing.T) {
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer health.Close()

	sr, out, errOut := newShellRun(t, health.URL, helperBackend)
	legacy := sr.root.LegacyEnvPath()
	if err := os.WriteFile(legacy, []byte("OPENAI_API_KEY=sk-legacy-run\n"), 0600); err != nil {
		t.Fatal(err)
	}

	code := make(chan int, 1)
	go func() { code <- sr.run(context.Background()) }()

	select {
	case <-sr.ready:
	case c := <-code:
		t.Fatalf("run returned %d before ready; stderr: %s", c, errOut.String())
	case <-time.After(10 * time.Second):
		t.Fatal("run never became ready")
	}

	if sr.sup.State() != supervisor.Ready || sr.sup.PID() == 0 {
		t.Errorf("state = %v pid = %d", sr.sup.State(), sr.sup.PID())
	}
	info, err := os.Stat(sr.root.BridgeTokenPath())
	if err != nil {
		t.Fatalf("bridge token file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file perm = %o, want 600", perm)
	}
	if tok := bridgeToken(sr.root, sr.cfg); tok == "" {
		t.Error("bridgeToken read nothing from the token file")
	}

	sr.hook.Trigger(context.Background())
	select {
	case c := <-code:
		if c != 0 {
			t.Errorf("exit code = %d, want 0; stderr: %s", c, errOut.String())
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after shutdown")
	}

	if sr.sup.State() != supervisor.Stopped {
		t.Errorf("state = %v, want stopped", sr.sup.State())
	}
	if _, err := os.Stat(legacy); !os.IsNotExist(err) {
		t.Errorf("legacy file not drained: %v", err)
	}
	if _, err := os.Stat(sr.root.BridgeTokenPath()); !os.IsNotExist(err) {
		t.Errorf("token file left behind: %v", err)
	}
	v := credentials.NewVault(credentials.NewKeyringStore(sr.cfg.AppID), sr.cfg.Vault.KeyPrefix, nil, nil)
	if rec, err := v.Get(context.Background(), "openai"); err != nil || rec == nil || rec.APIKey != "sk-legacy-run" {
		t.Errorf("migrated record = %v, %v", rec, err)
	}
	if strings.Contains(out.String()+errOut.String(), "sk-legacy-run") {
		t.Error("migrated secret appeared in output")
	}
	if !strings.Contains(out.String(), "Backend stopped") {
		t.Errorf("stdout = %q", out.String())
	}
}

// TestRunInterruptedDuringStartup cancels the run while the backend is
// still failing its health check, as Ctrl-C would.
func TestRunInterruptedDuringStartup(t *testing.T) {
	health := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer health.Close()

	sr, out, errOut := newShellRun(t, health.URL, helperBackend)
	sr.cfg.Backend.ReadyAttempts = 100000

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)

	if code := sr.run(ctx); code != 0 {
		t.Fatalf("exit code = %d, want 0; stderr: %s", code, errOut.String())
	}
	if strings.Contains(errOut.String(), "fatal:") {
		t.Errorf("interrupt reported as fatal: %s", errOut.String())
	}
	if !strings.Contains(out.String(), "interrupted") {
		t.Errorf("stdout = %q", out.String())
	}
	if sr.sup.PID() != 0 {
		t.Errorf("backend still live, pid %d", sr.sup.PID())
	}
}

func TestBridgeTokenPrefersConfig(t *testing.T) {
	r, err := root.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultShellConfig()
	if got := bridgeToken(r, cfg); got != "" {
		t.Errorf("no token file: got %q", got)
	}
	if err := writeBridgeToken(r.BridgeTokenPath(), "from-file"); err != nil {
		t.Fatal(err)
	}
	if got := bridgeToken(r, cfg); got != "from-file" {
		t.Errorf("bridgeToken = %q, want from-file", got)
	}
	cfg.Bridge.APIKey = "from-config"
	if got := bridgeToken(r, cfg); got != "from-config" {
		t.Errorf("bridgeToken = %q, want from-config", got)
	}
}
