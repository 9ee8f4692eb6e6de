package root

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesLayout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	r, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(dir, LogsDir))
	if err != nil || !info.IsDir() {
		t.Fatalf("logs dir missing: %v", err)
	}
	if r.ConfigPath() != filepath.Join(dir, "shell.yaml") {
		t.Errorf("ConfigPath = %q", r.ConfigPath())
	}
}

func TestLoadConfigFillsLogPaths(t *testing.T) {
	r, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := r.LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.LogFile != r.BackendLogPath() {
		t.Errorf("Backend.LogFile = %q", cfg.Backend.LogFile)
	}
	if cfg.Vault.AuditLog != r.AuditLogPath() {
		t.Errorf("Vault.AuditLog = %q", cfg.Vault.AuditLog)
	}
}

func TestDefaultRootEnvOverride(t *testing.T) {
	t.Setenv("ECHOSHELL_HOME", "/tmp/echo-home")
	if got := DefaultRoot(); got != "/tmp/echo-home" {
		t.Errorf("DefaultRoot = %q", got)
	}
}

func TestLoadConfigExplicitPath(t *testing.T) {
	r, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("app_id: com.example.custom\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := r.LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AppID != "com.example.custom" {
		t.Errorf("AppID = %q", cfg.AppID)
	}
}
