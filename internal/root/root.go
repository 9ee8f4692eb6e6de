// Package root manages the shell's per-user data directory.
package root

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/echov2/echoshell/internal/config"
)

const (
	ShellYAML   = "shell.yaml"
	LogsDir     = "logs"
	BackendLog  = "backend.log"
	AuditLog    = "credential-audit.jsonl"
	LegacyEnv   = "credentials.env"
	BridgeToken = "bridge.token"
	dirName     = "echoshell"
	fallbackDir = ".echoshell"
)

// Root is the shell's data directory.
type Root struct {
	Path string
}

// Open returns a Root for path, creating it (chmod 700) if needed.
func Open(path string) (*Root, error) {
	if err := os.MkdirAll(filepath.Join(path, LogsDir), 0700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &Root{Path: path}, nil
}

// ConfigPath returns the absolute path to shell.yaml.
func (r *Root) ConfigPath() string { return filepath.Join(r.Path, ShellYAML) }

// BackendLogPath returns the file receiving backend output.
func (r *Root) BackendLogPath() string { return filepath.Join(r.Path, LogsDir, BackendLog) }

// AuditLogPath returns the credential audit trail.
func (r *Root) AuditLogPath() string { return filepath.Join(r.Path, LogsDir, AuditLog) }

// LegacyEnvPath returns where older releases kept plaintext API keys.
func (r *Root) LegacyEnvPath() string { return filepath.Join(r.Path, LegacyEnv) }

// BridgeTokenPath returns where a running shell leaves its bridge token for
// local clients.
func (r *Root) BridgeTokenPath() string { return filepath.Join(r.Path, BridgeToken) }

// LoadConfig reads the config at path, or shell.yaml in the data dir when
// path is empty, then applies environment overrides and fills unset log
// paths with the data-dir locations.
func (r *Root) LoadConfig(path string) (*config.ShellConfig, error) {
	if path == "" {
		path = r.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if cfg.Backend.LogFile == "" {
		cfg.Backend.LogFile = r.BackendLogPath()
	}
	if cfg.Vault.AuditLog == "" {
		cfg.Vault.AuditLog = r.AuditLogPath()
	}
	return cfg, nil
}

// DefaultRoot returns the default data directory: $ECHOSHELL_HOME, else the
// OS user config dir, else ~/.echoshell.
func DefaultRoot() string {
	if v := os.Getenv("ECHOSHELL_HOME"); v != "" {
		return v
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, dirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fallbackDir
	}
	return filepath.Join(home, fallbackDir)
}
