// Package config defines the types for shell.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend run modes.
const (
	ModePackaged    = "packaged"
	ModeDevelopment = "development"
)

// Vault secret store types.
const (
	VaultKeyring = "keyring"
	VaultOpenBao = "openbao"
)

// ShellConfig is the top-level structure of shell.yaml.
// This file never holds provider secrets; those live in the OS secret store.
type ShellConfig struct {
	AppID   string        `yaml:"app_id"`
	Log     LogConfig     `yaml:"log,omitempty"`
	Backend BackendConfig `yaml:"backend"`
	Vault   VaultConfig   `yaml:"vault"`
	Bridge  BridgeConfig  `yaml:"bridge"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug | info | warn | error
	Format string `yaml:"format,omitempty"` // text | json
}

// BackendConfig describes how the supervised backend is launched and probed.
type BackendConfig struct {
	Mode          string            `yaml:"mode"` // packaged | development
	HealthURL     string            `yaml:"health_url"`
	ReadyAttempts int               `yaml:"ready_attempts,omitempty"`
	ReadyInterval string            `yaml:"ready_interval,omitempty"`
	ProbeTimeout  string            `yaml:"probe_timeout,omitempty"`
	StopGrace     string            `yaml:"stop_grace,omitempty"`
	LogFile       string            `yaml:"log_file,omitempty"`
	Env           map[string]string `yaml:"env,omitempty"`
	Packaged      PackagedConfig    `yaml:"packaged,omitempty"`
	Development   DevelopmentConfig `yaml:"development,omitempty"`
}

// PackagedConfig names the backend executable shipped next to the host binary.
type PackagedConfig struct {
	Executable string `yaml:"executable,omitempty"`
}

// DevelopmentConfig runs the backend from source through an interpreter.
// An empty Dir falls back to <exe>/../../../backend.
type DevelopmentConfig struct {
	Interpreter string `yaml:"interpreter,omitempty"`
	Script      string `yaml:"script,omitempty"`
	Dir         string `yaml:"dir,omitempty"`
}

// VaultConfig configures the credential vault.
type VaultConfig struct {
	Backend   string         `yaml:"backend"` // keyring | openbao
	KeyPrefix string         `yaml:"key_prefix,omitempty"`
	AuditLog  string         `yaml:"audit_log,omitempty"`
	OpenBao   *OpenBaoConfig `yaml:"openbao,omitempty"`
}

// OpenBaoConfig holds connection details for the OpenBao secret store.
type OpenBaoConfig struct {
	Address string            `yaml:"address"`
	Auth    OpenBaoAuthConfig `yaml:"auth"`
	Prefix  string            `yaml:"prefix,omitempty"` // KV path prefix, default "echoshell"
}

// OpenBaoAuthConfig defines how the vault authenticates to OpenBao.
type OpenBaoAuthConfig struct {
	Method      string `yaml:"method"`                  // "token" | "approle"
	TokenEnv    string `yaml:"token_env,omitempty"`     // env var containing the token
	RoleIDEnv   string `yaml:"role_id_env,omitempty"`   // env var for AppRole role_id
	SecretIDEnv string `yaml:"secret_id_env,omitempty"` // env var for AppRole secret_id
}

// BridgeConfig configures the loopback command surface used by the UI.
type BridgeConfig struct {
	BindAddress string   `yaml:"bind_address,omitempty"`
	Port        int      `yaml:"port,omitempty"`
	APIKey      string   `yaml:"api_key,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

// DefaultShellConfig returns sensible defaults.
func DefaultShellConfig() *ShellConfig {
	return &ShellConfig{
		AppID: "com.echov2.app",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Backend: BackendConfig{
			Mode:          ModePackaged,
			HealthURL:     "http://localhost:8000/health",
			ReadyAttempts: 30,
			ReadyInterval: "1s",
			ProbeTimeout:  "2s",
			StopGrace:     "5s",
			Packaged: PackagedConfig{
				Executable: "echov2-backend",
			},
			Development: DevelopmentConfig{
				Interpreter: "python",
				Script:      "main.py",
			},
		},
		Vault: VaultConfig{
			Backend:   VaultKeyring,
			KeyPrefix: "api_key",
		},
		Bridge: BridgeConfig{
			BindAddress: "127.0.0.1",
			Port:        9400,
			CORSOrigins: []string{"http://localhost:*", "tauri://localhost"},
		},
	}
}

// Load reads shell.yaml from path. A missing file yields the defaults.
func Load(path string) (*ShellConfig, error) {
	cfg := DefaultShellConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Write serializes cfg to path (chmod 600).
func Write(cfg *ShellConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serializing shell.yaml: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ApplyEnv overlays ECHOSHELL_* environment variables onto the config.
func (c *ShellConfig) ApplyEnv() {
	if v := os.Getenv("ECHOSHELL_MODE"); v != "" {
		c.Backend.Mode = v
	}
	if v := os.Getenv("ECHOSHELL_BACKEND_DIR"); v != "" {
		c.Backend.Development.Dir = v
	}
	if v := os.Getenv("ECHOSHELL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Bridge.Port = port
		}
	}
	if v := os.Getenv("ECHOSHELL_API_KEY"); v != "" {
		c.Bridge.APIKey = v
	}
}

// ReadyIntervalDuration returns the pause between readiness probes.
func (b BackendConfig) ReadyIntervalDuration() time.Duration {
	return ParseDuration(b.ReadyInterval, time.Second)
}

// ProbeTimeoutDuration returns the per-probe HTTP timeout.
func (b BackendConfig) ProbeTimeoutDuration() time.Duration {
	return ParseDuration(b.ProbeTimeout, 2*time.Second)
}

// StopGraceDuration returns how long Stop waits before killing the backend.
func (b BackendConfig) StopGraceDuration() time.Duration {
	return ParseDuration(b.StopGrace, 5*time.Second)
}

// ParseDuration parses a duration string, returning fallback on error or empty.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
