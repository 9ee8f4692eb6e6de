package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validate checks a ShellConfig for structural errors. It collects all
// problems rather than returning on the first failure.
func (c *ShellConfig) Validate() error {
	var errs []string

	if c.AppID == "" {
		errs = append(errs, "app_id is required")
	}

	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level: invalid level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format: invalid format %q", c.Log.Format))
	}

	b := c.Backend
	switch b.Mode {
	case ModePackaged:
		if b.Packaged.Executable == "" {
			errs = append(errs, "backend.packaged.executable is required in packaged mode")
		}
	case ModeDevelopment:
		if b.Development.Interpreter == "" {
			errs = append(errs, "backend.development.interpreter is required in development mode")
		}
		if b.Development.Script == "" {
			errs = append(errs, "backend.development.script is required in development mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend.mode: invalid mode %q (want %s or %s)", b.Mode, ModePackaged, ModeDevelopment))
	}
	if u, err := url.Parse(b.HealthURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("backend.health_url: %q is not an absolute URL", b.HealthURL))
	}
	if b.ReadyAttempts < 1 {
		errs = append(errs, "backend.ready_attempts must be at least 1")
	}
	for field, v := range map[string]string{
		"ready_interval": b.ReadyInterval,
		"probe_timeout":  b.ProbeTimeout,
		"stop_grace":     b.StopGrace,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Sprintf("backend.%s: invalid duration %q", field, v))
		}
	}

	switch c.Vault.Backend {
	case "", VaultKeyring:
	case VaultOpenBao:
		if c.Vault.OpenBao == nil || c.Vault.OpenBao.Address == "" {
			errs = append(errs, "vault.openbao.address is required when vault.backend is openbao")
		}
	default:
		errs = append(errs, fmt.Sprintf("vault.backend: unknown type %q", c.Vault.Backend))
	}

	if c.Bridge.Port < 0 || c.Bridge.Port > 65535 {
		errs = append(errs, fmt.Sprintf("bridge.port: %d out of range", c.Bridge.Port))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
