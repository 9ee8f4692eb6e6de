// Package openbao stores vault entries in OpenBao's KV v2 secrets engine.
// It serves hosts without a desktop secret service (CI runners, headless
// Linux) where OpenBao is the trusted secret boundary instead.
package openbao

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/echov2/echoshell/internal/config"
)

// ErrNotFound is returned when a KV entry does not exist.
var ErrNotFound = errors.New("openbao: secret not found")

// StatusError is a non-2xx answer from the OpenBao API.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("openbao %s %s returned %d", e.Method, e.Path, e.Code)
}

// Backend is a KV v2 client scoped to one application.
type Backend struct {
	addr   string // OpenBao API address (e.g. "http://127.0.0.1:8200")
	token  string
	prefix string // KV path prefix (default "echoshell")
	app    string // application id segment
	client *http.Client
}

// New creates a Backend and authenticates with token or AppRole.
func New(cfg *config.OpenBaoConfig, appID string) (*Backend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("openbao address is required")
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "echoshell"
	}

	b := &Backend{
		addr:   strings.TrimRight(cfg.Address, "/"),
		prefix: prefix,
		app:    appID,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	switch cfg.Auth.Method {
	case "token", "":
		envVar := envOr(cfg.Auth.TokenEnv, "BAO_TOKEN")
		b.token = os.Getenv(envVar)
		if b.token == "" {
			return nil, fmt.Errorf("openbao token not found in env var %s", envVar)
		}

	case "approle":
		roleIDEnv := envOr(cfg.Auth.RoleIDEnv, "BAO_ROLE_ID")
		secretIDEnv := envOr(cfg.Auth.SecretIDEnv, "BAO_SECRET_ID")
		roleID := os.Getenv(roleIDEnv)
		secretID := os.Getenv(secretIDEnv)
		if roleID == "" || secretID == "" {
			return nil, fmt.Errorf("openbao approle requires %s and %s env vars", roleIDEnv, secretIDEnv)
		}
		token, err := b.approleLogin(context.Background(), roleID, secretID)
		if err != nil {
			return nil, fmt.Errorf("openbao approle login: %w", err)
		}
		b.token = token

	default:
		return nil, fmt.Errorf("unsupported openbao auth method: %q", cfg.Auth.Method)
	}

	return b, nil
}

func envOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

func (b *Backend) Type() string { return "openbao" }

// IsReachable returns true if OpenBao answers its health check (200 or 429).
func (b *Backend) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.addr+"/v1/sys/health", nil)
	if err != nil {
		return false
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == 200 || resp.StatusCode == 429
}

// dataPath returns the KV v2 data path: secret/data/{prefix}/{app}/{key}
func (b *Backend) dataPath(key string) string {
	return fmt.Sprintf("secret/data/%s/%s/%s", b.prefix, b.app, key)
}

// metadataPath returns the KV v2 metadata path, which deletes all versions.
func (b *Backend) metadataPath(key string) string {
	return fmt.Sprintf("secret/metadata/%s/%s/%s", b.prefix, b.app, key)
}

func (b *Backend) Get(ctx context.Context, key string) (string, error) {
	body, err := b.request(ctx, http.MethodGet, b.dataPath(key), nil)
	if err != nil {
		return "", err
	}
	val, err := extractValue(body)
	if err != nil {
		return "", fmt.Errorf("parsing entry %q: %w", key, err)
	}
	return val, nil
}

func (b *Backend) Set(ctx context.Context, key, value string) error {
	payload := map[string]any{
		"data": map[string]any{"value": value},
	}
	_, err := b.request(ctx, http.MethodPost, b.dataPath(key), payload)
	return err
}

func (b *Backend) Delete(ctx context.Context, key string) error {
	_, err := b.request(ctx, http.MethodDelete, b.metadataPath(key), nil)
	return err
}

func (b *Backend) approleLogin(ctx context.Context, roleID, secretID string) (string, error) {
	payload := map[string]any{
		"role_id":   roleID,
		"secret_id": secretID,
	}
	body, err := b.request(ctx, http.MethodPost, "auth/approle/login", payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		Auth struct {
			ClientToken string `json:"client_token"`
		} `json:"auth"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parsing approle response: %w", err)
	}
	if resp.Auth.ClientToken == "" {
		return "", fmt.Errorf("approle login returned empty token")
	}
	return resp.Auth.ClientToken, nil
}

// request sends one API call. Response bodies are never folded into errors
// since they may echo request data.
func (b *Backend) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.addr+"/v1/"+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set("X-Vault-Token", b.token)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}
	return body, nil
}

// extractValue pulls "value" out of a KV v2 read.
// Response shape: {"data": {"data": {"value": "..."}}}
func extractValue(body []byte) (string, error) {
	var resp struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	val, ok := resp.Data.Data["value"]
	if !ok {
		return "", fmt.Errorf("no 'value' field in secret data")
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("secret 'value' is not a string")
	}
	return s, nil
}
