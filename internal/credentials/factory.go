package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/credentials/openbao"
)

// NewStore creates the secret store named by the vault configuration.
// When no store is configured, it returns the OS keyring.
func NewStore(cfg *config.ShellConfig) (SecretStore, error) {
	switch cfg.Vault.Backend {
	case "", config.VaultKeyring:
		return NewKeyringStore(cfg.AppID), nil
	case config.VaultOpenBao:
		if cfg.Vault.OpenBao == nil {
			return nil, fmt.Errorf("vault.backend is 'openbao' but openbao config is missing")
		}
		b, err := openbao.New(cfg.Vault.OpenBao, cfg.AppID)
		if err != nil {
			return nil, err
		}
		return &openBaoStore{b: b}, nil
	default:
		return nil, fmt.Errorf("unknown vault backend type: %q", cfg.Vault.Backend)
	}
}

// openBaoStore maps the OpenBao client's not-found error onto ErrNotFound.
type openBaoStore struct {
	b *openbao.Backend
}

func (s *openBaoStore) Type() string { return s.b.Type() }

func (s *openBaoStore) IsReachable(ctx context.Context) bool { return s.b.IsReachable(ctx) }

func (s *openBaoStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.b.Get(ctx, key)
	return val, mapNotFound(err)
}

func (s *openBaoStore) Set(ctx context.Context, key, value string) error {
	return s.b.Set(ctx, key, value)
}

func (s *openBaoStore) Delete(ctx context.Context, key string) error {
	return mapNotFound(s.b.Delete(ctx, key))
}

func mapNotFound(err error) error {
	if errors.Is(err, openbao.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
