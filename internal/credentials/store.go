// Package credentials keeps per-provider API credentials in the operating
// system's secret store.
package credentials

import (
	"context"
	"errors"

	"github.com/zalando/go-keyring"
)

// SecretStore is the pluggable secret storage interface. Keys are already
// namespaced by the vault; implementations add the application scope.
type SecretStore interface {
	// Get returns the stored payload, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes the payload, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes the entry. It may return ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Type returns the store type name ("keyring" or "openbao").
	Type() string
}

// KeyringStore stores entries in the OS keyring (macOS Keychain, Windows
// Credential Manager, Secret Service on Linux) under one service name.
type KeyringStore struct {
	Service string
}

// NewKeyringStore creates a store scoped to the given application id.
func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{Service: service}
}

func (s *KeyringStore) Type() string { return "keyring" }

func (s *KeyringStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	val, err := keyring.Get(s.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	return val, err
}

func (s *KeyringStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return keyring.Set(s.Service, key, value)
}

func (s *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := keyring.Delete(s.Service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
