package credentials

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
)

// Vault serializes per-provider credential records into a SecretStore.
// It holds no plaintext between calls; every operation works on
// caller-owned data and relies on the store for atomicity.
type Vault struct {
	store  SecretStore
	prefix string
	audit  *Audit
	log    *slog.Logger
}

// NewVault creates a vault over store. Entries are keyed "<prefix>_<provider>".
func NewVault(store SecretStore, keyPrefix string, audit *Audit, logger *slog.Logger) *Vault {
	if keyPrefix == "" {
		keyPrefix = "api_key"
	}
	if logger == nil {
		logger = slog.Default()
	}
	if audit == nil {
		audit = NewAudit(logger)
	}
	return &Vault{store: store, prefix: keyPrefix, audit: audit, log: logger}
}

// Backend returns the underlying store type.
func (v *Vault) Backend() string { return v.store.Type() }

// Reachable reports whether a remote store answers its health check.
// Local stores are always reachable.
func (v *Vault) Reachable(ctx context.Context) bool {
	if r, ok := v.store.(interface{ IsReachable(context.Context) bool }); ok {
		return r.IsReachable(ctx)
	}
	return true
}

// Key returns the secret store account name for provider.
func (v *Vault) Key(provider string) string {
	return v.prefix + "_" + provider
}

// Store writes the record for provider, replacing any previous one.
func (v *Vault) Store(ctx context.Context, provider, secret string, endpoint *string) error {
	return v.put(ctx, "store", provider, secret, endpoint)
}

// Migrate is Store for call sites moving a credential out of legacy
// plaintext storage. Only the audit operation name differs.
func (v *Vault) Migrate(ctx context.Context, provider, secret string, endpoint *string) error {
	return v.put(ctx, "migrate", provider, secret, endpoint)
}

func (v *Vault) put(ctx context.Context, op, provider, secret string, endpoint *string) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	payload, err := encodeRecord(Record{Provider: provider, APIKey: secret, CustomEndpoint: endpoint})
	if err != nil {
		return &SerializationError{Provider: provider, Err: err}
	}
	if err := v.store.Set(ctx, v.Key(provider), payload); err != nil {
		return &StoreAccessError{Op: op, Provider: provider, Backend: v.store.Type(), Err: err}
	}
	v.audit.Record(op, provider, v.store.Type())
	return nil
}

// checkProvider rejects ids that would not map to exactly one store entry.
// Store keys become path segments in OpenBao.
func checkProvider(provider string) error {
	if provider == "" {
		return &SerializationError{Provider: provider, Err: ErrEmptyProvider}
	}
	if provider == "." || provider == ".." || strings.ContainsAny(provider, `/\`) ||
		strings.IndexFunc(provider, unicode.IsControl) >= 0 {
		return &SerializationError{Provider: provider, Err: ErrInvalidProvider}
	}
	return nil
}

// Get returns the record for provider, or nil with no error when none is
// stored.
func (v *Vault) Get(ctx context.Context, provider string) (*Record, error) {
	if err := checkProvider(provider); err != nil {
		return nil, err
	}
	payload, err := v.store.Get(ctx, v.Key(provider))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreAccessError{Op: "get", Provider: provider, Backend: v.store.Type(), Err: err}
	}
	rec, err := decodeRecord(payload)
	if err != nil {
		return nil, &DeserializationError{Provider: provider, Err: err}
	}
	return rec, nil
}

// Delete removes the record for provider. Deleting an absent record succeeds.
func (v *Vault) Delete(ctx context.Context, provider string) error {
	if err := checkProvider(provider); err != nil {
		return err
	}
	err := v.store.Delete(ctx, v.Key(provider))
	if errors.Is(err, ErrNotFound) {
		v.log.Debug("credential already absent", "provider", provider)
		return nil
	}
	if err != nil {
		return &StoreAccessError{Op: "delete", Provider: provider, Backend: v.store.Type(), Err: err}
	}
	v.audit.Record("delete", provider, v.store.Type())
	return nil
}

// ListStoredProviders probes every catalog provider and returns those with a
// stored record, in catalog order. Providers outside the catalog are never
// reported. A corrupt record is skipped; a store failure aborts the listing.
func (v *Vault) ListStoredProviders(ctx context.Context) ([]string, error) {
	stored := []string{}
	for _, provider := range catalog {
		rec, err := v.Get(ctx, provider)
		var de *DeserializationError
		switch {
		case errors.As(err, &de):
			v.log.Warn("skipping unreadable credential", "provider", provider, "error", de.Error())
		case err != nil:
			return nil, err
		case rec != nil:
			stored = append(stored, provider)
		}
	}
	return stored, nil
}

// MigrateLegacy moves every catalog credential found in a legacy plaintext
// file into the vault, removing each entry from the file once it is stored.
// It returns the providers migrated before any failure.
func (v *Vault) MigrateLegacy(ctx context.Context, f *LegacyFile) ([]string, error) {
	records, err := f.Records()
	if err != nil {
		return nil, err
	}
	migrated := []string{}
	for _, rec := range records {
		if err := v.Migrate(ctx, rec.Provider, rec.APIKey, rec.CustomEndpoint); err != nil {
			return migrated, err
		}
		if err := f.Remove(rec.Provider); err != nil {
			return migrated, err
		}
		migrated = append(migrated, rec.Provider)
	}
	return migrated, nil
}
