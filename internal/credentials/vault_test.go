package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/echov2/echoshell/internal/fault"
	"github.com/zalando/go-keyring"
)

const testService = "com.echov2.test"

// newKeyringVault returns a vault over the in-memory keyring mock and the
// buffer receiving its log and audit output.
func newKeyringVault(t *testing.T) (*Vault, *bytes.Buffer) {
	t.Helper()
	keyring.MockInit()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewVault(NewKeyringStore(testService), "api_key", NewAudit(logger), logger), &buf
}

func strPtr(s string) *string { return &s }

func TestStoreAndGetRoundTrip(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-test-123", nil); err != nil {
		t.Fatalf("Store: %v", err)
	}

	rec, err := v.Get(ctx, "openai")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec == nil {
		t.Fatal("Get returned nil record")
	}
	if rec.Provider != "openai" || rec.APIKey != "sk-test-123" || rec.CustomEndpoint != nil {
		t.Errorf("unexpected record: provider=%q endpoint=%v", rec.Provider, rec.CustomEndpoint)
	}

	raw, err := keyring.Get(testService, "api_key_openai")
	if err != nil {
		t.Fatalf("raw keyring entry: %v", err)
	}
	var stored map[string]any
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("stored payload is not JSON: %v", err)
	}
	if ep, ok := stored["custom_endpoint"]; !ok || ep != nil {
		t.Errorf("custom_endpoint = %v (present=%v), want explicit null", ep, ok)
	}
}

func TestStoreWithEndpoint(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "ollama", "", strPtr("http://localhost:11434")); err != nil {
		t.Fatalf("Store: %v", err)
	}
	rec, err := v.Get(ctx, "ollama")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.CustomEndpoint == nil || *rec.CustomEndpoint != "http://localhost:11434" {
		t.Errorf("CustomEndpoint = %v", rec.CustomEndpoint)
	}
}

func TestStoreOverwritesWholeRecord(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "anthropic", "first", strPtr("https://proxy.example/v1")); err != nil {
		t.Fatal(err)
	}
	if err := v.Store(ctx, "anthropic", "second", nil); err != nil {
		t.Fatal(err)
	}

	rec, err := v.Get(ctx, "anthropic")
	if err != nil {
		t.Fatal(err)
	}
	if rec.APIKey != "second" {
		t.Errorf("APIKey not replaced")
	}
	if rec.CustomEndpoint != nil {
		t.Errorf("CustomEndpoint = %q, want nil after overwrite", *rec.CustomEndpoint)
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	v, _ := newKeyringVault(t)
	rec, err := v.Get(context.Background(), "google")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil record, got %v", rec)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "openai", "sk-test-123", nil); err != nil {
		t.Fatal(err)
	}
	if err := v.Delete(ctx, "openai"); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := v.Delete(ctx, "openai"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if rec, _ := v.Get(ctx, "openai"); rec != nil {
		t.Error("record still present after delete")
	}
}

func TestListStoredProviders(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	got, err := v.ListStoredProviders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("empty vault listing = %#v, want empty non-nil slice", got)
	}

	for _, p := range []string{"ollama", "openai", "mistral"} {
		if err := v.Store(ctx, p, "k-"+p, nil); err != nil {
			t.Fatal(err)
		}
	}

	got, err = v.ListStoredProviders(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"openai", "ollama"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ListStoredProviders = %v, want %v (catalog order, no mistral)", got, want)
	}
}

func TestListSkipsCorruptRecord(t *testing.T) {
	v, buf := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Store(ctx, "anthropic", "k", nil); err != nil {
		t.Fatal(err)
	}
	if err := keyring.Set(testService, "api_key_openai", "{not json sk-corrupt"); err != nil {
		t.Fatal(err)
	}

	got, err := v.ListStoredProviders(ctx)
	if err != nil {
		t.Fatalf("ListStoredProviders: %v", err)
	}
	if len(got) != 1 || got[0] != "anthropic" {
		t.Errorf("ListStoredProviders = %v, want [anthropic]", got)
	}
	if strings.Contains(buf.String(), "sk-corrupt") {
		t.Error("log output echoed the corrupt payload")
	}
}

func TestGetCorruptRecord(t *testing.T) {
	v, _ := newKeyringVault(t)
	if err := keyring.Set(testService, "api_key_google", `{"provider":"google","api_key":42}`); err != nil {
		t.Fatal(err)
	}

	_, err := v.Get(context.Background(), "google")
	var de *DeserializationError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DeserializationError, got %T: %v", err, err)
	}
	if de.Provider != "google" {
		t.Errorf("Provider = %q", de.Provider)
	}
	if fault.ClassOf(err) != fault.Recoverable {
		t.Errorf("class = %v, want recoverable", fault.ClassOf(err))
	}
}

func TestStoreAccessFailure(t *testing.T) {
	v, _ := newKeyringVault(t)
	keyring.MockInitWithError(errors.New("keychain locked"))
	ctx := context.Background()

	checks := map[string]error{
		"store":  v.Store(ctx, "openai", "sk-test-123", nil),
		"delete": v.Delete(ctx, "openai"),
	}
	_, checks["get"] = v.Get(ctx, "openai")
	_, checks["list"] = v.ListStoredProviders(ctx)

	for op, err := range checks {
		var se *StoreAccessError
		if !errors.As(err, &se) {
			t.Errorf("%s: expected *StoreAccessError, got %T: %v", op, err, err)
			continue
		}
		if se.Backend != "keyring" {
			t.Errorf("%s: Backend = %q", op, se.Backend)
		}
		if strings.Contains(err.Error(), "sk-test-123") {
			t.Errorf("%s: error leaked the secret", op)
		}
	}
}

func TestEmptyProviderRejected(t *testing.T) {
	v, _ := newKeyringVault(t)
	err := v.Store(context.Background(), "", "sk", nil)
	var se *SerializationError
	if !errors.As(err, &se) || !errors.Is(err, ErrEmptyProvider) {
		t.Fatalf("expected SerializationError wrapping ErrEmptyProvider, got %v", err)
	}
}

func TestMigrateMatchesStore(t *testing.T) {
	v, buf := newKeyringVault(t)
	ctx := context.Background()

	if err := v.Migrate(ctx, "openai", "sk-migrated", strPtr("https://proxy.example")); err != nil {
		t.Fatal(err)
	}
	viaMigrate, _ := keyring.Get(testService, "api_key_openai")

	if err := v.Store(ctx, "openai", "sk-migrated", strPtr("https://proxy.example")); err != nil {
		t.Fatal(err)
	}
	viaStore, _ := keyring.Get(testService, "api_key_openai")

	if viaMigrate != viaStore {
		t.Error("Migrate and Store produced different payloads")
	}
	if !strings.Contains(buf.String(), `"op":"migrate"`) {
		t.Error("expected a migrate audit event")
	}
}

func TestSecretNeverLogged(t *testing.T) {
	v, buf := newKeyringVault(t)
	ctx := context.Background()
	const secret = "sk-super-secret-value"

	if err := v.Store(ctx, "openai", secret, nil); err != nil {
		t.Fatal(err)
	}
	rec, err := v.Get(ctx, "openai")
	if err != nil {
		t.Fatal(err)
	}
	slog.New(slog.NewTextHandler(buf, nil)).Info("loaded", "record", rec)
	fmt.Fprintf(buf, "%v %+v %#v", rec, *rec, *rec)
	if err := v.Delete(ctx, "openai"); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Contains(out, secret) {
		t.Fatalf("secret leaked into output:\n%s", out)
	}
	for _, op := range []string{`"op":"store"`, `"op":"delete"`} {
		if !strings.Contains(out, op) {
			t.Errorf("missing audit event %s", op)
		}
	}
	if !strings.Contains(out, `"event_id"`) {
		t.Error("audit events carry no event_id")
	}
}

func TestCustomKeyPrefix(t *testing.T) {
	keyring.MockInit()
	v := NewVault(NewKeyringStore(testService), "llm", nil, nil)
	if got := v.Key("openai"); got != "llm_openai" {
		t.Errorf("Key = %q", got)
	}
	if err := v.Store(context.Background(), "openai", "k", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := keyring.Get(testService, "llm_openai"); err != nil {
		t.Errorf("entry not found under custom prefix: %v", err)
	}
	if v.Backend() != "keyring" {
		t.Errorf("Backend = %q", v.Backend())
	}
}

func TestCancelledContext(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.Store(ctx, "openai", "k", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Store with cancelled ctx = %v, want context.Canceled", err)
	}
}

func TestInvalidProviderRejected(t *testing.T) {
	v, _ := newKeyringVault(t)
	ctx := context.Background()

	for _, provider := range []string{"open/ai", `open\ai`, "..", "open\nai", "a\x00b"} {
		err := v.Store(ctx, provider, "sk", nil)
		if !errors.Is(err, ErrInvalidProvider) {
			t.Errorf("Store(%q) = %v, want ErrInvalidProvider", provider, err)
		}
		var se *SerializationError
		if !errors.As(err, &se) {
			t.Errorf("Store(%q): expected *SerializationError, got %T", provider, err)
		}
		if _, err := v.Get(ctx, provider); !errors.Is(err, ErrInvalidProvider) {
			t.Errorf("Get(%q) = %v", provider, err)
		}
		if err := v.Delete(ctx, provider); !errors.Is(err, ErrInvalidProvider) {
			t.Errorf("Delete(%q) = %v", provider, err)
		}
	}
	if err := v.Store(ctx, "open-router", "sk", nil); err != nil {
		t.Errorf("hyphenated provider rejected: %v", err)
	}
}
