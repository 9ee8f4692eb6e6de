package credentials

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// catalog is the closed set of providers probed by ListStoredProviders.
// The secret store has no listing primitive, so a record stored under any
// other provider id is never reported.
var catalog = [...]string{"openai", "anthropic", "google", "ollama"}

// Catalog returns the known provider identifiers in probe order.
func Catalog() []string {
	return append([]string(nil), catalog[:]...)
}

// Record is one provider's stored credential.
type Record struct {
	Provider       string  `json:"provider"`
	APIKey         string  `json:"api_key"`
	CustomEndpoint *string `json:"custom_endpoint"`
}

// String redacts the secret so a Record can never leak through %v.
func (r Record) String() string {
	endpoint := "<none>"
	if r.CustomEndpoint != nil {
		endpoint = *r.CustomEndpoint
	}
	return fmt.Sprintf("Record{Provider:%s APIKey:<redacted> CustomEndpoint:%s}", r.Provider, endpoint)
}

// GoString redacts the secret for %#v.
func (r Record) GoString() string { return r.String() }

// LogValue redacts the secret when a Record is passed to slog.
func (r Record) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("provider", r.Provider)}
	if r.CustomEndpoint != nil {
		attrs = append(attrs, slog.String("custom_endpoint", *r.CustomEndpoint))
	}
	return slog.GroupValue(attrs...)
}

func encodeRecord(r Record) (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRecord(payload string) (*Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, err
	}
	return &r, nil
}
