package credentials

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// LegacyFile is the plaintext KEY=VALUE credential file written by releases
// that kept API keys outside the OS secret store. It is only ever read from
// and drained; nothing new is written to it.
//
//	OPENAI_API_KEY=sk-...
//	OPENAI_CUSTOM_ENDPOINT=https://proxy.internal/v1
type LegacyFile struct {
	Path string
	mu   sync.Mutex
}

// OpenLegacyFile returns a handle for the legacy file at path.
func OpenLegacyFile(path string) *LegacyFile {
	return &LegacyFile{Path: path}
}

// Records returns a record for every catalog provider with an API key in
// the file. A missing file yields no records.
func (f *LegacyFile) Records() ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, provider := range catalog {
		key, ok := entries[legacyKey(provider, "API_KEY")]
		if !ok || key == "" {
			continue
		}
		rec := Record{Provider: provider, APIKey: key}
		if ep, ok := entries[legacyKey(provider, "CUSTOM_ENDPOINT")]; ok && ep != "" {
			rec.CustomEndpoint = &ep
		}
		records = append(records, rec)
	}
	return records, nil
}

// Remove drops provider's entries from the file. The file is deleted once
// it holds nothing else.
func (f *LegacyFile) Remove(provider string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	delete(entries, legacyKey(provider, "API_KEY"))
	delete(entries, legacyKey(provider, "CUSTOM_ENDPOINT"))
	if len(entries) == 0 {
		return os.Remove(f.Path)
	}
	return f.save(entries)
}

// load parses the file into key=value pairs.
func (f *LegacyFile) load() (map[string]string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]string)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		if idx := strings.IndexByte(line, '='); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			entries[key] = unquote(strings.TrimSpace(line[idx+1:]))
		}
	}
	return entries, nil
}

// save writes the remaining pairs back, keeping the file private.
func (f *LegacyFile) save(entries map[string]string) error {
	var keys []string
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s=%s\n", k, entries[k])
	}
	return os.WriteFile(f.Path, []byte(sb.String()), 0600)
}

func unquote(v string) string {
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		return v[1 : len(v)-1]
	}
	return v
}

// legacyKey converts a provider id and suffix to an env-style key.
// ("open-router", "API_KEY") → "OPEN_ROUTER_API_KEY"
func legacyKey(provider, suffix string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_" + suffix
}
