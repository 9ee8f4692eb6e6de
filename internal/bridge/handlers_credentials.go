package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/echov2/echoshell/api"
	"github.com/echov2/echoshell/internal/credentials"
)

// writeVaultErr maps vault failures onto HTTP status codes. Messages come
// from the typed errors, which never carry secret material.
func (s *Server) writeVaultErr(w http.ResponseWriter, provider string, err error) {
	var (
		ser *credentials.SerializationError
		de  *credentials.DeserializationError
		sae *credentials.StoreAccessError
	)
	code := http.StatusInternalServerError
	switch {
	case errors.As(err, &ser):
		code = http.StatusBadRequest
	case errors.As(err, &de):
		code = http.StatusUnprocessableEntity
	case errors.As(err, &sae):
		code = http.StatusServiceUnavailable
	}
	s.Log.Warn("vault operation failed", "provider", provider, "status", code, "error", err)
	jsonErr(w, code, err.Error())
}

// errUnsupportedMediaType marks a write whose body is not declared as JSON.
// Browsers send text/plain cross-origin without a preflight.
var errUnsupportedMediaType = errors.New("content type must be application/json")

func decodeStoreRequest(w http.ResponseWriter, r *http.Request) (*api.StoreCredentialRequest, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "application/json" {
		return nil, errUnsupportedMediaType
	}
	var body api.StoreCredentialRequest
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &body, nil
}

func (s *Server) handleCredentialsList(w http.ResponseWriter, r *http.Request) {
	providers, err := s.Vault.ListStoredProviders(r.Context())
	if err != nil {
		s.writeVaultErr(w, "", err)
		return
	}
	jsonOK(w, api.ListProvidersResponse{Providers: providers})
}

// handleCredentialGet returns the full record, or JSON null when none is
// stored. This is the one response that carries a secret back to the UI.
func (s *Server) handleCredentialGet(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	rec, err := s.Vault.Get(r.Context(), provider)
	if err != nil {
		s.writeVaultErr(w, provider, err)
		return
	}
	if rec == nil {
		jsonOK(w, nil)
		return
	}
	jsonOK(w, api.CredentialResponse{
		Provider:       rec.Provider,
		APIKey:         rec.APIKey,
		CustomEndpoint: rec.CustomEndpoint,
	})
}

func (s *Server) handleCredentialStore(w http.ResponseWriter, r *http.Request) {
	s.handlePut(w, r, s.Vault.Store)
}

func (s *Server) handleCredentialMigrate(w http.ResponseWriter, r *http.Request) {
	s.handlePut(w, r, s.Vault.Migrate)
}

type putFunc func(ctx context.Context, provider, secret string, endpoint *string) error

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request, put putFunc) {
	provider := r.PathValue("provider")
	body, err := decodeStoreRequest(w, r)
	if errors.Is(err, errUnsupportedMediaType) {
		jsonErr(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := put(r.Context(), provider, body.APIKey, body.CustomEndpoint); err != nil {
		s.writeVaultErr(w, provider, err)
		return
	}
	jsonOK(w, api.StatusResponse{Status: "ok", Provider: provider})
}

func (s *Server) handleCredentialDelete(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	if err := s.Vault.Delete(r.Context(), provider); err != nil {
		s.writeVaultErr(w, provider, err)
		return
	}
	jsonOK(w, api.StatusResponse{Status: "ok", Provider: provider})
}
