// Package api defines request/response types shared between the CLI and the
// shell bridge.
package api

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string `json:"status"`
	Backend        string `json:"backend"`
	Vault          string `json:"vault"`
	VaultReachable bool   `json:"vault_reachable"`
}

// StoreCredentialRequest is sent to POST /credentials/{provider} and
// POST /credentials/{provider}/migrate.
type StoreCredentialRequest struct {
	APIKey         string  `json:"api_key"`
	CustomEndpoint *string `json:"custom_endpoint,omitempty"`
}

// CredentialResponse is returned by GET /credentials/{provider}. The body is
// JSON null when nothing is stored.
type CredentialResponse struct {
	Provider       string  `json:"provider"`
	APIKey         string  `json:"api_key"`
	CustomEndpoint *string `json:"custom_endpoint"`
}

// ListProvidersResponse is returned by GET /credentials.
type ListProvidersResponse struct {
	Providers []string `json:"providers"`
}

// StatusResponse acknowledges a mutation.
type StatusResponse struct {
	Status   string `json:"status"`
	Provider string `json:"provider,omitempty"`
}
