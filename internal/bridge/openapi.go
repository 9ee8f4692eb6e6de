package bridge

import (
	"encoding/json"
	"net/http"
)

// handleOpenAPI returns the OpenAPI 3.1 schema for the bridge API.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(openapiSpec(s.Addr())) //nolint:errcheck
}

func openapiSpec(addr string) map[string]any {
	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       "EchoV2 Shell Bridge",
			"version":     "0.1.0",
			"description": "Loopback API between the EchoV2 UI and the desktop shell: credential vault and shutdown.",
		},
		"servers": []map[string]any{
			{"url": "http://" + addr, "description": "Local shell"},
		},
		"security": []map[string]any{
			{"bearerAuth": []any{}},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
			"schemas": openapiSchemas(),
		},
		"paths": openapiPaths(),
	}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema map[string]any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": schema}}
}

func response(desc, schema string) map[string]any {
	return map[string]any{"description": desc, "content": jsonContent(ref(schema))}
}

func openapiSchemas() map[string]any {
	str := map[string]any{"type": "string"}
	nullableStr := map[string]any{"type": []string{"string", "null"}}
	return map[string]any{
		"Error": map[string]any{
			"type":       "object",
			"properties": map[string]any{"error": str},
		},
		"HealthResponse": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":  str,
				"backend": map[string]any{"type": "string", "enum": []string{"not_started", "starting", "ready", "failed", "stopped", "unmanaged"}},
				"vault":           str,
				"vault_reachable": map[string]any{"type": "boolean"},
			},
		},
		"StoreCredentialRequest": map[string]any{
			"type":     "object",
			"required": []string{"api_key"},
			"properties": map[string]any{
				"api_key":         str,
				"custom_endpoint": nullableStr,
			},
		},
		"Credential": map[string]any{
			"type":     "object",
			"required": []string{"provider", "api_key", "custom_endpoint"},
			"properties": map[string]any{
				"provider":        str,
				"api_key":         str,
				"custom_endpoint": nullableStr,
			},
		},
		"ListProvidersResponse": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"providers": map[string]any{"type": "array", "items": str},
			},
		},
		"StatusResponse": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"status":   str,
				"provider": str,
			},
		},
	}
}

func vaultErrors(op map[string]any) map[string]any {
	responses := op["responses"].(map[string]any)
	responses["400"] = response("Invalid provider or body", "Error")
	responses["422"] = response("Stored record is unreadable", "Error")
	responses["503"] = response("Secret store unavailable", "Error")
	return op
}

func writeErrors(op map[string]any) map[string]any {
	op["responses"].(map[string]any)["415"] = response("Body is not application/json", "Error")
	return vaultErrors(op)
}

func openapiPaths() map[string]any {
	providerParam := []map[string]any{{
		"name": "provider", "in": "path", "required": true,
		"schema": map[string]any{"type": "string"},
	}}
	storeBody := map[string]any{"required": true, "content": jsonContent(ref("StoreCredentialRequest"))}

	return map[string]any{
		"/health": map[string]any{
			"get": map[string]any{
				"summary":     "Shell liveness and backend state",
				"operationId": "health",
				"security":    []any{},
				"responses":   map[string]any{"200": response("Shell is up", "HealthResponse")},
			},
		},
		"/shutdown": map[string]any{
			"post": map[string]any{
				"summary":     "Stop the backend and exit the shell",
				"operationId": "shutdown",
				"responses":   map[string]any{"202": response("Shutdown started", "StatusResponse")},
			},
		},
		"/credentials": map[string]any{
			"get": vaultErrors(map[string]any{
				"summary":     "List providers with a stored credential",
				"operationId": "listStoredProviders",
				"responses":   map[string]any{"200": response("Providers in catalog order", "ListProvidersResponse")},
			}),
		},
		"/credentials/{provider}": map[string]any{
			"parameters": providerParam,
			"get": vaultErrors(map[string]any{
				"summary":     "Get a provider's credential",
				"operationId": "getCredential",
				"responses": map[string]any{"200": map[string]any{
					"description": "The record, or null when none is stored",
					"content": jsonContent(map[string]any{
						"oneOf": []any{ref("Credential"), map[string]any{"type": "null"}},
					}),
				}},
			}),
			"post": writeErrors(map[string]any{
				"summary":     "Store a provider's credential, replacing any previous one",
				"operationId": "storeCredential",
				"requestBody": storeBody,
				"responses":   map[string]any{"200": response("Stored", "StatusResponse")},
			}),
			"delete": vaultErrors(map[string]any{
				"summary":     "Delete a provider's credential",
				"operationId": "deleteCredential",
				"responses":   map[string]any{"200": response("Deleted or already absent", "StatusResponse")},
			}),
		},
		"/credentials/{provider}/migrate": map[string]any{
			"parameters": providerParam,
			"post": writeErrors(map[string]any{
				"summary":     "Move a credential from legacy plaintext storage into the vault",
				"operationId": "migrateCredential",
				"requestBody": storeBody,
				"responses":   map[string]any{"200": response("Migrated", "StatusResponse")},
			}),
		},
	}
}
