package bridge

import (
	"net/http"

	"github.com/echov2/echoshell/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backend := "unmanaged"
	if s.Backend != nil {
		backend = s.Backend.State().String()
	}
	jsonOK(w, api.HealthResponse{
		Status:         "ok",
		Backend:        backend,
		Vault:          s.Vault.Backend(),
		VaultReachable: s.Vault.Reachable(r.Context()),
	})
}

// handleShutdown acknowledges immediately; the stop runs in the background
// and the host exits once the shutdown hook reports done.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.Shutdown == nil {
		jsonErr(w, http.StatusNotImplemented, "shutdown is not managed by this bridge")
		return
	}
	s.Log.Info("shutdown requested over bridge", "remote", r.RemoteAddr)
	s.Shutdown.Trigger(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte(`{"status":"shutting_down"}` + "\n")) //nolint:errcheck
}
