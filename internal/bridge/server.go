// Package bridge serves the loopback HTTP API the UI uses to reach the
// credential vault and to request shell shutdown.
package bridge

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/echov2/echoshell/internal/config"
	"github.com/echov2/echoshell/internal/credentials"
	"github.com/echov2/echoshell/internal/supervisor"
)

// Vault is the credential surface the bridge exposes.
type Vault interface {
	Store(ctx context.Context, provider, secret string, endpoint *string) error
	Migrate(ctx context.Context, provider, secret string, endpoint *string) error
	Get(ctx context.Context, provider string) (*credentials.Record, error)
	Delete(ctx context.Context, provider string) error
	ListStoredProviders(ctx context.Context) ([]string, error)
	Backend() string
	Reachable(ctx context.Context) bool
}

// BackendState reports the supervised backend's lifecycle state.
type BackendState interface {
	State() supervisor.State
}

// Shutdowner is asked to begin shell shutdown without blocking the request.
type Shutdowner interface {
	Trigger(ctx context.Context)
}

// Server is the shell bridge.
type Server struct {
	Vault    Vault
	Backend  BackendState
	Shutdown Shutdowner
	Cfg      config.BridgeConfig
	Log      *slog.Logger
}

// New creates a bridge Server. backend and shutdown may be nil when the
// bridge runs without a supervised backend. Without a configured api_key a
// random per-process token is generated; read it back with Token.
func New(cfg config.BridgeConfig, vault Vault, backend BackendState, shutdown Shutdowner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		cfg.APIKey = rand.Text()
	}
	return &Server{Vault: vault, Backend: backend, Shutdown: shutdown, Cfg: cfg, Log: logger}
}

// Handler returns the HTTP handler for the bridge API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)

	mux.HandleFunc("GET /credentials", s.handleCredentialsList)
	mux.HandleFunc("GET /credentials/{provider}", s.handleCredentialGet)
	mux.HandleFunc("POST /credentials/{provider}", s.handleCredentialStore)
	mux.HandleFunc("DELETE /credentials/{provider}", s.handleCredentialDelete)
	mux.HandleFunc("POST /credentials/{provider}/migrate", s.handleCredentialMigrate)

	return recoveryMiddleware(
		hostMiddleware(
			corsMiddleware(
				authMiddleware(
					loggingMiddleware(mux, s.Log),
					s.Cfg.APIKey, s.Log,
				),
				s.Cfg.CORSOrigins,
			),
			s.Cfg.BindAddress, s.Log,
		),
		s.Log,
	)
}

// Token returns the bearer token clients must present.
func (s *Server) Token() string { return s.Cfg.APIKey }

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	bind := s.Cfg.BindAddress
	if bind == "" {
		bind = "127.0.0.1"
	}
	return net.JoinHostPort(bind, strconv.Itoa(s.Cfg.Port))
}

// Start serves the bridge on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.Log.Info("bridge started", "addr", addr, "vault", s.Vault.Backend())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// jsonOK writes a JSON 200 response.
func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// jsonErr writes a JSON error response.
func jsonErr(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg}) //nolint:errcheck
}
