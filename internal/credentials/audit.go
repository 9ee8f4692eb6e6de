package credentials

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Audit records credential mutations by provider id only.
type Audit struct {
	log *slog.Logger
}

// NewAudit writes audit events through logger.
func NewAudit(logger *slog.Logger) *Audit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Audit{log: logger.With("component", "credential-audit")}
}

// OpenAuditFile appends JSON-lines audit events to path (chmod 600).
func OpenAuditFile(path string) (*Audit, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, nil, fmt.Errorf("creating audit log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit log: %w", err)
	}
	return NewAudit(slog.New(slog.NewJSONHandler(f, nil))), f, nil
}

// Record emits one audit event and returns its id.
func (a *Audit) Record(op, provider, backend string) string {
	id := uuid.NewString()
	a.log.Info("credential "+op, "event_id", id, "op", op, "provider", provider, "backend", backend)
	return id
}
