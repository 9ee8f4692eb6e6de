// Package lifecycle runs the shell's shutdown sequence exactly once,
// whichever of the signal handler, the bridge or a failed startup asks first.
package lifecycle

import (
	"context"
	"log/slog"
	"sync"
)

// Stopper is anything with a blocking, context-bounded stop.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Hook wraps a Stopper so that concurrent and repeated shutdown requests
// share a single stop.
type Hook struct {
	target Stopper
	log    *slog.Logger

	once sync.Once
	done chan struct{}
	err  error
}

// NewHook creates a shutdown hook for target.
func NewHook(target Stopper, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hook{target: target, log: logger, done: make(chan struct{})}
}

// Shutdown stops the target on the first call and blocks until it has
// stopped. Every call returns the first call's result.
func (h *Hook) Shutdown(ctx context.Context) error {
	h.once.Do(func() {
		h.log.Info("shutdown requested")
		h.err = h.target.Stop(ctx)
		if h.err != nil {
			h.log.Error("shutdown finished with error", "error", h.err)
		}
		close(h.done)
	})
	<-h.done
	return h.err
}

// Trigger starts the shutdown in the background and returns immediately.
func (h *Hook) Trigger(ctx context.Context) {
	go h.Shutdown(context.WithoutCancel(ctx)) //nolint:errcheck
}

// Done is closed once the stop has completed.
func (h *Hook) Done() <-chan struct{} { return h.done }
