package supervisor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/echov2/echoshell/internal/fault"
)

// ErrStopped is wrapped by the LaunchError returned when Start is called
// after the backend was stopped in this run.
var ErrStopped = errors.New("backend was already stopped in this run")

// ErrExitedEarly is wrapped by the LaunchError returned when the backend
// process exits before it ever became ready.
var ErrExitedEarly = errors.New("backend exited before becoming ready")

// LaunchError reports that the backend executable could not be located or
// spawned. It is fatal to startup.
type LaunchError struct {
	Path   string // executable or script that was being launched
	Output string // tail of the captured backend output, if any
	Err    error
}

func (e *LaunchError) Error() string {
	var sb strings.Builder
	sb.WriteString("launching backend")
	if e.Path != "" {
		fmt.Fprintf(&sb, " %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %s", e.Err)
	}
	if e.Output != "" {
		fmt.Fprintf(&sb, "\nlast backend output:\n%s", e.Output)
	}
	return sb.String()
}

func (e *LaunchError) Unwrap() error      { return e.Err }
func (e *LaunchError) Class() fault.Class { return fault.Fatal }

// ReadinessTimeoutError reports that the backend never answered its health
// endpoint successfully within the attempt budget. It is fatal to startup.
type ReadinessTimeoutError struct {
	URL       string
	Attempts  int
	LastError string // last probe failure, e.g. "HTTP 500" or a dial error
	Err       error  // context error when the wait was cancelled
}

func (e *ReadinessTimeoutError) Error() string {
	msg := fmt.Sprintf("backend at %s not ready after %d attempts", e.URL, e.Attempts)
	if e.LastError != "" {
		msg += " (last: " + e.LastError + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ReadinessTimeoutError) Unwrap() error      { return e.Err }
func (e *ReadinessTimeoutError) Class() fault.Class { return fault.Fatal }
