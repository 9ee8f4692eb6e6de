// Package supervisor launches the local backend service, waits for it to
// answer its health endpoint, and reaps it at shutdown.
//
// A Supervisor owns at most one backend process per run. Its lifecycle is
//
//	NotStarted → Starting → Ready | Failed
//	Ready | Failed → Stopped (when a live process is stopped)
//
// and never returns to Starting once it has left NotStarted.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/echov2/echoshell/internal/config"
)

// State is a position in the supervisor lifecycle.
type State int

const (
	NotStarted State = iota
	Starting
	Ready
	Failed
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Resolver finds the backend command line.
type Resolver interface {
	Resolve() (*LaunchSpec, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func() (*LaunchSpec, error)

func (f ResolverFunc) Resolve() (*LaunchSpec, error) { return f() }

// Options tunes readiness polling and shutdown.
type Options struct {
	HealthURL     string
	ReadyAttempts int           // probes before giving up, default 30
	ReadyInterval time.Duration // pause between probes, default 1s
	ProbeTimeout  time.Duration // per-probe HTTP timeout, default 2s
	StopGrace     time.Duration // SIGTERM → SIGKILL delay, default 5s
	LogFile       string        // optional file receiving backend output
}

// OptionsFromConfig converts the backend section of shell.yaml.
func OptionsFromConfig(cfg config.BackendConfig) Options {
	return Options{
		HealthURL:     cfg.HealthURL,
		ReadyAttempts: cfg.ReadyAttempts,
		ReadyInterval: cfg.ReadyIntervalDuration(),
		ProbeTimeout:  cfg.ProbeTimeoutDuration(),
		StopGrace:     cfg.StopGraceDuration(),
		LogFile:       cfg.LogFile,
	}
}

func (o *Options) applyDefaults() {
	if o.ReadyAttempts <= 0 {
		o.ReadyAttempts = 30
	}
	if o.ReadyInterval <= 0 {
		o.ReadyInterval = time.Second
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = 2 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
}

// process is the live backend handle.
type process struct {
	path    string
	cmd     *exec.Cmd
	output  *outputTail
	logFile *os.File
	done    chan struct{} // closed once the OS has reaped the process
	waitErr error         // valid after done is closed
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Supervisor starts and stops exactly one backend process.
type Supervisor struct {
	mu        sync.Mutex
	state     State
	proc      *process
	startDone chan struct{} // closed when an in-flight Start resolves
	startErr  error

	resolver Resolver
	opts     Options
	prober   *prober
	log      *slog.Logger
}

// New creates a Supervisor from the backend section of shell.yaml.
func New(cfg config.BackendConfig, logger *slog.Logger) *Supervisor {
	return NewWithResolver(NewLocator(cfg), OptionsFromConfig(cfg), logger)
}

// NewWithResolver creates a Supervisor with an explicit launch resolver.
func NewWithResolver(r Resolver, opts Options, logger *slog.Logger) *Supervisor {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		resolver: r,
		opts:     opts,
		prober:   newProber(opts.HealthURL, opts.ProbeTimeout),
		log:      logger,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the live backend's process id, or 0 when none is live.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil || s.proc.cmd.Process == nil {
		return 0
	}
	return s.proc.cmd.Process.Pid
}

// Start launches the backend and blocks until it is ready. Calling Start
// again after success is a no-op; calling it while a start is in flight
// waits for that start and returns its result. Failures are *LaunchError or
// *ReadinessTimeoutError. A failed or stopped supervisor never relaunches.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case Ready:
		s.mu.Unlock()
		return nil
	case Starting:
		done := s.startDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.startErr
	case Failed:
		err := s.startErr
		s.mu.Unlock()
		return err
	case Stopped:
		s.mu.Unlock()
		return &LaunchError{Err: ErrStopped}
	}

	spec, err := s.resolver.Resolve()
	var proc *process
	if err == nil {
		proc, err = s.spawn(spec)
	}
	if err != nil {
		s.state = Failed
		s.startErr = err
		s.mu.Unlock()
		s.log.Error("backend launch failed", "error", err)
		return err
	}

	s.proc = proc
	s.state = Starting
	s.startDone = make(chan struct{})
	done := s.startDone
	s.mu.Unlock()

	s.log.Info("backend launched", "path", spec.Path, "dir", spec.Dir, "pid", proc.cmd.Process.Pid)
	err = s.waitForReady(ctx, proc)

	s.mu.Lock()
	if err != nil {
		s.state = Failed
		s.startErr = err
	} else {
		s.state = Ready
	}
	close(done)
	s.mu.Unlock()
	return err
}

// WaitForReady polls the health endpoint until it answers 2xx or the attempt
// budget is spent. It fails with *ReadinessTimeoutError after exactly
// ReadyAttempts probes.
func (s *Supervisor) WaitForReady(ctx context.Context) error {
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	return s.waitForReady(ctx, proc)
}

func (s *Supervisor) waitForReady(ctx context.Context, proc *process) error {
	var exited <-chan struct{}
	if proc != nil {
		exited = proc.done
	}

	var last string
	for attempt := 1; attempt <= s.opts.ReadyAttempts; attempt++ {
		ok, msg := s.prober.probe(ctx)
		if ok {
			s.log.Info("backend is ready", "url", s.opts.HealthURL, "attempts", attempt)
			return nil
		}
		last = msg
		s.log.Debug("backend not ready", "attempt", attempt, "error", msg)
		if attempt == s.opts.ReadyAttempts {
			break
		}

		timer := time.NewTimer(s.opts.ReadyInterval)
		select {
		case <-timer.C:
		case <-exited:
			timer.Stop()
			return &LaunchError{
				Path:   proc.path,
				Output: proc.output.String(),
				Err:    fmt.Errorf("%w (%s)", ErrExitedEarly, exitDescription(proc.waitErr)),
			}
		case <-ctx.Done():
			timer.Stop()
			return &ReadinessTimeoutError{URL: s.opts.HealthURL, Attempts: attempt, LastError: last, Err: ctx.Err()}
		}
	}
	return &ReadinessTimeoutError{URL: s.opts.HealthURL, Attempts: s.opts.ReadyAttempts, LastError: last}
}

// Stop terminates the live backend and blocks until it has been reaped.
// It is a no-op when no backend is live. A Stop issued during Start waits
// for the start to resolve first.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	for s.state == Starting {
		done := s.startDone
		s.mu.Unlock()
		<-done
		s.mu.Lock()
	}

	proc := s.proc
	if proc == nil {
		s.mu.Unlock()
		return nil
	}
	s.proc = nil
	s.state = Stopped
	// The handle is detached, so no other caller can reach this process.
	s.mu.Unlock()

	pid := proc.cmd.Process.Pid
	s.log.Info("stopping backend", "pid", pid)
	if err := s.terminate(ctx, proc); err != nil {
		return err
	}
	s.log.Info("backend stopped", "pid", pid, "exit", exitDescription(proc.waitErr))
	return nil
}

// terminate signals the process group, escalating to a kill after the
// grace period, and always waits for the reap.
func (s *Supervisor) terminate(ctx context.Context, proc *process) error {
	if proc.exited() {
		return nil
	}
	if err := terminateProcess(proc.cmd.Process); err != nil {
		s.log.Warn("terminate signal failed, killing backend", "error", err)
		if kerr := killProcess(proc.cmd.Process); kerr != nil {
			return fmt.Errorf("killing backend: %w", kerr)
		}
	}

	grace := time.NewTimer(s.opts.StopGrace)
	defer grace.Stop()
	select {
	case <-proc.done:
		return nil
	case <-grace.C:
		s.log.Warn("backend ignored terminate signal, killing", "grace", s.opts.StopGrace)
	case <-ctx.Done():
		s.log.Warn("stop deadline reached, killing backend")
	}
	if err := killProcess(proc.cmd.Process); err != nil {
		return fmt.Errorf("killing backend: %w", err)
	}
	<-proc.done
	return nil
}

// spawn starts the backend with its output captured.
func (s *Supervisor) spawn(spec *LaunchSpec) (*process, error) {
	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	// Grandchildren holding the pipes must not block the reap forever.
	cmd.WaitDelay = 2 * time.Second
	setProcessGroup(cmd)

	proc := &process{
		path:   spec.Path,
		cmd:    cmd,
		output: newOutputTail(64),
		done:   make(chan struct{}),
	}

	var sink io.Writer = proc.output
	if s.opts.LogFile != "" {
		f, err := os.OpenFile(s.opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, &LaunchError{Path: spec.Path, Err: fmt.Errorf("opening backend log: %w", err)}
		}
		proc.logFile = f
		sink = io.MultiWriter(proc.output, f)
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		if proc.logFile != nil {
			proc.logFile.Close()
		}
		return nil, &LaunchError{Path: spec.Path, Err: err}
	}

	go func() {
		proc.waitErr = cmd.Wait()
		if proc.logFile != nil {
			proc.logFile.Close()
		}
		close(proc.done)
	}()
	return proc, nil
}

func exitDescription(err error) string {
	if err == nil {
		return "exit status 0"
	}
	return err.Error()
}
