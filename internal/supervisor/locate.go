package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sort"

	"github.com/echov2/echoshell/internal/config"
)

// LaunchSpec is a fully resolved backend command line.
type LaunchSpec struct {
	Path string   `json:"path"`           // executable passed to exec
	Args []string `json:"args,omitempty"` // arguments after Path
	Dir  string   `json:"dir,omitempty"`  // working directory, empty for the shell's own
	Env  []string `json:"-"`              // extra KEY=VALUE pairs appended to the inherited environment
}

// Locator resolves where the backend lives for the configured run mode.
type Locator struct {
	Mode        string
	Executable  string // packaged: sibling executable name
	Interpreter string // development: interpreter looked up on PATH
	Script      string // development: entry point relative to Dir
	Dir         string // development: backend source directory
	Env         map[string]string

	// Overridable for tests.
	hostExecutable func() (string, error)
	lookPath       func(string) (string, error)
}

// NewLocator builds a Locator from the backend section of shell.yaml.
func NewLocator(cfg config.BackendConfig) *Locator {
	return &Locator{
		Mode:           cfg.Mode,
		Executable:     cfg.Packaged.Executable,
		Interpreter:    cfg.Development.Interpreter,
		Script:         cfg.Development.Script,
		Dir:            cfg.Development.Dir,
		Env:            cfg.Env,
		hostExecutable: hostExecutable,
		lookPath:       exec.LookPath,
	}
}

// Resolve returns the launch spec for the current mode, or a *LaunchError
// when the backend cannot be found.
func (l *Locator) Resolve() (*LaunchSpec, error) {
	var spec *LaunchSpec
	var err error
	switch l.Mode {
	case config.ModeDevelopment:
		spec, err = l.resolveDevelopment()
	case config.ModePackaged, "":
		spec, err = l.resolvePackaged()
	default:
		return nil, &LaunchError{Err: fmt.Errorf("unknown backend mode %q", l.Mode)}
	}
	if err != nil {
		return nil, err
	}
	spec.Env = envPairs(l.Env)
	return spec, nil
}

func (l *Locator) resolvePackaged() (*LaunchSpec, error) {
	exe, err := l.hostExecutable()
	if err != nil {
		return nil, &LaunchError{Err: fmt.Errorf("locating host executable: %w", err)}
	}
	name := l.Executable
	if goruntime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}
	path := filepath.Join(filepath.Dir(exe), name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, &LaunchError{Path: path, Err: fmt.Errorf("backend executable not found: %w", err)}
	}
	if info.IsDir() {
		return nil, &LaunchError{Path: path, Err: fmt.Errorf("backend executable is a directory")}
	}
	return &LaunchSpec{Path: path, Dir: filepath.Dir(path)}, nil
}

func (l *Locator) resolveDevelopment() (*LaunchSpec, error) {
	dir := l.Dir
	if dir == "" {
		exe, err := l.hostExecutable()
		if err != nil {
			return nil, &LaunchError{Err: fmt.Errorf("locating host executable: %w", err)}
		}
		dir = legacyBackendDir(exe)
	}

	script := filepath.Join(dir, l.Script)
	if _, err := os.Stat(script); err != nil {
		return nil, &LaunchError{Path: script, Err: fmt.Errorf("backend script not found (set backend.development.dir): %w", err)}
	}

	interp, err := l.lookPath(l.Interpreter)
	if err != nil {
		return nil, &LaunchError{Path: l.Interpreter, Err: fmt.Errorf("interpreter not found: %w", err)}
	}
	return &LaunchSpec{Path: interp, Args: []string{l.Script}, Dir: dir}, nil
}

// legacyBackendDir reproduces the historical layout where the backend
// sources sit three levels above a debug build of the host binary.
func legacyBackendDir(exe string) string {
	dir := exe
	for range 3 {
		dir = filepath.Dir(dir)
	}
	return filepath.Join(dir, "backend")
}

func hostExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// envPairs converts a map to sorted KEY=VALUE pairs.
func envPairs(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	pairs := make([]string, 0, len(env))
	for k, v := range env {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return pairs
}
