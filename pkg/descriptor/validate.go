package descriptor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Options control how much of a descriptor is checked against the host
type Options struct {
	// DeferPathChecks skips filesystem checks (script, interpreter, log
	// directories). The launcher re-validates before spawning.
	DeferPathChecks bool

	// CreateLogDirs creates missing log directories instead of failing
	CreateLogDirs bool

	// BaseDir resolves relative paths; empty leaves them untouched
	BaseDir string
}

// Option configures Options
type Option func(*Options)

// WithDeferredPathChecks postpones filesystem checks to spawn time
func WithDeferredPathChecks() Option {
	return func(o *Options) { o.DeferPathChecks = true }
}

// WithoutCreateLogDirs reports missing log directories as Unwritable
func WithoutCreateLogDirs() Option {
	return func(o *Options) { o.CreateLogDirs = false }
}

// WithBaseDir resolves relative script, log and cwd paths against dir
func WithBaseDir(dir string) Option {
	return func(o *Options) { o.BaseDir = dir }
}

func buildOptions(opts []Option) Options {
	o := Options{CreateLogDirs: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Validate checks the descriptor. Field checks always run; filesystem
// checks run unless deferred.
func (d LaunchDescriptor) Validate(opts ...Option) error {
	o := buildOptions(opts)

	if err := d.validateFields(); err != nil {
		return err
	}
	if o.DeferPathChecks {
		return nil
	}
	if err := d.validateExecutables(); err != nil {
		return err
	}
	if err := d.validateCwd(); err != nil {
		return err
	}
	return d.validateLogDirs(o.CreateLogDirs)
}

func (d LaunchDescriptor) validateFields() error {
	if strings.TrimSpace(d.Name) == "" {
		return newError(KindMalformed, "", "name", "", errors.New("must not be empty"))
	}

	required := []struct {
		field string
		value string
	}{
		{"script", d.Script},
		{"interpreter", d.Interpreter},
		{"log_file", d.LogFile},
		{"out_file", d.OutFile},
		{"error_file", d.ErrorFile},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return newError(KindMalformed, d.Name, r.field, "", errors.New("must not be empty"))
		}
	}

	if _, err := SplitArgs(d.Args); err != nil {
		return newError(KindMalformed, d.Name, "args", "", err)
	}

	for k := range d.Env {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			return newError(KindMalformed, d.Name, "env", "", fmt.Errorf("invalid variable name %q", k))
		}
	}

	return nil
}

func (d LaunchDescriptor) validateExecutables() error {
	if d.Interpreter == InterpreterNone {
		return checkExecutable(d.Name, "script", d.Script)
	}

	if err := checkExists(d.Name, "script", d.Script); err != nil {
		return err
	}

	interpreter := d.Interpreter
	if !strings.ContainsRune(interpreter, filepath.Separator) {
		resolved, err := exec.LookPath(interpreter)
		if err != nil {
			return newError(KindPathNotFound, d.Name, "interpreter", interpreter, err)
		}
		interpreter = resolved
	}
	return checkExecutable(d.Name, "interpreter", interpreter)
}

// validateCwd checks the optional working directory
func (d LaunchDescriptor) validateCwd() error {
	if d.Cwd == "" {
		return nil
	}
	info, err := os.Stat(d.Cwd)
	if err != nil {
		return newError(KindPathNotFound, d.Name, "cwd", d.Cwd, err)
	}
	if !info.IsDir() {
		return newError(KindPathNotFound, d.Name, "cwd", d.Cwd, errors.New("not a directory"))
	}
	return nil
}

func checkExists(app, field, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return newError(KindPathNotFound, app, field, path, err)
	}
	if info.IsDir() {
		return newError(KindPathNotFound, app, field, path, errors.New("is a directory"))
	}
	return nil
}

func checkExecutable(app, field, path string) error {
	if err := checkExists(app, field, path); err != nil {
		return err
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return newError(KindPathNotFound, app, field, path, fmt.Errorf("not executable: %w", err))
	}
	return nil
}

func (d LaunchDescriptor) validateLogDirs(create bool) error {
	fields := []string{"log_file", "out_file", "error_file"}
	for i, path := range d.LogFiles() {
		if err := checkLogPath(d.Name, fields[i], path, create); err != nil {
			return err
		}
	}
	return nil
}

func checkLogPath(app, field, path string, create bool) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return newError(KindUnwritable, app, field, path, errors.New("is a directory"))
	}

	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return newError(KindUnwritable, app, field, path, fmt.Errorf("%s is not a directory", dir))
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return newError(KindUnwritable, app, field, path, err)
	case err != nil && !create:
		return newError(KindUnwritable, app, field, path, fmt.Errorf("directory %s does not exist", dir))
	case err != nil:
		if err := os.MkdirAll(dir, 0755); err != nil {
			return newError(KindUnwritable, app, field, path, fmt.Errorf("failed to create log directory: %w", err))
		}
	}

	if err := unix.Access(dir, unix.W_OK); err != nil {
		return newError(KindUnwritable, app, field, path, err)
	}
	return nil
}

// resolve returns a copy with relative paths joined to baseDir.
// The interpreter is left alone when it is a bare command name.
func (d LaunchDescriptor) resolve(baseDir string) LaunchDescriptor {
	if baseDir == "" {
		return d
	}
	join := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}

	d.Script = join(d.Script)
	if d.Interpreter != InterpreterNone && strings.ContainsRune(d.Interpreter, filepath.Separator) {
		d.Interpreter = join(d.Interpreter)
	}
	d.LogFile = join(d.LogFile)
	d.OutFile = join(d.OutFile)
	d.ErrorFile = join(d.ErrorFile)
	d.Cwd = join(d.Cwd)
	return d
}
