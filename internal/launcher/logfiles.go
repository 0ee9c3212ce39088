package launcher

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/psantana5/ecolaunch/pkg/descriptor"
)

// lockedWriter serializes writes from the stdout and stderr copiers into
// the shared combined log
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}

// logFiles holds the three destinations of one launch
type logFiles struct {
	files  []*os.File
	stdout io.Writer
	stderr io.Writer
}

// openLogs opens the spec's log targets for append. A path used for more
// than one target is opened once.
func openLogs(spec descriptor.SpawnSpec) (*logFiles, error) {
	lf := &logFiles{}
	byPath := make(map[string]io.Writer, 3)

	open := func(path string) (io.Writer, error) {
		if w, ok := byPath[path]; ok {
			return w, nil
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		lf.files = append(lf.files, f)
		w := &lockedWriter{w: f}
		byPath[path] = w
		return w, nil
	}

	combined, err := open(spec.CombinedLog)
	if err != nil {
		return nil, err
	}
	out, err := open(spec.Stdout)
	if err != nil {
		lf.Close()
		return nil, err
	}
	errOut, err := open(spec.Stderr)
	if err != nil {
		lf.Close()
		return nil, err
	}

	lf.stdout = tee(out, combined)
	lf.stderr = tee(errOut, combined)
	return lf, nil
}

func tee(primary, combined io.Writer) io.Writer {
	if primary == combined {
		return primary
	}
	return io.MultiWriter(primary, combined)
}

// Close closes every opened file
func (lf *logFiles) Close() error {
	var errs []error
	for _, f := range lf.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
