package descriptor

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes why a descriptor failed to load
type ErrorKind int

const (
	KindMalformed     ErrorKind = iota // Required field absent, empty or of the wrong shape
	KindPathNotFound                   // script or interpreter does not resolve
	KindUnwritable                     // Log directory cannot be created or written
	KindDuplicateName                  // Two apps share a name in one ecosystem
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindPathNotFound:
		return "path_not_found"
	case KindUnwritable:
		return "unwritable"
	case KindDuplicateName:
		return "duplicate_name"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. A *ConfigError matches the sentinel of its kind.
var (
	ErrMalformed     = errors.New("malformed descriptor")
	ErrPathNotFound  = errors.New("path not found")
	ErrUnwritable    = errors.New("log directory not writable")
	ErrDuplicateName = errors.New("duplicate app name")
)

// ConfigError wraps a load failure with the app, field and path involved
type ConfigError struct {
	Kind  ErrorKind
	App   string // App name, empty when the name itself is missing
	Field string // Descriptor field, e.g. "script"
	Path  string // Filesystem path involved, if any
	Err   error
}

// Error implements error interface
func (e *ConfigError) Error() string {
	msg := e.Kind.String()
	if e.App != "" {
		msg = fmt.Sprintf("app %q: %s", e.App, msg)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s", e.Field)
		if e.Path != "" {
			msg += "=" + e.Path
		}
		msg += ")"
	} else if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel error of the same kind
func (e *ConfigError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrPathNotFound:
		return e.Kind == KindPathNotFound
	case ErrUnwritable:
		return e.Kind == KindUnwritable
	case ErrDuplicateName:
		return e.Kind == KindDuplicateName
	}
	return false
}

func newError(kind ErrorKind, app, field, path string, err error) *ConfigError {
	return &ConfigError{
		Kind:  kind,
		App:   app,
		Field: field,
		Path:  path,
		Err:   err,
	}
}

// KindOf returns the kind of the first *ConfigError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Kind, true
	}
	return 0, false
}
