package engine

import (
	"errors"
	"fmt"

	"github.com/shardctl/shardctl/pkg/manifest"
)

// ErrorClass groups errors by where they come from.
type ErrorClass string

const (
	// ErrorClassConfiguration covers malformed manifests and unusable build sections.
	// Nothing is spawned for these.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassProcess covers non-zero exits and spawn failures of clone and build commands.
	ErrorClassProcess ErrorClass = "process"

	// ErrorClassFilesystem covers failures touching the services root.
	ErrorClassFilesystem ErrorClass = "filesystem"
)

// ErrorKind is the machine-readable error code carried by outcomes.
type ErrorKind string

const (
	KindNoBuildCommand          ErrorKind = "NoBuildCommand"
	KindWorkingDirectoryMissing ErrorKind = "WorkingDirectoryMissing"
	KindNoConfigForService      ErrorKind = "NoConfigForService"
	KindUnknownService          ErrorKind = "UnknownService"
	KindDuplicateService        ErrorKind = "DuplicateService"
	KindInvalidWorkingDirectory ErrorKind = "InvalidWorkingDirectory"
	KindInvalidManifest         ErrorKind = "InvalidManifest"
	KindPolicyViolation         ErrorKind = "PolicyViolation"
	KindCloneFailed             ErrorKind = "CloneFailed"
	KindBuildFailed             ErrorKind = "BuildFailed"
	KindRemoveFailed            ErrorKind = "RemoveFailed"
	KindPathUnavailable         ErrorKind = "PathUnavailable"
	KindCanceled                ErrorKind = "Canceled"
)

// Class returns the class a kind belongs to.
func (k ErrorKind) Class() ErrorClass {
	switch k {
	case KindCloneFailed, KindBuildFailed, KindCanceled:
		return ErrorClassProcess
	case KindRemoveFailed, KindPathUnavailable:
		return ErrorClassFilesystem
	default:
		return ErrorClassConfiguration
	}
}

// Error represents a classified error with service context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Kind is the specific error code.
	Kind ErrorKind `json:"kind"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Service is the service being processed, if any.
	Service string `json:"service,omitempty"`

	// Path is the filesystem path involved, if any.
	Path string `json:"path,omitempty"`

	// ExitCode is the child process exit code, or -1 when no process exited.
	ExitCode int `json:"exit_code"`

	// Output is the captured diagnostic text of the child process.
	Output string `json:"output,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if e.Service != "" {
		msg = fmt.Sprintf("%s (service=%s)", msg, e.Service)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %s", msg, e.Err.Error())
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on class, and on kind when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Class == "" || t.Class == e.Class
}

func newError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Class:    kind.Class(),
		Kind:     kind,
		Message:  message,
		ExitCode: -1,
		Err:      err,
	}
}

// NewConfigurationError creates a configuration error of the given kind.
func NewConfigurationError(kind ErrorKind, message string, err error) *Error {
	e := newError(kind, message, err)
	e.Class = ErrorClassConfiguration
	return e
}

// NewProcessError creates a process error. exitCode is -1 when the process
// never ran or did not exit normally.
func NewProcessError(kind ErrorKind, message string, exitCode int, output string, err error) *Error {
	e := newError(kind, message, err)
	e.Class = ErrorClassProcess
	e.ExitCode = exitCode
	e.Output = output
	return e
}

// NewFilesystemError creates a filesystem error for path.
func NewFilesystemError(kind ErrorKind, message, path string, err error) *Error {
	e := newError(kind, message, err)
	e.Class = ErrorClassFilesystem
	e.Path = path
	return e
}

// WithService adds service context to an error.
func (e *Error) WithService(service string) *Error {
	e.Service = service
	return e
}

// WithPath adds path context to an error.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// KindOf returns the kind of err. Manifest sentinel errors are mapped to
// their configuration kinds. Unclassified errors return "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, manifest.ErrDuplicateService):
		return KindDuplicateService
	case errors.Is(err, manifest.ErrInvalidManifest):
		return KindInvalidManifest
	}
	return ""
}

// ClassOf returns the class of err, or "" for unclassified errors.
func ClassOf(err error) ErrorClass {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	if k := KindOf(err); k != "" {
		return k.Class()
	}
	return ""
}

// IsKind returns true if err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsConfigurationError returns true if the error is a configuration error.
func IsConfigurationError(err error) bool {
	return ClassOf(err) == ErrorClassConfiguration
}

// IsProcessError returns true if the error is a process error.
func IsProcessError(err error) bool {
	return ClassOf(err) == ErrorClassProcess
}

// IsFilesystemError returns true if the error is a filesystem error.
func IsFilesystemError(err error) bool {
	return ClassOf(err) == ErrorClassFilesystem
}
