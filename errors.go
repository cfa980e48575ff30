package bridge

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a backend matches exactly one of them
// with errors.Is.
var (
	ErrConfig              = errors.New("invalid configuration")
	ErrUnsupportedProtocol = errors.New("unsupported protocol")
	ErrUnsupportedBackend  = errors.New("backend not available")
	ErrConnection          = errors.New("connection failed")
	ErrAuthentication      = fmt.Errorf("%w: authentication failed", ErrConnection)
	ErrChangeDirectory     = errors.New("changing directory failed")
	ErrWorkingDirectory    = errors.New("printing working directory failed")
	ErrDownload            = errors.New("download failed")
	ErrUpload              = errors.New("upload failed")
	ErrList                = errors.New("listing directory failed")
	ErrDelete              = errors.New("delete failed")
	ErrRename              = errors.New("rename failed")
	ErrDirectoryOp         = errors.New("directory operation failed")
	ErrNotSupported        = errors.New("operation not supported by backend")
)

var errClosed = errors.New("backend is closed")

// Error records a failed operation, the path or host it was applied to and
// the native error reported by the transport, if any.
type Error struct {
	Op   string
	Path string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += fmt.Sprintf(" '%s'", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the native error to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, path string, kind, err error) *Error {
	return &Error{Op: op, Path: path, Kind: kind, Err: err}
}

func notSupported(op string, kind error, backend string) *Error {
	return newError(op, "", kind, fmt.Errorf("%w: %s", ErrNotSupported, backend))
}
