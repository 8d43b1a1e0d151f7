package provider

import (
	"errors"
	"fmt"
)

// Sentinel error kinds for failed uploads. A *TransferError matches its kind
// with errors.Is, e.g. errors.Is(err, ErrAuthFailed).
var (
	// ErrConfigInvalid indicates the destination cannot be used as configured.
	// It is raised before any network call is made.
	ErrConfigInvalid = errors.New("invalid destination configuration")

	// ErrConnectFailed indicates a transport failure: dial, handshake, or a
	// connection lost mid-stream.
	ErrConnectFailed = errors.New("connection failed")

	// ErrAuthFailed indicates the remote refused the credentials.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRemoteRejected indicates the remote answered but refused the operation,
	// such as a missing bucket or denied access.
	ErrRemoteRejected = errors.New("rejected by remote")

	// ErrLocalIO indicates the local file could not be opened or read.
	ErrLocalIO = errors.New("local file i/o failed")

	// ErrDirectoryCreate indicates a remote directory could not be created.
	ErrDirectoryCreate = errors.New("remote directory creation failed")
)

var kinds = []error{
	ErrConfigInvalid,
	ErrConnectFailed,
	ErrAuthFailed,
	ErrRemoteRejected,
	ErrLocalIO,
	ErrDirectoryCreate,
}

// TransferError describes a failed upload of one file.
type TransferError struct {
	// Kind is one of the sentinel kinds above.
	Kind error
	// Op is the step that failed (e.g. "connect", "mkdir", "put").
	Op string
	// Destination is the configured destination name.
	Destination string
	// Path is the local or remote path involved, if any.
	Path string
	// Err is the underlying cause.
	Err error
}

func newError(kind error, op, dest, path string, err error) *TransferError {
	return &TransferError{Kind: kind, Op: op, Destination: dest, Path: path, Err: err}
}

func (e *TransferError) Error() string {
	msg := e.Kind.Error()
	if e.Destination != "" {
		msg = fmt.Sprintf("%s: %s", e.Destination, msg)
	}
	if e.Path != "" {
		msg = fmt.Sprintf("%s (%s %s)", msg, e.Op, e.Path)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Op)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *TransferError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the sentinel kind carried by err, or nil.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
