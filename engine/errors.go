package engine

import (
	"errors"
	"fmt"
)

// Resolution error kinds. A *ResolveError matches its kind with errors.Is.
var (
	ErrNotFound    = errors.New("source not found")
	ErrUnsupported = errors.New("unsupported source type")
	ErrGlobSyntax  = errors.New("malformed glob pattern")
)

// ResolveError reports why a source argument produced no file set.
// It aborts the whole invocation.
type ResolveError struct {
	Kind error
	Spec string
	Err  error
}

func (e *ResolveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Spec)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Spec, e.Err)
}

func (e *ResolveError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
