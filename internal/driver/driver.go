// Package driver defines the connection-handle contract the executor runs
// statements against. Implementations own a single live backend session;
// pooling and transactions stay with the caller.
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/runsql/runsql/internal/statement"
)

// Conn is one backend session. Query issues exactly one statement; no other
// statement may run on the same handle concurrently. Cancel must be safe to
// call from a goroutine other than the one blocked in Query/Rows and must
// deliver a true out-of-band abort to the backend where the protocol
// supports one. A Cancel with no statement in flight is a no-op and must
// not affect later executions.
type Conn interface {
	Query(ctx context.Context, sqlText string, args []any) (Rows, error)
	Cancel(ctx context.Context) error
	Close(ctx context.Context) error

	// BindStyle reports the positional marker dialect of the session.
	BindStyle() statement.BindStyle
}

// Rows is a forward-only, lazily driven result sequence. It is not
// re-enumerable; Close releases the session for reuse.
type Rows interface {
	Columns() []string
	Next() bool
	Values() ([]any, error)
	Err() error
	Close() error
}

type ErrorKind string

const (
	KindSyntax          ErrorKind = "syntax"
	KindUndefinedObject ErrorKind = "undefined_object"
	KindPermission      ErrorKind = "permission"
	KindCancelled       ErrorKind = "cancelled"
	KindOther           ErrorKind = "other"
)

// BackendError carries the backend's own classification of a failure so
// policy gating never collapses distinct causes into one kind.
type BackendError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error [%s/%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error [%s]: %s", e.Kind, e.Message)
}

func (e *BackendError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a backend failure caused by query
// cancellation, so callers can treat it as expected rather than a fault.
func IsCancelled(err error) bool {
	var backendErr *BackendError
	return errors.As(err, &backendErr) && backendErr.Kind == KindCancelled
}
