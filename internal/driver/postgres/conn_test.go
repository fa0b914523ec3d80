package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/runsql/runsql/internal/driver"
)

func TestClassifySQLStates(t *testing.T) {
	tests := []struct {
		code string
		want driver.ErrorKind
	}{
		{code: "57014", want: driver.KindCancelled},
		{code: "42601", want: driver.KindSyntax},
		{code: "42P01", want: driver.KindUndefinedObject},
		{code: "42703", want: driver.KindUndefinedObject},
		{code: "42883", want: driver.KindUndefinedObject},
		{code: "42501", want: driver.KindPermission},
		{code: "23505", want: driver.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := classify(&pgconn.PgError{Code: tt.code, Message: "backend failure"})
			var backendErr *driver.BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("classify() = %v, want *BackendError", err)
			}
			if backendErr.Kind != tt.want {
				t.Fatalf("classify(%s) kind = %s, want %s", tt.code, backendErr.Kind, tt.want)
			}
			if backendErr.Code != tt.code {
				t.Fatalf("classify(%s) code = %q", tt.code, backendErr.Code)
			}
		})
	}
}

func TestClassifyWrappedPgError(t *testing.T) {
	wrapped := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "42P01", Message: `relation "missing" does not exist`})
	err := classify(wrapped)

	var backendErr *driver.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("classify() = %v, want *BackendError", err)
	}
	if backendErr.Kind != driver.KindUndefinedObject {
		t.Fatalf("classify() kind = %s", backendErr.Kind)
	}
}

func TestClassifyContextCancellation(t *testing.T) {
	if err := classify(context.Canceled); !driver.IsCancelled(err) {
		t.Fatalf("classify(context.Canceled) = %v, want cancellation", err)
	}
	if err := classify(context.DeadlineExceeded); !driver.IsCancelled(err) {
		t.Fatalf("classify(context.DeadlineExceeded) = %v, want cancellation", err)
	}
}

func TestClassifyNil(t *testing.T) {
	if err := classify(nil); err != nil {
		t.Fatalf("classify(nil) = %v", err)
	}
}

func TestConnectRequiresDSN(t *testing.T) {
	if _, err := Connect(context.Background(), "  "); err == nil {
		t.Fatalf("Connect() error = nil, want dsn requirement")
	}
}
