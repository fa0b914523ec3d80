package sqldb

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/runsql/runsql/internal/driver"
	"github.com/runsql/runsql/internal/statement"
)

func newMockConn(t *testing.T) (*Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	conn, err := NewConn(context.Background(), db)
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}
	return conn, mock
}

func TestQueryReturnsRows(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT id, name FROM events WHERE region = ?").
		WithArgs("eu").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("alpha")).
			AddRow(int64(2), []byte("beta")))

	rows, err := conn.Query(context.Background(), "SELECT id, name FROM events WHERE region = ?", []any{"eu"})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	defer func() { _ = rows.Close() }()

	if !reflect.DeepEqual(rows.Columns(), []string{"id", "name"}) {
		t.Fatalf("Columns() = %v", rows.Columns())
	}

	var collected [][]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			t.Fatalf("Values() error = %v", err)
		}
		collected = append(collected, values)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(collected) != 2 {
		t.Fatalf("collected %d rows, want 2", len(collected))
	}
	// byte slices surface as strings
	if collected[0][1] != "alpha" {
		t.Fatalf("first row name = %v (%T), want alpha", collected[0][1], collected[0][1])
	}
}

func TestQueryClassifiesBackendErrors(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    driver.ErrorKind
	}{
		{name: "parser error", message: "Parser Error: syntax error at or near \"SELEC\"", want: driver.KindSyntax},
		{name: "catalog error", message: "Catalog Error: Table with name missing does not exist!", want: driver.KindUndefinedObject},
		{name: "unclassified", message: "out of memory", want: driver.KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, mock := newMockConn(t)
			mock.ExpectQuery("SELECT").WillReturnError(errors.New(tt.message))

			_, err := conn.Query(context.Background(), "SELECT 1", nil)
			var backendErr *driver.BackendError
			if !errors.As(err, &backendErr) {
				t.Fatalf("Query() error = %v, want *BackendError", err)
			}
			if backendErr.Kind != tt.want {
				t.Fatalf("Query() kind = %s, want %s", backendErr.Kind, tt.want)
			}
		})
	}
}

func TestCancelAbortsInFlightQuery(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT pg_sleep").WillDelayFor(5 * time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"ok"}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = conn.Cancel(context.Background())
	}()

	_, err := conn.Query(context.Background(), "SELECT pg_sleep(60)", nil)
	if !driver.IsCancelled(err) {
		t.Fatalf("Query() error = %v, want cancellation", err)
	}
}

func TestClassifyCtxDriverNativeCancelError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// driver-native cancel text, no wrapped context.Canceled
	err := classifyCtx(ctx, errors.New("canceling query due to user request"))
	if !driver.IsCancelled(err) {
		t.Fatalf("classifyCtx() under cancelled context = %v, want cancellation", err)
	}

	err = classifyCtx(context.Background(), errors.New("Parser Error: bad"))
	var backendErr *driver.BackendError
	if !errors.As(err, &backendErr) || backendErr.Kind != driver.KindSyntax {
		t.Fatalf("classifyCtx() under live context = %v, want syntax classification", err)
	}

	if got := classifyCtx(ctx, nil); got != nil {
		t.Fatalf("classifyCtx(nil) = %v", got)
	}
}

func TestCancelWithoutStatementIsNoOp(t *testing.T) {
	conn, mock := newMockConn(t)

	if err := conn.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}

	// the handle must stay usable after an idle cancel
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))
	rows, err := conn.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("Query() after idle Cancel error = %v", err)
	}
	_ = rows.Close()
}

func TestCancelAfterCloseDoesNotAffectNextQuery(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT 2").WillReturnRows(sqlmock.NewRows([]string{"two"}).AddRow(int64(2)))

	rows, err := conn.Query(context.Background(), "SELECT 1", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	_ = rows.Close()

	// stale cancel from the finished statement must not abort the next one
	_ = conn.Cancel(context.Background())

	rows, err = conn.Query(context.Background(), "SELECT 2", nil)
	if err != nil {
		t.Fatalf("Query() after stale Cancel error = %v", err)
	}
	_ = rows.Close()
}

func TestBindStyle(t *testing.T) {
	conn, _ := newMockConn(t)
	if conn.BindStyle() != statement.BindQuestion {
		t.Fatalf("BindStyle() = %v, want BindQuestion", conn.BindStyle())
	}
}

func TestNewConnRequiresDB(t *testing.T) {
	if _, err := NewConn(context.Background(), nil); err == nil {
		t.Fatalf("NewConn() error = nil, want db requirement")
	}
}
