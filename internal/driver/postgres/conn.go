// Package postgres implements the driver.Conn contract on a single pgx
// session. Cancellation uses the Postgres out-of-band cancel protocol, so
// an in-flight statement is aborted at the server, not just abandoned.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pgx "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/runsql/runsql/internal/driver"
	"github.com/runsql/runsql/internal/statement"
)

type Conn struct {
	conn *pgx.Conn
}

func Connect(ctx context.Context, dsn string) (*Conn, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) Query(ctx context.Context, sqlText string, args []any) (driver.Rows, error) {
	rows, err := c.conn.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, classify(err)
	}
	return &pgxRows{rows: rows}, nil
}

// Cancel opens a fresh connection to the server and requests abortion of
// whatever this session is currently executing. Safe from any goroutine;
// a no-op at the server when nothing is in flight.
func (c *Conn) Cancel(ctx context.Context) error {
	if err := c.conn.PgConn().CancelRequest(ctx); err != nil {
		return fmt.Errorf("send cancel request: %w", err)
	}
	return nil
}

func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

func (c *Conn) BindStyle() statement.BindStyle {
	return statement.BindDollar
}

type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Columns() []string {
	fields := r.rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
	}
	return columns
}

func (r *pgxRows) Next() bool {
	return r.rows.Next()
}

func (r *pgxRows) Values() ([]any, error) {
	values, err := r.rows.Values()
	if err != nil {
		return nil, classify(err)
	}
	return values, nil
}

func (r *pgxRows) Err() error {
	return classify(r.rows.Err())
}

func (r *pgxRows) Close() error {
	r.rows.Close()
	return nil
}

// SQLSTATE classes worth distinguishing for policy gating and caller
// handling; everything else stays KindOther with the raw code attached.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &driver.BackendError{
			Kind:    kindForSQLState(pgErr.Code),
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Err:     err,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &driver.BackendError{Kind: driver.KindCancelled, Message: "query cancelled", Err: err}
	}
	return &driver.BackendError{Kind: driver.KindOther, Message: err.Error(), Err: err}
}

func kindForSQLState(code string) driver.ErrorKind {
	switch code {
	case "57014":
		return driver.KindCancelled
	case "42601":
		return driver.KindSyntax
	case "42703", "42704", "42883":
		return driver.KindUndefinedObject
	case "42501":
		return driver.KindPermission
	}
	if strings.HasPrefix(code, "42P") {
		return driver.KindUndefinedObject
	}
	return driver.KindOther
}
