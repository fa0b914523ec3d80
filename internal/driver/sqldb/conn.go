// Package sqldb adapts a database/sql session to the driver.Conn contract.
// It backs engines without an out-of-band cancel protocol (DuckDB, test
// doubles); cancellation rides on context cancellation of the in-flight
// call.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/runsql/runsql/internal/driver"
	"github.com/runsql/runsql/internal/statement"
)

type Conn struct {
	conn *sql.Conn

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewConn pins one session out of the pool. The caller owns the handle
// until Close.
func NewConn(ctx context.Context, db *sql.DB) (*Conn, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &Conn{conn: conn}, nil
}

func (c *Conn) Query(ctx context.Context, sqlText string, args []any) (driver.Rows, error) {
	runCtx, cancel := context.WithCancel(ctx)
	c.setCancel(cancel)

	rows, err := c.conn.QueryContext(runCtx, sqlText, args...)
	if err != nil {
		c.setCancel(nil)
		cancel()
		return nil, classifyCtx(runCtx, err)
	}
	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		c.setCancel(nil)
		cancel()
		return nil, classifyCtx(runCtx, err)
	}
	return &sqlRows{
		rows:    rows,
		columns: columns,
		ctx:     runCtx,
		release: func() {
			c.setCancel(nil)
			cancel()
		},
	}, nil
}

// Cancel aborts the statement currently in flight, if any. With no
// statement running it does nothing and later executions are unaffected,
// since every Query derives a fresh context.
func (c *Conn) Cancel(_ context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Conn) Close(_ context.Context) error {
	return c.conn.Close()
}

func (c *Conn) BindStyle() statement.BindStyle {
	return statement.BindQuestion
}

func (c *Conn) setCancel(cancel context.CancelFunc) {
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
}

type sqlRows struct {
	rows     *sql.Rows
	columns  []string
	ctx      context.Context
	release  func()
	released bool
}

func (r *sqlRows) Columns() []string {
	return r.columns
}

func (r *sqlRows) Next() bool {
	return r.rows.Next()
}

func (r *sqlRows) Values() ([]any, error) {
	values := make([]any, len(r.columns))
	scanTargets := make([]any, len(r.columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}
	if err := r.rows.Scan(scanTargets...); err != nil {
		return nil, classifyCtx(r.ctx, err)
	}
	return normalizeValues(values), nil
}

func (r *sqlRows) Err() error {
	return classifyCtx(r.ctx, r.rows.Err())
}

func (r *sqlRows) Close() error {
	if !r.released {
		r.released = true
		defer r.release()
	}
	return r.rows.Close()
}

func normalizeValues(values []any) []any {
	for i, value := range values {
		if raw, ok := value.([]byte); ok {
			values[i] = string(raw)
		}
	}
	return values
}

// classifyCtx classifies err for the statement that ran under ctx. Drivers
// report an aborted statement with their own error text (DuckDB raises an
// INTERRUPT error) instead of wrapping context.Canceled, so any failure
// while the per-statement context is cancelled counts as a cancellation.
func classifyCtx(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx != nil && ctx.Err() != nil {
		return &driver.BackendError{Kind: driver.KindCancelled, Message: "query cancelled", Err: err}
	}
	return classify(err)
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &driver.BackendError{Kind: driver.KindCancelled, Message: "query cancelled", Err: err}
	}
	message := err.Error()
	kind := driver.KindOther
	switch {
	case strings.Contains(message, "Parser Error") || strings.Contains(message, "syntax error"):
		kind = driver.KindSyntax
	case strings.Contains(message, "Catalog Error") || strings.Contains(message, "does not exist"):
		kind = driver.KindUndefinedObject
	}
	return &driver.BackendError{Kind: kind, Message: message, Err: err}
}
