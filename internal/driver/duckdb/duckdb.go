// Package duckdb opens a local DuckDB engine behind the generic
// database/sql session adapter.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/runsql/runsql/internal/driver/sqldb"
)

// Open opens (or creates) the database at path; an empty path selects an
// in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// Acquire pins a single session suitable for the executor.
func Acquire(ctx context.Context, db *sql.DB) (*sqldb.Conn, error) {
	return sqldb.NewConn(ctx, db)
}
