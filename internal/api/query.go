package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/runsql/runsql/internal/auth"
	"github.com/runsql/runsql/internal/driver"
	"github.com/runsql/runsql/internal/exec"
	"github.com/runsql/runsql/internal/observability"
	"github.com/runsql/runsql/internal/statement"
)

var errDatabaseNotConfigured = errors.New("database is not configured")

const queryRole = "runner"

type queryRequest struct {
	// SQL carries inline text, a .sql file path, or an s3:// object key;
	// classification happens server side.
	SQL         string         `json:"sql"`
	Params      map[string]any `json:"params"`
	RaiseErrors bool           `json:"raise_errors"`
	StopOnError bool           `json:"stop_on_error"`
	ServerBinds *bool          `json:"server_binds"`
	ExportKey   string         `json:"export_key"`
}

type queryResponse struct {
	StatementID string         `json:"statement_id"`
	Columns     []string       `json:"columns"`
	Rows        [][]any        `json:"rows"`
	Export      map[string]any `json:"export,omitempty"`
	Stats       map[string]any `json:"stats"`
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Runner == nil || deps.Conns == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}
	if err := requireRole(r, queryRole); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if request.ExportKey != "" && deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusBadRequest, "EXPORT_NOT_CONFIGURED", "export requested but no object store is configured", false, nil)
		return
	}

	start := time.Now()
	conn, err := deps.Conns.Acquire(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusServiceUnavailable, "CONNECTION_FAILED", "failed to acquire a backend session", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = conn.Close(r.Context()) }()
	observability.AddStep(r.Context(), "connect")

	result, err := deps.Runner.Run(r.Context(), exec.Request{
		Source:      statement.FromString(request.SQL),
		Params:      request.Params,
		RaiseErrors: request.RaiseErrors,
		StopOnError: request.StopOnError,
		ServerBinds: request.ServerBinds,
	}, conn)
	if err != nil {
		writeExecutionError(w, r, err)
		return
	}

	columns, rows, err := result.Collect()
	observability.AddStep(r.Context(), "collect")
	if err != nil {
		writeExecutionError(w, r, err)
		return
	}

	var exportInfo map[string]any
	if request.ExportKey != "" {
		info, err := deps.Exporter.Upload(r.Context(), request.ExportKey, result.ID, columns, rows)
		observability.AddStep(r.Context(), "export")
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "EXPORT_FAILED", "failed to export result set", true, map[string]any{"details": err.Error()})
			return
		}
		exportInfo = map[string]any{"key": info.Key, "size_bytes": info.Size}
	}

	writeJSON(w, http.StatusOK, queryResponse{
		StatementID: result.ID,
		Columns:     columns,
		Rows:        rows,
		Export:      exportInfo,
		Stats: map[string]any{
			"duration_ms": time.Since(start).Milliseconds(),
			"row_count":   len(rows),
		},
	})
}

func writeExecutionError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, statement.ErrSourceNotFound):
		writeError(ctx, w, http.StatusNotFound, "SOURCE_NOT_FOUND", err.Error(), false, nil)
	case errors.Is(err, exec.ErrAmbiguousPlaceholders):
		writeError(ctx, w, http.StatusBadRequest, "AMBIGUOUS_PLACEHOLDERS", err.Error(), false, map[string]any{
			"hint": "set server_binds to true or false",
		})
	case driver.IsCancelled(err):
		writeError(ctx, w, http.StatusRequestTimeout, "QUERY_CANCELLED", "query was cancelled before completion", false, nil)
	default:
		var readErr *statement.ReadError
		if errors.As(err, &readErr) {
			writeError(ctx, w, http.StatusInternalServerError, "SOURCE_READ_FAILED", readErr.Error(), true, nil)
			return
		}
		var missingErr *statement.MissingParameterError
		if errors.As(err, &missingErr) {
			writeError(ctx, w, http.StatusBadRequest, "MISSING_PARAMETER", missingErr.Error(), false, map[string]any{"parameter": missingErr.Name})
			return
		}
		var backendErr *driver.BackendError
		if errors.As(err, &backendErr) {
			writeError(ctx, w, http.StatusBadRequest, "BACKEND_ERROR", backendErr.Message, false, map[string]any{
				"kind": string(backendErr.Kind),
				"code": backendErr.Code,
			})
			return
		}
		writeError(ctx, w, http.StatusInternalServerError, "EXECUTION_FAILED", err.Error(), true, nil)
	}
}

// requireRole enforces roles only when the auth middleware attached an
// identity; with auth disabled every caller may query.
func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if !identity.HasRole(role) {
		return fmt.Errorf("role %q is required", role)
	}
	return nil
}
