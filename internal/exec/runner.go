package exec

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/runsql/runsql/internal/driver"
	"github.com/runsql/runsql/internal/observability"
	"github.com/runsql/runsql/internal/statement"
)

// Request is one statement execution. Params may be a superset of the
// statement's placeholders; extra keys are ignored. ServerBinds, when set,
// pre-resolves percent-placeholder ambiguity (§ placeholder analysis).
type Request struct {
	Source      statement.Source
	Params      map[string]any
	RaiseErrors bool
	StopOnError bool
	ServerBinds *bool
}

// Runner resolves, analyzes, and executes statements against a
// caller-supplied connection handle. It owns no pooling, no transactions,
// and performs no retries: every failure surfaces exactly once under the
// selected policy.
type Runner struct {
	Resolver *statement.Resolver
	Logger   *slog.Logger
}

// Run executes one statement. The returned Result is lazy: enumerating it
// drives backend I/O, and it must be closed before the handle is reused.
// Cancellation (context or conn.Cancel from another goroutine) surfaces as
// a BackendError of kind cancelled under every policy.
func (r *Runner) Run(ctx context.Context, req Request, conn driver.Conn) (*Result, error) {
	id := uuid.NewString()
	policy := ResolvePolicy(req.RaiseErrors, req.StopOnError)
	if policy == PolicyWarnDeprecated {
		observability.IncrementDeprecatedFlag()
		r.warn(ctx, "stop_on_error is deprecated; use raise_errors",
			slog.String("statement_id", id))
	}

	resolved, err := r.resolver().Resolve(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	observability.AddStep(ctx, "resolve")

	profile := statement.Analyze(resolved.Text, req.ServerBinds)
	observability.AddStep(ctx, "analyze")
	if profile.Ambiguous {
		return nil, fmt.Errorf("statement from %s source: %w", req.Source.Kind, ErrAmbiguousPlaceholders)
	}

	boundText, args, err := statement.Bind(resolved.Text, profile, req.Params, conn.BindStyle())
	if err != nil {
		return nil, fmt.Errorf("bind parameters: %w", err)
	}

	start := time.Now()
	rows, err := conn.Query(ctx, boundText, args)
	observability.AddStep(ctx, "execute")
	if err != nil {
		return r.afterFailure(ctx, id, policy, err, time.Since(start))
	}

	observability.ObserveStatement(policy.String(), "ok", time.Since(start))
	r.debug(ctx, "statement executed",
		slog.String("statement_id", id),
		slog.String("source", req.Source.Kind.String()),
		slog.String("client_style", profile.Client.String()),
		slog.Bool("server_percent", profile.HasServerPercent),
	)
	return &Result{ID: id, rows: rows, policy: policy, logger: r.Logger}, nil
}

func (r *Runner) afterFailure(ctx context.Context, id string, policy Policy, err error, elapsed time.Duration) (*Result, error) {
	if driver.IsCancelled(err) {
		observability.IncrementCancellation()
		observability.ObserveStatement(policy.String(), "cancelled", elapsed)
		return nil, fmt.Errorf("statement %s: %w", id, err)
	}

	observability.ObserveStatement(policy.String(), "error", elapsed)
	if policy == PolicySilent {
		r.warn(ctx, "statement failed",
			slog.String("statement_id", id),
			slog.Any("error", err),
		)
		return &Result{ID: id, policy: policy, logger: r.Logger}, nil
	}
	return nil, fmt.Errorf("statement %s: %w", id, err)
}

func (r *Runner) resolver() *statement.Resolver {
	if r.Resolver != nil {
		return r.Resolver
	}
	return &statement.Resolver{}
}

func (r *Runner) warn(ctx context.Context, msg string, attrs ...any) {
	if r.Logger != nil {
		r.Logger.WarnContext(ctx, msg, attrs...)
	}
}

func (r *Runner) debug(ctx context.Context, msg string, attrs ...any) {
	if r.Logger != nil {
		r.Logger.DebugContext(ctx, msg, attrs...)
	}
}

// Result is a single-pass row sequence. A silent-policy failure yields a
// Result with no rows, preserving the lenient legacy call shape.
type Result struct {
	ID string

	rows     driver.Rows
	policy   Policy
	logger   *slog.Logger
	silenced bool
}

func (r *Result) Columns() []string {
	if r.rows == nil {
		return nil
	}
	return r.rows.Columns()
}

func (r *Result) Next() bool {
	if r.rows == nil {
		return false
	}
	return r.rows.Next()
}

func (r *Result) Values() ([]any, error) {
	if r.rows == nil {
		return nil, fmt.Errorf("no rows available")
	}
	return r.rows.Values()
}

// Err reports the iteration error, policy-gated: under the silent policy a
// non-cancellation failure is logged once and the sequence ends cleanly.
// Cancellation always surfaces.
func (r *Result) Err() error {
	if r.rows == nil {
		return nil
	}
	if err := r.rows.Err(); err != nil {
		return r.gate(err)
	}
	return nil
}

// gate applies the policy to a stream failure. Cancellation always
// surfaces; under the silent policy anything else is logged once and
// swallowed.
func (r *Result) gate(err error) error {
	if driver.IsCancelled(err) {
		return err
	}
	if r.policy == PolicySilent {
		if !r.silenced {
			r.silenced = true
			if r.logger != nil {
				r.logger.Warn("result stream failed",
					slog.String("statement_id", r.ID),
					slog.Any("error", err),
				)
			}
		}
		return nil
	}
	return err
}

func (r *Result) Close() error {
	if r.rows == nil {
		return nil
	}
	return r.rows.Close()
}

// Collect drains and closes the result. Intended for callers that need the
// whole set in memory (the HTTP endpoint, the exporter); everything else
// should stream.
func (r *Result) Collect() ([]string, [][]any, error) {
	defer func() { _ = r.Close() }()

	var out [][]any
	for r.Next() {
		values, err := r.Values()
		if err != nil {
			// a row-scan failure is policy-gated like an iteration
			// failure: silent truncates, everything else propagates
			if gated := r.gate(err); gated != nil {
				return nil, nil, gated
			}
			break
		}
		out = append(out, values)
	}
	// columns are read before Close so drivers that drop metadata on close
	// still report them
	columns := r.Columns()
	if err := r.Err(); err != nil {
		return nil, nil, err
	}
	return columns, out, nil
}
