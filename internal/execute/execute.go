// Package execute runs validated statements against the target database
// with a context deadline, a row limit on reads, and explicit transactions
// around mutations. Failed executions are never retried.
package execute

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nlquery/nlquery/internal/observability"
)

type ErrorKind string

const (
	KindTimeout             ErrorKind = "timeout"
	KindConnectionLost      ErrorKind = "connection_lost"
	KindConstraintViolation ErrorKind = "constraint_violation"
	KindOther               ErrorKind = "other"
)

type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result holds one execution's output. Rows is uniform width matching
// Columns; RowsAffected is set for mutations, where Columns and Rows stay
// empty.
type Result struct {
	Columns      []string      `json:"columns"`
	Rows         [][]any       `json:"rows"`
	RowCount     int           `json:"row_count"`
	RowsAffected int64         `json:"rows_affected,omitempty"`
	Duration     time.Duration `json:"duration"`
	Truncated    bool          `json:"truncated"`
}

type Executor struct {
	DB       *sql.DB
	RowLimit int
	Timeout  time.Duration
}

// Query streams a read-only statement. Scanning stops at the row limit; one
// further Next probe decides Truncated so the caller can tell a full page
// from a clipped one.
func (e *Executor) Query(ctx context.Context, sqlText string) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rows, err := e.DB.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, classifyExecError(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyExecError(err)
	}

	out := make([][]any, 0)
	truncated := false
	for rows.Next() {
		if e.RowLimit > 0 && len(out) >= e.RowLimit {
			truncated = true
			break
		}
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, classifyExecError(err)
		}
		out = append(out, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExecError(err)
	}

	elapsed := time.Since(start)
	observability.ObserveExecution(elapsed)
	return &Result{
		Columns:   columns,
		Rows:      out,
		RowCount:  len(out),
		Duration:  elapsed,
		Truncated: truncated,
	}, nil
}

// Mutate runs a mutating or schema-changing statement inside an explicit
// transaction: commit on success, rollback on any error.
func (e *Executor) Mutate(ctx context.Context, sqlText string) (*Result, error) {
	ctx, cancel := e.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, classifyExecError(err)
	}

	res, err := tx.ExecContext(ctx, sqlText)
	if err != nil {
		_ = tx.Rollback()
		return nil, classifyExecError(err)
	}
	// Not every driver reports affected rows; treat that as zero.
	affected, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, classifyExecError(err)
	}

	elapsed := time.Since(start)
	observability.ObserveExecution(elapsed)
	return &Result{
		RowsAffected: affected,
		Duration:     elapsed,
	}, nil
}

func (e *Executor) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.Timeout > 0 {
		return context.WithTimeout(ctx, e.Timeout)
	}
	return ctx, func() {}
}

func classifyExecError(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone):
		return &Error{Kind: KindConnectionLost, Err: err}
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return &Error{Kind: KindConstraintViolation, Err: err}
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1048, 1062, 1216, 1217, 1451, 1452, 3819:
			return &Error{Kind: KindConstraintViolation, Err: err}
		}
	}
	// SQLite and DuckDB surface constraint failures as text only.
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return &Error{Kind: KindConstraintViolation, Err: err}
	}
	return &Error{Kind: KindOther, Err: err}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
