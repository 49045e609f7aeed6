package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/metrics"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// DB implements the database/sql half of Warehouse. Backends embed it and
// add their dialect and catalog queries.
type DB struct {
	SQL     *sql.DB
	Backend string
	Log     zerolog.Logger
}

func (d *DB) Name() string {
	return d.Backend
}

func (d *DB) Ping(ctx context.Context) error {
	if d.SQL == nil {
		return fmt.Errorf("database connection not established")
	}
	return d.SQL.PingContext(ctx)
}

func (d *DB) Close() error {
	if d.SQL == nil {
		return nil
	}
	d.Log.Debug().Msg("closing warehouse connection")
	return d.SQL.Close()
}

// Query runs a statement and materializes its result.
func (d *DB) Query(ctx context.Context, query string, args ...any) (*types.Frame, error) {
	if d.SQL == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	defer observe(d.Backend, "query", time.Now())

	rows, err := d.SQL.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return ScanFrame(rows)
}

// Exec runs a statement and returns the affected row count. Drivers that
// don't report it return 0.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if d.SQL == nil {
		return 0, fmt.Errorf("database connection not established")
	}
	defer observe(d.Backend, "exec", time.Now())

	res, err := d.SQL.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("exec failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// Strings runs a query and collects the given column of every row as text.
func (d *DB) Strings(ctx context.Context, column int, query string, args ...any) ([]string, error) {
	f, err := d.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, f.Len())
	for _, row := range f.Rows {
		if column < len(row) {
			out = append(out, types.CellString(row[column]))
		}
	}
	return out, nil
}

// ScanFrame reads every row into a frame, converting []byte cells to
// strings.
func ScanFrame(rows *sql.Rows) (*types.Frame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	f := &types.Frame{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		f.Rows = append(f.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return f, nil
}

func observe(backend, kind string, start time.Time) {
	metrics.QueryDuration.WithLabelValues(backend, kind).Observe(time.Since(start).Seconds())
}
