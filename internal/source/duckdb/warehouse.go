package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func init() {
	source.Register(config.BackendDuckDB, func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (source.Warehouse, error) {
		return Open(ctx, cfg.DuckDB.Path, log)
	})
}

// Warehouse is a local DuckDB database holding the result tables. It is
// used for development, demos and `autodq seed`.
type Warehouse struct {
	source.DB
	path string
}

// Open opens a DuckDB file. Use ":memory:" or "" for an in-memory database.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Warehouse, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}

	log.Debug().Str("path", path).Msg("opened duckdb")
	return &Warehouse{
		DB:   source.DB{SQL: db, Backend: config.BackendDuckDB, Log: log},
		path: path,
	}, nil
}

func (w *Warehouse) Qualify(schema, table string) string {
	return w.Quote(schema) + "." + w.Quote(table)
}

func (w *Warehouse) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (w *Warehouse) CastString(expr string) string {
	return "CAST(" + expr + " AS VARCHAR)"
}

func (w *Warehouse) ListSchemas(ctx context.Context) ([]string, error) {
	return w.Strings(ctx, 0, `
		SELECT DISTINCT schema_name
		FROM information_schema.schemata
		WHERE schema_name NOT IN ('information_schema', 'pg_catalog')
		ORDER BY schema_name
	`)
}

func (w *Warehouse) ListTables(ctx context.Context, schema string) ([]string, error) {
	return w.Strings(ctx, 0, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		ORDER BY table_name
	`, schema)
}

func (w *Warehouse) DescribeTable(ctx context.Context, schema, table string) (*source.TableInfo, error) {
	f, err := w.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	if f.Len() == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}

	info := &source.TableInfo{Name: table}
	for _, row := range f.Rows {
		info.Columns = append(info.Columns, source.ColumnInfo{
			Name:     types.CellString(row[0]),
			Type:     types.CellString(row[1]),
			Nullable: types.CellString(row[2]) == "YES",
		})
	}

	var count int64
	if err := w.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.Qualify(schema, table)).Scan(&count); err == nil {
		info.RowCount = count
	}
	return info, nil
}

// EnsureSchema creates schema if it does not exist.
func (w *Warehouse) EnsureSchema(ctx context.Context, schema string) error {
	if _, err := w.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+w.Quote(schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}
	return nil
}

// LoadCSV replaces schema.table with the contents of a CSV file, inferring
// column types.
func (w *Warehouse) LoadCSV(ctx context.Context, schema, table, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := w.EnsureSchema(ctx, schema); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto('%s', header=true)",
		w.Qualify(schema, table),
		strings.ReplaceAll(abs, "'", "''"),
	)
	if _, err := w.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}
	return nil
}

// CreateResultsTable (re)creates a table with the validation results
// layout.
func (w *Warehouse) CreateResultsTable(ctx context.Context, schema, table string) error {
	if err := w.EnsureSchema(ctx, schema); err != nil {
		return err
	}

	cols := make([]string, 0, len(types.ResultColumns))
	for _, c := range types.ResultColumns {
		typ := "VARCHAR"
		if c == "Run_Timestamp" {
			typ = "TIMESTAMP"
		}
		cols = append(cols, w.Quote(c)+" "+typ)
	}

	query := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", w.Qualify(schema, table), strings.Join(cols, ", "))
	if _, err := w.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}
	return nil
}

// InsertResults appends rows to a table with the results layout. Extra
// columns are left NULL.
func (w *Warehouse) InsertResults(ctx context.Context, schema, table string, results []types.ValidationResult) error {
	tx, err := w.SQL.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	cols := make([]string, len(types.ResultColumns))
	for i, c := range types.ResultColumns {
		cols[i] = w.Quote(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		w.Qualify(schema, table), strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	frame := types.ToFrame(results)
	for _, row := range frame.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

var _ source.Warehouse = (*Warehouse)(nil)
