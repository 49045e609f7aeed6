package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
)

func init() {
	source.Register(config.BackendMySQL, Open)
}

type Warehouse struct {
	source.DB
	timeout time.Duration
}

// Open connects using the configured DSN. parseTime is forced on so
// Run_Timestamp scans as time.Time.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (source.Warehouse, error) {
	dsn, err := driver.ParseDSN(cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	dsn.ParseTime = true

	connector, err := driver.NewConnector(dsn)
	if err != nil {
		return nil, err
	}
	db := sql.OpenDB(connector)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping failed: %w", err)
	}

	log.Info().Str("addr", dsn.Addr).Str("db", dsn.DBName).Msg("connected to mysql")
	return New(db, log), nil
}

func New(db *sql.DB, log zerolog.Logger) *Warehouse {
	return &Warehouse{
		DB:      source.DB{SQL: db, Backend: config.BackendMySQL, Log: log},
		timeout: 5 * time.Second,
	}
}

func (w *Warehouse) Qualify(schema, table string) string {
	return w.Quote(schema) + "." + w.Quote(table)
}

func (w *Warehouse) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (w *Warehouse) CastString(expr string) string {
	return "CAST(" + expr + " AS CHAR)"
}

func (w *Warehouse) ListSchemas(ctx context.Context) ([]string, error) {
	return w.Strings(ctx, 0, `
		SELECT SCHEMA_NAME
		FROM INFORMATION_SCHEMA.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY SCHEMA_NAME
	`)
}

func (w *Warehouse) ListTables(ctx context.Context, schema string) ([]string, error) {
	return w.Strings(ctx, 0, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME
	`, schema)
}

func (w *Warehouse) DescribeTable(ctx context.Context, schema, table string) (*source.TableInfo, error) {
	cols, err := w.FetchSchema(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s.%s not found", schema, table)
	}

	pk, err := w.FetchPrimaryKey(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	count, err := w.FetchRowCount(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	return &source.TableInfo{
		Name:       table,
		Columns:    cols,
		PrimaryKey: pk,
		RowCount:   count,
	}, nil
}

func (w *Warehouse) FetchSchema(ctx context.Context, schema, table string) ([]source.ColumnInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	rows, err := w.SQL.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, schema, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []source.ColumnInfo
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		cols = append(cols, source.ColumnInfo{
			Name:     name,
			Type:     dataType,
			Nullable: nullable == "YES",
		})
	}
	return cols, rows.Err()
}

func (w *Warehouse) FetchPrimaryKey(ctx context.Context, schema, table string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	return w.Strings(ctx, 0, `
		SELECT COLUMN_NAME
		FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`, schema, table)
}

func (w *Warehouse) FetchRowCount(ctx context.Context, schema, table string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", w.Qualify(schema, table))
	if err := w.SQL.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

var _ source.Warehouse = (*Warehouse)(nil)
