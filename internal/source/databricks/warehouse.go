package databricks

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbsql "github.com/databricks/databricks-sql-go"
	"github.com/rs/zerolog"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func init() {
	source.Register(config.BackendDatabricks, Open)
}

type Warehouse struct {
	source.DB
	catalog string
}

// Open connects to a Databricks SQL warehouse over HTTPS.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (source.Warehouse, error) {
	d := cfg.Databricks
	if err := d.RequireDatabricks(); err != nil {
		return nil, err
	}

	opts := []dbsql.ConnOption{
		dbsql.WithServerHostname(d.Hostname()),
		dbsql.WithPort(443),
		dbsql.WithHTTPPath(d.HTTPPath),
		dbsql.WithAccessToken(d.Token),
		dbsql.WithTimeout(2 * time.Minute),
	}
	if d.Catalog != "" {
		opts = append(opts, dbsql.WithInitialNamespace(d.Catalog, cfg.Schema))
	}

	connector, err := dbsql.NewConnector(opts...)
	if err != nil {
		return nil, fmt.Errorf("create connector: %w", err)
	}
	db := sql.OpenDB(connector)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("databricks ping failed (check the token and that the warehouse is running): %w", err)
	}

	log.Info().Str("host", d.Hostname()).Str("http_path", d.HTTPPath).Msg("connected to SQL warehouse")
	return New(db, d.Catalog, log), nil
}

// New wraps an open connection.
func New(db *sql.DB, catalog string, log zerolog.Logger) *Warehouse {
	return &Warehouse{
		DB:      source.DB{SQL: db, Backend: config.BackendDatabricks, Log: log},
		catalog: catalog,
	}
}

func (w *Warehouse) Qualify(schema, table string) string {
	if w.catalog != "" {
		return w.catalog + "." + schema + "." + table
	}
	return schema + "." + table
}

func (w *Warehouse) Quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (w *Warehouse) CastString(expr string) string {
	return "CAST(" + expr + " AS STRING)"
}

func (w *Warehouse) ListSchemas(ctx context.Context) ([]string, error) {
	return w.Strings(ctx, 0, "SHOW SCHEMAS")
}

// ListTables returns table names; SHOW TABLES puts them in the second
// column.
func (w *Warehouse) ListTables(ctx context.Context, schema string) ([]string, error) {
	if !config.ValidIdentifier(schema) {
		return nil, fmt.Errorf("%w: schema %q", source.ErrInvalidIdentifier, schema)
	}
	ns := schema
	if w.catalog != "" {
		ns = w.catalog + "." + schema
	}
	return w.Strings(ctx, 1, "SHOW TABLES IN "+ns)
}

func (w *Warehouse) DescribeTable(ctx context.Context, schema, table string) (*source.TableInfo, error) {
	if !config.ValidIdentifier(schema) || !config.ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: %s.%s", source.ErrInvalidIdentifier, schema, table)
	}
	f, err := w.Query(ctx, "DESCRIBE TABLE "+w.Qualify(schema, table))
	if err != nil {
		return nil, err
	}

	info := &source.TableInfo{Name: table}
	for _, row := range f.Rows {
		if len(row) < 2 {
			continue
		}
		name := strings.TrimSpace(types.CellString(row[0]))
		// Partition and metadata sections start with a "#" header.
		if name == "" || strings.HasPrefix(name, "#") {
			break
		}
		info.Columns = append(info.Columns, source.ColumnInfo{
			Name:     name,
			Type:     types.CellString(row[1]),
			Nullable: true,
		})
	}

	var count int64
	if err := w.SQL.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+w.Qualify(schema, table)).Scan(&count); err == nil {
		info.RowCount = count
	}
	return info, nil
}

var _ source.Warehouse = (*Warehouse)(nil)
