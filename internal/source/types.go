package source

import (
	"context"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

type ColumnInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

type TableInfo struct {
	Name       string       `json:"name"`
	Columns    []ColumnInfo `json:"columns"`
	PrimaryKey []string     `json:"primary_key,omitempty"`
	RowCount   int64        `json:"row_count"`
}

type InspectionResult struct {
	Schema string      `json:"schema"`
	Tables []TableInfo `json:"tables"`
}

// Dialect covers the SQL differences between backends.
type Dialect interface {
	// Qualify returns the fully qualified name of schema.table.
	Qualify(schema, table string) string
	// Quote quotes an identifier that may be a reserved word.
	Quote(ident string) string
	// CastString casts expr to the backend's string type.
	CastString(expr string) string
}

// Warehouse is a SQL store holding validation results.
type Warehouse interface {
	Dialect

	Name() string
	Ping(ctx context.Context) error
	Query(ctx context.Context, query string, args ...any) (*types.Frame, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]string, error)
	DescribeTable(ctx context.Context, schema, table string) (*TableInfo, error)
	Close() error
}
