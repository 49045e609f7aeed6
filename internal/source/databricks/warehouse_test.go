package databricks

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/internal/testutil"
)

func newMock(t *testing.T, catalog string) (*Warehouse, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, catalog, testutil.NewLogger(t)), mock
}

func TestQualify(t *testing.T) {
	w, _ := newMock(t, "")
	assert.Equal(t, "multitable_logistics.orders", w.Qualify("multitable_logistics", "orders"))

	w, _ = newMock(t, "kdataai")
	assert.Equal(t, "kdataai.multitable_logistics.orders", w.Qualify("multitable_logistics", "orders"))
	assert.Equal(t, "`Table`", w.Quote("Table"))
	assert.Equal(t, "CAST(x AS STRING)", w.CastString("x"))
}

func TestListTables(t *testing.T) {
	w, mock := newMock(t, "kdataai")
	mock.ExpectQuery(regexp.QuoteMeta("SHOW TABLES IN kdataai.sales")).
		WillReturnRows(sqlmock.NewRows([]string{"database", "tableName", "isTemporary"}).
			AddRow("sales", "orders", false))

	tables, err := w.ListTables(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"orders"}, tables)

	_, err = w.ListTables(context.Background(), "bad schema")
	assert.Error(t, err)
}

func TestDescribeTable_StopsAtPartitionSection(t *testing.T) {
	w, mock := newMock(t, "")
	mock.ExpectQuery(regexp.QuoteMeta("DESCRIBE TABLE sales.orders")).
		WillReturnRows(sqlmock.NewRows([]string{"col_name", "data_type", "comment"}).
			AddRow("order_id", "bigint", nil).
			AddRow("region", "string", nil).
			AddRow("", "", "").
			AddRow("# Partition Information", "", "").
			AddRow("region", "string", nil))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sales.orders")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	info, err := w.DescribeTable(context.Background(), "sales", "orders")
	require.NoError(t, err)
	require.Len(t, info.Columns, 2)
	assert.Equal(t, "bigint", info.Columns[0].Type)
	assert.Equal(t, int64(42), info.RowCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_RequiresConnection(t *testing.T) {
	cfg := &config.Config{Backend: config.BackendDatabricks, Schema: "s"}
	_, err := Open(context.Background(), cfg, testutil.NewLogger(t))
	assert.ErrorIs(t, err, config.ErrMissingConnection)
}
