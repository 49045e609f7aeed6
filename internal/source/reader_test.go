package source

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/testutil"
)

type mockWarehouse struct {
	*DB
}

func (mockWarehouse) Qualify(schema, table string) string { return schema + "." + table }
func (mockWarehouse) Quote(ident string) string           { return "`" + ident + "`" }
func (mockWarehouse) CastString(expr string) string       { return "CAST(" + expr + " AS STRING)" }

func (m mockWarehouse) ListSchemas(ctx context.Context) ([]string, error) {
	return m.Strings(ctx, 0, "SHOW SCHEMAS")
}

func (m mockWarehouse) ListTables(ctx context.Context, schema string) ([]string, error) {
	return m.Strings(ctx, 1, "SHOW TABLES IN "+schema)
}

func (m mockWarehouse) DescribeTable(_ context.Context, _, table string) (*TableInfo, error) {
	return &TableInfo{Name: table, Columns: []ColumnInfo{{Name: "id", Type: "int"}}, RowCount: 3}, nil
}

func newMockReader(t *testing.T) (*Reader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	wh := mockWarehouse{DB: &DB{SQL: db, Backend: "mock", Log: testutil.NewLogger(t)}}
	r, err := NewReader(wh, "multitable_logistics", testutil.NewLogger(t))
	require.NoError(t, err)
	return r, mock
}

func TestNewReader_RejectsBadSchema(t *testing.T) {
	_, err := NewReader(mockWarehouse{DB: &DB{}}, "x; DROP TABLE y", testutil.NewLogger(t))
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestReader_LoadResults(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM multitable_logistics.gx_validation_results_cleaned_combined")).
		WillReturnRows(sqlmock.NewRows([]string{"Run_Timestamp", "Table", "Status"}).
			AddRow("2024-01-01 00:00:00", []byte("orders"), "Passed"))

	f, err := r.LoadResults(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "orders", f.Rows[0][1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_LoadCombined(t *testing.T) {
	r, mock := newMockReader(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery(regexp.QuoteMeta("gx_validation_results_cleaned_combined WHERE `Metric` != 'User Generated Rule'")).
		WillReturnRows(sqlmock.NewRows([]string{"Run_Timestamp", "Table", "Metric"}).
			AddRow("2024-01-01", "orders", "Completeness"))
	mock.ExpectQuery(regexp.QuoteMeta("user_defined_validation_log_final_for_dashboard")).
		WillReturnRows(sqlmock.NewRows([]string{"Run_Timestamp", "Table", "Rule_Display_Name"}).
			AddRow("2024-01-02", "customers", "Email Present"))

	f, err := r.LoadCombined(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"Run_Timestamp", "Table", "Metric", "Rule_Display_Name"}, f.Columns)
	assert.Equal(t, "orders", f.Rows[0][1])
	assert.Nil(t, f.Rows[0][3])
	assert.Equal(t, "customers", f.Rows[1][1])
	assert.Nil(t, f.Rows[1][2])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReader_LoadCombined_PropagatesError(t *testing.T) {
	r, mock := newMockReader(t)
	mock.MatchExpectationsInOrder(false)

	mock.ExpectQuery("gx_validation_results_cleaned_combined").WillReturnError(assert.AnError)
	mock.ExpectQuery("user_defined_validation_log_final_for_dashboard").
		WillReturnRows(sqlmock.NewRows([]string{"Run_Timestamp"}))

	_, err := r.LoadCombined(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestReader_LoadFailed_Dedupes(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery(regexp.QuoteMeta("CAST(Failed_Row_ID AS STRING) AS Failed_Row_ID")).
		WillReturnRows(sqlmock.NewRows([]string{"Table", "Column", "Rule_Display_Name", "Failed_Row_ID", "Failed_Value"}).
			AddRow("orders", "total", "Range OK", "17", "-5").
			AddRow("orders", "total", "Range OK", "17", "-6").
			AddRow("orders", "total", "Range OK", "18", nil))

	recs, err := r.LoadFailed(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "-5", recs[0].FailedValue)
	assert.Equal(t, "18", recs[1].FailedRowID)
	assert.Equal(t, "", recs[1].FailedValue)
}

func TestReader_LoadTable(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM multitable_logistics.orders LIMIT 100")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	f, err := r.LoadTable(context.Background(), "orders", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, f.Len())

	_, err = r.LoadTable(context.Background(), "orders;--", 0)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestReader_Inspect(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery("SHOW TABLES IN multitable_logistics").
		WillReturnRows(sqlmock.NewRows([]string{"database", "tableName", "isTemporary"}).
			AddRow("multitable_logistics", "orders", false).
			AddRow("multitable_logistics", "customers", false))

	res, err := r.Inspect(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Tables, 2)
	assert.Equal(t, "orders", res.Tables[0].Name)
	assert.Equal(t, int64(3), res.Tables[1].RowCount)
}

func TestReader_TestConnection(t *testing.T) {
	r, mock := newMockReader(t)
	mock.ExpectQuery("SELECT 1 AS test").WillReturnRows(sqlmock.NewRows([]string{"test"}).AddRow(1))
	assert.NoError(t, r.TestConnection(context.Background()))

	mock.ExpectQuery("SELECT 1 AS test").WillReturnRows(sqlmock.NewRows([]string{"test"}))
	assert.Error(t, r.TestConnection(context.Background()))
}
