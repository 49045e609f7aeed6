package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFrame_PreprocessesRows(t *testing.T) {
	f := &Frame{
		Columns: []string{" Run_Timestamp ", "Table", "Column", "Rule", "Status"},
		Rows: [][]any{
			{"2024-03-01 10:00:00", "  Orders ", " order_id ", "No Nulls", "Failed"},
			{"not-a-date", "orders", "total", "Range OK", "Passed"},
			{nil, "orders", "total", "Range OK", "Passed"},
			{time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), "Customers", "email", "Format Match", "Passed"},
		},
	}

	results, err := FromFrame(f)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "orders", results[0].Table)
	assert.Equal(t, "order_id", results[0].Column)
	assert.Equal(t, "orders.order_id", results[0].Key())
	assert.Equal(t, "No Nulls", results[0].DisplayRule())
	assert.True(t, results[0].Failed())
	assert.Equal(t, "customers", results[1].Table)
}

func TestFromFrame_MissingTimestamp(t *testing.T) {
	_, err := FromFrame(&Frame{Columns: []string{"Table"}})
	assert.Error(t, err)
}

func TestFrameAppend_AlignsColumns(t *testing.T) {
	a := &Frame{Columns: []string{"Table", "Status"}, Rows: [][]any{{"a", "Passed"}}}
	b := &Frame{Columns: []string{"Status", "Table", "Notes"}, Rows: [][]any{{"Failed", "b", "x"}}}

	a.Append(b)

	assert.Equal(t, []string{"Table", "Status", "Notes"}, a.Columns)
	assert.Equal(t, []any{"a", "Passed", nil}, a.Rows[0])
	assert.Equal(t, []any{"b", "Failed", "x"}, a.Rows[1])
}

func TestToFrame_RoundTripsThroughFromFrame(t *testing.T) {
	in := []ValidationResult{{
		RunTimestamp: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC),
		Table:        "orders",
		Column:       "status",
		Rule:         "Allowed Values",
		Status:       StatusFailed,
		FailedValue:  "unknown",
	}}
	out, err := FromFrame(ToFrame(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestCellString(t *testing.T) {
	assert.Equal(t, "", CellString(nil))
	assert.Equal(t, "1.5", CellString(1.5))
	assert.Equal(t, "42", CellString(int64(42)))
	assert.Equal(t, "abc", CellString([]byte("abc")))
}
