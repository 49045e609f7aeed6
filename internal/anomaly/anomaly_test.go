package anomaly

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func resultsFrame(values []any) *types.Frame {
	f := &types.Frame{Columns: []string{"Run_Timestamp", "Table", "Failed_Value", "Failed_Row_ID"}}
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, v := range values {
		f.Rows = append(f.Rows, []any{ts, "orders", v, "1"})
	}
	return f
}

func TestPrepare_DerivesNumericColumns(t *testing.T) {
	f := resultsFrame([]any{"10", "abc", nil, 2.5})
	p := Prepare(f)

	assert.Equal(t, []any{10.0, nil, nil, 2.5}, p.Values("Failed_Value_num"))
	assert.Equal(t, []any{1.0, 1.0, 1.0, 1.0}, p.Values("Failed_Row_ID_num"))
	assert.Len(t, f.Columns, 4, "input untouched")
}

func TestNumericColumns(t *testing.T) {
	f := &types.Frame{
		Columns: []string{"ts", "n", "s", "blank"},
		Rows: [][]any{
			{time.Now(), int64(1), "a", nil},
			{time.Now(), 2.0, "b", nil},
		},
	}
	assert.Equal(t, []string{"n"}, NumericColumns(f))
}

func TestDetect_ZScore(t *testing.T) {
	values := make([]any, 0, 21)
	for i := 0; i < 20; i++ {
		values = append(values, "10")
	}
	values = append(values, "1000")
	res, err := Detect(resultsFrame(values), Request{Method: MethodZScore, Columns: []string{"Failed_Value_num"}})
	require.NoError(t, err)

	assert.Equal(t, 21, res.Checked)
	require.Equal(t, 1, res.Anomalies.Len())
	assert.Equal(t, "1000", res.Anomalies.Rows[0][2])
}

func TestDetect_ZScoreConstantNeverFlags(t *testing.T) {
	res, err := Detect(resultsFrame([]any{"5", "5", "5"}), Request{})
	require.NoError(t, err)
	assert.Equal(t, MethodZScore, res.Method)
	assert.Zero(t, res.Anomalies.Len())
}

func TestDetect_IsolationForest(t *testing.T) {
	values := make([]any, 0, 100)
	for i := 0; i < 99; i++ {
		values = append(values, float64(i%10))
	}
	values = append(values, 10000.0)
	f := resultsFrame(values)

	res, err := Detect(f, Request{Method: MethodIsolationForest, Columns: []string{"Failed_Value_num"}})
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Anomalies.Len(), 5)

	var found bool
	for _, row := range res.Anomalies.Rows {
		if row[2] == 10000.0 {
			found = true
		}
	}
	assert.True(t, found, "outlier is flagged")

	again, err := Detect(f, Request{Method: MethodIsolationForest, Columns: []string{"Failed_Value_num"}})
	require.NoError(t, err)
	assert.Equal(t, res.Anomalies, again.Anomalies, "seeded forest is deterministic")
}

func TestDetect_Errors(t *testing.T) {
	_, err := Detect(&types.Frame{Columns: []string{"s"}, Rows: [][]any{{"x"}}}, Request{})
	assert.ErrorIs(t, err, ErrNoNumericColumns)

	_, err = Detect(resultsFrame([]any{"abc", nil}), Request{Columns: []string{"Failed_Value_num"}})
	assert.ErrorIs(t, err, ErrNoCompleteRows)

	_, err = Detect(resultsFrame([]any{"1"}), Request{Columns: []string{"Table"}})
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, err = Detect(resultsFrame([]any{"1"}), Request{Method: "LOF"})
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestAveragePath(t *testing.T) {
	assert.Zero(t, averagePath(1))
	assert.Equal(t, 1.0, averagePath(2))
	assert.InDelta(t, 10.24, averagePath(256), 0.01)
}

func TestPrepare_NonFiniteBecomeNull(t *testing.T) {
	p := Prepare(resultsFrame([]any{"inf", "-Infinity", "NaN", math.Inf(1), "4"}))
	assert.Equal(t, []any{nil, nil, nil, nil, 4.0}, p.Values("Failed_Value_num"))
}

func TestDetect_IsolationForestSkipsInfinity(t *testing.T) {
	values := make([]any, 0, 41)
	for range 40 {
		values = append(values, "1")
	}
	values = append(values, "inf")

	res, err := Detect(resultsFrame(values), Request{Method: MethodIsolationForest, Columns: []string{"Failed_Value_num"}})
	require.NoError(t, err)
	assert.Equal(t, 40, res.Checked)
	_, err = json.Marshal(res)
	assert.NoError(t, err)
}
