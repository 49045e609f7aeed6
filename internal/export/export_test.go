package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/autodq/internal/alert"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

func TestFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 7, 5, 1, 0, time.UTC)
	assert.Equal(t, "dq_intelligence_summary_20240309_070501.csv", Filename("dq_intelligence_summary", now))
}

func TestFormatMetric(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "N/A"},
		{1234.5678, "1,234.57"},
		{float32(2.5), "2.50"},
		{1234, "1,234"},
		{int64(1234567), "1,234,567"},
		{"text", "text"},
		{true, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMetric(tt.in))
		})
	}
}

func TestPercentAndLabel(t *testing.T) {
	assert.Equal(t, "33.3%", Percent(33.333))
	assert.Equal(t, "Blind Spot", Label("blind_spot"))
}

func TestFromFrame(t *testing.T) {
	f := &types.Frame{
		Columns: []string{"a", "b"},
		Rows:    [][]any{{"x", nil}, {int64(2), 1.5}},
	}
	tbl := FromFrame(f)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Equal(t, [][]string{{"x", ""}, {"2", "1.5"}}, tbl.Rows)
}

func TestWriteCSV_Quotes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Table{
		Header: []string{"Table", "Message"},
		Rows:   [][]string{{"orders", `bad, "quoted"`}},
	}))
	assert.Equal(t, "Table,Message\norders,\"bad, \"\"quoted\"\"\"\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, Single([]string{"k"}, []string{"v"})))
	var got []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []map[string]string{{"k": "v"}}, got)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatTable, Single([]string{"Rule"}, []string{"No Nulls"})))
	out := buf.String()
	assert.Contains(t, out, "No Nulls")
	assert.Contains(t, out, "(1 rows)")

	buf.Reset()
	require.NoError(t, Write(&buf, "", Table{Header: []string{"x"}}))
	assert.Equal(t, "(0 rows)\n", buf.String())

	assert.Error(t, Write(&buf, "xml", Table{}))
}

func TestFromAlertsAndIssues(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	alerts := FromAlerts([]alert.Alert{{Time: ts, Table: "orders", Rule: "No Nulls", Severity: alert.SeverityCritical}})
	require.Len(t, alerts.Rows, 1)
	assert.Equal(t, "2024-01-02 03:04:05", alerts.Rows[0][0])
	assert.Len(t, alerts.Rows[0], len(alerts.Header))

	issues := FromIssues([]tracker.Issue{{ID: "i1", Table: "orders", Status: tracker.StatusOpen}})
	assert.Equal(t, "ID", issues.Header[0])
	assert.Equal(t, "i1", issues.Rows[0][0])
	assert.Equal(t, tracker.StatusOpen, issues.Rows[0][6])
}
