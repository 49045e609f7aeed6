package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/alexanderjulianmartinez/autodq/internal/alert"
	"github.com/alexanderjulianmartinez/autodq/internal/tracker"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatCSV   = "csv"
)

// Formats lists the supported output formats.
var Formats = []string{FormatTable, FormatJSON, FormatCSV}

// Filename returns "<prefix>_YYYYMMDD_HHMMSS.csv".
func Filename(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%s.csv", prefix, now.Format("20060102_150405"))
}

// Table is a header plus string rows, ready for any output format.
type Table struct {
	Header []string
	Rows   [][]string
}

func FromFrame(f *types.Frame) Table {
	t := Table{Header: append([]string(nil), f.Columns...)}
	for _, row := range f.Rows {
		out := make([]string, len(row))
		for i, v := range row {
			out[i] = types.CellString(v)
		}
		t.Rows = append(t.Rows, out)
	}
	return t
}

func FromResults(results []types.ValidationResult) Table {
	return FromFrame(types.ToFrame(results))
}

func FromAlerts(feed []alert.Alert) Table {
	t := Table{Header: []string{"Time", "Table", "Column", "Rule", "Status", "Message", "Severity", "Action", "Priority"}}
	for _, a := range feed {
		t.Rows = append(t.Rows, []string{
			a.Time.Format("2006-01-02 15:04:05"), a.Table, a.Column, a.Rule,
			a.Status, a.Message, a.Severity, a.Action, a.Priority,
		})
	}
	return t
}

func FromIssues(issues []tracker.Issue) Table {
	t := Table{Header: append([]string{"ID"}, tracker.IssueColumns...)}
	for _, i := range issues {
		t.Rows = append(t.Rows, append([]string{i.ID}, i.Row()...))
	}
	return t
}

// Single builds a one-row table.
func Single(header, row []string) Table {
	return Table{Header: header, Rows: [][]string{row}}
}

// WriteCSV writes t with a header line.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteJSON writes t as an array of objects keyed by header.
func WriteJSON(w io.Writer, t Table) error {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Header))
		for i, h := range t.Header {
			if i < len(row) {
				rec[h] = row[i]
			}
		}
		records = append(records, rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteTable renders t as a terminal table.
func WriteTable(w io.Writer, t Table) error {
	if len(t.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		r := make(table.Row, len(row))
		for i, v := range row {
			r[i] = v
		}
		tw.AppendRow(r)
	}
	tw.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(t.Rows))
	return err
}

// Write renders t in the named format.
func Write(w io.Writer, format string, t Table) error {
	switch strings.ToLower(format) {
	case FormatJSON:
		return WriteJSON(w, t)
	case FormatCSV:
		return WriteCSV(w, t)
	case FormatTable, "":
		return WriteTable(w, t)
	default:
		return fmt.Errorf("unknown output format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}
