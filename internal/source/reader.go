package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

const (
	ResultsTable      = "gx_validation_results_cleaned_combined"
	SavedTable        = "user_defined_validation_log_final_for_dashboard"
	NewResultsTable   = "user_defined_validation_log_final_new"
	RuleMetadataTable = "silver_layer_rule_metadata_DQ"

	// UserGeneratedMetric marks user-rule rows mirrored into the results
	// table; the combined view reads those from the saved table instead.
	UserGeneratedMetric = "User Generated Rule"
)

var ErrInvalidIdentifier = errors.New("invalid identifier")

// Reader runs the AutoDQ read queries against one schema.
type Reader struct {
	wh     Warehouse
	schema string
	log    zerolog.Logger
}

func NewReader(wh Warehouse, schema string, log zerolog.Logger) (*Reader, error) {
	if !config.ValidIdentifier(schema) {
		return nil, fmt.Errorf("%w: schema %q", ErrInvalidIdentifier, schema)
	}
	return &Reader{wh: wh, schema: schema, log: log}, nil
}

func (r *Reader) Schema() string {
	return r.schema
}

func (r *Reader) Warehouse() Warehouse {
	return r.wh
}

// Table returns the qualified name of a table in the reader's schema.
func (r *Reader) Table(name string) string {
	return r.wh.Qualify(r.schema, name)
}

// LoadResults reads the full validation results table.
func (r *Reader) LoadResults(ctx context.Context) (*types.Frame, error) {
	f, err := r.wh.Query(ctx, "SELECT * FROM "+r.Table(ResultsTable))
	if err != nil {
		return nil, fmt.Errorf("load validation results: %w", err)
	}
	r.log.Debug().Int("rows", f.Len()).Msg("loaded validation results")
	return f, nil
}

// LoadCombined reads built-in results (without mirrored user rows) and the
// saved user-rule results, concatenated in that order.
func (r *Reader) LoadCombined(ctx context.Context) (*types.Frame, error) {
	var builtin, saved *types.Frame

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q := fmt.Sprintf("SELECT * FROM %s WHERE %s != '%s'",
			r.Table(ResultsTable), r.wh.Quote("Metric"), UserGeneratedMetric)
		f, err := r.wh.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("load validation results: %w", err)
		}
		builtin = f
		return nil
	})
	g.Go(func() error {
		f, err := r.wh.Query(ctx, "SELECT * FROM "+r.Table(SavedTable))
		if err != nil {
			return fmt.Errorf("load saved user rules: %w", err)
		}
		saved = f
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := builtin.Clone()
	out.Append(saved)
	r.log.Debug().Int("builtin", builtin.Len()).Int("saved", saved.Len()).Msg("loaded combined results")
	return out, nil
}

// LoadFailed reads failed checks from both result tables, deduplicated by
// table, column, rule and row id with the first occurrence kept.
func (r *Reader) LoadFailed(ctx context.Context) ([]types.FailedRecord, error) {
	sel := func(table string) string {
		return fmt.Sprintf(
			"SELECT %s, %s, Rule_Display_Name, %s AS Failed_Row_ID, %s AS Failed_Value FROM %s WHERE Status = 'Failed'",
			r.wh.Quote("Table"), r.wh.Quote("Column"),
			r.wh.CastString("Failed_Row_ID"), r.wh.CastString("Failed_Value"),
			r.Table(table),
		)
	}
	f, err := r.wh.Query(ctx, sel(ResultsTable)+" UNION "+sel(SavedTable))
	if err != nil {
		return nil, fmt.Errorf("load failed records: %w", err)
	}

	cell := func(row []any, col string) string {
		idx := f.Index(col)
		if idx < 0 {
			return ""
		}
		return strings.TrimSpace(types.CellString(row[idx]))
	}

	seen := map[string]struct{}{}
	out := make([]types.FailedRecord, 0, f.Len())
	for _, row := range f.Rows {
		rec := types.FailedRecord{
			Table:           cell(row, "Table"),
			Column:          cell(row, "Column"),
			RuleDisplayName: cell(row, "Rule_Display_Name"),
			FailedRowID:     cell(row, "Failed_Row_ID"),
			FailedValue:     cell(row, "Failed_Value"),
		}
		if _, dup := seen[rec.DedupKey()]; dup {
			continue
		}
		seen[rec.DedupKey()] = struct{}{}
		out = append(out, rec)
	}
	return out, nil
}

// LoadSaved reads the saved user-rule results, newest first.
func (r *Reader) LoadSaved(ctx context.Context) (*types.Frame, error) {
	f, err := r.wh.Query(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY Run_Timestamp DESC", r.Table(SavedTable)))
	if err != nil {
		return nil, fmt.Errorf("load saved validations: %w", err)
	}
	return f, nil
}

// LoadRuleMetadata reads the rule metadata table.
func (r *Reader) LoadRuleMetadata(ctx context.Context) (*types.Frame, error) {
	f, err := r.wh.Query(ctx, "SELECT * FROM "+r.Table(RuleMetadataTable))
	if err != nil {
		return nil, fmt.Errorf("load rule metadata: %w", err)
	}
	return f, nil
}

// LoadTable reads an arbitrary table of the schema. limit <= 0 reads all
// rows.
func (r *Reader) LoadTable(ctx context.Context, table string, limit int) (*types.Frame, error) {
	if !config.ValidIdentifier(table) {
		return nil, fmt.Errorf("%w: table %q", ErrInvalidIdentifier, table)
	}
	q := "SELECT * FROM " + r.Table(table)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	f, err := r.wh.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", table, err)
	}
	return f, nil
}

// Inspect lists the tables of the schema with their columns and row counts.
func (r *Reader) Inspect(ctx context.Context) (*InspectionResult, error) {
	tables, err := r.wh.ListTables(ctx, r.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	result := &InspectionResult{Schema: r.schema}
	for _, name := range tables {
		info, err := r.wh.DescribeTable(ctx, r.schema, name)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", name, err)
		}
		result.Tables = append(result.Tables, *info)
	}
	return result, nil
}

// TestConnection runs a trivial query.
func (r *Reader) TestConnection(ctx context.Context) error {
	f, err := r.wh.Query(ctx, "SELECT 1 AS test")
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	if f.Len() == 0 {
		return errors.New("connection test failed: no result returned")
	}
	return nil
}
