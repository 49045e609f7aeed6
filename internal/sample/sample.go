// Package sample generates validation results shaped like the warehouse
// tables, for local demos and tests.
package sample

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/alexanderjulianmartinez/autodq/internal/source"
	"github.com/alexanderjulianmartinez/autodq/pkg/types"
)

// ColumnsByTable lists the generated tables and their columns.
var ColumnsByTable = map[string][]string{
	"customers": {"customer_id", "email", "phone", "registration_date", "status"},
	"orders":    {"order_id", "customer_id", "order_date", "total_amount", "status"},
	"products":  {"product_id", "name", "price", "category", "stock_quantity"},
	"inventory": {"product_id", "location", "quantity", "last_updated"},
	"payments":  {"payment_id", "order_id", "amount", "payment_date", "method"},
	"users":     {"user_id", "username", "email", "created_at", "is_active"},
}

// Tables is the sorted table list.
var Tables = []string{"customers", "inventory", "orders", "payments", "products", "users"}

// Rules are the built-in rules with the metric each reports.
var Rules = []struct{ Name, Metric string }{
	{"No Nulls", "Column Values Not Null"},
	{"Unique Values", "Uniqueness Check"},
	{"Primary Key Present", "Primary Key Validation"},
	{"Foreign Key Valid", "Foreign Key Validation"},
	{"Range OK", "Value Range Check"},
	{"Valid Type", "Data Type Validation"},
	{"Format Match", "Format Validation"},
	{"Column Present", "Column Existence Check"},
	{"Allowed Values", "Domain Value Check"},
	{"Valid Date", "Date Format Validation"},
}

var failedValues = map[string]string{
	"Unique Values":     "duplicate_value",
	"Foreign Key Valid": "invalid_foreign_key_999999",
	"Range OK":          "-999",
	"Valid Type":        "invalid_type_string",
	"Format Match":      "invalid-format-123",
	"Column Present":    "missing_column",
	"Allowed Values":    "invalid_domain_value",
	"Valid Date":        "2023-13-45",
}

var userMetrics = []string{
	"Custom Business Rule", "Data Quality Check", "Business Logic Validation",
	"Custom Range Check", "Cross-Table Validation", "Complex Business Rule",
}

type Options struct {
	Rows            int
	UserRows        int
	FailureRate     float64
	UserFailureRate float64
	Days            int
	Seed            uint64
	Now             time.Time
}

func DefaultOptions() Options {
	return Options{
		Rows:            500,
		UserRows:        20,
		FailureRate:     0.2,
		UserFailureRate: 0.3,
		Days:            7,
		Seed:            42,
	}
}

// Factory produces the same data for the same options.
type Factory struct {
	opts Options
	rng  *rand.Rand
}

func New(opts Options) *Factory {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.Days < 0 {
		opts.Days = 0
	}
	return &Factory{opts: opts, rng: rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))}
}

func (f *Factory) pick(values []string) string {
	return values[f.rng.IntN(len(values))]
}

// ValidationResults generates rows for the validation results table.
func (f *Factory) ValidationResults() []types.ValidationResult {
	out := make([]types.ValidationResult, 0, f.opts.Rows)
	for range f.opts.Rows {
		table := f.pick(Tables)
		rule := Rules[f.rng.IntN(len(Rules))]
		ts := f.opts.Now.Add(-time.Duration(f.rng.IntN(f.opts.Days+1))*24*time.Hour -
			time.Duration(f.rng.IntN(24))*time.Hour).Truncate(time.Second)

		r := types.ValidationResult{
			RunTimestamp:    ts,
			Table:           table,
			Column:          f.pick(ColumnsByTable[table]),
			Rule:            rule.Name,
			RuleDisplayName: rule.Name,
			Status:          types.StatusPassed,
			Metric:          rule.Metric,
		}
		if f.rng.Float64() < f.opts.FailureRate {
			r.Status = types.StatusFailed
			r.FailedValue = failedValues[rule.Name]
			r.FailedRowID = strconv.Itoa(1 + f.rng.IntN(100000))
			r.FailureType = fmt.Sprintf("%s failed on %s", rule.Name, r.Column)
		}
		out = append(out, r)
	}
	return out
}

// UserRuleResults generates saved user-rule rows, tagged with the user
// rule metric marker in Rule.
func (f *Factory) UserRuleResults() []types.ValidationResult {
	out := make([]types.ValidationResult, 0, f.opts.UserRows)
	for i := range f.opts.UserRows {
		metric := f.pick(userMetrics)
		r := types.ValidationResult{
			RunTimestamp:    f.opts.Now.Add(-time.Duration(1+f.rng.IntN(168)) * time.Hour).Truncate(time.Second),
			Table:           f.pick(Tables),
			Column:          fmt.Sprintf("custom_column_%d", i%5),
			Rule:            source.UserGeneratedMetric,
			RuleDisplayName: metric,
			Status:          types.StatusPassed,
			Metric:          source.UserGeneratedMetric,
		}
		if f.rng.Float64() < f.opts.UserFailureRate {
			r.Status = types.StatusFailed
			r.FailedValue = fmt.Sprintf("custom_error_%d", i)
			r.FailedRowID = strconv.Itoa(1 + f.rng.IntN(50000))
		}
		out = append(out, r)
	}
	return out
}
