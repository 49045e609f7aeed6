package export

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatMetric renders a metric value for display: thousands separators,
// two decimals for floats, "N/A" for nil.
func FormatMetric(v any) string {
	switch t := v.(type) {
	case nil:
		return "N/A"
	case float64:
		return printer.Sprintf("%.2f", t)
	case float32:
		return printer.Sprintf("%.2f", t)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return printer.Sprintf("%d", t)
	case string:
		return t
	default:
		return printer.Sprint(t)
	}
}

// Percent renders a rate as "12.3%".
func Percent(rate float64) string {
	return printer.Sprintf("%.1f%%", rate)
}

// Label turns an identifier such as "blind_spot" into "Blind Spot".
func Label(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
