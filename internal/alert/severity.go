package alert

// Centralized severity helpers for failed checks.
// Rules:
// - CRITICAL for failures that break keys or completeness
// - WARNING for everything else

const (
	SeverityCritical = "Critical"
	SeverityWarning  = "Warning"
)

// CriticalRules are the rules whose failures are always critical.
var CriticalRules = []string{"No Nulls", "Unique Values", "Primary Key Present", "Foreign Key Valid"}

// SeverityForRule returns the severity of a failure of rule.
func SeverityForRule(rule string) string {
	for _, r := range CriticalRules {
		if r == rule {
			return SeverityCritical
		}
	}
	return SeverityWarning
}

// MessageForAlert returns a concise message when the result carries no
// failure type.
func MessageForAlert(failureType, rule, column string) string {
	if failureType != "" {
		return failureType
	}
	switch rule {
	case "No Nulls":
		return "null values in " + column
	case "Unique Values":
		return "duplicate values in " + column
	case "Primary Key Present":
		return "missing primary key"
	case "Foreign Key Valid":
		return "dangling foreign key in " + column
	default:
		return rule + " failed on " + column
	}
}
