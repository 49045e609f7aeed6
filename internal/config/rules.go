package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	PriorityHigh   = "High"
	PriorityNormal = "Normal"
)

// RuleAction is the remediation guidance attached to a rule.
type RuleAction struct {
	Action   string `yaml:"action" json:"action"`
	Priority string `yaml:"priority" json:"priority"`
}

// RuleCatalog maps rule display names to their remediation guidance.
type RuleCatalog map[string]RuleAction

// StatusOptions are the action tracker workflow states, in display order.
var StatusOptions = []string{
	"Open", "In Progress", "Waiting on Data Source", "Pending Review",
	"Resolved", "Verified", "Ignored", "Closed",
}

// DefaultRules returns the built-in catalog.
func DefaultRules() RuleCatalog {
	return RuleCatalog{
		"No Nulls": {
			Action:   "Check and fill missing values from source systems or apply defaults.",
			Priority: PriorityHigh,
		},
		"Unique Values": {
			Action:   "Investigate and deduplicate conflicting or repeated entries.",
			Priority: PriorityHigh,
		},
		"Primary Key Present": {
			Action:   "Source system must provide a primary key for this record.",
			Priority: PriorityHigh,
		},
		"Foreign Key Valid": {
			Action:   "Ensure the foreign key in this record exists in the referenced table.",
			Priority: PriorityHigh,
		},
		"Range OK": {
			Action:   "Verify business rules for min/max boundaries and update thresholds if needed.",
			Priority: PriorityNormal,
		},
		"Valid Type": {
			Action:   "Ensure consistent data types across systems.",
			Priority: PriorityNormal,
		},
		"Format Match": {
			Action:   "Correct formatting issues according to the specified regular expression.",
			Priority: PriorityNormal,
		},
		"Column Present": {
			Action:   "Ensure required column exists in the dataset.",
			Priority: PriorityNormal,
		},
		"Allowed Values": {
			Action:   "Cross-check values against a valid domain list.",
			Priority: PriorityNormal,
		},
		"Valid Date": {
			Action:   "Correct unparseable date values or enforce consistent date formats.",
			Priority: PriorityNormal,
		},
	}
}

// Names returns the rule names sorted alphabetically.
func (c RuleCatalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the guidance for a rule, if catalogued.
func (c RuleCatalog) Lookup(rule string) (RuleAction, bool) {
	a, ok := c[rule]
	return a, ok
}

// LoadRules reads a YAML rule catalog and merges it over the defaults. An
// empty path returns the defaults unchanged.
func LoadRules(path string) (RuleCatalog, error) {
	catalog := DefaultRules()
	if path == "" {
		return catalog, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var overrides RuleCatalog
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	for name, action := range overrides {
		if name == "" {
			return nil, errors.New("rule name is required")
		}
		if action.Priority == "" {
			action.Priority = PriorityNormal
		}
		if action.Priority != PriorityHigh && action.Priority != PriorityNormal {
			return nil, fmt.Errorf("rule %s: priority must be High or Normal", name)
		}
		catalog[name] = action
	}
	return catalog, nil
}

// ValidStatus reports whether s is a tracker workflow state.
func ValidStatus(s string) bool {
	for _, o := range StatusOptions {
		if o == s {
			return true
		}
	}
	return false
}
