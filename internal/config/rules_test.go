package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRules_DefaultsWhenNoPath(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Len(t, rules, 10)

	a, ok := rules.Lookup("No Nulls")
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, a.Priority)
}

func TestLoadRules_MergesOverrides(t *testing.T) {
	path := writeFile(t, "rules.yaml", `
Range OK:
  action: Escalate to finance.
  priority: High
Custom Business Rule:
  action: Ask the owning team.
`)
	rules, err := LoadRules(path)
	require.NoError(t, err)

	assert.Equal(t, "Escalate to finance.", rules["Range OK"].Action)
	assert.Equal(t, PriorityHigh, rules["Range OK"].Priority)
	assert.Equal(t, PriorityNormal, rules["Custom Business Rule"].Priority)
	assert.Contains(t, rules.Names(), "Custom Business Rule")
}

func TestLoadRules_InvalidPriority(t *testing.T) {
	path := writeFile(t, "rules.yaml", "No Nulls:\n  action: x\n  priority: Urgent\n")
	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus("Waiting on Data Source"))
	assert.False(t, ValidStatus("Done"))
}
