package rules

type ExampleGroup struct {
	Category string   `json:"category"`
	Rules    []string `json:"rules"`
}

func Examples() []ExampleGroup {
	return []ExampleGroup{
		{
			Category: "Data Quality Rules",
			Rules: []string{
				"Check that all customer IDs are unique",
				"Verify that order amounts are greater than zero",
				"Ensure all email addresses are valid format",
			},
		},
		{
			Category: "Business Logic Rules",
			Rules: []string{
				"Customer age should be between 18 and 120 years",
				"Order dates should not be in the future",
				"Product prices must be positive numbers",
			},
		},
		{
			Category: "Completeness Rules",
			Rules: []string{
				"All required fields should not be null",
				"Every customer should have a valid address",
				"Phone numbers should follow standard format",
			},
		},
	}
}
