package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/alexanderjulianmartinez/autodq/internal/config"
)

const DefaultModel = "gemini-2.0-flash"

// Interpretation is a plain-English rule translated into a concrete check.
type Interpretation struct {
	Table        string `json:"table"`
	Column       string `json:"column"`
	Check        string `json:"check"`
	SQLPredicate string `json:"sql_predicate"`
	Explanation  string `json:"explanation"`
}

// Params flattens the interpretation into job parameters.
func (i *Interpretation) Params() map[string]string {
	if i == nil {
		return nil
	}
	return map[string]string{
		"table":         i.Table,
		"column":        i.Column,
		"check":         i.Check,
		"sql_predicate": i.SQLPredicate,
	}
}

type Interpreter interface {
	Interpret(ctx context.Context, rule string) (*Interpretation, error)
}

// Gemini interprets rules with a Vertex AI model.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, cfg config.AssistantConfig) (*Gemini, error) {
	if cfg.Project == "" {
		return nil, errors.New("assistant project is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Interpret(ctx context.Context, rule string) (*Interpretation, error) {
	parts := []*genai.Part{{Text: prompt(rule)}}
	result, err := g.client.Models.GenerateContent(ctx, g.model, []*genai.Content{{Parts: parts}}, interpretConfig())
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	text, err := result.Text()
	if err != nil {
		return nil, err
	}
	return parseInterpretation(text)
}

func parseInterpretation(text string) (*Interpretation, error) {
	var out Interpretation
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode interpretation: %w", err)
	}
	if out.Table == "" || out.Check == "" {
		return nil, errors.New("interpretation is missing table or check")
	}
	return &out, nil
}

func interpretConfig() *genai.GenerateContentConfig {
	str := func(desc string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: desc}
	}
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"table":         str("table the rule applies to"),
				"column":        str("column the rule applies to, empty for row-level rules"),
				"check":         str("short name of the check, e.g. Range OK or Format Match"),
				"sql_predicate": str("SQL boolean expression that is true for valid rows"),
				"explanation":   str("one sentence describing the check"),
			},
			Required: []string{"table", "check", "sql_predicate"},
		},
	}
}

func prompt(rule string) string {
	return `You translate data quality rules written in plain English into checks over a SQL warehouse.
Return the table and column the rule targets, a short check name, a SQL predicate that is true
for rows that satisfy the rule, and a one sentence explanation.

Rule: ` + rule
}
