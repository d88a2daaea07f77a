/*
Package factory converts rule files into recurrence rule requests.

PURPOSE:
  Lets recurring obligations be bulk-loaded from JSON or YAML (for example
  when migrating from a spreadsheet), and exported back in the same shape.
  The factory only parses and converts; validation happens in
  recurrence.CreateRuleRequest.Validate, so a file cannot bypass the rules
  enforced for API requests.

FILE SCHEMA (YAML; JSON uses the same keys):
  rules:
    - payee: Rent
      amount: 1500.00
      category: bill
      cadence: monthly
      interval: 1            # optional, defaults to 1
      start_date: 2025-01-01
      end_date: 2025-12-31   # optional
      count: 12              # optional

  A bare top-level list of rules is accepted as well.

SCALARS:
  Amounts and dates are kept as their literal text (see Scalar), so
  "1500.10" stays exact and unquoted YAML dates are not turned into
  timestamps.

SEE ALSO:
  - recurrence/rule.go: CreateRuleRequest and its validation
  - cmd/ledger/cmd/rules.go: `ledger rules import|export`
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/finance-ledger/ledger"
	"github.com/warp/finance-ledger/recurrence"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// FILE SCHEMA TYPES
// =============================================================================

// Format is a rule file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension. Unknown
// extensions are read as YAML, which also accepts JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// Scalar is a literal value kept as text. It decodes from JSON strings and
// numbers and from any YAML scalar.
type Scalar string

func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	*s = Scalar(b)
	return nil
}

func (s *Scalar) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar value", node.Line)
	}
	if node.Tag == "!!null" {
		*s = ""
		return nil
	}
	*s = Scalar(node.Value)
	return nil
}

// RuleJSON is the file representation of one recurrence rule.
type RuleJSON struct {
	Payee     string `json:"payee" yaml:"payee"`
	Amount    Scalar `json:"amount" yaml:"amount"`
	Category  string `json:"category" yaml:"category"`
	Cadence   string `json:"cadence" yaml:"cadence"`
	Interval  *int   `json:"interval,omitempty" yaml:"interval,omitempty"`
	StartDate Scalar `json:"start_date" yaml:"start_date"`
	EndDate   Scalar `json:"end_date,omitempty" yaml:"end_date,omitempty"`
	Count     *int   `json:"count,omitempty" yaml:"count,omitempty"`
}

// RuleFileJSON is the top-level document.
type RuleFileJSON struct {
	Rules []RuleJSON `json:"rules" yaml:"rules"`
}

// =============================================================================
// FACTORY
// =============================================================================

// RuleFactory converts file rules to creation requests.
type RuleFactory struct{}

func NewRuleFactory() *RuleFactory {
	return &RuleFactory{}
}

// ParseFile reads and converts a rule file.
func (f *RuleFactory) ParseFile(path string) ([]recurrence.CreateRuleRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file: %w", err)
	}
	return f.ParseRules(data, FormatFromPath(path))
}

// ParseRules decodes data and converts every rule. The first invalid rule
// fails the whole document.
func (f *RuleFactory) ParseRules(data []byte, format Format) ([]recurrence.CreateRuleRequest, error) {
	rules, err := decode(data, format)
	if err != nil {
		return nil, err
	}

	out := make([]recurrence.CreateRuleRequest, 0, len(rules))
	for i, rj := range rules {
		req, err := f.FromJSON(rj)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rj.Payee, err)
		}
		if _, err := req.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, rj.Payee, err)
		}
		out = append(out, req)
	}
	return out, nil
}

func decode(data []byte, format Format) ([]RuleJSON, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	switch format {
	case FormatJSON:
		if trimmed[0] == '[' {
			var rules []RuleJSON
			if err := json.Unmarshal(trimmed, &rules); err != nil {
				return nil, fmt.Errorf("invalid JSON: %w", err)
			}
			return rules, nil
		}
		var doc RuleFileJSON
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return doc.Rules, nil

	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(trimmed, &root); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		if len(root.Content) == 0 {
			return nil, nil
		}
		body := root.Content[0]
		if body.Kind == yaml.SequenceNode {
			var rules []RuleJSON
			if err := body.Decode(&rules); err != nil {
				return nil, fmt.Errorf("invalid YAML: %w", err)
			}
			return rules, nil
		}
		var doc RuleFileJSON
		if err := body.Decode(&doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		return doc.Rules, nil

	default:
		return nil, fmt.Errorf("unknown rule file format %q", format)
	}
}

// FromJSON converts one file rule. Field-level checks beyond parsing are
// left to CreateRuleRequest.Validate.
func (f *RuleFactory) FromJSON(rj RuleJSON) (recurrence.CreateRuleRequest, error) {
	req := recurrence.CreateRuleRequest{
		Payee:    rj.Payee,
		Category: ledger.Category(strings.ToLower(strings.TrimSpace(rj.Category))),
		Cadence:  rj.Cadence,
		Interval: rj.Interval,
		Count:    rj.Count,
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(string(rj.Amount)))
	if err != nil {
		return req, &ledger.ValidationError{Field: "amount", Message: fmt.Sprintf("not a number: %q", rj.Amount)}
	}
	req.Amount = amount

	start, err := ledger.ParseDate(string(rj.StartDate))
	if err != nil {
		return req, &ledger.ValidationError{Field: "start_date", Message: err.Error()}
	}
	req.StartDate = start

	if rj.EndDate != "" {
		end, err := ledger.ParseDate(string(rj.EndDate))
		if err != nil {
			return req, &ledger.ValidationError{Field: "end_date", Message: err.Error()}
		}
		req.EndDate = &end
	}
	return req, nil
}

// ToJSON converts a stored rule back to its file representation.
func (f *RuleFactory) ToJSON(rule ledger.Rule) RuleJSON {
	rj := RuleJSON{
		Payee:     rule.Payee,
		Amount:    Scalar(rule.Amount.String()),
		Category:  string(rule.Category),
		Cadence:   string(rule.Cadence),
		StartDate: Scalar(rule.StartDate.String()),
	}
	if rule.Interval != 1 {
		interval := rule.Interval
		rj.Interval = &interval
	}
	if rule.EndDate != nil {
		rj.EndDate = Scalar(rule.EndDate.String())
	}
	if rule.Count != nil {
		count := *rule.Count
		rj.Count = &count
	}
	return rj
}

// Encode writes rules in the given format.
func (f *RuleFactory) Encode(rules []ledger.Rule, format Format) ([]byte, error) {
	doc := RuleFileJSON{Rules: make([]RuleJSON, 0, len(rules))}
	for _, r := range rules {
		doc.Rules = append(doc.Rules, f.ToJSON(r))
	}
	if format == FormatJSON {
		return json.MarshalIndent(doc, "", "  ")
	}
	return yaml.Marshal(doc)
}
