package quality

import (
	"errors"
	"fmt"
	"strings"
)

// Severity ranks how urgent a rule violation is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Valid returns true when severity is one of the known levels.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// AtLeast compares severities by rank.
func (s Severity) AtLeast(target Severity) bool {
	return severityRank(s) >= severityRank(target)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParameterRule bounds one water-quality parameter.
type ParameterRule struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Severity Severity `json:"severity"`
}

// Validate checks rule invariants.
func (r ParameterRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("parameter rule: empty name")
	}
	if !r.Severity.Valid() {
		return fmt.Errorf("parameter rule %s: invalid severity %q", r.Name, r.Severity)
	}
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("parameter rule %s: no bounds", r.Name)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("parameter rule %s: min above max", r.Name)
	}
	return nil
}

// Keys returns the canonical name followed by every alias.
func (r ParameterRule) Keys() []string {
	keys := make([]string, 0, len(r.Aliases)+1)
	keys = append(keys, r.Name)
	keys = append(keys, r.Aliases...)
	return keys
}

// RuleTable is an ordered, read-only set of parameter rules with alias resolution.
type RuleTable struct {
	rules      []ParameterRule
	exact      map[string]int
	normalized map[string]int
}

// NewRuleTable builds a table and indexes every name and alias.
func NewRuleTable(rules []ParameterRule) (*RuleTable, error) {
	t := &RuleTable{
		rules:      make([]ParameterRule, 0, len(rules)),
		exact:      make(map[string]int),
		normalized: make(map[string]int),
	}
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		idx := len(t.rules)
		for _, key := range rule.Keys() {
			if _, ok := t.exact[key]; ok {
				return nil, fmt.Errorf("rule table: duplicate key %q", key)
			}
			t.exact[key] = idx
			norm := NormalizeParameter(key)
			if owner, ok := t.normalized[norm]; ok && owner != idx {
				return nil, fmt.Errorf("rule table: key %q collides with %s", key, t.rules[owner].Name)
			}
			t.normalized[norm] = idx
		}
		t.rules = append(t.rules, rule)
	}
	return t, nil
}

// Rules returns the rules in table order.
func (t *RuleTable) Rules() []ParameterRule {
	if t == nil {
		return nil
	}
	out := make([]ParameterRule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Lookup resolves a parameter key to its rule. The exact key is tried first,
// then its lowercase form, then the fully normalised form.
func (t *RuleTable) Lookup(key string) (ParameterRule, bool) {
	if t == nil {
		return ParameterRule{}, false
	}
	if idx, ok := t.exact[key]; ok {
		return t.rules[idx], true
	}
	if idx, ok := t.normalized[strings.ToLower(key)]; ok {
		return t.rules[idx], true
	}
	if idx, ok := t.normalized[NormalizeParameter(key)]; ok {
		return t.rules[idx], true
	}
	return ParameterRule{}, false
}

// NormalizedKeys returns every normalised key resolving to the named rule.
func (t *RuleTable) NormalizedKeys(key string) []string {
	rule, ok := t.Lookup(key)
	if !ok {
		return nil
	}
	seen := make(map[string]struct{})
	var keys []string
	for _, k := range rule.Keys() {
		norm := NormalizeParameter(k)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		keys = append(keys, norm)
	}
	return keys
}

// NormalizeParameter lowercases, trims and replaces internal whitespace with underscores.
func NormalizeParameter(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "_")
}

func bound(v float64) *float64 {
	return &v
}

// DefaultRules is the canonical rule set. Shorthand names used by station
// producers are folded in as aliases.
func DefaultRules() []ParameterRule {
	return []ParameterRule{
		{Name: "pH", Min: bound(6.5), Max: bound(8.5), Severity: SeverityMedium},
		{Name: "dissolved_oxygen", Aliases: []string{"DO"}, Min: bound(5.0), Severity: SeverityHigh},
		{Name: "turbidity", Max: bound(5.0), Severity: SeverityMedium},
		{Name: "lead", Aliases: []string{"Pb"}, Max: bound(0.015), Severity: SeverityCritical},
		{Name: "arsenic", Aliases: []string{"As"}, Max: bound(0.010), Severity: SeverityCritical},
	}
}

// DefaultRuleTable builds the table from DefaultRules.
func DefaultRuleTable() *RuleTable {
	table, err := NewRuleTable(DefaultRules())
	if err != nil {
		panic(err)
	}
	return table
}
