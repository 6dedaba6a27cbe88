package application

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	quality "water-quality-cloud/internal/quality/domain"
)

// RuleOverride adjusts or adds a parameter rule. Unset fields keep the default.
type RuleOverride struct {
	Name     string   `yaml:"name"`
	Aliases  []string `yaml:"aliases"`
	Min      *float64 `yaml:"min"`
	Max      *float64 `yaml:"max"`
	Severity string   `yaml:"severity"`
	// ClearMin and ClearMax drop a default bound.
	ClearMin bool `yaml:"clear_min"`
	ClearMax bool `yaml:"clear_max"`
}

// RulesConfig is the YAML rule override file.
type RulesConfig struct {
	Rules []RuleOverride `yaml:"rules"`
}

// LoadRuleTable builds the rule table, applying overrides from path when set.
func LoadRuleTable(path string) (*quality.RuleTable, error) {
	if path == "" {
		return quality.NewRuleTable(quality.DefaultRules())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleTable(data)
}

// ParseRuleTable merges YAML overrides into the default rules.
func ParseRuleTable(data []byte) (*quality.RuleTable, error) {
	var cfg RulesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("rules config: %w", err)
	}
	return quality.NewRuleTable(MergeRules(quality.DefaultRules(), cfg.Rules))
}

// MergeRules applies overrides in order. Overrides naming an unknown rule append it.
func MergeRules(base []quality.ParameterRule, overrides []RuleOverride) []quality.ParameterRule {
	rules := make([]quality.ParameterRule, len(base))
	copy(rules, base)
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.Name] = i
	}
	for _, o := range overrides {
		i, ok := index[o.Name]
		if !ok {
			rules = append(rules, quality.ParameterRule{Name: o.Name})
			i = len(rules) - 1
			index[o.Name] = i
		}
		rule := rules[i]
		rule.Aliases = append(append([]string(nil), rule.Aliases...), o.Aliases...)
		if o.ClearMin {
			rule.Min = nil
		}
		if o.ClearMax {
			rule.Max = nil
		}
		if o.Min != nil {
			v := *o.Min
			rule.Min = &v
		}
		if o.Max != nil {
			v := *o.Max
			rule.Max = &v
		}
		if o.Severity != "" {
			rule.Severity = quality.Severity(o.Severity)
		}
		rules[i] = rule
	}
	return rules
}
