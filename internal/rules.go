package internal

import (
	"github.com/Knetic/govaluate"
	"github.com/sirupsen/logrus"
)

// Rule routes a stored event to an extra topic when its expression holds.
type Rule struct {
	When    string   `yaml:"when"`
	Emit    string   `yaml:"emit"`
	Drivers []string `yaml:"drivers"`
}

// RuleMatch is a topic selected by a rule, optionally pinned to drivers.
type RuleMatch struct {
	Topic   string
	Drivers []string
}

type compiledRule struct {
	emit    string
	drivers []string
	expr    *govaluate.EvaluableExpression
}

type RuleEngine struct {
	rules  []compiledRule
	logger *logrus.Entry
}

func NewRuleEngine(rules []Rule, logger *logrus.Entry) (*RuleEngine, error) {
	if logger == nil {
		logger = NewLogger("rules")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		expr, err := govaluate.NewEvaluableExpression(rule.When)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{emit: rule.Emit, drivers: rule.Drivers, expr: expr})
	}

	return &RuleEngine{rules: compiled, logger: logger}, nil
}

// Evaluate returns the topics whose rule matches. Parameters are the flattened
// raw payload overlaid with the canonical event fields.
func (r *RuleEngine) Evaluate(event Event, raw map[string]interface{}) []RuleMatch {
	if r == nil || len(r.rules) == 0 {
		return nil
	}

	params := Flatten(raw)
	for key, value := range event.Fields() {
		params[key] = value
	}

	matches := make([]RuleMatch, 0, 1)
	for _, rule := range r.rules {
		result, err := rule.expr.Evaluate(params)
		if err != nil {
			r.logger.Debugf("rule %q skipped: %v", rule.emit, err)
			continue
		}
		ok, _ := result.(bool)
		if ok {
			matches = append(matches, RuleMatch{Topic: rule.emit, Drivers: rule.drivers})
		}
	}
	return matches
}
