package classifier

import (
	"fmt"

	"github.com/Knetic/govaluate"

	"github.com/sleep-hub/sleep-hub/internal/domain/reading"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/policy"
)

// compiledRule pairs a parsed guard expression with its stage label.
type compiledRule struct {
	guard *govaluate.EvaluableExpression
	stage stage.Stage
}

// RuleTable classifies by evaluating an ordered list of guard expressions
// over {hr, spo2, mic, pressure}; the first matching guard wins. Guards that
// fail to evaluate or do not yield a boolean are skipped so the table stays
// total, and an exhausted table falls back to a fixed stage.
type RuleTable struct {
	rules    []compiledRule
	fallback stage.Stage
}

// NewRuleTable compiles the policy rule table. Rules that reference unknown
// stages or carry unparseable guards are rejected at load time rather than
// silently dropped at classification time.
func NewRuleTable(rules []policy.Rule, fallback stage.Stage) (*RuleTable, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		st := stage.Parse(r.Stage)
		if st == stage.StageUnknown {
			return nil, fmt.Errorf("rule %d maps to unknown stage %q", i, r.Stage)
		}
		expr, err := govaluate.NewEvaluableExpression(r.When)
		if err != nil {
			return nil, fmt.Errorf("rule %d guard %q: %w", i, r.When, err)
		}
		compiled = append(compiled, compiledRule{guard: expr, stage: st})
	}
	return &RuleTable{rules: compiled, fallback: fallback}, nil
}

func (t *RuleTable) Classify(r reading.Reading) stage.Stage {
	if st, ok := t.match(r); ok {
		return st
	}
	return t.fallback
}

// match evaluates the table in order and reports the first firing rule.
func (t *RuleTable) match(r reading.Reading) (stage.Stage, bool) {
	params := map[string]interface{}{
		"hr":       r.HR,
		"spo2":     r.SpO2,
		"mic":      r.MicLevel,
		"pressure": r.Pressure,
	}
	for _, cr := range t.rules {
		result, err := cr.guard.Evaluate(params)
		if err != nil {
			continue
		}
		if matched, ok := result.(bool); ok && matched {
			return cr.stage, true
		}
	}
	return stage.StageUnknown, false
}
