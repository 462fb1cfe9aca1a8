package classifier

import (
	"fmt"

	"github.com/sleep-hub/sleep-hub/internal/domain/reading"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
	"github.com/sleep-hub/sleep-hub/internal/policy"
)

// Classifier maps a sensor reading to a raw stage label. Implementations
// must be deterministic, side-effect free and total: every reading yields a
// stage, never an error.
type Classifier interface {
	Classify(r reading.Reading) stage.Stage
}

// FromPolicy builds the classifier selected by the policy file.
func FromPolicy(p *policy.Policy) (Classifier, error) {
	fallback := stage.Parse(p.Classifier.Fallback)
	if fallback == stage.StageUnknown {
		fallback = stage.StageLight
	}

	switch p.Classifier.Mode {
	case "tree":
		return NewTree(), nil
	case "rules":
		return NewRuleTable(p.Classifier.Rules, fallback)
	case "hybrid":
		rules, err := NewRuleTable(p.Classifier.Rules, fallback)
		if err != nil {
			return nil, err
		}
		return NewHybrid(rules, NewTree()), nil
	default:
		return nil, fmt.Errorf("unknown classifier mode %q", p.Classifier.Mode)
	}
}

// Hybrid evaluates a small set of high-confidence safety rules first and
// falls back to the decision tree when none of them fire.
type Hybrid struct {
	safety *RuleTable
	tree   *Tree
}

func NewHybrid(safety *RuleTable, tree *Tree) *Hybrid {
	return &Hybrid{safety: safety, tree: tree}
}

func (h *Hybrid) Classify(r reading.Reading) stage.Stage {
	if st, ok := h.safety.match(r); ok {
		return st
	}
	return h.tree.Classify(r)
}
