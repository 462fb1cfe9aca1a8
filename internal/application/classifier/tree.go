package classifier

import (
	"github.com/sleep-hub/sleep-hub/internal/domain/reading"
	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// feature indexes the reading fields a tree node may split on.
type feature int

const (
	featHR feature = iota
	featSpO2
	featMic
	featPressure
)

// node is one decision node in the arena. Leaf nodes carry a stage and have
// left == right == -1; inner nodes route left when value <= threshold.
type node struct {
	feat      feature
	threshold float64
	left      int
	right     int
	leaf      stage.Stage
}

// Tree is an arena-backed binary decision tree classifier.
type Tree struct {
	nodes []node
	root  int
}

// NewTree returns the starter decision tree over hr/spo2/mic/pressure.
// Thresholds were exported from the trained starter model; swap the policy
// to a rule table to override them without touching this structure.
func NewTree() *Tree {
	leaf := func(st stage.Stage) node {
		return node{left: -1, right: -1, leaf: st}
	}
	split := func(f feature, th float64, l, r int) node {
		return node{feat: f, threshold: th, left: l, right: r}
	}

	// node layout:
	//  0: hr <= 59.5            -> Deep | 1
	//  1: spo2 <= 91.9683       -> Apnea | 2
	//  2: pressure <= 1493.5    -> 3 | 6
	//  3: mic <= 109.5          -> 4 | Snoring
	//  4: pressure <= 505.0     -> REM | Light
	//  6: pressure <= 2749.5    -> Awake | Tossing
	nodes := []node{
		split(featHR, 59.5, 7, 1),
		split(featSpO2, 91.9683, 8, 2),
		split(featPressure, 1493.5, 3, 6),
		split(featMic, 109.5, 4, 9),
		split(featPressure, 505.0, 10, 11),
		leaf(stage.StageTossing),
		split(featPressure, 2749.5, 12, 5),
		leaf(stage.StageDeep),
		leaf(stage.StageApnea),
		leaf(stage.StageSnoring),
		leaf(stage.StageREM),
		leaf(stage.StageLight),
		leaf(stage.StageAwake),
	}
	return &Tree{nodes: nodes, root: 0}
}

// Classify walks the tree to a leaf. The walk is bounded by the arena size,
// so even a malformed arena cannot loop; a dangling index degrades to the
// Light fallback.
func (t *Tree) Classify(r reading.Reading) stage.Stage {
	idx := t.root
	for steps := 0; steps <= len(t.nodes); steps++ {
		if idx < 0 || idx >= len(t.nodes) {
			break
		}
		n := t.nodes[idx]
		if n.left == -1 && n.right == -1 {
			return n.leaf
		}
		if t.value(n.feat, r) <= n.threshold {
			idx = n.left
		} else {
			idx = n.right
		}
	}
	return stage.StageLight
}

func (t *Tree) value(f feature, r reading.Reading) float64 {
	switch f {
	case featHR:
		return r.HR
	case featSpO2:
		return r.SpO2
	case featMic:
		return r.MicLevel
	default:
		return r.Pressure
	}
}
