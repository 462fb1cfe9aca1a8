package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sleep-hub/sleep-hub/internal/domain/stage"
)

// Policy bundles the swappable decision data of the engine: classifier rules,
// dwell-time windows and command templates. Thresholds and payloads live
// here, not in engine logic.
type Policy struct {
	Classifier ClassifierPolicy           `yaml:"classifier" json:"classifier"`
	Dwell      DwellPolicy                `yaml:"dwell" json:"dwell"`
	Commands   map[string]CommandTemplate `yaml:"commands" json:"commands"`
}

// ClassifierPolicy selects a classification strategy and carries the rule
// table for the rule-based variants.
type ClassifierPolicy struct {
	// Mode is one of "tree", "rules" or "hybrid".
	Mode     string `yaml:"mode" json:"mode"`
	Rules    []Rule `yaml:"rules" json:"rules"`
	Fallback string `yaml:"fallback" json:"fallback"`
}

// Rule is one ordered guard/label pair. The guard is an expression over
// {hr, spo2, mic, pressure}; the first matching rule wins.
type Rule struct {
	When  string `yaml:"when" json:"when"`
	Stage string `yaml:"stage" json:"stage"`
}

// DwellPolicy parameterizes the hysteresis window per current stable stage.
type DwellPolicy struct {
	DefaultSeconds  int            `yaml:"defaultSeconds" json:"defaultSeconds"`
	PerStageSeconds map[string]int `yaml:"perStageSeconds" json:"perStageSeconds"`
}

// CommandTemplate maps a stable stage to an actuator command. Stages absent
// from the command table legitimately map to no action.
type CommandTemplate struct {
	Type       string                 `yaml:"type" json:"type"`
	Payload    map[string]interface{} `yaml:"payload" json:"payload"`
	TTLSeconds int                    `yaml:"ttlSeconds" json:"ttlSeconds"`
}

// DefaultDwellSeconds is the stabilizer's default hysteresis window.
const DefaultDwellSeconds = 30

// Default returns the built-in policy: the hybrid classifier with the
// starter safety rules, a 30s dwell for every stage and the stock actuator
// command table.
func Default() *Policy {
	return &Policy{
		Classifier: ClassifierPolicy{
			Mode: "hybrid",
			Rules: []Rule{
				{When: "spo2 > 0 && spo2 <= 91.9683 && hr > 59.5", Stage: "Apnea"},
				{When: "mic > 109.5 && hr > 59.5", Stage: "Snoring"},
			},
			Fallback: "Light",
		},
		Dwell: DwellPolicy{
			DefaultSeconds: DefaultDwellSeconds,
		},
		Commands: map[string]CommandTemplate{
			"Apnea": {
				Type:       "VIBRATE_STRONG",
				Payload:    map[string]interface{}{"level": 10, "durationMs": 3000},
				TTLSeconds: 20,
			},
			"Snoring": {
				Type:       "VIBRATE_GENTLY",
				Payload:    map[string]interface{}{"level": 3, "durationMs": 500},
				TTLSeconds: 15,
			},
			"Light": {
				Type:       "SET_HEIGHT",
				Payload:    map[string]interface{}{"heightMm": 45},
				TTLSeconds: 10,
			},
			"Deep": {
				Type:       "SET_HEIGHT",
				Payload:    map[string]interface{}{"heightMm": 55},
				TTLSeconds: 10,
			},
			// Awake, REM, Tossing: no actuation
		},
	}
}

// Load reads a policy YAML file, validates it against the policy schema and
// fills defaults for omitted sections. An empty path returns the built-in
// defaults.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, fmt.Errorf("policy file %s is invalid: %w", path, err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file: %w", err)
	}
	p.applyDefaults()
	return &p, nil
}

// applyDefaults fills omitted sections from the built-in policy. A section
// present in the file replaces its default wholesale; there is no merging.
func (p *Policy) applyDefaults() {
	def := Default()
	if p.Classifier.Mode == "" {
		p.Classifier.Mode = def.Classifier.Mode
	}
	if len(p.Classifier.Rules) == 0 {
		p.Classifier.Rules = def.Classifier.Rules
	}
	if p.Classifier.Fallback == "" {
		p.Classifier.Fallback = def.Classifier.Fallback
	}
	if p.Dwell.DefaultSeconds <= 0 {
		p.Dwell.DefaultSeconds = def.Dwell.DefaultSeconds
	}
	if p.Commands == nil {
		p.Commands = def.Commands
	}
}

// MinDwell returns the minimum dwell window for transitions away from the
// given stable stage.
func (p *Policy) MinDwell(st stage.Stage) time.Duration {
	if secs, ok := p.Dwell.PerStageSeconds[st.String()]; ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return time.Duration(p.Dwell.DefaultSeconds) * time.Second
}

// TemplateFor returns the command template for a stable stage. Stages with
// no mapping, including unknown labels, yield no command.
func (p *Policy) TemplateFor(st stage.Stage) (CommandTemplate, bool) {
	tmpl, ok := p.Commands[st.String()]
	return tmpl, ok
}

// PayloadJSON renders a template payload as JSON for storage.
func (t CommandTemplate) PayloadJSON() json.RawMessage {
	if len(t.Payload) == 0 {
		return json.RawMessage(`{}`)
	}
	b, err := json.Marshal(t.Payload)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
