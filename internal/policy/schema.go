package policy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// policySchema constrains a policy document before it is decoded. Stage names
// are left open on purpose: the engine treats unknown stages as "no action",
// so a forward-compatible policy file must not be rejected for carrying one.
const policySchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"properties": {
		"classifier": {
			"type": "object",
			"properties": {
				"mode": {"enum": ["tree", "rules", "hybrid"]},
				"rules": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["when", "stage"],
						"properties": {
							"when": {"type": "string", "minLength": 1},
							"stage": {"type": "string", "minLength": 1}
						}
					}
				},
				"fallback": {"type": "string"}
			}
		},
		"dwell": {
			"type": "object",
			"properties": {
				"defaultSeconds": {"type": "integer", "minimum": 1},
				"perStageSeconds": {
					"type": "object",
					"additionalProperties": {"type": "integer", "minimum": 1}
				}
			}
		},
		"commands": {
			"type": "object",
			"additionalProperties": {
				"type": "object",
				"required": ["type"],
				"properties": {
					"type": {"type": "string", "minLength": 1},
					"payload": {"type": "object"},
					"ttlSeconds": {"type": "integer", "minimum": 1}
				}
			}
		}
	}
}`

var compiledSchema = jsonschema.MustCompileString("policy.json", policySchema)

// validate checks a raw policy YAML document against the schema. The YAML is
// round-tripped through JSON so the validator sees plain JSON types.
func validate(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("not valid YAML: %w", err)
	}

	jsonBytes, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("policy is not JSON-representable: %w", err)
	}
	var jsonDoc interface{}
	if err := json.Unmarshal(jsonBytes, &jsonDoc); err != nil {
		return err
	}

	return compiledSchema.Validate(jsonDoc)
}
