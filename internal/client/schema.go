package client

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wagiedev/daemonkit/internal/errors"
)

// launchSessionSchema describes the wire form of a LaunchSessionRequest.
func launchSessionSchema() *jsonschema.Schema {
	minQuery := 1
	minTurns := 0.0

	stringList := &jsonschema.Schema{
		Type:  "array",
		Items: &jsonschema.Schema{Type: "string"},
	}

	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"query":                  {Type: "string", MinLength: &minQuery},
			"title":                  {Type: "string"},
			"model":                  {Type: "string"},
			"mcp_config":             {Type: "object"},
			"permission_prompt_tool": {Type: "string"},
			"working_dir":            {Type: "string"},
			"max_turns":              {Type: "integer", Minimum: &minTurns},
			"system_prompt":          {Type: "string"},
			"append_system_prompt":   {Type: "string"},
			"allowed_tools":          stringList,
			"disallowed_tools":       stringList,
			"custom_instructions":    {Type: "string"},
			"verbose":                {Type: "boolean"},
		},
		Required: []string{"query"},
	}
}

// requestValidator checks requests against a resolved schema.
type requestValidator struct {
	name     string
	resolved *jsonschema.Resolved
}

func newRequestValidator(name string, schema *jsonschema.Schema) (*requestValidator, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", name, err)
	}

	return &requestValidator{name: name, resolved: resolved}, nil
}

// validate converts req to its wire form and validates it.
// Returns *ValidationError when the request does not match the schema.
func (v *requestValidator) validate(req any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return &errors.ValidationError{Field: v.name, Message: err.Error()}
	}

	var instance map[string]any
	if err := json.Unmarshal(data, &instance); err != nil {
		return &errors.ValidationError{Field: v.name, Message: err.Error()}
	}

	if err := v.resolved.Validate(instance); err != nil {
		return &errors.ValidationError{Field: v.name, Message: err.Error()}
	}

	return nil
}
