package tool

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/tanpawarit/chative-toolflow/agent/contract"
)

var argsReflector = jsonschema.Reflector{
	DoNotReference:            true,
	AllowAdditionalProperties: false,
}

// JSONSchema returns the JSON Schema of a tool's arguments, for callers that
// talk to the flows without an eino model.
func JSONSchema(tool string) (json.RawMessage, error) {
	var target any
	switch tool {
	case ToolContactFlow:
		target = &ContactArgs{}
	case ToolEventFlow:
		target = &EventArgs{}
	default:
		return nil, fmt.Errorf("%w: %s", contract.ErrUnknownTool, tool)
	}

	raw, err := json.Marshal(argsReflector.Reflect(target))
	if err != nil {
		return nil, fmt.Errorf("marshal tool schema: %w", err)
	}
	return raw, nil
}
