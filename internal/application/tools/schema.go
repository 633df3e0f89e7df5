package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

var reflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// schemaFor reflects the JSON schema of an argument struct into the plain map
// form the generation API expects.
func schemaFor(v any) map[string]any {
	schema := reflector.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		panic("tools: cannot marshal schema: " + err.Error())
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic("tools: cannot decode schema: " + err.Error())
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}
