package namespace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// PayloadParameter is the name of the tool parameter that carries the
// invocation payload.
const PayloadParameter = "payload"

// FunctionDefinition describes an action as a native tool-calling function.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// DefineFunction synthesizes the function definition of an action. Every
// parameter is a required string: "payload" when the action has an example
// payload, plus one per example attribute key in sorted order.
func DefineFunction(a Action) FunctionDefinition {
	required := []string{}
	properties := map[string]any{}

	if example := a.ExamplePayload(); example != nil {
		required = append(required, PayloadParameter)
		properties[PayloadParameter] = map[string]any{
			"type":        "string",
			"description": fmt.Sprintf("The main function argument, use this as a template: %s", *example),
		}
	}

	attrs := a.ExampleAttributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		required = append(required, k)
		properties[k] = map[string]any{
			"type":        "string",
			"description": k,
		}
	}

	return FunctionDefinition{
		Name:        a.Name(),
		Description: a.Description(),
		Parameters: map[string]any{
			"type":       "object",
			"required":   required,
			"properties": properties,
		},
	}
}

// ValidateFunction compiles the synthesized schema of a and checks that the
// action's own examples satisfy it.
func ValidateFunction(a Action) error {
	def := DefineFunction(a)

	doc, err := toJSONValue(def.Parameters)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("mem://%s.json", def.Name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("schema for %s: %w", def.Name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", def.Name, err)
	}

	example := map[string]string{}
	for k, v := range a.ExampleAttributes() {
		example[k] = v
	}
	if p := a.ExamplePayload(); p != nil {
		example[PayloadParameter] = *p
	}
	inst, err := toJSONValue(example)
	if err != nil {
		return err
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("examples of %s do not match its schema: %w", def.Name, err)
	}
	return nil
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}
