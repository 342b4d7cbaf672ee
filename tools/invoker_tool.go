package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// InvokerTool exposes an Invoker as a language-model function tool taking
// {"latitude": number, "longitude": number}.
type InvokerTool struct {
	name        string
	description string
	invoker     Invoker
}

// NewInvokerTool wraps inv under the given tool name.
func NewInvokerTool(name, description string, inv Invoker) *InvokerTool {
	return &InvokerTool{name: name, description: description, invoker: inv}
}

func (t *InvokerTool) Name() string        { return t.name }
func (t *InvokerTool) Description() string { return t.description }

// Schema implements Tool interface
func (t *InvokerTool) Schema() map[string]interface{} {
	return CoordinatesSchema()
}

// CoordinatesSchema is the JSON schema shared by all location-taking tools.
func CoordinatesSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"latitude": map[string]interface{}{
				"type":        "number",
				"description": "Latitude of the location in decimal degrees",
				"minimum":     -90,
				"maximum":     90,
			},
			"longitude": map[string]interface{}{
				"type":        "number",
				"description": "Longitude of the location in decimal degrees",
				"minimum":     -180,
				"maximum":     180,
			},
		},
		"required": []string{"latitude", "longitude"},
	}
}

type toolFailure struct {
	Error  FailureReason `json:"error"`
	Detail string        `json:"detail,omitempty"`
}

// Execute decodes the coordinates, invokes once and returns the upstream JSON
// body. Failures are returned as a JSON object so the model can explain them.
func (t *InvokerTool) Execute(ctx context.Context, input string) (string, error) {
	var loc Location
	if err := json.Unmarshal([]byte(input), &loc); err != nil {
		return "", fmt.Errorf("invalid %s arguments: %w", t.name, err)
	}
	res := t.invoker.Invoke(ctx, loc)
	if res.OK() {
		return string(res.Raw()), nil
	}
	b, err := json.Marshal(toolFailure{Error: res.Reason(), Detail: res.Detail()})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var _ Tool = (*InvokerTool)(nil)
