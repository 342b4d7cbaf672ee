package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Structured represents a type that can be used for structured output
type Structured interface {
	// Validate validates the structured output
	Validate() error

	// JSONSchema returns the JSON schema for this type
	JSONSchema() map[string]interface{}
}

// StructuredRequest wraps a request with structured output requirements
type StructuredRequest[T Structured] struct {
	Messages     []Message
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	OutputType   T // template for the output type
}

// StructuredResponse contains the parsed and validated structured output
type StructuredResponse[T Structured] struct {
	Data        T                 `json:"data"`
	RawResponse *Response         `json:"raw_response"`
	Usage       *Usage            `json:"usage,omitempty"`
	Validation  *ValidationResult `json:"validation,omitempty"`
}

// ValidationResult contains details about validation
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Errors  []string `json:"errors,omitempty"`
	RawJSON string   `json:"raw_json,omitempty"`
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost,omitempty"`
}

// BaseStructured provides schema generation from struct tags. Embed it and
// override Validate.
type BaseStructured struct{}

func (b BaseStructured) Validate() error { return nil }

// SchemaOf builds an object schema from v's json and description tags.
func SchemaOf(v interface{}) map[string]interface{} {
	return generateJSONSchema(v)
}

func generateJSONSchema(v interface{}) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": make(map[string]interface{}),
		"required":   []string{},
	}

	typ := reflect.TypeOf(v)
	if typ == nil {
		return schema
	}
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return schema
	}

	properties := schema["properties"].(map[string]interface{})
	var required []string
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() || field.Anonymous {
			continue
		}
		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		jsonName := field.Name
		omitEmpty := false
		if jsonTag != "" {
			parts := strings.Split(jsonTag, ",")
			if parts[0] != "" {
				jsonName = parts[0]
			}
			for _, part := range parts[1:] {
				if part == "omitempty" {
					omitEmpty = true
				}
			}
		}

		properties[jsonName] = generateFieldSchema(field.Type, field.Tag.Get("description"))
		if !omitEmpty {
			required = append(required, jsonName)
		}
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func generateFieldSchema(t reflect.Type, description string) map[string]interface{} {
	schema := make(map[string]interface{})
	if description != "" {
		schema["description"] = description
	}

	switch t.Kind() {
	case reflect.String:
		schema["type"] = "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		schema["type"] = "integer"
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		schema["type"] = "integer"
		schema["minimum"] = 0
	case reflect.Float32, reflect.Float64:
		schema["type"] = "number"
	case reflect.Bool:
		schema["type"] = "boolean"
	case reflect.Slice, reflect.Array:
		schema["type"] = "array"
		schema["items"] = generateFieldSchema(t.Elem(), "")
	case reflect.Ptr:
		return generateFieldSchema(t.Elem(), description)
	default:
		schema["type"] = "object"
	}
	return schema
}

// ParseStructured decodes JSON into T and validates it. Markdown code fences
// around the JSON are tolerated.
func ParseStructured[T Structured](jsonStr string, template T) (*StructuredResponse[T], error) {
	var result T
	jsonStr = stripCodeFence(jsonStr)

	templateType := reflect.TypeOf(template)
	wantPtr := templateType.Kind() == reflect.Ptr
	if wantPtr {
		templateType = templateType.Elem()
	}
	ptrValue := reflect.New(templateType)

	if err := json.Unmarshal([]byte(jsonStr), ptrValue.Interface()); err != nil {
		return nil, NewLLMErrorWithCause("", ErrorTypeJSONParsingError, "json parsing error", err)
	}
	if wantPtr {
		result = ptrValue.Interface().(T)
	} else {
		result = ptrValue.Elem().Interface().(T)
	}

	validation := &ValidationResult{RawJSON: jsonStr}
	if err := result.Validate(); err != nil {
		validation.Errors = []string{err.Error()}
		return &StructuredResponse[T]{Data: result, Validation: validation}, fmt.Errorf("validation failed: %w", err)
	}
	validation.Valid = true
	return &StructuredResponse[T]{Data: result, Validation: validation}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// StructuredChat asks any Client for a JSON object matching the output
// type's schema, then parses and validates it. Providers without a native
// JSON mode rely on the schema instruction alone.
func StructuredChat[T Structured](ctx context.Context, c Client, req StructuredRequest[T]) (*StructuredResponse[T], error) {
	schema := req.OutputType.JSONSchema()
	instruction := "You must respond ONLY with a JSON object matching the provided schema. Do not add explanations."
	if schemaBytes, err := json.MarshalIndent(schema, "", "  "); err == nil {
		instruction += "\n\nSchema:\n" + string(schemaBytes)
	}

	system := instruction
	if req.SystemPrompt != "" {
		system = req.SystemPrompt + "\n\n" + instruction
	}

	chatReq := &ChatRequest{
		Messages:       append([]Message(nil), req.Messages...),
		SystemPrompt:   system,
		Model:          req.Model,
		Temperature:    Float64(req.Temperature),
		ResponseFormat: &ResponseFormat{Type: "json_object", JSONSchema: schema},
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = Int(req.MaxTokens)
	}

	resp, err := c.Chat(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	out, err := ParseStructured(resp.Content, req.OutputType)
	if err != nil {
		return out, fmt.Errorf("failed to parse structured output: %w", err)
	}
	out.RawResponse = resp
	out.Usage = resp.Usage
	return out, nil
}
