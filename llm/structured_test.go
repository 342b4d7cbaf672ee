package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scopeVerdict struct {
	BaseStructured
	IsOffTopic bool   `json:"is_off_topic" description:"true when the request is unrelated"`
	Reasoning  string `json:"reasoning"`
	Hint       string `json:"hint,omitempty"`
}

func (s scopeVerdict) JSONSchema() map[string]interface{} { return SchemaOf(s) }

func (s scopeVerdict) Validate() error {
	if s.Reasoning == "" {
		return errors.New("reasoning is required")
	}
	return nil
}

type stubClient struct {
	content string
	got     *ChatRequest
}

func (c *stubClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	c.got = req
	return &Response{Content: c.content}, nil
}
func (c *stubClient) Model() string      { return "stub" }
func (c *stubClient) Provider() Provider { return ProviderOpenAI }

func TestSchemaOf(t *testing.T) {
	schema := SchemaOf(scopeVerdict{})
	props := schema["properties"].(map[string]interface{})

	if _, ok := props["BaseStructured"]; ok {
		t.Error("embedded base should not appear in schema")
	}
	field := props["is_off_topic"].(map[string]interface{})
	if field["type"] != "boolean" || field["description"] == "" {
		t.Errorf("unexpected field schema: %#v", field)
	}
	required := schema["required"].([]string)
	if len(required) != 2 {
		t.Errorf("Expected 2 required fields, got %v", required)
	}
}

func TestParseStructured(t *testing.T) {
	resp, err := ParseStructured("```json\n{\"is_off_topic\":true,\"reasoning\":\"cooking\"}\n```", scopeVerdict{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !resp.Data.IsOffTopic || !resp.Validation.Valid {
		t.Errorf("unexpected result: %#v", resp)
	}

	if _, err := ParseStructured(`{"is_off_topic":false}`, scopeVerdict{}); err == nil {
		t.Error("expected validation error")
	}

	_, err = ParseStructured(`not json`, scopeVerdict{})
	if e, ok := AsLLMError(err); !ok || e.Type != ErrorTypeJSONParsingError {
		t.Errorf("expected json parsing error, got %v", err)
	}
}

func TestStructuredChat(t *testing.T) {
	client := &stubClient{content: `{"is_off_topic":false,"reasoning":"weather"}`}
	out, err := StructuredChat(context.Background(), client, StructuredRequest[scopeVerdict]{
		Messages:     []Message{{Role: "user", Content: "rain tomorrow?"}},
		SystemPrompt: "Classify.",
	})
	if err != nil {
		t.Fatalf("structured chat: %v", err)
	}
	if out.Data.IsOffTopic {
		t.Error("expected on-topic verdict")
	}
	if client.got.ResponseFormat == nil || client.got.ResponseFormat.Type != "json_object" {
		t.Error("expected json_object response format")
	}
	if !strings.HasPrefix(client.got.SystemPrompt, "Classify.") || !strings.Contains(client.got.SystemPrompt, "is_off_topic") {
		t.Errorf("schema not in system prompt: %q", client.got.SystemPrompt)
	}
}
