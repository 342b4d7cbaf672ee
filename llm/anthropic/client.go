// Package anthropic adapts go-anthropic to llm.Client, including tool use.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/weather-agents/llm"
	"github.com/liushuangls/go-anthropic/v2"
)

// Client implements the llm.Client interface for Anthropic Claude
type Client struct {
	client  *anthropic.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds Anthropic-specific configuration
type Config struct {
	APIKey      string          `json:"api_key" mapstructure:"api_key"`
	Model       string          `json:"model" mapstructure:"model"`
	BaseURL     string          `json:"base_url,omitempty" mapstructure:"base_url"`
	Temperature float64         `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Timeout     time.Duration   `json:"timeout,omitempty" mapstructure:"timeout"`
	RetryConfig llm.RetryConfig `json:"retry_config,omitempty" mapstructure:"retry"`

	HTTPClient *http.Client `json:"-" mapstructure:"-"`
}

// NewClient creates a new Anthropic client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.DefaultModel(llm.ProviderAnthropic)
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RetryConfig.InitialDelay == 0 {
		retries := config.RetryConfig.MaxRetries
		config.RetryConfig = llm.DefaultRetryConfig()
		config.RetryConfig.MaxRetries = retries
	}

	var opts []anthropic.ClientOption
	if config.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(config.BaseURL))
	}
	if config.HTTPClient != nil {
		opts = append(opts, anthropic.WithHTTPClient(config.HTTPClient))
	} else {
		opts = append(opts, anthropic.WithHTTPClient(&http.Client{Timeout: config.Timeout}))
	}

	return &Client{
		client:  anthropic.NewClient(config.APIKey, opts...),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if config.Model != "" {
		if err := llm.CheckProvider(config.Model, llm.ProviderAnthropic); err != nil {
			return err
		}
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	return llm.InstrumentedChat(ctx, llm.ProviderAnthropic, func(ctx context.Context) (*llm.Response, error) {
		return llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
			return c.chat(ctx, req)
		})
	})
}

func textContent(s string) anthropic.MessageContent {
	return anthropic.MessageContent{Type: anthropic.MessagesContentTypeText, Text: &s}
}

// convertMessages splits out system text and groups consecutive tool
// results into a single user turn, which the Messages API requires.
func convertMessages(req *llm.ChatRequest) (string, []anthropic.Message) {
	system := req.SystemPrompt
	messages := make([]anthropic.Message, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Role {
		case "system":
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
		case "assistant":
			var content []anthropic.MessageContent
			if msg.Content != "" {
				content = append(content, textContent(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				content = append(content, anthropic.MessageContent{
					Type: anthropic.MessagesContentTypeToolUse,
					MessageContentToolUse: &anthropic.MessageContentToolUse{
						ID:    tc.ID,
						Name:  tc.Function.Name,
						Input: input,
					},
				})
			}
			if len(content) == 0 {
				content = append(content, textContent(""))
			}
			messages = append(messages, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
		case "tool":
			result := toolResult(msg)
			if n := len(messages); n > 0 && messages[n-1].Role == anthropic.RoleUser && isToolResultTurn(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, result)
				continue
			}
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{result},
			})
		default:
			messages = append(messages, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{textContent(msg.Content)},
			})
		}
	}
	return system, messages
}

func toolResult(msg llm.Message) anthropic.MessageContent {
	id := msg.ToolCallID
	isError := strings.HasPrefix(strings.TrimSpace(msg.Content), `{"error"`)
	return anthropic.MessageContent{
		Type: anthropic.MessagesContentTypeToolResult,
		MessageContentToolResult: &anthropic.MessageContentToolResult{
			ToolUseID: &id,
			Content:   []anthropic.MessageContent{textContent(msg.Content)},
			IsError:   &isError,
		},
	}
}

func isToolResultTurn(m anthropic.Message) bool {
	for _, c := range m.Content {
		if c.Type != anthropic.MessagesContentTypeToolResult {
			return false
		}
	}
	return len(m.Content) > 0
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	system, messages := convertMessages(req)

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	anthReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: c.config.MaxTokens,
		System:    system,
	}
	temp := float32(c.config.Temperature)
	if req.Temperature != nil {
		temp = float32(*req.Temperature)
	}
	anthReq.Temperature = &temp
	if req.MaxTokens != nil {
		anthReq.MaxTokens = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		anthReq.StopSequences = req.Stop
	}
	for _, t := range req.Tools {
		schema := t.Function.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
		}
		anthReq.Tools = append(anthReq.Tools, anthropic.ToolDefinition{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: schema,
		})
	}

	resp, err := c.client.CreateMessages(ctx, anthReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Content) == 0 {
		return nil, llm.NewLLMError(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "no content returned")
	}

	var content strings.Builder
	var toolCalls []llm.ToolCall
	for _, block := range resp.Content {
		switch block.Type {
		case anthropic.MessagesContentTypeText:
			if block.Text != nil {
				content.WriteString(*block.Text)
			}
		case anthropic.MessagesContentTypeToolUse:
			if block.MessageContentToolUse == nil {
				continue
			}
			toolCalls = append(toolCalls, llm.ToolCall{
				ID:   block.MessageContentToolUse.ID,
				Type: "function",
				Function: llm.Function{
					Name:      block.MessageContentToolUse.Name,
					Arguments: string(block.MessageContentToolUse.Input),
				},
			})
		}
	}

	var usage *llm.Usage
	if resp.Usage.OutputTokens > 0 {
		info, _ := llm.GetModel(model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
			Cost:         info.EstimateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		}
	}

	finish := string(resp.StopReason)
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	}
	return &llm.Response{
		Content:      content.String(),
		Role:         "assistant",
		Model:        model,
		Provider:     llm.ProviderAnthropic,
		Usage:        usage,
		FinishReason: finish,
		ToolCalls:    toolCalls,
		Meta:         map[string]string{"id": resp.ID},
	}, nil
}

func convertError(err error) error {
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		errType := llm.ErrorTypeUnknown
		switch string(apiErr.Type) {
		case "invalid_request_error":
			errType = llm.ErrorTypeInvalidRequest
		case "authentication_error":
			errType = llm.ErrorTypeAuthentication
		case "permission_error":
			errType = llm.ErrorTypePermission
		case "not_found_error":
			errType = llm.ErrorTypeNotFound
		case "rate_limit_error":
			errType = llm.ErrorTypeRateLimit
		case "api_error", "overloaded_error":
			errType = llm.ErrorTypeServerError
		}
		llmErr := llm.NewLLMErrorWithCause(llm.ProviderAnthropic, errType, apiErr.Message, err)
		llmErr.Code = string(apiErr.Type)
		return llmErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeTimeout, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeUnknown, "request canceled", err)
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeConnectionError, "connection error", err)
	}
	return llm.NewLLMErrorWithCause(llm.ProviderAnthropic, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderAnthropic
}

var _ llm.Client = (*Client)(nil)
