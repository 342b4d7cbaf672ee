// Package openai adapts go-openai to llm.Client.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/KamdynS/weather-agents/llm"
	"github.com/sashabaranov/go-openai"
)

// Client implements the llm.Client interface for OpenAI and compatible gateways.
type Client struct {
	client  *openai.Client
	config  Config
	retrier *llm.Retrier
}

// Config holds OpenAI-specific configuration
type Config struct {
	APIKey       string          `json:"api_key" mapstructure:"api_key"`
	Model        string          `json:"model" mapstructure:"model"`
	BaseURL      string          `json:"base_url,omitempty" mapstructure:"base_url"`
	Temperature  float64         `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens    int             `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	Timeout      time.Duration   `json:"timeout,omitempty" mapstructure:"timeout"`
	RetryConfig  llm.RetryConfig `json:"retry_config,omitempty" mapstructure:"retry"`
	Organization string          `json:"organization,omitempty" mapstructure:"organization"`

	// HTTPClient overrides the transport; Timeout is ignored when set.
	HTTPClient *http.Client `json:"-" mapstructure:"-"`
}

// NewClient creates a new OpenAI client
func NewClient(config Config) (*Client, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.Model == "" {
		config.Model = llm.DefaultModel(llm.ProviderOpenAI)
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

	oaiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		oaiConfig.BaseURL = config.BaseURL
	}
	if config.Organization != "" {
		oaiConfig.OrgID = config.Organization
	}
	if config.HTTPClient != nil {
		oaiConfig.HTTPClient = config.HTTPClient
	} else {
		oaiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		client:  openai.NewClientWithConfig(oaiConfig),
		config:  config,
		retrier: llm.NewRetrier(config.RetryConfig),
	}, nil
}

func validateConfig(config Config) error {
	if config.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if config.Model != "" {
		if err := llm.CheckProvider(config.Model, llm.ProviderOpenAI); err != nil {
			return err
		}
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative")
	}
	return nil
}

// Chat implements llm.Client interface
func (c *Client) Chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	return llm.InstrumentedChat(ctx, llm.ProviderOpenAI, func(ctx context.Context) (*llm.Response, error) {
		return llm.Execute(c.retrier, ctx, func(ctx context.Context, attempt int) (*llm.Response, error) {
			return c.chat(ctx, req)
		})
	})
}

func (c *Client) buildRequest(req *llm.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}

	model := c.config.Model
	if req.Model != "" {
		model = req.Model
	}

	oaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature != nil {
		oaiReq.Temperature = float32(*req.Temperature)
	} else {
		oaiReq.Temperature = float32(c.config.Temperature)
	}
	if req.MaxTokens != nil {
		oaiReq.MaxTokens = *req.MaxTokens
	} else if c.config.MaxTokens > 0 {
		oaiReq.MaxTokens = c.config.MaxTokens
	}
	if len(req.Stop) > 0 {
		oaiReq.Stop = req.Stop
	}
	if req.Seed != nil {
		oaiReq.Seed = req.Seed
	}
	if req.User != "" {
		oaiReq.User = req.User
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.Tool, len(req.Tools))
		for i, tool := range req.Tools {
			tools[i] = openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		oaiReq.Tools = tools
		if req.ToolChoice != nil {
			oaiReq.ToolChoice = req.ToolChoice
		}
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		oaiReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return oaiReq
}

// convertMessage maps roles and carries tool calls on assistant turns so
// that following tool results reference a known call id.
func convertMessage(msg llm.Message) openai.ChatCompletionMessage {
	out := openai.ChatCompletionMessage{Content: msg.Content, Name: msg.Name}
	switch msg.Role {
	case "system":
		out.Role = openai.ChatMessageRoleSystem
	case "assistant":
		out.Role = openai.ChatMessageRoleAssistant
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
	case "tool":
		out.Role = openai.ChatMessageRoleTool
		out.ToolCallID = msg.ToolCallID
		out.Name = ""
	default:
		out.Role = openai.ChatMessageRoleUser
	}
	return out
}

func (c *Client) chat(ctx context.Context, req *llm.ChatRequest) (*llm.Response, error) {
	oaiReq := c.buildRequest(req)

	resp, err := c.client.CreateChatCompletion(ctx, oaiReq)
	if err != nil {
		return nil, convertError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError(llm.ProviderOpenAI, llm.ErrorTypeUnknown, "no choices returned")
	}
	choice := resp.Choices[0]

	var toolCalls []llm.ToolCall
	for _, tc := range choice.Message.ToolCalls {
		toolCalls = append(toolCalls, llm.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: llm.Function{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}

	var usage *llm.Usage
	if resp.Usage.TotalTokens > 0 {
		info, _ := llm.GetModel(oaiReq.Model)
		usage = &llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Cost:         info.EstimateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		}
	}

	return &llm.Response{
		Content:      choice.Message.Content,
		Role:         "assistant",
		Model:        oaiReq.Model,
		Provider:     llm.ProviderOpenAI,
		Usage:        usage,
		FinishReason: string(choice.FinishReason),
		ToolCalls:    toolCalls,
		Meta: map[string]string{
			"id":      resp.ID,
			"created": fmt.Sprintf("%d", resp.Created),
		},
	}, nil
}

func convertError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, apiErr.HTTPStatusCode, apiErr.Message)
		if code, ok := apiErr.Code.(string); ok {
			llmErr.Code = code
		}
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests &&
			strings.Contains(strings.ToLower(apiErr.Message), "try again in") {
			llmErr.RetryAfter = 60
		}
		llmErr.Cause = err
		return llmErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		llmErr := llm.ParseHTTPError(llm.ProviderOpenAI, reqErr.HTTPStatusCode, string(reqErr.Body))
		llmErr.Cause = err
		return llmErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeTimeout, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeUnknown, "request canceled", err)
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "connection") || strings.Contains(lower, "network") {
		return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeConnectionError, "connection error", err)
	}
	return llm.NewLLMErrorWithCause(llm.ProviderOpenAI, llm.ErrorTypeUnknown, err.Error(), err)
}

// Model implements llm.Client interface
func (c *Client) Model() string {
	return c.config.Model
}

// Provider implements llm.Client interface
func (c *Client) Provider() llm.Provider {
	return llm.ProviderOpenAI
}

var _ llm.Client = (*Client)(nil)
