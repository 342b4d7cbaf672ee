package core

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/llm"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
)

// ChatAgent is a single language-model agent with optional function tools.
// Without tools it answers directly; with tools it runs a bounded
// call-observe loop.
type ChatAgent struct {
	Model  llm.Client
	Tools  tools.Registry
	Config AgentConfig
	Logger *zap.Logger
}

// ChatConfig holds configuration for ChatAgent
type ChatConfig struct {
	Model  llm.Client
	Tools  tools.Registry
	Config AgentConfig
	Logger *zap.Logger
}

// NewChatAgent creates a new ChatAgent with the given configuration
func NewChatAgent(config ChatConfig) *ChatAgent {
	return &ChatAgent{
		Model:  config.Model,
		Tools:  config.Tools,
		Config: config.Config,
		Logger: obs.OrNop(config.Logger),
	}
}

// Run implements the Agent interface
func (a *ChatAgent) Run(ctx context.Context, input Message) (Message, error) {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "agent.run")
	defer span.End()

	if a.Model == nil {
		span.SetStatus(obs.StatusCodeError, "no model")
		return Message{}, fmt.Errorf("chat agent: no model configured")
	}

	if a.Config.Timeout != "" {
		timeout, err := time.ParseDuration(a.Config.Timeout)
		if err != nil {
			span.SetStatus(obs.StatusCodeError, err.Error())
			return Message{}, fmt.Errorf("invalid timeout duration: %w", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	messages := []llm.Message{{Role: "user", Content: input.Content}}
	toolDefs := a.toolDefinitions()

	maxIterations := a.Config.MaxIterations
	if maxIterations <= 0 {
		maxIterations = 1
	}

	var finalResp *llm.Response
	pending := false
	for iter := 0; iter < maxIterations; iter++ {
		req := &llm.ChatRequest{
			Messages:     messages,
			SystemPrompt: a.Config.SystemPrompt,
			Tools:        toolDefs,
		}
		// Last round: force a textual answer.
		if len(toolDefs) > 0 && iter == maxIterations-1 && iter > 0 {
			req.ToolChoice = "none"
		}

		response, err := a.Model.Chat(ctx, req)
		if err != nil {
			span.SetStatus(obs.StatusCodeError, err.Error())
			return Message{}, fmt.Errorf("LLM call failed: %w", err)
		}
		finalResp = response
		pending = false

		if len(response.ToolCalls) == 0 || a.Tools == nil {
			break
		}

		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   response.Content,
			ToolCalls: response.ToolCalls,
		})
		for _, tc := range response.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    a.executeTool(ctx, span, tc),
				ToolCallID: tc.ID,
			})
		}
		pending = true
	}

	// Tool results the model has not seen yet get one tool-free round.
	if pending {
		response, err := a.Model.Chat(ctx, &llm.ChatRequest{
			Messages:     messages,
			SystemPrompt: a.Config.SystemPrompt,
			Tools:        toolDefs,
			ToolChoice:   "none",
		})
		if err != nil {
			span.SetStatus(obs.StatusCodeError, err.Error())
			return Message{}, fmt.Errorf("LLM call failed: %w", err)
		}
		finalResp = response
	}

	if finalResp == nil {
		span.SetStatus(obs.StatusCodeError, "no response")
		return Message{}, fmt.Errorf("no response from model")
	}

	span.SetStatus(obs.StatusCodeOk, "")
	return Message{Role: "assistant", Content: finalResp.Content}, nil
}

func (a *ChatAgent) toolDefinitions() []llm.Tool {
	if a.Tools == nil {
		return nil
	}
	var defs []llm.Tool
	for _, name := range a.Tools.List() {
		t, ok := a.Tools.Get(name)
		if !ok {
			continue
		}
		defs = append(defs, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema(),
			},
		})
	}
	return defs
}

// executeTool runs one requested call. Tool errors are reported back to the
// model as content rather than aborting the run.
func (a *ChatAgent) executeTool(ctx context.Context, span obs.Span, tc llm.ToolCall) string {
	name := tc.Function.Name
	if _, ok := a.Tools.Get(name); !ok {
		span.AddEvent("tool.not_found", map[string]interface{}{"tool": name})
		return fmt.Sprintf("error: unknown tool %q", name)
	}

	// Delegation tools take {"input": "..."}; data tools take the raw JSON.
	input := tc.Function.Arguments
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err == nil {
		if v, ok := args["input"].(string); ok {
			input = v
		}
	}

	result, err := a.Tools.Execute(ctx, name, input)
	if err != nil {
		a.Logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		return fmt.Sprintf("error: %v", err)
	}
	return result
}
