// Package supervisor exposes agents as function tools so that a
// tool-calling model can delegate to them.
package supervisor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	core "github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/router"
	"github.com/KamdynS/weather-agents/llm"
	"github.com/KamdynS/weather-agents/tools"
)

// AgentTool wraps an Agent as a tools.Tool so it can be delegated to.
type AgentTool struct {
	NameStr, Desc string
	Agent         core.Agent
}

func (a *AgentTool) Name() string        { return a.NameStr }
func (a *AgentTool) Description() string { return a.Desc }
func (a *AgentTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"input": map[string]interface{}{
				"type":        "string",
				"description": "The user's question, including the place it is about.",
			},
		},
		"required": []string{"input"},
	}
}
func (a *AgentTool) Execute(ctx context.Context, input string) (string, error) {
	if a.Agent == nil {
		return "", fmt.Errorf("nil agent")
	}
	msg := core.Message{Role: "user", Content: input}
	out, err := a.Agent.Run(ctx, msg)
	if err != nil {
		return "", err
	}
	return out.Content, nil
}

var _ tools.Tool = (*AgentTool)(nil)

// Delegation tool names and descriptions.
const (
	WeatherUpdateTool        = "get_weather_update"
	WeatherUpdateDescription = "Get current weather information and suggestion including temperature, humidity, " +
		"wind speed and direction, precipitation, and weather codes."

	AirQualityUpdateTool        = "get_air_quality_update"
	AirQualityUpdateDescription = "Get current air quality information and suggestion including pollutants and their levels."
)

// OrchestratorInstructions is the system prompt of the delegating model.
const OrchestratorInstructions = `You are an orchestrator agent.
Your task is to manage the interaction between the Weather Specialist Agent and the Air Quality Specialist Agent.
You will receive a query from the user and will decide which agent to invoke based on the content of the query.
If both weather and air quality information is requested, you will invoke both agents and combine their responses into one clear answer.`

// Config wires an orchestrator.
type Config struct {
	Model      llm.Client
	Weather    core.Agent
	AirQuality core.Agent
	// Guard screens input before the model sees it; nil disables screening.
	Guard         core.InputGuard
	MaxIterations int
	Instructions  string
	Logger        *zap.Logger
}

// NewOrchestrator builds a tool-calling agent whose tools are the weather
// and air-quality agents. Input rejected by Guard is answered with
// router.RejectionMessage.
func NewOrchestrator(cfg Config) (core.Agent, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("supervisor: model is required")
	}
	if cfg.Weather == nil || cfg.AirQuality == nil {
		return nil, fmt.Errorf("supervisor: weather and air quality agents are required")
	}
	registry, err := tools.NewRegistry(
		&AgentTool{NameStr: WeatherUpdateTool, Desc: WeatherUpdateDescription, Agent: cfg.Weather},
		&AgentTool{NameStr: AirQualityUpdateTool, Desc: AirQualityUpdateDescription, Agent: cfg.AirQuality},
	)
	if err != nil {
		return nil, fmt.Errorf("supervisor: %w", err)
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 3
	}
	if cfg.Instructions == "" {
		cfg.Instructions = OrchestratorInstructions
	}
	agent := core.NewChatAgent(core.ChatConfig{
		Model: cfg.Model,
		Tools: registry,
		Config: core.AgentConfig{
			MaxIterations: cfg.MaxIterations,
			SystemPrompt:  cfg.Instructions,
		},
		Logger: cfg.Logger,
	})
	return &core.GuardedAgent{Agent: agent, Guard: cfg.Guard, Rejection: router.RejectionMessage}, nil
}
