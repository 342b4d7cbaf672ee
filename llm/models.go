package llm

import (
	"fmt"
	"sort"
)

// Provider represents LLM providers
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Model describes a catalogued model: pricing per 1M tokens and whether it
// supports tool calling and JSON output.
type Model struct {
	Provider    Provider `json:"provider"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	ContextSize int      `json:"context_size"`
	InputCost   float64  `json:"input_cost"`
	OutputCost  float64  `json:"output_cost"`
	ToolUse     bool     `json:"tool_use"`
	JSON        bool     `json:"json"`
}

// OpenAI models
const (
	ModelGPT4o      = "gpt-4o"
	ModelGPT4oMini  = "gpt-4o-mini"
	ModelGPT41      = "gpt-4.1"
	ModelGPT41Mini  = "gpt-4.1-mini"
	ModelGPT41Nano  = "gpt-4.1-nano"
	ModelGPT35Turbo = "gpt-3.5-turbo"
)

// Anthropic models
const (
	ModelClaude35Haiku  = "claude-3-5-haiku-20241022"
	ModelClaude35Sonnet = "claude-3-5-sonnet-20241022"
	ModelClaudeSonnet4  = "claude-sonnet-4-20250514"
	ModelClaudeHaiku3   = "claude-3-haiku-20240307"
)

var catalog = map[string]Model{
	ModelGPT4o:          {ProviderOpenAI, ModelGPT4o, "GPT-4o", 128000, 2.50, 10.00, true, true},
	ModelGPT4oMini:      {ProviderOpenAI, ModelGPT4oMini, "GPT-4o mini", 128000, 0.15, 0.60, true, true},
	ModelGPT41:          {ProviderOpenAI, ModelGPT41, "GPT-4.1", 1047576, 2.00, 8.00, true, true},
	ModelGPT41Mini:      {ProviderOpenAI, ModelGPT41Mini, "GPT-4.1 mini", 1047576, 0.40, 1.60, true, true},
	ModelGPT41Nano:      {ProviderOpenAI, ModelGPT41Nano, "GPT-4.1 nano", 1047576, 0.10, 0.40, true, true},
	ModelGPT35Turbo:     {ProviderOpenAI, ModelGPT35Turbo, "GPT-3.5 Turbo", 16385, 0.50, 1.50, true, true},
	ModelClaude35Haiku:  {ProviderAnthropic, ModelClaude35Haiku, "Claude 3.5 Haiku", 200000, 0.80, 4.00, true, false},
	ModelClaude35Sonnet: {ProviderAnthropic, ModelClaude35Sonnet, "Claude 3.5 Sonnet", 200000, 3.00, 15.00, true, false},
	ModelClaudeSonnet4:  {ProviderAnthropic, ModelClaudeSonnet4, "Claude Sonnet 4", 200000, 3.00, 15.00, true, false},
	ModelClaudeHaiku3:   {ProviderAnthropic, ModelClaudeHaiku3, "Claude 3 Haiku", 200000, 0.25, 1.25, true, false},
}

// DefaultModel returns the default model for a provider.
func DefaultModel(p Provider) string {
	if p == ProviderAnthropic {
		return ModelClaude35Haiku
	}
	return ModelGPT4oMini
}

// GetModel returns catalog information for a model name.
func GetModel(name string) (Model, error) {
	m, ok := catalog[name]
	if !ok {
		return Model{}, fmt.Errorf("unknown model: %s", name)
	}
	return m, nil
}

// GetModelsByProvider lists catalogued models of a provider, sorted by name.
func GetModelsByProvider(p Provider) []Model {
	var out []Model
	for _, m := range catalog {
		if m.Provider == p {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckProvider fails when a catalogued model belongs to another provider.
// Uncatalogued names pass so compatible gateways can serve custom models.
func CheckProvider(name string, p Provider) error {
	m, err := GetModel(name)
	if err != nil {
		return nil
	}
	if m.Provider != p {
		return fmt.Errorf("model %s is not a %s model", name, p)
	}
	return nil
}

func (m Model) String() string {
	return fmt.Sprintf("%s (%s)", m.DisplayName, m.Provider)
}

// EstimateCost returns the USD cost of a call; zero for unknown models.
func (m Model) EstimateCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*m.InputCost/1e6 + float64(outputTokens)*m.OutputCost/1e6
}
