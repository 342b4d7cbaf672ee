package specialist

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/llm"
	"github.com/KamdynS/weather-agents/tools"
)

// WeatherInstructions is the narrator prompt for the weather specialist.
const WeatherInstructions = `You are a weather specialist agent.
Your task is to analyze current weather data, including temperature, humidity, wind speed and direction, precipitation, and weather codes.

For each query, provide:
1. A clear, concise summary of the current weather conditions in plain language.
2. Practical, actionable suggestions or precautions for outdoor activities, travel, health, or clothing, tailored to the weather data.
3. If severe weather is detected (e.g., heavy rain, thunderstorms, extreme heat), clearly highlight recommended safety measures.

Structure your response in two sections:
Weather Summary:
- Summarize the weather conditions in simple terms.

Suggestions:
- List relevant advice or precautions based on the weather.`

// AirQualityInstructions is the narrator prompt for the air-quality
// specialist.
const AirQualityInstructions = `You are an air quality specialist agent.
Your role is to interpret current air quality data and communicate it clearly to users.

For each query, provide:
1. A concise summary of the air quality conditions in plain language, including key pollutants and their levels.
2. Practical, actionable advice or precautions for outdoor activities, travel, and health, tailored to the air quality data.
3. If poor or hazardous air quality is detected (e.g., high pollution, allergens), clearly highlight recommended safety measures.

Structure your response in two sections:
Air Quality Summary:
- Summarize the air quality conditions in simple terms.

Suggestions:
- List relevant advice or precautions based on the air quality.`

// narrate asks the model to rewrite the templated answer. The template is
// kept when the call fails or the output drops either section heading.
func (s *Specialist) narrate(ctx context.Context, q core.Query, loc tools.Location, res tools.Result, draft string) string {
	var prompt strings.Builder
	prompt.WriteString("Question: ")
	prompt.WriteString(q.Text)
	prompt.WriteString("\nLocation: ")
	prompt.WriteString(loc.String())
	prompt.WriteString("\n\nCurrent data from Open-Meteo:\n")
	prompt.Write(res.Raw())
	prompt.WriteString("\n\nDraft answer:\n")
	prompt.WriteString(draft)

	resp, err := s.narrator.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: s.instructions,
		Messages:     []llm.Message{{Role: "user", Content: prompt.String()}},
	})
	if err != nil {
		s.logger.Warn("narration failed, using template", zap.String("specialist", s.name), zap.Error(err))
		return draft
	}
	text := strings.TrimSpace(resp.Content)
	if !strings.Contains(text, s.formatter.Heading()) || !strings.Contains(text, SuggestionsHeading) {
		s.logger.Info("narration missing sections, using template", zap.String("specialist", s.name))
		return draft
	}
	return text
}
