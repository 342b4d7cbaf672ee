package locate

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/llm"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
)

const locatorInstructions = "You extract the place a weather or air quality question is about. " +
	"If the question names a city, region or landmark, set found to true and give its name and " +
	"decimal latitude and longitude. If no place is named, set found to false."

type extractedPlace struct {
	llm.BaseStructured
	Found     bool    `json:"found" description:"true when the question names a place"`
	Name      string  `json:"name,omitempty" description:"place name as commonly written"`
	Latitude  float64 `json:"latitude,omitempty" description:"decimal latitude, -90 to 90"`
	Longitude float64 `json:"longitude,omitempty" description:"decimal longitude, -180 to 180"`
}

func (p extractedPlace) JSONSchema() map[string]interface{} { return llm.SchemaOf(p) }

func (p extractedPlace) Validate() error {
	if !p.Found {
		return nil
	}
	return tools.Location{Latitude: p.Latitude, Longitude: p.Longitude}.Validate()
}

// LLMLocator asks a language model for the place and its coordinates.
type LLMLocator struct {
	client llm.Client
	logger *zap.Logger
}

// NewLLMLocator creates a locator backed by client.
func NewLLMLocator(client llm.Client, logger *zap.Logger) *LLMLocator {
	return &LLMLocator{client: client, logger: obs.OrNop(logger)}
}

// Locate implements Locator.
func (l *LLMLocator) Locate(ctx context.Context, text string) (tools.Location, error) {
	if l.client == nil {
		return tools.Location{}, errors.New("locate: no model configured")
	}
	out, err := llm.StructuredChat(ctx, l.client, llm.StructuredRequest[extractedPlace]{
		Messages:     []llm.Message{{Role: "user", Content: text}},
		SystemPrompt: locatorInstructions,
		OutputType:   extractedPlace{},
	})
	if err != nil {
		l.logger.Warn("llm location extraction failed", zap.Error(err))
		return tools.Location{}, fmt.Errorf("locate: %w", err)
	}
	if !out.Data.Found {
		return tools.Location{}, ErrNotFound
	}
	return tools.Location{Latitude: out.Data.Latitude, Longitude: out.Data.Longitude, Name: out.Data.Name}, nil
}
