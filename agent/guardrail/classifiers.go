package guardrail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/intent"
	"github.com/KamdynS/weather-agents/llm"
	obs "github.com/KamdynS/weather-agents/observability"
)

// KeywordClassifier marks text in scope when it contains a greeting, weather
// or air-quality term. It is deterministic.
type KeywordClassifier struct {
	vocabularies []intent.Vocabulary
}

// NewKeywordClassifier uses the built-in greeting, weather and air-quality
// vocabularies. extra terms are added to the weather vocabulary.
func NewKeywordClassifier(extra ...string) *KeywordClassifier {
	return &KeywordClassifier{vocabularies: []intent.Vocabulary{
		intent.Greeting,
		intent.Weather.With(extra...),
		intent.AirQuality,
	}}
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(_ context.Context, text string) (Verdict, error) {
	topics := intent.Detect(text, k.vocabularies...)
	if len(topics) == 0 {
		return Verdict{InScope: false, Rationale: "no greeting, weather or air quality terms"}, nil
	}
	return Verdict{InScope: true, Rationale: fmt.Sprintf("matched %s term %q", topics[0].Vocabulary, topics[0].Term)}, nil
}

// TopicInstructions tells the model what counts as on-topic.
const TopicInstructions = "You are a topic classifier for a weather and air quality application. " +
	"Your task is to determine if a user's question is on-topic. " +
	"Allowed topics include: " +
	"1. Weather-related: current weather, weather forecast, temperature, precipitation, wind, humidity, etc. " +
	"2. Air quality-related: air pollution, AQI, PM2.5, ozone, air conditions, etc. " +
	"3. Location-based inquiries about weather or air conditions " +
	"4. Polite greetings and conversational starters (e.g., 'hello', 'hi', 'good morning') " +
	"5. Questions that combine greetings with weather/air quality topics " +
	"Mark as OFF-TOPIC only if the query is clearly unrelated to weather/air quality AND not a simple greeting. " +
	"Examples of off-topic: math problems, cooking recipes, sports scores, technical support, jokes (unless weather-related). " +
	"Examples of on-topic: 'Hello, what's the weather?', 'Hi there', 'Good morning, how's the air quality?', 'What's the temperature?'"

type topicClassification struct {
	llm.BaseStructured
	IsOffTopic bool   `json:"is_off_topic" description:"True if the input is off-topic (not related to weather/air quality and not a greeting), False otherwise"`
	Reasoning  string `json:"reasoning" description:"Brief explanation of why the input was classified as on-topic or off-topic"`
}

func (topicClassification) JSONSchema() map[string]interface{} {
	return llm.SchemaOf(topicClassification{})
}

// LLMClassifier delegates the judgment to a language model with structured
// output.
type LLMClassifier struct {
	client llm.Client
	model  string
	logger *zap.Logger
}

// NewLLMClassifier creates a classifier. model may be empty to use the
// client default.
func NewLLMClassifier(client llm.Client, model string, logger *zap.Logger) *LLMClassifier {
	return &LLMClassifier{client: client, model: model, logger: obs.OrNop(logger)}
}

// Classify implements Classifier.
func (c *LLMClassifier) Classify(ctx context.Context, text string) (Verdict, error) {
	if c.client == nil {
		return Verdict{}, errors.New("guardrail: no model configured")
	}
	out, err := llm.StructuredChat(ctx, c.client, llm.StructuredRequest[topicClassification]{
		Messages:     []llm.Message{{Role: "user", Content: text}},
		SystemPrompt: TopicInstructions,
		Model:        c.model,
		Temperature:  0,
		OutputType:   topicClassification{},
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("guardrail: classify: %w", err)
	}
	c.logger.Debug("topic classified",
		zap.Bool("off_topic", out.Data.IsOffTopic),
		zap.String("reasoning", out.Data.Reasoning))
	return Verdict{InScope: !out.Data.IsOffTopic, Rationale: out.Data.Reasoning}, nil
}

// Chain asks classifiers in order and returns the first in-scope verdict.
// When none is in scope the last out-of-scope verdict wins; an error is
// returned only if every classifier failed.
type Chain []Classifier

// Classify implements Classifier.
func (c Chain) Classify(ctx context.Context, text string) (Verdict, error) {
	var (
		last    *Verdict
		lastErr error
	)
	for _, cl := range c {
		if cl == nil {
			continue
		}
		v, err := cl.Classify(ctx, text)
		if err != nil {
			lastErr = err
			continue
		}
		if v.InScope {
			return v, nil
		}
		last = &v
	}
	if last != nil {
		return *last, nil
	}
	if lastErr != nil {
		return Verdict{}, lastErr
	}
	return Verdict{}, errors.New("guardrail: empty classifier chain")
}
