// Package guardrail decides whether a question is in scope before any
// specialist work begins. Greetings and weather or air-quality questions are
// in scope; everything else is rejected.
package guardrail

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	obs "github.com/KamdynS/weather-agents/observability"
)

// Verdict is the per-query scope decision. It is never persisted.
type Verdict struct {
	InScope   bool   `json:"in_scope"`
	Rationale string `json:"rationale"`
}

// Classifier is the injected topic classification capability.
type Classifier interface {
	Classify(ctx context.Context, text string) (Verdict, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) (Verdict, error)

func (f ClassifierFunc) Classify(ctx context.Context, text string) (Verdict, error) { return f(ctx, text) }

// Policy holds cheap input checks applied before classification.
type Policy struct {
	// MaxInputChars rejects longer input when positive.
	MaxInputChars int `mapstructure:"max_input_chars" json:"max_input_chars"`
	// DenySubstrings rejects input containing any of these (case-insensitive).
	DenySubstrings []string `mapstructure:"deny_substrings" json:"deny_substrings,omitempty"`
}

// Check returns a rejecting verdict when text violates the policy.
func (p Policy) Check(text string) (Verdict, bool) {
	if strings.TrimSpace(text) == "" {
		return Verdict{InScope: false, Rationale: "empty input"}, false
	}
	if p.MaxInputChars > 0 && utf8.RuneCountInString(text) > p.MaxInputChars {
		return Verdict{InScope: false, Rationale: fmt.Sprintf("input exceeds %d characters", p.MaxInputChars)}, false
	}
	lower := strings.ToLower(text)
	for _, s := range p.DenySubstrings {
		if s == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(s)) {
			return Verdict{InScope: false, Rationale: "input blocked by policy"}, false
		}
	}
	return Verdict{}, true
}

// Guardrail applies a Policy and then a Classifier.
type Guardrail struct {
	classifier Classifier
	policy     Policy
	logger     *zap.Logger
}

// Option configures a Guardrail.
type Option func(*Guardrail)

// WithPolicy sets the input policy.
func WithPolicy(p Policy) Option { return func(g *Guardrail) { g.policy = p } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(g *Guardrail) { g.logger = obs.OrNop(l) } }

// New creates a guardrail around classifier. A nil classifier falls back to
// the keyword classifier.
func New(classifier Classifier, opts ...Option) *Guardrail {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	g := &Guardrail{classifier: classifier, logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Classify returns the verdict for text. Classifier failures are treated as
// out of scope.
func (g *Guardrail) Classify(ctx context.Context, text string) Verdict {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "guardrail.classify")
	defer span.End()

	v := g.classify(ctx, text)
	span.SetAttribute(obs.AttrInScope, v.InScope)
	span.SetStatus(obs.StatusCodeOk, "")
	if !v.InScope {
		g.logger.Debug("input rejected", zap.String("rationale", v.Rationale))
	}
	return v
}

func (g *Guardrail) classify(ctx context.Context, text string) Verdict {
	if v, ok := g.policy.Check(text); !ok {
		return v
	}
	v, err := g.classifier.Classify(ctx, text)
	if err != nil {
		g.logger.Warn("topic classifier failed", zap.Error(err))
		obs.MetricsImpl.RecordError("guardrail_classifier", nil)
		return Verdict{InScope: false, Rationale: fmt.Sprintf("classifier unavailable: %v", err)}
	}
	return v
}

// Allow adapts the guardrail to core.InputGuard.
func (g *Guardrail) Allow(ctx context.Context, text string) (bool, string) {
	v := g.Classify(ctx, text)
	return v.InScope, v.Rationale
}
