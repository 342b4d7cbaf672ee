// Package specialist implements the single-topic responders. Each
// specialist calls its bound invoker once per question and answers with a
// Summary section followed by a Suggestions section.
package specialist

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/locate"
	"github.com/KamdynS/weather-agents/graph"
	"github.com/KamdynS/weather-agents/llm"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
)

// Default specialist names.
const (
	WeatherName    = "weather_specialist"
	AirQualityName = "air_quality_specialist"
)

// SuggestionsHeading opens the second section of every answer.
const SuggestionsHeading = "Suggestions:"

// Reply is a specialist answer together with the data it was built from.
type Reply struct {
	Specialist string
	Capability tools.Capability
	Text       string
	Location   *tools.Location
	// Result is meaningful only when Invoked is true.
	Result  tools.Result
	Invoked bool
}

// OK reports whether the answer was built from live data.
func (r Reply) OK() bool { return r.Invoked && r.Result.OK() }

// Specialist answers questions for one capability. It is immutable once
// built and safe for concurrent use.
type Specialist struct {
	name         string
	capability   tools.Capability
	invoker      tools.Invoker
	formatter    Formatter
	locator      locate.Locator
	narrator     llm.Client
	instructions string
	logger       *zap.Logger
}

// Option configures a Specialist.
type Option func(*Specialist)

// WithLocator resolves locations for queries that arrive without one.
func WithLocator(l locate.Locator) Option { return func(s *Specialist) { s.locator = l } }

// WithNarrator lets a language model rewrite the templated answer.
func WithNarrator(c llm.Client) Option { return func(s *Specialist) { s.narrator = c } }

// WithFormatter replaces the capability's default formatter.
func WithFormatter(f Formatter) Option { return func(s *Specialist) { s.formatter = f } }

// WithInstructions replaces the narrator instructions.
func WithInstructions(text string) Option { return func(s *Specialist) { s.instructions = text } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Specialist) { s.logger = obs.OrNop(l) } }

// New builds a specialist. Weather and air-quality capabilities get their
// default formatter and instructions.
func New(name string, capability tools.Capability, invoker tools.Invoker, opts ...Option) (*Specialist, error) {
	if name == "" {
		return nil, errors.New("specialist: name is required")
	}
	if !capability.Valid() {
		return nil, fmt.Errorf("specialist %s: %w: %q", name, tools.ErrUnknownCapability, capability)
	}
	if invoker == nil {
		return nil, fmt.Errorf("specialist %s: invoker is required", name)
	}
	s := &Specialist{
		name:       name,
		capability: capability,
		invoker:    invoker,
		logger:     zap.NewNop(),
	}
	switch capability {
	case tools.CapabilityWeather:
		s.formatter, s.instructions = WeatherFormatter{}, WeatherInstructions
	case tools.CapabilityAirQuality:
		s.formatter, s.instructions = AirQualityFormatter{}, AirQualityInstructions
	}
	for _, o := range opts {
		o(s)
	}
	if s.formatter == nil {
		return nil, fmt.Errorf("specialist %s: formatter is required", name)
	}
	return s, nil
}

// NewWeather builds the weather specialist.
func NewWeather(invoker tools.Invoker, opts ...Option) (*Specialist, error) {
	return New(WeatherName, tools.CapabilityWeather, invoker, opts...)
}

// NewAirQuality builds the air-quality specialist.
func NewAirQuality(invoker tools.Invoker, opts ...Option) (*Specialist, error) {
	return New(AirQualityName, tools.CapabilityAirQuality, invoker, opts...)
}

// Name returns the specialist id used in routing decisions.
func (s *Specialist) Name() string { return s.name }

// Capability returns the capability the specialist answers for.
func (s *Specialist) Capability() tools.Capability { return s.capability }

// Capabilities returns the single capability as a slice for routers.
func (s *Specialist) Capabilities() []tools.Capability { return []tools.Capability{s.capability} }

// Instructions returns the narrator system prompt.
func (s *Specialist) Instructions() string { return s.instructions }

// Answer returns the text answer for q. It is never empty.
func (s *Specialist) Answer(ctx context.Context, q core.Query) string {
	return s.Respond(ctx, q).Text
}

// Run implements core.Agent.
func (s *Specialist) Run(ctx context.Context, input core.Message) (core.Message, error) {
	return core.Message{Role: "assistant", Content: s.Answer(ctx, core.QueryFromMessage(input))}, nil
}

// Respond answers q and reports the tool result behind the answer.
func (s *Specialist) Respond(ctx context.Context, q core.Query) Reply {
	span, ctx := obs.TracerImpl.StartSpan(ctx, "specialist.answer")
	defer span.End()
	span.SetAttribute(obs.AttrSpecialist, s.name)
	span.SetAttribute(obs.AttrCapability, string(s.capability))

	reply := Reply{Specialist: s.name, Capability: s.capability}

	loc, locErr := s.resolve(ctx, q)
	if loc == nil {
		s.logger.Info("no location for query", zap.String("specialist", s.name), zap.Error(locErr))
		span.AddEvent("location.unresolved", nil)
		reply.Text = s.noLocation(locErr)
		span.SetStatus(obs.StatusCodeOk, "")
		return reply
	}
	reply.Location = loc

	res := s.invoker.Invoke(ctx, *loc)
	reply.Result, reply.Invoked = res, true
	span.SetAttribute(obs.AttrToolOutcome, res.Outcome())
	if !res.OK() {
		s.logger.Warn("tool failure",
			zap.String("specialist", s.name),
			zap.String("reason", string(res.Reason())),
			zap.String("detail", res.Detail()))
		reply.Text = s.degraded(*loc, res.Reason())
		span.SetStatus(obs.StatusCodeOk, "")
		return reply
	}

	summary, suggestions, err := s.formatter.Format(*loc, res)
	if err != nil {
		s.logger.Warn("format failed", zap.String("specialist", s.name), zap.Error(err))
		reply.Text = s.degraded(*loc, tools.ReasonDecode)
		return reply
	}
	text := Render(s.formatter.Heading(), summary, suggestions)
	if s.narrator != nil {
		text = s.narrate(ctx, q, *loc, res, text)
	}
	reply.Text = text
	span.SetStatus(obs.StatusCodeOk, "")
	return reply
}

func (s *Specialist) resolve(ctx context.Context, q core.Query) (*tools.Location, error) {
	if q.Location != nil {
		return q.Location, nil
	}
	if q.Located || s.locator == nil {
		return nil, locate.ErrNotFound
	}
	loc, err := s.locator.Locate(ctx, q.Text)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// Render lays out the two answer sections as bullet lists.
func Render(heading string, summary, suggestions []string) string {
	var b strings.Builder
	b.WriteString(heading)
	b.WriteByte('\n')
	for _, line := range summary {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.WriteString(SuggestionsHeading)
	b.WriteByte('\n')
	for i, line := range suggestions {
		b.WriteString("- ")
		b.WriteString(line)
		if i < len(suggestions)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

var reasonText = map[tools.FailureReason]string{
	tools.ReasonNetwork:         "the data service could not be reached",
	tools.ReasonDecode:          "the data service sent a response I could not read",
	tools.ReasonInvalidLocation: "the coordinates for that place are not valid",
	tools.ReasonUnavailable:     "this data source is not configured",
}

func (s *Specialist) topic() string {
	if s.capability == tools.CapabilityAirQuality {
		return "air quality"
	}
	return "weather"
}

func (s *Specialist) degraded(loc tools.Location, reason tools.FailureReason) string {
	why, ok := reasonText[reason]
	if !ok {
		why = string(reason)
	}
	return Render(s.formatter.Heading(),
		[]string{fmt.Sprintf("Current %s data for %s is unavailable right now: %s.", s.topic(), placeName(loc), why)},
		[]string{
			"Please try again in a few minutes.",
			fmt.Sprintf("Meanwhile, check a local %s service before heading out.", s.topic()),
		})
}

func (s *Specialist) noLocation(err error) string {
	summary := "I couldn't tell which place you're asking about."
	if err != nil && !errors.Is(err, locate.ErrNotFound) {
		summary = "I couldn't work out the location for your question right now."
	}
	return Render(s.formatter.Heading(),
		[]string{summary},
		[]string{`Mention a city, for example "` + s.topic() + ` in Jakarta", or coordinates such as "-6.2, 106.8".`})
}

// Topology returns the specialist and its data tool as graph nodes.
func (s *Specialist) Topology() *graph.Node {
	return graph.New(s.name, graph.KindAgent).
		Connect("calls", graph.New("get_current_"+string(s.capability), graph.KindTool))
}
