// Package app wires configuration into a runnable agent topology: the
// language-model client, Open-Meteo tools, specialists, guardrail, router
// and conversation service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/guardrail"
	"github.com/KamdynS/weather-agents/agent/locate"
	"github.com/KamdynS/weather-agents/agent/router"
	"github.com/KamdynS/weather-agents/agent/specialist"
	"github.com/KamdynS/weather-agents/agent/supervisor"
	"github.com/KamdynS/weather-agents/chat"
	"github.com/KamdynS/weather-agents/config"
	"github.com/KamdynS/weather-agents/graph"
	"github.com/KamdynS/weather-agents/llm"
	"github.com/KamdynS/weather-agents/llm/anthropic"
	"github.com/KamdynS/weather-agents/llm/openai"
	"github.com/KamdynS/weather-agents/memory"
	"github.com/KamdynS/weather-agents/memory/inmemory"
	"github.com/KamdynS/weather-agents/memory/postgres"
	"github.com/KamdynS/weather-agents/memory/redis"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
	"github.com/KamdynS/weather-agents/tools/openmeteo"
)

// RouterName names the top-level router in logs and topology graphs.
const RouterName = "triage_agent"

// AssistantName names the language-model agent of the single, tooluse and
// agents-as-tools modes.
const AssistantName = "weather_assistant"

// SingleInstructions is the system prompt of the tool-less assistant.
const SingleInstructions = "You provide accurate and concise weather updates based on user queries in plain language."

// ToolUseInstructions is the system prompt of the tool-calling assistant.
const ToolUseInstructions = `You are a weather and air quality assistant.
Resolve the place the user asks about to latitude and longitude, then call get_current_weather and/or get_current_air_quality.
Given the returned data, provide:
1. A clear and concise explanation of the current conditions.
2. Practical suggestions or precautions for outdoor activities, travel, health, or clothing.
3. If anything severe is detected (heavy rain, thunderstorms, extreme heat, unhealthy air), highlight the necessary safety measures.

Format each topic in two sections, "Weather Summary:" or "Air Quality Summary:" followed by "Suggestions:", each with bullet points.`

// App is a built topology. Close releases its resources.
type App struct {
	Config     *config.Config
	Agent      core.Agent
	Chat       *chat.Service
	Store      memory.SessionStore
	Registry   *tools.Capabilities
	Guardrail  *guardrail.Guardrail
	Router     *router.Router
	Weather    *specialist.Specialist
	AirQuality *specialist.Specialist
	LLM        llm.Client

	logger   *zap.Logger
	topology *graph.Node
	closers  []func() error
}

// Option customizes Build.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	llm        llm.Client
	store      memory.SessionStore
	httpClient *http.Client
}

// WithLogger sets the logger handed to every component.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// WithLLM uses c instead of building a provider client from config.
func WithLLM(c llm.Client) Option { return func(o *options) { o.llm = c } }

// WithStore uses s instead of the configured session backend.
func WithStore(s memory.SessionStore) Option { return func(o *options) { o.store = s } }

// WithHTTPClient sets the client used for Open-Meteo requests.
func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

// Build validates cfg and assembles the topology it describes.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	a := &App{Config: cfg, logger: obs.OrNop(o.logger), LLM: o.llm}

	if a.LLM == nil && cfg.NeedsLLM() {
		client, err := NewLLM(cfg.LLM)
		if err != nil {
			return nil, err
		}
		a.LLM = client
	}

	meteoOpts := []openmeteo.Option{
		openmeteo.WithForecastBaseURL(cfg.OpenMeteo.ForecastURL),
		openmeteo.WithAirQualityBaseURL(cfg.OpenMeteo.AirQualityURL),
		openmeteo.WithTimeout(cfg.OpenMeteo.Timeout),
		openmeteo.WithLogger(a.logger.Named("openmeteo")),
	}
	if o.httpClient != nil {
		meteoOpts = append(meteoOpts, openmeteo.WithHTTPClient(o.httpClient))
	}
	a.Registry = tools.NewCapabilities()
	if err := openmeteo.New(meteoOpts...).Register(a.Registry); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	a.Guardrail = guardrail.New(a.classifier(),
		guardrail.WithPolicy(cfg.Router.Policy),
		guardrail.WithLogger(a.logger.Named("guardrail")))

	if err := a.buildSpecialists(); err != nil {
		return nil, err
	}
	if err := a.buildAgent(); err != nil {
		a.Close()
		return nil, err
	}

	store := o.store
	if store == nil {
		s, closer, err := OpenStore(ctx, cfg.Session)
		if err != nil {
			a.Close()
			return nil, err
		}
		store = s
		if closer != nil {
			a.closers = append(a.closers, closer)
		}
	}
	a.Store = store
	a.Chat = chat.New(a.Agent, store, chat.WithLogger(a.logger.Named("chat")))

	a.logger.Info("topology built",
		zap.String("mode", cfg.Router.Mode),
		zap.String("classifier", cfg.Router.Classifier),
		zap.String("locator", cfg.Router.Locator),
		zap.String("session_backend", cfg.Session.Backend),
		zap.Bool("llm", a.LLM != nil))
	return a, nil
}

// NewLLM builds the provider client named by cfg.Provider.
func NewLLM(cfg config.LLMConfig) (llm.Client, error) {
	switch llm.Provider(cfg.Provider) {
	case llm.ProviderOpenAI:
		c, err := openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			RetryConfig: cfg.Retry,
		})
		if err != nil {
			return nil, fmt.Errorf("openai client: %w", err)
		}
		return c, nil
	case llm.ProviderAnthropic:
		c, err := anthropic.NewClient(anthropic.Config{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
			RetryConfig: cfg.Retry,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

// OpenStore opens the configured session backend. The returned closer is
// nil for the in-memory store.
func OpenStore(ctx context.Context, cfg config.SessionConfig) (memory.SessionStore, func() error, error) {
	switch cfg.Backend {
	case config.SessionRedis:
		s, err := redis.NewStoreFromURL(cfg.RedisURL, cfg.Prefix, cfg.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis session store: %w", err)
		}
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("ping redis session store: %w", err)
		}
		return s, s.Close, nil
	case config.SessionPostgres:
		s, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.Table)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres session store: %w", err)
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("migrate postgres session store: %w", err)
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return inmemory.NewStore(), nil, nil
	}
}

func (a *App) classifier() guardrail.Classifier {
	keyword := guardrail.NewKeywordClassifier()
	switch a.Config.Router.Classifier {
	case config.ClassifierLLM:
		return guardrail.NewLLMClassifier(a.LLM, a.Config.LLM.Model, a.logger.Named("guardrail"))
	case config.ClassifierChain:
		return guardrail.Chain{keyword, guardrail.NewLLMClassifier(a.LLM, a.Config.LLM.Model, a.logger.Named("guardrail"))}
	}
	return keyword
}

func (a *App) locator() locate.Locator {
	base := locate.Chain{locate.Coordinates{}, locate.Default()}
	switch a.Config.Router.Locator {
	case config.LocatorLLM:
		return locate.Chain{locate.Coordinates{}, locate.NewLLMLocator(a.LLM, a.logger.Named("locate"))}
	case config.LocatorChain:
		return append(base, locate.NewLLMLocator(a.LLM, a.logger.Named("locate")))
	}
	return base
}

func (a *App) buildSpecialists() error {
	opts := []specialist.Option{
		specialist.WithLocator(a.locator()),
		specialist.WithLogger(a.logger.Named("specialist")),
	}
	if a.Config.Router.Narrate && a.LLM != nil {
		opts = append(opts, specialist.WithNarrator(a.LLM))
	}
	w, err := specialist.NewWeather(a.Registry.Bound(tools.CapabilityWeather), opts...)
	if err != nil {
		return err
	}
	aq, err := specialist.NewAirQuality(a.Registry.Bound(tools.CapabilityAirQuality), opts...)
	if err != nil {
		return err
	}
	a.Weather, a.AirQuality = w, aq
	return nil
}

func (a *App) buildAgent() error {
	cfg := a.Config.Router
	switch cfg.Mode {
	case config.ModeOrchestrate, config.ModeHandoff:
		r, err := router.New(router.Config{
			Name:      RouterName,
			Guardrail: a.Guardrail,
			Members:   []router.Member{a.Weather, a.AirQuality},
			Registry:  a.Registry,
			Locator:   a.locator(),
			Mode:      router.Mode(cfg.Mode),
			Workers:   cfg.Workers,
			MaxDepth:  cfg.MaxDepth,
			OnHandoff: a.logHandoff,
			Logger:    a.logger.Named("router"),
		})
		if err != nil {
			return err
		}
		a.Router, a.Agent = r, r
		a.topology = r.Topology()
		a.closers = append(a.closers, func() error { r.Close(); return nil })
		return nil

	case config.ModeSingle:
		a.Agent = a.guarded(core.NewChatAgent(core.ChatConfig{
			Model:  a.LLM,
			Config: core.AgentConfig{MaxIterations: 1, SystemPrompt: SingleInstructions},
			Logger: a.logger.Named("agent"),
		}))
		a.topology = guardedNode(graph.New(AssistantName, graph.KindAgent))
		return nil

	case config.ModeToolUse:
		registry, err := tools.NewRegistry(
			openmeteo.WeatherTool(a.Registry.Bound(tools.CapabilityWeather)),
			openmeteo.AirQualityTool(a.Registry.Bound(tools.CapabilityAirQuality)),
		)
		if err != nil {
			return err
		}
		a.Agent = a.guarded(core.NewChatAgent(core.ChatConfig{
			Model:  a.LLM,
			Tools:  registry,
			Config: core.AgentConfig{MaxIterations: cfg.MaxIterations, SystemPrompt: ToolUseInstructions},
			Logger: a.logger.Named("agent"),
		}))
		a.topology = guardedNode(graph.New(AssistantName, graph.KindAgent).
			Connect("calls", graph.New(openmeteo.WeatherToolName, graph.KindTool)).
			Connect("calls", graph.New(openmeteo.AirQualityToolName, graph.KindTool)))
		return nil

	case config.ModeAgentsAsTools:
		agent, err := supervisor.NewOrchestrator(supervisor.Config{
			Model:         a.LLM,
			Weather:       a.Weather,
			AirQuality:    a.AirQuality,
			Guard:         a.Guardrail,
			MaxIterations: cfg.MaxIterations,
			Logger:        a.logger.Named("orchestrator"),
		})
		if err != nil {
			return err
		}
		a.Agent = agent
		a.topology = guardedNode(graph.New(AssistantName, graph.KindAgent).
			Connect(supervisor.WeatherUpdateTool, a.Weather.Topology()).
			Connect(supervisor.AirQualityUpdateTool, a.AirQuality.Topology()))
		return nil
	}
	return fmt.Errorf("%w: unknown mode %q", router.ErrConfiguration, cfg.Mode)
}

func (a *App) guarded(agent core.Agent) core.Agent {
	return &core.GuardedAgent{Agent: agent, Guard: a.Guardrail, Rejection: router.RejectionMessage}
}

func guardedNode(agent *graph.Node) *graph.Node {
	return graph.New("topic guardrail", graph.KindGuardrail).Connect("allows", agent)
}

func (a *App) logHandoff(_ context.Context, ev router.HandoffEvent) {
	fields := []zap.Field{
		zap.String("router", ev.Router),
		zap.String("specialist", ev.Specialist),
		zap.String("reason", ev.Reason),
	}
	if ev.Location != nil {
		fields = append(fields, zap.String("location", ev.Location.String()))
	}
	a.logger.Info("handoff", fields...)
}

// Topology returns the agent graph of the built mode.
func (a *App) Topology() *graph.Node { return a.topology }

// Close releases pools and store connections. Safe to call more than once.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
