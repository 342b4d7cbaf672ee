package router

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/guardrail"
	"github.com/KamdynS/weather-agents/agent/locate"
	"github.com/KamdynS/weather-agents/agent/specialist"
	"github.com/KamdynS/weather-agents/graph"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
	"github.com/KamdynS/weather-agents/tools/openmeteo"
	"github.com/KamdynS/weather-agents/tools/openmeteo/openmeteotest"
)

type fixture struct {
	srv        *openmeteotest.Server
	registry   *tools.Capabilities
	weather    *specialist.Specialist
	airQuality *specialist.Specialist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := openmeteotest.NewServer()
	t.Cleanup(srv.Close)

	client := openmeteo.New(openmeteo.WithForecastBaseURL(srv.URL), openmeteo.WithAirQualityBaseURL(srv.URL))
	reg := tools.NewCapabilities()
	require.NoError(t, client.Register(reg))

	w, err := specialist.NewWeather(reg.Bound(tools.CapabilityWeather))
	require.NoError(t, err)
	a, err := specialist.NewAirQuality(reg.Bound(tools.CapabilityAirQuality))
	require.NoError(t, err)
	return &fixture{srv: srv, registry: reg, weather: w, airQuality: a}
}

func (f *fixture) router(t *testing.T, cfg Config) *Router {
	t.Helper()
	cfg.Registry = f.registry
	if cfg.Members == nil {
		cfg.Members = []Member{f.weather, f.airQuality}
	}
	if cfg.Locator == nil {
		cfg.Locator = locate.Default()
	}
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

type stubMember struct {
	name  string
	caps  []tools.Capability
	text  string
	delay time.Duration
	calls atomic.Int32
}

func (s *stubMember) Name() string                     { return s.name }
func (s *stubMember) Capabilities() []tools.Capability { return s.caps }
func (s *stubMember) Respond(ctx context.Context, q core.Query) specialist.Reply {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return specialist.Reply{Specialist: s.name, Text: s.text}
}

func TestOutOfScopeIsRejectedWithoutToolCalls(t *testing.T) {
	f := newFixture(t)
	r := f.router(t, Config{})

	for _, text := range []string{"what is 2+2", "Tell me a joke"} {
		t.Run(text, func(t *testing.T) {
			out := r.Route(context.Background(), core.NewQuery(text))
			assert.Equal(t, StateRejected, out.State)
			assert.Equal(t, []State{StateReceived, StateClassified, StateRejected}, out.Trace)
			assert.False(t, out.Verdict.InScope)
			assert.Equal(t, RejectionMessage, out.Text)
			assert.Empty(t, out.Replies)
		})
	}
	assert.Equal(t, 0, f.srv.TotalCalls())
}

func TestWeatherQuestion(t *testing.T) {
	f := newFixture(t)
	r := f.router(t, Config{})

	out := r.Route(context.Background(), core.NewQuery("Hello, what's the weather in Jakarta?"))
	assert.True(t, out.Verdict.InScope)
	assert.Equal(t, StateRouted, out.State)
	assert.Equal(t, []string{specialist.WeatherName}, out.Decision.Names())
	assert.Contains(t, out.Text, "Weather Summary:")
	assert.Contains(t, out.Text, "Suggestions:")
	assert.NotContains(t, out.Text, "Air Quality Summary:")
	require.NotNil(t, out.Location)
	assert.Equal(t, "Jakarta", out.Location.Name)
	assert.Equal(t, 1, f.srv.WeatherCalls())
	assert.Equal(t, 0, f.srv.AirQualityCalls())
}

func TestAirTemperatureIsWeatherOnly(t *testing.T) {
	for _, q := range []string{"What's the air temperature in Jakarta?", "How hot is the air in Jakarta today?"} {
		t.Run(q, func(t *testing.T) {
			f := newFixture(t)
			r := f.router(t, Config{})

			out := r.Route(context.Background(), core.NewQuery(q))
			assert.Equal(t, []string{specialist.WeatherName}, out.Decision.Names())
			assert.NotContains(t, out.Text, "Air Quality Summary:")
			assert.Equal(t, 0, f.srv.AirQualityCalls())
		})
	}
}

func TestBothIntentsInvokeEachSpecialistOnce(t *testing.T) {
	f := newFixture(t)
	r := f.router(t, Config{Workers: 2})

	out := r.Route(context.Background(), core.NewQuery("What's the weather and air quality in Jakarta?"))
	assert.Equal(t, StateRouted, out.State)
	assert.Equal(t, []string{specialist.WeatherName, specialist.AirQualityName}, out.Decision.Names())
	require.Len(t, out.Replies, 2)
	assert.Equal(t, 1, f.srv.WeatherCalls())
	assert.Equal(t, 1, f.srv.AirQualityCalls())

	wi := strings.Index(out.Text, "Weather Summary:")
	ai := strings.Index(out.Text, "Air Quality Summary:")
	require.True(t, wi >= 0 && ai >= 0)
	assert.Less(t, wi, ai)
	assert.Equal(t, out.Replies[0].Text+"\n\n"+out.Replies[1].Text, out.Text)
}

func TestAllFailuresStillAnswer(t *testing.T) {
	f := newFixture(t)
	f.srv.FailWeather(http.StatusInternalServerError)
	f.srv.FailAirQuality(http.StatusBadGateway)
	r := f.router(t, Config{})

	out := r.Route(context.Background(), core.NewQuery("weather and air quality in Jakarta"))
	assert.Equal(t, StateRouted, out.State)
	assert.Contains(t, out.Text, "Weather Summary:")
	assert.Contains(t, out.Text, "Air Quality Summary:")
	assert.Equal(t, 2, strings.Count(out.Text, "unavailable right now"))
	for _, rep := range out.Replies {
		assert.False(t, rep.OK())
	}
}

func TestGreetingAsksForClarification(t *testing.T) {
	f := newFixture(t)
	r := f.router(t, Config{})

	out := r.Route(context.Background(), core.NewQuery("Hello there!"))
	assert.Equal(t, StateRouted, out.State)
	assert.True(t, out.Decision.Empty())
	assert.Equal(t, ClarificationMessage, out.Text)
	assert.Equal(t, 0, f.srv.TotalCalls())
}

func TestHandoffModePicksOneSpecialist(t *testing.T) {
	f := newFixture(t)
	var events []HandoffEvent
	r := f.router(t, Config{
		Mode:      ModeHandoff,
		OnHandoff: func(ctx context.Context, ev HandoffEvent) { events = append(events, ev) },
	})

	out := r.Route(context.Background(), core.NewQuery("How is the air in Delhi, and is it raining?"))
	assert.Equal(t, []string{specialist.WeatherName}, out.Decision.Names())
	require.Len(t, events, 1)
	assert.Equal(t, specialist.WeatherName, events[0].Specialist)
	assert.Contains(t, events[0].Reason, "raining")
	require.NotNil(t, events[0].Location)
	assert.Equal(t, "New Delhi", events[0].Location.Name)
	assert.Equal(t, 0, f.srv.AirQualityCalls())

	out = r.Route(context.Background(), core.NewQuery("air quality in Delhi"))
	assert.Equal(t, []string{specialist.AirQualityName}, out.Decision.Names())
	assert.Len(t, events, 2)
}

func TestClassifierFailureFailsClosed(t *testing.T) {
	f := newFixture(t)
	failing := guardrail.ClassifierFunc(func(ctx context.Context, text string) (guardrail.Verdict, error) {
		return guardrail.Verdict{}, assert.AnError
	})
	r := f.router(t, Config{Guardrail: guardrail.New(failing)})

	out := r.Route(context.Background(), core.NewQuery("weather in Jakarta"))
	assert.Equal(t, StateRejected, out.State)
	assert.Equal(t, 0, f.srv.TotalCalls())
}

func TestConfigurationErrors(t *testing.T) {
	f := newFixture(t)
	weatherOnly := tools.NewCapabilities()
	require.NoError(t, weatherOnly.Register(tools.CapabilityWeather, f.registry.Bound(tools.CapabilityWeather)))

	tests := []struct {
		name string
		cfg  Config
	}{
		{"no registry", Config{Members: []Member{f.weather}}},
		{"no members", Config{Registry: f.registry}},
		{"unregistered capability", Config{Registry: weatherOnly, Members: []Member{f.weather, f.airQuality}}},
		{"duplicate names", Config{Registry: f.registry, Members: []Member{f.weather, f.weather}}},
		{"unknown mode", Config{Registry: f.registry, Members: []Member{f.weather}, Mode: "broadcast"}},
		{"no capability", Config{Registry: f.registry, Members: []Member{&stubMember{name: "idle"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}

	_, err := New(Config{Registry: weatherOnly, Members: []Member{f.airQuality}})
	assert.ErrorIs(t, err, tools.ErrUnknownCapability)
}

func TestCompositionCycleRejected(t *testing.T) {
	f := newFixture(t)
	child := f.router(t, Config{Name: "child"})
	parent := f.router(t, Config{Name: "parent", Members: []Member{child}})

	assert.ErrorIs(t, child.Mount(parent), ErrCycle)
	assert.ErrorIs(t, parent.Mount(parent), ErrCycle)
	assert.Len(t, child.snapshot(), 2)
}

func TestCompositionDepthBounded(t *testing.T) {
	f := newFixture(t)
	inner := f.router(t, Config{Name: "inner"})
	mid := f.router(t, Config{Name: "mid", Members: []Member{inner}})

	_, err := New(Config{Name: "top", Registry: f.registry, Members: []Member{mid}, MaxDepth: 2})
	assert.ErrorIs(t, err, ErrMaxDepth)

	top, err := New(Config{Name: "top", Registry: f.registry, Members: []Member{mid}, MaxDepth: 3})
	require.NoError(t, err)
	top.Close()
}

func TestNestedRouterSkipsSecondClassification(t *testing.T) {
	f := newFixture(t)
	var childChecks atomic.Int32
	counting := guardrail.ClassifierFunc(func(ctx context.Context, text string) (guardrail.Verdict, error) {
		childChecks.Add(1)
		return guardrail.Verdict{InScope: true}, nil
	})
	child := f.router(t, Config{Name: "child", Guardrail: guardrail.New(counting)})
	parent := f.router(t, Config{Name: "parent", Members: []Member{child}})

	out := parent.Route(context.Background(), core.NewQuery("weather and air quality in Jakarta"))
	assert.Equal(t, []string{"child"}, out.Decision.Names())
	assert.Contains(t, out.Text, "Weather Summary:")
	assert.Contains(t, out.Text, "Air Quality Summary:")
	assert.Equal(t, int32(0), childChecks.Load())
	assert.Equal(t, 1, f.srv.WeatherCalls())
	assert.Equal(t, 1, f.srv.AirQualityCalls())
}

func TestParallelDispatchKeepsDecisionOrder(t *testing.T) {
	reg := tools.NewCapabilities()
	noop := tools.InvokerFunc(func(ctx context.Context, loc tools.Location) tools.Result { return tools.Success(nil, nil) })
	require.NoError(t, reg.Register(tools.CapabilityWeather, noop))
	require.NoError(t, reg.Register(tools.CapabilityAirQuality, noop))

	slow := &stubMember{name: "slow", caps: []tools.Capability{tools.CapabilityWeather}, text: "first", delay: 30 * time.Millisecond}
	fast := &stubMember{name: "fast", caps: []tools.Capability{tools.CapabilityAirQuality}, text: "second"}
	r, err := New(Config{Registry: reg, Members: []Member{slow, fast}, Workers: 4})
	require.NoError(t, err)
	defer r.Close()

	out := r.Route(context.Background(), core.NewQuery("rain and smog today?"))
	assert.Equal(t, "first\n\nsecond", out.Text)
	assert.Equal(t, int32(1), slow.calls.Load())
	assert.Equal(t, int32(1), fast.calls.Load())
}

func TestRunReportsState(t *testing.T) {
	f := newFixture(t)
	r := f.router(t, Config{})

	msg, err := r.Run(context.Background(), core.Message{Role: "user", Content: "Tell me a joke", Meta: map[string]string{core.MetaSessionID: "s1"}})
	require.NoError(t, err)
	assert.Equal(t, RejectionMessage, msg.Content)
	assert.Equal(t, string(StateRejected), msg.Meta[core.MetaState])
	assert.Equal(t, "s1", msg.Meta[core.MetaSessionID])

	msg, err = r.Run(context.Background(), core.Message{Role: "user", Content: "air quality in Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, specialist.AirQualityName, msg.Meta[core.MetaSpecialists])
}

func TestRouteMetrics(t *testing.T) {
	m := obs.NewCountingMetrics()
	obs.SetMetrics(m)
	defer obs.SetMetrics(&obs.NoOpMetrics{})

	f := newFixture(t)
	r := f.router(t, Config{})
	r.Route(context.Background(), core.NewQuery("Tell me a joke"))
	r.Route(context.Background(), core.NewQuery("weather in Jakarta"))

	assert.Equal(t, int64(1), m.Routes(string(StateRejected)))
	assert.Equal(t, int64(1), m.Routes(string(StateRouted)))
	assert.Equal(t, int64(1), m.ToolCalls("weather", tools.OutcomeSuccess))
}

func TestTopology(t *testing.T) {
	f := newFixture(t)
	child := f.router(t, Config{Name: "child"})
	parent := f.router(t, Config{Name: "orchestrator", Members: []Member{child}})

	out := graph.Mermaid(parent.Topology())
	assert.Contains(t, out, `n1[["orchestrator"]]`)
	assert.Contains(t, out, `{"topic guardrail"}`)
	assert.Contains(t, out, `(["get_current_weather"])`)
	assert.Contains(t, out, `(["get_current_air_quality"])`)
	assert.Equal(t, 1, strings.Count(out, "topic guardrail"))
}
