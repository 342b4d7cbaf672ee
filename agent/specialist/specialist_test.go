package specialist

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/locate"
	"github.com/KamdynS/weather-agents/llm/llmtest"
	"github.com/KamdynS/weather-agents/tools"
	"github.com/KamdynS/weather-agents/tools/openmeteo"
	"github.com/KamdynS/weather-agents/tools/openmeteo/openmeteotest"
)

var jakarta = tools.Location{Latitude: -6.2, Longitude: 106.8, Name: "Jakarta"}

func newClient(srv *openmeteotest.Server) *openmeteo.Client {
	return openmeteo.New(openmeteo.WithForecastBaseURL(srv.URL), openmeteo.WithAirQualityBaseURL(srv.URL))
}

func TestRender(t *testing.T) {
	got := Render(WeatherHeading, []string{"a", "b"}, []string{"c"})
	assert.Equal(t, "Weather Summary:\n- a\n- b\n\nSuggestions:\n- c", got)
}

func TestNewValidation(t *testing.T) {
	inv := tools.InvokerFunc(func(ctx context.Context, loc tools.Location) tools.Result { return tools.Success(nil, nil) })

	_, err := New("", tools.CapabilityWeather, inv)
	assert.Error(t, err)
	_, err = New("x", tools.Capability("pollen"), inv)
	assert.ErrorIs(t, err, tools.ErrUnknownCapability)
	_, err = New("x", tools.CapabilityWeather, nil)
	assert.Error(t, err)

	s, err := NewAirQuality(inv)
	require.NoError(t, err)
	assert.Equal(t, AirQualityName, s.Name())
	assert.Equal(t, []tools.Capability{tools.CapabilityAirQuality}, s.Capabilities())
	assert.Equal(t, AirQualityInstructions, s.Instructions())
}

func TestWeatherAnswer(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	s, err := NewWeather(newClient(srv).Weather())
	require.NoError(t, err)

	reply := s.Respond(context.Background(), core.NewQuery("weather in Jakarta").WithLocation(jakarta))
	require.True(t, reply.OK())
	assert.Equal(t, 1, srv.WeatherCalls())
	assert.Equal(t, 0, srv.AirQualityCalls())

	text := reply.Text
	assert.True(t, strings.HasPrefix(text, WeatherHeading))
	assert.Contains(t, text, SuggestionsHeading)
	assert.Contains(t, text, "Jakarta: slight rain, 31.4°C (feels like 36.9°C).")
	assert.Contains(t, text, "from the NW (315°)")
	assert.Contains(t, text, "umbrella")
	assert.Contains(t, text, "It feels hot")
	assert.NotContains(t, text, "Safety:")
}

func TestAirQualityAnswer(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	s, err := NewAirQuality(newClient(srv).AirQuality())
	require.NoError(t, err)

	text := s.Answer(context.Background(), core.NewQuery("air in Jakarta").WithLocation(jakarta))
	assert.Equal(t, 1, srv.AirQualityCalls())
	assert.True(t, strings.HasPrefix(text, AirQualityHeading))
	assert.Contains(t, text, "European AQI 62 (poor); US AQI 128 (unhealthy for sensitive groups).")
	assert.Contains(t, text, "Dominant pollutant: PM2.5 at 41.7 μg/m³.")
	assert.Contains(t, text, "Other readings: PM10 58.1 μg/m³")
	assert.Contains(t, text, "Safety: unhealthy air.")
}

func TestFailureGivesDegradedAnswer(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	srv.FailWeather(http.StatusServiceUnavailable)

	s, err := NewWeather(newClient(srv).Weather())
	require.NoError(t, err)

	reply := s.Respond(context.Background(), core.NewQuery("weather in Jakarta").WithLocation(jakarta))
	assert.True(t, reply.Invoked)
	assert.False(t, reply.OK())
	assert.Equal(t, tools.ReasonNetwork, reply.Result.Reason())
	assert.Contains(t, reply.Text, WeatherHeading)
	assert.Contains(t, reply.Text, SuggestionsHeading)
	assert.Contains(t, reply.Text, "unavailable right now")
	assert.Equal(t, 1, srv.WeatherCalls())
}

func TestLocatorResolvesMissingLocation(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	s, err := NewWeather(newClient(srv).Weather(), WithLocator(locate.Default()))
	require.NoError(t, err)

	reply := s.Respond(context.Background(), core.NewQuery("Hello, what's the weather in Jakarta?"))
	require.NotNil(t, reply.Location)
	assert.Equal(t, "Jakarta", reply.Location.Name)
	assert.True(t, reply.OK())
}

func TestUnresolvedLocationSkipsTool(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	s, err := NewWeather(newClient(srv).Weather(), WithLocator(locate.Default()))
	require.NoError(t, err)

	reply := s.Respond(context.Background(), core.NewQuery("what's the weather like?"))
	assert.False(t, reply.Invoked)
	assert.Contains(t, reply.Text, "which place")
	assert.Contains(t, reply.Text, SuggestionsHeading)

	q := core.NewQuery("weather in Jakarta")
	q.Located = true
	reply = s.Respond(context.Background(), q)
	assert.False(t, reply.Invoked)
	assert.Equal(t, 0, srv.TotalCalls())
}

func TestLocatorErrorIsNotFatal(t *testing.T) {
	inv := tools.InvokerFunc(func(ctx context.Context, loc tools.Location) tools.Result {
		t.Fatal("tool must not run")
		return tools.Result{}
	})
	failing := locate.Func(func(ctx context.Context, text string) (tools.Location, error) {
		return tools.Location{}, errors.New("model down")
	})
	s, err := NewWeather(inv, WithLocator(failing))
	require.NoError(t, err)
	assert.Contains(t, s.Answer(context.Background(), core.NewQuery("weather in Jakarta")), "couldn't work out the location")
}

func TestNarrator(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()
	q := core.NewQuery("weather in Jakarta").WithLocation(jakarta)

	t.Run("uses model output with both sections", func(t *testing.T) {
		narrated := "Weather Summary:\n- Light rain and hot.\n\nSuggestions:\n- Bring an umbrella."
		mock := llmtest.NewMockClient().AddResponse(narrated)
		s, err := NewWeather(newClient(srv).Weather(), WithNarrator(mock))
		require.NoError(t, err)

		assert.Equal(t, narrated, s.Answer(context.Background(), q))
		calls := mock.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, WeatherInstructions, calls[0].SystemPrompt)
		assert.Contains(t, calls[0].Messages[0].Content, `"weathercode":61`)
	})

	t.Run("falls back when sections are missing", func(t *testing.T) {
		mock := llmtest.NewMockClient().AddResponse("It is rainy.")
		s, err := NewWeather(newClient(srv).Weather(), WithNarrator(mock))
		require.NoError(t, err)
		assert.Contains(t, s.Answer(context.Background(), q), "Jakarta: slight rain")
	})

	t.Run("falls back when one section is missing", func(t *testing.T) {
		mock := llmtest.NewMockClient().AddResponse("Weather Summary:\n- Light rain and hot.")
		s, err := NewWeather(newClient(srv).Weather(), WithNarrator(mock))
		require.NoError(t, err)
		out := s.Answer(context.Background(), q)
		assert.Contains(t, out, "Jakarta: slight rain")
		assert.Contains(t, out, SuggestionsHeading)
	})

	t.Run("falls back on error", func(t *testing.T) {
		mock := llmtest.NewMockClient()
		mock.SetError(errors.New("rate limited"))
		s, err := NewWeather(newClient(srv).Weather(), WithNarrator(mock))
		require.NoError(t, err)
		assert.Contains(t, s.Answer(context.Background(), q), "Jakarta: slight rain")
	})

	t.Run("not consulted for failures", func(t *testing.T) {
		mock := llmtest.NewMockClient()
		inv := tools.InvokerFunc(func(ctx context.Context, loc tools.Location) tools.Result {
			return tools.Failure(tools.ReasonDecode, "bad body")
		})
		s, err := NewWeather(inv, WithNarrator(mock))
		require.NoError(t, err)
		assert.Contains(t, s.Answer(context.Background(), q), "could not read")
		assert.Equal(t, 0, mock.CallCount())
	})
}

func TestWeatherSafetyFirst(t *testing.T) {
	got := weatherSuggestions(openmeteo.CurrentWeather{
		WeatherCode:         95,
		ApparentTemperature: 41,
		WindSpeed:           55,
		RelativeHumidity:    85,
	})
	require.GreaterOrEqual(t, len(got), 4)
	assert.True(t, strings.HasPrefix(got[0], "Safety: thunderstorms"))
	assert.True(t, strings.HasPrefix(got[1], "Safety: dangerous heat"))
	assert.True(t, strings.HasPrefix(got[2], "Safety: strong winds"))
	assert.Contains(t, got, "Carry an umbrella or a rain jacket.")

	calm := weatherSuggestions(openmeteo.CurrentWeather{WeatherCode: 1, ApparentTemperature: 24, RelativeHumidity: 50})
	assert.Equal(t, []string{"Comfortable conditions for outdoor activities."}, calm)
}

func TestAirQualityBands(t *testing.T) {
	f := func(v float64) *float64 { return &v }
	good := airQualitySuggestions(openmeteo.CurrentAirQuality{EuropeanAQI: f(12), USAQI: f(30)}, nil)
	assert.Equal(t, []string{"Air quality is good: a great time for outdoor activities."}, good)

	hazardous := airQualitySuggestions(openmeteo.CurrentAirQuality{USAQI: f(320)}, nil)
	assert.True(t, strings.HasPrefix(hazardous[0], "Safety: very unhealthy"))

	unknown := airQualitySuggestions(openmeteo.CurrentAirQuality{PM25: f(10)}, nil)
	assert.Contains(t, unknown[0], "No overall index")
}

func TestRunImplementsAgent(t *testing.T) {
	srv := openmeteotest.NewServer()
	defer srv.Close()

	s, err := NewWeather(newClient(srv).Weather(), WithLocator(locate.Default()))
	require.NoError(t, err)

	var a core.Agent = s
	out, err := a.Run(context.Background(), core.Message{Role: "user", Content: "weather in Jakarta"})
	require.NoError(t, err)
	assert.Equal(t, "assistant", out.Role)
	assert.Contains(t, out.Content, WeatherHeading)
}
