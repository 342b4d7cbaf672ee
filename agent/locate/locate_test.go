package locate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/llm/llmtest"
	"github.com/KamdynS/weather-agents/tools"
)

func TestCoordinates(t *testing.T) {
	loc, err := Coordinates{}.Locate(context.Background(), "weather at -6.2, 106.85 please")
	require.NoError(t, err)
	assert.InDelta(t, -6.2, loc.Latitude, 1e-9)
	assert.InDelta(t, 106.85, loc.Longitude, 1e-9)

	_, err = Coordinates{}.Locate(context.Background(), "weather in Jakarta")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Coordinates{}.Locate(context.Background(), "at 95.0, 10.0")
	assert.ErrorIs(t, err, tools.ErrInvalidLocation)
}

func TestGazetteer(t *testing.T) {
	g := Default()
	tests := []struct {
		text string
		want string
	}{
		{"Hello, what's the weather in Jakarta?", "Jakarta"},
		{"air quality in new delhi today", "New Delhi"},
		{"is it raining in Delhi", "New Delhi"},
		{"NYC forecast", "New York"},
		{"how's kuala lumpur's air", "Kuala Lumpur"},
		{"What's the weather in São Paulo?", "Sao Paulo"},
		{"SÃO PAULO air quality", "Sao Paulo"},
		{"rain in sao paulo", "Sao Paulo"},
		{"clima en Ciudad de México", "Mexico City"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			loc, err := g.Locate(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, loc.Name)
			assert.NoError(t, loc.Validate())
		})
	}

	_, err := g.Locate(context.Background(), "what's the weather?")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChain(t *testing.T) {
	boom := errors.New("boom")
	failing := Func(func(ctx context.Context, text string) (tools.Location, error) { return tools.Location{}, boom })

	loc, err := Chain{Coordinates{}, failing, Default()}.Locate(context.Background(), "weather in Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo", loc.Name)

	_, err = Chain{Coordinates{}, failing}.Locate(context.Background(), "weather in Tokyo")
	assert.ErrorIs(t, err, boom)

	_, err = Chain{Coordinates{}, Default()}.Locate(context.Background(), "weather?")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLLMLocator(t *testing.T) {
	mock := llmtest.NewMockClient().
		AddResponse(`{"found":true,"name":"Reykjavik","latitude":64.1466,"longitude":-21.9426}`).
		AddResponse(`{"found":false}`).
		AddResponse(`{"found":true,"name":"Nowhere","latitude":123,"longitude":0}`)
	l := NewLLMLocator(mock, nil)

	loc, err := l.Locate(context.Background(), "weather in Reykjavik")
	require.NoError(t, err)
	assert.Equal(t, "Reykjavik", loc.Name)

	_, err = l.Locate(context.Background(), "is it cold?")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.Locate(context.Background(), "weather in nowhere")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)

	assert.Equal(t, 3, mock.CallCount())
}
