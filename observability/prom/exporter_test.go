package prom

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExporterCountsAndServes(t *testing.T) {
	e := New()
	e.IncrementRequests(map[string]string{"route": "/v1/chat", "method": "POST", "status_code": "200"})
	e.RecordLatency(10*time.Millisecond, map[string]string{"route": "/v1/chat"})
	e.IncrementTokensUsed(42, map[string]string{"direction": "input", "model": "gpt-4o-mini"})
	e.RecordError("tool_failure", nil)
	e.RecordToolCall("weather", "success", 5*time.Millisecond)
	e.RecordToolCall("weather", "network_error", 5*time.Millisecond)
	e.RecordRoute("routed", 2)
	e.RecordRoute("rejected", 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(e.toolCalls.WithLabelValues("weather", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.routes.WithLabelValues("rejected")))

	rw := httptest.NewRecorder()
	e.Handler().ServeHTTP(rw, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rw.Body)
	require.NoError(t, err)
	out := string(body)
	assert.True(t, strings.Contains(out, `weather_agents_tool_calls_total{capability="weather",outcome="network_error"} 1`), out)
	assert.Contains(t, out, `weather_agents_llm_tokens_total{direction="input",model="gpt-4o-mini"} 42`)
	assert.Contains(t, out, "weather_agents_route_specialists_count 1")
}

func TestExportersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordRoute("routed", 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.routes.WithLabelValues("routed")))
}
