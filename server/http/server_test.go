package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/chat"
	"github.com/KamdynS/weather-agents/graph"
	"github.com/KamdynS/weather-agents/memory/inmemory"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/observability/prom"
)

// MockAgent answers every message with a fixed reply.
type MockAgent struct {
	reply string
	state string
	err   error
	calls []core.Message
}

func (m *MockAgent) Run(ctx context.Context, input core.Message) (core.Message, error) {
	m.calls = append(m.calls, input)
	if m.err != nil {
		return core.Message{}, m.err
	}
	return core.Message{
		Role:    "assistant",
		Content: m.reply,
		Meta:    map[string]string{core.MetaState: m.state, core.MetaSpecialists: "weather_specialist"},
	}, nil
}

func newTestServer(agent core.Agent, config Config) *Server {
	return NewServer(chat.New(agent, inmemory.NewStore()), config)
}

func do(t *testing.T, s *Server, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestNewServer_DefaultConfig(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{})

	if server.config.Addr != ":8080" {
		t.Errorf("Expected default addr :8080, got %s", server.config.Addr)
	}
	if server.config.ReadTimeout != 10*time.Second {
		t.Errorf("Expected default ReadTimeout 10s, got %v", server.config.ReadTimeout)
	}
	if server.config.WriteTimeout <= server.config.RequestTimeout {
		t.Errorf("WriteTimeout %v must exceed RequestTimeout %v", server.config.WriteTimeout, server.config.RequestTimeout)
	}
	if server.limiter != nil {
		t.Error("rate limiting should be off by default")
	}
	if server.server.Addr != ":8080" {
		t.Errorf("Expected server addr :8080, got %s", server.server.Addr)
	}
}

func TestServer_HealthHandler(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{})

	w := do(t, server, "GET", "/health", nil)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", ct)
	}
	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %s", response["status"])
	}
	if _, err := time.Parse(time.RFC3339, response["time"]); err != nil {
		t.Errorf("Invalid time format: %v", err)
	}
	if w.Header().Get(obs.HeaderRequestID) == "" {
		t.Error("Expected a generated request id")
	}
}

func TestServer_ChatHandler_Success(t *testing.T) {
	agent := &MockAgent{reply: "Weather Summary:\n- Sunny", state: "routed"}
	server := newTestServer(agent, Config{})

	w := do(t, server, "POST", "/v1/chat", ChatRequest{Message: "weather in Jakarta", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Weather Summary:\n- Sunny", resp.Message)
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "routed", resp.State)
	assert.Equal(t, []string{"weather_specialist"}, resp.Specialists)
	require.Len(t, agent.calls, 1)
	assert.Equal(t, "s1", agent.calls[0].Meta[core.MetaSessionID])
}

func TestServer_ChatHandler_NewSession(t *testing.T) {
	server := newTestServer(&MockAgent{reply: "ok"}, Config{})

	w := do(t, server, "POST", "/v1/chat", ChatRequest{Message: "hi"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
}

func TestServer_ChatHandler_BadRequests(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"message":`},
		{"empty message", `{"message":"   "}`},
		{"missing message", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/v1/chat", strings.NewReader(tt.body))
			req.Header.Set(obs.HeaderRequestID, "req-123")
			w := httptest.NewRecorder()
			server.Handler().ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
			assert.Equal(t, "req-123", resp.RequestID)
		})
	}
}

func TestServer_ChatHandler_AgentErrorIsApology(t *testing.T) {
	server := newTestServer(&MockAgent{err: errors.New("model unavailable")}, Config{})

	w := do(t, server, "POST", "/v1/chat", ChatRequest{Message: "weather?", SessionID: "s"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, chat.ErrorPrefix+"model unavailable", resp.Message)
	assert.Equal(t, chat.StateError, resp.State)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{})
	w := do(t, server, "GET", "/v1/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestServer_SessionTurnsAndReset(t *testing.T) {
	server := newTestServer(&MockAgent{reply: "answer"}, Config{})

	for _, msg := range []string{"first", "second"} {
		w := do(t, server, "POST", "/v1/chat", ChatRequest{Message: msg, SessionID: "abc"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := do(t, server, "GET", "/v1/sessions/abc/turns", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var turns TurnsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &turns))
	assert.Equal(t, "abc", turns.SessionID)
	require.Len(t, turns.Turns, 4)
	for i, turn := range turns.Turns {
		assert.Equal(t, int64(i+1), turn.Sequence)
	}
	assert.Equal(t, "first", turns.Turns[0].Text)
	assert.Equal(t, "answer", turns.Turns[1].Text)

	w = do(t, server, "DELETE", "/v1/sessions/abc", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, server, "GET", "/v1/sessions/abc/turns", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"session_id":"abc","turns":[]}`, w.Body.String())
}

func TestServer_RateLimit(t *testing.T) {
	server := newTestServer(&MockAgent{reply: "ok"}, Config{RateLimit: 0.001, Burst: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, do(t, server, "POST", "/v1/chat", ChatRequest{Message: "hi", SessionID: "s"}).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	w := do(t, server, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code, "health is not rate limited")
}

func TestServer_CORS(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{CORSOrigins: []string{"http://localhost:3000"}})

	req := httptest.NewRequest("OPTIONS", "/v1/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/v1/chat", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = httptest.NewRecorder()
	server.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_DebugGraph(t *testing.T) {
	root := graph.New("triage_agent", graph.KindRouter).
		Connect("routes", graph.New("weather_specialist", graph.KindAgent))
	server := newTestServer(&MockAgent{}, Config{Topology: func() *graph.Node { return root }})

	w := do(t, server, "GET", "/debug/graph", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "graph TD"), w.Body.String())

	w = do(t, server, "GET", "/debug/graph?format=dot&dir=LR", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "digraph agents {")
	assert.Contains(t, w.Body.String(), "rankdir=LR")

	w = do(t, server, "GET", "/debug/graph?format=svg", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bare := newTestServer(&MockAgent{}, Config{})
	assert.Equal(t, http.StatusNotFound, do(t, bare, "GET", "/debug/graph", nil).Code)
}

func TestServer_Metrics(t *testing.T) {
	exporter := prom.New()
	server := newTestServer(&MockAgent{}, Config{Metrics: exporter.Handler()})

	exporter.RecordRoute("routed", 2)
	w := do(t, server, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "routed")
}

func TestServer_RequestSpan(t *testing.T) {
	rec := obs.NewRecordingTracer()
	prev := obs.TracerImpl
	obs.SetTracer(rec)
	t.Cleanup(func() { obs.SetTracer(prev) })

	server := newTestServer(&MockAgent{reply: "ok"}, Config{})
	do(t, server, "GET", "/v1/sessions/xyz/turns", nil)

	spans := rec.Find("http.request")
	require.Len(t, spans, 1)
	assert.Equal(t, "/v1/sessions/{id}/turns", spans[0].Attributes[obs.AttrHTTPRoute])
	assert.Equal(t, http.StatusOK, spans[0].Attributes[obs.AttrHTTPStatus])
}

func TestListenAndServe_Shutdown(t *testing.T) {
	server := newTestServer(&MockAgent{}, Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.ListenAndServe(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
