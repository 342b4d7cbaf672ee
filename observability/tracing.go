package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracer defines the interface for distributed tracing
type Tracer interface {
	// StartSpan creates a new span with the given name
	StartSpan(ctx context.Context, name string) (Span, context.Context)

	// SpanFromContext extracts the span from context
	SpanFromContext(ctx context.Context) Span
}

// Span represents a tracing span
type Span interface {
	SetAttribute(key string, value interface{})
	SetStatus(code StatusCode, message string)
	AddEvent(name string, attributes map[string]interface{})
	End()
	Context() context.Context
}

// StatusCode represents span status codes
type StatusCode int

const (
	StatusCodeUnset StatusCode = iota
	StatusCodeOk
	StatusCodeError
)

// Attribute keys shared by the router, specialists and tools.
const (
	AttrHTTPMethod   = "http.method"
	AttrHTTPRoute    = "http.route"
	AttrHTTPStatus   = "http.status_code"
	AttrRequestID    = "request.id"
	AttrSessionID    = "session.id"
	AttrProvider     = "genai.provider"
	AttrModel        = "genai.model"
	AttrFinishReason = "genai.finish_reason"
	AttrToolName     = "genai.tool.name"
	AttrTokensInput  = "genai.tokens.input"
	AttrTokensOutput = "genai.tokens.output"
	AttrCapability   = "weather.capability"
	AttrSpecialist   = "weather.specialist"
	AttrToolOutcome  = "weather.tool.outcome"
	AttrRouteState   = "weather.route.state"
	AttrInScope      = "weather.guardrail.in_scope"
)

// Global, swappable implementations (no-ops by default)
var (
	TracerImpl  Tracer  = &NoOpTracer{}
	MetricsImpl Metrics = &NoOpMetrics{}
)

// SetTracer swaps the global tracer implementation
func SetTracer(t Tracer) { TracerImpl = t }

// SetMetrics swaps the global metrics implementation
func SetMetrics(m Metrics) { MetricsImpl = m }

// NoOpTracer is a no-operation implementation of Tracer
type NoOpTracer struct{}

func (t *NoOpTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	return &NoOpSpan{ctx: ctx}, ctx
}

func (t *NoOpTracer) SpanFromContext(ctx context.Context) Span {
	return &NoOpSpan{ctx: ctx}
}

// NoOpSpan is a no-operation implementation of Span
type NoOpSpan struct{ ctx context.Context }

func (s *NoOpSpan) SetAttribute(key string, value interface{})              {}
func (s *NoOpSpan) SetStatus(code StatusCode, message string)               {}
func (s *NoOpSpan) AddEvent(name string, attributes map[string]interface{}) {}
func (s *NoOpSpan) End()                                                    {}

func (s *NoOpSpan) Context() context.Context {
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

// RecordingTracer keeps finished spans in memory. Useful in tests and for
// the debug endpoints; safe for concurrent use.
type RecordingTracer struct {
	mu    sync.Mutex
	spans []SpanData
}

// SpanData holds information about a completed span
type SpanData struct {
	Name       string                 `json:"name"`
	StartTime  time.Time              `json:"start_time"`
	Duration   time.Duration          `json:"duration"`
	Status     StatusCode             `json:"status"`
	Message    string                 `json:"message"`
	Attributes map[string]interface{} `json:"attributes"`
	Events     []Event                `json:"events"`
}

// Event represents a span event
type Event struct {
	Name       string                 `json:"name"`
	Time       time.Time              `json:"time"`
	Attributes map[string]interface{} `json:"attributes"`
}

type spanKey struct{}

// NewRecordingTracer creates an empty RecordingTracer.
func NewRecordingTracer() *RecordingTracer {
	return &RecordingTracer{}
}

func (t *RecordingTracer) StartSpan(ctx context.Context, name string) (Span, context.Context) {
	span := &recordingSpan{
		tracer:     t,
		name:       name,
		start:      time.Now(),
		attributes: make(map[string]interface{}),
	}
	ctx = context.WithValue(ctx, spanKey{}, span)
	span.ctx = ctx
	return span, ctx
}

func (t *RecordingTracer) SpanFromContext(ctx context.Context) Span {
	if span, ok := ctx.Value(spanKey{}).(Span); ok {
		return span
	}
	return &NoOpSpan{ctx: ctx}
}

// Spans returns a copy of all finished spans.
func (t *RecordingTracer) Spans() []SpanData {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanData, len(t.spans))
	copy(out, t.spans)
	return out
}

// Find returns finished spans with the given name.
func (t *RecordingTracer) Find(name string) []SpanData {
	var out []SpanData
	for _, s := range t.Spans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

type recordingSpan struct {
	tracer *RecordingTracer
	ctx    context.Context

	mu         sync.Mutex
	name       string
	start      time.Time
	status     StatusCode
	message    string
	attributes map[string]interface{}
	events     []Event
	ended      bool
}

func (s *recordingSpan) SetAttribute(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.attributes[key] = value
	}
}

func (s *recordingSpan) SetStatus(code StatusCode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.status = code
		s.message = message
	}
}

func (s *recordingSpan) AddEvent(name string, attributes map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.events = append(s.events, Event{Name: name, Time: time.Now(), Attributes: attributes})
	}
}

func (s *recordingSpan) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	data := SpanData{
		Name:       s.name,
		StartTime:  s.start,
		Duration:   time.Since(s.start),
		Status:     s.status,
		Message:    s.message,
		Attributes: s.attributes,
		Events:     s.events,
	}
	s.mu.Unlock()

	s.tracer.mu.Lock()
	s.tracer.spans = append(s.tracer.spans, data)
	s.tracer.mu.Unlock()
}

func (s *recordingSpan) Context() context.Context { return s.ctx }

var _ Tracer = (*NoOpTracer)(nil)
var _ Tracer = (*RecordingTracer)(nil)
var _ Span = (*NoOpSpan)(nil)
var _ Span = (*recordingSpan)(nil)

// ----- HTTP request id propagation -----

// HeaderRequestID carries the request id on requests and responses.
const HeaderRequestID = "X-Request-ID"

type requestIDKey struct{}

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID stores a request id in the context
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext retrieves a request id from context
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDKey{}).(string)
	return id, ok && id != ""
}

// ExtractHTTPContext reads X-Request-ID (or generates one) into the context.
func ExtractHTTPContext(ctx context.Context, r *http.Request) context.Context {
	id := r.Header.Get(HeaderRequestID)
	if id == "" {
		id = GenerateRequestID()
	}
	return WithRequestID(ctx, id)
}

// InjectHTTPHeaders writes propagation headers to the response
func InjectHTTPHeaders(w http.ResponseWriter, ctx context.Context) {
	if id, ok := RequestIDFromContext(ctx); ok {
		w.Header().Set(HeaderRequestID, id)
	}
}
