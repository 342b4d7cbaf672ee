// Package http exposes a chat service over a JSON HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/KamdynS/weather-agents/chat"
	"github.com/KamdynS/weather-agents/graph"
	"github.com/KamdynS/weather-agents/memory"
	obs "github.com/KamdynS/weather-agents/observability"
)

const maxBodyBytes = 64 << 10

// Server wraps a chat service with HTTP endpoints
type Server struct {
	chat    *chat.Service
	config  Config
	logger  *zap.Logger
	router  *mux.Router
	handler http.Handler
	limiter *clientLimiter
	server  *http.Server
}

// Config holds HTTP server configuration
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	// RateLimit is requests per second per client on /v1 routes; zero
	// disables limiting.
	RateLimit float64
	Burst     int
	// Metrics is served on /metrics when set.
	Metrics http.Handler
	// Topology is rendered on /debug/graph when set.
	Topology func() *graph.Node
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server for a chat service
func NewServer(svc *chat.Service, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = config.RequestTimeout + 5*time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 5 * time.Second
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"*"}
	}
	if config.RateLimit > 0 && config.Burst <= 0 {
		config.Burst = 1
	}

	s := &Server{
		chat:   svc,
		config: config,
		logger: obs.OrNop(config.Logger),
		router: mux.NewRouter(),
	}
	if config.RateLimit > 0 {
		s.limiter = newClientLimiter(rate.Limit(config.RateLimit), config.Burst)
	}
	s.setupRoutes()

	c := cors.New(cors.Options{
		AllowedOrigins: config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", obs.HeaderRequestID},
		ExposedHeaders: []string{obs.HeaderRequestID},
	})
	s.handler = c.Handler(s.router)

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestMiddleware)
	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	if s.config.Metrics != nil {
		s.router.Handle("/metrics", s.config.Metrics).Methods(http.MethodGet)
	}
	s.router.HandleFunc("/debug/graph", s.graphHandler).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.rateLimitMiddleware)
	v1.HandleFunc("/chat", s.chatHandler).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{id}/turns", s.turnsHandler).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", s.resetHandler).Methods(http.MethodDelete)
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler { return s.handler }

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse represents a chat response
type ChatResponse struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"session_id"`
	State       string   `json:"state,omitempty"`
	Specialists []string `json:"specialists,omitempty"`
}

// TurnsResponse is a session transcript.
type TurnsResponse struct {
	SessionID string        `json:"session_id"`
	Turns     []memory.Turn `json:"turns"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// healthHandler provides a health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// chatHandler handles chat requests
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, r, "invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, r, "message is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	reply, err := s.chat.Send(ctx, req.SessionID, req.Message)
	if err != nil {
		if errors.Is(err, chat.ErrEmptyMessage) || errors.Is(err, memory.ErrInvalidTurn) {
			s.writeError(w, r, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("chat failed", zap.String("session_id", req.SessionID), zap.Error(err))
		s.writeError(w, r, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		Message:     reply.Text,
		SessionID:   reply.SessionID,
		State:       reply.State,
		Specialists: reply.Specialists,
	})
}

func (s *Server) turnsHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	turns, err := s.chat.History(r.Context(), id)
	if err != nil {
		s.logger.Error("history failed", zap.String("session_id", id), zap.Error(err))
		s.writeError(w, r, "internal server error", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []memory.Turn{}
	}
	writeJSON(w, http.StatusOK, TurnsResponse{SessionID: id, Turns: turns})
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.chat.Reset(r.Context(), id); err != nil {
		s.logger.Error("reset failed", zap.String("session_id", id), zap.Error(err))
		s.writeError(w, r, "internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// graphHandler renders the agent topology; ?format=mermaid|dot&dir=TD|LR.
func (s *Server) graphHandler(w http.ResponseWriter, r *http.Request) {
	if s.config.Topology == nil {
		s.writeError(w, r, "topology not available", http.StatusNotFound)
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "mermaid"
	}
	out, err := graph.Render(s.config.Topology(), format, graph.WithDirection(r.URL.Query().Get("dir")))
	if err != nil {
		s.writeError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, message string, code int) {
	id, _ := obs.RequestIDFromContext(r.Context())
	writeJSON(w, code, ErrorResponse{Error: message, RequestID: id})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware assigns a request id, opens a span and logs the request.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := obs.ExtractHTTPContext(r.Context(), r)
		obs.InjectHTTPHeaders(w, ctx)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		span, ctx := obs.TracerImpl.StartSpan(ctx, "http.request")
		defer span.End()
		span.SetAttribute(obs.AttrHTTPMethod, r.Method)
		span.SetAttribute(obs.AttrHTTPRoute, route)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttribute(obs.AttrHTTPStatus, rec.status)
		if rec.status >= http.StatusInternalServerError {
			span.SetStatus(obs.StatusCodeError, http.StatusText(rec.status))
		} else {
			span.SetStatus(obs.StatusCodeOk, "")
		}
		id, _ := obs.RequestIDFromContext(ctx)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", id))
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(clientIP(r)) {
			obs.MetricsImpl.RecordError("rate_limited", map[string]string{"component": "http"})
			s.writeError(w, r, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientLimiter keeps one token bucket per client address. Buckets idle for
// longer than staleAfter are pruned on insert.
type clientLimiter struct {
	limit      rate.Limit
	burst      int
	staleAfter time.Duration

	mu      sync.Mutex
	clients map[string]*clientBucket
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(limit rate.Limit, burst int) *clientLimiter {
	return &clientLimiter{
		limit:      limit,
		burst:      burst,
		staleAfter: 3 * time.Minute,
		clients:    make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(client string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.clients[client]
	if !ok {
		for k, v := range l.clients {
			if now.Sub(v.lastSeen) > l.staleAfter {
				delete(l.clients, k)
			}
		}
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// clientIP is the direct peer address; proxy headers are not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ListenAndServe starts the HTTP server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server starting", zap.String("addr", s.config.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
