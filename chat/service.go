// Package chat runs conversations: it records each user turn, asks the
// configured agent for an answer and records the assistant turn.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/memory"
	obs "github.com/KamdynS/weather-agents/observability"
)

// ErrorPrefix starts the assistant turn recorded when the agent fails.
const ErrorPrefix = "Sorry, something went wrong: "

// StateError is reported when the agent returned an error.
const StateError = "error"

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("chat: empty message")

// Reply is the outcome of one Send.
type Reply struct {
	SessionID   string
	Text        string
	State       string
	Specialists []string
	User        memory.Turn
	Assistant   memory.Turn
}

// Service serializes requests per session: a second Send for the same
// session waits until the first has recorded its answer.
type Service struct {
	agent  core.Agent
	store  memory.SessionStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = obs.OrNop(l) } }

// New creates a service around agent and store.
func New(agent core.Agent, store memory.SessionStore, opts ...Option) *Service {
	s := &Service{
		agent:  agent,
		store:  store,
		logger: zap.NewNop(),
		locks:  make(map[string]*sessionLock),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewSessionID returns a fresh random session id.
func NewSessionID() string { return uuid.NewString() }

func (s *Service) lock(sessionID string) func() {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, sessionID)
		}
		s.mu.Unlock()
	}
}

// Send handles one user message. An empty sessionID starts a new session.
// Agent failures are recorded and returned as an apology, not as an error;
// only store failures are returned as errors.
func (s *Service) Send(ctx context.Context, sessionID, text string) (Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, ErrEmptyMessage
	}
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	unlock := s.lock(sessionID)
	defer unlock()

	span, ctx := obs.TracerImpl.StartSpan(ctx, "chat.send")
	defer span.End()
	span.SetAttribute(obs.AttrSessionID, sessionID)
	start := time.Now()

	userTurn, err := s.store.Append(ctx, sessionID, memory.RoleUser, text)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return Reply{}, err
	}

	reply := Reply{SessionID: sessionID, User: userTurn}
	out, err := s.agent.Run(ctx, core.Message{
		Role:    memory.RoleUser,
		Content: text,
		Meta:    map[string]string{core.MetaSessionID: sessionID},
	})
	if err != nil {
		s.logger.Error("agent failed", zap.String("session_id", sessionID), zap.Error(err))
		obs.MetricsImpl.RecordError("agent", map[string]string{"component": "chat"})
		reply.Text = ErrorPrefix + err.Error()
		reply.State = StateError
	} else {
		reply.Text = out.Content
		reply.State = out.Meta[core.MetaState]
		if names := out.Meta[core.MetaSpecialists]; names != "" {
			reply.Specialists = strings.Split(names, ",")
		}
	}

	reply.Assistant, err = s.store.Append(ctx, sessionID, memory.RoleAssistant, reply.Text)
	if err != nil {
		span.SetStatus(obs.StatusCodeError, err.Error())
		return Reply{}, err
	}
	obs.MetricsImpl.IncrementRequests(map[string]string{"component": "chat"})
	obs.MetricsImpl.RecordLatency(time.Since(start), map[string]string{"component": "chat"})
	span.SetStatus(obs.StatusCodeOk, "")
	return reply, nil
}

// History returns the session transcript.
func (s *Service) History(ctx context.Context, sessionID string) ([]memory.Turn, error) {
	return s.store.Turns(ctx, sessionID)
}

// Reset clears the session transcript. It does not wait for or cancel a
// request in flight for the same session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	s.logger.Info("session reset", zap.String("session_id", sessionID))
	return s.store.Reset(ctx, sessionID)
}
