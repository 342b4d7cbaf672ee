package core

import (
	"context"
	"time"

	"github.com/KamdynS/weather-agents/tools"
)

// Message represents a conversation message with role and content
type Message struct {
	Role    string            `json:"role"`
	Content string            `json:"content"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// Meta keys understood by agents in this module.
const (
	MetaSessionID   = "session_id"
	MetaState       = "state"
	MetaSpecialists = "specialists"
)

// Agent defines the core interface for agents
type Agent interface {
	// Run handles one user message and returns the assistant reply
	Run(ctx context.Context, input Message) (Message, error)
}

// AgentFunc adapts a function to Agent.
type AgentFunc func(ctx context.Context, input Message) (Message, error)

func (f AgentFunc) Run(ctx context.Context, input Message) (Message, error) { return f(ctx, input) }

// Query is one free-text user question as seen by the router and the
// specialists.
type Query struct {
	Text      string
	SessionID string
	Time      time.Time

	// Location is set once resolution succeeded. Located records that
	// resolution was attempted so downstream agents do not repeat it.
	Location *tools.Location
	Located  bool
}

// NewQuery builds a query stamped with the current time.
func NewQuery(text string) Query {
	return Query{Text: text, Time: time.Now()}
}

// QueryFromMessage builds a query from a user message, carrying the
// session id from Meta.
func QueryFromMessage(m Message) Query {
	q := NewQuery(m.Content)
	if m.Meta != nil {
		q.SessionID = m.Meta[MetaSessionID]
	}
	return q
}

// WithLocation returns a copy of q with a resolved location.
func (q Query) WithLocation(loc tools.Location) Query {
	q.Location = &loc
	q.Located = true
	return q
}

// AgentConfig holds configuration for creating agents
type AgentConfig struct {
	MaxIterations int    `mapstructure:"max_iterations"`
	Timeout       string `mapstructure:"timeout"`
	SystemPrompt  string `mapstructure:"system_prompt"`
}

// ToolCall represents a requested tool execution parsed from an LLM response
type ToolCall struct {
	Name      string
	Arguments string // JSON string per llm.Function.Arguments
}
