package core

import (
	"context"

	obs "github.com/KamdynS/weather-agents/observability"
)

// InputGuard decides whether user input may reach an agent.
type InputGuard interface {
	Allow(ctx context.Context, text string) (bool, string)
}

// GuardedAgent runs an input guard before the wrapped agent. Rejected input
// is answered with Rejection and never reaches the agent.
type GuardedAgent struct {
	Agent     Agent
	Guard     InputGuard
	Rejection string
}

// StateRejected is the Meta[MetaState] value on guard rejections.
const StateRejected = "rejected"

// Run implements Agent.
func (g *GuardedAgent) Run(ctx context.Context, input Message) (Message, error) {
	if g.Guard != nil {
		ok, rationale := g.Guard.Allow(ctx, input.Content)
		if !ok {
			span, _ := obs.TracerImpl.StartSpan(ctx, "agent.guardrail_tripped")
			span.SetAttribute(obs.AttrInScope, false)
			span.AddEvent("rejected", map[string]interface{}{"rationale": rationale})
			span.End()
			return Message{
				Role:    "assistant",
				Content: g.Rejection,
				Meta:    map[string]string{MetaState: StateRejected},
			}, nil
		}
	}
	return g.Agent.Run(ctx, input)
}
