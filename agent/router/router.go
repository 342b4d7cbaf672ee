// Package router implements the request router: every query is classified
// by the guardrail, then either rejected or dispatched to the specialists
// whose capability matches the query.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/KamdynS/weather-agents/agent/core"
	"github.com/KamdynS/weather-agents/agent/guardrail"
	"github.com/KamdynS/weather-agents/agent/intent"
	"github.com/KamdynS/weather-agents/agent/locate"
	"github.com/KamdynS/weather-agents/agent/specialist"
	obs "github.com/KamdynS/weather-agents/observability"
	"github.com/KamdynS/weather-agents/tools"
)

// State is a step of the routing state machine.
type State string

const (
	StateReceived   State = "received"
	StateClassified State = "classified"
	StateRouted     State = "routed"
	StateRejected   State = "rejected"
)

// RejectionMessage is returned for out-of-scope input.
const RejectionMessage = "I can only help with weather and air quality questions. Please try something else!"

// ClarificationMessage is returned when an in-scope query matches no
// specialist, for example a plain greeting.
const ClarificationMessage = "Hello! I can tell you about the current weather and air quality. " +
	`Ask me something like "What's the weather in Jakarta?" or "How is the air quality in Delhi?"`

// Mode selects how many specialists a query is dispatched to.
type Mode string

const (
	// ModeOrchestrate dispatches to every matching specialist and merges
	// the answers.
	ModeOrchestrate Mode = "orchestrate"
	// ModeHandoff hands the query to the first matching specialist only.
	ModeHandoff Mode = "handoff"
)

// DefaultMaxDepth bounds nested router composition.
const DefaultMaxDepth = 4

var (
	ErrConfiguration = errors.New("router: invalid configuration")
	ErrCycle         = errors.New("router: composition cycle")
	ErrMaxDepth      = errors.New("router: composition exceeds max depth")
)

// Member is anything a router can dispatch to: a specialist or a nested
// router.
type Member interface {
	Name() string
	Capabilities() []tools.Capability
	Respond(ctx context.Context, q core.Query) specialist.Reply
}

// Selection is one member chosen for a query.
type Selection struct {
	Member     string
	Capability tools.Capability
	// Term is the vocabulary term that matched.
	Term string
}

// Decision lists the selected members in dispatch order. An empty
// decision asks the user to clarify.
type Decision struct {
	Selections []Selection
}

// Empty reports whether no member was selected.
func (d Decision) Empty() bool { return len(d.Selections) == 0 }

// Names returns the selected member names in order.
func (d Decision) Names() []string {
	out := make([]string, len(d.Selections))
	for i, s := range d.Selections {
		out[i] = s.Member
	}
	return out
}

// HandoffEvent is delivered to Config.OnHandoff before a handoff runs.
type HandoffEvent struct {
	Router     string
	Specialist string
	Reason     string
	Location   *tools.Location
}

// Outcome is the terminal result of routing one query.
type Outcome struct {
	State    State
	Trace    []State
	Verdict  guardrail.Verdict
	Decision Decision
	Replies  []specialist.Reply
	Location *tools.Location
	Text     string
}

func (o *Outcome) advance(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

// Config wires a Router. Members and Registry are required.
type Config struct {
	Name      string
	Guardrail *guardrail.Guardrail
	Members   []Member
	Registry  *tools.Capabilities
	Locator   locate.Locator
	Mode      Mode
	// Workers above 1 runs selected members concurrently on a bounded pool.
	Workers   int
	MaxDepth  int
	OnHandoff func(ctx context.Context, ev HandoffEvent)
	Logger    *zap.Logger
}

// Router dispatches queries to members. Safe for concurrent use.
type Router struct {
	name      string
	guard     *guardrail.Guardrail
	registry  *tools.Capabilities
	locator   locate.Locator
	mode      Mode
	maxDepth  int
	onHandoff func(ctx context.Context, ev HandoffEvent)
	logger    *zap.Logger
	pool      *ants.Pool

	mountMu sync.Mutex
	mu      sync.RWMutex
	members []Member
}

// New validates cfg and builds a router. Every member capability must be
// registered in cfg.Registry and selectable by intent; otherwise New fails
// with ErrConfiguration.
func New(cfg Config) (*Router, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: capability registry is required", ErrConfiguration)
	}
	if cfg.Name == "" {
		cfg.Name = "router"
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeOrchestrate
	case ModeOrchestrate, ModeHandoff:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrConfiguration, cfg.Mode)
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Guardrail == nil {
		cfg.Guardrail = guardrail.New(nil)
	}

	r := &Router{
		name:      cfg.Name,
		guard:     cfg.Guardrail,
		registry:  cfg.Registry,
		locator:   cfg.Locator,
		mode:      cfg.Mode,
		maxDepth:  cfg.MaxDepth,
		onHandoff: cfg.OnHandoff,
		logger:    obs.OrNop(cfg.Logger),
	}
	if len(cfg.Members) == 0 {
		return nil, fmt.Errorf("%w: router %s has no members", ErrConfiguration, r.name)
	}
	if err := r.validate(cfg.Members); err != nil {
		return nil, err
	}
	r.members = append([]Member(nil), cfg.Members...)

	if cfg.Workers > 1 {
		pool, err := ants.NewPool(cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("create specialist pool: %w", err)
		}
		r.pool = pool
	}
	return r, nil
}

// Mount adds a member after construction. The full member set is
// re-validated, including cycle and depth checks through nested routers.
func (r *Router) Mount(m Member) error {
	r.mountMu.Lock()
	defer r.mountMu.Unlock()

	candidate := append(r.snapshot(), m)
	if err := r.validate(candidate); err != nil {
		return err
	}
	r.mu.Lock()
	r.members = candidate
	r.mu.Unlock()
	return nil
}

func (r *Router) snapshot() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Member(nil), r.members...)
}

func (r *Router) validate(members []Member) error {
	names := make(map[string]bool, len(members))
	for _, m := range members {
		if m == nil {
			return fmt.Errorf("%w: nil member", ErrConfiguration)
		}
		name := m.Name()
		if name == "" {
			return fmt.Errorf("%w: member without a name", ErrConfiguration)
		}
		if names[name] {
			return fmt.Errorf("%w: duplicate member %s", ErrConfiguration, name)
		}
		names[name] = true

		caps := m.Capabilities()
		if len(caps) == 0 {
			return fmt.Errorf("%w: member %s declares no capability", ErrConfiguration, name)
		}
		for _, c := range caps {
			if err := r.registry.Require(c); err != nil {
				return fmt.Errorf("%w: member %s: %w", ErrConfiguration, name, err)
			}
			if _, ok := intent.ForCapability(c); !ok {
				return fmt.Errorf("%w: member %s: no intent vocabulary for %s", ErrConfiguration, name, c)
			}
		}
	}
	return r.checkComposition(members)
}

// composite is implemented by members that dispatch to further members.
type composite interface {
	Member
	childMembers() []Member
}

func (r *Router) childMembers() []Member { return r.snapshot() }

func (r *Router) checkComposition(members []Member) error {
	path := make(map[composite]bool)
	var visit func(c composite, depth int) error
	visit = func(c composite, depth int) error {
		if c == composite(r) || path[c] {
			return fmt.Errorf("%w: %s reaches itself", ErrCycle, c.Name())
		}
		if depth > r.maxDepth {
			return fmt.Errorf("%w: %s is %d levels deep (max %d)", ErrMaxDepth, c.Name(), depth, r.maxDepth)
		}
		path[c] = true
		defer delete(path, c)
		for _, child := range c.childMembers() {
			if cc, ok := child.(composite); ok {
				if err := visit(cc, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, m := range members {
		if c, ok := m.(composite); ok {
			if err := visit(c, 2); err != nil {
				return err
			}
		}
	}
	return nil
}

// Name implements Member.
func (r *Router) Name() string { return r.name }

// Mode returns the dispatch mode.
func (r *Router) Mode() Mode { return r.mode }

// Capabilities returns the union of member capabilities in member order.
func (r *Router) Capabilities() []tools.Capability {
	var out []tools.Capability
	seen := make(map[tools.Capability]bool)
	for _, m := range r.snapshot() {
		for _, c := range m.Capabilities() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Select matches text against each registered capability's vocabulary in
// registry order and picks the first member serving each match. Handoff
// mode keeps only the first selection.
func (r *Router) Select(text string) Decision {
	return r.selectFrom(r.snapshot(), text)
}

func (r *Router) selectFrom(members []Member, text string) Decision {
	var d Decision
	picked := make(map[string]bool)
	for _, c := range r.registry.List() {
		vocab, ok := intent.ForCapability(c)
		if !ok {
			continue
		}
		term, ok := vocab.Match(text)
		if !ok {
			continue
		}
		m := owner(members, c)
		if m == nil || picked[m.Name()] {
			continue
		}
		picked[m.Name()] = true
		d.Selections = append(d.Selections, Selection{Member: m.Name(), Capability: c, Term: term})
		if r.mode == ModeHandoff {
			break
		}
	}
	return d
}

func owner(members []Member, c tools.Capability) Member {
	for _, m := range members {
		for _, mc := range m.Capabilities() {
			if mc == c {
				return m
			}
		}
	}
	return nil
}

func lookup(members []Member, name string) Member {
	for _, m := range members {
		if m.Name() == name {
			return m
		}
	}
	return nil
}

// Route runs the state machine for q. It always reaches a terminal state
// and always returns non-empty text.
func (r *Router) Route(ctx context.Context, q core.Query) Outcome {
	return r.route(ctx, q, true)
}

func (r *Router) route(ctx context.Context, q core.Query, classify bool) Outcome {
	start := time.Now()
	span, ctx := obs.TracerImpl.StartSpan(ctx, "router.route")
	defer span.End()
	if q.SessionID != "" {
		span.SetAttribute(obs.AttrSessionID, q.SessionID)
	}

	out := Outcome{}
	out.advance(StateReceived)

	if classify {
		out.Verdict = r.guard.Classify(ctx, q.Text)
	} else {
		out.Verdict = guardrail.Verdict{InScope: true, Rationale: "classified upstream"}
	}
	out.advance(StateClassified)
	span.SetAttribute(obs.AttrInScope, out.Verdict.InScope)

	if !out.Verdict.InScope {
		out.advance(StateRejected)
		out.Text = RejectionMessage
		r.finish(span, &out, start)
		return out
	}

	members := r.snapshot()
	out.Decision = r.selectFrom(members, q.Text)
	out.advance(StateRouted)
	if out.Decision.Empty() {
		out.Text = ClarificationMessage
		r.finish(span, &out, start)
		return out
	}

	q = r.resolve(ctx, q)
	out.Location = q.Location

	selected := make([]Member, 0, len(out.Decision.Selections))
	for _, s := range out.Decision.Selections {
		selected = append(selected, lookup(members, s.Member))
	}
	if r.mode == ModeHandoff {
		r.handoff(ctx, out.Decision.Selections[0], q)
	}

	out.Replies = r.dispatch(ctx, q, selected)
	out.Text = Merge(out.Replies)
	r.finish(span, &out, start)
	return out
}

func (r *Router) resolve(ctx context.Context, q core.Query) core.Query {
	if q.Location != nil || q.Located || r.locator == nil {
		return q
	}
	q.Located = true
	loc, err := r.locator.Locate(ctx, q.Text)
	if err != nil {
		r.logger.Debug("location not resolved", zap.String("router", r.name), zap.Error(err))
		return q
	}
	q.Location = &loc
	return q
}

func (r *Router) handoff(ctx context.Context, sel Selection, q core.Query) {
	ev := HandoffEvent{
		Router:     r.name,
		Specialist: sel.Member,
		Reason:     fmt.Sprintf("query mentions %q", sel.Term),
		Location:   q.Location,
	}
	r.logger.Info("handoff", zap.String("router", r.name), zap.String("to", ev.Specialist), zap.String("reason", ev.Reason))
	if r.onHandoff != nil {
		r.onHandoff(ctx, ev)
	}
}

// dispatch invokes each member exactly once and slots replies by index.
func (r *Router) dispatch(ctx context.Context, q core.Query, members []Member) []specialist.Reply {
	replies := make([]specialist.Reply, len(members))
	if r.pool == nil || len(members) < 2 {
		for i, m := range members {
			replies[i] = r.invoke(ctx, m, q)
		}
		return replies
	}

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		idx, member := i, m
		task := func() {
			defer wg.Done()
			replies[idx] = r.invoke(ctx, member, q)
		}
		if err := r.pool.Submit(task); err != nil {
			r.logger.Warn("specialist pool unavailable, running inline", zap.Error(err))
			task()
		}
	}
	wg.Wait()
	return replies
}

func (r *Router) invoke(ctx context.Context, m Member, q core.Query) specialist.Reply {
	reply := m.Respond(ctx, q)
	if strings.TrimSpace(reply.Text) == "" {
		reply.Text = fmt.Sprintf("%s returned no answer.", m.Name())
	}
	return reply
}

func (r *Router) finish(span obs.Span, out *Outcome, start time.Time) {
	span.SetAttribute(obs.AttrRouteState, string(out.State))
	span.SetAttribute("router.specialists", strings.Join(out.Decision.Names(), ","))
	span.SetStatus(obs.StatusCodeOk, "")
	obs.MetricsImpl.RecordRoute(string(out.State), len(out.Replies))
	obs.MetricsImpl.RecordLatency(time.Since(start), map[string]string{"component": "router"})
	r.logger.Info("query routed",
		zap.String("router", r.name),
		zap.String("state", string(out.State)),
		zap.Strings("specialists", out.Decision.Names()),
		zap.Duration("elapsed", time.Since(start)))
}

// Merge concatenates answers in decision order separated by a blank line.
// Each answer keeps its own Summary and Suggestions sections.
func Merge(replies []specialist.Reply) string {
	parts := make([]string, 0, len(replies))
	for _, rep := range replies {
		if t := strings.TrimSpace(rep.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Respond implements Member so routers compose. The parent router has
// already classified the query, so the guardrail is skipped.
func (r *Router) Respond(ctx context.Context, q core.Query) specialist.Reply {
	out := r.route(ctx, q, false)
	reply := specialist.Reply{Specialist: r.name, Text: out.Text, Location: out.Location}
	for _, rep := range out.Replies {
		if rep.Invoked {
			reply.Invoked, reply.Result, reply.Capability = true, rep.Result, rep.Capability
			break
		}
	}
	return reply
}

// Run implements core.Agent. The outcome state and selected members are
// reported in the reply Meta.
func (r *Router) Run(ctx context.Context, input core.Message) (core.Message, error) {
	q := core.QueryFromMessage(input)
	out := r.Route(ctx, q)
	meta := map[string]string{
		core.MetaState:       string(out.State),
		core.MetaSpecialists: strings.Join(out.Decision.Names(), ","),
	}
	if q.SessionID != "" {
		meta[core.MetaSessionID] = q.SessionID
	}
	return core.Message{Role: "assistant", Content: out.Text, Meta: meta}, nil
}

// Close releases the worker pool.
func (r *Router) Close() {
	if r.pool != nil {
		r.pool.Release()
	}
}

var (
	_ Member     = (*Router)(nil)
	_ Member     = (*specialist.Specialist)(nil)
	_ core.Agent = (*Router)(nil)
)
