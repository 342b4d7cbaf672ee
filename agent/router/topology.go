package router

import "github.com/KamdynS/weather-agents/graph"

type topologist interface {
	Topology() *graph.Node
}

// Topology returns the router, its guardrail and every member as a graph.
func (r *Router) Topology() *graph.Node { return r.topology(true) }

func (r *Router) topology(guarded bool) *graph.Node {
	root := graph.New(r.name, graph.KindRouter)
	if guarded {
		root.Connect("guards", graph.New("topic guardrail", graph.KindGuardrail))
	}
	label := "routes"
	if r.mode == ModeHandoff {
		label = "handoff"
	}
	for _, m := range r.snapshot() {
		root.Connect(label, nodeFor(m))
	}
	return root
}

func nodeFor(m Member) *graph.Node {
	switch v := m.(type) {
	case *Router:
		return v.topology(false)
	case topologist:
		return v.Topology()
	default:
		return graph.New(m.Name(), graph.KindAgent)
	}
}
