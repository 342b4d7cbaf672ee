// Package graph renders agent topologies as Mermaid flowcharts and
// Graphviz DOT documents.
package graph

import (
	"fmt"
	"strings"
)

// Kind selects the node shape.
type Kind string

const (
	KindRouter    Kind = "router"
	KindAgent     Kind = "agent"
	KindTool      Kind = "tool"
	KindGuardrail Kind = "guardrail"
)

// Node is one vertex of a topology. Nodes may be shared between parents;
// rendering emits each node once.
type Node struct {
	Name  string
	Kind  Kind
	Edges []Edge
}

// Edge points from its owning node to To.
type Edge struct {
	Label string
	To    *Node
}

// New creates a node.
func New(name string, kind Kind) *Node { return &Node{Name: name, Kind: kind} }

// Connect adds an edge and returns n for chaining.
func (n *Node) Connect(label string, to *Node) *Node {
	if to != nil {
		n.Edges = append(n.Edges, Edge{Label: label, To: to})
	}
	return n
}

// Walk visits every reachable node once in depth-first preorder.
func (n *Node) Walk(fn func(*Node)) {
	seen := make(map[*Node]bool)
	var visit func(*Node)
	visit = func(cur *Node) {
		if cur == nil || seen[cur] {
			return
		}
		seen[cur] = true
		fn(cur)
		for _, e := range cur.Edges {
			visit(e.To)
		}
	}
	visit(n)
}

// Option configures rendering.
type Option func(*config)

type config struct {
	direction string // TD, LR, BT, RL
}

// WithDirection sets graph direction (e.g., "TD", "LR").
func WithDirection(dir string) Option {
	return func(c *config) {
		dir = strings.TrimSpace(strings.ToUpper(dir))
		switch dir {
		case "TD", "LR", "BT", "RL":
			c.direction = dir
		}
	}
}

type edge struct {
	from, to, label string
}

// layout assigns compact, stable ids in walk order.
func layout(root *Node) ([]*Node, map[*Node]string, []edge) {
	ids := make(map[*Node]string)
	var order []*Node
	root.Walk(func(n *Node) {
		order = append(order, n)
		ids[n] = fmt.Sprintf("n%d", len(order))
	})
	var edges []edge
	for _, n := range order {
		for _, e := range n.Edges {
			if e.To == nil {
				continue
			}
			edges = append(edges, edge{from: ids[n], to: ids[e.To], label: e.Label})
		}
	}
	return order, ids, edges
}

// Mermaid renders root as a Mermaid flowchart starting with `graph TD`.
func Mermaid(root *Node, opts ...Option) string {
	cfg := config{direction: "TD"}
	for _, o := range opts {
		o(&cfg)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "graph %s\n", cfg.direction)
	if root == nil {
		return b.String()
	}
	order, ids, edges := layout(root)
	for _, n := range order {
		label := strings.ReplaceAll(n.Name, "\"", "#quot;")
		switch n.Kind {
		case KindRouter:
			fmt.Fprintf(&b, "%s[[\"%s\"]]\n", ids[n], label)
		case KindTool:
			fmt.Fprintf(&b, "%s([\"%s\"])\n", ids[n], label)
		case KindGuardrail:
			fmt.Fprintf(&b, "%s{\"%s\"}\n", ids[n], label)
		default:
			fmt.Fprintf(&b, "%s[\"%s\"]\n", ids[n], label)
		}
	}
	for _, e := range edges {
		if e.label != "" {
			fmt.Fprintf(&b, "%s -->|%s| %s\n", e.from, e.label, e.to)
		} else {
			fmt.Fprintf(&b, "%s --> %s\n", e.from, e.to)
		}
	}
	return b.String()
}

var dotShapes = map[Kind]string{
	KindRouter:    "box3d",
	KindAgent:     "box",
	KindTool:      "ellipse",
	KindGuardrail: "diamond",
}

// DOT renders root as a Graphviz digraph.
func DOT(root *Node, opts ...Option) string {
	cfg := config{direction: "TD"}
	for _, o := range opts {
		o(&cfg)
	}
	rankdir := cfg.direction
	if rankdir == "TD" {
		rankdir = "TB"
	}
	var b strings.Builder
	b.WriteString("digraph agents {\n")
	fmt.Fprintf(&b, "  rankdir=%s;\n", rankdir)
	if root != nil {
		order, ids, edges := layout(root)
		for _, n := range order {
			shape, ok := dotShapes[n.Kind]
			if !ok {
				shape = "box"
			}
			fmt.Fprintf(&b, "  %s [label=%q, shape=%s];\n", ids[n], n.Name, shape)
		}
		for _, e := range edges {
			if e.label != "" {
				fmt.Fprintf(&b, "  %s -> %s [label=%q];\n", e.from, e.to, e.label)
			} else {
				fmt.Fprintf(&b, "  %s -> %s;\n", e.from, e.to)
			}
		}
	}
	b.WriteString("}\n")
	return b.String()
}

// Render dispatches on format: "mermaid" (default) or "dot".
func Render(root *Node, format string, opts ...Option) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "mermaid":
		return Mermaid(root, opts...), nil
	case "dot", "graphviz":
		return DOT(root, opts...), nil
	default:
		return "", fmt.Errorf("graph: unknown format %q", format)
	}
}
