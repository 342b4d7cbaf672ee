package graph_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/weather-agents/graph"
)

func sample() *graph.Node {
	tool := graph.New("get_current_weather", graph.KindTool)
	root := graph.New("router", graph.KindRouter)
	root.Connect("guards", graph.New("topic guardrail", graph.KindGuardrail))
	root.Connect("routes", graph.New("weather_specialist", graph.KindAgent).Connect("calls", tool))
	root.Connect("routes", graph.New(`the "other" agent`, graph.KindAgent).Connect("calls", tool))
	return root
}

func TestMermaid(t *testing.T) {
	want := "graph LR\n" +
		"n1[[\"router\"]]\n" +
		"n2{\"topic guardrail\"}\n" +
		"n3[\"weather_specialist\"]\n" +
		"n4([\"get_current_weather\"])\n" +
		"n5[\"the #quot;other#quot; agent\"]\n" +
		"n1 -->|guards| n2\n" +
		"n1 -->|routes| n3\n" +
		"n1 -->|routes| n5\n" +
		"n3 -->|calls| n4\n" +
		"n5 -->|calls| n4\n"
	assert.Equal(t, want, graph.Mermaid(sample(), graph.WithDirection("lr")))
	assert.Equal(t, "graph TD\n", graph.Mermaid(nil))
}

func TestDOT(t *testing.T) {
	out := graph.DOT(sample())
	assert.Contains(t, out, "digraph agents {\n  rankdir=TB;\n")
	assert.Contains(t, out, `n4 [label="get_current_weather", shape=ellipse];`)
	assert.Contains(t, out, `n5 [label="the \"other\" agent", shape=box];`)
	assert.Contains(t, out, `n5 -> n4 [label="calls"];`)
}

func TestWalkVisitsSharedNodesOnce(t *testing.T) {
	var names []string
	sample().Walk(func(n *graph.Node) { names = append(names, n.Name) })
	assert.Len(t, names, 5)
}

func TestRender(t *testing.T) {
	out, err := graph.Render(sample(), "dot")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph")

	_, err = graph.Render(sample(), "svg")
	assert.Error(t, err)
}

func ExampleMermaid() {
	root := graph.New("router", graph.KindRouter).
		Connect("routes", graph.New("weather_specialist", graph.KindAgent))
	fmt.Print(graph.Mermaid(root))
	// Output:
	// graph TD
	// n1[["router"]]
	// n2["weather_specialist"]
	// n1 -->|routes| n2
}
