// Package graph provides a small state graph for agent workflows. Named nodes
// transform a shared state and are connected by fixed or conditional edges.
// A compiled graph runs from its entry point until it reaches End.
package graph

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ardanlabs/sql-agent/foundation/client"
)

// End is the sentinel node name that terminates a run.
const End = "__end__"

const defaultMaxSteps = 50

// NodeFunc transforms the state. The returned state feeds the next node.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// CondFunc inspects the state and names the next node, or End.
type CondFunc[S any] func(ctx context.Context, state S) string

type Graph[S any] struct {
	nodes map[string]NodeFunc[S]
	edges map[string]string
	conds map[string]CondFunc[S]
	entry string
}

func New[S any]() *Graph[S] {
	return &Graph[S]{
		nodes: make(map[string]NodeFunc[S]),
		edges: make(map[string]string),
		conds: make(map[string]CondFunc[S]),
	}
}

func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) {
	g.nodes[name] = fn
}

func (g *Graph[S]) AddEdge(from string, to string) {
	g.edges[from] = to
}

func (g *Graph[S]) AddConditionalEdges(from string, cond CondFunc[S]) {
	g.conds[from] = cond
}

func (g *Graph[S]) SetEntryPoint(name string) {
	g.entry = name
}

// Compile validates the wiring and returns a runnable graph.
func (g *Graph[S]) Compile(options ...func(rn *Runnable[S])) (*Runnable[S], error) {
	if g.entry == "" {
		return nil, fmt.Errorf("graph: no entry point")
	}

	if _, exists := g.nodes[g.entry]; !exists {
		return nil, fmt.Errorf("graph: entry point %q is not a node", g.entry)
	}

	for name, fn := range g.nodes {
		if fn == nil {
			return nil, fmt.Errorf("graph: node %q has no function", name)
		}
	}

	for from, to := range g.edges {
		if _, exists := g.nodes[from]; !exists {
			return nil, fmt.Errorf("graph: edge from unknown node %q", from)
		}

		if _, exists := g.nodes[to]; !exists && to != End {
			return nil, fmt.Errorf("graph: edge from %q to unknown node %q", from, to)
		}

		if _, exists := g.conds[from]; exists {
			return nil, fmt.Errorf("graph: node %q has both a fixed and a conditional edge", from)
		}
	}

	for from := range g.conds {
		if _, exists := g.nodes[from]; !exists {
			return nil, fmt.Errorf("graph: conditional edge from unknown node %q", from)
		}
	}

	rn := Runnable[S]{
		graph:    g,
		log:      client.NoopLogger,
		maxSteps: defaultMaxSteps,
	}

	for _, option := range options {
		option(&rn)
	}

	return &rn, nil
}

func WithLogger[S any](log client.Logger) func(rn *Runnable[S]) {
	return func(rn *Runnable[S]) {
		rn.log = log
	}
}

func WithMaxSteps[S any](maxSteps int) func(rn *Runnable[S]) {
	return func(rn *Runnable[S]) {
		rn.maxSteps = maxSteps
	}
}

// =============================================================================

type Runnable[S any] struct {
	graph    *Graph[S]
	log      client.Logger
	maxSteps int
}

// Invoke executes the graph from the entry point until it reaches End, a node
// fails, or the step ceiling is hit. The last state is always returned so the
// caller can inspect partial progress.
func (rn *Runnable[S]) Invoke(ctx context.Context, state S) (S, error) {
	runID := uuid.NewString()
	current := rn.graph.entry

	for step := 1; ; step++ {
		if step > rn.maxSteps {
			return state, fmt.Errorf("graph: exceeded %d steps at node %q", rn.maxSteps, current)
		}

		if err := ctx.Err(); err != nil {
			return state, fmt.Errorf("graph: node %q: %w", current, err)
		}

		rn.log(ctx, "graph: invoke", "run_id", runID, "step", step, "node", current)

		var err error
		state, err = rn.graph.nodes[current](ctx, state)
		if err != nil {
			return state, fmt.Errorf("graph: node %q: %w", current, err)
		}

		next := End
		switch {
		case rn.graph.conds[current] != nil:
			next = rn.graph.conds[current](ctx, state)

		case rn.graph.edges[current] != "":
			next = rn.graph.edges[current]
		}

		if next == End {
			rn.log(ctx, "graph: end", "run_id", runID, "steps", step)
			return state, nil
		}

		if _, exists := rn.graph.nodes[next]; !exists {
			return state, fmt.Errorf("graph: node %q routed to unknown node %q", current, next)
		}

		current = next
	}
}
