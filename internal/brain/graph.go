package brain

import (
	"errors"
	"fmt"
	"slices"

	"sentinel.app/relay/internal/model"
)

// Edge labels a transition out of a node.
type Edge string

const (
	EdgeDone     Edge = "done"
	EdgeDetected Edge = "detected"
	EdgeNone     Edge = "none"
)

// Transition is one row of the edge table.
type Transition struct {
	From model.Node
	On   Edge
	To   model.Node
}

var ErrInvalidGraph = errors.New("invalid workflow graph")

// Graph is the validated workflow: task handlers plus one edge table.
// The router node has one edge per Route.
type Graph struct {
	handlers map[model.Node]Handler
	edges    map[model.Node]map[Edge]model.Node
}

// DefaultTransitions is the standard edge table.
func DefaultTransitions() []Transition {
	return []Transition{
		{model.NodeRouter, Edge(RouteLogAnswer), model.NodeLogAnswer},
		{model.NodeRouter, Edge(RouteIssueCreation), model.NodeIssueDetection},
		{model.NodeRouter, Edge(RouteRemediation), model.NodeRemediation},
		{model.NodeRouter, Edge(RouteNeedsTarget), model.NodeAskTarget},
		{model.NodeLogAnswer, EdgeDone, model.NodeEnd},
		{model.NodeIssueDetection, EdgeDetected, model.NodeFiling},
		{model.NodeIssueDetection, EdgeNone, model.NodeEnd},
		{model.NodeFiling, EdgeDone, model.NodeEnd},
		{model.NodeRemediation, EdgeDone, model.NodeEnd},
		{model.NodeAskTarget, EdgeDone, model.NodeEnd},
	}
}

// NewDefaultGraph wires the standard handlers to DefaultTransitions.
func NewDefaultGraph(deps Deps) (*Graph, error) {
	return NewGraph(map[model.Node]Handler{
		model.NodeLogAnswer:      &logAnswerHandler{deps: deps},
		model.NodeIssueDetection: &issueDetectionHandler{deps: deps},
		model.NodeFiling:         &filingHandler{deps: deps},
		model.NodeRemediation:    &remediationHandler{deps: deps},
		model.NodeAskTarget:      askTargetHandler{},
	}, DefaultTransitions())
}

// NewGraph validates the edge table against the handlers. It fails when a
// route or declared handler edge has no transition, when a transition points
// at an unknown node or leaves a node that cannot emit it, and on duplicates.
func NewGraph(handlers map[model.Node]Handler, transitions []Transition) (*Graph, error) {
	g := &Graph{
		handlers: make(map[model.Node]Handler, len(handlers)),
		edges:    make(map[model.Node]map[Edge]model.Node),
	}
	for node, h := range handlers {
		if node == model.NodeRouter || node == model.NodeEnd {
			return nil, fmt.Errorf("%w: %s cannot have a handler", ErrInvalidGraph, node)
		}
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler for %s", ErrInvalidGraph, node)
		}
		g.handlers[node] = h
	}

	for _, t := range transitions {
		if !g.emits(t.From, t.On) {
			return nil, fmt.Errorf("%w: %s has no edge %q", ErrInvalidGraph, t.From, t.On)
		}
		if t.To != model.NodeEnd && g.handlers[t.To] == nil {
			return nil, fmt.Errorf("%w: %s --%s--> unknown node %s", ErrInvalidGraph, t.From, t.On, t.To)
		}
		if g.edges[t.From] == nil {
			g.edges[t.From] = make(map[Edge]model.Node)
		}
		if _, dup := g.edges[t.From][t.On]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %s --%s-->", ErrInvalidGraph, t.From, t.On)
		}
		g.edges[t.From][t.On] = t.To
	}

	for _, r := range Routes {
		if _, ok := g.edges[model.NodeRouter][Edge(r)]; !ok {
			return nil, fmt.Errorf("%w: router has no edge for route %q", ErrInvalidGraph, r)
		}
	}
	for node, h := range g.handlers {
		for _, e := range h.Edges() {
			if _, ok := g.edges[node][e]; !ok {
				return nil, fmt.Errorf("%w: %s has no transition for edge %q", ErrInvalidGraph, node, e)
			}
		}
	}
	return g, nil
}

func (g *Graph) emits(from model.Node, e Edge) bool {
	if from == model.NodeRouter {
		return slices.Contains(Routes, Route(e))
	}
	h, ok := g.handlers[from]
	return ok && slices.Contains(h.Edges(), e)
}

// Next returns the node reached from node over edge.
func (g *Graph) Next(node model.Node, e Edge) (model.Node, error) {
	to, ok := g.edges[node][e]
	if !ok {
		return "", fmt.Errorf("%w: %s has no edge %q", ErrInvalidGraph, node, e)
	}
	return to, nil
}

func (g *Graph) Handler(node model.Node) (Handler, bool) {
	h, ok := g.handlers[node]
	return h, ok
}
