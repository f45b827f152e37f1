package graph

import (
	"fmt"

	"github.com/axleaudio/graphengine/errs"
)

// Graph holds the node name list (in insertion order) and the
// connections between them. It does not hold node instances — callers
// (the engine) own those and look them up by name when executing the
// order Graph computes.
type Graph struct {
	nodeOrder   []string // insertion order
	nodeIndex   map[string]int
	connections []Connection
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{nodeIndex: make(map[string]int)}
}

// AddNode registers a node name in insertion order. Returns an error if
// the name is already present — graph invariant 2 (unique names).
func (g *Graph) AddNode(name string) error {
	if _, exists := g.nodeIndex[name]; exists {
		return fmt.Errorf("graph: duplicate node name %q", name)
	}
	g.nodeIndex[name] = len(g.nodeOrder)
	g.nodeOrder = append(g.nodeOrder, name)
	return nil
}

// HasNode reports whether name was registered with AddNode.
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodeIndex[name]
	return ok
}

// Connect adds a connection. Returns an error if either endpoint node is
// unregistered — graph invariant 1.
func (g *Graph) Connect(c Connection) error {
	if !g.HasNode(c.SourceNode) {
		return fmt.Errorf("graph: unknown source node %q", c.SourceNode)
	}
	if !g.HasNode(c.SinkNode) {
		return fmt.Errorf("graph: unknown sink node %q", c.SinkNode)
	}
	g.connections = append(g.connections, c)
	return nil
}

// Connections returns the connections in insertion order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, len(g.connections))
	copy(out, g.connections)
	return out
}

// NodeNames returns the registered node names in insertion order.
func (g *Graph) NodeNames() []string {
	out := make([]string, len(g.nodeOrder))
	copy(out, g.nodeOrder)
	return out
}

// Order is the result of a successful schedule computation: a
// topologically valid node process order plus the connection transfer
// order, grouped immediately after their producing node so a buffer
// produced this block is consumed this block.
type Order struct {
	Nodes      []string
	Transfers  []Connection
	generation int
}

// Generation returns the monotonically increasing counter bumped on
// every successful Compute, so callers can detect a stale cached order
// after a topology edit without comparing full state.
func (o *Order) Generation() int { return o.generation }

// Scheduler computes and caches the process order for a Graph.
type Scheduler struct {
	g          *Graph
	generation int
}

// NewScheduler returns a Scheduler bound to g.
func NewScheduler(g *Graph) *Scheduler {
	return &Scheduler{g: g}
}

// Compute runs the topological sort: at each step, among not-yet-placed
// nodes whose every incoming edge's source is already placed, the node
// with the smallest insertion index is chosen, so ties always break by
// insertion order. If no such node exists while nodes remain, the graph
// contains a cycle.
func (s *Scheduler) Compute() (*Order, error) {
	n := len(s.g.nodeOrder)
	placed := make(map[string]bool, n)

	// incoming[name] = set of source node names that must be placed first.
	incoming := make(map[string]map[string]bool, n)
	for _, name := range s.g.nodeOrder {
		incoming[name] = make(map[string]bool)
	}
	for _, c := range s.g.connections {
		incoming[c.SinkNode][c.SourceNode] = true
	}

	order := make([]string, 0, n)
	for len(order) < n {
		progressed := false
		for _, name := range s.g.nodeOrder {
			if placed[name] {
				continue
			}
			ready := true
			for dep := range incoming[name] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			order = append(order, name)
			placed[name] = true
			progressed = true
			break // restart scan from the front so the smallest insertion index always wins
		}
		if !progressed {
			return nil, fmt.Errorf("%w: %d of %d nodes could not be placed", errs.ErrCyclicGraph, n-len(order), n)
		}
	}

	// Group connections immediately after their producing node, in the
	// connection list's own insertion order within each group.
	transfers := make([]Connection, 0, len(s.g.connections))
	for _, name := range order {
		for _, c := range s.g.connections {
			if c.SourceNode == name {
				transfers = append(transfers, c)
			}
		}
	}

	s.generation++
	return &Order{Nodes: order, Transfers: transfers, generation: s.generation}, nil
}

// Index returns the position of name within order.Nodes, or -1 if absent.
func (o *Order) Index(name string) int {
	for i, n := range o.Nodes {
		if n == name {
			return i
		}
	}
	return -1
}
