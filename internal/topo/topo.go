// Package topo provides the minimal directed-graph machinery the circuit
// board and its validators share: adjacency bookkeeping, cycle detection,
// stable topological ordering, and reachability queries.
//
// All iteration over nodes and edges follows insertion order, so every
// consumer of this package sees a deterministic traversal.
package topo

import (
	"errors"
	"fmt"
)

// ErrCycle is returned when an operation requires an acyclic graph and the
// graph has a cycle.
var ErrCycle = errors.New("graph contains a cycle")

// Graph is a directed graph over string node IDs. It is not safe for
// concurrent use; a circuit board owns its graphs on a single thread.
type Graph struct {
	nodes map[string]*node
	order []string
}

// node is un-exported to enforce interaction with the graph via the public
// API (using string IDs), not by direct struct manipulation.
type node struct {
	id string
	// out and in hold adjacency sets; outOrder and inOrder preserve the
	// order in which edges were added.
	out      map[string]bool
	in       map[string]bool
	outOrder []string
	inOrder  []string
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*node)}
}

// AddNode adds a node with the given ID. Adding an existing ID is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:  id,
		out: make(map[string]bool),
		in:  make(map[string]bool),
	}
	g.order = append(g.order, id)
}

// HasNode reports whether the graph contains the given ID.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// AddEdge creates a directed edge from fromID to toID. An error is returned
// if either node does not exist, if the edge already exists, or if the edge
// would be a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, toID)
	}
	from, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	to, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}
	if from.out[toID] {
		return fmt.Errorf("edge already exists: %s -> %s", fromID, toID)
	}
	from.out[toID] = true
	from.outOrder = append(from.outOrder, toID)
	to.in[fromID] = true
	to.inOrder = append(to.inOrder, fromID)
	return nil
}

// HasEdge reports whether a directed edge from fromID to toID exists.
func (g *Graph) HasEdge(fromID, toID string) bool {
	n, ok := g.nodes[fromID]
	return ok && n.out[toID]
}

// Nodes returns all node IDs in insertion order.
func (g *Graph) Nodes() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	total := 0
	for _, n := range g.nodes {
		total += len(n.outOrder)
	}
	return total
}

// Successors returns the IDs this node has edges to, in edge-insertion order.
func (g *Graph) Successors(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(n.outOrder))
	copy(out, n.outOrder)
	return out
}

// Predecessors returns the IDs with edges into this node, in edge-insertion
// order.
func (g *Graph) Predecessors(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]string, len(n.inOrder))
	copy(out, n.inOrder)
	return out
}

// OutDegree returns the number of outgoing edges of id, or 0 if unknown.
func (g *Graph) OutDegree(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return len(n.outOrder)
}

// InDegree returns the number of incoming edges of id, or 0 if unknown.
func (g *Graph) InDegree(id string) int {
	n, ok := g.nodes[id]
	if !ok {
		return 0
	}
	return len(n.inOrder)
}

// Terminals returns the nodes with no outgoing edges, in insertion order.
func (g *Graph) Terminals() []string {
	var out []string
	for _, id := range g.order {
		if len(g.nodes[id].outOrder) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Initials returns the nodes with no incoming edges, in insertion order.
func (g *Graph) Initials() []string {
	var out []string
	for _, id := range g.order {
		if len(g.nodes[id].inOrder) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// TopoSort returns a topological ordering of the graph, or ErrCycle if none
// exists. Ties are broken by node insertion order, so the result is stable
// for a given construction sequence.
func (g *Graph) TopoSort() ([]string, error) {
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.nodes[id].inOrder)
	}

	var queue []string
	for _, id := range g.order {
		if indegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, succ := range g.nodes[id].outOrder {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		var stuck []string
		for _, id := range g.order {
			if indegree[id] > 0 {
				stuck = append(stuck, id)
			}
		}
		return nil, fmt.Errorf("%w: involving %v", ErrCycle, stuck)
	}
	return sorted, nil
}

// HasPath reports whether toID is reachable from fromID. A node always
// reaches itself.
func (g *Graph) HasPath(fromID, toID string) bool {
	_, ok := g.ShortestPath(fromID, toID)
	return ok
}

// ShortestPath returns a minimum-hop path from fromID to toID, or false if
// no path exists. The path includes both endpoints; a node reaches itself
// with the single-element path.
func (g *Graph) ShortestPath(fromID, toID string) ([]string, bool) {
	if !g.HasNode(fromID) || !g.HasNode(toID) {
		return nil, false
	}
	if fromID == toID {
		return []string{fromID}, true
	}

	// Breadth-first search with parent links.
	parent := map[string]string{fromID: ""}
	queue := []string{fromID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range g.nodes[id].outOrder {
			if _, seen := parent[succ]; seen {
				continue
			}
			parent[succ] = id
			if succ == toID {
				var path []string
				for at := toID; at != ""; at = parent[at] {
					path = append([]string{at}, path...)
				}
				return path, true
			}
			queue = append(queue, succ)
		}
	}
	return nil, false
}
