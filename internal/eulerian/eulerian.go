// Package eulerian checks whether a board's two edge sets close into a
// round trip. A well-formed model lets a walk leave a backward-terminal
// perch along forward edges and return along backward edges, visiting every
// edge of the union multigraph in the process. The check is a structural
// sanity test for hand-built boards, not part of the solving path.
package eulerian

import (
	"github.com/vk/circuitgo/internal/board"
	"github.com/vk/circuitgo/internal/mover"
	"github.com/vk/circuitgo/internal/topo"
)

// graphOf rebuilds one edge set as a standalone graph for path queries.
func graphOf(b *board.Board, d mover.Direction) *topo.Graph {
	g := topo.New()
	for _, name := range b.PerchNames() {
		g.AddNode(name)
	}
	for _, e := range b.Edges(d) {
		// Board construction already validated these edges.
		_ = g.AddEdge(e[0], e[1])
	}
	return g
}

// unionEdges lists every edge of both sets, with multiplicity.
func unionEdges(b *board.Board) [][2]string {
	edges := b.Edges(mover.Backward)
	return append(edges, b.Edges(mover.Forward)...)
}

// balanced reports whether every perch has equal in- and out-degree in the
// union multigraph.
func balanced(b *board.Board) bool {
	out := make(map[string]int)
	in := make(map[string]int)
	for _, e := range unionEdges(b) {
		out[e[0]]++
		in[e[1]]++
	}
	for _, name := range b.PerchNames() {
		if out[name] != in[name] {
			return false
		}
	}
	return true
}

// stronglyConnected reports whether every perch reaches every other perch
// in the union multigraph. Isolated perches fail the check.
func stronglyConnected(b *board.Board) bool {
	names := b.PerchNames()
	if len(names) == 0 {
		return false
	}
	fwd := make(map[string][]string)
	rev := make(map[string][]string)
	for _, e := range unionEdges(b) {
		fwd[e[0]] = append(fwd[e[0]], e[1])
		rev[e[1]] = append(rev[e[1]], e[0])
	}
	return reaches(names[0], names, fwd) && reaches(names[0], names, rev)
}

func reaches(start string, all []string, adj map[string][]string) bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return len(seen) == len(all)
}

// FindPath searches for a round trip anchored at a backward-terminal perch:
// out along forward edges to a perch where the backward flow originates,
// then home along backward edges. The turnaround must be a backward-initial
// perch so the return leg spans the full backward chain. The first anchor
// and turnaround found in insertion order win. Returns false when no such
// trip exists.
func FindPath(b *board.Board) ([]string, bool) {
	backward := graphOf(b, mover.Backward)
	forward := graphOf(b, mover.Forward)

	for _, terminal := range backward.Terminals() {
		for _, turn := range backward.Initials() {
			if turn == terminal {
				continue
			}
			if !forward.HasPath(terminal, turn) || !backward.HasPath(turn, terminal) {
				continue
			}
			out, ok := forward.ShortestPath(terminal, turn)
			if !ok {
				continue
			}
			back, ok := backward.ShortestPath(turn, terminal)
			if !ok {
				continue
			}
			return append(out, back[1:]...), true
		}
	}
	return nil, false
}

// IsCircuit reports whether the board's union multigraph supports an
// Eulerian circuit: both edge sets are non-empty, every perch has balanced
// degree, the union is strongly connected, and a round trip from a
// backward-terminal perch exists.
func IsCircuit(b *board.Board) bool {
	if b.EdgeCount(mover.Backward) == 0 || b.EdgeCount(mover.Forward) == 0 {
		return false
	}
	if !balanced(b) {
		return false
	}
	if !stronglyConnected(b) {
		return false
	}
	_, ok := FindPath(b)
	return ok
}
