package topo

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "d"))
	require.NoError(t, g.AddEdge("c", "d"))
	return g
}

func TestAddNodeIdempotent(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("a")
	assert.Equal(t, []string{"a"}, g.Nodes())
}

func TestAddEdgeErrors(t *testing.T) {
	g := New()
	g.AddNode("a")
	g.AddNode("b")

	require.Error(t, g.AddEdge("a", "a"), "self edge")
	require.Error(t, g.AddEdge("ghost", "b"), "missing source")
	require.Error(t, g.AddEdge("a", "ghost"), "missing destination")

	require.NoError(t, g.AddEdge("a", "b"))
	require.Error(t, g.AddEdge("a", "b"), "duplicate edge")
}

func TestAdjacency(t *testing.T) {
	g := diamond(t)

	assert.True(t, g.HasEdge("a", "b"))
	assert.False(t, g.HasEdge("b", "a"))
	assert.Equal(t, 4, g.EdgeCount())

	if diff := cmp.Diff([]string{"b", "c"}, g.Successors("a")); diff != "" {
		t.Errorf("successors mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b", "c"}, g.Predecessors("d")); diff != "" {
		t.Errorf("predecessors mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 2, g.OutDegree("a"))
	assert.Equal(t, 0, g.InDegree("a"))
	assert.Equal(t, []string{"a"}, g.Initials())
	assert.Equal(t, []string{"d"}, g.Terminals())
}

func TestTopoSortStable(t *testing.T) {
	g := diamond(t)
	order, err := g.TopoSort()
	require.NoError(t, err)
	// Ties resolve by node insertion order.
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestTopoSortCycle(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "a"))

	_, err := g.TopoSort()
	require.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a")
}

func TestShortestPath(t *testing.T) {
	g := diamond(t)

	path, ok := g.ShortestPath("a", "d")
	require.True(t, ok)
	// BFS prefers the branch whose edge was added first.
	assert.Equal(t, []string{"a", "b", "d"}, path)

	path, ok = g.ShortestPath("a", "a")
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, path)

	_, ok = g.ShortestPath("d", "a")
	assert.False(t, ok)

	_, ok = g.ShortestPath("a", "ghost")
	assert.False(t, ok)
}

func TestHasPath(t *testing.T) {
	g := diamond(t)
	assert.True(t, g.HasPath("a", "d"))
	assert.True(t, g.HasPath("b", "d"))
	assert.False(t, g.HasPath("b", "c"))
}
