package policykit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func graphService(g GraphStore, cfg Config) *Service {
	return &Service{graph: g, cfg: cfg}
}

// TestStaticGraphEntities tests entity bookkeeping
func TestStaticGraphEntities(t *testing.T) {
	ctx := context.Background()
	g := NewStaticGraph().AddEntity("doc-1", "document", "Quarterly report")

	e, err := g.GetEntity(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "document", e.Kind)

	ok, err := g.Exists(ctx, "doc-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Exists(ctx, "doc-2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = g.GetEntity(ctx, "doc-2")
	assert.True(t, IsNotFound(err))
}

// TestStaticGraphParentEdges tests edge-type filtering
func TestStaticGraphParentEdges(t *testing.T) {
	ctx := context.Background()
	g := NewStaticGraph().
		AddParent("doc-1", "project-1", "parent").
		AddParent("doc-1", "user-9", "owner")

	parents, err := g.ParentEdges(ctx, "doc-1", []string{"parent"})
	require.NoError(t, err)
	assert.Equal(t, []string{"project-1"}, parents)

	parents, err = g.ParentEdges(ctx, "doc-1", []string{"parent", "owner"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"project-1", "user-9"}, parents)

	parents, err = g.ParentEdges(ctx, "doc-1", []string{"member"})
	require.NoError(t, err)
	assert.Empty(t, parents)
}

// TestAncestorsChain tests hop distances along a linear chain
func TestAncestorsChain(t *testing.T) {
	g := NewStaticGraph().
		AddParent("doc-1", "project-1", "parent").
		AddParent("project-1", "org-1", "parent")
	s := graphService(g, Config{InheritanceEdgeTypes: []string{"parent"}})

	distances, err := s.ancestors(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"doc-1": 0, "project-1": 1, "org-1": 2}, distances)
}

// TestAncestorsDiamond tests that the shortest path wins when graphs converge
func TestAncestorsDiamond(t *testing.T) {
	g := NewStaticGraph().
		AddParent("doc-1", "team-a", "parent").
		AddParent("doc-1", "org-1", "parent").
		AddParent("team-a", "org-1", "parent")
	s := graphService(g, Config{InheritanceEdgeTypes: []string{"parent"}})

	distances, err := s.ancestors(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 1, distances["org-1"], "direct edge beats the longer path")
}

// TestAncestorsCycleTerminates tests that a cycle cannot hang the walk
func TestAncestorsCycleTerminates(t *testing.T) {
	g := NewStaticGraph().
		AddParent("a", "b", "parent").
		AddParent("b", "c", "parent").
		AddParent("c", "a", "parent")
	s := graphService(g, Config{InheritanceEdgeTypes: []string{"parent"}})

	distances, err := s.ancestors(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, distances)
}

// TestAncestorsDepthBound tests the traversal depth cap
func TestAncestorsDepthBound(t *testing.T) {
	g := NewStaticGraph()
	ids := []string{"n0", "n1", "n2", "n3", "n4", "n5"}
	for i := 0; i < len(ids)-1; i++ {
		g.AddParent(ids[i], ids[i+1], "parent")
	}
	s := graphService(g, Config{
		InheritanceEdgeTypes: []string{"parent"},
		MaxTraversalDepth:    3,
	})

	distances, err := s.ancestors(context.Background(), "n0")
	require.NoError(t, err)
	assert.Contains(t, distances, "n3")
	assert.NotContains(t, distances, "n4")
}

// TestAncestorsNoInheritanceConfigured tests that the walk is skipped when
// no edge types propagate permissions
func TestAncestorsNoInheritanceConfigured(t *testing.T) {
	g := NewStaticGraph().AddParent("doc-1", "org-1", "parent")
	s := graphService(g, Config{})

	distances, err := s.ancestors(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"doc-1": 0}, distances)
}
