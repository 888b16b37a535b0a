package graph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VR-web-shop/METEOR/graph"
)

func TestGraphLookup(t *testing.T) {
	g := graph.New(
		&graph.Association{Alias: "Texture", Target: "Texture", Graph: graph.New(
			&graph.Association{Alias: "TextureType", Target: "TextureType"},
			&graph.Association{Alias: "Images", Target: "Image"},
		)},
		&graph.Association{Alias: "MaterialType", Target: "MaterialType"},
	)

	t.Run("Found", func(t *testing.T) {
		a, ok := g.Lookup("Texture")
		require.True(t, ok)
		assert.Equal(t, "Texture", a.Target)
		assert.Equal(t, 2, a.Graph.Len())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, ok := g.Lookup("Unknown")
		assert.False(t, ok)
	})

	t.Run("NestedScope", func(t *testing.T) {
		a, _ := g.Lookup("Texture")
		child, ok := a.Graph.Lookup("Images")
		require.True(t, ok)
		assert.Equal(t, "Image", child.Target)

		// Nested aliases are not visible at the root scope.
		_, ok = g.Lookup("Images")
		assert.False(t, ok)
	})

	t.Run("NilReceiver", func(t *testing.T) {
		var nilGraph *graph.Graph
		_, ok := nilGraph.Lookup("Texture")
		assert.False(t, ok)
		assert.Nil(t, nilGraph.Aliases())
		assert.Equal(t, 0, nilGraph.Len())
	})
}

func TestGraphAdd(t *testing.T) {
	t.Run("DuplicateAlias", func(t *testing.T) {
		g := &graph.Graph{}
		require.NoError(t, g.Add(&graph.Association{Alias: "Texture", Target: "Texture"}))
		err := g.Add(&graph.Association{Alias: "Texture", Target: "Other"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate association alias")
	})

	t.Run("EmptyAlias", func(t *testing.T) {
		g := &graph.Graph{}
		assert.Error(t, g.Add(&graph.Association{Target: "Texture"}))
	})

	t.Run("NilChildGraph", func(t *testing.T) {
		g := &graph.Graph{}
		a := &graph.Association{Alias: "Texture", Target: "Texture"}
		require.NoError(t, g.Add(a))
		assert.NotNil(t, a.Graph)
	})

	t.Run("NewPanicsOnDuplicate", func(t *testing.T) {
		assert.Panics(t, func() {
			graph.New(
				&graph.Association{Alias: "A", Target: "A"},
				&graph.Association{Alias: "A", Target: "B"},
			)
		})
	})
}

func TestAliases(t *testing.T) {
	g := graph.New(
		&graph.Association{Alias: "Texture", Target: "Texture"},
		&graph.Association{Alias: "MaterialType", Target: "MaterialType"},
	)
	assert.Equal(t, []string{"Texture", "MaterialType"}, g.Aliases())
}

func TestNewNode(t *testing.T) {
	a := &graph.Association{Alias: "Texture", Target: "Texture"}
	child := &graph.Node{Alias: "Images", Target: "Image"}
	n := graph.NewNode(a, child)
	assert.Equal(t, "Texture", n.Alias)
	assert.Equal(t, "Texture", n.Target)
	require.Len(t, n.Children, 1)
	assert.Equal(t, "Images", n.Children[0].Alias)
}
