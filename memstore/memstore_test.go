package memstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/graph"
	"github.com/VR-web-shop/METEOR/memstore"
)

// shopStores wires the Material/Texture corner of the VR shop.
func shopStores(t *testing.T) (materials, textures, images *memstore.Store) {
	t.Helper()
	materials = memstore.New("Material", "uuid")
	textures = memstore.New("Texture", "uuid")
	images = memstore.New("Image", "uuid")
	require.NoError(t, textures.Relate("Images", images, "uuid", "texture_uuid", true))
	require.NoError(t, materials.Relate("Texture", textures, "uuid", "material_uuid", false))
	return materials, textures, images
}

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	materials, _, _ := shopStores(t)

	row, err := materials.Create(ctx, meteor.Record{"name": "Foam"})
	require.NoError(t, err)
	assert.NotEmpty(t, row["uuid"], "missing key gets a generated uuid")

	found, err := materials.FindOne(ctx, meteor.Query{Where: map[string]any{"uuid": row["uuid"]}})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Foam", found["name"])

	missing, err := materials.FindOne(ctx, meteor.Query{Where: map[string]any{"uuid": "nope"}})
	require.NoError(t, err)
	assert.Nil(t, missing, "a missing row is nil, nil")
}

func TestFindAllFilters(t *testing.T) {
	ctx := context.Background()
	materials, _, _ := shopStores(t)
	materials.Seed(
		meteor.Record{"uuid": "m1", "name": "Foam", "type": "soft"},
		meteor.Record{"uuid": "m2", "name": "Steel", "type": "hard"},
		meteor.Record{"uuid": "m3", "name": "Foam Rubber", "type": "soft"},
	)

	t.Run("Where", func(t *testing.T) {
		rows, err := materials.FindAll(ctx, meteor.Query{Where: map[string]any{"type": "soft"}})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("Search", func(t *testing.T) {
		rows, err := materials.FindAll(ctx, meteor.Query{Search: &meteor.Search{Fields: []string{"name"}, Term: "foam"}})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("SearchAndWhereMerge", func(t *testing.T) {
		rows, err := materials.FindAll(ctx, meteor.Query{
			Where:  map[string]any{"type": "soft"},
			Search: &meteor.Search{Fields: []string{"name"}, Term: "rubber"},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "m3", rows[0]["uuid"])
	})

	t.Run("LimitOffset", func(t *testing.T) {
		rows, err := materials.FindAll(ctx, meteor.Query{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rows, 1)

		rows, err = materials.FindAll(ctx, meteor.Query{Limit: 2, Offset: 10})
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestInclude(t *testing.T) {
	ctx := context.Background()
	materials, textures, images := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam"})
	textures.Seed(meteor.Record{"uuid": "t1", "material_uuid": "m1", "name": "rough"})
	images.Seed(
		meteor.Record{"uuid": "i1", "texture_uuid": "t1"},
		meteor.Record{"uuid": "i2", "texture_uuid": "t1"},
	)

	node := &graph.Node{Alias: "Texture", Target: "Texture", Children: []*graph.Node{
		{Alias: "Images", Target: "Image"},
	}}
	row, err := materials.FindOne(ctx, meteor.Query{
		Where:   map[string]any{"uuid": "m1"},
		Include: []*graph.Node{node},
	})
	require.NoError(t, err)
	require.NotNil(t, row)

	texture, ok := row["Texture"].(meteor.Record)
	require.True(t, ok, "single association attaches one record")
	assert.Equal(t, "rough", texture["name"])

	nested, ok := texture["Images"].([]meteor.Record)
	require.True(t, ok, "list association attaches a slice")
	assert.Len(t, nested, 2)
}

func TestUpdateDestroy(t *testing.T) {
	ctx := context.Background()
	materials, _, _ := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam"})

	row, err := materials.Update(ctx, "m1", "uuid", meteor.Record{"name": "Steel"})
	require.NoError(t, err)
	assert.Equal(t, "Steel", row["name"])

	_, err = materials.Update(ctx, "nope", "uuid", meteor.Record{"name": "x"})
	assert.True(t, meteor.IsNotFound(err))

	require.NoError(t, materials.Destroy(ctx, "m1", "uuid"))
	assert.True(t, meteor.IsNotFound(materials.Destroy(ctx, "m1", "uuid")))

	n, err := materials.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAssociationsGraph(t *testing.T) {
	materials, _, _ := shopStores(t)
	g := materials.Associations()
	a, ok := g.Lookup("Texture")
	require.True(t, ok)
	assert.Equal(t, "Texture", a.Target)
	_, ok = a.Graph.Lookup("Images")
	assert.True(t, ok, "child scope follows the related store's graph")
}
