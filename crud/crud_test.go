package crud_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	meteor "github.com/VR-web-shop/METEOR"
	"github.com/VR-web-shop/METEOR/crud"
	"github.com/VR-web-shop/METEOR/memstore"
	"github.com/VR-web-shop/METEOR/storage"
)

func shopStores(t *testing.T) (materials, textures *memstore.Store) {
	t.Helper()
	materials = memstore.New("Material", "uuid")
	textures = memstore.New("Texture", "uuid")
	images := memstore.New("Image", "uuid")
	require.NoError(t, textures.Relate("Images", images, "uuid", "texture_uuid", true))
	require.NoError(t, materials.Relate("Texture", textures, "uuid", "material_uuid", false))
	return materials, textures
}

func TestPresence(t *testing.T) {
	materials, _ := shopStores(t)

	t.Run("AbsentOptionsMeanAbsentOperations", func(t *testing.T) {
		set, err := crud.New(materials, "uuid", crud.Options{Find: &crud.FindOptions{}})
		require.NoError(t, err)
		assert.NotNil(t, set.Find)
		assert.Nil(t, set.FindAll)
		assert.Nil(t, set.Create)
		assert.Nil(t, set.Update)
		assert.Nil(t, set.Destroy)
	})

	t.Run("CreateRequiresProperties", func(t *testing.T) {
		_, err := crud.New(materials, "uuid", crud.Options{Create: &crud.CreateOptions{}})
		assert.Error(t, err)
	})

	t.Run("RequiredMustBeUpdatable", func(t *testing.T) {
		_, err := crud.New(materials, "uuid", crud.Options{Update: &crud.UpdateOptions{
			Properties:         []string{"name"},
			RequiredProperties: []string{"uuid"},
		}})
		assert.Error(t, err)
	})

	t.Run("KeyFieldRequired", func(t *testing.T) {
		_, err := crud.New(materials, "", crud.Options{Delete: true})
		assert.Error(t, err)
	})
}

// TestMaterialLifecycle is the end-to-end scenario: an entity configured
// with find, findAll, create and delete going through one full cycle.
func TestMaterialLifecycle(t *testing.T) {
	ctx := context.Background()
	materials, _ := shopStores(t)
	set, err := crud.New(materials, "uuid", crud.Options{
		Find:    &crud.FindOptions{},
		FindAll: &crud.FindAllOptions{DefaultLimit: 10},
		Create:  &crud.CreateOptions{Properties: []string{"name"}},
		Delete:  true,
	})
	require.NoError(t, err)

	created, err := set.Create(ctx, meteor.Record{"name": "Foam"}, "", nil)
	require.NoError(t, err)
	key := created["uuid"]
	require.NotEmpty(t, key)

	found, err := set.Find(ctx, key, "")
	require.NoError(t, err)
	assert.Equal(t, "Foam", found["name"])

	page, err := set.FindAll(ctx, crud.FindAllParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Count)
	assert.Equal(t, 1, page.Pages)
	require.Len(t, page.Rows, 1)

	require.NoError(t, set.Destroy(ctx, key))

	_, err = set.Find(ctx, key, "")
	assert.True(t, meteor.IsNotFound(err))
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	materials, textures := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam"})
	textures.Seed(meteor.Record{"uuid": "t1", "material_uuid": "m1", "name": "rough"})

	set, err := crud.New(materials, "uuid", crud.Options{Find: &crud.FindOptions{}})
	require.NoError(t, err)

	t.Run("MissingKey", func(t *testing.T) {
		_, err := set.Find(ctx, "", "")
		assert.True(t, meteor.IsMissingParameter(err))
		_, err = set.Find(ctx, nil, "")
		assert.True(t, meteor.IsMissingParameter(err))
	})

	t.Run("Include", func(t *testing.T) {
		row, err := set.Find(ctx, "m1", "Texture")
		require.NoError(t, err)
		texture, ok := row["Texture"].(meteor.Record)
		require.True(t, ok)
		assert.Equal(t, "rough", texture["name"])
	})

	t.Run("InvalidInclude", func(t *testing.T) {
		_, err := set.Find(ctx, "m1", "Shader")
		require.Error(t, err)
		var ie *meteor.InvalidAssociationError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, []string{"Texture"}, ie.Valid())
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := set.Find(ctx, "nope", "")
		assert.True(t, meteor.IsNotFound(err))
	})
}

func TestFindAll(t *testing.T) {
	ctx := context.Background()
	materials, _ := shopStores(t)
	for _, name := range []string{"Foam", "Steel", "Wood", "Glass", "Rubber", "Cork", "Wool", "Denim", "Velvet", "Silk", "Linen", "Hemp"} {
		materials.Seed(meteor.Record{"uuid": strings.ToLower(name), "name": name, "type": "fabric"})
	}

	set, err := crud.New(materials, "uuid", crud.Options{FindAll: &crud.FindAllOptions{
		SearchProperties: []string{"name"},
		WhereProperties:  []string{"type", "name"},
		DefaultLimit:     10,
	}})
	require.NoError(t, err)

	t.Run("Pagination", func(t *testing.T) {
		page, err := set.FindAll(ctx, crud.FindAllParams{Limit: 5, Page: 1})
		require.NoError(t, err)
		assert.Equal(t, 12, page.Count)
		assert.Equal(t, 3, page.Pages) // ceil(12/5)
		assert.LessOrEqual(t, len(page.Rows), 5)

		last, err := set.FindAll(ctx, crud.FindAllParams{Limit: 5, Page: 3})
		require.NoError(t, err)
		assert.Len(t, last.Rows, 2)
	})

	t.Run("PageBelowOneFallsBack", func(t *testing.T) {
		byDefault, err := set.FindAll(ctx, crud.FindAllParams{Limit: 5})
		require.NoError(t, err)
		for _, page := range []int{0, -3} {
			got, err := set.FindAll(ctx, crud.FindAllParams{Limit: 5, Page: page})
			require.NoError(t, err)
			assert.Equal(t, byDefault.Rows, got.Rows)
		}
	})

	t.Run("DefaultLimit", func(t *testing.T) {
		page, err := set.FindAll(ctx, crud.FindAllParams{})
		require.NoError(t, err)
		assert.Len(t, page.Rows, 10)
	})

	t.Run("Search", func(t *testing.T) {
		page, err := set.FindAll(ctx, crud.FindAllParams{Q: "oo"})
		require.NoError(t, err)
		require.Len(t, page.Rows, 2) // Wood, Wool
	})

	t.Run("WhereWhitelist", func(t *testing.T) {
		_, err := set.FindAll(ctx, crud.FindAllParams{Where: map[string]any{"secret": "x"}})
		require.Error(t, err)
		var ie *meteor.InvalidFilterError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, "secret", ie.Field())
		assert.Equal(t, []string{"type", "name"}, ie.Valid())
	})

	t.Run("WhereMergesWithSearch", func(t *testing.T) {
		page, err := set.FindAll(ctx, crud.FindAllParams{Q: "oo", Where: map[string]any{"name": "Wood"}})
		require.NoError(t, err)
		require.Len(t, page.Rows, 1)
		assert.Equal(t, "Wood", page.Rows[0]["name"])
	})

	// The count query is independent of where/q: a filtered listing still
	// reports the whole table. This mirrors the original contract on
	// purpose; do not "fix" the pagination math here.
	t.Run("CountIsUnfiltered", func(t *testing.T) {
		page, err := set.FindAll(ctx, crud.FindAllParams{Limit: 5, Where: map[string]any{"name": "Wood"}})
		require.NoError(t, err)
		require.Len(t, page.Rows, 1)
		assert.Equal(t, 12, page.Count)
		assert.Equal(t, 3, page.Pages)
	})

	t.Run("SearchNotConfigured", func(t *testing.T) {
		bare, err := crud.New(materials, "uuid", crud.Options{FindAll: &crud.FindAllOptions{}})
		require.NoError(t, err)
		_, err = bare.FindAll(ctx, crud.FindAllParams{Q: "foam"})
		assert.True(t, meteor.IsSearchNotConfigured(err))
	})
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("MissingRequiredProperty", func(t *testing.T) {
		materials, _ := shopStores(t)
		set, err := crud.New(materials, "uuid", crud.Options{
			Create: &crud.CreateOptions{Properties: []string{"name", "type"}},
		})
		require.NoError(t, err)

		_, err = set.Create(ctx, meteor.Record{"name": "Foam"}, "", nil)
		var me *meteor.MissingParameterError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, "type", me.Param())

		// The failure happens before any persistence call.
		n, err := materials.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("UnknownKeysDropped", func(t *testing.T) {
		materials, _ := shopStores(t)
		set, err := crud.New(materials, "uuid", crud.Options{
			Find:   &crud.FindOptions{},
			Create: &crud.CreateOptions{Properties: []string{"name"}},
		})
		require.NoError(t, err)

		created, err := set.Create(ctx, meteor.Record{"name": "Foam", "admin": true}, "", nil)
		require.NoError(t, err)
		_, ok := created["admin"]
		assert.False(t, ok)
	})

	t.Run("ResponseInclude", func(t *testing.T) {
		materials, textures := shopStores(t)
		set, err := crud.New(materials, "uuid", crud.Options{
			Create: &crud.CreateOptions{Properties: []string{"name", "uuid"}},
		})
		require.NoError(t, err)

		// The texture points at the key the new material will carry, so
		// the post-create re-fetch can attach it.
		textures.Seed(meteor.Record{"uuid": "t1", "material_uuid": "m1", "name": "rough"})

		created, err := set.Create(ctx, meteor.Record{"uuid": "m1", "name": "Foam"}, "Texture", nil)
		require.NoError(t, err)
		texture, ok := created["Texture"].(meteor.Record)
		require.True(t, ok)
		assert.Equal(t, "rough", texture["name"])
	})

	t.Run("InvalidResponseInclude", func(t *testing.T) {
		materials, _ := shopStores(t)
		set, err := crud.New(materials, "uuid", crud.Options{
			Create: &crud.CreateOptions{Properties: []string{"name"}},
		})
		require.NoError(t, err)
		_, err = set.Create(ctx, meteor.Record{"name": "Foam"}, "Shader", nil)
		assert.True(t, meteor.IsInvalidAssociation(err))
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	materials, _ := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam", "type": "soft"})

	set, err := crud.New(materials, "uuid", crud.Options{
		Find: &crud.FindOptions{},
		Update: &crud.UpdateOptions{
			Properties:         []string{"name", "type"},
			RequiredProperties: []string{"name"},
		},
	})
	require.NoError(t, err)

	t.Run("MissingRequiredField", func(t *testing.T) {
		_, err := set.Update(ctx, "m1", meteor.Record{"type": "hard"}, "", nil)
		var mf *meteor.MissingFieldError
		require.ErrorAs(t, err, &mf)
		assert.Equal(t, "name", mf.Field())
	})

	t.Run("NotFoundBeforeMutation", func(t *testing.T) {
		_, err := set.Update(ctx, "nope", meteor.Record{"name": "Steel"}, "", nil)
		assert.True(t, meteor.IsNotFound(err))

		row, err := set.Find(ctx, "m1", "")
		require.NoError(t, err)
		assert.Equal(t, "Foam", row["name"], "failed update must not mutate")
	})

	t.Run("Whitelist", func(t *testing.T) {
		row, err := set.Update(ctx, "m1", meteor.Record{"name": "Steel", "admin": true}, "", nil)
		require.NoError(t, err)
		assert.Equal(t, "Steel", row["name"])
		_, ok := row["admin"]
		assert.False(t, ok)
	})
}

func TestDTOProjection(t *testing.T) {
	ctx := context.Background()
	materials, _ := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam", "secret": "x"})

	set, err := crud.New(materials, "uuid", crud.Options{
		Find:    &crud.FindOptions{DTO: []string{"uuid", "name", "phantom"}},
		FindAll: &crud.FindAllOptions{DTO: []string{"name"}},
	})
	require.NoError(t, err)

	row, err := set.Find(ctx, "m1", "")
	require.NoError(t, err)
	assert.Equal(t, meteor.Record{"uuid": "m1", "name": "Foam"}, row)
	_, ok := row["phantom"]
	assert.False(t, ok, "fields absent on the source stay absent")

	page, err := set.FindAll(ctx, crud.FindAllParams{})
	require.NoError(t, err)
	require.Len(t, page.Rows, 1)
	assert.Equal(t, meteor.Record{"name": "Foam"}, page.Rows[0])
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	newSet := func(t *testing.T) (*crud.OperationSet, *memstore.Store, *storage.Memory) {
		materials, _ := shopStores(t)
		svc := storage.NewMemory()
		set, err := crud.New(materials, "uuid", crud.Options{
			Find:   &crud.FindOptions{},
			Create: &crud.CreateOptions{Properties: []string{"name"}},
			Update: &crud.UpdateOptions{Properties: []string{"name"}},
			Delete: true,
			Upload: &crud.UploadOptions{Fields: []string{"image_url", "thumb_url"}, Service: svc},
		})
		require.NoError(t, err)
		return set, materials, svc
	}

	t.Run("CreateStoresAndMerges", func(t *testing.T) {
		set, _, svc := newSet(t)
		created, err := set.Create(ctx, meteor.Record{"name": "Foam"}, "", []storage.File{
			{Name: "foam.png", Data: []byte("png")},
		})
		require.NoError(t, err)
		url, _ := created["image_url"].(string)
		require.NotEmpty(t, url)
		key, err := svc.ParseKey(url)
		require.NoError(t, err)
		_, ok := svc.Get(key)
		assert.True(t, ok)
	})

	t.Run("UpdateReplacesExisting", func(t *testing.T) {
		set, _, svc := newSet(t)
		created, err := set.Create(ctx, meteor.Record{"name": "Foam"}, "", []storage.File{
			{Name: "foam.png", Data: []byte("v1")},
		})
		require.NoError(t, err)

		updated, err := set.Update(ctx, created["uuid"], meteor.Record{"name": "Foam"}, "", []storage.File{
			{Name: "foam.png", Data: []byte("v2")},
		})
		require.NoError(t, err)
		assert.Equal(t, created["image_url"], updated["image_url"], "existing URL keys the replacement")
		assert.Equal(t, 1, svc.Len())

		key, err := svc.ParseKey(updated["image_url"].(string))
		require.NoError(t, err)
		data, _ := svc.Get(key)
		assert.Equal(t, []byte("v2"), data)
	})

	// Deletions are sequential in configured field order and each one is
	// best-effort: a broken first field must not stop the second.
	t.Run("DestroyDeletesBestEffort", func(t *testing.T) {
		set, materials, svc := newSet(t)
		created, err := set.Create(ctx, meteor.Record{"name": "Foam"}, "", []storage.File{
			{Name: "a.png", Data: []byte("a")},
			{Name: "b.png", Data: []byte("b")},
		})
		require.NoError(t, err)
		require.Equal(t, 2, svc.Len())

		// Corrupt the first field's URL so its deletion fails.
		_, err = materials.Update(ctx, created["uuid"], "uuid", meteor.Record{"image_url": "https://elsewhere/x.png"})
		require.NoError(t, err)

		require.NoError(t, set.Destroy(ctx, created["uuid"]))
		assert.Equal(t, 1, svc.Len(), "second field deleted despite first failing")
	})

	t.Run("FilesWithoutUploadConfig", func(t *testing.T) {
		materials, _ := shopStores(t)
		set, err := crud.New(materials, "uuid", crud.Options{
			Create: &crud.CreateOptions{Properties: []string{"name"}},
		})
		require.NoError(t, err)
		_, err = set.Create(ctx, meteor.Record{"name": "Foam"}, "", []storage.File{{Name: "x"}})
		assert.True(t, meteor.IsUploadNotConfigured(err))
	})
}

// memoryCache is a minimal meteor.Cache for the caching tests.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[key], nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	c.sets++
	return nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memoryCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func TestFindAllCache(t *testing.T) {
	ctx := context.Background()
	materials, _ := shopStores(t)
	materials.Seed(meteor.Record{"uuid": "m1", "name": "Foam"})

	cache := newMemoryCache()
	cachedSet, err := crud.New(materials, "uuid", crud.Options{
		FindAll: &crud.FindAllOptions{},
		Create:  &crud.CreateOptions{Properties: []string{"name"}},
		Cache:   cache,
	})
	require.NoError(t, err)

	first, err := cachedSet.FindAll(ctx, crud.FindAllParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	second, err := cachedSet.FindAll(ctx, crud.FindAllParams{})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, cache.sets, "second read served from cache")

	// A mutation invalidates the entity's pages.
	_, err = cachedSet.Create(ctx, meteor.Record{"name": "Steel"}, "", nil)
	require.NoError(t, err)

	third, err := cachedSet.FindAll(ctx, crud.FindAllParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Count)
	assert.Equal(t, 2, cache.sets)
}
