package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VR-web-shop/METEOR/storage"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()
	svc := storage.NewMemory()

	t.Run("UploadAndParseKey", func(t *testing.T) {
		url, err := svc.UploadFile(ctx, storage.File{Name: "foam.png", Data: []byte("png")})
		require.NoError(t, err)
		assert.Contains(t, url, "memory://")

		key, err := svc.ParseKey(url)
		require.NoError(t, err)
		data, ok := svc.Get(key)
		require.True(t, ok)
		assert.Equal(t, []byte("png"), data)
	})

	t.Run("Update", func(t *testing.T) {
		url, err := svc.UploadFile(ctx, storage.File{Name: "a.png", Data: []byte("v1")})
		require.NoError(t, err)
		key, err := svc.ParseKey(url)
		require.NoError(t, err)

		url2, err := svc.UpdateFile(ctx, key, storage.File{Name: "a.png", Data: []byte("v2")})
		require.NoError(t, err)
		assert.Equal(t, url, url2)

		data, _ := svc.Get(key)
		assert.Equal(t, []byte("v2"), data)
	})

	t.Run("DeleteUnknown", func(t *testing.T) {
		err := svc.DeleteFile(ctx, "nope")
		assert.ErrorIs(t, err, storage.ErrUnknownKey)
	})

	t.Run("ParseKeyForeignURL", func(t *testing.T) {
		_, err := svc.ParseKey("https://elsewhere/x.png")
		assert.Error(t, err)
	})
}

func TestDisk(t *testing.T) {
	ctx := context.Background()
	svc := storage.NewDisk(t.TempDir(), "https://cdn.test/")

	url, err := svc.UploadFile(ctx, storage.File{Name: "foam.png", Data: []byte("png")})
	require.NoError(t, err)

	key, err := svc.ParseKey(url)
	require.NoError(t, err)

	_, err = svc.UpdateFile(ctx, key, storage.File{Name: "foam.png", Data: []byte("v2")})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteFile(ctx, key))
	assert.ErrorIs(t, svc.DeleteFile(ctx, key), storage.ErrUnknownKey)
}

func TestDiskSanitizesKeys(t *testing.T) {
	svc := storage.NewDisk(t.TempDir(), "https://cdn.test/")
	url, err := svc.UploadFile(context.Background(), storage.File{Name: "../../escape.png", Data: []byte("x")})
	require.NoError(t, err)
	assert.NotContains(t, url, "..")
}
