package storage

import (
	"context"
	"testing"

	"github.com/Laisky/errors/v2"
	"github.com/stretchr/testify/require"

	"github.com/playletworks/drama-api/common"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ref, err := store.Put(ctx, "prod-1/storyboard/frame-0001.png", []byte("frame bytes"), "image/png")
	require.NoError(t, err)
	require.Equal(t, Ref("local://prod-1/storyboard/frame-0001.png"), ref)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []byte("frame bytes"), data)

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLocalStorePutOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Put(ctx, "k", []byte("one"), "text/plain")
	require.NoError(t, err)
	ref, err := store.Put(ctx, "k", []byte("two"), "text/plain")
	require.NoError(t, err)

	data, err := store.Get(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), data)
}

func TestLocalStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), Ref("local://nope"))
	require.True(t, errors.Is(err, common.ErrNotFound))
}

func TestLocalStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ref, err := store.Put(ctx, "k", []byte("x"), "text/plain")
	require.NoError(t, err)

	deleted, err := store.Delete(ctx, ref)
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.Delete(ctx, ref)
	require.NoError(t, err)
	require.False(t, deleted)

	ok, err := store.Exists(ctx, ref)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, key := range []string{"../escape", "..", "/etc/passwd", "a/../../b", "."} {
		_, err := store.Put(ctx, key, []byte("x"), "text/plain")
		require.True(t, errors.Is(err, common.ErrInvalidInput), "key %q", key)
	}

	_, err := store.Get(ctx, Ref("local://../escape"))
	require.True(t, errors.Is(err, common.ErrInvalidInput))
}

func TestValidRef(t *testing.T) {
	cases := map[string]bool{
		"local://prod-1/final.mp4":  true,
		"s3://bucket/key":           true,
		"s3://bucket/nested/key":    true,
		"local://":                  false,
		"s3://bucket":               false,
		"s3://bucket/":              false,
		"file://x":                  false,
		"":                          false,
		"prod-1/final.mp4":          false,
	}
	for ref, want := range cases {
		require.Equal(t, want, ValidRef(ref), "ref %q", ref)
	}
}
