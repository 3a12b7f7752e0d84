package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestLocalPutGetRoundTrip(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	key := "users/u-1/files/f-1.txt"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("payload"), 7, "text/plain"))

	rc, info, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int64(7), info.Size)
}

func TestLocalPutIsIdempotentOverwrite(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	key := "users/u-1/files/f-1.bin"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("same bytes"), 10, ""))
	require.NoError(t, store.Put(ctx, key, strings.NewReader("same bytes"), 10, ""))

	info, err := store.Stat(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
}

func TestLocalMissingKey(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	_, _, err := store.Get(ctx, "users/u-1/files/ghost")
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = store.Stat(ctx, "users/u-1/files/ghost")
	assert.True(t, errors.Is(err, ErrNotExist))

	exists, err := store.Exists(ctx, "users/u-1/files/ghost")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalDeleteTolerant(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()
	key := "users/u-1/files/f-2"

	require.NoError(t, store.Put(ctx, key, strings.NewReader("x"), 1, ""))
	require.NoError(t, store.Delete(ctx, key))
	require.NoError(t, store.Delete(ctx, key))

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	store := newLocalStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "/abs/path", "../outside", "a/../../outside"} {
		err := store.Put(ctx, key, strings.NewReader("x"), 1, "")
		assert.Error(t, err, "key %q", key)
	}
}

func TestLocalPublicURLUnsupported(t *testing.T) {
	store := newLocalStore(t)
	_, err := store.PublicURL(context.Background(), "users/u/files/f", time.Minute)
	assert.True(t, errors.Is(err, ErrNoPublicURL))
}
