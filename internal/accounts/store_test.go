package accounts

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestStore_SetAndGetIndex(t *testing.T) {
	store, mr := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetIndex(ctx, "Agent@Example.com", 2))

	got, err := store.Index(ctx, "agent@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, *got)

	v, err := mr.Get("account-index:agent@example.com")
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestStore_MissingIndexIsNil(t *testing.T) {
	store, _ := setupStore(t)

	got, err := store.Index(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ZeroIndexIsKept(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetIndex(ctx, "first@example.com", 0))
	got, err := store.Index(ctx, "first@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 0, *got)
}

func TestStore_Delete(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetIndex(ctx, "agent@example.com", 1))
	require.NoError(t, store.Delete(ctx, "agent@example.com"))

	got, err := store.Index(ctx, "agent@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Validation(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, store.SetIndex(ctx, "agent@example.com", -1), ErrInvalidIndex)
	assert.ErrorIs(t, store.SetIndex(ctx, "not-an-address", 1), ErrInvalidAddress)

	_, err := store.Index(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestStore_CorruptValue(t *testing.T) {
	store, mr := setupStore(t)
	require.NoError(t, mr.Set("account-index:agent@example.com", "abc"))

	_, err := store.Index(context.Background(), "agent@example.com")
	assert.Error(t, err)
}

func TestStore_Ping(t *testing.T) {
	store, _ := setupStore(t)
	assert.NoError(t, store.Ping(context.Background()))
}
