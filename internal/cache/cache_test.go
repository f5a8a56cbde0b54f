package cache

import (
	"context"
	"testing"
	"time"

	"tegridy/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(nil) })
	return mr
}

type cachedThing struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestAside_MissThenHit(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	fetches := 0
	fetch := func(dest *cachedThing) func() error {
		return func() error {
			fetches++
			dest.Name = "kenny"
			dest.Count = 7
			return nil
		}
	}

	var first cachedThing
	require.NoError(t, Aside(ctx, "thing:1", &first, time.Minute, fetch(&first)))
	assert.Equal(t, 1, fetches)
	assert.Equal(t, "kenny", first.Name)

	var second cachedThing
	require.NoError(t, Aside(ctx, "thing:1", &second, time.Minute, fetch(&second)))
	assert.Equal(t, 1, fetches, "second read should be served from cache")
	assert.Equal(t, first, second)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	setupMiniredis(t)
	ctx := context.Background()

	var dest cachedThing
	err := Aside(ctx, "thing:2", &dest, time.Minute, func() error {
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	found, err := GetJSON(ctx, "thing:2", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAside_NilClientPassesThrough(t *testing.T) {
	SetClient(nil)
	ctx := context.Background()

	fetches := 0
	var dest cachedThing
	for i := 0; i < 2; i++ {
		require.NoError(t, Aside(ctx, "thing:3", &dest, time.Minute, func() error {
			fetches++
			return nil
		}))
	}
	assert.Equal(t, 2, fetches, "no cache means every read fetches")
}

func TestInvalidateCommentsPages(t *testing.T) {
	mr := setupMiniredis(t)
	ctx := context.Background()

	for _, sort := range []string{"top", "newest"} {
		require.NoError(t, SetJSON(ctx, CommentsPageKey(models.TargetEpisode, 12, sort), cachedThing{}, time.Minute))
	}
	InvalidateCommentsPages(ctx, models.TargetEpisode, 12)

	assert.False(t, mr.Exists(CommentsPageKey(models.TargetEpisode, 12, "top")))
	assert.False(t, mr.Exists(CommentsPageKey(models.TargetEpisode, 12, "newest")))
}
