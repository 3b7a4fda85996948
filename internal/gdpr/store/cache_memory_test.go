package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/requestcontext"
)

func TestInMemoryCache(t *testing.T) {
	cache := NewInMemoryCache()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithNow(context.Background(), start)
	id := domain.NewExportID()

	require.NoError(t, cache.Put(ctx, id, "sealed-bundle", time.Hour))

	got, err := cache.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "sealed-bundle", got)

	_, err = cache.Get(ctx, domain.NewExportID())
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))

	later := requestcontext.WithNow(ctx, start.Add(time.Hour))
	_, err = cache.Get(later, id)
	assert.True(t, errors.Is(err, sentinel.ErrNotFound), "expired at exactly the ttl")

	assert.Error(t, cache.Put(ctx, id, "x", 0))
}

func TestInMemoryCacheEvictsOnPut(t *testing.T) {
	cache := NewInMemoryCache()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithNow(context.Background(), start)

	require.NoError(t, cache.Put(ctx, domain.NewExportID(), "old", time.Minute))
	require.NoError(t, cache.Put(requestcontext.WithNow(ctx, start.Add(2*time.Minute)), domain.NewExportID(), "new", time.Minute))
	assert.Len(t, cache.entries, 1)
}
