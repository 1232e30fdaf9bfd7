package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
)

type cachedDashboard struct {
	TotalStudents int `json:"totalStudents"`
}

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, "edumatrix:cache:"), mr
}

func TestCacheRepositorySetGetExpire(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	var got cachedDashboard
	assert.ErrorIs(t, repo.Get(ctx, "dashboard:admin", &got), appErrors.ErrCacheMiss)

	require.NoError(t, repo.Set(ctx, "dashboard:admin", cachedDashboard{TotalStudents: 4}, time.Minute))
	assert.True(t, mr.Exists("edumatrix:cache:dashboard:admin"))
	require.NoError(t, repo.Get(ctx, "dashboard:admin", &got))
	assert.Equal(t, 4, got.TotalStudents)

	mr.FastForward(2 * time.Minute)
	assert.ErrorIs(t, repo.Get(ctx, "dashboard:admin", &got), appErrors.ErrCacheMiss)
}

func TestCacheRepositoryDeleteByPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Set(ctx, "dashboard:admin", cachedDashboard{}, time.Minute))
	require.NoError(t, repo.Set(ctx, "dashboard:teacher:sarah", cachedDashboard{}, time.Minute))
	require.NoError(t, mr.Set("other:key", "keep"))

	removed, err := repo.DeleteByPattern(ctx, "dashboard:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.True(t, mr.Exists("other:key"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, "")
	ctx := context.Background()

	var got cachedDashboard
	assert.ErrorIs(t, repo.Get(ctx, "k", &got), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(ctx, "k", got, time.Second))
	removed, err := repo.DeleteByPattern(ctx, "*")
	assert.NoError(t, err)
	assert.Zero(t, removed)
}
