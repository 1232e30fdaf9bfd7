package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

func TestLockRepositoryClaimIsCreateOnly(t *testing.T) {
	repo := NewLockRepository(kvstore.NewMemoryStore())
	ctx := context.Background()

	_, _, err := repo.Get(ctx, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Claim(ctx, models.RoleAdmin, models.ActiveLock{ID: "3", Username: "mike", SetAt: 1}))
	assert.ErrorIs(t, repo.Claim(ctx, models.RoleAdmin, models.ActiveLock{ID: "9", Username: "jane"}), ErrStaleLock)

	lock, rev, err := repo.Get(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "mike", lock.Username)

	_, _, err = repo.Get(ctx, models.RoleTeacher)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Replace(ctx, models.RoleAdmin, models.ActiveLock{ID: "9", Username: "jane"}, rev))
	assert.ErrorIs(t, repo.Clear(ctx, models.RoleAdmin, rev), ErrStaleLock)

	_, rev, err = repo.Get(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, repo.Clear(ctx, models.RoleAdmin, rev))

	_, _, err = repo.Get(ctx, models.RoleAdmin)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLockRepositoryReplaceAfterReclaimIsStale(t *testing.T) {
	repo := NewLockRepository(kvstore.NewMemoryStore())
	ctx := context.Background()

	require.NoError(t, repo.Claim(ctx, models.RoleAdmin, models.ActiveLock{ID: "3", Username: "mike"}))
	_, staleRev, err := repo.Get(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, repo.Clear(ctx, models.RoleAdmin, staleRev))
	require.NoError(t, repo.Claim(ctx, models.RoleAdmin, models.ActiveLock{ID: "9", Username: "jane"}))

	err = repo.Replace(ctx, models.RoleAdmin, models.ActiveLock{ID: "5", Username: "bob"}, staleRev)
	assert.ErrorIs(t, err, ErrStaleLock)

	lock, _, err := repo.Get(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, "jane", lock.Username)
}
