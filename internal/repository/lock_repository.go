package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// ErrStaleLock reports that the lock changed since it was read.
var ErrStaleLock = errors.New("repository: lock changed concurrently")

// LockRepository reads and writes the activeAdmin and activeTeacher
// documents. Every write is an explicit CAS; nothing is retried here.
type LockRepository struct {
	store kvstore.Store
}

// NewLockRepository constructs the repository.
func NewLockRepository(store kvstore.Store) *LockRepository {
	return &LockRepository{store: store}
}

// Get returns the lock and the revision it was read at. A missing lock is
// ErrNotFound.
func (r *LockRepository) Get(ctx context.Context, role models.UserRole) (*models.ActiveLock, int64, error) {
	doc, err := r.store.Get(ctx, LockKey(role))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load %s lock: %w", role, err)
	}
	var lock models.ActiveLock
	if err := json.Unmarshal(doc.Value, &lock); err != nil {
		return nil, 0, fmt.Errorf("decode %s lock: %w", role, err)
	}
	return &lock, doc.Revision, nil
}

// Claim writes lock only if no lock document exists.
func (r *LockRepository) Claim(ctx context.Context, role models.UserRole, lock models.ActiveLock) error {
	return r.put(ctx, role, lock, 0)
}

// Replace overwrites the lock read at rev.
func (r *LockRepository) Replace(ctx context.Context, role models.UserRole, lock models.ActiveLock, rev int64) error {
	return r.put(ctx, role, lock, rev)
}

// Clear removes the lock read at rev.
func (r *LockRepository) Clear(ctx context.Context, role models.UserRole, rev int64) error {
	if err := r.store.Delete(ctx, LockKey(role), rev); err != nil {
		if errors.Is(err, kvstore.ErrRevisionMismatch) {
			return ErrStaleLock
		}
		return fmt.Errorf("clear %s lock: %w", role, err)
	}
	return nil
}

func (r *LockRepository) put(ctx context.Context, role models.UserRole, lock models.ActiveLock, rev int64) error {
	payload, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("encode %s lock: %w", role, err)
	}
	if _, err := r.store.Put(ctx, LockKey(role), payload, rev); err != nil {
		if errors.Is(err, kvstore.ErrRevisionMismatch) {
			return ErrStaleLock
		}
		return fmt.Errorf("store %s lock: %w", role, err)
	}
	return nil
}
