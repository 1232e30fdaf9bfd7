package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// SystemRepository operates on raw documents for export and reset.
type SystemRepository struct {
	store kvstore.Store
}

// NewSystemRepository constructs the repository.
func NewSystemRepository(store kvstore.Store) *SystemRepository {
	return &SystemRepository{store: store}
}

// Snapshot returns the raw JSON of every listed key that exists.
func (r *SystemRepository) Snapshot(ctx context.Context, keys []string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		doc, err := r.store.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", key, err)
		}
		if !json.Valid(doc.Value) {
			out[key], _ = json.Marshal(string(doc.Value))
			continue
		}
		out[key] = json.RawMessage(doc.Value)
	}
	return out, nil
}

// Purge deletes every listed key.
func (r *SystemRepository) Purge(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := r.store.Delete(ctx, key, kvstore.AnyRevision); err != nil {
			return fmt.Errorf("purge %s: %w", key, err)
		}
	}
	return nil
}

// Empty reports whether none of keys exist.
func (r *SystemRepository) Empty(ctx context.Context, keys []string) (bool, error) {
	for _, key := range keys {
		_, err := r.store.Get(ctx, key)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, kvstore.ErrNotFound) {
			return false, err
		}
	}
	return true, nil
}

// Ping checks the backend.
func (r *SystemRepository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
