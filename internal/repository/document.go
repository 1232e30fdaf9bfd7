package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

var (
	// ErrNotFound reports a missing record inside a collection.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicate reports a uniqueness violation.
	ErrDuplicate = errors.New("repository: duplicate record")
	// ErrConflict reports that optimistic retries were exhausted.
	ErrConflict = errors.New("repository: concurrent update retries exhausted")
	// ErrNoChange aborts a mutation without writing.
	ErrNoChange = errors.New("repository: no change")
)

// DefaultMaxRetries bounds CAS retries when no value is configured.
const DefaultMaxRetries = 5

// document binds one store key to a JSON value of type T. A missing key
// loads as zero().
type document[T any] struct {
	store   kvstore.Store
	key     string
	retries int
	zero    func() T
}

func newDocument[T any](store kvstore.Store, key string, retries int, zero func() T) *document[T] {
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	return &document[T]{store: store, key: key, retries: retries, zero: zero}
}

func (d *document[T]) load(ctx context.Context) (T, int64, error) {
	value := d.zero()
	doc, err := d.store.Get(ctx, d.key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return value, 0, nil
	}
	if err != nil {
		return value, 0, fmt.Errorf("load %s: %w", d.key, err)
	}
	if len(doc.Value) > 0 && string(doc.Value) != "null" {
		if err := json.Unmarshal(doc.Value, &value); err != nil {
			return d.zero(), 0, fmt.Errorf("decode %s: %w", d.key, err)
		}
	}
	return value, doc.Revision, nil
}

// mutate applies fn to a fresh copy and writes it back with a CAS on the
// revision read. On a revision mismatch the whole read-modify-write is
// retried, so fn must not keep state across calls. Returning ErrNoChange
// from fn skips the write.
func (d *document[T]) mutate(ctx context.Context, fn func(*T) error) (T, error) {
	for attempt := 0; attempt <= d.retries; attempt++ {
		value, rev, err := d.load(ctx)
		if err != nil {
			return value, err
		}
		if err := fn(&value); err != nil {
			if errors.Is(err, ErrNoChange) {
				return value, nil
			}
			return value, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return value, fmt.Errorf("encode %s: %w", d.key, err)
		}
		if _, err := d.store.Put(ctx, d.key, payload, rev); err != nil {
			if errors.Is(err, kvstore.ErrRevisionMismatch) {
				continue
			}
			return value, fmt.Errorf("store %s: %w", d.key, err)
		}
		return value, nil
	}
	return d.zero(), fmt.Errorf("%s: %w", d.key, ErrConflict)
}

// replace overwrites the document unconditionally.
func (d *document[T]) replace(ctx context.Context, value T) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.key, err)
	}
	if _, err := d.store.Put(ctx, d.key, payload, kvstore.AnyRevision); err != nil {
		return fmt.Errorf("store %s: %w", d.key, err)
	}
	return nil
}
