// Package kvstore holds JSON documents under string keys. Every successful
// write takes the next value of one store-wide revision counter, so a key
// that is deleted and created again never reuses a revision. Writes are
// compare-and-swap on that revision.
package kvstore

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AnyRevision disables the revision check on Put and Delete.
const AnyRevision int64 = -1

var (
	// ErrNotFound reports a key with no stored document.
	ErrNotFound = errors.New("kvstore: document not found")
	// ErrRevisionMismatch reports a CAS write whose expected revision is stale.
	ErrRevisionMismatch = errors.New("kvstore: revision mismatch")
)

// Document is a stored value and the revision it was read at.
type Document struct {
	Key       string
	Value     []byte
	Revision  int64
	UpdatedAt time.Time
}

// Store is implemented by every backend.
//
// Put writes value when the stored revision equals expected. An expected
// revision of 0 means the key must not exist yet. The new revision is
// returned. Delete follows the same rule; deleting a missing key with
// AnyRevision is not an error.
type Store interface {
	Get(ctx context.Context, key string) (*Document, error)
	Put(ctx context.Context, key string, value []byte, expected int64) (int64, error)
	Delete(ctx context.Context, key string, expected int64) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

func checkRevision(current, expected int64) error {
	if expected == AnyRevision || current == expected {
		return nil
	}
	return ErrRevisionMismatch
}

// Namespaced prefixes every key so several deployments can share a backend.
func Namespaced(s Store, namespace string) Store {
	if namespace == "" {
		return s
	}
	return &namespaced{inner: s, ns: namespace}
}

type namespaced struct {
	inner Store
	ns    string
}

func (n *namespaced) Get(ctx context.Context, key string) (*Document, error) {
	doc, err := n.inner.Get(ctx, n.ns+key)
	if err != nil {
		return nil, err
	}
	doc.Key = key
	return doc, nil
}

func (n *namespaced) Put(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	return n.inner.Put(ctx, n.ns+key, value, expected)
}

func (n *namespaced) Delete(ctx context.Context, key string, expected int64) error {
	return n.inner.Delete(ctx, n.ns+key, expected)
}

func (n *namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Keys(ctx, n.ns+prefix)
	if err != nil {
		return nil, err
	}
	for i, key := range keys {
		keys[i] = strings.TrimPrefix(key, n.ns)
	}
	return keys, nil
}

func (n *namespaced) Ping(ctx context.Context) error { return n.inner.Ping(ctx) }
func (n *namespaced) Close() error                   { return n.inner.Close() }

// Recorder receives one observation per store call.
type Recorder interface {
	ObserveStoreOperation(op string, duration time.Duration, err error)
}

// ChangeFunc is called after a successful Put or Delete.
type ChangeFunc func(ctx context.Context, key string)

// Instrument wraps s so every call is timed and every committed write is
// reported to onChange. Either argument may be nil.
func Instrument(s Store, rec Recorder, onChange ChangeFunc) Store {
	return &instrumented{inner: s, rec: rec, onChange: onChange}
}

type instrumented struct {
	inner    Store
	rec      Recorder
	onChange ChangeFunc
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	if i.rec != nil {
		i.rec.ObserveStoreOperation(op, time.Since(start), err)
	}
}

func (i *instrumented) changed(ctx context.Context, key string) {
	if i.onChange != nil {
		i.onChange(ctx, key)
	}
}

func (i *instrumented) Get(ctx context.Context, key string) (*Document, error) {
	start := time.Now()
	doc, err := i.inner.Get(ctx, key)
	i.observe("get", start, err)
	return doc, err
}

func (i *instrumented) Put(ctx context.Context, key string, value []byte, expected int64) (int64, error) {
	start := time.Now()
	rev, err := i.inner.Put(ctx, key, value, expected)
	i.observe("put", start, err)
	if err == nil {
		i.changed(ctx, key)
	}
	return rev, err
}

func (i *instrumented) Delete(ctx context.Context, key string, expected int64) error {
	start := time.Now()
	err := i.inner.Delete(ctx, key, expected)
	i.observe("delete", start, err)
	if err == nil {
		i.changed(ctx, key)
	}
	return err
}

func (i *instrumented) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := i.inner.Keys(ctx, prefix)
	i.observe("keys", start, err)
	return keys, err
}

func (i *instrumented) Ping(ctx context.Context) error { return i.inner.Ping(ctx) }
func (i *instrumented) Close() error                   { return i.inner.Close() }
