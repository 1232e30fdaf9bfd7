package kvstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps documents in a map. Nothing survives a restart.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	seq  int64
	now  func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	doc.Value = append([]byte(nil), doc.Value...)
	return &doc, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte, expected int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.docs[key].Revision
	if err := checkRevision(current, expected); err != nil {
		return 0, err
	}

	m.seq++
	next := m.seq
	m.docs[key] = Document{
		Key:       key,
		Value:     append([]byte(nil), value...),
		Revision:  next,
		UpdatedAt: m.now().UTC(),
	}
	return next, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[key]
	if !ok {
		if expected == AnyRevision {
			return nil
		}
		return ErrRevisionMismatch
	}
	if err := checkRevision(doc.Revision, expected); err != nil {
		return err
	}
	delete(m.docs, key)
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.docs))
	for key := range m.docs {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
