package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// SessionRepository keeps one document per session under user:<id>.
type SessionRepository struct {
	store kvstore.Store
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(store kvstore.Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// Create stores a new session.
func (r *SessionRepository) Create(ctx context.Context, session models.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if _, err := r.store.Put(ctx, SessionKey(session.ID), payload, 0); err != nil {
		if errors.Is(err, kvstore.ErrRevisionMismatch) {
			return ErrDuplicate
		}
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Find loads a session by id.
func (r *SessionRepository) Find(ctx context.Context, id string) (*models.Session, error) {
	doc, err := r.store.Get(ctx, SessionKey(id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(doc.Value, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

// Delete removes a session. Missing sessions are ignored.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, SessionKey(id), kvstore.AnyRevision)
}

// DeleteForUser removes every session of userID and returns the count.
func (r *SessionRepository) DeleteForUser(ctx context.Context, userID string) (int, error) {
	keys, err := r.store.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	var removed int
	for _, key := range keys {
		doc, err := r.store.Get(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		var session models.Session
		if err := json.Unmarshal(doc.Value, &session); err != nil || session.UserID != userID {
			continue
		}
		if err := r.store.Delete(ctx, key, doc.Revision); err != nil && !errors.Is(err, kvstore.ErrRevisionMismatch) {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
