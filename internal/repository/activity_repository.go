package repository

import (
	"context"
	"sort"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// ActivityRepository manages the activities document, stored oldest first.
type ActivityRepository struct {
	doc        *document[[]models.Activity]
	maxEntries int
}

// NewActivityRepository constructs the repository. maxEntries <= 0 keeps
// every entry.
func NewActivityRepository(store kvstore.Store, maxRetries, maxEntries int) *ActivityRepository {
	return &ActivityRepository{
		doc:        newDocument(store, KeyActivities, maxRetries, func() []models.Activity { return []models.Activity{} }),
		maxEntries: maxEntries,
	}
}

// Append adds entries and trims the oldest beyond the cap.
func (r *ActivityRepository) Append(ctx context.Context, entries ...models.Activity) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := r.doc.mutate(ctx, func(acts *[]models.Activity) error {
		*acts = append(*acts, entries...)
		if r.maxEntries > 0 && len(*acts) > r.maxEntries {
			*acts = append([]models.Activity(nil), (*acts)[len(*acts)-r.maxEntries:]...)
		}
		return nil
	})
	return err
}

// All returns the log oldest first.
func (r *ActivityRepository) All(ctx context.Context) ([]models.Activity, error) {
	acts, _, err := r.doc.load(ctx)
	return acts, err
}

// Recent returns up to limit entries newest first by timestamp; entries with
// equal timestamps keep reverse append order. limit <= 0 returns all.
func (r *ActivityRepository) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	acts, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Activity, 0, len(acts))
	for i := len(acts) - 1; i >= 0; i-- {
		out = append(out, acts[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
