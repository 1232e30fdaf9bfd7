package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

type activityStore interface {
	Append(ctx context.Context, entries ...models.Activity) error
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
}

// ActivityService appends to and reads the activity log. Appends are best
// effort: failures are logged and never returned.
type ActivityService struct {
	repo   activityStore
	events eventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewActivityService constructs the service.
func NewActivityService(repo activityStore, events eventPublisher, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{repo: repo, events: publisherOrNop(events), logger: logger, now: time.Now}
}

// Record appends one entry.
func (s *ActivityService) Record(ctx context.Context, actor, action string, attrs map[string]string) {
	s.RecordMany(ctx, []models.Activity{{Actor: actor, Action: action, Attributes: attrs}})
}

// RecordMany appends entries in one write, filling ids and timestamps.
func (s *ActivityService) RecordMany(ctx context.Context, entries []models.Activity) {
	if len(entries) == 0 {
		return
	}
	ts := s.now().UnixMilli()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].Timestamp == 0 {
			entries[i].Timestamp = ts
		}
	}
	if err := s.repo.Append(ctx, entries...); err != nil {
		s.logger.Warn("failed to append activity", zap.String("action", entries[0].Action), zap.Error(err))
		return
	}
	s.events.Publish(ctx, eventbus.TopicActivities, "")
}

// Recent returns up to limit entries newest first.
func (s *ActivityService) Recent(ctx context.Context, limit int) ([]models.Activity, error) {
	acts, err := s.repo.Recent(ctx, limit)
	if err != nil {
		return nil, storeError(err, "failed to load activities")
	}
	return acts, nil
}
