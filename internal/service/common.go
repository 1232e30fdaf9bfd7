package service

import (
	"context"
	"errors"

	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

// eventPublisher is satisfied by *eventbus.Bus.
type eventPublisher interface {
	Publish(ctx context.Context, topic eventbus.Topic, key string)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, eventbus.Topic, string) {}

func publisherOrNop(p eventPublisher) eventPublisher {
	if p == nil {
		return nopPublisher{}
	}
	return p
}

// activityRecorder is satisfied by *ActivityService.
type activityRecorder interface {
	Record(ctx context.Context, actor, action string, attrs map[string]string)
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string, map[string]string) {}

func recorderOrNop(r activityRecorder) activityRecorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

func storeError(err error, message string) error {
	if errors.Is(err, repository.ErrConflict) {
		return appErrors.Wrap(err, appErrors.ErrRevisionConflict.Code, appErrors.ErrRevisionConflict.Status, appErrors.ErrRevisionConflict.Message)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func validationError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
}
