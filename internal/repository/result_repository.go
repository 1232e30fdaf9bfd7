package repository

import (
	"context"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// ResultRepository manages the results document.
type ResultRepository struct {
	doc *document[models.ResultBook]
}

// NewResultRepository constructs the repository.
func NewResultRepository(store kvstore.Store, maxRetries int) *ResultRepository {
	return &ResultRepository{doc: newDocument(store, KeyResults, maxRetries, func() models.ResultBook { return models.ResultBook{} })}
}

// Book returns the whole results map.
func (r *ResultRepository) Book(ctx context.Context) (models.ResultBook, error) {
	book, _, err := r.doc.load(ctx)
	return book, err
}

// ForCourse returns a course's assessments.
func (r *ResultRepository) ForCourse(ctx context.Context, courseID string) (map[string][]models.ResultEntry, error) {
	book, err := r.Book(ctx)
	if err != nil {
		return nil, err
	}
	return book[courseID], nil
}

// ReplaceAssessment overwrites the entries of one assessment.
func (r *ResultRepository) ReplaceAssessment(ctx context.Context, courseID, assessment string, entries []models.ResultEntry) error {
	_, err := r.doc.mutate(ctx, func(book *models.ResultBook) error {
		if *book == nil {
			*book = models.ResultBook{}
		}
		if (*book)[courseID] == nil {
			(*book)[courseID] = map[string][]models.ResultEntry{}
		}
		(*book)[courseID][assessment] = entries
		return nil
	})
	return err
}

// DeleteCourse drops a course's results.
func (r *ResultRepository) DeleteCourse(ctx context.Context, courseID string) error {
	_, err := r.doc.mutate(ctx, func(book *models.ResultBook) error {
		if _, ok := (*book)[courseID]; !ok {
			return ErrNoChange
		}
		delete(*book, courseID)
		return nil
	})
	return err
}
