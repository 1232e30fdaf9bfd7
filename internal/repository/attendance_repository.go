package repository

import (
	"context"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// AttendanceRepository manages the attendance document.
type AttendanceRepository struct {
	doc *document[models.AttendanceBook]
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(store kvstore.Store, maxRetries int) *AttendanceRepository {
	return &AttendanceRepository{doc: newDocument(store, KeyAttendance, maxRetries, func() models.AttendanceBook { return models.AttendanceBook{} })}
}

// Book returns the whole attendance map.
func (r *AttendanceRepository) Book(ctx context.Context) (models.AttendanceBook, error) {
	book, _, err := r.doc.load(ctx)
	return book, err
}

// ForCourse returns every record of a course.
func (r *AttendanceRepository) ForCourse(ctx context.Context, courseID string) ([]models.AttendanceRecord, error) {
	book, err := r.Book(ctx)
	if err != nil {
		return nil, err
	}
	return book[courseID], nil
}

// ReplaceDay drops every record of (courseID, date) and appends records.
func (r *AttendanceRepository) ReplaceDay(ctx context.Context, courseID, date string, records []models.AttendanceRecord) error {
	_, err := r.doc.mutate(ctx, func(book *models.AttendanceBook) error {
		if *book == nil {
			*book = models.AttendanceBook{}
		}
		kept := make([]models.AttendanceRecord, 0, len((*book)[courseID])+len(records))
		for _, rec := range (*book)[courseID] {
			if rec.Date != date {
				kept = append(kept, rec)
			}
		}
		(*book)[courseID] = append(kept, records...)
		return nil
	})
	return err
}

// DeleteCourse drops a course's records.
func (r *AttendanceRepository) DeleteCourse(ctx context.Context, courseID string) error {
	_, err := r.doc.mutate(ctx, func(book *models.AttendanceBook) error {
		if _, ok := (*book)[courseID]; !ok {
			return ErrNoChange
		}
		delete(*book, courseID)
		return nil
	})
	return err
}
