package repository

import (
	"context"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// EnrollmentRepository manages the enrolledStudents document.
type EnrollmentRepository struct {
	doc *document[[]models.EnrolledStudent]
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(store kvstore.Store, maxRetries int) *EnrollmentRepository {
	return &EnrollmentRepository{doc: newDocument(store, KeyEnrolledStudents, maxRetries, func() []models.EnrolledStudent { return []models.EnrolledStudent{} })}
}

// All returns every enrollment row.
func (r *EnrollmentRepository) All(ctx context.Context) ([]models.EnrolledStudent, error) {
	rows, _, err := r.doc.load(ctx)
	return rows, err
}

// List filters rows by student and/or course.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.EnrolledStudent, 0, len(rows))
	for _, row := range rows {
		if filter.StudentID != "" && row.ID != filter.StudentID {
			continue
		}
		if filter.CourseID != "" && row.CourseID != filter.CourseID {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Exists reports whether the pair is enrolled.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, courseID string) (bool, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if row.Matches(studentID, courseID) {
			return true, nil
		}
	}
	return false, nil
}

// Add appends row unless the pair is already enrolled.
func (r *EnrollmentRepository) Add(ctx context.Context, row models.EnrolledStudent) error {
	_, err := r.doc.mutate(ctx, func(rows *[]models.EnrolledStudent) error {
		for _, existing := range *rows {
			if existing.Matches(row.ID, row.CourseID) {
				return ErrDuplicate
			}
		}
		*rows = append(*rows, row)
		return nil
	})
	return err
}

// Remove deletes every row of the pair and returns what was removed.
func (r *EnrollmentRepository) Remove(ctx context.Context, studentID, courseID string) ([]models.EnrolledStudent, error) {
	return r.RemoveWhere(ctx, func(row models.EnrolledStudent) bool {
		return row.Matches(studentID, courseID)
	})
}

// RemoveWhere deletes every row matching pred and returns them. Nothing is
// written when no row matches.
func (r *EnrollmentRepository) RemoveWhere(ctx context.Context, pred func(models.EnrolledStudent) bool) ([]models.EnrolledStudent, error) {
	var removed []models.EnrolledStudent
	_, err := r.doc.mutate(ctx, func(rows *[]models.EnrolledStudent) error {
		removed = nil
		kept := make([]models.EnrolledStudent, 0, len(*rows))
		for _, row := range *rows {
			if pred(row) {
				removed = append(removed, row)
				continue
			}
			kept = append(kept, row)
		}
		if len(removed) == 0 {
			return ErrNoChange
		}
		*rows = kept
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// UpdateWhere rewrites rows matching pred and returns how many changed.
func (r *EnrollmentRepository) UpdateWhere(ctx context.Context, pred func(models.EnrolledStudent) bool, fn func(*models.EnrolledStudent)) (int, error) {
	var changed int
	_, err := r.doc.mutate(ctx, func(rows *[]models.EnrolledStudent) error {
		changed = 0
		for i := range *rows {
			if pred((*rows)[i]) {
				fn(&(*rows)[i])
				changed++
			}
		}
		if changed == 0 {
			return ErrNoChange
		}
		return nil
	})
	return changed, err
}

// CountByCourse counts rows per course id.
func (r *EnrollmentRepository) CountByCourse(ctx context.Context) (map[string]int, error) {
	rows, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, row := range rows {
		counts[row.CourseID]++
	}
	return counts, nil
}

// ReplaceAll overwrites the collection.
func (r *EnrollmentRepository) ReplaceAll(ctx context.Context, rows []models.EnrolledStudent) error {
	return r.doc.replace(ctx, rows)
}
