package repository

import (
	"context"
	"strings"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// CourseRepository manages the courses document.
type CourseRepository struct {
	doc *document[[]models.Course]
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(store kvstore.Store, maxRetries int) *CourseRepository {
	return &CourseRepository{doc: newDocument(store, KeyCourses, maxRetries, func() []models.Course { return []models.Course{} })}
}

// All returns every course in stored order.
func (r *CourseRepository) All(ctx context.Context) ([]models.Course, error) {
	courses, _, err := r.doc.load(ctx)
	return courses, err
}

// List applies the filter.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := make([]models.Course, 0, len(courses))
	for _, c := range courses {
		if filter.Teacher != "" && !c.TaughtBy(filter.Teacher) {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(strings.ToLower(c.Code), search) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	courses, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if courses[i].ID == id {
			return &courses[i], nil
		}
	}
	return nil, ErrNotFound
}

// Create appends a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	_, err := r.doc.mutate(ctx, func(courses *[]models.Course) error {
		if indexOfCourse(*courses, course.ID) >= 0 {
			return ErrDuplicate
		}
		*courses = append(*courses, *course)
		return nil
	})
	return err
}

// Update applies fn to the course with id.
func (r *CourseRepository) Update(ctx context.Context, id string, fn func(*models.Course) error) (*models.Course, error) {
	var updated models.Course
	_, err := r.doc.mutate(ctx, func(courses *[]models.Course) error {
		idx := indexOfCourse(*courses, id)
		if idx < 0 {
			return ErrNotFound
		}
		candidate := (*courses)[idx]
		if err := fn(&candidate); err != nil {
			return err
		}
		(*courses)[idx] = candidate
		updated = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// AdjustStudents adds delta to the denormalized count, flooring at zero.
func (r *CourseRepository) AdjustStudents(ctx context.Context, id string, delta int) (*models.Course, error) {
	return r.Update(ctx, id, func(c *models.Course) error {
		c.Students += delta
		if c.Students < 0 {
			c.Students = 0
		}
		return nil
	})
}

// SetCounts overwrites Students from counts, treating absent ids as zero.
// It returns the number of courses whose count changed.
func (r *CourseRepository) SetCounts(ctx context.Context, counts map[string]int) (int, error) {
	var changed int
	_, err := r.doc.mutate(ctx, func(courses *[]models.Course) error {
		changed = 0
		for i := range *courses {
			want := counts[(*courses)[i].ID]
			if (*courses)[i].Students != want {
				(*courses)[i].Students = want
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

// Delete removes a course and returns it.
func (r *CourseRepository) Delete(ctx context.Context, id string) (*models.Course, error) {
	var removed models.Course
	_, err := r.doc.mutate(ctx, func(courses *[]models.Course) error {
		idx := indexOfCourse(*courses, id)
		if idx < 0 {
			return ErrNotFound
		}
		removed = (*courses)[idx]
		*courses = append((*courses)[:idx], (*courses)[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// ReplaceAll overwrites the collection.
func (r *CourseRepository) ReplaceAll(ctx context.Context, courses []models.Course) error {
	return r.doc.replace(ctx, courses)
}

func indexOfCourse(courses []models.Course, id string) int {
	for i := range courses {
		if courses[i].ID == id {
			return i
		}
	}
	return -1
}
