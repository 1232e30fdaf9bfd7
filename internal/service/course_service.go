package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, id string, fn func(*models.Course) error) (*models.Course, error)
	Delete(ctx context.Context, id string) (*models.Course, error)
}

type courseEnrollments interface {
	RemoveCourse(ctx context.Context, courseID string) (int, error)
	RenameCourse(ctx context.Context, courseID, name string)
	ReconcileCounts(ctx context.Context) (int, error)
}

// CourseRecords is a per-course collection dropped with its course.
type CourseRecords interface {
	DeleteCourse(ctx context.Context, courseID string) error
}

// CourseService manages the course catalogue.
type CourseService struct {
	repo        courseRepository
	enrollments courseEnrollments
	records     []CourseRecords
	activities  activityRecorder
	events      eventPublisher
	validator   *validator.Validate
	logger      *zap.Logger
}

// CourseServiceParams groups constructor dependencies. Records are purged
// of a course when it is deleted.
type CourseServiceParams struct {
	Repo        courseRepository
	Enrollments courseEnrollments
	Records     []CourseRecords
	Activities  activityRecorder
	Events      eventPublisher
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewCourseService constructs a CourseService.
func NewCourseService(params CourseServiceParams) *CourseService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &CourseService{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		records:     params.Records,
		activities:  recorderOrNop(params.Activities),
		events:      publisherOrNop(params.Events),
		validator:   validate,
		logger:      logger,
	}
}

// List returns courses matching filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, storeError(err, "failed to load course")
	}
	return course, nil
}

// Create adds an active course with no students.
func (s *CourseService) Create(ctx context.Context, actor string, req models.CreateCourseRequest) (*models.Course, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Code = strings.TrimSpace(req.Code)
	req.Teacher = strings.TrimSpace(req.Teacher)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create course payload")
	}

	course := &models.Course{
		ID:      uuid.NewString(),
		Name:    req.Name,
		Code:    req.Code,
		Teacher: req.Teacher,
		Status:  models.CourseActive,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, storeError(err, "failed to create course")
	}

	s.activities.Record(ctx, actor, fmt.Sprintf("New course created: %s", course.Name), nil)
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	return course, nil
}

// Update edits the given fields of a course.
func (s *CourseService) Update(ctx context.Context, actor, id string, req models.UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update course payload")
	}

	var renamed bool
	updated, err := s.repo.Update(ctx, id, func(c *models.Course) error {
		renamed = false
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			renamed = name != c.Name
			c.Name = name
		}
		if req.Code != nil {
			c.Code = strings.TrimSpace(*req.Code)
		}
		if req.Teacher != nil {
			c.Teacher = strings.TrimSpace(*req.Teacher)
		}
		if req.Status != nil {
			c.Status = *req.Status
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, storeError(err, "failed to update course")
	}

	if renamed && s.enrollments != nil {
		s.enrollments.RenameCourse(ctx, updated.ID, updated.Name)
	}
	s.activities.Record(ctx, actor, fmt.Sprintf("Updated course: %s", updated.Name), nil)
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	return updated, nil
}

// Delete removes a course together with its enrollments, attendance and
// results.
func (s *CourseService) Delete(ctx context.Context, actor, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to delete course")
	}

	if s.enrollments != nil {
		if _, err := s.enrollments.RemoveCourse(ctx, removed.ID); err != nil {
			s.logger.Warn("failed to remove enrollments of deleted course", zap.String("course_id", removed.ID), zap.Error(err))
		}
	}
	for _, records := range s.records {
		if err := records.DeleteCourse(ctx, removed.ID); err != nil {
			s.logger.Warn("failed to purge records of deleted course", zap.String("course_id", removed.ID), zap.Error(err))
		}
	}
	s.activities.Record(ctx, actor, fmt.Sprintf("Deleted course: %s", removed.Name), nil)
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	return nil
}

// Reconcile recomputes every course count from the enrollment rows and
// returns how many courses changed.
func (s *CourseService) Reconcile(ctx context.Context) (int, error) {
	return s.enrollments.ReconcileCounts(ctx)
}
