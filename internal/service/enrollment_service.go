package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

type enrollmentRowStore interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error)
	Add(ctx context.Context, row models.EnrolledStudent) error
	Remove(ctx context.Context, studentID, courseID string) ([]models.EnrolledStudent, error)
	RemoveWhere(ctx context.Context, pred func(models.EnrolledStudent) bool) ([]models.EnrolledStudent, error)
	UpdateWhere(ctx context.Context, pred func(models.EnrolledStudent) bool, fn func(*models.EnrolledStudent)) (int, error)
	CountByCourse(ctx context.Context) (map[string]int, error)
}

type courseCounter interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	AdjustStudents(ctx context.Context, id string, delta int) (*models.Course, error)
	SetCounts(ctx context.Context, counts map[string]int) (int, error)
}

// EnrollmentService assigns students to courses and keeps the denormalized
// course counts in step. All writes are serialized by one mutex.
type EnrollmentService struct {
	rows       enrollmentRowStore
	courses    courseCounter
	users      userFinder
	activities activityRecorder
	events     eventPublisher
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time

	mu sync.Mutex
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Rows       enrollmentRowStore
	Courses    courseCounter
	Users      userFinder
	Activities activityRecorder
	Events     eventPublisher
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	return &EnrollmentService{
		rows:       params.Rows,
		courses:    params.Courses,
		users:      params.Users,
		activities: recorderOrNop(params.Activities),
		events:     publisherOrNop(params.Events),
		validator:  validate,
		logger:     logger,
		now:        time.Now,
	}
}

// List returns enrollment rows matching filter.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error) {
	rows, err := s.rows.List(ctx, filter)
	if err != nil {
		return nil, storeError(err, "failed to list enrollments")
	}
	return rows, nil
}

// Roster returns the students enrolled in a course.
func (s *EnrollmentService) Roster(ctx context.Context, courseID string) ([]models.EnrolledStudent, error) {
	return s.List(ctx, models.EnrollmentFilter{CourseID: courseID})
}

// Enroll adds a student to a course and increments the course count.
func (s *EnrollmentService) Enroll(ctx context.Context, actor string, req models.EnrollRequest) (*models.EnrolledStudent, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid enrollment payload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	student, err := s.users.FindByID(ctx, req.StudentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, storeError(err, "failed to load student")
	}
	if student == nil || student.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Selected user is not a valid student")
	}
	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, storeError(err, "failed to load course")
	}

	now := s.now().UTC()
	row := models.EnrolledStudent{
		ID:         student.ID,
		Name:       student.DisplayName(),
		Username:   student.Username,
		CourseID:   course.ID,
		CourseName: course.Name,
		EnrolledAt: &now,
	}
	if err := s.rows.Add(ctx, row); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "Student is already enrolled in that course")
		}
		return nil, storeError(err, "failed to enroll student")
	}

	if _, err := s.courses.AdjustStudents(ctx, course.ID, 1); err != nil {
		if _, undoErr := s.rows.Remove(ctx, row.ID, row.CourseID); undoErr != nil {
			s.logger.Error("failed to roll back enrollment", zap.String("student_id", row.ID), zap.String("course_id", row.CourseID), zap.Error(undoErr))
		}
		return nil, storeError(err, "failed to update course count")
	}

	s.activities.Record(ctx, actor, fmt.Sprintf("Enrolled %s (id:%s) to %s", row.Name, row.ID, row.CourseName), nil)
	s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	return &row, nil
}

// Unenroll removes every row of the pair. It reports false, and changes
// nothing, when the student was not enrolled.
func (s *EnrollmentService) Unenroll(ctx context.Context, actor, studentID, courseID string) (bool, error) {
	if studentID == "" || courseID == "" {
		return false, appErrors.Clone(appErrors.ErrValidation, "studentId and courseId are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.rows.Remove(ctx, studentID, courseID)
	if err != nil {
		return false, storeError(err, "failed to remove enrollment")
	}
	if len(removed) == 0 {
		return false, nil
	}

	if _, err := s.courses.AdjustStudents(ctx, courseID, -len(removed)); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("failed to decrement course count", zap.String("course_id", courseID), zap.Error(err))
	}

	entries := make([]models.Activity, 0, len(removed))
	for _, row := range removed {
		entries = append(entries, models.Activity{
			Actor:      actor,
			Action:     "unenroll",
			Attributes: map[string]string{"studentId": row.ID, "courseId": row.CourseID},
		})
	}
	s.recordMany(ctx, entries)
	s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	return true, nil
}

// RemoveStudent drops every enrollment of a student and decrements the
// affected courses. It returns the number of rows removed.
func (s *EnrollmentService) RemoveStudent(ctx context.Context, studentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.rows.RemoveWhere(ctx, func(row models.EnrolledStudent) bool { return row.ID == studentID })
	if err != nil {
		return 0, storeError(err, "failed to remove student enrollments")
	}
	perCourse := make(map[string]int)
	for _, row := range removed {
		perCourse[row.CourseID]++
	}
	for courseID, n := range perCourse {
		if _, err := s.courses.AdjustStudents(ctx, courseID, -n); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("failed to decrement course count", zap.String("course_id", courseID), zap.Error(err))
		}
	}
	if len(removed) > 0 {
		s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
		s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	}
	return len(removed), nil
}

// ReconcileCounts recomputes every course count from the enrollment rows and
// returns how many courses changed.
func (s *EnrollmentService) ReconcileCounts(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := s.rows.CountByCourse(ctx)
	if err != nil {
		return 0, storeError(err, "failed to count enrollments")
	}
	changed, err := s.courses.SetCounts(ctx, counts)
	if err != nil {
		return 0, storeError(err, "failed to update course counts")
	}
	if changed > 0 {
		s.logger.Info("course counts reconciled", zap.Int("changed", changed))
		s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	}
	return changed, nil
}

// RemoveCourse drops every enrollment of a deleted course.
func (s *EnrollmentService) RemoveCourse(ctx context.Context, courseID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.rows.RemoveWhere(ctx, func(row models.EnrolledStudent) bool { return row.CourseID == courseID })
	if err != nil {
		return 0, storeError(err, "failed to remove course enrollments")
	}
	if len(removed) > 0 {
		s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	}
	return len(removed), nil
}

// RenameCourse refreshes the denormalized course name on enrollment rows.
func (s *EnrollmentService) RenameCourse(ctx context.Context, courseID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.rows.UpdateWhere(ctx,
		func(row models.EnrolledStudent) bool { return row.CourseID == courseID && row.CourseName != name },
		func(row *models.EnrolledStudent) { row.CourseName = name })
	if err != nil {
		s.logger.Warn("failed to rename course on enrollments", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	if n > 0 {
		s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	}
}

// RenameStudent refreshes the denormalized student name on enrollment rows.
func (s *EnrollmentService) RenameStudent(ctx context.Context, user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := user.DisplayName()
	n, err := s.rows.UpdateWhere(ctx,
		func(row models.EnrolledStudent) bool {
			return row.ID == user.ID && (row.Name != name || row.Username != user.Username)
		},
		func(row *models.EnrolledStudent) {
			row.Name = name
			row.Username = user.Username
		})
	if err != nil {
		s.logger.Warn("failed to rename student on enrollments", zap.String("student_id", user.ID), zap.Error(err))
		return
	}
	if n > 0 {
		s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	}
}

type batchRecorder interface {
	RecordMany(ctx context.Context, entries []models.Activity)
}

func (s *EnrollmentService) recordMany(ctx context.Context, entries []models.Activity) {
	if batch, ok := s.activities.(batchRecorder); ok {
		batch.RecordMany(ctx, entries)
		return
	}
	for _, e := range entries {
		s.activities.Record(ctx, e.Actor, e.Action, e.Attributes)
	}
}
