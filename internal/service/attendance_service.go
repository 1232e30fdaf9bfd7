package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	"github.com/noah-isme/edumatrix-api/pkg/grading"
)

type attendanceStore interface {
	ForCourse(ctx context.Context, courseID string) ([]models.AttendanceRecord, error)
	ReplaceDay(ctx context.Context, courseID, date string, records []models.AttendanceRecord) error
}

type rosterSource interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// AttendanceService records daily attendance per course.
type AttendanceService struct {
	repo      attendanceStore
	roster    rosterSource
	courses   courseFinder
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceStore, roster rosterSource, courses courseFinder, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AttendanceService{
		repo:      repo,
		roster:    roster,
		courses:   courses,
		events:    publisherOrNop(events),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
	_ = svc.validator.RegisterValidation("calendar_date", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(models.DateLayout, fl.Field().String())
		return err == nil
	})
	return svc
}

type attendanceDayKey struct {
	CourseID string `validate:"required"`
	Date     string `validate:"required,calendar_date"`
}

// Day returns the course roster merged with the statuses saved for date.
// An empty date means today.
func (s *AttendanceService) Day(ctx context.Context, courseID, date string) (*models.AttendanceDay, error) {
	if date == "" {
		date = s.now().Format(models.DateLayout)
	}
	if err := s.validator.Struct(attendanceDayKey{CourseID: courseID, Date: date}); err != nil {
		return nil, validationError(err, "date must be YYYY-MM-DD")
	}
	if err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	roster, err := s.roster.List(ctx, models.EnrollmentFilter{CourseID: courseID})
	if err != nil {
		return nil, storeError(err, "failed to load roster")
	}
	records, err := s.repo.ForCourse(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "failed to load attendance")
	}

	saved := make(map[string]models.AttendanceStatus)
	for _, rec := range records {
		if rec.Date == date {
			saved[rec.StudentID] = rec.Status
		}
	}
	day := &models.AttendanceDay{CourseID: courseID, Date: date, Saved: len(saved) > 0, Rows: make([]models.AttendanceRow, 0, len(roster))}
	for _, st := range roster {
		row := models.AttendanceRow{StudentID: st.ID, Name: st.Name}
		if status, ok := saved[st.ID]; ok {
			status := status
			row.Status = &status
		}
		day.Rows = append(day.Rows, row)
	}
	return day, nil
}

// Save replaces every record of (courseID, date). Duplicate student ids
// collapse with the last one winning.
func (s *AttendanceService) Save(ctx context.Context, courseID, date string, req models.SaveAttendanceRequest) (*models.AttendanceDay, error) {
	if err := s.validator.Struct(attendanceDayKey{CourseID: courseID, Date: date}); err != nil {
		return nil, validationError(err, "date must be YYYY-MM-DD")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid attendance payload")
	}
	if err := s.requireCourse(ctx, courseID); err != nil {
		return nil, err
	}

	roster, err := s.roster.List(ctx, models.EnrollmentFilter{CourseID: courseID})
	if err != nil {
		return nil, storeError(err, "failed to load roster")
	}
	enrolled := make(map[string]struct{}, len(roster))
	for _, st := range roster {
		enrolled[st.ID] = struct{}{}
	}

	index := make(map[string]int, len(req.Records))
	records := make([]models.AttendanceRecord, 0, len(req.Records))
	for _, mark := range req.Records {
		if _, ok := enrolled[mark.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in this course", mark.StudentID))
		}
		rec := models.AttendanceRecord{Date: date, StudentID: mark.StudentID, Status: mark.Status}
		if i, ok := index[mark.StudentID]; ok {
			records[i] = rec
			continue
		}
		index[mark.StudentID] = len(records)
		records = append(records, rec)
	}

	if err := s.repo.ReplaceDay(ctx, courseID, date, records); err != nil {
		return nil, storeError(err, "failed to save attendance")
	}
	s.events.Publish(ctx, eventbus.TopicActivities, repository.KeyAttendance)
	return s.Day(ctx, courseID, date)
}

// StudentSummary tallies a student's attendance per enrolled course.
func (s *AttendanceService) StudentSummary(ctx context.Context, studentID string) ([]models.AttendanceSummary, error) {
	rows, err := s.roster.List(ctx, models.EnrollmentFilter{StudentID: studentID})
	if err != nil {
		return nil, storeError(err, "failed to load enrollments")
	}
	out := make([]models.AttendanceSummary, 0, len(rows))
	for _, row := range rows {
		records, err := s.repo.ForCourse(ctx, row.CourseID)
		if err != nil {
			return nil, storeError(err, "failed to load attendance")
		}
		present, total := countAttendance(records, studentID)
		out = append(out, models.AttendanceSummary{
			CourseID:   row.CourseID,
			CourseName: s.courseName(ctx, row),
			Present:    present,
			Absent:     total - present,
			Total:      total,
			Percent:    grading.AttendancePercent(present, total),
		})
	}
	return out, nil
}

func (s *AttendanceService) requireCourse(ctx context.Context, courseID string) error {
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to load course")
	}
	return nil
}

func (s *AttendanceService) courseName(ctx context.Context, row models.EnrolledStudent) string {
	return resolveCourseName(ctx, s.courses, row)
}

// resolveCourseName prefers the live course name, then the denormalized
// one, then the unknown placeholder.
func resolveCourseName(ctx context.Context, courses courseFinder, row models.EnrolledStudent) string {
	if course, err := courses.FindByID(ctx, row.CourseID); err == nil {
		return course.Name
	}
	if row.CourseName != "" {
		return row.CourseName
	}
	return models.UnknownCourseName
}
