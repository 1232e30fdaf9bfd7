package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	"github.com/noah-isme/edumatrix-api/pkg/grading"
)

const recentActivityLimit = 8

type userLister interface {
	All(ctx context.Context) ([]models.User, error)
}

type courseLister interface {
	All(ctx context.Context) ([]models.Course, error)
}

type enrollmentLister interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrolledStudent, error)
}

type attendanceBook interface {
	Book(ctx context.Context) (models.AttendanceBook, error)
}

type resultBook interface {
	Book(ctx context.Context) (models.ResultBook, error)
}

type recentActivities interface {
	Recent(ctx context.Context, limit int) ([]models.Activity, error)
}

type eventSubscriber interface {
	Subscribe(topics ...eventbus.Topic) *eventbus.Subscription
}

// DashboardServiceConfig tunes dashboard behaviour.
type DashboardServiceConfig struct {
	CacheTTL time.Duration
}

// DashboardService composes the three role dashboards from the stored
// collections.
type DashboardService struct {
	users       userLister
	courses     courseLister
	enrollments enrollmentLister
	attendance  attendanceBook
	results     resultBook
	activities  recentActivities
	cache       *CacheService
	logger      *zap.Logger
	now         func() time.Time
	cfg         DashboardServiceConfig

	// generation advances on every invalidation so a dashboard composed
	// across one is not left in the cache.
	generation atomic.Uint64
}

// DashboardServiceParams groups constructor dependencies.
type DashboardServiceParams struct {
	Users       userLister
	Courses     courseLister
	Enrollments enrollmentLister
	Attendance  attendanceBook
	Results     resultBook
	Activities  recentActivities
	Cache       *CacheService
	Logger      *zap.Logger
	Config      DashboardServiceConfig
}

// NewDashboardService constructs a DashboardService with sane defaults.
func NewDashboardService(params DashboardServiceParams) *DashboardService {
	cfg := params.Config
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		users:       params.Users,
		courses:     params.Courses,
		enrollments: params.Enrollments,
		attendance:  params.Attendance,
		results:     params.Results,
		activities:  params.Activities,
		cache:       params.Cache,
		logger:      logger,
		now:         time.Now,
		cfg:         cfg,
	}
}

// Admin returns school-wide totals and indicates cache utilisation.
func (s *DashboardService) Admin(ctx context.Context) (*dto.AdminDashboardResponse, bool, error) {
	const cacheKey = "dash:admin"
	var cached dto.AdminDashboardResponse
	if s.tryCache(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}
	gen := s.generation.Load()

	summary, err := s.composeAdmin(ctx)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, cacheKey, summary, gen)
	return summary, false, nil
}

// Teacher returns the dashboard of the courses taught by username.
func (s *DashboardService) Teacher(ctx context.Context, username string) (*dto.TeacherDashboardResponse, bool, error) {
	if username == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "teacher username is required")
	}
	today := s.now().Format(models.DateLayout)
	cacheKey := fmt.Sprintf("dash:teacher:%s:%s", username, today)
	var cached dto.TeacherDashboardResponse
	if s.tryCache(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}
	gen := s.generation.Load()

	summary, err := s.composeTeacher(ctx, username, today)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, cacheKey, summary, gen)
	return summary, false, nil
}

// Student returns a student's per-course progress and GPA.
func (s *DashboardService) Student(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error) {
	if studentID == "" {
		return nil, false, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	cacheKey := fmt.Sprintf("dash:student:%s", studentID)
	var cached dto.StudentDashboardResponse
	if s.tryCache(ctx, cacheKey, &cached) {
		return &cached, true, nil
	}
	gen := s.generation.Load()

	summary, err := s.composeStudent(ctx, studentID)
	if err != nil {
		return nil, false, err
	}
	s.persistCache(ctx, cacheKey, summary, gen)
	return summary, false, nil
}

// Invalidate drops every cached dashboard. It matches kvstore.ChangeFunc so
// the store can call it before a write returns; key is only logged.
func (s *DashboardService) Invalidate(ctx context.Context, key string) {
	if !s.cache.Enabled() {
		return
	}
	s.generation.Add(1)
	if err := s.cache.Invalidate(ctx, "dash:*"); err != nil {
		s.logger.Warn("failed to invalidate dashboards", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateOnEvents drops every cached dashboard whenever the bus reports
// a change, including changes relayed from other instances. It blocks until
// ctx is done or the bus closes the subscription.
func (s *DashboardService) InvalidateOnEvents(ctx context.Context, bus eventSubscriber) {
	if !s.cache.Enabled() || bus == nil {
		return
	}
	sub := bus.Subscribe()
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.Invalidate(ctx, ev.Key)
		}
	}
}

func (s *DashboardService) composeAdmin(ctx context.Context) (*dto.AdminDashboardResponse, error) {
	users, err := s.users.All(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load users")
	}
	courses, err := s.courses.All(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load courses")
	}
	book, err := s.attendance.Book(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load attendance")
	}
	recent, err := s.activities.Recent(ctx, recentActivityLimit)
	if err != nil {
		return nil, storeError(err, "failed to load activities")
	}

	summary := &dto.AdminDashboardResponse{RecentActivities: recent}
	for _, u := range users {
		switch u.Role {
		case models.RoleStudent:
			summary.TotalStudents++
		case models.RoleTeacher:
			summary.TotalTeachers++
		}
	}
	for _, c := range courses {
		if c.Status == models.CourseActive {
			summary.ActiveCourses++
		}
	}
	var present, total int
	for _, records := range book {
		p, t := countAll(records)
		present += p
		total += t
	}
	summary.AverageAttendance = grading.AttendancePercent(present, total)
	return summary, nil
}

func (s *DashboardService) composeTeacher(ctx context.Context, username, today string) (*dto.TeacherDashboardResponse, error) {
	courses, err := s.courses.All(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load courses")
	}
	book, err := s.attendance.Book(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load attendance")
	}
	results, err := s.results.Book(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load results")
	}

	summary := &dto.TeacherDashboardResponse{Teacher: username, Date: today, Courses: []dto.TeacherCourseStatus{}}
	var present, total int
	for _, c := range courses {
		if !c.TaughtBy(username) {
			continue
		}
		records := book[c.ID]
		p, t := countAll(records)
		present += p
		total += t

		status := dto.TeacherCourseStatus{
			ID:                c.ID,
			Name:              c.Name,
			Code:              c.Code,
			Students:          c.Students,
			Attendance:        grading.AttendancePercent(p, t),
			AttendanceToday:   hasDate(records, today),
			AssessmentsGraded: gradedCount(results[c.ID]),
		}
		if !status.AttendanceToday {
			summary.PendingTasks++
		}
		summary.TotalStudents += c.Students
		summary.Courses = append(summary.Courses, status)
	}
	summary.AverageAttendance = grading.AttendancePercent(present, total)
	return summary, nil
}

func (s *DashboardService) composeStudent(ctx context.Context, studentID string) (*dto.StudentDashboardResponse, error) {
	rows, err := s.enrollments.List(ctx, models.EnrollmentFilter{StudentID: studentID})
	if err != nil {
		return nil, storeError(err, "failed to load enrollments")
	}
	book, err := s.attendance.Book(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load attendance")
	}
	results, err := s.results.Book(ctx)
	if err != nil {
		return nil, storeError(err, "failed to load results")
	}

	summary := &dto.StudentDashboardResponse{
		StudentID:     studentID,
		Courses:       make([]dto.StudentCourseStatus, 0, len(rows)),
		LowAttendance: []string{},
	}
	var percents []int
	var letters []string
	for _, row := range rows {
		present, total := countAttendance(book[row.CourseID], studentID)
		attendance := grading.AttendancePercent(present, total)
		status := dto.StudentCourseStatus{
			ID:         row.CourseID,
			Name:       row.CourseName,
			Attendance: attendance,
			Trend:      grading.Trend(attendance),
		}
		if _, marks := studentMarks(results[row.CourseID], studentID); len(marks) > 0 {
			_, letter, _ := grading.AverageLetter(marks)
			status.Grade = letter
			letters = append(letters, letter)
		}
		if attendance != nil {
			percents = append(percents, *attendance)
			if *attendance < grading.LowAttendance {
				summary.LowAttendance = append(summary.LowAttendance, row.CourseID)
			}
		}
		summary.Courses = append(summary.Courses, status)
	}

	summary.TotalCourses = len(summary.Courses)
	summary.AverageAttendance = meanPercent(percents)
	if gpa, ok := grading.GPA(letters); ok {
		summary.GPA = &gpa
		summary.AcademicAlert = gpa < grading.AlertGPA
	}
	return summary, nil
}

func hasDate(records []models.AttendanceRecord, date string) bool {
	for _, rec := range records {
		if rec.Date == date {
			return true
		}
	}
	return false
}

func (s *DashboardService) tryCache(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	// A failing cache is logged by CacheService and treated as a miss.
	hit, err := s.cache.Get(ctx, key, dest)
	return err == nil && hit
}

func (s *DashboardService) persistCache(ctx context.Context, key string, value interface{}, gen uint64) {
	if s.cache == nil || s.generation.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	// An invalidation that ran between the check above and the write.
	if s.generation.Load() != gen {
		if err := s.cache.Invalidate(ctx, key); err != nil {
			s.logger.Warn("dashboard cache rollback failed", zap.String("key", key), zap.Error(err))
		}
	}
}
