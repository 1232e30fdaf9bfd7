package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

type systemStore interface {
	Snapshot(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	Purge(ctx context.Context, keys []string) error
	Empty(ctx context.Context, keys []string) (bool, error)
	Ping(ctx context.Context) error
}

type userSeeder interface {
	ReplaceAll(ctx context.Context, users []models.User) error
}

type courseSeeder interface {
	ReplaceAll(ctx context.Context, courses []models.Course) error
}

type enrollmentSeeder interface {
	ReplaceAll(ctx context.Context, rows []models.EnrolledStudent) error
}

// SystemService exports, resets and seeds the whole data set.
type SystemService struct {
	store       systemStore
	users       userSeeder
	courses     courseSeeder
	enrollments enrollmentSeeder
	activities  activityRecorder
	events      eventPublisher
	logger      *zap.Logger
	now         func() time.Time
}

// SystemServiceParams groups constructor dependencies.
type SystemServiceParams struct {
	Store       systemStore
	Users       userSeeder
	Courses     courseSeeder
	Enrollments enrollmentSeeder
	Activities  activityRecorder
	Events      eventPublisher
	Logger      *zap.Logger
}

// NewSystemService constructs a SystemService.
func NewSystemService(params SystemServiceParams) *SystemService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SystemService{
		store:       params.Store,
		users:       params.Users,
		courses:     params.Courses,
		enrollments: params.Enrollments,
		activities:  recorderOrNop(params.Activities),
		events:      publisherOrNop(params.Events),
		logger:      logger,
		now:         time.Now,
	}
}

func snapshotKeys() []string {
	return append(append([]string(nil), repository.DataKeys...), repository.KeyReportJobs)
}

// Snapshot returns every known document as raw JSON.
func (s *SystemService) Snapshot(ctx context.Context, actor string) (*dto.SystemSnapshot, error) {
	docs, err := s.store.Snapshot(ctx, snapshotKeys())
	if err != nil {
		return nil, storeError(err, "failed to export data")
	}
	s.activities.Record(ctx, actor, "Exported all local data from Settings", nil)
	return &dto.SystemSnapshot{GeneratedAt: s.now().UTC(), Documents: docs}, nil
}

// Reset deletes the school data set and both portal locks.
func (s *SystemService) Reset(ctx context.Context, actor string) error {
	if err := s.store.Purge(ctx, repository.DataKeys); err != nil {
		return storeError(err, "failed to reset data")
	}
	s.logger.Info("data set reset", zap.String("actor", actor))
	s.activities.Record(ctx, actor, "Reset demo data via Settings", nil)
	s.publishAll(ctx)
	return nil
}

// seedKeys must all be absent for Seed to run. The activity log and the
// locks do not count.
var seedKeys = []string{repository.KeyUsers, repository.KeyCourses, repository.KeyEnrolledStudents}

// Seed loads the demo data set when no school data exists yet. It reports
// whether anything was written.
func (s *SystemService) Seed(ctx context.Context) (bool, error) {
	empty, err := s.store.Empty(ctx, seedKeys)
	if err != nil {
		return false, storeError(err, "failed to inspect data set")
	}
	if !empty {
		return false, nil
	}

	now := s.now().UTC()
	users, courses, rows := demoData(now)
	if err := s.users.ReplaceAll(ctx, users); err != nil {
		return false, storeError(err, "failed to seed users")
	}
	if err := s.courses.ReplaceAll(ctx, courses); err != nil {
		return false, storeError(err, "failed to seed courses")
	}
	if err := s.enrollments.ReplaceAll(ctx, rows); err != nil {
		return false, storeError(err, "failed to seed enrollments")
	}

	s.logger.Info("demo data seeded", zap.Int("users", len(users)), zap.Int("courses", len(courses)), zap.Int("enrollments", len(rows)))
	s.activities.Record(ctx, models.SystemActor, "Loaded demo data", nil)
	s.publishAll(ctx)
	return true, nil
}

// Ready reports whether the backing store answers.
func (s *SystemService) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *SystemService) publishAll(ctx context.Context) {
	s.events.Publish(ctx, eventbus.TopicCourses, repository.KeyCourses)
	s.events.Publish(ctx, eventbus.TopicEnrollment, repository.KeyEnrolledStudents)
	s.events.Publish(ctx, eventbus.TopicActivities, repository.KeyActivities)
}

// demoData is the initial school: four accounts without passwords, five
// roster students and four courses, the first of which holds the roster.
func demoData(now time.Time) ([]models.User, []models.Course, []models.EnrolledStudent) {
	users := []models.User{
		{ID: "1", Username: "johnsmith", Email: "john@example.com", Role: models.RoleStudent, Status: models.StatusActive},
		{ID: "2", Username: "sarahteacher", Email: "sarah@example.com", Role: models.RoleTeacher, Status: models.StatusActive},
		{ID: "3", Username: "mikeadmin", Email: "mike@example.com", Role: models.RoleAdmin, Status: models.StatusActive},
		{ID: "4", Username: "emmastudent", Email: "emma@example.com", Role: models.RoleStudent, Status: models.StatusInactive},
	}
	roster := []struct{ id, username, name string }{
		{"s1", "alicejohnson", "Alice Johnson"},
		{"s2", "bobsmith", "Bob Smith"},
		{"s3", "charliebrown", "Charlie Brown"},
		{"s4", "dianaprince", "Diana Prince"},
		{"s5", "evewilson", "Eve Wilson"},
	}

	courses := []models.Course{
		{ID: "1", Name: "Mathematics 101", Code: "MATH101", Teacher: "sarahteacher", Status: models.CourseActive},
		{ID: "2", Name: "Physics 201", Code: "PHY201", Teacher: "John Doe", Status: models.CourseActive},
		{ID: "3", Name: "Chemistry 150", Code: "CHEM150", Teacher: "Jane Smith", Status: models.CourseActive},
		{ID: "4", Name: "English Lit 101", Code: "ENG101", Teacher: "Mike Johnson", Status: models.CourseInactive},
	}

	rows := make([]models.EnrolledStudent, 0, len(roster))
	for _, st := range roster {
		users = append(users, models.User{
			ID:       st.id,
			Username: st.username,
			Email:    st.username + "@example.com",
			Role:     models.RoleStudent,
			Status:   models.StatusActive,
		})
		enrolledAt := now
		rows = append(rows, models.EnrolledStudent{
			ID:         st.id,
			Name:       st.name,
			Username:   st.username,
			CourseID:   courses[0].ID,
			CourseName: courses[0].Name,
			EnrolledAt: &enrolledAt,
		})
	}
	courses[0].Students = len(rows)

	for i := range users {
		created := now
		users[i].CreatedAt = &created
		users[i].UpdatedAt = &created
	}
	return users, courses, rows
}
