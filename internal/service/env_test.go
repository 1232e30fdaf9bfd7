package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
	"github.com/noah-isme/edumatrix-api/pkg/passwords"
)

const testSecret = "test-secret"

type publishedEvent struct {
	Topic eventbus.Topic
	Key   string
}

type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *publisherStub) Publish(_ context.Context, topic eventbus.Topic, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Topic: topic, Key: key})
}

func (p *publisherStub) topics() []eventbus.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventbus.Topic, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Topic
	}
	return out
}

// testEnv wires real repositories over a memory store.
type testEnv struct {
	store       kvstore.Store
	events      *publisherStub
	users       *repository.UserRepository
	courses     *repository.CourseRepository
	rows        *repository.EnrollmentRepository
	attendance  *repository.AttendanceRepository
	results     *repository.ResultRepository
	activityLog *repository.ActivityRepository
	lockRepo    *repository.LockRepository
	sessionRepo *repository.SessionRepository

	activities  *ActivityService
	locks       *LockService
	auth        *AuthService
	enrollments *EnrollmentService
	userSvc     *UserService
	courseSvc   *CourseService
	attendSvc   *AttendanceService
	resultSvc   *ResultService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := kvstore.NewMemoryStore()
	env := &testEnv{
		store:       store,
		events:      &publisherStub{},
		users:       repository.NewUserRepository(store, 3),
		courses:     repository.NewCourseRepository(store, 3),
		rows:        repository.NewEnrollmentRepository(store, 3),
		attendance:  repository.NewAttendanceRepository(store, 3),
		results:     repository.NewResultRepository(store, 3),
		activityLog: repository.NewActivityRepository(store, 3, 100),
		lockRepo:    repository.NewLockRepository(store),
		sessionRepo: repository.NewSessionRepository(store),
	}
	env.activities = NewActivityService(env.activityLog, env.events, nil)
	env.locks = NewLockService(env.lockRepo, env.users, env.activities, nil, LockConfig{OverrideToken: "ops"})
	env.auth = NewAuthService(AuthServiceParams{
		Users:      env.users,
		Sessions:   env.sessionRepo,
		Locks:      env.locks,
		Hasher:     passwords.NewHasher(passwords.SchemeSHA256),
		Activities: env.activities,
		Config:     AuthConfig{TokenSecret: testSecret, TokenExpiry: time.Hour, Issuer: "test"},
	})
	env.enrollments = NewEnrollmentService(EnrollmentServiceParams{
		Rows:       env.rows,
		Courses:    env.courses,
		Users:      env.users,
		Activities: env.activities,
		Events:     env.events,
	})
	env.userSvc = NewUserService(UserServiceParams{
		Repo:        env.users,
		Enrollments: env.enrollments,
		Sessions:    env.sessionRepo,
		Locks:       env.locks,
		Activities:  env.activities,
	})
	env.courseSvc = NewCourseService(CourseServiceParams{
		Repo:        env.courses,
		Enrollments: env.enrollments,
		Records:     []CourseRecords{env.attendance, env.results},
		Activities:  env.activities,
		Events:      env.events,
	})
	env.attendSvc = NewAttendanceService(env.attendance, env.rows, env.courses, env.events, nil, nil)
	env.resultSvc = NewResultService(env.results, env.rows, env.courses, env.events, nil, nil)
	return env
}

func (e *testEnv) addUser(t *testing.T, id, username string, role models.UserRole, password string) models.User {
	t.Helper()
	user := models.User{
		ID:       id,
		Username: username,
		Email:    username + "@example.com",
		Role:     role,
		Status:   models.StatusActive,
		Password: password,
	}
	require.NoError(t, e.users.Create(context.Background(), &user))
	return user
}

func (e *testEnv) addCourse(t *testing.T, id, code, teacher string) models.Course {
	t.Helper()
	course := models.Course{ID: id, Name: code + " course", Code: code, Teacher: teacher, Status: models.CourseActive}
	require.NoError(t, e.courses.Create(context.Background(), &course))
	return course
}

func (e *testEnv) actions(t *testing.T) []string {
	t.Helper()
	acts, err := e.activityLog.All(context.Background())
	require.NoError(t, err)
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Action
	}
	return out
}
