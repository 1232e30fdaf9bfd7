package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

func TestEnrollAndUnenrollRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.addUser(t, "alice-id", "alice", models.RoleStudent, "")

	course, err := env.courseSvc.Create(ctx, "mikeadmin", models.CreateCourseRequest{Name: "Mathematics", Code: "MATH101", Teacher: "sarah"})
	require.NoError(t, err)
	assert.Equal(t, 0, course.Students)

	row, err := env.enrollments.Enroll(ctx, "mikeadmin", models.EnrollRequest{StudentID: alice.ID, CourseID: course.ID})
	require.NoError(t, err)
	assert.Equal(t, "alice", row.Name)
	assert.Equal(t, "Mathematics", row.CourseName)

	stored, err := env.courses.FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Students)
	rows, err := env.enrollments.Roster(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, alice.ID, rows[0].ID)

	removed, err := env.enrollments.Unenroll(ctx, "mikeadmin", alice.ID, course.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	stored, err = env.courses.FindByID(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Students)
	rows, err = env.enrollments.Roster(ctx, course.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Contains(t, env.actions(t), "Enrolled alice (id:alice-id) to Mathematics")
	assert.Contains(t, env.actions(t), "unenroll")
	assert.Contains(t, env.events.topics(), eventbus.TopicEnrollment)
	assert.Contains(t, env.events.topics(), eventbus.TopicCourses)
}

func TestEnrollRejectsDuplicatePair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")

	_, err := env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)

	_, err = env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, err.Error(), "already enrolled")

	course, err := env.courses.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, course.Students)
}

func TestEnrollRejectsNonStudent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "t1", "sarah", models.RoleTeacher, "")
	env.addCourse(t, "c1", "MATH101", "sarah")

	_, err := env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "t1", CourseID: "c1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "missing", CourseID: "c1"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestEnrollUnknownCourse(t *testing.T) {
	env := newTestEnv(t)
	env.addUser(t, "s1", "alice", models.RoleStudent, "")

	_, err := env.enrollments.Enroll(context.Background(), "admin", models.EnrollRequest{StudentID: "s1", CourseID: "nope"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestUnenrollNoOp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCourse(t, "c1", "MATH101", "sarah")

	removed, err := env.enrollments.Unenroll(ctx, "admin", "ghost", "c1")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Empty(t, env.actions(t))
	assert.Empty(t, env.events.topics())
}

func TestUnenrollFloorsCountAtZero(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCourse(t, "c1", "MATH101", "sarah")
	require.NoError(t, env.rows.ReplaceAll(ctx, []models.EnrolledStudent{
		{ID: "s1", Name: "alice", CourseID: "c1", CourseName: "MATH101 course"},
	}))

	removed, err := env.enrollments.Unenroll(ctx, "admin", "s1", "c1")
	require.NoError(t, err)
	assert.True(t, removed)

	course, err := env.courses.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, course.Students)
}

func TestDeletingStudentCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	env.addCourse(t, "c2", "PHY201", "sarah")
	for _, id := range []string{"c1", "c2"} {
		_, err := env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "s1", CourseID: id})
		require.NoError(t, err)
	}

	require.NoError(t, env.userSvc.Delete(ctx, "admin", "s1"))

	rows, err := env.enrollments.List(ctx, models.EnrollmentFilter{StudentID: "s1"})
	require.NoError(t, err)
	assert.Empty(t, rows)
	for _, id := range []string{"c1", "c2"} {
		course, err := env.courses.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, course.Students)
	}
	assert.Contains(t, env.actions(t), "Deleted user: alice (student)")
}

func TestRenamingCourseUpdatesEnrollments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	_, err := env.enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "s1", CourseID: "c1"})
	require.NoError(t, err)

	name := "Algebra"
	_, err = env.courseSvc.Update(ctx, "admin", "c1", models.UpdateCourseRequest{Name: &name})
	require.NoError(t, err)

	rows, err := env.enrollments.Roster(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Algebra", rows[0].CourseName)
}

func TestReconcileRepairsCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCourse(t, "c1", "MATH101", "sarah")
	require.NoError(t, env.rows.ReplaceAll(ctx, []models.EnrolledStudent{
		{ID: "s1", CourseID: "c1"},
		{ID: "s2", CourseID: "c1"},
	}))

	changed, err := env.courseSvc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	course, err := env.courses.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, course.Students)
}

type slowCountRows struct {
	*repository.EnrollmentRepository
	during func()
}

func (r slowCountRows) CountByCourse(ctx context.Context) (map[string]int, error) {
	counts, err := r.EnrollmentRepository.CountByCourse(ctx)
	r.during()
	return counts, err
}

func TestReconcileDoesNotLoseConcurrentEnroll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")

	done := make(chan error, 1)
	var enrollments *EnrollmentService
	enrollments = NewEnrollmentService(EnrollmentServiceParams{
		Rows: slowCountRows{EnrollmentRepository: env.rows, during: func() {
			go func() {
				_, err := enrollments.Enroll(ctx, "admin", models.EnrollRequest{StudentID: "s1", CourseID: "c1"})
				done <- err
			}()
			time.Sleep(20 * time.Millisecond)
		}},
		Courses: env.courses,
		Users:   env.users,
	})

	_, err := enrollments.ReconcileCounts(ctx)
	require.NoError(t, err)
	require.NoError(t, <-done)

	course, err := env.courses.FindByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, course.Students)
}
