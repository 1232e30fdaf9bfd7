package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
)

func enrollAll(t *testing.T, env *testEnv, courseID string, studentIDs ...string) {
	t.Helper()
	for _, id := range studentIDs {
		_, err := env.enrollments.Enroll(context.Background(), "admin", models.EnrollRequest{StudentID: id, CourseID: courseID})
		require.NoError(t, err)
	}
}

func TestAttendanceSaveReplacesDay(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addUser(t, "s2", "bob", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	enrollAll(t, env, "c1", "s1", "s2")

	day, err := env.attendSvc.Day(ctx, "c1", "2024-05-01")
	require.NoError(t, err)
	assert.False(t, day.Saved)
	require.Len(t, day.Rows, 2)
	assert.Nil(t, day.Rows[0].Status)

	day, err = env.attendSvc.Save(ctx, "c1", "2024-05-01", models.SaveAttendanceRequest{Records: []models.AttendanceMark{
		{StudentID: "s1", Status: models.AttendancePresent},
		{StudentID: "s2", Status: models.AttendanceAbsent},
		{StudentID: "s1", Status: models.AttendanceAbsent},
	}})
	require.NoError(t, err)
	assert.True(t, day.Saved)

	records, err := env.attendance.ForCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = env.attendSvc.Save(ctx, "c1", "2024-05-01", models.SaveAttendanceRequest{Records: []models.AttendanceMark{
		{StudentID: "s2", Status: models.AttendancePresent},
	}})
	require.NoError(t, err)
	_, err = env.attendSvc.Save(ctx, "c1", "2024-05-02", models.SaveAttendanceRequest{Records: []models.AttendanceMark{
		{StudentID: "s1", Status: models.AttendancePresent},
	}})
	require.NoError(t, err)

	records, err = env.attendance.ForCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	day, err = env.attendSvc.Day(ctx, "c1", "2024-05-01")
	require.NoError(t, err)
	for _, row := range day.Rows {
		if row.StudentID == "s2" {
			require.NotNil(t, row.Status)
			assert.Equal(t, models.AttendancePresent, *row.Status)
		} else {
			assert.Nil(t, row.Status)
		}
	}
}

func TestAttendanceValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	enrollAll(t, env, "c1", "s1")

	_, err := env.attendSvc.Save(ctx, "c1", "05/01/2024", models.SaveAttendanceRequest{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = env.attendSvc.Save(ctx, "c1", "2024-05-01", models.SaveAttendanceRequest{Records: []models.AttendanceMark{
		{StudentID: "s1", Status: "late"},
	}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = env.attendSvc.Save(ctx, "c1", "2024-05-01", models.SaveAttendanceRequest{Records: []models.AttendanceMark{
		{StudentID: "stranger", Status: models.AttendancePresent},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enrolled")

	_, err = env.attendSvc.Day(ctx, "missing", "2024-05-01")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestAttendanceDayDefaultsToToday(t *testing.T) {
	env := newTestEnv(t)
	env.addCourse(t, "c1", "MATH101", "sarah")
	env.attendSvc.now = func() time.Time { return time.Date(2024, 9, 2, 10, 0, 0, 0, time.Local) }

	day, err := env.attendSvc.Day(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "2024-09-02", day.Date)
	assert.Empty(t, day.Rows)
}

func TestAttendanceStudentSummary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	env.addCourse(t, "c2", "PHY201", "john")
	enrollAll(t, env, "c1", "s1")
	enrollAll(t, env, "c2", "s1")

	for _, d := range []struct {
		date   string
		status models.AttendanceStatus
	}{
		{"2024-05-01", models.AttendancePresent},
		{"2024-05-02", models.AttendancePresent},
		{"2024-05-03", models.AttendanceAbsent},
	} {
		_, err := env.attendSvc.Save(ctx, "c1", d.date, models.SaveAttendanceRequest{Records: []models.AttendanceMark{{StudentID: "s1", Status: d.status}}})
		require.NoError(t, err)
	}

	summary, err := env.attendSvc.StudentSummary(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, summary, 2)

	byCourse := map[string]models.AttendanceSummary{}
	for _, s := range summary {
		byCourse[s.CourseID] = s
	}
	math := byCourse["c1"]
	assert.Equal(t, 2, math.Present)
	assert.Equal(t, 1, math.Absent)
	require.NotNil(t, math.Percent)
	assert.Equal(t, 67, *math.Percent)
	assert.Equal(t, "MATH101 course", math.CourseName)
	assert.Nil(t, byCourse["c2"].Percent)
}

func TestResultSheetAndGrades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addUser(t, "s2", "bob", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	enrollAll(t, env, "c1", "s1", "s2")

	sheet, err := env.resultSvc.Save(ctx, "c1", "midterm", models.SaveResultsRequest{Entries: []models.ResultMark{
		{StudentID: "s1", Marks: " 92 "},
		{StudentID: "s2", Marks: "abs"},
	}})
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	for _, row := range sheet.Rows {
		switch row.StudentID {
		case "s1":
			assert.Equal(t, "92", row.Marks)
			assert.Equal(t, "A", row.Grade)
			require.NotNil(t, row.Percent)
		case "s2":
			assert.Equal(t, "abs", row.Marks)
			assert.Empty(t, row.Grade)
			assert.Nil(t, row.Percent)
		}
	}

	_, err = env.resultSvc.Save(ctx, "c1", "final", models.SaveResultsRequest{Entries: []models.ResultMark{
		{StudentID: "s1", Marks: "75"},
	}})
	require.NoError(t, err)

	transcript, err := env.resultSvc.StudentResults(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Equal(t, map[string]string{"final": "75", "midterm": "92"}, transcript[0].Assessments)
	require.NotNil(t, transcript[0].Average)
	assert.Equal(t, 84, *transcript[0].Average)
	assert.Equal(t, "B", transcript[0].Grade)

	transcript, err = env.resultSvc.StudentResults(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, transcript, 1)
	assert.Nil(t, transcript[0].Average)
}

func TestResultSaveOverwritesAssessment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "s1", "alice", models.RoleStudent, "")
	env.addUser(t, "s2", "bob", models.RoleStudent, "")
	env.addCourse(t, "c1", "MATH101", "sarah")
	enrollAll(t, env, "c1", "s1", "s2")

	_, err := env.resultSvc.Save(ctx, "c1", "quiz-1", models.SaveResultsRequest{Entries: []models.ResultMark{
		{StudentID: "s1", Marks: "50"},
		{StudentID: "s2", Marks: "60"},
	}})
	require.NoError(t, err)
	_, err = env.resultSvc.Save(ctx, "c1", "quiz-1", models.SaveResultsRequest{Entries: []models.ResultMark{
		{StudentID: "s2", Marks: "70"},
	}})
	require.NoError(t, err)

	book, err := env.results.ForCourse(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, book["quiz-1"], 1)
	assert.Equal(t, "70", book["quiz-1"][0].Marks)
	assert.Equal(t, "bob", book["quiz-1"][0].Name)
}

func TestResultValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addCourse(t, "c1", "MATH101", "sarah")

	_, err := env.resultSvc.Sheet(ctx, "c1", "bad key!")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = env.resultSvc.Sheet(ctx, "missing", "midterm")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = env.resultSvc.Save(ctx, "c1", "midterm", models.SaveResultsRequest{Entries: []models.ResultMark{{StudentID: "ghost", Marks: "1"}}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
