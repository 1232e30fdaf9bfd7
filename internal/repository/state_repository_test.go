package repository

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

func TestAttendanceReplaceDayKeepsOtherDates(t *testing.T) {
	repo := NewAttendanceRepository(kvstore.NewMemoryStore(), 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceDay(ctx, "1", "2024-05-01", []models.AttendanceRecord{
		{Date: "2024-05-01", StudentID: "s1", Status: models.AttendancePresent},
		{Date: "2024-05-01", StudentID: "s2", Status: models.AttendanceAbsent},
	}))
	require.NoError(t, repo.ReplaceDay(ctx, "1", "2024-05-02", []models.AttendanceRecord{
		{Date: "2024-05-02", StudentID: "s1", Status: models.AttendancePresent},
	}))
	require.NoError(t, repo.ReplaceDay(ctx, "1", "2024-05-01", []models.AttendanceRecord{
		{Date: "2024-05-01", StudentID: "s1", Status: models.AttendanceAbsent},
	}))

	records, err := repo.ForCourse(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, rec := range records {
		if rec.Date == "2024-05-01" {
			assert.Equal(t, models.AttendanceAbsent, rec.Status)
		}
	}

	require.NoError(t, repo.DeleteCourse(ctx, "1"))
	require.NoError(t, repo.DeleteCourse(ctx, "1"))
	records, err = repo.ForCourse(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestResultReplaceAssessment(t *testing.T) {
	repo := NewResultRepository(kvstore.NewMemoryStore(), 0)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceAssessment(ctx, "1", "midterm", []models.ResultEntry{{ID: "s1", Name: "Alice Johnson", Marks: "85"}}))
	require.NoError(t, repo.ReplaceAssessment(ctx, "1", "final", []models.ResultEntry{{ID: "s1", Name: "Alice Johnson", Marks: "95"}}))
	require.NoError(t, repo.ReplaceAssessment(ctx, "1", "midterm", []models.ResultEntry{{ID: "s2", Name: "Bob Smith", Marks: ""}}))

	byAssessment, err := repo.ForCourse(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, byAssessment, 2)
	require.Len(t, byAssessment["midterm"], 1)
	assert.Equal(t, "s2", byAssessment["midterm"][0].ID)
}

func TestActivityRepositoryCapsAndOrders(t *testing.T) {
	repo := NewActivityRepository(kvstore.NewMemoryStore(), 0, 3)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Append(ctx, models.Activity{ID: strconv.Itoa(i), Timestamp: int64(i)}))
	}

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)

	recent, err := repo.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "5", recent[0].ID)
	assert.Equal(t, "4", recent[1].ID)
}

func TestSystemRepositorySnapshotAndPurge(t *testing.T) {
	store := kvstore.NewMemoryStore()
	repo := NewSystemRepository(store)
	ctx := context.Background()

	empty, err := repo.Empty(ctx, DataKeys)
	require.NoError(t, err)
	assert.True(t, empty)

	_, err = store.Put(ctx, KeyUsers, []byte(`[{"id":"1"}]`), kvstore.AnyRevision)
	require.NoError(t, err)
	_, err = store.Put(ctx, KeyActiveAdmin, []byte(`not-json`), kvstore.AnyRevision)
	require.NoError(t, err)

	snap, err := repo.Snapshot(ctx, DataKeys)
	require.NoError(t, err)
	assert.Len(t, snap, 2)
	assert.JSONEq(t, `[{"id":"1"}]`, string(snap[KeyUsers]))
	assert.JSONEq(t, `"not-json"`, string(snap[KeyActiveAdmin]))

	require.NoError(t, repo.Purge(ctx, DataKeys))
	empty, err = repo.Empty(ctx, DataKeys)
	require.NoError(t, err)
	assert.True(t, empty)
}
