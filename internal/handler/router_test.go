package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/service"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRoutesRequireSession(t *testing.T) {
	router, _ := newTestRouter()

	for _, target := range []string{"/api/v1/auth/me", "/api/v1/courses", "/api/v1/dashboard/admin", "/api/v1/reports/download?token=good"} {
		resp := performRequest(router, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusUnauthorized, resp.Code, target)
	}
}

func TestRoleGuards(t *testing.T) {
	router, _ := newTestRouter()

	cases := []struct {
		name   string
		req    *http.Request
		role   models.UserRole
		id     string
		status int
	}{
		{"users admin only", httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), models.RoleTeacher, "2", http.StatusForbidden},
		{"users admin", httptest.NewRequest(http.MethodGet, "/api/v1/users", nil), models.RoleAdmin, "1", http.StatusOK},
		{"courses for everyone", httptest.NewRequest(http.MethodGet, "/api/v1/courses", nil), models.RoleStudent, "3", http.StatusOK},
		{"course create admin only", jsonRequest(http.MethodPost, "/api/v1/courses", `{"name":"Bio","code":"BIO1","teacher":"sarah"}`), models.RoleTeacher, "2", http.StatusForbidden},
		{"attendance staff", httptest.NewRequest(http.MethodGet, "/api/v1/courses/1/attendance?date=2024-05-01", nil), models.RoleTeacher, "2", http.StatusOK},
		{"attendance not students", httptest.NewRequest(http.MethodGet, "/api/v1/courses/1/attendance", nil), models.RoleStudent, "3", http.StatusForbidden},
		{"own transcript", httptest.NewRequest(http.MethodGet, "/api/v1/students/3/results", nil), models.RoleStudent, "3", http.StatusOK},
		{"other transcript", httptest.NewRequest(http.MethodGet, "/api/v1/students/4/results", nil), models.RoleStudent, "3", http.StatusForbidden},
		{"activities admin only", httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil), models.RoleTeacher, "2", http.StatusForbidden},
		{"reports not students", jsonRequest(http.MethodPost, "/api/v1/reports", `{"kind":"system","format":"csv"}`), models.RoleStudent, "3", http.StatusForbidden},
		{"system admin only", httptest.NewRequest(http.MethodPost, "/api/v1/system/reset", nil), models.RoleTeacher, "2", http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := performRequest(router, bearer(tc.req, tc.role, "user"+tc.id, tc.id))
			assert.Equal(t, tc.status, resp.Code, resp.Body.String())
		})
	}
}

func TestLoginIsPublic(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{"username":"mikeadmin","password":"x","role":"admin"}`))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "mikeadmin", deps.auth.loginReq.Username)
	assert.Contains(t, resp.Body.String(), `"redirect":"/admin"`)

	resp = performRequest(router, jsonRequest(http.MethodPost, "/api/v1/auth/login", `{`))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(resp.Body).Error.Code)
}

func TestLogoutUsesSession(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), models.RoleTeacher, "sarah", "2"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "sess-2", deps.auth.loggedOut)

	resp = performRequest(router, bearer(jsonRequest(http.MethodPost, "/api/v1/auth/change-password", `{"oldPassword":"a","newPassword":"b"}`), models.RoleTeacher, "sarah", "2"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "2", deps.auth.changedFor)
}

func TestUserRoutesPassActorAndFilters(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/users?role=Teacher&status=inactive&page_size=5&search=sa", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	require.NotNil(t, deps.users.lastFilter.Role)
	assert.Equal(t, models.RoleTeacher, *deps.users.lastFilter.Role)
	require.NotNil(t, deps.users.lastFilter.Status)
	assert.Equal(t, 5, deps.users.lastFilter.PageSize)
	assert.Equal(t, 1, decode(resp.Body).Pagination.TotalCount)

	resp = performRequest(router, bearer(jsonRequest(http.MethodPost, "/api/v1/users", `{"username":"new","email":"n@example.com","role":"student"}`), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "mikeadmin", deps.users.lastActor)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/users/ghost", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", decode(resp.Body).Error.Code)
}

func TestCourseRoutes(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/courses/1/students", nil), models.RoleTeacher, "sarah", "2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"courseId":"1"`)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/courses/404/students", nil), models.RoleTeacher, "sarah", "2"))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/courses/reconcile", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"updated":2}`, string(decode(resp.Body).Data))

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodDelete, "/api/v1/enrollments?studentId=s1&courseId=1", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, [2]string{"s1", "1"}, deps.enroll.unenrolled)
	assert.JSONEq(t, `{"removed":false}`, string(decode(resp.Body).Data))
}

func TestLockRoutes(t *testing.T) {
	router, deps := newTestRouter()
	deps.locks.lock = &models.ActiveLock{ID: "1", Username: "mikeadmin"}

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/locks/teacher", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/locks/admin", nil), models.RoleTeacher, "sarah", "2"))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(router, bearer(jsonRequest(http.MethodPost, "/api/v1/locks/teacher/transfer", `{"targetUserId":"3"}`), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(router, bearer(jsonRequest(http.MethodPost, "/api/v1/locks/admin/transfer", `{"targetUserId":"7"}`), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "mikeadmin", deps.locks.lastActor)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/locks/student", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestForceReleaseUsesOpsToken(t *testing.T) {
	router, deps := newTestRouter()
	deps.locks.lock = &models.ActiveLock{ID: "1", Username: "mikeadmin"}

	req := jsonRequest(http.MethodPost, "/api/v1/locks/admin/force-release", `{"reason":"holder left"}`)
	req.Header.Set(OpsTokenHeader, "ops")
	resp := performRequest(router, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "holder left", deps.locks.lastReason)
	assert.Contains(t, resp.Body.String(), `"username":"mikeadmin"`)

	resp = performRequest(router, httptest.NewRequest(http.MethodPost, "/api/v1/locks/admin/force-release", nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, deps.locks.lastToken)
}

func TestDashboardRoutes(t *testing.T) {
	router, deps := newTestRouter()
	deps.dashboard.hit = true

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/admin", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	env := decode(resp.Body)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	assert.Equal(t, "true", resp.Header().Get("X-Cache-Hit"))

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/teacher", nil), models.RoleTeacher, "sarahteacher", "2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "sarahteacher", deps.dashboard.lastTeacher)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/teacher", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/student?studentId=other", nil), models.RoleStudent, "johnsmith", "3"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "3", deps.dashboard.lastStudent)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/dashboard/admin", nil), models.RoleStudent, "johnsmith", "3"))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestActivitiesDefaultLimit(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, defaultActivityLimit, deps.activities.limit)

	performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/activities?limit=5", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, 5, deps.activities.limit)
}

func TestReportRoutes(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(jsonRequest(http.MethodPost, "/api/v1/reports", `{"kind":"attendance","format":"csv","courseId":"1"}`), models.RoleTeacher, "sarah", "2"))
	require.Equal(t, http.StatusAccepted, resp.Code)
	assert.Equal(t, "2", deps.reports.actor)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/reports/Results/preview", nil), models.RoleTeacher, "sarah", "2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, models.ReportResults, deps.reports.kind)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/reports/job-1", nil), models.RoleTeacher, "sarah", "2"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"FINISHED"`)
}

func TestReportDownloadStreamsFile(t *testing.T) {
	router, deps := newTestRouter()
	body := "Student,Status\nalice,present\n"
	deps.reports.download = &service.ReportDownload{
		Reader:      io.NopCloser(strings.NewReader(body)),
		Size:        int64(len(body)),
		Filename:    "attendance.csv",
		ContentType: "text/csv",
	}

	resp := performRequest(router, httptest.NewRequest(http.MethodGet, "/api/v1/reports/download?token=good&access_token=teacher:sarah:2", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, body, resp.Body.String())
	assert.Equal(t, "text/csv", resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "attendance.csv")

	resp = performRequest(router, httptest.NewRequest(http.MethodGet, "/api/v1/reports/download?token=bad&access_token=teacher:sarah:2", nil))
	assert.Equal(t, http.StatusForbidden, resp.Code)

	resp = performRequest(router, httptest.NewRequest(http.MethodGet, "/api/v1/reports/download?access_token=teacher:sarah:2", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSystemRoutes(t *testing.T) {
	router, deps := newTestRouter()

	resp := performRequest(router, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/system/reset", nil), models.RoleAdmin, "mikeadmin", "1"))
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, "mikeadmin", deps.system.resetBy)

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodPost, "/api/v1/system/seed", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"seeded":true}`, string(decode(resp.Body).Data))

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/system/metrics", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal(decode(resp.Body).Data, &metrics))
	assert.EqualValues(t, 3, metrics["requestsTotal"])

	resp = performRequest(router, bearer(httptest.NewRequest(http.MethodGet, "/api/v1/system/snapshot", nil), models.RoleAdmin, "mikeadmin", "1"))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Get("Content-Disposition"), "snapshot")
}

func TestEventsStream(t *testing.T) {
	router, deps := newTestRouter()
	defer deps.bus.Close()
	srv := httptest.NewServer(router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?access_token=student:johnsmith:3", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The subscription starts after the upgrade, so keep publishing until
	// the first event arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				deps.bus.Publish(context.Background(), eventbus.TopicCourses, "courses")
			}
		}
	}()

	var ev eventbus.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, eventbus.TopicCourses, ev.Topic)
	assert.Equal(t, "courses", ev.Key)
}
