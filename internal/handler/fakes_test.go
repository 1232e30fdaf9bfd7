package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/internal/middleware"
	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/service"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(body io.Reader) responseEnvelope {
	var env responseEnvelope
	_ = json.NewDecoder(body).Decode(&env)
	return env
}

func performRequest(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// tokenAuth accepts tokens of the form "role:username:id".
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, token string) (*models.JWTClaims, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return nil, appErrors.ErrUnauthorized
	}
	return &models.JWTClaims{SessionID: "sess-" + parts[2], UserID: parts[2], Username: parts[1], Role: models.UserRole(parts[0])}, nil
}

func bearer(req *http.Request, role models.UserRole, username, id string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+string(role)+":"+username+":"+id)
	return req
}

type fakeAuth struct {
	loginReq   models.LoginRequest
	loginErr   error
	loggedOut  string
	changedFor string
}

func (f *fakeAuth) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.loginReq = req
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &models.LoginResponse{Token: "tok", Redirect: "/" + string(req.Role)}, nil
}

func (f *fakeAuth) SetInitialPassword(_ context.Context, req models.SetPasswordRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{Token: "tok"}, nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, userID string, _ models.ChangePasswordRequest) error {
	f.changedFor = userID
	return nil
}

func (f *fakeAuth) Logout(_ context.Context, sessionID string) error {
	f.loggedOut = sessionID
	return nil
}

func (f *fakeAuth) Me(_ context.Context, userID string) (*models.UserView, error) {
	return &models.UserView{ID: userID}, nil
}

type fakeUsers struct {
	lastActor  string
	lastFilter models.UserFilter
}

func (f *fakeUsers) List(_ context.Context, filter models.UserFilter) ([]models.UserView, *models.Pagination, error) {
	f.lastFilter = filter
	return []models.UserView{{ID: "1"}}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*models.UserView, error) {
	if id == "ghost" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	return &models.UserView{ID: id}, nil
}

func (f *fakeUsers) Create(_ context.Context, actor string, req models.CreateUserRequest) (*models.UserView, error) {
	f.lastActor = actor
	return &models.UserView{ID: "9", Username: req.Username}, nil
}

func (f *fakeUsers) Update(_ context.Context, actor, id string, req models.UpdateUserRequest) (*models.UserView, error) {
	f.lastActor = actor
	return &models.UserView{ID: id, Username: req.Username}, nil
}

func (f *fakeUsers) UpdateStatus(_ context.Context, actor, id string, req models.UpdateUserStatusRequest) (*models.UserView, error) {
	return &models.UserView{ID: id, Status: req.Status}, nil
}

func (f *fakeUsers) Delete(_ context.Context, actor, id string) error {
	f.lastActor = actor
	return nil
}

type fakeCourses struct{}

func (fakeCourses) List(context.Context, models.CourseFilter) ([]models.Course, error) {
	return []models.Course{{ID: "1", Code: "MATH101"}}, nil
}

func (fakeCourses) Get(_ context.Context, id string) (*models.Course, error) {
	if id != "1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	return &models.Course{ID: "1", Code: "MATH101"}, nil
}

func (fakeCourses) Create(_ context.Context, _ string, req models.CreateCourseRequest) (*models.Course, error) {
	return &models.Course{ID: "2", Code: req.Code}, nil
}

func (fakeCourses) Update(_ context.Context, _, id string, _ models.UpdateCourseRequest) (*models.Course, error) {
	return &models.Course{ID: id}, nil
}

func (fakeCourses) Delete(context.Context, string, string) error { return nil }

func (fakeCourses) Reconcile(context.Context) (int, error) { return 2, nil }

type fakeEnrollments struct {
	unenrolled [2]string
}

func (f *fakeEnrollments) List(context.Context, models.EnrollmentFilter) ([]models.EnrolledStudent, error) {
	return nil, nil
}

func (f *fakeEnrollments) Roster(_ context.Context, courseID string) ([]models.EnrolledStudent, error) {
	return []models.EnrolledStudent{{ID: "s1", CourseID: courseID}}, nil
}

func (f *fakeEnrollments) Enroll(_ context.Context, _ string, req models.EnrollRequest) (*models.EnrolledStudent, error) {
	return &models.EnrolledStudent{ID: req.StudentID, CourseID: req.CourseID}, nil
}

func (f *fakeEnrollments) Unenroll(_ context.Context, _ string, studentID, courseID string) (bool, error) {
	f.unenrolled = [2]string{studentID, courseID}
	return false, nil
}

type fakeAttendance struct{}

func (fakeAttendance) Day(_ context.Context, courseID, date string) (*models.AttendanceDay, error) {
	return &models.AttendanceDay{CourseID: courseID, Date: date}, nil
}

func (fakeAttendance) Save(_ context.Context, courseID, date string, _ models.SaveAttendanceRequest) (*models.AttendanceDay, error) {
	return &models.AttendanceDay{CourseID: courseID, Date: date, Saved: true}, nil
}

func (fakeAttendance) StudentSummary(context.Context, string) ([]models.AttendanceSummary, error) {
	return []models.AttendanceSummary{}, nil
}

type fakeResults struct{}

func (fakeResults) Sheet(_ context.Context, courseID, assessment string) (*models.ResultSheet, error) {
	return &models.ResultSheet{CourseID: courseID, Assessment: assessment}, nil
}

func (fakeResults) Save(_ context.Context, courseID, assessment string, _ models.SaveResultsRequest) (*models.ResultSheet, error) {
	return &models.ResultSheet{CourseID: courseID, Assessment: assessment}, nil
}

func (fakeResults) StudentResults(context.Context, string) ([]models.StudentResult, error) {
	return []models.StudentResult{}, nil
}

type fakeLocks struct {
	lock       *models.ActiveLock
	lastActor  string
	lastToken  string
	lastReason string
	err        error
}

func (f *fakeLocks) Get(context.Context, models.UserRole) (*models.ActiveLock, error) {
	return f.lock, f.err
}

func (f *fakeLocks) Transfer(_ context.Context, _ models.UserRole, actor string, targetID string) (*models.ActiveLock, error) {
	f.lastActor = actor
	return &models.ActiveLock{ID: targetID}, f.err
}

func (f *fakeLocks) Revoke(_ context.Context, _ models.UserRole, actor string) error {
	f.lastActor = actor
	return f.err
}

func (f *fakeLocks) ForceRelease(_ context.Context, _ models.UserRole, token, reason string) (*models.ActiveLock, error) {
	f.lastToken = token
	f.lastReason = reason
	if token != "ops" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid override token")
	}
	return f.lock, nil
}

type fakeDashboard struct {
	hit         bool
	lastTeacher string
	lastStudent string
}

func (f *fakeDashboard) Admin(context.Context) (*dto.AdminDashboardResponse, bool, error) {
	return &dto.AdminDashboardResponse{TotalStudents: 5}, f.hit, nil
}

func (f *fakeDashboard) Teacher(_ context.Context, username string) (*dto.TeacherDashboardResponse, bool, error) {
	f.lastTeacher = username
	return &dto.TeacherDashboardResponse{Teacher: username}, f.hit, nil
}

func (f *fakeDashboard) Student(_ context.Context, studentID string) (*dto.StudentDashboardResponse, bool, error) {
	f.lastStudent = studentID
	return &dto.StudentDashboardResponse{StudentID: studentID}, f.hit, nil
}

type fakeActivities struct{ limit int }

func (f *fakeActivities) Recent(_ context.Context, limit int) ([]models.Activity, error) {
	f.limit = limit
	return []models.Activity{{Action: "Loaded demo data"}}, nil
}

type fakeReports struct {
	download  *service.ReportDownload
	actor     string
	kind      models.ReportKind
	statusErr error
}

func (f *fakeReports) Preview(_ context.Context, kind models.ReportKind, _, _ string) (*dto.ReportPreviewResponse, error) {
	f.kind = kind
	return &dto.ReportPreviewResponse{Kind: kind}, nil
}

func (f *fakeReports) CreateJob(_ context.Context, _ dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	f.actor = actorID
	return &dto.ReportJobResponse{ID: "job-1", Status: models.ReportStatusQueued}, nil
}

func (f *fakeReports) GetStatus(_ context.Context, id string, _ string, _ models.UserRole) (*dto.ReportStatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &dto.ReportStatusResponse{ID: id, Status: models.ReportStatusFinished}, nil
}

func (f *fakeReports) ResolveDownload(_ context.Context, token string) (*service.ReportDownload, error) {
	if f.download == nil || token != "good" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	return f.download, nil
}

type fakeSystem struct {
	readyErr error
	resetBy  string
}

func (f *fakeSystem) Snapshot(context.Context, string) (*dto.SystemSnapshot, error) {
	return &dto.SystemSnapshot{GeneratedAt: time.Now()}, nil
}

func (f *fakeSystem) Reset(_ context.Context, actor string) error {
	f.resetBy = actor
	return nil
}

func (f *fakeSystem) Seed(context.Context) (bool, error) { return true, nil }

func (f *fakeSystem) Ready(context.Context) error { return f.readyErr }

type fakeMetrics struct{}

func (fakeMetrics) Snapshot() dto.SystemMetrics { return dto.SystemMetrics{RequestsTotal: 3} }

type fakeDeps struct {
	auth       *fakeAuth
	users      *fakeUsers
	enroll     *fakeEnrollments
	locks      *fakeLocks
	dashboard  *fakeDashboard
	activities *fakeActivities
	reports    *fakeReports
	system     *fakeSystem
	bus        *eventbus.Bus
}

func newTestRouter() (*gin.Engine, *fakeDeps) {
	gin.SetMode(gin.TestMode)
	deps := &fakeDeps{
		auth:       &fakeAuth{},
		users:      &fakeUsers{},
		enroll:     &fakeEnrollments{},
		locks:      &fakeLocks{},
		dashboard:  &fakeDashboard{},
		activities: &fakeActivities{},
		reports:    &fakeReports{},
		system:     &fakeSystem{},
		bus:        eventbus.New(eventbus.Options{}),
	}
	h := Handlers{
		Auth:        NewAuthHandler(deps.auth),
		Users:       NewUserHandler(deps.users),
		Courses:     NewCourseHandler(fakeCourses{}, deps.enroll),
		Enrollments: NewEnrollmentHandler(deps.enroll),
		Attendance:  NewAttendanceHandler(fakeAttendance{}),
		Results:     NewResultHandler(fakeResults{}),
		Locks:       NewLockHandler(deps.locks),
		Dashboard:   NewDashboardHandler(deps.dashboard),
		Activities:  NewActivityHandler(deps.activities),
		Reports:     NewReportHandler(deps.reports),
		System:      NewSystemHandler(deps.system, fakeMetrics{}),
		Events:      NewEventsHandler(deps.bus, nil, zap.NewNop()),
	}
	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	Register(router.Group("/api/v1"), h, tokenAuth{}, zap.NewNop())
	return router, deps
}
