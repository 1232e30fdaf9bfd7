package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/middleware"
	"github.com/noah-isme/edumatrix-api/internal/models"
)

// Handlers groups every endpoint handler mounted under the API prefix.
type Handlers struct {
	Auth        *AuthHandler
	Users       *UserHandler
	Courses     *CourseHandler
	Enrollments *EnrollmentHandler
	Attendance  *AttendanceHandler
	Results     *ResultHandler
	Locks       *LockHandler
	Dashboard   *DashboardHandler
	Activities  *ActivityHandler
	Reports     *ReportHandler
	System      *SystemHandler
	Events      *EventsHandler
}

var (
	admin = string(models.RoleAdmin)
	staff = []string{string(models.RoleAdmin), string(models.RoleTeacher)}
)

// Register mounts the API routes on api. Every route other than login and
// set-password requires a session from auth.
func Register(api *gin.RouterGroup, h Handlers, auth middleware.Authenticator, logger *zap.Logger) {
	api.POST("/auth/login", h.Auth.Login)
	api.POST("/auth/set-password", h.Auth.SetPassword)
	api.POST("/locks/:role/force-release", middleware.Audit(logger, "locks"), h.Locks.ForceRelease)

	// Browsers cannot attach headers to WebSocket upgrades or download links.
	api.GET("/events", middleware.JWTQuery(auth), h.Events.Stream)
	api.GET("/reports/download", middleware.JWTQuery(auth), middleware.RBAC(staff...), h.Reports.Download)

	secured := api.Group("", middleware.JWT(auth))

	account := secured.Group("/auth")
	account.POST("/logout", h.Auth.Logout)
	account.POST("/change-password", h.Auth.ChangePassword)
	account.GET("/me", h.Auth.Me)

	users := secured.Group("/users", middleware.RBAC(admin), middleware.Audit(logger, "users"))
	users.GET("", h.Users.List)
	users.POST("", h.Users.Create)
	users.GET("/:id", h.Users.Get)
	users.PUT("/:id", h.Users.Update)
	users.PATCH("/:id/status", h.Users.UpdateStatus)
	users.DELETE("/:id", h.Users.Delete)

	courses := secured.Group("/courses", middleware.Audit(logger, "courses"))
	courses.GET("", h.Courses.List)
	courses.GET("/:id", h.Courses.Get)
	courses.GET("/:id/students", h.Courses.Students)
	courses.POST("", middleware.RBAC(admin), h.Courses.Create)
	courses.POST("/reconcile", middleware.RBAC(admin), h.Courses.Reconcile)
	courses.PUT("/:id", middleware.RBAC(admin), h.Courses.Update)
	courses.DELETE("/:id", middleware.RBAC(admin), h.Courses.Delete)
	courses.GET("/:id/attendance", middleware.RBAC(staff...), h.Attendance.Day)
	courses.PUT("/:id/attendance", middleware.RBAC(staff...), h.Attendance.Save)
	courses.GET("/:id/results/:assessment", middleware.RBAC(staff...), h.Results.Sheet)
	courses.PUT("/:id/results/:assessment", middleware.RBAC(staff...), h.Results.Save)

	enrollments := secured.Group("/enrollments", middleware.RBAC(admin), middleware.Audit(logger, "enrollments"))
	enrollments.GET("", h.Enrollments.List)
	enrollments.POST("", h.Enrollments.Enroll)
	enrollments.DELETE("", h.Enrollments.Unenroll)

	students := secured.Group("/students/:id", middleware.RBAC(append(staff, middleware.Self)...))
	students.GET("/attendance", h.Attendance.Student)
	students.GET("/results", h.Results.Student)

	locks := secured.Group("/locks/:role", middleware.RBAC(staff...), middleware.Audit(logger, "locks"))
	locks.GET("", h.Locks.Get)
	locks.POST("/transfer", h.Locks.Transfer)
	locks.POST("/revoke", h.Locks.Revoke)

	dashboard := secured.Group("/dashboard", middleware.WithResponseMeta())
	dashboard.GET("/admin", middleware.RBAC(admin), h.Dashboard.Admin)
	dashboard.GET("/teacher", middleware.RBAC(staff...), h.Dashboard.Teacher)
	dashboard.GET("/student", middleware.RBAC(admin, string(models.RoleTeacher), string(models.RoleStudent)), h.Dashboard.Student)

	secured.GET("/activities", middleware.RBAC(admin), h.Activities.List)

	reports := secured.Group("/reports", middleware.RBAC(staff...))
	reports.GET("/:id", h.Reports.Status)
	// Preview shares the :id wildcard with Status; the segment is the report kind.
	reports.GET("/:id/preview", h.Reports.Preview)
	reports.POST("", h.Reports.Create)

	system := secured.Group("/system", middleware.RBAC(admin), middleware.Audit(logger, "system"))
	system.GET("/snapshot", h.System.Snapshot)
	system.GET("/metrics", h.System.Metrics)
	system.POST("/reset", h.System.Reset)
	system.POST("/seed", h.System.Seed)
}
