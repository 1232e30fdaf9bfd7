package repository

import "github.com/noah-isme/edumatrix-api/internal/models"

// Document keys. The store namespace is applied by kvstore.Namespaced.
const (
	KeyUsers            = "users"
	KeyCourses          = "courses"
	KeyEnrolledStudents = "enrolledStudents"
	KeyAttendance       = "attendance"
	KeyResults          = "results"
	KeyActivities       = "activities"
	KeyActiveAdmin      = "activeAdmin"
	KeyActiveTeacher    = "activeTeacher"
	KeyReportJobs       = "reportJobs"
	SessionKeyPrefix    = "user:"
)

// DataKeys are the documents that make up the school data set.
var DataKeys = []string{
	KeyUsers,
	KeyCourses,
	KeyEnrolledStudents,
	KeyAttendance,
	KeyResults,
	KeyActivities,
	KeyActiveAdmin,
	KeyActiveTeacher,
}

// LockKey returns the lock document of a privileged role.
func LockKey(role models.UserRole) string {
	if role == models.RoleTeacher {
		return KeyActiveTeacher
	}
	return KeyActiveAdmin
}

// SessionKey returns the document key of a session.
func SessionKey(id string) string {
	return SessionKeyPrefix + id
}
