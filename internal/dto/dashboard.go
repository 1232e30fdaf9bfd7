package dto

import "github.com/noah-isme/edumatrix-api/internal/models"

// AdminDashboardResponse captures the aggregated admin dashboard payload.
type AdminDashboardResponse struct {
	TotalStudents     int               `json:"totalStudents"`
	TotalTeachers     int               `json:"totalTeachers"`
	ActiveCourses     int               `json:"activeCourses"`
	AverageAttendance *int              `json:"averageAttendance"`
	RecentActivities  []models.Activity `json:"recentActivities"`
}

// TeacherDashboardResponse summarises the courses a teacher owns.
type TeacherDashboardResponse struct {
	Teacher           string                `json:"teacher"`
	Date              string                `json:"date"`
	Courses           []TeacherCourseStatus `json:"courses"`
	TotalStudents     int                   `json:"totalStudents"`
	AverageAttendance *int                  `json:"averageAttendance"`
	PendingTasks      int                   `json:"pendingTasks"`
}

// TeacherCourseStatus is one course on the teacher dashboard.
type TeacherCourseStatus struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Code              string `json:"code"`
	Students          int    `json:"students"`
	Attendance        *int   `json:"attendance"`
	AttendanceToday   bool   `json:"attendanceToday"`
	AssessmentsGraded int    `json:"assessmentsGraded"`
}

// StudentDashboardResponse shows a student's progress.
type StudentDashboardResponse struct {
	StudentID         string                `json:"studentId"`
	Courses           []StudentCourseStatus `json:"courses"`
	TotalCourses      int                   `json:"totalCourses"`
	AverageAttendance *int                  `json:"averageAttendance"`
	GPA               *float64              `json:"gpa"`
	AcademicAlert     bool                  `json:"academicAlert"`
	// LowAttendance lists course ids where attendance is below 75%.
	LowAttendance []string `json:"lowAttendance"`
}

// StudentCourseStatus is one enrolled course on the student dashboard.
type StudentCourseStatus struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Attendance *int   `json:"attendance"`
	Grade      string `json:"grade,omitempty"`
	Trend      string `json:"trend"`
}
