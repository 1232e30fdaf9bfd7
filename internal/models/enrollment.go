package models

import "time"

// EnrolledStudent is one (student, course) row. ID is the student's user id.
type EnrolledStudent struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Username   string     `json:"username,omitempty"`
	CourseID   string     `json:"courseId"`
	CourseName string     `json:"courseName"`
	EnrolledAt *time.Time `json:"enrolledAt,omitempty"`
}

// Matches reports whether the row belongs to the pair.
func (e EnrolledStudent) Matches(studentID, courseID string) bool {
	return e.ID == studentID && e.CourseID == courseID
}

// EnrollmentFilter narrows enrollment listings.
type EnrollmentFilter struct {
	StudentID string
	CourseID  string
}

// EnrollRequest assigns a student to a course.
type EnrollRequest struct {
	StudentID string `json:"studentId" validate:"required"`
	CourseID  string `json:"courseId" validate:"required"`
}
