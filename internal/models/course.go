package models

import "strings"

// CourseStatus marks whether a course counts as active.
type CourseStatus string

const (
	CourseActive   CourseStatus = "active"
	CourseInactive CourseStatus = "inactive"
)

// UnknownCourseName labels enrollments whose course no longer resolves.
const UnknownCourseName = "(Unknown Course)"

// Course is stored in the courses document. Teacher is a display name
// matched against usernames, and Students is a denormalized count.
type Course struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Code     string       `json:"code"`
	Teacher  string       `json:"teacher"`
	Students int          `json:"students"`
	Status   CourseStatus `json:"status"`
}

// TaughtBy matches the teacher field case-insensitively.
func (c Course) TaughtBy(username string) bool {
	return username != "" && strings.EqualFold(strings.TrimSpace(c.Teacher), strings.TrimSpace(username))
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Teacher string
	Status  *CourseStatus
	Search  string
}

// CreateCourseRequest is the admin payload for new courses.
type CreateCourseRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Code    string `json:"code" validate:"required,max=32"`
	Teacher string `json:"teacher" validate:"required,max=120"`
}

// UpdateCourseRequest edits a course. Nil fields are left unchanged.
type UpdateCourseRequest struct {
	Name    *string       `json:"name" validate:"omitempty,min=1,max=120"`
	Code    *string       `json:"code" validate:"omitempty,min=1,max=32"`
	Teacher *string       `json:"teacher" validate:"omitempty,min=1,max=120"`
	Status  *CourseStatus `json:"status" validate:"omitempty,oneof=active inactive"`
}
