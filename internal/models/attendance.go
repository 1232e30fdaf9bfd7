package models

// AttendanceStatus is present or absent.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// DateLayout is the calendar date format used by attendance records.
const DateLayout = "2006-01-02"

// AttendanceRecord marks one student on one date.
type AttendanceRecord struct {
	Date      string           `json:"date"`
	StudentID string           `json:"studentId"`
	Status    AttendanceStatus `json:"status"`
}

// AttendanceBook is the attendance document: course id to records.
type AttendanceBook map[string][]AttendanceRecord

// AttendanceMark is one input row of a save request.
type AttendanceMark struct {
	StudentID string           `json:"studentId" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,oneof=present absent"`
}

// SaveAttendanceRequest replaces a day's attendance for a course.
type SaveAttendanceRequest struct {
	Records []AttendanceMark `json:"records" validate:"dive"`
}

// AttendanceRow is a roster entry merged with its saved status.
type AttendanceRow struct {
	StudentID string            `json:"studentId"`
	Name      string            `json:"name"`
	Status    *AttendanceStatus `json:"status"`
}

// AttendanceDay is a course roster for one date.
type AttendanceDay struct {
	CourseID string          `json:"courseId"`
	Date     string          `json:"date"`
	Saved    bool            `json:"saved"`
	Rows     []AttendanceRow `json:"rows"`
}

// AttendanceSummary aggregates one student's records in one course.
type AttendanceSummary struct {
	CourseID   string `json:"courseId"`
	CourseName string `json:"courseName"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
	Total      int    `json:"total"`
	Percent    *int   `json:"percent"`
}
