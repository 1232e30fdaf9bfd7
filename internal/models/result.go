package models

// ResultEntry is one student's marks for an assessment. Marks stay a string
// and are parsed when aggregated.
type ResultEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Marks string `json:"marks"`
}

// ResultBook is the results document: course id to assessment key to
// entries.
type ResultBook map[string]map[string][]ResultEntry

// ResultMark is one input row of a save request.
type ResultMark struct {
	StudentID string `json:"studentId" validate:"required"`
	Marks     string `json:"marks" validate:"max=16"`
}

// SaveResultsRequest overwrites one assessment of a course.
type SaveResultsRequest struct {
	Entries []ResultMark `json:"entries" validate:"dive"`
}

// ResultRow is a roster entry merged with saved marks.
type ResultRow struct {
	StudentID string   `json:"studentId"`
	Name      string   `json:"name"`
	Marks     string   `json:"marks"`
	Percent   *float64 `json:"percent"`
	Grade     string   `json:"grade,omitempty"`
}

// ResultSheet is a course roster for one assessment.
type ResultSheet struct {
	CourseID   string      `json:"courseId"`
	Assessment string      `json:"assessment"`
	Rows       []ResultRow `json:"rows"`
}

// StudentResult is one course grade on a student's transcript.
type StudentResult struct {
	CourseID    string            `json:"courseId"`
	CourseName  string            `json:"courseName"`
	Assessments map[string]string `json:"assessments"`
	Average     *int              `json:"average"`
	Grade       string            `json:"grade,omitempty"`
}
