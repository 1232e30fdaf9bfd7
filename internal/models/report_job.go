package models

import "time"

// ReportKind enumerates supported report datasets.
type ReportKind string

const (
	ReportAttendance ReportKind = "attendance"
	ReportResults    ReportKind = "results"
	ReportActivities ReportKind = "activities"
	ReportSystem     ReportKind = "system"
)

// Valid reports whether k is a known kind.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportAttendance, ReportResults, ReportActivities, ReportSystem:
		return true
	}
	return false
}

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus captures background job lifecycle states.
type ReportStatus string

const (
	ReportStatusQueued     ReportStatus = "QUEUED"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusFinished   ReportStatus = "FINISHED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportParams are the request options of a report job.
type ReportParams struct {
	CourseID   string       `json:"courseId,omitempty"`
	Assessment string       `json:"assessment,omitempty"`
	Format     ReportFormat `json:"format"`
}

// ReportJob is stored in the reportJobs document.
type ReportJob struct {
	ID           string       `json:"id"`
	Kind         ReportKind   `json:"kind"`
	Params       ReportParams `json:"params"`
	Status       ReportStatus `json:"status"`
	Progress     int          `json:"progress"`
	FilePath     string       `json:"filePath,omitempty"`
	ResultURL    string       `json:"resultUrl,omitempty"`
	ExpiresAt    *time.Time   `json:"expiresAt,omitempty"`
	CreatedBy    string       `json:"createdBy"`
	CreatedAt    time.Time    `json:"createdAt"`
	FinishedAt   *time.Time   `json:"finishedAt,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}
