package service

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/export"
	"github.com/noah-isme/edumatrix-api/pkg/grading"
	"github.com/noah-isme/edumatrix-api/pkg/storage"
)

type fileStorage interface {
	Save(name string, data []byte) (int64, error)
	Open(name string) (io.ReadCloser, int64, error)
	Delete(name string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type activityLog interface {
	All(ctx context.Context) ([]models.Activity, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Size         int64
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportSources are the collections reports are built from.
type ExportSources struct {
	Users       userLister
	Courses     courseLister
	Enrollments enrollmentLister
	Attendance  attendanceBook
	Results     resultBook
	Activities  activityLog
}

// ExportService builds report datasets and persists rendered files.
type ExportService struct {
	src       ExportSources
	storage   fileStorage
	renderers map[models.ReportFormat]export.Renderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the package defaults.
func NewExportService(src ExportSources, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv, pdf export.Renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		src:     src,
		storage: files,
		renderers: map[models.ReportFormat]export.Renderer{
			models.ReportFormatCSV: csv,
			models.ReportFormatPDF: pdf,
		},
		signer: signer,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ContentType returns the MIME type of a format.
func (s *ExportService) ContentType(format models.ReportFormat) string {
	if r, ok := s.renderers[format]; ok {
		return r.ContentType()
	}
	return "application/octet-stream"
}

// Generate builds the dataset of a job, renders it, stores the file and
// signs a download token.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	renderer, ok := s.renderers[job.Params.Format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	dataset, err := s.Dataset(ctx, job.Kind, job.Params)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", job.Kind, err)
	}

	filename := s.buildFilename(job, renderer.Extension())
	size, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, filename)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	return &ExportResult{
		RelativePath: filename,
		Size:         size,
		Token:        token,
		URL:          fmt.Sprintf("%s/reports/download?token=%s", prefix, url.QueryEscape(token)),
		Format:       job.Params.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a reader over the stored file and its size.
func (s *ExportService) Open(relPath string) (io.ReadCloser, int64, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// Dataset builds the rows of a report kind.
func (s *ExportService) Dataset(ctx context.Context, kind models.ReportKind, params models.ReportParams) (export.Dataset, error) {
	switch kind {
	case models.ReportAttendance:
		return s.attendanceDataset(ctx, params)
	case models.ReportResults:
		return s.resultsDataset(ctx, params)
	case models.ReportActivities:
		return s.activitiesDataset(ctx)
	case models.ReportSystem:
		return s.systemDataset(ctx)
	default:
		return export.Dataset{}, fmt.Errorf("unsupported report kind %s", kind)
	}
}

func (s *ExportService) buildFilename(job *models.ReportJob, ext string) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	scope := sanitizeFilename(job.Params.CourseID)
	return fmt.Sprintf("%s_%s_%s_%s.%s", job.Kind, scope, timestamp, shortID(job.ID), ext)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "all"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 64 {
		return result[:64]
	}
	return result
}

func (s *ExportService) courseNames(ctx context.Context) (map[string]models.Course, []models.Course, error) {
	courses, err := s.src.Courses.All(ctx)
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[string]models.Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	return byID, courses, nil
}

func (s *ExportService) attendanceDataset(ctx context.Context, params models.ReportParams) (export.Dataset, error) {
	courses, _, err := s.courseNames(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	rows, err := s.src.Enrollments.List(ctx, models.EnrollmentFilter{CourseID: params.CourseID})
	if err != nil {
		return export.Dataset{}, err
	}
	book, err := s.src.Attendance.Book(ctx)
	if err != nil {
		return export.Dataset{}, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].CourseID != rows[j].CourseID {
			return rows[i].CourseID < rows[j].CourseID
		}
		return rows[i].Name < rows[j].Name
	})
	data := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		present, total := countAttendance(book[row.CourseID], row.ID)
		percentage := "-"
		if pct := grading.AttendancePercent(present, total); pct != nil {
			percentage = fmt.Sprintf("%d%%", *pct)
		}
		data = append(data, map[string]string{
			"student":    row.Name,
			"studentId":  row.ID,
			"course":     courseCode(courses, row),
			"present":    strconv.Itoa(present),
			"absent":     strconv.Itoa(total - present),
			"percentage": percentage,
		})
	}
	return export.Dataset{
		Title: reportTitle("Attendance Report", courses, params.CourseID),
		Columns: []export.Column{
			{Key: "student", Title: "Student"},
			{Key: "studentId", Title: "Student ID"},
			{Key: "course", Title: "Course"},
			{Key: "present", Title: "Present"},
			{Key: "absent", Title: "Absent"},
			{Key: "percentage", Title: "Percentage"},
		},
		Rows: data,
	}, nil
}

func (s *ExportService) resultsDataset(ctx context.Context, params models.ReportParams) (export.Dataset, error) {
	courses, _, err := s.courseNames(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	book, err := s.src.Results.Book(ctx)
	if err != nil {
		return export.Dataset{}, err
	}

	data := make([]map[string]string, 0)
	for _, courseID := range sortedKeys(book) {
		if params.CourseID != "" && courseID != params.CourseID {
			continue
		}
		course := models.EnrolledStudent{CourseID: courseID}
		for _, assessment := range sortedKeys(book[courseID]) {
			if params.Assessment != "" && assessment != params.Assessment {
				continue
			}
			for _, entry := range book[courseID][assessment] {
				grade := ""
				if marks, ok := grading.ParseMarks(entry.Marks); ok {
					grade = grading.Letter(grading.Percent(marks))
				}
				data = append(data, map[string]string{
					"student":    entry.Name,
					"studentId":  entry.ID,
					"course":     courseCode(courses, course),
					"assessment": assessment,
					"marks":      entry.Marks,
					"grade":      grade,
				})
			}
		}
	}
	return export.Dataset{
		Title: reportTitle("Results Report", courses, params.CourseID),
		Columns: []export.Column{
			{Key: "student", Title: "Student"},
			{Key: "studentId", Title: "Student ID"},
			{Key: "course", Title: "Course"},
			{Key: "assessment", Title: "Assessment"},
			{Key: "marks", Title: "Marks"},
			{Key: "grade", Title: "Grade"},
		},
		Rows: data,
	}, nil
}

func (s *ExportService) activitiesDataset(ctx context.Context) (export.Dataset, error) {
	acts, err := s.src.Activities.All(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	data := make([]map[string]string, 0, len(acts))
	for i := len(acts) - 1; i >= 0; i-- {
		a := acts[i]
		data = append(data, map[string]string{
			"action": a.Action,
			"actor":  a.Actor,
			"time":   formatMillis(a.Timestamp),
		})
	}
	return export.Dataset{
		Title: "Activity Log",
		Columns: []export.Column{
			{Key: "action", Title: "Action"},
			{Key: "actor", Title: "Actor"},
			{Key: "time", Title: "Time"},
		},
		Rows: data,
	}, nil
}

func (s *ExportService) systemDataset(ctx context.Context) (export.Dataset, error) {
	users, err := s.src.Users.All(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	_, courses, err := s.courseNames(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	acts, err := s.src.Activities.All(ctx)
	if err != nil {
		return export.Dataset{}, err
	}

	data := make([]map[string]string, 0, len(users)+len(courses)+len(acts))
	for _, u := range users {
		data = append(data, map[string]string{
			"section": "user",
			"id":      u.ID,
			"name":    u.Username,
			"detail":  fmt.Sprintf("%s, %s, %s", u.Email, u.Role, u.Status),
		})
	}
	for _, c := range courses {
		data = append(data, map[string]string{
			"section": "course",
			"id":      c.ID,
			"name":    c.Name,
			"detail":  fmt.Sprintf("%s, %s, %d students, %s", c.Code, c.Teacher, c.Students, c.Status),
		})
	}
	for _, a := range acts {
		data = append(data, map[string]string{
			"section": "activity",
			"id":      a.ID,
			"name":    a.Action,
			"detail":  formatMillis(a.Timestamp),
		})
	}
	return export.Dataset{
		Title: "System Export",
		Columns: []export.Column{
			{Key: "section", Title: "Section"},
			{Key: "id", Title: "ID"},
			{Key: "name", Title: "Name"},
			{Key: "detail", Title: "Detail"},
		},
		Rows: data,
	}, nil
}

func courseCode(courses map[string]models.Course, row models.EnrolledStudent) string {
	if c, ok := courses[row.CourseID]; ok && c.Code != "" {
		return c.Code
	}
	if row.CourseName != "" {
		return row.CourseName
	}
	return models.UnknownCourseName
}

func reportTitle(base string, courses map[string]models.Course, courseID string) string {
	if courseID == "" {
		return base
	}
	if c, ok := courses[courseID]; ok {
		return fmt.Sprintf("%s %s", base, c.Name)
	}
	return fmt.Sprintf("%s %s", base, courseID)
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(time.RFC3339)
}
