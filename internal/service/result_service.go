package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/eventbus"
	"github.com/noah-isme/edumatrix-api/pkg/grading"
)

type resultStore interface {
	ForCourse(ctx context.Context, courseID string) (map[string][]models.ResultEntry, error)
	ReplaceAssessment(ctx context.Context, courseID, assessment string, entries []models.ResultEntry) error
}

var assessmentKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ResultService records assessment marks and derives grades.
type ResultService struct {
	repo      resultStore
	roster    rosterSource
	courses   courseFinder
	events    eventPublisher
	validator *validator.Validate
	logger    *zap.Logger
}

// NewResultService constructs the result service.
func NewResultService(repo resultStore, roster rosterSource, courses courseFinder, events eventPublisher, validate *validator.Validate, logger *zap.Logger) *ResultService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{repo: repo, roster: roster, courses: courses, events: publisherOrNop(events), validator: validate, logger: logger}
}

// Sheet merges the course roster with the marks saved for assessment.
func (s *ResultService) Sheet(ctx context.Context, courseID, assessment string) (*models.ResultSheet, error) {
	if err := s.checkKey(ctx, courseID, assessment); err != nil {
		return nil, err
	}
	roster, err := s.roster.List(ctx, models.EnrollmentFilter{CourseID: courseID})
	if err != nil {
		return nil, storeError(err, "failed to load roster")
	}
	byAssessment, err := s.repo.ForCourse(ctx, courseID)
	if err != nil {
		return nil, storeError(err, "failed to load results")
	}

	saved := make(map[string]string)
	for _, entry := range byAssessment[assessment] {
		saved[entry.ID] = entry.Marks
	}
	sheet := &models.ResultSheet{CourseID: courseID, Assessment: assessment, Rows: make([]models.ResultRow, 0, len(roster))}
	for _, st := range roster {
		row := models.ResultRow{StudentID: st.ID, Name: st.Name, Marks: saved[st.ID]}
		if marks, ok := grading.ParseMarks(row.Marks); ok {
			pct := grading.Percent(marks)
			row.Percent = &pct
			row.Grade = grading.Letter(pct)
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// Save overwrites the whole entry list of one assessment. Marks are kept
// as entered.
func (s *ResultService) Save(ctx context.Context, courseID, assessment string, req models.SaveResultsRequest) (*models.ResultSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid results payload")
	}
	if err := s.checkKey(ctx, courseID, assessment); err != nil {
		return nil, err
	}
	roster, err := s.roster.List(ctx, models.EnrollmentFilter{CourseID: courseID})
	if err != nil {
		return nil, storeError(err, "failed to load roster")
	}
	names := make(map[string]string, len(roster))
	for _, st := range roster {
		names[st.ID] = st.Name
	}

	index := make(map[string]int, len(req.Entries))
	entries := make([]models.ResultEntry, 0, len(req.Entries))
	for _, mark := range req.Entries {
		name, ok := names[mark.StudentID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s is not enrolled in this course", mark.StudentID))
		}
		entry := models.ResultEntry{ID: mark.StudentID, Name: name, Marks: strings.TrimSpace(mark.Marks)}
		if i, ok := index[mark.StudentID]; ok {
			entries[i] = entry
			continue
		}
		index[mark.StudentID] = len(entries)
		entries = append(entries, entry)
	}

	if err := s.repo.ReplaceAssessment(ctx, courseID, assessment, entries); err != nil {
		return nil, storeError(err, "failed to save results")
	}
	s.events.Publish(ctx, eventbus.TopicActivities, repository.KeyResults)
	return s.Sheet(ctx, courseID, assessment)
}

// StudentResults lists a student's marks and grade per enrolled course.
func (s *ResultService) StudentResults(ctx context.Context, studentID string) ([]models.StudentResult, error) {
	rows, err := s.roster.List(ctx, models.EnrollmentFilter{StudentID: studentID})
	if err != nil {
		return nil, storeError(err, "failed to load enrollments")
	}
	out := make([]models.StudentResult, 0, len(rows))
	for _, row := range rows {
		byAssessment, err := s.repo.ForCourse(ctx, row.CourseID)
		if err != nil {
			return nil, storeError(err, "failed to load results")
		}
		raw, percents := studentMarks(byAssessment, studentID)
		result := models.StudentResult{
			CourseID:    row.CourseID,
			CourseName:  resolveCourseName(ctx, s.courses, row),
			Assessments: raw,
		}
		if avg, letter, ok := grading.AverageLetter(percents); ok {
			result.Average = &avg
			result.Grade = letter
		}
		out = append(out, result)
	}
	return out, nil
}

func (s *ResultService) checkKey(ctx context.Context, courseID, assessment string) error {
	if !assessmentKeyPattern.MatchString(assessment) {
		return appErrors.Clone(appErrors.ErrValidation, "assessment key must be 1-64 letters, digits, '-' or '_'")
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to load course")
	}
	return nil
}
