package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/dto"
	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/jobs"
)

type reportJobStore interface {
	CreateJob(ctx context.Context, job *models.ReportJob) error
	GetJob(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateJob(ctx context.Context, id string, fn func(*models.ReportJob)) (*models.ReportJob, error)
	ListByStatus(ctx context.Context, statuses ...models.ReportStatus) ([]models.ReportJob, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportCourseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ReportService orchestrates report job lifecycle management.
type ReportService struct {
	repo      reportJobStore
	courses   reportCourseFinder
	queue     jobDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ReportServiceConfig
	now       func() time.Time
}

// ReportServiceConfig governs queue recovery and cleanup.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	Reader      io.ReadCloser
	Size        int64
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, courses reportCourseFinder, queue jobDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		repo:      repo,
		courses:   courses,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Preview returns the rows of a report without rendering a file.
func (s *ReportService) Preview(ctx context.Context, kind models.ReportKind, courseID, assessment string) (*dto.ReportPreviewResponse, error) {
	if !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report kind")
	}
	if err := s.checkCourse(ctx, courseID); err != nil {
		return nil, err
	}
	dataset, err := s.exporter.Dataset(ctx, kind, models.ReportParams{CourseID: courseID, Assessment: assessment})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build report")
	}
	return &dto.ReportPreviewResponse{Kind: kind, Title: dataset.Title, Columns: dataset.Columns, Rows: dataset.Rows}, nil
}

// CreateJob validates request, persists job, and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid report request")
	}
	if err := s.checkCourse(ctx, req.CourseID); err != nil {
		return nil, err
	}

	job := &models.ReportJob{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Params:    models.ReportParams{CourseID: req.CourseID, Assessment: req.Assessment, Format: req.Format},
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, storeError(err, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Kind)}); err != nil {
		msg := "failed to enqueue job"
		now := s.now().UTC()
		if _, updateErr := s.repo.UpdateJob(ctx, job.ID, func(j *models.ReportJob) {
			j.Status = models.ReportStatusFailed
			j.Progress = 100
			j.ErrorMessage = msg
			j.FinishedAt = &now
		}); updateErr != nil {
			s.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients, enforcing ownership for teachers.
func (s *ReportService) GetStatus(ctx context.Context, id string, actorID string, role models.UserRole) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, storeError(err, "failed to load report job")
	}
	if role == models.RoleTeacher && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return &dto.ReportStatusResponse{
		ID:           job.ID,
		Kind:         job.Kind,
		Status:       job.Status,
		Progress:     job.Progress,
		DownloadURL:  job.ResultURL,
		ExpiresAt:    job.ExpiresAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		FinishedAt:   job.FinishedAt,
	}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	claims, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.GetJob(ctx, claims.JobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, storeError(err, "failed to load report job")
	}
	if job.FilePath != claims.Path {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	reader, size, err := s.exporter.Open(claims.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file not found")
	}
	return &ReportDownload{
		Reader:      reader,
		Size:        size,
		Filename:    filepath.Base(claims.Path),
		ContentType: s.exporter.ContentType(job.Params.Format),
		ExpiresAt:   claims.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays jobs left queued or processing by a previous
// process.
func (s *ReportService) RecoverPendingJobs(ctx context.Context) int {
	pending, err := s.repo.ListByStatus(ctx, models.ReportStatusQueued, models.ReportStatusProcessing)
	if err != nil {
		s.logger.Warn("failed to recover queued report jobs", zap.Error(err))
		return 0
	}
	var requeued int
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Kind: string(job.Kind)}); err != nil {
			s.logger.Warn("failed to requeue pending job", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		requeued++
	}
	if requeued > 0 {
		s.logger.Info("recovered report jobs", zap.Int("count", requeued))
	}
	return requeued
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired drops jobs and files older than the result TTL.
func (s *ReportService) CleanupExpired(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.ResultTTL)
	removed, err := s.repo.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Warn("cleanup list failed", zap.Error(err))
		return
	}
	for _, job := range removed {
		if job.FilePath == "" {
			continue
		}
		if err := s.exporter.Delete(job.FilePath); err != nil {
			s.logger.Warn("cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if _, err := s.exporter.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
	}
}

func (s *ReportService) checkCourse(ctx context.Context, courseID string) error {
	if courseID == "" || s.courses == nil {
		return nil
	}
	if _, err := s.courses.FindByID(ctx, courseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return storeError(err, "failed to load course")
	}
	return nil
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error)
}

type jobOutcomeRecorder interface {
	RecordReportJob(kind, status string)
}

// ReportWorker bridges queue jobs to ExportService.
type ReportWorker struct {
	repo       reportJobStore
	exporter   exportGenerator
	metrics    jobOutcomeRecorder
	logger     *zap.Logger
	maxRetries int
	now        func() time.Time
}

// NewReportWorker constructs a worker. metrics may be nil.
func NewReportWorker(repo reportJobStore, exporter exportGenerator, metrics jobOutcomeRecorder, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		exporter:   exporter,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

// Handle processes a queue job.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.UpdateJob(ctx, job.ID, func(j *models.ReportJob) {
		j.Status = models.ReportStatusProcessing
		j.Progress = 10
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			w.logger.Warn("report job vanished", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		msg := err.Error()
		if job.Attempt >= w.maxRetries {
			w.finish(ctx, record, models.ReportStatusFailed, func(j *models.ReportJob) {
				j.ErrorMessage = msg
			})
		} else if _, updateErr := w.repo.UpdateJob(ctx, job.ID, func(j *models.ReportJob) {
			j.Status = models.ReportStatusQueued
			j.Progress = 0
			j.ErrorMessage = msg
		}); updateErr != nil {
			w.logger.Warn("failed to mark job queued", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	expiresAt := result.ExpiresAt
	return w.finish(ctx, record, models.ReportStatusFinished, func(j *models.ReportJob) {
		j.FilePath = result.RelativePath
		j.ResultURL = result.URL
		j.ExpiresAt = &expiresAt
		j.ErrorMessage = ""
	})
}

// GiveUp marks a job failed once the queue stops retrying it.
func (w *ReportWorker) GiveUp(ctx context.Context, job jobs.Job, cause error) {
	record, err := w.repo.GetJob(ctx, job.ID)
	if err != nil || record.Status == models.ReportStatusFailed || record.Status == models.ReportStatusFinished {
		return
	}
	w.finish(ctx, record, models.ReportStatusFailed, func(j *models.ReportJob) {
		j.ErrorMessage = fmt.Sprintf("gave up after %d attempts: %v", job.Attempt, cause)
	})
}

func (w *ReportWorker) finish(ctx context.Context, record *models.ReportJob, status models.ReportStatus, fn func(*models.ReportJob)) error {
	now := w.now().UTC()
	if _, err := w.repo.UpdateJob(ctx, record.ID, func(j *models.ReportJob) {
		j.Status = status
		j.Progress = 100
		j.FinishedAt = &now
		fn(j)
	}); err != nil {
		w.logger.Warn("failed to mark job "+string(status), zap.String("job_id", record.ID), zap.Error(err))
		return err
	}
	if w.metrics != nil {
		w.metrics.RecordReportJob(string(record.Kind), string(status))
	}
	return nil
}
