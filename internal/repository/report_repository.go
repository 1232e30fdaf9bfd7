package repository

import (
	"context"
	"time"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/kvstore"
)

// ReportRepository persists report jobs in the reportJobs document.
type ReportRepository struct {
	doc *document[[]models.ReportJob]
}

// NewReportRepository constructs the repository.
func NewReportRepository(store kvstore.Store, maxRetries int) *ReportRepository {
	return &ReportRepository{doc: newDocument(store, KeyReportJobs, maxRetries, func() []models.ReportJob { return []models.ReportJob{} })}
}

// CreateJob stores a job.
func (r *ReportRepository) CreateJob(ctx context.Context, job *models.ReportJob) error {
	_, err := r.doc.mutate(ctx, func(jobs *[]models.ReportJob) error {
		for _, existing := range *jobs {
			if existing.ID == job.ID {
				return ErrDuplicate
			}
		}
		*jobs = append(*jobs, *job)
		return nil
	})
	return err
}

// GetJob loads a job by id.
func (r *ReportRepository) GetJob(ctx context.Context, id string) (*models.ReportJob, error) {
	jobs, _, err := r.doc.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		if jobs[i].ID == id {
			return &jobs[i], nil
		}
	}
	return nil, ErrNotFound
}

// UpdateJob applies fn to the stored job.
func (r *ReportRepository) UpdateJob(ctx context.Context, id string, fn func(*models.ReportJob)) (*models.ReportJob, error) {
	var updated models.ReportJob
	_, err := r.doc.mutate(ctx, func(jobs *[]models.ReportJob) error {
		for i := range *jobs {
			if (*jobs)[i].ID == id {
				fn(&(*jobs)[i])
				updated = (*jobs)[i]
				return nil
			}
		}
		return ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListByStatus returns jobs in any of the statuses.
func (r *ReportRepository) ListByStatus(ctx context.Context, statuses ...models.ReportStatus) ([]models.ReportJob, error) {
	jobs, _, err := r.doc.load(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[models.ReportStatus]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	out := make([]models.ReportJob, 0)
	for _, job := range jobs {
		if _, ok := want[job.Status]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

// DeleteFinishedBefore removes terminal jobs finished before cutoff and
// returns them.
func (r *ReportRepository) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.ReportJob, error) {
	var removed []models.ReportJob
	_, err := r.doc.mutate(ctx, func(jobs *[]models.ReportJob) error {
		removed = nil
		kept := make([]models.ReportJob, 0, len(*jobs))
		for _, job := range *jobs {
			terminal := job.Status == models.ReportStatusFinished || job.Status == models.ReportStatusFailed
			if terminal && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
				removed = append(removed, job)
				continue
			}
			kept = append(kept, job)
		}
		if len(removed) == 0 {
			return ErrNoChange
		}
		*jobs = kept
		return nil
	})
	return removed, err
}
