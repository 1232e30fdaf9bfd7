package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/pkg/export"
)

// ReportRequest captures the POST /reports payload.
type ReportRequest struct {
	Kind       models.ReportKind   `json:"kind" validate:"required,oneof=attendance results activities system"`
	Format     models.ReportFormat `json:"format" validate:"required,oneof=csv pdf"`
	CourseID   string              `json:"courseId" validate:"omitempty,max=64"`
	Assessment string              `json:"assessment" validate:"omitempty,max=64"`
}

// ReportJobResponse is returned after enqueueing a report.
type ReportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ReportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ReportStatusResponse exposes job progress metadata.
type ReportStatusResponse struct {
	ID           string              `json:"id"`
	Kind         models.ReportKind   `json:"kind"`
	Status       models.ReportStatus `json:"status"`
	Progress     int                 `json:"progress"`
	DownloadURL  string              `json:"downloadUrl,omitempty"`
	ExpiresAt    *time.Time          `json:"expiresAt,omitempty"`
	ErrorMessage string              `json:"errorMessage,omitempty"`
	CreatedAt    time.Time           `json:"createdAt"`
	FinishedAt   *time.Time          `json:"finishedAt,omitempty"`
}

// ReportPreviewResponse returns report rows inline.
type ReportPreviewResponse struct {
	Kind    models.ReportKind   `json:"kind"`
	Title   string              `json:"title"`
	Columns []export.Column     `json:"columns"`
	Rows    []map[string]string `json:"rows"`
}

// SystemSnapshot is every known document keyed by name.
type SystemSnapshot struct {
	GeneratedAt time.Time                  `json:"generatedAt"`
	Documents   map[string]json.RawMessage `json:"documents"`
}

// SystemMetrics is a lightweight view of the Prometheus counters.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	StoreOperations          uint64    `json:"storeOperations"`
	AverageStoreDurationMs   float64   `json:"averageStoreDurationMs"`
	StoreConflicts           uint64    `json:"storeConflicts"`
	EventsPublished          uint64    `json:"eventsPublished"`
	EventsDropped            uint64    `json:"eventsDropped"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
