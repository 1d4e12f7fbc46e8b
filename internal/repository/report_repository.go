package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
)

// ReportRepository persists availability report jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs a report repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create inserts a pending report job.
func (r *ReportRepository) Create(ctx context.Context, report *models.AvailabilityReport) error {
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	if report.Status == "" {
		report.Status = models.ReportStatusPending
	}
	const query = `INSERT INTO availability_reports (id, room_id, requested_by, year, month, format, status, file_path, error, created_at, completed_at)
VALUES (:id, :room_id, :requested_by, :year, :month, :format, :status, :file_path, :error, :created_at, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, report); err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

// FindByID fetches a report job.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.AvailabilityReport, error) {
	const query = `SELECT id, room_id, requested_by, year, month, format, status, file_path, error, created_at, completed_at
FROM availability_reports WHERE id = $1`
	var report models.AvailabilityReport
	if err := r.db.GetContext(ctx, &report, query, id); err != nil {
		return nil, err
	}
	return &report, nil
}

// UpdateStatus transitions a report's lifecycle status.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE availability_reports SET status = $1 WHERE id = $2", status, id); err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	return nil
}

// MarkCompleted records the stored file path and completion time.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, filePath string, completedAt time.Time) error {
	const query = `UPDATE availability_reports SET status = $1, file_path = $2, completed_at = $3, error = NULL WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, models.ReportStatusCompleted, filePath, completedAt, id); err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, reason string, failedAt time.Time) error {
	const query = `UPDATE availability_reports SET status = $1, error = $2, completed_at = $3 WHERE id = $4`
	if _, err := r.db.ExecContext(ctx, query, models.ReportStatusFailed, reason, failedAt, id); err != nil {
		return fmt.Errorf("mark report failed: %w", err)
	}
	return nil
}
