package models

import "time"

// ReportStatus tracks an availability report job through its lifecycle.
type ReportStatus string

const (
	ReportStatusPending    ReportStatus = "PENDING"
	ReportStatusProcessing ReportStatus = "PROCESSING"
	ReportStatusCompleted  ReportStatus = "COMPLETED"
	ReportStatusFailed     ReportStatus = "FAILED"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "CSV"
	ReportFormatPDF ReportFormat = "PDF"
)

// AvailabilityReport is a queued or completed export of a room's monthly grid.
type AvailabilityReport struct {
	ID          string       `db:"id" json:"id"`
	RoomID      string       `db:"room_id" json:"room_id"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	Year        int          `db:"year" json:"year"`
	Month       int          `db:"month" json:"month"`
	Format      ReportFormat `db:"format" json:"format"`
	Status      ReportStatus `db:"status" json:"status"`
	FilePath    *string      `db:"file_path" json:"-"`
	Error       *string      `db:"error" json:"error,omitempty"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	CompletedAt *time.Time   `db:"completed_at" json:"completed_at,omitempty"`
}
