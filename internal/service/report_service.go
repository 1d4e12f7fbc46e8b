package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
	"github.com/whenwemeet/whenwemeet-api/pkg/export"
	"github.com/whenwemeet/whenwemeet-api/pkg/jobs"
)

type reportStore interface {
	Create(ctx context.Context, report *models.AvailabilityReport) error
	FindByID(ctx context.Context, id string) (*models.AvailabilityReport, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus) error
	MarkCompleted(ctx context.Context, id, filePath string, completedAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string, failedAt time.Time) error
}

type reportRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type reportFileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type reportURLSigner interface {
	Generate(reportID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (reportID, relPath string, expiresAt time.Time, err error)
}

type gridProvider interface {
	MonthlyGrid(ctx context.Context, roomID, userID string, year int, month time.Month) (*models.MonthlyGrid, error)
}

// ReportRequest asks for an export of a room's monthly availability grid.
type ReportRequest struct {
	Year   int    `json:"year" validate:"required,min=2000,max=2100"`
	Month  int    `json:"month" validate:"required,min=1,max=12"`
	Format string `json:"format" validate:"required,oneof=CSV PDF csv pdf"`
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// ReportService manages availability report jobs: creation, status reads and
// signed downloads. Rendering happens in ReportWorker.
type ReportService struct {
	repo      reportStore
	rooms     reportRoomReader
	queue     jobDispatcher
	storage   reportFileStore
	signer    reportURLSigner
	validator *validator.Validate
	logger    *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(repo reportStore, rooms reportRoomReader, queue jobDispatcher, storage reportFileStore, signer reportURLSigner, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ReportService{
		repo:      repo,
		rooms:     rooms,
		queue:     queue,
		storage:   storage,
		signer:    signer,
		validator: validate,
		logger:    logger,
	}
}

// RequestReport persists a pending report job and enqueues processing.
func (s *ReportService) RequestReport(ctx context.Context, roomID, userID string, req ReportRequest) (*models.AvailabilityReport, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	report := &models.AvailabilityReport{
		RoomID:      roomID,
		RequestedBy: userID,
		Year:        req.Year,
		Month:       req.Month,
		Format:      models.ReportFormat(strings.ToUpper(req.Format)),
		Status:      models.ReportStatusPending,
	}
	if err := s.repo.Create(ctx, report); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: report.ID, Type: "availability_report"}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, report.ID, "queue unavailable", time.Now().UTC()); markErr != nil {
			s.logger.Warn("failed to mark report failed", zap.String("report_id", report.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report")
	}
	return report, nil
}

// GetReport returns a report's state plus a signed download token once the
// file is ready. Only members of the report's room may read it.
func (s *ReportService) GetReport(ctx context.Context, reportID, userID string) (*models.AvailabilityReport, string, error) {
	report, err := s.findReport(ctx, reportID)
	if err != nil {
		return nil, "", err
	}
	if err := s.requireMember(ctx, report.RoomID, userID); err != nil {
		return nil, "", err
	}

	if report.Status != models.ReportStatusCompleted || report.FilePath == nil {
		return report, "", nil
	}
	token, _, err := s.signer.Generate(report.ID, *report.FilePath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download URL")
	}
	return report, token, nil
}

// Download resolves a signed token into the stored report file.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	reportID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	report, err := s.findReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusCompleted || report.FilePath == nil || *report.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report file not available")
	}

	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "report file missing")
	}
	return &ReportDownload{
		File:      file,
		Filename:  fmt.Sprintf("availability-%s-%04d-%02d.%s", report.RoomID, report.Year, report.Month, formatExtension(report.Format)),
		Format:    report.Format,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ReportService) findReport(ctx context.Context, reportID string) (*models.AvailabilityReport, error) {
	report, err := s.repo.FindByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch report")
	}
	return report, nil
}

func (s *ReportService) requireMember(ctx context.Context, roomID, userID string) error {
	if _, err := s.rooms.FindByID(ctx, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch room")
	}
	if _, err := s.rooms.FindMember(ctx, roomID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "not a member of this room")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	return nil
}

// ReportWorker renders queued availability reports.
type ReportWorker struct {
	repo       reportStore
	grids      gridProvider
	storage    reportFileStore
	csv        *export.CSVExporter
	pdf        *export.PDFExporter
	logger     *zap.Logger
	maxRetries int
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportStore, grids gridProvider, storage reportFileStore, maxRetries int, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &ReportWorker{
		repo:       repo,
		grids:      grids,
		storage:    storage,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes one queue job. Failures before the retry budget runs out
// leave the report pending so the queue can retry; the final failure is
// recorded on the report row.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	report, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateStatus(ctx, report.ID, models.ReportStatusProcessing); err != nil {
		return err
	}

	relPath, err := w.render(ctx, report)
	if err != nil {
		if job.Attempt >= w.maxRetries {
			if markErr := w.repo.MarkFailed(ctx, report.ID, err.Error(), time.Now().UTC()); markErr != nil {
				w.logger.Warn("failed to mark report failed", zap.String("report_id", report.ID), zap.Error(markErr))
			}
		} else if markErr := w.repo.UpdateStatus(ctx, report.ID, models.ReportStatusPending); markErr != nil {
			w.logger.Warn("failed to reset report status", zap.String("report_id", report.ID), zap.Error(markErr))
		}
		return err
	}

	if err := w.repo.MarkCompleted(ctx, report.ID, relPath, time.Now().UTC()); err != nil {
		w.logger.Warn("failed to mark report completed", zap.String("report_id", report.ID), zap.Error(err))
		return err
	}
	return nil
}

func (w *ReportWorker) render(ctx context.Context, report *models.AvailabilityReport) (string, error) {
	grid, err := w.grids.MonthlyGrid(ctx, report.RoomID, "", report.Year, time.Month(report.Month))
	if err != nil {
		return "", fmt.Errorf("build grid: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"date", "unavailable_count", "total_members", "unavailable_members"},
	}
	for _, day := range grid.Days {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":                day.Date.Format("2006-01-02"),
			"unavailable_count":   fmt.Sprintf("%d", day.UnavailableCount),
			"total_members":       fmt.Sprintf("%d", grid.TotalMembers),
			"unavailable_members": strings.Join(day.UnavailableMembers, ";"),
		})
	}

	var data []byte
	switch report.Format {
	case models.ReportFormatPDF:
		title := fmt.Sprintf("Availability %04d-%02d", report.Year, report.Month)
		data, err = w.pdf.Render(dataset, title)
	default:
		data, err = w.csv.Render(dataset)
	}
	if err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}

	relPath := fmt.Sprintf("%s/%s.%s", report.RoomID, report.ID, formatExtension(report.Format))
	if _, err := w.storage.Save(relPath, data); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return relPath, nil
}

func formatExtension(format models.ReportFormat) string {
	if format == models.ReportFormatPDF {
		return "pdf"
	}
	return "csv"
}
