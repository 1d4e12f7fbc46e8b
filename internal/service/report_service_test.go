package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
	"github.com/whenwemeet/whenwemeet-api/pkg/jobs"
	"github.com/whenwemeet/whenwemeet-api/pkg/storage"
)

type stubReportStore struct {
	reports map[string]*models.AvailabilityReport
}

func newStubReportStore() *stubReportStore {
	return &stubReportStore{reports: make(map[string]*models.AvailabilityReport)}
}

func (s *stubReportStore) Create(_ context.Context, report *models.AvailabilityReport) error {
	if report.ID == "" {
		report.ID = "report-1"
	}
	s.reports[report.ID] = report
	return nil
}

func (s *stubReportStore) FindByID(_ context.Context, id string) (*models.AvailabilityReport, error) {
	report, ok := s.reports[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return report, nil
}

func (s *stubReportStore) UpdateStatus(_ context.Context, id string, status models.ReportStatus) error {
	s.reports[id].Status = status
	return nil
}

func (s *stubReportStore) MarkCompleted(_ context.Context, id, filePath string, completedAt time.Time) error {
	s.reports[id].Status = models.ReportStatusCompleted
	s.reports[id].FilePath = &filePath
	s.reports[id].CompletedAt = &completedAt
	return nil
}

func (s *stubReportStore) MarkFailed(_ context.Context, id, reason string, failedAt time.Time) error {
	s.reports[id].Status = models.ReportStatusFailed
	s.reports[id].Error = &reason
	s.reports[id].CompletedAt = &failedAt
	return nil
}

type stubDispatcher struct {
	enqueued []jobs.Job
}

func (s *stubDispatcher) Enqueue(job jobs.Job) error {
	s.enqueued = append(s.enqueued, job)
	return nil
}

type stubGridProvider struct {
	grid *models.MonthlyGrid
	err  error
}

func (s *stubGridProvider) MonthlyGrid(_ context.Context, roomID, _ string, year int, month time.Month) (*models.MonthlyGrid, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.grid, nil
}

func testReportService(t *testing.T, store *stubReportStore, dispatcher *stubDispatcher) (*ReportService, *storage.LocalStorage, *storage.SignedURLSigner) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	rooms := &stubRoomReader{room: testRoom(), memberCount: 1}
	return NewReportService(store, rooms, dispatcher, files, signer, nil, nil), files, signer
}

func TestRequestReportEnqueuesJob(t *testing.T) {
	store := newStubReportStore()
	dispatcher := &stubDispatcher{}
	svc, _, _ := testReportService(t, store, dispatcher)

	report, err := svc.RequestReport(context.Background(), "room-1", "user-1", ReportRequest{Year: 2026, Month: 3, Format: "csv"})
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusPending, report.Status)
	assert.Equal(t, models.ReportFormatCSV, report.Format)
	require.Len(t, dispatcher.enqueued, 1)
	assert.Equal(t, report.ID, dispatcher.enqueued[0].ID)
}

func TestRequestReportRejectsBadFormat(t *testing.T) {
	svc, _, _ := testReportService(t, newStubReportStore(), &stubDispatcher{})

	_, err := svc.RequestReport(context.Background(), "room-1", "user-1", ReportRequest{Year: 2026, Month: 3, Format: "xlsx"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReportWorkerRendersAndCompletes(t *testing.T) {
	store := newStubReportStore()
	dispatcher := &stubDispatcher{}
	svc, files, signer := testReportService(t, store, dispatcher)

	report, err := svc.RequestReport(context.Background(), "room-1", "user-1", ReportRequest{Year: 2026, Month: 3, Format: "csv"})
	require.NoError(t, err)

	grid := &models.MonthlyGrid{
		RoomID:       "room-1",
		Year:         2026,
		Month:        time.March,
		TotalMembers: 2,
		Days: []models.DayAvailability{
			{
				Date:               time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
				UnavailableCount:   1,
				UnavailableMembers: []string{"user-2"},
			},
		},
	}
	worker := NewReportWorker(store, &stubGridProvider{grid: grid}, files, 3, nil)
	require.NoError(t, worker.Handle(context.Background(), jobs.Job{ID: report.ID}))

	stored := store.reports[report.ID]
	assert.Equal(t, models.ReportStatusCompleted, stored.Status)
	require.NotNil(t, stored.FilePath)

	download, err := svc.Download(context.Background(), mustToken(t, signer, report.ID, *stored.FilePath))
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, models.ReportFormatCSV, download.Format)
}

func TestReportWorkerMarksFailedAfterRetries(t *testing.T) {
	store := newStubReportStore()
	dispatcher := &stubDispatcher{}
	svc, files, _ := testReportService(t, store, dispatcher)

	report, err := svc.RequestReport(context.Background(), "room-1", "user-1", ReportRequest{Year: 2026, Month: 3, Format: "pdf"})
	require.NoError(t, err)

	worker := NewReportWorker(store, &stubGridProvider{err: appErrors.ErrInternal}, files, 2, nil)

	// First attempt resets the report so the queue can retry.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: report.ID, Attempt: 0}))
	assert.Equal(t, models.ReportStatusPending, store.reports[report.ID].Status)

	// Final attempt records the failure.
	require.Error(t, worker.Handle(context.Background(), jobs.Job{ID: report.ID, Attempt: 2}))
	assert.Equal(t, models.ReportStatusFailed, store.reports[report.ID].Status)
	require.NotNil(t, store.reports[report.ID].Error)
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc, _, _ := testReportService(t, newStubReportStore(), &stubDispatcher{})

	_, err := svc.Download(context.Background(), "not.a.valid.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func mustToken(t *testing.T, signer *storage.SignedURLSigner, reportID, relPath string) string {
	t.Helper()
	token, _, err := signer.Generate(reportID, relPath)
	require.NoError(t, err)
	return token
}
