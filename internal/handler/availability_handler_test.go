package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/whenwemeet/whenwemeet-api/internal/middleware"
	"github.com/whenwemeet/whenwemeet-api/internal/models"
	"github.com/whenwemeet/whenwemeet-api/internal/service"
	"github.com/whenwemeet/whenwemeet-api/pkg/response"
)

type roomReaderMock struct {
	room *models.Room
}

func (m *roomReaderMock) FindByID(_ context.Context, id string) (*models.Room, error) {
	if m.room == nil || m.room.ID != id {
		return nil, sql.ErrNoRows
	}
	return m.room, nil
}

func (m *roomReaderMock) FindMember(_ context.Context, roomID, userID string) (*models.RoomMember, error) {
	return &models.RoomMember{RoomID: roomID, UserID: userID, Role: models.RoleMember}, nil
}

func (m *roomReaderMock) CountMembers(_ context.Context, _ string) (int, error) {
	return 1, nil
}

type scheduleReaderMock struct{}

func (m *scheduleReaderMock) ListOverlappingRange(_ context.Context, _ string, _, _ time.Time) ([]models.UnavailableTime, error) {
	return nil, nil
}

func (m *scheduleReaderMock) ListEndingAfter(_ context.Context, _ string, _ time.Time) ([]models.UnavailableTime, error) {
	return nil, nil
}

func testAvailabilityHandler() *AvailabilityHandler {
	rooms := &roomReaderMock{room: &models.Room{
		ID:         "room-1",
		Name:       "team offsite",
		StartDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		DailyStart: "09:00",
		DailyEnd:   "18:00",
		Version:    1,
	}}
	cache := service.NewCacheService(nil, nil, nil, false, 0)
	svc := service.NewAvailabilityService(rooms, &scheduleReaderMock{}, cache, nil, nil, service.AvailabilityConfig{HorizonDays: 90, MaxResults: 5})
	return NewAvailabilityHandler(svc)
}

func availabilityContext(t *testing.T, target string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "room-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	return c, w
}

func TestRecommendationsHandlerRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := testAvailabilityHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/rooms/room-1/recommendations", nil)
	c.Request = req

	handler.Recommendations(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecommendationsHandlerDefaultsQueryParams(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/recommendations")

	handler.Recommendations(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	slots, ok := envelope.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, slots, 5)
}

func TestRecommendationsHandlerRejectsInvalidDayType(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/recommendations?dayType=HOLIDAY")

	handler.Recommendations(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendationsHandlerRejectsZeroHorizon(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/recommendations?horizonDays=0")

	handler.Recommendations(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendationsHandlerRejectsNonNumericMaxResults(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/recommendations?maxResults=many")

	handler.Recommendations(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGridHandlerReturnsGrid(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/availability?year=2026&month=3")

	handler.Grid(c)

	require.Equal(t, http.StatusOK, w.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	grid, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "room-1", grid["room_id"])
}

func TestGridHandlerRejectsBadMonth(t *testing.T) {
	handler := testAvailabilityHandler()
	c, w := availabilityContext(t, "/rooms/room-1/availability?year=2026&month=13")

	handler.Grid(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
