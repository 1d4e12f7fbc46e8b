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
)

type stubRoomReader struct {
	room        *models.Room
	memberRole  models.MemberRole
	notMember   bool
	memberCount int
}

func (s *stubRoomReader) FindByID(_ context.Context, _ string) (*models.Room, error) {
	if s.room == nil {
		return nil, sql.ErrNoRows
	}
	return s.room, nil
}

func (s *stubRoomReader) FindMember(_ context.Context, roomID, userID string) (*models.RoomMember, error) {
	if s.notMember {
		return nil, sql.ErrNoRows
	}
	role := s.memberRole
	if role == "" {
		role = models.RoleMember
	}
	return &models.RoomMember{RoomID: roomID, UserID: userID, Role: role}, nil
}

func (s *stubRoomReader) CountMembers(_ context.Context, _ string) (int, error) {
	return s.memberCount, nil
}

type stubScheduleReader struct {
	records []models.UnavailableTime
}

func (s *stubScheduleReader) ListOverlappingRange(_ context.Context, _ string, from, to time.Time) ([]models.UnavailableTime, error) {
	result := make([]models.UnavailableTime, 0, len(s.records))
	for _, r := range s.records {
		if r.StartAt.Before(to) && r.EndAt.After(from) {
			result = append(result, r)
		}
	}
	return result, nil
}

func (s *stubScheduleReader) ListEndingAfter(_ context.Context, _ string, cutoff time.Time) ([]models.UnavailableTime, error) {
	result := make([]models.UnavailableTime, 0, len(s.records))
	for _, r := range s.records {
		if !r.EndAt.Before(cutoff) {
			result = append(result, r)
		}
	}
	return result, nil
}

func testRoom() *models.Room {
	return &models.Room{
		ID:         "room-1",
		Name:       "team offsite",
		StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DailyStart: "09:00",
		DailyEnd:   "18:00",
		Version:    1,
	}
}

func newAvailabilityService(rooms *stubRoomReader, schedules *stubScheduleReader) *AvailabilityService {
	cache := NewCacheService(nil, nil, nil, false, 0)
	svc := NewAvailabilityService(rooms, schedules, cache, nil, nil, AvailabilityConfig{HorizonDays: 90, MaxResults: 5})
	svc.now = func() time.Time {
		// Monday.
		return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func busyAt(userID string, start, end time.Time) models.UnavailableTime {
	return models.UnavailableTime{UserID: userID, StartAt: start, EndAt: end}
}

func TestRecommendEmptyScheduleReturnsFullWindows(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 2}, &stubScheduleReader{})

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  5,
		HorizonDays: 30,
	})
	require.NoError(t, err)
	require.Len(t, slots, 5)

	for i, slot := range slots {
		assert.Equal(t, time.Date(2026, 3, 2+i, 0, 0, 0, 0, time.UTC), slot.Date)
		assert.Equal(t, "09:00", slot.Start)
		assert.Equal(t, "18:00", slot.End)
	}
}

func TestRecommendMergesTouchingIntervalsAcrossMembers(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day.Add(9*time.Hour), day.Add(10*time.Hour)),
		busyAt("user-2", day.Add(10*time.Hour), day.Add(11*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 2}, schedules)

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  1,
		HorizonDays: 1,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, day, slots[0].Date)
	assert.Equal(t, "11:00", slots[0].Start)
	assert.Equal(t, "18:00", slots[0].End)
}

func TestRecommendTieBreaksOnEarliestStart(t *testing.T) {
	room := testRoom()
	room.DailyStart = "08:00"
	room.DailyEnd = "12:00"
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day.Add(9*time.Hour), day.Add(10*time.Hour)),
		busyAt("user-2", day.Add(11*time.Hour), day.Add(12*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: room, memberCount: 2}, schedules)

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  1,
		HorizonDays: 1,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, "08:00", slots[0].Start)
	assert.Equal(t, "09:00", slots[0].End)
}

func TestRecommendSkipsFullyBlockedDays(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day.Add(9*time.Hour), day.Add(18*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, schedules)

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  5,
		HorizonDays: 1,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, day.AddDate(0, 0, 1), slots[0].Date)
}

func TestRecommendScanIncludesHorizonEndDate(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, &stubScheduleReader{})
	svc.now = func() time.Time {
		// Friday.
		return time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	}

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeWeekend,
		MaxResults:  5,
		HorizonDays: 1,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC), slots[0].Date)
	assert.Equal(t, "09:00", slots[0].Start)
	assert.Equal(t, "18:00", slots[0].End)
}

func TestRecommendWeekendFilter(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, &stubScheduleReader{})

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeWeekend,
		MaxResults:  5,
		HorizonDays: 7,
	})
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.Equal(t, time.Saturday, slots[0].Date.Weekday())
	assert.Equal(t, time.Sunday, slots[1].Date.Weekday())
}

func TestRecommendAnchorsOnFutureRoomStartDate(t *testing.T) {
	room := testRoom()
	room.StartDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	svc := newAvailabilityService(&stubRoomReader{room: room, memberCount: 1}, &stubScheduleReader{})

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  1,
		HorizonDays: 5,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.Equal(t, room.StartDate, slots[0].Date)
}

func TestRecommendRejectsNonPositiveHorizon(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, &stubScheduleReader{})

	_, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  5,
		HorizonDays: 0,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRecommendClampsToConfiguredBounds(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, &stubScheduleReader{})

	slots, err := svc.Recommend(context.Background(), "room-1", "user-1", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  50,
		HorizonDays: 10000,
	})
	require.NoError(t, err)
	assert.Len(t, slots, 5)
}

func TestRecommendForbidsNonMembers(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), notMember: true}, &stubScheduleReader{})

	_, err := svc.Recommend(context.Background(), "room-1", "stranger", RecommendationQuery{
		DayType:     models.DayTypeAll,
		MaxResults:  5,
		HorizonDays: 7,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMonthlyGridCountsDistinctMembersPerDay(t *testing.T) {
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day2.Add(9*time.Hour), day2.Add(10*time.Hour)),
		busyAt("user-1", day2.Add(14*time.Hour), day2.Add(15*time.Hour)),
		busyAt("user-2", day2.Add(17*time.Hour), day2.Add(18*time.Hour)),
		busyAt("user-2", day3.Add(9*time.Hour), day3.Add(18*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 2}, schedules)

	grid, err := svc.MonthlyGrid(context.Background(), "room-1", "user-1", 2026, time.March)
	require.NoError(t, err)

	assert.Equal(t, 2, grid.TotalMembers)
	require.Len(t, grid.Days, 2)
	assert.Equal(t, day2, grid.Days[0].Date)
	assert.Equal(t, 2, grid.Days[0].UnavailableCount)
	assert.Equal(t, []string{"user-1", "user-2"}, grid.Days[0].UnavailableMembers)
	assert.Equal(t, day3, grid.Days[1].Date)
	assert.Equal(t, 1, grid.Days[1].UnavailableCount)
	assert.Equal(t, []string{"user-2"}, grid.Days[1].UnavailableMembers)
}

func TestMonthlyGridCountsOvernightIntervalOnBothDays(t *testing.T) {
	day2 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day2.Add(17*time.Hour), day2.Add(34*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, schedules)

	grid, err := svc.MonthlyGrid(context.Background(), "room-1", "user-1", 2026, time.March)
	require.NoError(t, err)

	require.Len(t, grid.Days, 2)
	assert.Equal(t, day2, grid.Days[0].Date)
	assert.Equal(t, day2.AddDate(0, 0, 1), grid.Days[1].Date)
}

func TestMonthlyGridClampsToRoomStartDate(t *testing.T) {
	room := testRoom()
	room.StartDate = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day5 := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	schedules := &stubScheduleReader{records: []models.UnavailableTime{
		busyAt("user-1", day5.Add(9*time.Hour), day5.Add(10*time.Hour)),
	}}
	svc := newAvailabilityService(&stubRoomReader{room: room, memberCount: 1}, schedules)

	grid, err := svc.MonthlyGrid(context.Background(), "room-1", "user-1", 2026, time.March)
	require.NoError(t, err)
	assert.Empty(t, grid.Days)
}

func TestMonthlyGridRejectsInvalidMonth(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{room: testRoom(), memberCount: 1}, &stubScheduleReader{})

	_, err := svc.MonthlyGrid(context.Background(), "room-1", "user-1", 2026, time.Month(13))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMonthlyGridUnknownRoom(t *testing.T) {
	svc := newAvailabilityService(&stubRoomReader{}, &stubScheduleReader{})

	_, err := svc.MonthlyGrid(context.Background(), "missing", "user-1", 2026, time.March)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
