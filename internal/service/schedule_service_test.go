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

type stubUnavailabilityRepo struct {
	replaced map[string][]models.UnavailableTime
}

func newStubUnavailabilityRepo() *stubUnavailabilityRepo {
	return &stubUnavailabilityRepo{replaced: make(map[string][]models.UnavailableTime)}
}

func (s *stubUnavailabilityRepo) ReplaceForMember(_ context.Context, roomID, userID string, records []models.UnavailableTime) error {
	s.replaced[roomID+"/"+userID] = records
	return nil
}

func (s *stubUnavailabilityRepo) ListByMember(_ context.Context, roomID, userID string) ([]models.UnavailableTime, error) {
	return s.replaced[roomID+"/"+userID], nil
}

type stubScheduleRooms struct {
	room    *models.Room
	members map[string]bool
	bumps   int
}

func (s *stubScheduleRooms) FindByID(_ context.Context, id string) (*models.Room, error) {
	if s.room == nil || s.room.ID != id {
		return nil, sql.ErrNoRows
	}
	return s.room, nil
}

func (s *stubScheduleRooms) FindMember(_ context.Context, roomID, userID string) (*models.RoomMember, error) {
	if !s.members[userID] {
		return nil, sql.ErrNoRows
	}
	return &models.RoomMember{RoomID: roomID, UserID: userID, Role: models.RoleMember}, nil
}

func (s *stubScheduleRooms) BumpVersion(_ context.Context, _ string) error {
	s.bumps++
	return nil
}

func testScheduleService(repo *stubUnavailabilityRepo, rooms *stubScheduleRooms) *ScheduleService {
	cache := NewCacheService(nil, nil, nil, false, 0)
	return NewScheduleService(repo, rooms, cache, nil, nil)
}

func TestSubmitUnavailabilityReplacesSchedule(t *testing.T) {
	repo := newStubUnavailabilityRepo()
	rooms := &stubScheduleRooms{room: testRoom(), members: map[string]bool{"user-1": true}}
	svc := testScheduleService(repo, rooms)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records, err := svc.SubmitUnavailability(context.Background(), "room-1", "user-1", SubmitUnavailabilityRequest{
		Intervals: []UnavailableInterval{
			{StartAt: start, EndAt: start.Add(time.Hour)},
			{StartAt: start.Add(3 * time.Hour), EndAt: start.Add(4 * time.Hour)},
		},
	})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, repo.replaced["room-1/user-1"], 2)
	assert.Equal(t, 1, rooms.bumps)
}

func TestSubmitUnavailabilityEmptySetClears(t *testing.T) {
	repo := newStubUnavailabilityRepo()
	rooms := &stubScheduleRooms{room: testRoom(), members: map[string]bool{"user-1": true}}
	svc := testScheduleService(repo, rooms)

	records, err := svc.SubmitUnavailability(context.Background(), "room-1", "user-1", SubmitUnavailabilityRequest{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, rooms.bumps)
}

func TestSubmitUnavailabilityRejectsInvertedInterval(t *testing.T) {
	rooms := &stubScheduleRooms{room: testRoom(), members: map[string]bool{"user-1": true}}
	svc := testScheduleService(newStubUnavailabilityRepo(), rooms)

	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, err := svc.SubmitUnavailability(context.Background(), "room-1", "user-1", SubmitUnavailabilityRequest{
		Intervals: []UnavailableInterval{{StartAt: start, EndAt: start}},
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidInterval.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, rooms.bumps)
}

func TestSubmitUnavailabilityForbiddenForNonMembers(t *testing.T) {
	rooms := &stubScheduleRooms{room: testRoom(), members: map[string]bool{}}
	svc := testScheduleService(newStubUnavailabilityRepo(), rooms)

	_, err := svc.SubmitUnavailability(context.Background(), "room-1", "stranger", SubmitUnavailabilityRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetMemberUnavailabilityUnknownMember(t *testing.T) {
	rooms := &stubScheduleRooms{room: testRoom(), members: map[string]bool{"user-1": true}}
	svc := testScheduleService(newStubUnavailabilityRepo(), rooms)

	_, err := svc.GetMemberUnavailability(context.Background(), "room-1", "user-1", "ghost")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
