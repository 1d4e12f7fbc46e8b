package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
)

type scheduleUnavailabilityRepository interface {
	ReplaceForMember(ctx context.Context, roomID, userID string, records []models.UnavailableTime) error
	ListByMember(ctx context.Context, roomID, userID string) ([]models.UnavailableTime, error)
}

type scheduleRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error)
	BumpVersion(ctx context.Context, roomID string) error
}

// UnavailableInterval is one submitted busy interval.
type UnavailableInterval struct {
	StartAt time.Time `json:"start_at" validate:"required"`
	EndAt   time.Time `json:"end_at" validate:"required"`
}

// SubmitUnavailabilityRequest replaces a member's unavailability for a room.
// Submitting an empty set clears it.
type SubmitUnavailabilityRequest struct {
	Intervals []UnavailableInterval `json:"intervals" validate:"dive"`
}

// ScheduleService manages members' unavailable time submissions.
type ScheduleService struct {
	repo      scheduleUnavailabilityRepository
	rooms     scheduleRoomReader
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs a ScheduleService.
func NewScheduleService(repo scheduleUnavailabilityRepository, rooms scheduleRoomReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ScheduleService{repo: repo, rooms: rooms, cache: cache, validator: validate, logger: logger}
}

// SubmitUnavailability overwrites the caller's unavailability in a room. A
// submission is the member's complete schedule, never a delta.
func (s *ScheduleService) SubmitUnavailability(ctx context.Context, roomID, userID string, req SubmitUnavailabilityRequest) ([]models.UnavailableTime, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unavailability payload")
	}
	if err := s.checkMembership(ctx, roomID, userID); err != nil {
		return nil, err
	}

	records := make([]models.UnavailableTime, 0, len(req.Intervals))
	for _, iv := range req.Intervals {
		record := models.UnavailableTime{
			StartAt: iv.StartAt.UTC(),
			EndAt:   iv.EndAt.UTC(),
		}
		if !record.Valid() {
			return nil, appErrors.Clone(appErrors.ErrInvalidInterval, "")
		}
		records = append(records, record)
	}

	if err := s.repo.ReplaceForMember(ctx, roomID, userID, records); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save unavailability")
	}

	if err := s.rooms.BumpVersion(ctx, roomID); err != nil {
		s.logger.Warn("failed to bump room version", zap.String("room_id", roomID), zap.Error(err))
	}
	s.cache.InvalidateRoom(ctx, roomID)
	return records, nil
}

// GetMemberUnavailability lists a member's current unavailability in a room.
// Any member may read any other member's schedule within the same room.
func (s *ScheduleService) GetMemberUnavailability(ctx context.Context, roomID, callerID, memberID string) ([]models.UnavailableTime, error) {
	if err := s.checkMembership(ctx, roomID, callerID); err != nil {
		return nil, err
	}
	if memberID != callerID {
		if _, err := s.rooms.FindMember(ctx, roomID, memberID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "member not found in this room")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
	}

	records, err := s.repo.ListByMember(ctx, roomID, memberID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list unavailability")
	}
	return records, nil
}

func (s *ScheduleService) checkMembership(ctx context.Context, roomID, userID string) error {
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
