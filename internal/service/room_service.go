package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
)

const (
	shareCodeLength      = 13
	maxShareCodeAttempts = 10

	defaultPageSize = 20
	maxPageSize     = 100
)

type roomRepository interface {
	Create(ctx context.Context, room *models.Room, hostUserID string) error
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindByShareCode(ctx context.Context, code string) (*models.Room, error)
	ExistsByShareCode(ctx context.Context, code string) (bool, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Room, int, error)
	UpdateSettings(ctx context.Context, room *models.Room) error
	RotateShareCode(ctx context.Context, roomID, code string, shareCount int) error
	DecrementShareCount(ctx context.Context, roomID string) (int, error)
	BumpVersion(ctx context.Context, roomID string) error
	SoftDelete(ctx context.Context, roomID string) error
	AddMember(ctx context.Context, member *models.RoomMember) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	FindMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error)
	ListMembers(ctx context.Context, roomID string) ([]models.RoomMemberInfo, error)
	CountMembers(ctx context.Context, roomID string) (int, error)
}

// CreateRoomRequest creates a new meeting room.
type CreateRoomRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	StartDate  string `json:"start_date" validate:"required"`
	DailyStart string `json:"daily_start" validate:"required"`
	DailyEnd   string `json:"daily_end" validate:"required"`
}

// UpdateRoomRequest replaces a room's settings.
type UpdateRoomRequest struct {
	Name       string `json:"name" validate:"required,max=100"`
	StartDate  string `json:"start_date" validate:"required"`
	DailyStart string `json:"daily_start" validate:"required"`
	DailyEnd   string `json:"daily_end" validate:"required"`
}

// JoinRoomRequest joins a room through its share code.
type JoinRoomRequest struct {
	ShareCode string `json:"share_code" validate:"required,len=13"`
}

// ShareCodeSummary is the public preview shown on the join page before a
// user commits to joining.
type ShareCodeSummary struct {
	RoomName    string `json:"room_name"`
	MemberCount int    `json:"member_count"`
	DailyStart  string `json:"daily_start"`
	DailyEnd    string `json:"daily_end"`
}

// RoomConfig tunes room behaviour.
type RoomConfig struct {
	ShareCodeMaxJoins int
}

// RoomService manages meeting rooms, memberships and share codes.
type RoomService struct {
	repo      roomRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	config    RoomConfig
}

// NewRoomService constructs a RoomService.
func NewRoomService(repo roomRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger, config RoomConfig) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.ShareCodeMaxJoins <= 0 {
		config.ShareCodeMaxJoins = 50
	}
	return &RoomService{repo: repo, cache: cache, validator: validate, logger: logger, config: config}
}

// CreateRoom creates a room with the caller as host and a fresh share code.
func (s *RoomService) CreateRoom(ctx context.Context, userID string, req CreateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_date must be YYYY-MM-DD")
	}

	room := &models.Room{
		Name:       strings.TrimSpace(req.Name),
		ShareCount: s.config.ShareCodeMaxJoins,
		StartDate:  startDate,
		DailyStart: req.DailyStart,
		DailyEnd:   req.DailyEnd,
	}
	if _, _, err := room.Window(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, err.Error())
	}

	code, err := s.allocateShareCode(ctx)
	if err != nil {
		return nil, err
	}
	room.ShareCode = code

	if err := s.repo.Create(ctx, room, userID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create room")
	}
	return room, nil
}

// GetRoom returns a room the caller belongs to.
func (s *RoomService) GetRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	return room, nil
}

// ListRooms returns the rooms the caller belongs to, paginated.
func (s *RoomService) ListRooms(ctx context.Context, userID string, page, pageSize int) ([]models.Room, models.Pagination, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	rooms, total, err := s.repo.ListByUser(ctx, userID, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list rooms")
	}
	return rooms, models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// UpdateSettings replaces a room's settings. Host only. The room version is
// bumped so cached availability becomes unreachable.
func (s *RoomService) UpdateSettings(ctx context.Context, roomID, userID string, req UpdateRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid room payload")
	}
	room, err := s.findRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if err := s.requireHost(ctx, roomID, userID); err != nil {
		return nil, err
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "start_date must be YYYY-MM-DD")
	}

	room.Name = strings.TrimSpace(req.Name)
	room.StartDate = startDate
	room.DailyStart = req.DailyStart
	room.DailyEnd = req.DailyEnd
	if _, _, err := room.Window(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, err.Error())
	}

	if err := s.repo.UpdateSettings(ctx, room); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update room")
	}
	room.Version++
	s.cache.InvalidateRoom(ctx, roomID)
	return room, nil
}

// DeleteRoom soft deletes a room and its memberships. Host only.
func (s *RoomService) DeleteRoom(ctx context.Context, roomID, userID string) error {
	if _, err := s.findRoom(ctx, roomID); err != nil {
		return err
	}
	if err := s.requireHost(ctx, roomID, userID); err != nil {
		return err
	}
	if err := s.repo.SoftDelete(ctx, roomID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete room")
	}
	s.cache.InvalidateRoom(ctx, roomID)
	return nil
}

// JoinRoom adds the caller to the room behind a share code. Every join
// consumes one unit of the code's budget; when the budget reaches zero the
// code is rotated so stale links stop working.
func (s *RoomService) JoinRoom(ctx context.Context, userID string, req JoinRoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid join payload")
	}

	room, err := s.repo.FindByShareCode(ctx, req.ShareCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found for share code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch room")
	}

	if _, err := s.repo.FindMember(ctx, room.ID, userID); err == nil {
		return nil, appErrors.ErrAlreadyMember
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}

	member := &models.RoomMember{
		ID:     uuid.NewString(),
		RoomID: room.ID,
		UserID: userID,
		Role:   models.RoleMember,
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to join room")
	}

	remaining, err := s.repo.DecrementShareCount(ctx, room.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume share code")
	}
	if remaining <= 0 {
		code, err := s.allocateShareCode(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.repo.RotateShareCode(ctx, room.ID, code, s.config.ShareCodeMaxJoins); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate share code")
		}
		room.ShareCode = code
		room.ShareCount = s.config.ShareCodeMaxJoins
	} else {
		room.ShareCount = remaining
	}

	if err := s.repo.BumpVersion(ctx, room.ID); err != nil {
		s.logger.Warn("failed to bump room version", zap.String("room_id", room.ID), zap.Error(err))
	}
	s.cache.InvalidateRoom(ctx, room.ID)
	return room, nil
}

// ShareCodePreview resolves a share code into its join-page summary. No
// membership is required; the response exposes nothing beyond the room name,
// its size and the daily window.
func (s *RoomService) ShareCodePreview(ctx context.Context, code string) (*ShareCodeSummary, error) {
	code = strings.TrimSpace(code)
	if len(code) != shareCodeLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "share code must be 13 characters")
	}

	room, err := s.repo.FindByShareCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found for share code")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch room")
	}

	count, err := s.repo.CountMembers(ctx, room.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
	}

	return &ShareCodeSummary{
		RoomName:    room.Name,
		MemberCount: count,
		DailyStart:  room.DailyStart,
		DailyEnd:    room.DailyEnd,
	}, nil
}

// LeaveRoom removes the caller from a room. The host cannot leave; the room
// must be deleted instead.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID, userID string) error {
	if _, err := s.findRoom(ctx, roomID); err != nil {
		return err
	}
	member, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if member.Role == models.RoleHost {
		return appErrors.Clone(appErrors.ErrForbidden, "host cannot leave; delete the room instead")
	}

	if err := s.repo.RemoveMember(ctx, roomID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to leave room")
	}
	if err := s.repo.BumpVersion(ctx, roomID); err != nil {
		s.logger.Warn("failed to bump room version", zap.String("room_id", roomID), zap.Error(err))
	}
	s.cache.InvalidateRoom(ctx, roomID)
	return nil
}

// ListMembers returns room members, host first. Members only.
func (s *RoomService) ListMembers(ctx context.Context, roomID, userID string) ([]models.RoomMemberInfo, error) {
	if _, err := s.findRoom(ctx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.requireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, roomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list members")
	}
	return members, nil
}

func (s *RoomService) findRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.repo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch room")
	}
	return room, nil
}

func (s *RoomService) requireMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error) {
	member, err := s.repo.FindMember(ctx, roomID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this room")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	return member, nil
}

func (s *RoomService) requireHost(ctx context.Context, roomID, userID string) error {
	member, err := s.requireMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if member.Role != models.RoleHost {
		return appErrors.Clone(appErrors.ErrForbidden, "only the host may do this")
	}
	return nil
}

// allocateShareCode derives 13-character codes from random UUIDs until one is
// globally unused, bounded by maxShareCodeAttempts.
func (s *RoomService) allocateShareCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxShareCodeAttempts; attempt++ {
		code := strings.ReplaceAll(uuid.NewString(), "-", "")[:shareCodeLength]
		exists, err := s.repo.ExistsByShareCode(ctx, code)
		if err != nil {
			return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check share code")
		}
		if !exists {
			return code, nil
		}
	}
	return "", appErrors.ErrShareCodeExhausted
}
