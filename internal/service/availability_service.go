package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/whenwemeet/whenwemeet-api/internal/interval"
	"github.com/whenwemeet/whenwemeet-api/internal/models"
	appErrors "github.com/whenwemeet/whenwemeet-api/pkg/errors"
)

type availabilityRoomReader interface {
	FindByID(ctx context.Context, id string) (*models.Room, error)
	FindMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error)
	CountMembers(ctx context.Context, roomID string) (int, error)
}

type availabilityScheduleReader interface {
	ListOverlappingRange(ctx context.Context, roomID string, from, to time.Time) ([]models.UnavailableTime, error)
	ListEndingAfter(ctx context.Context, roomID string, cutoff time.Time) ([]models.UnavailableTime, error)
}

// RecommendationQuery parameterises a recommendation scan. All fields must be
// set; handlers fill defaults for omitted query parameters.
type RecommendationQuery struct {
	DayType     models.DayType
	MaxResults  int
	HorizonDays int
}

// AvailabilityConfig bounds recommendation scans.
type AvailabilityConfig struct {
	HorizonDays int
	MaxResults  int
}

// AvailabilityService computes monthly availability grids and meeting slot
// recommendations from members' merged unavailability.
type AvailabilityService struct {
	rooms     availabilityRoomReader
	schedules availabilityScheduleReader
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	config    AvailabilityConfig

	now func() time.Time
}

// NewAvailabilityService constructs an AvailabilityService.
func NewAvailabilityService(rooms availabilityRoomReader, schedules availabilityScheduleReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger, config AvailabilityConfig) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.HorizonDays <= 0 {
		config.HorizonDays = 90
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 5
	}
	return &AvailabilityService{
		rooms:     rooms,
		schedules: schedules,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		config:    config,
		now:       time.Now,
	}
}

// Defaults returns the configured scan bounds.
func (s *AvailabilityService) Defaults() AvailabilityConfig {
	return s.config
}

// MonthlyGrid builds the per-day availability of a room for one month. Days
// where every member is available are omitted. Days before the room's start
// date are never scanned.
func (s *AvailabilityService) MonthlyGrid(ctx context.Context, roomID, userID string, year int, month time.Month) (*models.MonthlyGrid, error) {
	if year < 1 || month < time.January || month > time.December {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year or month")
	}

	room, err := s.loadRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	cacheKey := GridCacheKey(roomID, room.Version, year, month)
	var cached models.MonthlyGrid
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return &cached, nil
	}

	dailyStart, dailyEnd, err := room.Window()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, err.Error())
	}

	totalMembers, err := s.rooms.CountMembers(ctx, roomID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count members")
	}

	monthStart := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)
	scanStart := monthStart
	if roomStart := dateOnly(room.StartDate); roomStart.After(scanStart) {
		scanStart = roomStart
	}

	grid := &models.MonthlyGrid{
		RoomID:       roomID,
		Year:         year,
		Month:        month,
		TotalMembers: totalMembers,
		Days:         []models.DayAvailability{},
	}
	if !scanStart.Before(monthEnd) {
		s.cache.Set(ctx, cacheKey, grid)
		return grid, nil
	}

	queryStart := time.Now()
	records, err := s.schedules.ListOverlappingRange(ctx, roomID, scanStart, monthEnd)
	s.metrics.ObserveDBQuery("unavailability_month", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailability")
	}

	for day := scanStart; day.Before(monthEnd); day = day.AddDate(0, 0, 1) {
		window := interval.Span{Start: day.Add(dailyStart), End: day.Add(dailyEnd)}

		seen := make(map[string]struct{})
		for _, record := range records {
			busy := interval.Span{Start: record.StartAt, End: record.EndAt}
			if busy.Overlaps(window) {
				seen[record.UserID] = struct{}{}
			}
		}
		if len(seen) == 0 {
			continue
		}

		members := make([]string, 0, len(seen))
		for id := range seen {
			members = append(members, id)
		}
		sort.Strings(members)
		grid.Days = append(grid.Days, models.DayAvailability{
			Date:               day,
			UnavailableCount:   len(members),
			UnavailableMembers: members,
		})
	}

	s.cache.Set(ctx, cacheKey, grid)
	return grid, nil
}

// Recommend scans calendar days through anchor+HorizonDays inclusive and
// returns for each matching day the longest window slice free of every
// member's merged unavailability, capped at MaxResults slots. The scan
// anchors on the later of today and the room's start date; unavailability is
// fetched once as a snapshot and merged once.
func (s *AvailabilityService) Recommend(ctx context.Context, roomID, userID string, q RecommendationQuery) ([]models.RecommendedSlot, error) {
	if q.HorizonDays <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "horizon_days must be positive")
	}
	if q.MaxResults <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "max_results must be positive")
	}
	if q.HorizonDays > s.config.HorizonDays {
		q.HorizonDays = s.config.HorizonDays
	}
	if q.MaxResults > s.config.MaxResults {
		q.MaxResults = s.config.MaxResults
	}
	if q.DayType == "" {
		q.DayType = models.DayTypeAll
	}

	room, err := s.loadRoom(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	cacheKey := RecommendationCacheKey(roomID, room.Version, now, string(q.DayType), q.MaxResults, q.HorizonDays)
	var cached []models.RecommendedSlot
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	dailyStart, dailyEnd, err := room.Window()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidWindow.Code, appErrors.ErrInvalidWindow.Status, err.Error())
	}

	queryStart := time.Now()
	records, err := s.schedules.ListEndingAfter(ctx, roomID, now)
	s.metrics.ObserveDBQuery("unavailability_snapshot", time.Since(queryStart))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load unavailability")
	}

	busy := make([]interval.Span, 0, len(records))
	for _, record := range records {
		busy = append(busy, interval.Span{Start: record.StartAt, End: record.EndAt})
	}
	merged := interval.Merge(busy)

	scanStart := dateOnly(now)
	if roomStart := dateOnly(room.StartDate); roomStart.After(scanStart) {
		scanStart = roomStart
	}

	slots := make([]models.RecommendedSlot, 0, q.MaxResults)
	for i := 0; i <= q.HorizonDays && len(slots) < q.MaxResults; i++ {
		day := scanStart.AddDate(0, 0, i)
		if !q.DayType.Accepts(day) {
			continue
		}

		window := interval.Span{Start: day.Add(dailyStart), End: day.Add(dailyEnd)}
		free := interval.FreeWithin(window, merged)
		best, ok := interval.Longest(free)
		if !ok {
			continue
		}
		slots = append(slots, models.RecommendedSlot{
			Date:  day,
			Start: models.FormatTimeOfDay(best.Start.Sub(day)),
			End:   models.FormatTimeOfDay(best.End.Sub(day)),
		})
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].Date.Before(slots[j].Date)
	})

	s.cache.Set(ctx, cacheKey, slots)
	return slots, nil
}

func (s *AvailabilityService) loadRoom(ctx context.Context, roomID, userID string) (*models.Room, error) {
	room, err := s.rooms.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "room not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch room")
	}
	if userID != "" {
		if _, err := s.rooms.FindMember(ctx, roomID, userID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "not a member of this room")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
		}
	}
	return room, nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
