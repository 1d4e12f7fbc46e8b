package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
)

// UnavailabilityRepository persists members' unavailable time intervals.
type UnavailabilityRepository struct {
	db *sqlx.DB
}

// NewUnavailabilityRepository constructs an unavailability repository.
func NewUnavailabilityRepository(db *sqlx.DB) *UnavailabilityRepository {
	return &UnavailabilityRepository{db: db}
}

// ReplaceForMember overwrites a member's unavailability for a room: all prior
// records are deleted and the new set inserted within one transaction. A
// submission is a full replacement, never an incremental edit.
func (r *UnavailabilityRepository) ReplaceForMember(ctx context.Context, roomID, userID string, records []models.UnavailableTime) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace unavailability: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM unavailable_times WHERE room_id = $1 AND user_id = $2", roomID, userID); err != nil {
		return fmt.Errorf("clear unavailability: %w", err)
	}

	const insertQuery = `INSERT INTO unavailable_times (id, room_id, user_id, start_at, end_at, created_at)
VALUES (:id, :room_id, :user_id, :start_at, :end_at, :created_at)`
	now := time.Now().UTC()
	for i := range records {
		records[i].RoomID = roomID
		records[i].UserID = userID
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		records[i].CreatedAt = now
		if _, err := tx.NamedExecContext(ctx, insertQuery, records[i]); err != nil {
			return fmt.Errorf("insert unavailability: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace unavailability: %w", err)
	}
	return nil
}

// ListByMember returns a member's unavailability for a room, ordered by start.
func (r *UnavailabilityRepository) ListByMember(ctx context.Context, roomID, userID string) ([]models.UnavailableTime, error) {
	const query = `SELECT id, room_id, user_id, start_at, end_at, created_at
FROM unavailable_times WHERE room_id = $1 AND user_id = $2 ORDER BY start_at ASC`
	var records []models.UnavailableTime
	if err := r.db.SelectContext(ctx, &records, query, roomID, userID); err != nil {
		return nil, fmt.Errorf("list member unavailability: %w", err)
	}
	return records, nil
}

// ListOverlappingRange returns all records of a room whose interval overlaps
// [from, to), any member.
func (r *UnavailabilityRepository) ListOverlappingRange(ctx context.Context, roomID string, from, to time.Time) ([]models.UnavailableTime, error) {
	const query = `SELECT id, room_id, user_id, start_at, end_at, created_at
FROM unavailable_times
WHERE room_id = $1 AND start_at < $3 AND end_at > $2
ORDER BY start_at ASC`
	var records []models.UnavailableTime
	if err := r.db.SelectContext(ctx, &records, query, roomID, from, to); err != nil {
		return nil, fmt.Errorf("list unavailability in range: %w", err)
	}
	return records, nil
}

// ListEndingAfter returns records of a room ending at or after the cutoff.
// Used by the recommender to drop stale past intervals in one snapshot read.
func (r *UnavailabilityRepository) ListEndingAfter(ctx context.Context, roomID string, cutoff time.Time) ([]models.UnavailableTime, error) {
	const query = `SELECT id, room_id, user_id, start_at, end_at, created_at
FROM unavailable_times
WHERE room_id = $1 AND end_at >= $2
ORDER BY start_at ASC`
	var records []models.UnavailableTime
	if err := r.db.SelectContext(ctx, &records, query, roomID, cutoff); err != nil {
		return nil, fmt.Errorf("list active unavailability: %w", err)
	}
	return records, nil
}
