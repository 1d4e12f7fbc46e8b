package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
)

const roomColumns = `id, name, share_code, share_count, start_date, daily_start, daily_end, version, created_at, updated_at, deleted_at`

// RoomRepository persists meeting rooms and their memberships.
type RoomRepository struct {
	db *sqlx.DB
}

// NewRoomRepository constructs a room repository.
func NewRoomRepository(db *sqlx.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Create inserts a room and its host membership in one transaction.
func (r *RoomRepository) Create(ctx context.Context, room *models.Room, hostUserID string) error {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	room.CreatedAt = now
	room.UpdatedAt = now
	room.Version = 1

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create room: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const roomQuery = `INSERT INTO rooms (id, name, share_code, share_count, start_date, daily_start, daily_end, version, created_at, updated_at)
VALUES (:id, :name, :share_code, :share_count, :start_date, :daily_start, :daily_end, :version, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, roomQuery, room); err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	member := models.RoomMember{
		ID:       uuid.NewString(),
		RoomID:   room.ID,
		UserID:   hostUserID,
		Role:     models.RoleHost,
		JoinedAt: now,
	}
	const memberQuery = `INSERT INTO room_members (id, room_id, user_id, role, joined_at)
VALUES (:id, :room_id, :user_id, :role, :joined_at)`
	if _, err := tx.NamedExecContext(ctx, memberQuery, member); err != nil {
		return fmt.Errorf("create host membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create room: %w", err)
	}
	return nil
}

// FindByID fetches a room that has not been soft deleted.
func (r *RoomRepository) FindByID(ctx context.Context, id string) (*models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE id = $1 AND deleted_at IS NULL`, roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, id); err != nil {
		return nil, err
	}
	return &room, nil
}

// FindByShareCode fetches a live room by its share code.
func (r *RoomRepository) FindByShareCode(ctx context.Context, code string) (*models.Room, error) {
	query := fmt.Sprintf(`SELECT %s FROM rooms WHERE share_code = $1 AND deleted_at IS NULL`, roomColumns)
	var room models.Room
	if err := r.db.GetContext(ctx, &room, query, code); err != nil {
		return nil, err
	}
	return &room, nil
}

// ExistsByShareCode reports whether any room (including deleted ones) holds the code.
func (r *RoomRepository) ExistsByShareCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM rooms WHERE share_code = $1)", code); err != nil {
		return false, fmt.Errorf("check share code: %w", err)
	}
	return exists, nil
}

// ListByUser returns the rooms a user belongs to, newest join first.
func (r *RoomRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]models.Room, int, error) {
	offset := (page - 1) * pageSize
	query := fmt.Sprintf(`SELECT r.id, r.name, r.share_code, r.share_count, r.start_date, r.daily_start, r.daily_end, r.version, r.created_at, r.updated_at, r.deleted_at
FROM rooms r JOIN room_members m ON m.room_id = r.id
WHERE m.user_id = $1 AND r.deleted_at IS NULL
ORDER BY m.joined_at DESC LIMIT %d OFFSET %d`, pageSize, offset)

	var rooms []models.Room
	if err := r.db.SelectContext(ctx, &rooms, query, userID); err != nil {
		return nil, 0, fmt.Errorf("list rooms: %w", err)
	}

	var total int
	const countQuery = `SELECT COUNT(*) FROM rooms r JOIN room_members m ON m.room_id = r.id
WHERE m.user_id = $1 AND r.deleted_at IS NULL`
	if err := r.db.GetContext(ctx, &total, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count rooms: %w", err)
	}
	return rooms, total, nil
}

// UpdateSettings modifies room settings and bumps the version.
func (r *RoomRepository) UpdateSettings(ctx context.Context, room *models.Room) error {
	room.UpdatedAt = time.Now().UTC()
	const query = `UPDATE rooms SET name = :name, start_date = :start_date, daily_start = :daily_start,
daily_end = :daily_end, version = version + 1, updated_at = :updated_at
WHERE id = :id AND deleted_at IS NULL`
	if _, err := r.db.NamedExecContext(ctx, query, room); err != nil {
		return fmt.Errorf("update room: %w", err)
	}
	return nil
}

// RotateShareCode installs a fresh share code and resets the join budget.
func (r *RoomRepository) RotateShareCode(ctx context.Context, roomID, code string, shareCount int) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE rooms SET share_code = $1, share_count = $2, updated_at = NOW() WHERE id = $3", code, shareCount, roomID); err != nil {
		return fmt.Errorf("rotate share code: %w", err)
	}
	return nil
}

// DecrementShareCount consumes one join from the share code budget and
// returns the remaining count.
func (r *RoomRepository) DecrementShareCount(ctx context.Context, roomID string) (int, error) {
	var remaining int
	const query = `UPDATE rooms SET share_count = share_count - 1, updated_at = NOW()
WHERE id = $1 RETURNING share_count`
	if err := r.db.GetContext(ctx, &remaining, query, roomID); err != nil {
		return 0, fmt.Errorf("decrement share count: %w", err)
	}
	return remaining, nil
}

// BumpVersion advances the room's availability version.
func (r *RoomRepository) BumpVersion(ctx context.Context, roomID string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE rooms SET version = version + 1, updated_at = NOW() WHERE id = $1", roomID); err != nil {
		return fmt.Errorf("bump room version: %w", err)
	}
	return nil
}

// SoftDelete marks the room deleted and removes memberships and
// unavailability records in one transaction.
func (r *RoomRepository) SoftDelete(ctx context.Context, roomID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete room: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id = $1", roomID); err != nil {
		return fmt.Errorf("delete room members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM unavailable_times WHERE room_id = $1", roomID); err != nil {
		return fmt.Errorf("delete room unavailability: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE rooms SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1", roomID); err != nil {
		return fmt.Errorf("soft delete room: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete room: %w", err)
	}
	return nil
}

// AddMember inserts a membership row.
func (r *RoomRepository) AddMember(ctx context.Context, member *models.RoomMember) error {
	if member.ID == "" {
		member.ID = uuid.NewString()
	}
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	const query = `INSERT INTO room_members (id, room_id, user_id, role, joined_at)
VALUES (:id, :room_id, :user_id, :role, :joined_at)`
	if _, err := r.db.NamedExecContext(ctx, query, member); err != nil {
		return fmt.Errorf("add room member: %w", err)
	}
	return nil
}

// RemoveMember deletes a membership and the member's unavailability for the
// room in one transaction.
func (r *RoomRepository) RemoveMember(ctx context.Context, roomID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin remove member: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM room_members WHERE room_id = $1 AND user_id = $2", roomID, userID); err != nil {
		return fmt.Errorf("remove room member: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM unavailable_times WHERE room_id = $1 AND user_id = $2", roomID, userID); err != nil {
		return fmt.Errorf("remove member unavailability: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit remove member: %w", err)
	}
	return nil
}

// FindMember fetches the membership row for a user in a room.
func (r *RoomRepository) FindMember(ctx context.Context, roomID, userID string) (*models.RoomMember, error) {
	const query = `SELECT id, room_id, user_id, role, joined_at FROM room_members
WHERE room_id = $1 AND user_id = $2`
	var member models.RoomMember
	if err := r.db.GetContext(ctx, &member, query, roomID, userID); err != nil {
		return nil, err
	}
	return &member, nil
}

// ListMembers returns room members joined with user identity, host first.
func (r *RoomRepository) ListMembers(ctx context.Context, roomID string) ([]models.RoomMemberInfo, error) {
	const query = `SELECT m.user_id, u.nickname, m.role, m.joined_at
FROM room_members m JOIN users u ON u.id = m.user_id
WHERE m.room_id = $1
ORDER BY m.role = 'HOST' DESC, m.joined_at ASC`
	var members []models.RoomMemberInfo
	if err := r.db.SelectContext(ctx, &members, query, roomID); err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	return members, nil
}

// CountMembers returns the number of members in a room.
func (r *RoomRepository) CountMembers(ctx context.Context, roomID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM room_members WHERE room_id = $1", roomID); err != nil {
		return 0, fmt.Errorf("count room members: %w", err)
	}
	return count, nil
}
