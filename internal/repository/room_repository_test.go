package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whenwemeet/whenwemeet-api/internal/models"
)

func roomRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "share_code", "share_count", "start_date",
		"daily_start", "daily_end", "version", "created_at", "updated_at", "deleted_at",
	})
}

func TestRoomRepositoryCreateInsertsHostMembership(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO rooms").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO room_members").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	room := &models.Room{
		Name:       "team offsite",
		ShareCode:  "abc1234567890",
		ShareCount: 50,
		StartDate:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DailyStart: "09:00",
		DailyEnd:   "18:00",
	}
	require.NoError(t, repo.Create(context.Background(), room, "user-1"))
	require.NoError(t, mock.ExpectationsWereMet())

	assert.NotEmpty(t, room.ID)
	assert.Equal(t, int64(1), room.Version)
}

func TestRoomRepositoryFindByIDExcludesDeleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)
	now := time.Now().UTC()
	rows := roomRows().AddRow(
		"room-1", "team offsite", "abc1234567890", 48,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		"09:00", "18:00", int64(3), now, now, nil,
	)
	mock.ExpectQuery("SELECT (.+) FROM rooms WHERE id = \\$1 AND deleted_at IS NULL").
		WithArgs("room-1").
		WillReturnRows(rows)

	room, err := repo.FindByID(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, "abc1234567890", room.ShareCode)
	assert.Equal(t, int64(3), room.Version)
}

func TestRoomRepositorySoftDeleteCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM room_members").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec("DELETE FROM unavailable_times").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 9))
	mock.ExpectExec("UPDATE rooms SET deleted_at").
		WithArgs("room-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SoftDelete(context.Background(), "room-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryRemoveMemberCascades(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM room_members").
		WithArgs("room-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM unavailable_times").
		WithArgs("room-1", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	require.NoError(t, repo.RemoveMember(context.Background(), "room-1", "user-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoomRepositoryDecrementShareCount(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)
	mock.ExpectQuery("UPDATE rooms SET share_count = share_count - 1").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"share_count"}).AddRow(0))

	remaining, err := repo.DecrementShareCount(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestRoomRepositoryCountMembers(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRoomRepository(db)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM room_members").
		WithArgs("room-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	count, err := repo.CountMembers(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
