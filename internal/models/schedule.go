package models

import "time"

// UnavailableTime is a half-open interval [StartAt, EndAt) during which a
// member cannot attend meetings of a room.
type UnavailableTime struct {
	ID        string    `db:"id" json:"id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Valid reports whether the interval is well formed (strictly positive length).
func (u UnavailableTime) Valid() bool {
	return u.StartAt.Before(u.EndAt)
}
