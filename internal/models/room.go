package models

import (
	"fmt"
	"time"
)

// MemberRole represents a member's role inside a meeting room.
type MemberRole string

const (
	RoleHost   MemberRole = "HOST"
	RoleMember MemberRole = "MEMBER"
)

// Room represents a meeting room stored in the rooms table.
//
// DailyStart and DailyEnd are times of day in "HH:MM" format bounding the
// recurring candidate window; StartDate is the earliest date the room
// considers for meetings. Version bumps whenever room settings, membership
// or any member's unavailability change, and feeds availability cache keys.
type Room struct {
	ID         string     `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	ShareCode  string     `db:"share_code" json:"share_code"`
	ShareCount int        `db:"share_count" json:"-"`
	StartDate  time.Time  `db:"start_date" json:"start_date"`
	DailyStart string     `db:"daily_start" json:"daily_start"`
	DailyEnd   string     `db:"daily_end" json:"daily_end"`
	Version    int64      `db:"version" json:"version"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
	DeletedAt  *time.Time `db:"deleted_at" json:"-"`
}

// RoomMember links a user to a room.
type RoomMember struct {
	ID       string     `db:"id" json:"id"`
	RoomID   string     `db:"room_id" json:"room_id"`
	UserID   string     `db:"user_id" json:"user_id"`
	Role     MemberRole `db:"role" json:"role"`
	JoinedAt time.Time  `db:"joined_at" json:"joined_at"`
}

// RoomMemberInfo is a member row joined with user identity.
type RoomMemberInfo struct {
	UserID   string     `db:"user_id" json:"user_id"`
	Nickname string     `db:"nickname" json:"nickname"`
	Role     MemberRole `db:"role" json:"role"`
	JoinedAt time.Time  `db:"joined_at" json:"joined_at"`
}

// Window returns the room's validated daily window offsets from midnight.
// A window whose start is not strictly before its end (including overnight
// windows such as 22:00-02:00) is rejected.
func (r *Room) Window() (start, end time.Duration, err error) {
	start, err = ParseTimeOfDay(r.DailyStart)
	if err != nil {
		return 0, 0, err
	}
	end, err = ParseTimeOfDay(r.DailyEnd)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, fmt.Errorf("daily window %s-%s: start must be before end", r.DailyStart, r.DailyEnd)
	}
	return start, end, nil
}

// ParseTimeOfDay converts an "HH:MM" string into an offset from midnight.
func ParseTimeOfDay(raw string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", raw, err)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}

// FormatTimeOfDay renders an offset from midnight as "HH:MM".
func FormatTimeOfDay(offset time.Duration) string {
	offset = offset.Round(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(offset.Hours()), int(offset.Minutes())%60)
}
