package models

import (
	"strings"
	"time"
)

// DayType filters which calendar days the recommender scans.
type DayType string

const (
	DayTypeAll     DayType = "ALL"
	DayTypeWeekday DayType = "WEEKDAY"
	DayTypeWeekend DayType = "WEEKEND"
)

// ParseDayType normalises a raw day type string. Empty input means ALL.
func ParseDayType(raw string) (DayType, bool) {
	switch DayType(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", DayTypeAll:
		return DayTypeAll, true
	case DayTypeWeekday:
		return DayTypeWeekday, true
	case DayTypeWeekend:
		return DayTypeWeekend, true
	default:
		return "", false
	}
}

// Accepts reports whether the given date passes the filter.
func (t DayType) Accepts(date time.Time) bool {
	weekday := date.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	switch t {
	case DayTypeWeekday:
		return !isWeekend
	case DayTypeWeekend:
		return isWeekend
	default:
		return true
	}
}

// DayAvailability summarises one calendar day of a room's monthly grid.
// Days where every member is available are omitted from grid responses.
type DayAvailability struct {
	Date               time.Time `json:"date"`
	UnavailableCount   int       `json:"unavailable_count"`
	UnavailableMembers []string  `json:"unavailable_members"`
}

// MonthlyGrid is the per-day member availability of a room for one month.
type MonthlyGrid struct {
	RoomID       string            `json:"room_id"`
	Year         int               `json:"year"`
	Month        time.Month        `json:"month"`
	TotalMembers int               `json:"total_members"`
	Days         []DayAvailability `json:"days"`
}

// RecommendedSlot is the best free window found for a single date.
type RecommendedSlot struct {
	Date  time.Time `json:"date"`
	Start string    `json:"start"`
	End   string    `json:"end"`
}
