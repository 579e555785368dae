package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Allowed session lengths in minutes.
var SessionDurations = []int{45, 60, 90, 120}

const (
	DefaultSessionDuration = 90
	DefaultPresenceWindow  = 30 * time.Minute
)

// DefaultStartTime is used when a session is created without a start time.
var DefaultStartTime = ClockTime{Hour: 18}

// ValidSessionDuration reports whether minutes is an allowed session length.
func ValidSessionDuration(minutes int) bool {
	for _, d := range SessionDurations {
		if d == minutes {
			return true
		}
	}
	return false
}

// ClockTime is a wall clock time of day stored in a Postgres TIME column.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime accepts "HH:MM" or "HH:MM:SS".
func ParseClockTime(value string) (ClockTime, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", value)
}

// String renders the time as HH:MM.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Scan implements sql.Scanner. lib/pq hands TIME columns over as time.Time.
func (c *ClockTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		*c = ClockTime{Hour: v.Hour(), Minute: v.Minute()}
		return nil
	case []byte:
		parsed, err := ParseClockTime(string(v))
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case string:
		parsed, err := ParseClockTime(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case nil:
		*c = ClockTime{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
}

// Value implements driver.Valuer.
func (c ClockTime) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", c.Hour, c.Minute), nil
}

// MarshalJSON renders "HH:MM".
func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON parses "HH:MM".
func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Session is a single rehearsal of a group.
type Session struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"date"`
	StartTime ClockTime `db:"start_time" json:"start_time"`
	Duration  int       `db:"duration" json:"duration"`
	GroupID   string    `db:"group_id" json:"group_id"`
	Notes     string    `db:"notes" json:"notes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// StartsAt combines the session date and start time in loc.
func (s Session) StartsAt(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := s.Date.Date()
	return time.Date(y, m, d, s.StartTime.Hour, s.StartTime.Minute, 0, 0, loc)
}

// EndsAt is StartsAt plus the session duration.
func (s Session) EndsAt(loc *time.Location) time.Time {
	return s.StartsAt(loc).Add(time.Duration(s.Duration) * time.Minute)
}

// CanMarkPresence reports whether now is within window of the session start,
// before or after.
func (s Session) CanMarkPresence(now time.Time, window time.Duration, loc *time.Location) bool {
	diff := now.Sub(s.StartsAt(loc))
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}

// SessionFilter narrows the session listing of a group. Both date bounds are inclusive.
type SessionFilter struct {
	GroupID  string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// SessionListItem is a session row with attendance counters and timing hints.
type SessionListItem struct {
	Session
	AttendanceTotal   int     `db:"attendance_total" json:"attendance_total"`
	AttendancePresent int     `db:"attendance_present" json:"attendance_present"`
	CanMarkPresence   bool    `db:"-" json:"can_mark_presence"`
	StartsIn          *string `db:"-" json:"starts_in,omitempty"`
}

// FormatCountdown renders d as "HH:MM", prefixed with "N d " once it spans a day.
// Negative durations render as "00:00".
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	totalMinutes := int(d / time.Minute)
	days := totalMinutes / (24 * 60)
	hours := (totalMinutes % (24 * 60)) / 60
	minutes := totalMinutes % 60
	if days > 0 {
		return fmt.Sprintf("%d d %02d:%02d", days, hours, minutes)
	}
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}
