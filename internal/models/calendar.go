package models

import "time"

// AcademicYear is the studio season running 1 June to 31 May.
type AcademicYear struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AcademicYearFor returns the season containing today.
func AcademicYearFor(today time.Time) AcademicYear {
	y := today.Year()
	if today.Month() < time.June {
		y--
	}
	loc := today.Location()
	return AcademicYear{
		Start: time.Date(y, time.June, 1, 0, 0, 0, 0, loc),
		End:   time.Date(y+1, time.May, 31, 0, 0, 0, 0, loc),
	}
}

// Contains reports whether day falls within the season, bounds included.
func (a AcademicYear) Contains(day time.Time) bool {
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, a.Start.Location())
	return !d.Before(a.Start) && !d.After(a.End)
}

// CalendarSession is a session shown on a calendar day.
type CalendarSession struct {
	ID        string    `db:"id" json:"id"`
	Date      time.Time `db:"date" json:"-"`
	StartTime ClockTime `db:"start_time" json:"start_time"`
	Duration  int       `db:"duration" json:"duration"`
	Present   int       `db:"present" json:"present"`
	Total     int       `db:"total" json:"total"`
}

// CalendarDay is one day of a month grid.
type CalendarDay struct {
	Date     string            `json:"date"`
	Weekday  int               `json:"weekday"`
	Sessions []CalendarSession `json:"sessions"`
}

// CalendarMonth lists every day of a month with the sessions of one group.
type CalendarMonth struct {
	GroupID string        `json:"group_id"`
	Year    int           `json:"year"`
	Month   int           `json:"month"`
	Days    []CalendarDay `json:"days"`
}
