package models

import (
	"fmt"
	"math"
	"time"
)

// AttendanceStatus describes how a student attended a session.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

var attendanceLabels = map[AttendanceStatus]string{
	AttendancePresent: "Present",
	AttendanceAbsent:  "Absent",
	AttendanceLate:    "Late",
	AttendanceExcused: "Excused",
}

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	_, ok := attendanceLabels[s]
	return ok
}

// Label returns the human readable status.
func (s AttendanceStatus) Label() string {
	if label, ok := attendanceLabels[s]; ok {
		return label
	}
	return string(s)
}

// AttendanceRecord is the attendance of one student at one session.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	SessionID string           `db:"session_id" json:"session_id"`
	StudentID string           `db:"student_id" json:"student_id"`
	Present   bool             `db:"present" json:"present"`
	Status    AttendanceStatus `db:"status" json:"status"`
	Notes     string           `db:"notes" json:"notes"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`
}

// Normalize brings the status in line with the present flag. It must run
// before every write.
func (r *AttendanceRecord) Normalize() {
	if r.Status == "" {
		r.Status = AttendanceAbsent
	}
	switch {
	case r.Present && r.Status == AttendanceAbsent:
		r.Status = AttendancePresent
	case !r.Present && (r.Status == AttendancePresent || r.Status == AttendanceLate):
		r.Status = AttendanceAbsent
	}
}

// DisplayStatus is the label shown on attendance sheets.
func (r AttendanceRecord) DisplayStatus() string {
	if r.Status != AttendancePresent {
		return r.Status.Label()
	}
	if r.Present {
		return AttendancePresent.Label()
	}
	return AttendanceAbsent.Label()
}

// AttendanceSheetRow is a record joined with its student's name.
type AttendanceSheetRow struct {
	AttendanceRecord
	StudentName   string `db:"student_name" json:"student_name"`
	StatusDisplay string `db:"-" json:"status_display"`
}

// AttendanceSummary counts present students out of all recorded.
type AttendanceSummary struct {
	Present int `json:"present"`
	Total   int `json:"total"`
	Percent int `json:"percent"`
}

// NewAttendanceSummary computes the rounded percentage, 0 for an empty session.
func NewAttendanceSummary(present, total int) AttendanceSummary {
	summary := AttendanceSummary{Present: present, Total: total}
	if total > 0 {
		summary.Percent = int(math.RoundToEven(float64(present) * 100 / float64(total)))
	}
	return summary
}

// String renders "Present: p/t (x%)".
func (s AttendanceSummary) String() string {
	return fmt.Sprintf("Present: %d/%d (%d%%)", s.Present, s.Total, s.Percent)
}

// AttendanceSheet is the full register of one session.
type AttendanceSheet struct {
	Session         Session              `json:"session"`
	Group           Group                `json:"group"`
	GroupName       string               `json:"group_name"`
	CanMarkPresence bool                 `json:"can_mark_presence"`
	Records         []AttendanceSheetRow `json:"records"`
	Summary         AttendanceSummary    `json:"summary"`
}

// AttendanceFilter narrows the admin attendance listing.
type AttendanceFilter struct {
	Status   *AttendanceStatus
	Present  *bool
	GroupID  string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Page     int
	PageSize int
}

// AttendanceListItem is an admin listing row.
type AttendanceListItem struct {
	AttendanceRecord
	StudentName      string      `db:"student_name" json:"student_name"`
	SessionDate      time.Time   `db:"session_date" json:"session_date"`
	SessionStart     ClockTime   `db:"session_start" json:"session_start"`
	GroupID          string      `db:"group_id" json:"group_id"`
	GroupAgeCategory AgeCategory `db:"group_age_category" json:"-"`
	GroupYear        int         `db:"group_year" json:"-"`
	GroupGender      Gender      `db:"group_gender" json:"-"`
	GroupName        string      `db:"-" json:"group_name"`
	StatusDisplay    string      `db:"-" json:"status_display"`
}
