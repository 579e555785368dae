package models

import (
	"strings"
	"time"
)

// StudentStatus tracks where a student is in the programme.
type StudentStatus string

const (
	StudentParticipant StudentStatus = "participant"
	StudentGraduate    StudentStatus = "graduate"
	StudentExpelled    StudentStatus = "expelled"
)

// Valid returns true when the status is a supported value.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentParticipant, StudentGraduate, StudentExpelled:
		return true
	default:
		return false
	}
}

// Student represents a studio participant. Every student belongs to exactly one group.
type Student struct {
	ID             string        `db:"id" json:"id"`
	LastName       string        `db:"last_name" json:"last_name"`
	FirstName      string        `db:"first_name" json:"first_name"`
	MiddleName     string        `db:"middle_name" json:"middle_name"`
	FullName       string        `db:"full_name" json:"full_name"`
	BirthDate      *time.Time    `db:"birth_date" json:"birth_date,omitempty"`
	Gender         Gender        `db:"gender" json:"gender"`
	GroupID        string        `db:"group_id" json:"group_id"`
	Status         StudentStatus `db:"status" json:"status"`
	Notes          string        `db:"notes" json:"notes"`
	Phone          *string       `db:"phone" json:"phone,omitempty"`
	EnrollmentDate *time.Time    `db:"enrollment_date" json:"enrollment_date,omitempty"`
	ExpulsionDate  *time.Time    `db:"expulsion_date" json:"expulsion_date,omitempty"`
	GraduationYear *int          `db:"graduation_year" json:"graduation_year,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updated_at"`
}

// ComposeFullName joins the non-empty name parts, surname first.
func (s Student) ComposeFullName() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{s.LastName, s.FirstName, s.MiddleName} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// ActiveOn reports whether the student is expected at a session held on day.
func (s Student) ActiveOn(day time.Time) bool {
	if s.Status != "" && s.Status != StudentParticipant {
		return false
	}
	if s.ExpulsionDate == nil {
		return true
	}
	return s.ExpulsionDate.After(day)
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	GroupID  string
	Search   string
	Status   *StudentStatus
	Page     int
	PageSize int
}
