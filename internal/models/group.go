package models

import (
	"fmt"
	"time"
)

// AgeCategory is the age band a group trains in.
type AgeCategory string

const (
	AgeJunior      AgeCategory = "junior"
	AgeMiddle      AgeCategory = "middle"
	AgeSenior      AgeCategory = "senior"
	AgePreparatory AgeCategory = "preparatory"
	AgeKids        AgeCategory = "kids"
)

var ageCategoryLabels = map[AgeCategory]string{
	AgeJunior:      "Junior",
	AgeMiddle:      "Middle",
	AgeSenior:      "Senior",
	AgePreparatory: "Preparatory",
	AgeKids:        "Kids",
}

// Valid returns true when the category is a supported value.
func (a AgeCategory) Valid() bool {
	_, ok := ageCategoryLabels[a]
	return ok
}

// Label returns the human readable category name.
func (a AgeCategory) Label() string {
	if label, ok := ageCategoryLabels[a]; ok {
		return label
	}
	return string(a)
}

// Gender is used both for group cohorts and for students.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
)

// Valid returns true when the gender is a supported value.
func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

// CohortLabel names a group cohort of this gender.
func (g Gender) CohortLabel() string {
	switch g {
	case GenderMale:
		return "Boys"
	case GenderFemale:
		return "Girls"
	default:
		return string(g)
	}
}

// Group is a cohort of students sharing age category, intake year and gender.
type Group struct {
	ID          string      `db:"id" json:"id"`
	AgeCategory AgeCategory `db:"age_category" json:"age_category"`
	Year        int         `db:"year" json:"year"`
	Gender      Gender      `db:"gender" json:"gender"`
	IsActive    bool        `db:"is_active" json:"is_active"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// DisplayName renders e.g. "Senior 2019-Girls".
func (g Group) DisplayName() string {
	return fmt.Sprintf("%s %d-%s", g.AgeCategory.Label(), g.Year, g.Gender.CohortLabel())
}

// GroupFilter defines filter criteria for listing groups.
type GroupFilter struct {
	AgeCategory AgeCategory
	Year        int
	Gender      Gender
	Active      *bool
	Page        int
	PageSize    int
}

// GroupOverview is a home page row: an active group with its headcount and
// the number of sessions held in the current academic year.
type GroupOverview struct {
	Group
	Name                string `db:"-" json:"name"`
	StudentsCount       int    `db:"students_count" json:"students_count"`
	CurrentYearSessions int    `db:"current_year_sessions" json:"current_year_sessions"`
}

// GroupDetail extends Group with reference counts used by the admin screens.
type GroupDetail struct {
	Group
	Name          string `db:"-" json:"name"`
	StudentsCount int    `db:"students_count" json:"students_count"`
	SessionsCount int    `db:"sessions_count" json:"sessions_count"`
}
