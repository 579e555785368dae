package service

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/studio-register-api/internal/models"
)

const dateLayout = "2006-01-02"

// registerStudioValidations installs the domain tags shared by the request
// payloads. Registering twice on the same validator is harmless.
func registerStudioValidations(v *validator.Validate) {
	_ = v.RegisterValidation("age_category", func(fl validator.FieldLevel) bool {
		return models.AgeCategory(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("gender", func(fl validator.FieldLevel) bool {
		return models.Gender(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("attendance_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("student_status", func(fl validator.FieldLevel) bool {
		return models.StudentStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("session_duration", func(fl validator.FieldLevel) bool {
		return models.ValidSessionDuration(int(fl.Field().Int()))
	})
	_ = v.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := models.ParseClockTime(fl.Field().String())
		return err == nil
	})
}

// StudioConfig carries the studio-local settings services depend on.
type StudioConfig struct {
	Location         *time.Location
	PresenceWindow   time.Duration
	SessionsPageSize int
	Now              func() time.Time
}

func (c StudioConfig) withDefaults() StudioConfig {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.PresenceWindow <= 0 {
		c.PresenceWindow = models.DefaultPresenceWindow
	}
	if c.SessionsPageSize <= 0 {
		c.SessionsPageSize = 10
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// now returns the current instant in the studio timezone.
func (c StudioConfig) now() time.Time {
	return c.Now().In(c.Location)
}

// today returns the studio-local calendar date as a UTC midnight, matching
// how DATE columns are read back.
func (c StudioConfig) today() time.Time {
	return dateOnly(c.now())
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}
