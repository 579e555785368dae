package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type calendarRepository interface {
	ListCalendar(ctx context.Context, groupID string, from, to time.Time) ([]models.CalendarSession, error)
}

// CalendarService builds month views of a group's sessions.
type CalendarService struct {
	repo     calendarRepository
	groups   groupLookup
	cache    cacheStore
	logger   *zap.Logger
	studio   StudioConfig
}

// NewCalendarService constructs the calendar service.
func NewCalendarService(repo calendarRepository, groups groupLookup, cache cacheStore, studio StudioConfig, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, groups: groups, cache: cache, logger: logger, studio: studio.withDefaults()}
}

// Month returns every day of the month with the group's sessions. A zero year
// or month means the current one.
func (s *CalendarService) Month(ctx context.Context, groupID string, year, month int) (*models.CalendarMonth, error) {
	today := s.studio.today()
	if year == 0 {
		year = today.Year()
	}
	if month == 0 {
		month = int(today.Month())
	}
	if year < 1 || year > 9999 || month < 1 || month > 12 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year or month")
	}
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	key := calendarCacheKey(groupID, year, month)
	if s.cache != nil {
		var cached models.CalendarMonth
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	sessions, err := s.repo.ListCalendar(ctx, groupID, first, last)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load calendar")
	}

	byDay := make(map[int][]models.CalendarSession, len(sessions))
	for _, session := range sessions {
		byDay[session.Date.Day()] = append(byDay[session.Date.Day()], session)
	}
	result := &models.CalendarMonth{GroupID: groupID, Year: year, Month: month}
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		entries := byDay[day.Day()]
		if entries == nil {
			entries = []models.CalendarSession{}
		}
		result.Days = append(result.Days, models.CalendarDay{
			Date:     day.Format(dateLayout),
			Weekday:  int(day.Weekday()),
			Sessions: entries,
		})
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, result, 0)
	}
	return result, nil
}
