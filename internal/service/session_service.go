package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.SessionListItem, int, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Exists(ctx context.Context, groupID string, date time.Time, start models.ClockTime, excludeID string) (bool, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id string) error
}

type attendanceReconciler interface {
	ReconcileFor(ctx context.Context, sessionID, trigger string) (int, error)
}

// SessionRequest is the payload for creating and updating sessions. Empty
// fields fall back to today, 18:00 and 90 minutes on create and keep their
// stored values on update. Notes are replaced only when sent.
type SessionRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"omitempty,clock"`
	Duration  int    `json:"duration" validate:"omitempty,session_duration"`
	Notes     *string `json:"notes"`
}

// SessionListRequest narrows a group's session listing.
type SessionListRequest struct {
	DateFrom string `validate:"omitempty,datetime=2006-01-02"`
	DateTo   string `validate:"omitempty,datetime=2006-01-02"`
	Page     int
}

// SessionCreated is returned after creating a session.
type SessionCreated struct {
	Session        *models.Session `json:"session"`
	RecordsCreated int             `json:"records_created"`
}

// SessionService handles rehearsal session use-cases.
type SessionService struct {
	repo       sessionRepository
	groups     groupLookup
	reconciler attendanceReconciler
	cache      cacheStore
	validator  *validator.Validate
	logger     *zap.Logger
	studio     StudioConfig
}

// NewSessionService constructs the session service.
func NewSessionService(repo sessionRepository, groups groupLookup, reconciler attendanceReconciler, cache cacheStore, studio StudioConfig, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerStudioValidations(validate)
	return &SessionService{
		repo:       repo,
		groups:     groups,
		reconciler: reconciler,
		cache:      cache,
		validator:  validate,
		logger:     logger,
		studio:     studio.withDefaults(),
	}
}

// ListByGroup returns a page of the group's sessions, newest first, with
// presence eligibility and a countdown for upcoming ones.
func (s *SessionService) ListByGroup(ctx context.Context, groupID string, req SessionListRequest) ([]models.SessionListItem, *models.Pagination, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session filter")
	}
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, nil, err
	}
	from, _ := parseDate(req.DateFrom)
	to, _ := parseDate(req.DateTo)
	page := req.Page
	if page < 1 {
		page = 1
	}
	filter := models.SessionFilter{GroupID: groupID, DateFrom: from, DateTo: to, Page: page, PageSize: s.studio.SessionsPageSize}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	now := s.studio.now()
	for i := range items {
		item := &items[i]
		item.CanMarkPresence = item.Session.CanMarkPresence(now, s.studio.PresenceWindow, s.studio.Location)
		if startsAt := item.StartsAt(s.studio.Location); startsAt.After(now) {
			countdown := models.FormatCountdown(startsAt.Sub(now))
			item.StartsIn = &countdown
		}
	}
	if items == nil {
		items = []models.SessionListItem{}
	}
	return items, &models.Pagination{Page: page, PageSize: s.studio.SessionsPageSize, TotalCount: total}, nil
}

// Get returns a session.
func (s *SessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// Create schedules a session for the group and materialises its attendance records.
func (s *SessionService) Create(ctx context.Context, groupID string, req SessionRequest) (*SessionCreated, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if err := s.ensureGroup(ctx, groupID); err != nil {
		return nil, err
	}
	session := &models.Session{
		Date:      s.studio.today(),
		StartTime: models.DefaultStartTime,
		Duration:  models.DefaultSessionDuration,
		GroupID:   groupID,
	}
	s.apply(session, req)

	if err := s.ensureFreeSlot(ctx, session, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, appErrors.FromStore(err, "session already exists", "group not found", "failed to create session")
	}

	created, err := s.reconciler.ReconcileFor(ctx, session.ID, "session_create")
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, groupID)
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("group_id", groupID),
		zap.Int("records_created", created),
	)
	return &SessionCreated{Session: session, RecordsCreated: created}, nil
}

// Update reschedules a session. Students active on a new date get their records.
func (s *SessionService) Update(ctx context.Context, id string, req SessionRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	session, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.apply(session, req)
	if err := s.ensureFreeSlot(ctx, session, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, appErrors.FromStore(err, "session already exists", "group not found", "failed to update session")
	}
	if _, err := s.reconciler.ReconcileFor(ctx, session.ID, "session_update"); err != nil {
		return nil, err
	}
	s.invalidate(ctx, session.GroupID)
	return session, nil
}

// Delete removes a session and its attendance records.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete session")
	}
	s.invalidate(ctx, session.GroupID)
	return nil
}

func (s *SessionService) apply(session *models.Session, req SessionRequest) {
	if date, _ := parseDate(req.Date); date != nil {
		session.Date = *date
	}
	if req.StartTime != "" {
		if start, err := models.ParseClockTime(req.StartTime); err == nil {
			session.StartTime = start
		}
	}
	if req.Duration > 0 {
		session.Duration = req.Duration
	}
	if req.Notes != nil {
		session.Notes = *req.Notes
	}
}

func (s *SessionService) ensureGroup(ctx context.Context, groupID string) error {
	if _, err := s.groups.FindByID(ctx, groupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	return nil
}

func (s *SessionService) ensureFreeSlot(ctx context.Context, session *models.Session, excludeID string) error {
	exists, err := s.repo.Exists(ctx, session.GroupID, session.Date, session.StartTime, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate session")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "session already exists for this group, date and start time")
	}
	return nil
}

func (s *SessionService) invalidate(ctx context.Context, groupID string) {
	if s.cache != nil {
		s.cache.InvalidateGroup(ctx, groupID)
	}
}
