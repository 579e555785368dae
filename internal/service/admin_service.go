package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type adminAttendance interface {
	ReconcileFor(ctx context.Context, sessionID, trigger string) (int, error)
	SetPresence(ctx context.Context, ids []string, present bool) (int, error)
	Summary(ctx context.Context, sessionID string) (models.AttendanceSummary, error)
}

// ReconcileOutcome reports the result of reconciling one session.
type ReconcileOutcome struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label,omitempty"`
	Created   int    `json:"created"`
	Error     string `json:"error,omitempty"`
}

// BulkResult is returned by the admin bulk actions.
type BulkResult struct {
	Updated int `json:"updated"`
}

// AdminService runs the bulk actions of the admin surface.
type AdminService struct {
	attendance adminAttendance
	sessions   sessionLookup
	groups     groupLookup
	logger     *zap.Logger
}

// NewAdminService constructs the admin service.
func NewAdminService(attendance adminAttendance, sessions sessionLookup, groups groupLookup, logger *zap.Logger) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminService{attendance: attendance, sessions: sessions, groups: groups, logger: logger}
}

// ReconcileSessions creates missing attendance records for each session and
// reports one message per session. A failing session does not stop the others.
func (s *AdminService) ReconcileSessions(ctx context.Context, sessionIDs []string) ([]ReconcileOutcome, []string, error) {
	sessionIDs = uniqueStrings(sessionIDs)
	if len(sessionIDs) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "session_ids is required")
	}
	outcomes := make([]ReconcileOutcome, 0, len(sessionIDs))
	messages := make([]string, 0, len(sessionIDs))
	for _, id := range sessionIDs {
		outcome := ReconcileOutcome{SessionID: id, Label: s.sessionLabel(ctx, id)}
		created, err := s.attendance.ReconcileFor(ctx, id, "admin")
		if err != nil {
			outcome.Error = appErrors.FromError(err).Message
			messages = append(messages, fmt.Sprintf("Failed to create records for %s: %s", outcome.labelOrID(), outcome.Error))
			s.logger.Warn("admin reconcile failed", zap.String("session_id", id), zap.Error(err))
		} else {
			outcome.Created = created
			messages = append(messages, fmt.Sprintf("Created %d records for %s", created, outcome.labelOrID()))
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, messages, nil
}

// MarkPresent sets present=true, status=present on the given records.
func (s *AdminService) MarkPresent(ctx context.Context, recordIDs []string) (*BulkResult, []string, error) {
	updated, err := s.attendance.SetPresence(ctx, recordIDs, true)
	if err != nil {
		return nil, nil, err
	}
	return &BulkResult{Updated: updated}, []string{fmt.Sprintf("%d records marked present", updated)}, nil
}

// MarkAbsent sets present=false, status=absent on the given records.
func (s *AdminService) MarkAbsent(ctx context.Context, recordIDs []string) (*BulkResult, []string, error) {
	updated, err := s.attendance.SetPresence(ctx, recordIDs, false)
	if err != nil {
		return nil, nil, err
	}
	return &BulkResult{Updated: updated}, []string{fmt.Sprintf("%d records marked absent", updated)}, nil
}

// SessionSummary returns the counts with their "Present: p/t (x%)" rendering.
func (s *AdminService) SessionSummary(ctx context.Context, sessionID string) (models.AttendanceSummary, string, error) {
	summary, err := s.attendance.Summary(ctx, sessionID)
	if err != nil {
		return models.AttendanceSummary{}, "", err
	}
	return summary, summary.String(), nil
}

func (s *AdminService) sessionLabel(ctx context.Context, sessionID string) string {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return ""
	}
	label := fmt.Sprintf("%s %s", session.Date.Format("02.01.2006"), session.StartTime)
	if group, err := s.groups.FindByID(ctx, session.GroupID); err == nil {
		label = group.DisplayName() + " " + label
	}
	return label
}

func (o ReconcileOutcome) labelOrID() string {
	if o.Label != "" {
		return o.Label
	}
	return "session " + o.SessionID
}
