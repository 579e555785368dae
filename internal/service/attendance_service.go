package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
	"github.com/noah-isme/studio-register-api/pkg/export"
)

type attendanceRepository interface {
	Reconcile(ctx context.Context, sessionID string) (int, error)
	Sheet(ctx context.Context, sessionID string) ([]models.AttendanceSheetRow, error)
	FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error)
	Update(ctx context.Context, record *models.AttendanceRecord) error
	SaveSheet(ctx context.Context, sessionID string, records []models.AttendanceRecord) error
	SetPresence(ctx context.Context, ids []string, present bool) (int, error)
	SessionIDsOf(ctx context.Context, ids []string) ([]string, error)
	Summary(ctx context.Context, sessionID string) (present, total int, err error)
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, int, error)
}

type sessionLookup interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// AttendanceEntry is one line of a bulk sheet save.
type AttendanceEntry struct {
	StudentID string `json:"student_id" validate:"required"`
	Present   bool   `json:"present"`
	Status    string `json:"status" validate:"omitempty,attendance_status"`
	Notes     string `json:"notes"`
}

// SaveSheetRequest replaces the marks of a session.
type SaveSheetRequest struct {
	Records []AttendanceEntry `json:"records" validate:"required,min=1,dive"`
}

// UpdateRecordRequest edits a single record. Omitted fields are kept.
type UpdateRecordRequest struct {
	Present *bool   `json:"present"`
	Status  *string `json:"status" validate:"omitempty,attendance_status"`
	Notes   *string `json:"notes"`
}

// ExportFile is a rendered attendance sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// AttendanceService coordinates attendance workflows.
type AttendanceService struct {
	repo      attendanceRepository
	sessions  sessionLookup
	groups    groupLookup
	cache     cacheStore
	metrics   *MetricsService
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	studio    StudioConfig
}

// NewAttendanceService constructs the attendance service. metrics and cache may be nil.
func NewAttendanceService(repo attendanceRepository, sessions sessionLookup, groups groupLookup, cache cacheStore, metrics *MetricsService, studio StudioConfig, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerStudioValidations(validate)
	return &AttendanceService{
		repo:      repo,
		sessions:  sessions,
		groups:    groups,
		cache:     cache,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       &export.PDFExporter{Widths: map[string]float64{"#": 10, "Status": 30, "Present": 20}},
		validator: validate,
		logger:    logger,
		studio:    studio.withDefaults(),
	}
}

// Reconcile creates the missing attendance records of a session.
func (s *AttendanceService) Reconcile(ctx context.Context, sessionID string) (int, error) {
	return s.ReconcileFor(ctx, sessionID, "manual")
}

// ReconcileFor is Reconcile labelled with what triggered it.
func (s *AttendanceService) ReconcileFor(ctx context.Context, sessionID, trigger string) (int, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return s.reconcile(ctx, session, trigger)
}

func (s *AttendanceService) reconcile(ctx context.Context, session *models.Session, trigger string) (int, error) {
	created, err := s.repo.Reconcile(ctx, session.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create attendance records")
	}
	if created > 0 {
		s.metrics.RecordReconciled(trigger, created)
		s.invalidate(ctx, session.GroupID)
		s.logger.Info("attendance records created",
			zap.String("session_id", session.ID),
			zap.String("trigger", trigger),
			zap.Int("created", created),
		)
	}
	return created, nil
}

// Sheet reconciles the session and returns its register.
func (s *AttendanceService) Sheet(ctx context.Context, sessionID string) (*models.AttendanceSheet, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reconcile(ctx, session, "sheet"); err != nil {
		return nil, err
	}
	return s.buildSheet(ctx, session)
}

func (s *AttendanceService) buildSheet(ctx context.Context, session *models.Session) (*models.AttendanceSheet, error) {
	group, err := s.groups.FindByID(ctx, session.GroupID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	rows, err := s.repo.Sheet(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	present := 0
	for i := range rows {
		rows[i].StatusDisplay = rows[i].DisplayStatus()
		if rows[i].Present {
			present++
		}
	}
	if rows == nil {
		rows = []models.AttendanceSheetRow{}
	}
	return &models.AttendanceSheet{
		Session:         *session,
		Group:           group.Group,
		GroupName:       group.DisplayName(),
		CanMarkPresence: session.CanMarkPresence(s.studio.now(), s.studio.PresenceWindow, s.studio.Location),
		Records:         rows,
		Summary:         models.NewAttendanceSummary(present, len(rows)),
	}, nil
}

// SaveSheet stores the marks of a whole session at once. Every entry is
// normalized and must name a student already on the sheet.
func (s *AttendanceService) SaveSheet(ctx context.Context, sessionID string, req SaveSheetRequest) (*models.AttendanceSheet, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.reconcile(ctx, session, "sheet"); err != nil {
		return nil, err
	}
	current, err := s.repo.Sheet(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
	}
	known := make(map[string]bool, len(current))
	for _, row := range current {
		known[row.StudentID] = true
	}

	fields := map[string]string{}
	seen := make(map[string]bool, len(req.Records))
	records := make([]models.AttendanceRecord, 0, len(req.Records))
	for i, entry := range req.Records {
		key := fmt.Sprintf("records[%d].student_id", i)
		switch {
		case !known[entry.StudentID]:
			fields[key] = "student is not on this session's sheet"
			continue
		case seen[entry.StudentID]:
			fields[key] = "duplicate student"
			continue
		}
		seen[entry.StudentID] = true
		record := models.AttendanceRecord{
			SessionID: session.ID,
			StudentID: entry.StudentID,
			Present:   entry.Present,
			Status:    models.AttendanceStatus(entry.Status),
			Notes:     entry.Notes,
		}
		record.Normalize()
		records = append(records, record)
	}
	if len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid attendance payload"), fields)
	}

	if err := s.repo.SaveSheet(ctx, session.ID, records); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student is not on this session's sheet")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attendance")
	}
	s.metrics.RecordAttendanceWrites("sheet", len(records))
	s.invalidate(ctx, session.GroupID)
	return s.buildSheet(ctx, session)
}

// UpdateRecord edits one attendance record.
func (s *AttendanceService) UpdateRecord(ctx context.Context, id string, req UpdateRecordRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if req.Present != nil {
		record.Present = *req.Present
	}
	if req.Status != nil {
		record.Status = models.AttendanceStatus(*req.Status)
	}
	if req.Notes != nil {
		record.Notes = *req.Notes
	}
	record.Normalize()
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	s.metrics.RecordAttendanceWrites("record", 1)
	if session, err := s.sessions.FindByID(ctx, record.SessionID); err == nil {
		s.invalidate(ctx, session.GroupID)
	}
	return record, nil
}

// SetPresence marks records present or absent in bulk.
func (s *AttendanceService) SetPresence(ctx context.Context, ids []string, present bool) (int, error) {
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "record_ids is required")
	}
	sessionIDs, err := s.repo.SessionIDsOf(ctx, ids)
	if err != nil {
		if appErrors.IsInvalidIdentifier(err) {
			return 0, appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid record ids"), map[string]string{"record_ids": "must be attendance record ids"})
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance records")
	}
	changed, err := s.repo.SetPresence(ctx, ids, present)
	if err != nil {
		return 0, appErrors.FromStore(err, "attendance record conflict", "attendance record is referenced", "failed to update attendance records")
	}
	operation := "mark_absent"
	if present {
		operation = "mark_present"
	}
	s.metrics.RecordAttendanceWrites(operation, changed)
	for _, sessionID := range sessionIDs {
		if session, err := s.sessions.FindByID(ctx, sessionID); err == nil {
			s.invalidate(ctx, session.GroupID)
		}
	}
	return changed, nil
}

// Summary counts the present students of a session.
func (s *AttendanceService) Summary(ctx context.Context, sessionID string) (models.AttendanceSummary, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return models.AttendanceSummary{}, err
	}
	present, total, err := s.repo.Summary(ctx, sessionID)
	if err != nil {
		return models.AttendanceSummary{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise attendance")
	}
	return models.NewAttendanceSummary(present, total), nil
}

// List returns attendance records across sessions.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, *models.Pagination, error) {
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.FromStore(err, "failed to list attendance", "failed to list attendance", "failed to list attendance")
	}
	for i := range items {
		item := &items[i]
		item.GroupName = models.Group{AgeCategory: item.GroupAgeCategory, Year: item.GroupYear, Gender: item.GroupGender}.DisplayName()
		item.StatusDisplay = item.DisplayStatus()
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Export renders the session register as CSV or PDF.
func (s *AttendanceService) Export(ctx context.Context, sessionID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "pdf" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	sheet, err := s.Sheet(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers:  []string{"#", "Student", "Present", "Status", "Notes"},
		Subtitle: []string{fmt.Sprintf("%s %s, %d min", sheet.Session.Date.Format("02.01.2006"), sheet.Session.StartTime, sheet.Session.Duration)},
		Footer:   []string{sheet.Summary.String()},
	}
	for i, row := range sheet.Records {
		present := "no"
		if row.Present {
			present = "yes"
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"#":       fmt.Sprintf("%d", i+1),
			"Student": row.StudentName,
			"Present": present,
			"Status":  row.StatusDisplay,
			"Notes":   row.Notes,
		})
	}

	base := fmt.Sprintf("attendance-%s-%s", slug(sheet.GroupName), sheet.Session.Date.Format(dateLayout))
	if format == "pdf" {
		payload, err := s.pdf.Render(dataset, sheet.GroupName)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportFile{Filename: base + ".pdf", ContentType: "application/pdf", Payload: payload}, nil
	}
	payload, err := s.csv.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
	}
	return &ExportFile{Filename: base + ".csv", ContentType: "text/csv; charset=utf-8", Payload: payload}, nil
}

func (s *AttendanceService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *AttendanceService) invalidate(ctx context.Context, groupID string) {
	if s.cache != nil {
		s.cache.InvalidateGroup(ctx, groupID)
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func slug(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(value) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
