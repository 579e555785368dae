package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type mockAttendanceRepo struct {
	reconcileCreated int
	reconciled       []string
	rows             []models.AttendanceSheetRow
	records          map[string]*models.AttendanceRecord
	saved            []models.AttendanceRecord
	presenceIDs      []string
	presenceValue    bool
	summaryPresent   int
	summaryTotal     int
	lookupErr        error
}

func (m *mockAttendanceRepo) Reconcile(ctx context.Context, sessionID string) (int, error) {
	m.reconciled = append(m.reconciled, sessionID)
	return m.reconcileCreated, nil
}

func (m *mockAttendanceRepo) Sheet(ctx context.Context, sessionID string) ([]models.AttendanceSheetRow, error) {
	out := make([]models.AttendanceSheetRow, len(m.rows))
	copy(out, m.rows)
	return out, nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *rec
	return &clone, nil
}

func (m *mockAttendanceRepo) Update(ctx context.Context, record *models.AttendanceRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *mockAttendanceRepo) SaveSheet(ctx context.Context, sessionID string, records []models.AttendanceRecord) error {
	m.saved = records
	return nil
}

func (m *mockAttendanceRepo) SetPresence(ctx context.Context, ids []string, present bool) (int, error) {
	m.presenceIDs, m.presenceValue = ids, present
	return len(ids), nil
}

func (m *mockAttendanceRepo) SessionIDsOf(ctx context.Context, ids []string) ([]string, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return []string{"se1"}, nil
}

func (m *mockAttendanceRepo) Summary(ctx context.Context, sessionID string) (int, int, error) {
	return m.summaryPresent, m.summaryTotal, nil
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, int, error) {
	if m.lookupErr != nil {
		return nil, 0, m.lookupErr
	}
	return []models.AttendanceListItem{{
		AttendanceRecord: models.AttendanceRecord{ID: "a1", Present: true, Status: models.AttendanceLate},
		GroupAgeCategory: models.AgeKids, GroupYear: 2021, GroupGender: models.GenderMale,
	}}, 1, nil
}

func sampleSession() models.Session {
	return models.Session{ID: "se1", GroupID: "g1", Date: time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC), StartTime: models.DefaultStartTime, Duration: 90}
}

func newAttendanceFixture(now time.Time) (*AttendanceService, *mockAttendanceRepo, *mockCache) {
	repo := &mockAttendanceRepo{
		rows: []models.AttendanceSheetRow{
			{AttendanceRecord: models.AttendanceRecord{ID: "a1", SessionID: "se1", StudentID: "s1", Present: true, Status: models.AttendanceLate}, StudentName: "Ivanova Anna"},
			{AttendanceRecord: models.AttendanceRecord{ID: "a2", SessionID: "se1", StudentID: "s2", Status: models.AttendanceAbsent}, StudentName: "Petrov Ivan"},
			{AttendanceRecord: models.AttendanceRecord{ID: "a3", SessionID: "se1", StudentID: "s3", Status: models.AttendanceExcused, Notes: "sick"}, StudentName: "Sidorova Maria"},
		},
		records: map[string]*models.AttendanceRecord{
			"a2": {ID: "a2", SessionID: "se1", StudentID: "s2", Status: models.AttendanceAbsent},
		},
	}
	cache := newMockCache()
	svc := NewAttendanceService(repo, newMockSessionRepo(sampleSession()), newMockGroupRepo(seniorGirls()), cache, NewMetricsService(), fixedStudio(now), nil, nil)
	return svc, repo, cache
}

func TestAttendanceServiceReconcileUnknownSession(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())

	_, err := svc.Reconcile(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
	assert.Empty(t, repo.reconciled)
}

func TestAttendanceServiceReconcileInvalidatesOnlyWhenCreating(t *testing.T) {
	svc, repo, cache := newAttendanceFixture(time.Now())

	created, err := svc.Reconcile(context.Background(), "se1")
	require.NoError(t, err)
	assert.Zero(t, created)
	assert.Empty(t, cache.invalidated)

	repo.reconcileCreated = 4
	created, err = svc.Reconcile(context.Background(), "se1")
	require.NoError(t, err)
	assert.Equal(t, 4, created)
	assert.Equal(t, []string{"g1"}, cache.invalidated)
	assert.Equal(t, uint64(4), svc.metrics.Snapshot().RecordsReconciled)
}

func TestAttendanceServiceSheet(t *testing.T) {
	now := time.Date(2024, 3, 12, 18, 20, 0, 0, time.UTC)
	svc, repo, _ := newAttendanceFixture(now)

	sheet, err := svc.Sheet(context.Background(), "se1")
	require.NoError(t, err)
	assert.Equal(t, []string{"se1"}, repo.reconciled)
	assert.Equal(t, "Senior 2019-Girls", sheet.GroupName)
	assert.True(t, sheet.CanMarkPresence)
	require.Len(t, sheet.Records, 3)
	assert.Equal(t, "Late", sheet.Records[0].StatusDisplay)
	assert.Equal(t, "Excused", sheet.Records[2].StatusDisplay)
	assert.Equal(t, models.AttendanceSummary{Present: 1, Total: 3, Percent: 33}, sheet.Summary)
}

func TestAttendanceServiceSaveSheetNormalizes(t *testing.T) {
	svc, repo, cache := newAttendanceFixture(time.Now())

	_, err := svc.SaveSheet(context.Background(), "se1", SaveSheetRequest{Records: []AttendanceEntry{
		{StudentID: "s1", Present: false, Status: "late"},
		{StudentID: "s2", Present: true, Status: "absent"},
		{StudentID: "s3", Present: false, Status: "excused", Notes: "sick"},
	}})
	require.NoError(t, err)
	require.Len(t, repo.saved, 3)
	assert.Equal(t, models.AttendanceAbsent, repo.saved[0].Status)
	assert.Equal(t, models.AttendancePresent, repo.saved[1].Status)
	assert.Equal(t, models.AttendanceExcused, repo.saved[2].Status)
	assert.Contains(t, cache.invalidated, "g1")
}

func TestAttendanceServiceSaveSheetRejectsUnknownStudents(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())

	_, err := svc.SaveSheet(context.Background(), "se1", SaveSheetRequest{Records: []AttendanceEntry{
		{StudentID: "s1", Present: true},
		{StudentID: "stranger", Present: true},
		{StudentID: "s1", Present: false},
	}})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Fields, "records[1].student_id")
	assert.Contains(t, appErr.Fields, "records[2].student_id")
	assert.Nil(t, repo.saved)
}

func TestAttendanceServiceSaveSheetRejectsBadStatus(t *testing.T) {
	svc, _, _ := newAttendanceFixture(time.Now())

	_, err := svc.SaveSheet(context.Background(), "se1", SaveSheetRequest{Records: []AttendanceEntry{{StudentID: "s1", Status: "sleeping"}}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestAttendanceServiceUpdateRecordNormalizes(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())
	present := true

	record, err := svc.UpdateRecord(context.Background(), "a2", UpdateRecordRequest{Present: &present})
	require.NoError(t, err)
	assert.Equal(t, models.AttendancePresent, record.Status)
	assert.Equal(t, models.AttendancePresent, repo.records["a2"].Status)

	_, err = svc.UpdateRecord(context.Background(), "nope", UpdateRecordRequest{Present: &present})
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestAttendanceServiceSetPresence(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())

	_, err := svc.SetPresence(context.Background(), []string{" ", ""}, true)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)

	changed, err := svc.SetPresence(context.Background(), []string{"a1", "a2", "a1"}, false)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)
	assert.Equal(t, []string{"a1", "a2"}, repo.presenceIDs)
	assert.False(t, repo.presenceValue)
}

func TestAttendanceServiceSetPresenceRejectsMalformedIDs(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())
	repo.lookupErr = fmt.Errorf("attendance sessions: %w", &pq.Error{Code: "22P02"})

	_, err := svc.SetPresence(context.Background(), []string{"not-a-uuid"}, true)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, http.StatusBadRequest, appErr.Status)
	assert.Contains(t, appErr.Fields, "record_ids")
	assert.Nil(t, repo.presenceIDs)

	_, _, err = svc.List(context.Background(), models.AttendanceFilter{GroupID: "not-a-uuid"})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestAttendanceServiceSummary(t *testing.T) {
	svc, repo, _ := newAttendanceFixture(time.Now())
	repo.summaryPresent, repo.summaryTotal = 0, 0

	summary, err := svc.Summary(context.Background(), "se1")
	require.NoError(t, err)
	assert.Equal(t, "Present: 0/0 (0%)", summary.String())
}

func TestAttendanceServiceListNamesGroups(t *testing.T) {
	svc, _, _ := newAttendanceFixture(time.Now())

	items, pagination, err := svc.List(context.Background(), models.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Kids 2021-Boys", items[0].GroupName)
	assert.Equal(t, "Late", items[0].StatusDisplay)
	assert.Equal(t, 50, pagination.PageSize)
}

func TestAttendanceServiceExportCSV(t *testing.T) {
	svc, _, _ := newAttendanceFixture(time.Now())

	file, err := svc.Export(context.Background(), "se1", "")
	require.NoError(t, err)
	assert.Equal(t, "attendance-senior-2019-girls-2024-03-12.csv", file.Filename)
	body := string(file.Payload)
	assert.True(t, strings.HasPrefix(body, "#,Student,Present,Status,Notes\n1,Ivanova Anna,yes,Late,\n"))
	assert.Contains(t, body, "Present: 1/3 (33%)")
}

func TestAttendanceServiceExportPDF(t *testing.T) {
	svc, _, _ := newAttendanceFixture(time.Now())

	file, err := svc.Export(context.Background(), "se1", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, strings.HasPrefix(string(file.Payload), "%PDF-"))

	_, err = svc.Export(context.Background(), "se1", "xlsx")
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}
