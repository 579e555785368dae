package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/studio-register-api/internal/middleware"
	"github.com/noah-isme/studio-register-api/internal/models"
	"github.com/noah-isme/studio-register-api/internal/service"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type responseEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Messages   []string               `json:"messages"`
	Meta       map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var env responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func newContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	return c, rec
}

type fakeGroupService struct {
	filter  models.GroupFilter
	created service.GroupRequest
	err     error
}

func (f *fakeGroupService) Home(ctx context.Context) (*service.HomeOverview, error) {
	return &service.HomeOverview{}, f.err
}

func (f *fakeGroupService) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, *models.Pagination, error) {
	f.filter = filter
	return []models.Group{{ID: "g1"}}, &models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, f.err
}

func (f *fakeGroupService) Get(ctx context.Context, id string) (*models.GroupDetail, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.GroupDetail{Group: models.Group{ID: id}}, nil
}

func (f *fakeGroupService) Create(ctx context.Context, req service.GroupRequest) (*models.Group, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Group{ID: "g-new", AgeCategory: models.AgeCategory(req.AgeCategory), Year: req.Year}, nil
}

func (f *fakeGroupService) Update(ctx context.Context, id string, req service.GroupRequest) (*models.Group, error) {
	return &models.Group{ID: id}, f.err
}

func (f *fakeGroupService) Delete(ctx context.Context, id string) error {
	return f.err
}

func TestGroupHandlerListParsesFilters(t *testing.T) {
	svc := &fakeGroupService{}
	c, rec := newContext(http.MethodGet, "/groups?age_category=senior&year=2019&gender=f&active=false&page=2", "")

	NewGroupHandler(svc).List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.AgeSenior, svc.filter.AgeCategory)
	assert.Equal(t, 2019, svc.filter.Year)
	assert.Equal(t, models.GenderFemale, svc.filter.Gender)
	require.NotNil(t, svc.filter.Active)
	assert.False(t, *svc.filter.Active)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 1, decode(t, rec).Pagination.TotalCount)
}

func TestGroupHandlerListRejectsBadYear(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/groups?year=twenty", "")

	NewGroupHandler(&fakeGroupService{}).List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec).Error.Fields, "year")
}

func TestGroupHandlerCreate(t *testing.T) {
	svc := &fakeGroupService{}
	c, rec := newContext(http.MethodPost, "/groups", `{"age_category":"senior","year":2019,"gender":"F"}`)

	NewGroupHandler(svc).Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2019, svc.created.Year)

	c, rec = newContext(http.MethodPost, "/groups", `{"year":`)
	NewGroupHandler(svc).Create(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupHandlerMapsServiceErrors(t *testing.T) {
	svc := &fakeGroupService{err: appErrors.Clone(appErrors.ErrPreconditionFailed, "group has students or sessions")}
	c, rec := newContext(http.MethodDelete, "/groups/g1", "")
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	NewGroupHandler(svc).Delete(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "group has students or sessions", decode(t, rec).Error.Message)
}

type fakeSessionService struct {
	groupID string
	listReq service.SessionListRequest
	created service.SessionRequest
}

func (f *fakeSessionService) ListByGroup(ctx context.Context, groupID string, req service.SessionListRequest) ([]models.SessionListItem, *models.Pagination, error) {
	f.groupID, f.listReq = groupID, req
	return []models.SessionListItem{}, &models.Pagination{Page: 1, PageSize: 10}, nil
}

func (f *fakeSessionService) Get(ctx context.Context, id string) (*models.Session, error) {
	return &models.Session{ID: id}, nil
}

func (f *fakeSessionService) Create(ctx context.Context, groupID string, req service.SessionRequest) (*service.SessionCreated, error) {
	f.groupID, f.created = groupID, req
	return &service.SessionCreated{Session: &models.Session{ID: "se1", GroupID: groupID}, RecordsCreated: 12}, nil
}

func (f *fakeSessionService) Update(ctx context.Context, id string, req service.SessionRequest) (*models.Session, error) {
	return &models.Session{ID: id}, nil
}

func (f *fakeSessionService) Delete(ctx context.Context, id string) error { return nil }

func TestSessionHandlerListByGroup(t *testing.T) {
	svc := &fakeSessionService{}
	c, rec := newContext(http.MethodGet, "/groups/g1/sessions?date_from=2024-03-01&date_to=2024-03-31&page=3", "")
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	NewSessionHandler(svc).ListByGroup(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "g1", svc.groupID)
	assert.Equal(t, service.SessionListRequest{DateFrom: "2024-03-01", DateTo: "2024-03-31", Page: 3}, svc.listReq)
}

func TestSessionHandlerCreateUsesGroupFromPath(t *testing.T) {
	svc := &fakeSessionService{}
	c, rec := newContext(http.MethodPost, "/groups/g1/sessions", `{"date":"2024-03-12","start_time":"19:30","duration":60}`)
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	NewSessionHandler(svc).Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "g1", svc.groupID)
	assert.Equal(t, "19:30", svc.created.StartTime)

	var created service.SessionCreated
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	assert.Equal(t, 12, created.RecordsCreated)
}

type fakeAttendanceService struct {
	saved  service.SaveSheetRequest
	format string
}

func (f *fakeAttendanceService) Sheet(ctx context.Context, sessionID string) (*models.AttendanceSheet, error) {
	if sessionID == "missing" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	return &models.AttendanceSheet{Summary: models.NewAttendanceSummary(1, 2)}, nil
}

func (f *fakeAttendanceService) SaveSheet(ctx context.Context, sessionID string, req service.SaveSheetRequest) (*models.AttendanceSheet, error) {
	f.saved = req
	return &models.AttendanceSheet{}, nil
}

func (f *fakeAttendanceService) UpdateRecord(ctx context.Context, id string, req service.UpdateRecordRequest) (*models.AttendanceRecord, error) {
	return &models.AttendanceRecord{ID: id}, nil
}

func (f *fakeAttendanceService) Export(ctx context.Context, sessionID, format string) (*service.ExportFile, error) {
	f.format = format
	return &service.ExportFile{Filename: "attendance-senior-2019-girls-2024-03-12.csv", ContentType: "text/csv; charset=utf-8", Payload: []byte("#,Student\n")}, nil
}

func TestAttendanceHandlerSheet(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/sessions/missing/attendance", "")
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	NewAttendanceHandler(&fakeAttendanceService{}).Sheet(c)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	c, rec = newContext(http.MethodGet, "/sessions/se1/attendance", "")
	c.Params = gin.Params{{Key: "id", Value: "se1"}}
	NewAttendanceHandler(&fakeAttendanceService{}).Sheet(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"percent":50`)
}

func TestAttendanceHandlerSaveSheet(t *testing.T) {
	svc := &fakeAttendanceService{}
	c, rec := newContext(http.MethodPut, "/sessions/se1/attendance", `{"records":[{"student_id":"s1","present":true,"status":"late"}]}`)
	c.Params = gin.Params{{Key: "id", Value: "se1"}}

	NewAttendanceHandler(svc).SaveSheet(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.saved.Records, 1)
	assert.Equal(t, "late", svc.saved.Records[0].Status)
}

func TestAttendanceHandlerExport(t *testing.T) {
	svc := &fakeAttendanceService{}
	c, rec := newContext(http.MethodGet, "/sessions/se1/attendance/export?format=csv", "")
	c.Params = gin.Params{{Key: "id", Value: "se1"}}

	NewAttendanceHandler(svc).Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "csv", svc.format)
	assert.Equal(t, `attachment; filename="attendance-senior-2019-girls-2024-03-12.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "#,Student\n", rec.Body.String())
}

type fakeCalendarService struct {
	year, month int
}

func (f *fakeCalendarService) Month(ctx context.Context, groupID string, year, month int) (*models.CalendarMonth, error) {
	f.year, f.month = year, month
	return &models.CalendarMonth{GroupID: groupID, Year: year, Month: month}, nil
}

func TestCalendarHandlerMonth(t *testing.T) {
	svc := &fakeCalendarService{}
	c, rec := newContext(http.MethodGet, "/groups/g1/calendar?year=2024&month=2", "")
	c.Params = gin.Params{{Key: "id", Value: "g1"}}

	NewCalendarHandler(svc).Month(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2024, svc.year)
	assert.Equal(t, 2, svc.month)

	c, rec = newContext(http.MethodGet, "/groups/g1/calendar?month=feb", "")
	NewCalendarHandler(svc).Month(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeAdminService struct {
	marked  []string
	present bool
}

func (f *fakeAdminService) ReconcileSessions(ctx context.Context, sessionIDs []string) ([]service.ReconcileOutcome, []string, error) {
	return []service.ReconcileOutcome{{SessionID: sessionIDs[0], Created: 3}}, []string{"Created 3 records for session se1"}, nil
}

func (f *fakeAdminService) MarkPresent(ctx context.Context, recordIDs []string) (*service.BulkResult, []string, error) {
	f.marked, f.present = recordIDs, true
	return &service.BulkResult{Updated: len(recordIDs)}, []string{"2 records marked present"}, nil
}

func (f *fakeAdminService) MarkAbsent(ctx context.Context, recordIDs []string) (*service.BulkResult, []string, error) {
	f.marked, f.present = recordIDs, false
	return &service.BulkResult{Updated: len(recordIDs)}, []string{"2 records marked absent"}, nil
}

func (f *fakeAdminService) SessionSummary(ctx context.Context, sessionID string) (models.AttendanceSummary, string, error) {
	summary := models.NewAttendanceSummary(7, 9)
	return summary, summary.String(), nil
}

type fakeAttendanceLister struct {
	filter models.AttendanceFilter
}

func (f *fakeAttendanceLister) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, *models.Pagination, error) {
	f.filter = filter
	return []models.AttendanceListItem{}, &models.Pagination{Page: 1, PageSize: 50}, nil
}

func TestAdminHandlerReconcileReturnsMessages(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/admin/sessions/reconcile", `{"session_ids":["se1"]}`)

	NewAdminHandler(&fakeAdminService{}, &fakeAttendanceLister{}).ReconcileSessions(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Created 3 records for session se1"}, decode(t, rec).Messages)
}

func TestAdminHandlerMarkAbsent(t *testing.T) {
	svc := &fakeAdminService{present: true}
	c, rec := newContext(http.MethodPost, "/admin/attendance/mark-absent", `{"record_ids":["a1","a2"]}`)

	NewAdminHandler(svc, &fakeAttendanceLister{}).MarkAbsent(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.present)
	assert.Equal(t, []string{"a1", "a2"}, svc.marked)
	assert.Equal(t, []string{"2 records marked absent"}, decode(t, rec).Messages)
}

func TestAdminHandlerListAttendanceFilters(t *testing.T) {
	lister := &fakeAttendanceLister{}
	c, rec := newContext(http.MethodGet, "/admin/attendance?status=late&present=true&group_id=g1&date_from=2024-03-01&search=iva&page=2", "")

	NewAdminHandler(&fakeAdminService{}, lister).ListAttendance(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, lister.filter.Status)
	assert.Equal(t, models.AttendanceLate, *lister.filter.Status)
	require.NotNil(t, lister.filter.Present)
	assert.True(t, *lister.filter.Present)
	assert.Equal(t, "g1", lister.filter.GroupID)
	require.NotNil(t, lister.filter.DateFrom)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), *lister.filter.DateFrom)
	assert.Nil(t, lister.filter.DateTo)
	assert.Equal(t, "iva", lister.filter.Search)
	assert.Equal(t, 2, lister.filter.Page)
}

func TestAdminHandlerListAttendanceRejectsBadInput(t *testing.T) {
	for _, query := range []string{"status=sleeping", "present=maybe", "date_to=12.03.2024"} {
		c, rec := newContext(http.MethodGet, "/admin/attendance?"+query, "")
		NewAdminHandler(&fakeAdminService{}, &fakeAttendanceLister{}).ListAttendance(c)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminHandlerSessionSummary(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/admin/sessions/se1/summary", "")
	c.Params = gin.Params{{Key: "id", Value: "se1"}}

	NewAdminHandler(&fakeAdminService{}, &fakeAttendanceLister{}).SessionSummary(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Present: 7/9 (78%)", decode(t, rec).Meta["display"])
}

type fakeAuthService struct {
	profileFor string
}

func (f *fakeAuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	return &models.LoginResponse{AccessToken: "token"}, nil
}

func (f *fakeAuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
}

func (f *fakeAuthService) Profile(ctx context.Context, userID string) (*models.User, error) {
	f.profileFor = userID
	return &models.User{ID: userID}, nil
}

func (f *fakeAuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.User, error) {
	return &models.User{ID: userID}, nil
}

func (f *fakeAuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	return nil
}

func TestAuthHandlerProfileUsesClaims(t *testing.T) {
	svc := &fakeAuthService{}
	c, rec := newContext(http.MethodGet, "/auth/profile", "")
	NewAuthHandler(svc).Profile(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	c, rec = newContext(http.MethodGet, "/auth/profile", "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})
	NewAuthHandler(svc).Profile(c)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u1", svc.profileFor)
}

func TestAuthHandlerRegisterConflict(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/auth/register", `{"email":"coach@example.com","password":"longenough"}`)

	NewAuthHandler(&fakeAuthService{}).Register(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthHandlerChangePassword(t *testing.T) {
	c, _ := newContext(http.MethodPost, "/auth/change-password", `{"old_password":"a","new_password":"longenough"}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u1"})

	NewAuthHandler(&fakeAuthService{}).ChangePassword(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }

func TestMetricsHandlerReady(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/ready", "")
	NewMetricsHandler(nil, map[string]Pinger{"postgres": stubPinger{}}).Ready(c)
	assert.Equal(t, http.StatusOK, rec.Code)

	c, rec = newContext(http.MethodGet, "/ready", "")
	NewMetricsHandler(nil, map[string]Pinger{
		"postgres": stubPinger{},
		"redis":    PingFunc(func(context.Context) error { return appErrors.ErrInternal }),
	}).Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}
