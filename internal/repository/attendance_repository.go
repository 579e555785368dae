package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/studio-register-api/internal/models"
)

// AttendanceRepository manages attendance records of sessions.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = "ar.id, ar.session_id, ar.student_id, ar.present, ar.status, ar.notes, ar.created_at, ar.updated_at"

// Reconcile inserts an absent record for every student of the session's group
// who is active on the session date and has none yet. It returns the number of
// records created; running it again creates nothing.
func (r *AttendanceRepository) Reconcile(ctx context.Context, sessionID string) (int, error) {
	const query = `INSERT INTO attendance_records (id, session_id, student_id, present, status, notes, created_at, updated_at)
        SELECT gen_random_uuid(), se.id, st.id, FALSE, 'absent', '', NOW(), NOW()
        FROM sessions se
        JOIN students st ON st.group_id = se.group_id
        WHERE se.id = $1
          AND st.status = 'participant'
          AND (st.expulsion_date IS NULL OR st.expulsion_date > se.date)
        ON CONFLICT (session_id, student_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return 0, fmt.Errorf("reconcile attendance: %w", err)
	}
	created, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reconcile attendance: %w", err)
	}
	return int(created), nil
}

// Sheet returns every record of a session joined with the student name.
func (r *AttendanceRepository) Sheet(ctx context.Context, sessionID string) ([]models.AttendanceSheetRow, error) {
	query := `SELECT ` + attendanceColumns + `,
        CONCAT_WS(' ', NULLIF(st.last_name, ''), NULLIF(st.first_name, ''), NULLIF(st.middle_name, '')) AS student_name
        FROM attendance_records ar
        JOIN students st ON st.id = ar.student_id
        WHERE ar.session_id = $1
        ORDER BY st.last_name, st.first_name`
	var rows []models.AttendanceSheetRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("attendance sheet: %w", err)
	}
	return rows, nil
}

// FindByID fetches a single attendance record.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.AttendanceRecord, error) {
	query := "SELECT " + attendanceColumns + " FROM attendance_records ar WHERE ar.id = $1"
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find attendance record: %w", err)
	}
	return &record, nil
}

// Update writes the mutable fields of one record. Callers normalize first.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.AttendanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance_records SET present = :present, status = :status, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("update attendance record: %w", err)
	}
	return nil
}

// SaveSheet updates the records of a session keyed by student in one transaction.
func (r *AttendanceRepository) SaveSheet(ctx context.Context, sessionID string, records []models.AttendanceRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save attendance: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE attendance_records SET present = $3, status = $4, notes = $5, updated_at = $6 WHERE session_id = $1 AND student_id = $2`
	now := time.Now().UTC()
	for i := range records {
		rec := &records[i]
		rec.UpdatedAt = now
		res, err := tx.ExecContext(ctx, query, sessionID, rec.StudentID, rec.Present, rec.Status, rec.Notes, rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("save attendance for student %s: %w", rec.StudentID, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("save attendance for student %s: %w", rec.StudentID, err)
		}
		if affected == 0 {
			return fmt.Errorf("save attendance for student %s: %w", rec.StudentID, sql.ErrNoRows)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save attendance: %w", err)
	}
	commit = true
	return nil
}

// SetPresence marks the given records present or absent in bulk and returns
// the number of rows changed.
func (r *AttendanceRepository) SetPresence(ctx context.Context, ids []string, present bool) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	status := models.AttendanceAbsent
	if present {
		status = models.AttendancePresent
	}
	const query = `UPDATE attendance_records SET present = $2, status = $3, updated_at = $4 WHERE id = ANY($1)`
	res, err := r.db.ExecContext(ctx, query, pq.Array(ids), present, status, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("set attendance presence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("set attendance presence: %w", err)
	}
	return int(affected), nil
}

// SessionIDsOf returns the distinct sessions the given records belong to.
func (r *AttendanceRepository) SessionIDsOf(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var sessionIDs []string
	if err := r.db.SelectContext(ctx, &sessionIDs, `SELECT DISTINCT session_id FROM attendance_records WHERE id = ANY($1)`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("attendance sessions: %w", err)
	}
	return sessionIDs, nil
}

// Summary counts present and total records of a session.
func (r *AttendanceRepository) Summary(ctx context.Context, sessionID string) (present, total int, err error) {
	const query = `SELECT COUNT(*) FILTER (WHERE present) AS present, COUNT(*) AS total FROM attendance_records WHERE session_id = $1`
	var counts struct {
		Present int `db:"present"`
		Total   int `db:"total"`
	}
	if err := r.db.GetContext(ctx, &counts, query, sessionID); err != nil {
		return 0, 0, fmt.Errorf("attendance summary: %w", err)
	}
	return counts.Present, counts.Total, nil
}

// List returns attendance records across sessions for the admin listing,
// newest session first then by student surname.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceListItem, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("ar.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Present != nil {
		conditions = append(conditions, fmt.Sprintf("ar.present = $%d", len(args)+1))
		args = append(args, *filter.Present)
	}
	if filter.GroupID != "" {
		conditions = append(conditions, fmt.Sprintf("se.group_id = $%d", len(args)+1))
		args = append(args, filter.GroupID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("se.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("se.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.Search != "" {
		idx := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(st.last_name) LIKE $%d OR LOWER(st.first_name) LIKE $%d OR LOWER(ar.notes) LIKE $%d)", idx, idx, idx))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	base := `FROM attendance_records ar
        JOIN sessions se ON se.id = ar.session_id
        JOIN students st ON st.id = ar.student_id
        JOIN groups g ON g.id = se.group_id
        WHERE ` + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        CONCAT_WS(' ', NULLIF(st.last_name, ''), NULLIF(st.first_name, ''), NULLIF(st.middle_name, '')) AS student_name,
        se.date AS session_date, se.start_time AS session_start, se.group_id,
        g.age_category AS group_age_category, g.year AS group_year, g.gender AS group_gender
        %s ORDER BY se.date DESC, st.last_name, st.first_name LIMIT %d OFFSET %d`, attendanceColumns, base, size, offset)
	var items []models.AttendanceListItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return items, total, nil
}
