package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/studio-register-api/internal/models"
)

// SessionRepository manages persistence for rehearsal sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = "se.id, se.date, se.start_time, se.duration, se.group_id, se.notes, se.created_at, se.updated_at"

// List returns the sessions of a group with attendance counters, newest first.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.SessionListItem, int, error) {
	conditions := []string{"se.group_id = $1"}
	args := []interface{}{filter.GroupID}

	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("se.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("se.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 10
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s,
        COUNT(ar.id) AS attendance_total,
        COUNT(ar.id) FILTER (WHERE ar.present) AS attendance_present
        FROM sessions se
        LEFT JOIN attendance_records ar ON ar.session_id = se.id
        WHERE %s
        GROUP BY se.id
        ORDER BY se.date DESC, se.start_time ASC LIMIT %d OFFSET %d`, sessionColumns, where, size, offset)
	var items []models.SessionListItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sessions se WHERE "+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}
	return items, total, nil
}

// FindByID fetches a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions se WHERE se.id = $1"
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// Exists checks for a session of the group at the same date and start time.
func (r *SessionRepository) Exists(ctx context.Context, groupID string, date time.Time, start models.ClockTime, excludeID string) (bool, error) {
	query := "SELECT 1 FROM sessions WHERE group_id = $1 AND date = $2 AND start_time = $3"
	args := []interface{}{groupID, date, start}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check session slot: %w", err)
	}
	return true, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	const query = `INSERT INTO sessions (id, date, start_time, duration, group_id, notes, created_at, updated_at)
        VALUES (:id, :date, :start_time, :duration, :group_id, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies an existing session.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET date = :date, start_time = :start_time, duration = :duration, group_id = :group_id, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// Delete removes a session and, through the cascade, its attendance records.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListCalendar returns the sessions of a group between from and to with presence counts.
func (r *SessionRepository) ListCalendar(ctx context.Context, groupID string, from, to time.Time) ([]models.CalendarSession, error) {
	const query = `SELECT se.id, se.date, se.start_time, se.duration,
        COUNT(ar.id) FILTER (WHERE ar.present) AS present,
        COUNT(ar.id) AS total
        FROM sessions se
        LEFT JOIN attendance_records ar ON ar.session_id = se.id
        WHERE se.group_id = $1 AND se.date BETWEEN $2 AND $3
        GROUP BY se.id
        ORDER BY se.date, se.start_time`
	var rows []models.CalendarSession
	if err := r.db.SelectContext(ctx, &rows, query, groupID, from, to); err != nil {
		return nil, fmt.Errorf("list calendar sessions: %w", err)
	}
	return rows, nil
}
