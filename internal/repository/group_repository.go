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

// GroupRepository manages persistence for groups.
type GroupRepository struct {
	db *sqlx.DB
}

// NewGroupRepository constructs a GroupRepository.
func NewGroupRepository(db *sqlx.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

const groupColumns = "g.id, g.age_category, g.year, g.gender, g.is_active, g.created_at, g.updated_at"

// List returns groups matching the provided filters.
func (r *GroupRepository) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error) {
	conditions := []string{"1=1"}
	var args []interface{}

	if filter.AgeCategory != "" {
		conditions = append(conditions, fmt.Sprintf("g.age_category = $%d", len(args)+1))
		args = append(args, filter.AgeCategory)
	}
	if filter.Year > 0 {
		conditions = append(conditions, fmt.Sprintf("g.year = $%d", len(args)+1))
		args = append(args, filter.Year)
	}
	if filter.Gender != "" {
		conditions = append(conditions, fmt.Sprintf("g.gender = $%d", len(args)+1))
		args = append(args, filter.Gender)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("g.is_active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	base := "FROM groups g WHERE " + strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY g.year DESC, g.age_category, g.gender LIMIT %d OFFSET %d", groupColumns, base, size, offset)
	var groups []models.Group
	if err := r.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list groups: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count groups: %w", err)
	}
	return groups, total, nil
}

// ListOverview returns active groups with their headcount and the number of
// sessions held between from and to inclusive.
func (r *GroupRepository) ListOverview(ctx context.Context, from, to time.Time) ([]models.GroupOverview, error) {
	query := `SELECT ` + groupColumns + `,
        (SELECT COUNT(*) FROM students s WHERE s.group_id = g.id AND s.status = 'participant') AS students_count,
        (SELECT COUNT(*) FROM sessions se WHERE se.group_id = g.id AND se.date BETWEEN $1 AND $2) AS current_year_sessions
        FROM groups g
        WHERE g.is_active = TRUE
        ORDER BY g.year DESC, g.age_category, g.gender`
	var rows []models.GroupOverview
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("list group overview: %w", err)
	}
	return rows, nil
}

// FindByID fetches a group with its reference counts.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*models.GroupDetail, error) {
	query := `SELECT ` + groupColumns + `,
        (SELECT COUNT(*) FROM students s WHERE s.group_id = g.id) AS students_count,
        (SELECT COUNT(*) FROM sessions se WHERE se.group_id = g.id) AS sessions_count
        FROM groups g WHERE g.id = $1`
	var detail models.GroupDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		if isMissing(err) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find group: %w", err)
	}
	return &detail, nil
}

// ExistsByCohort checks for another group with the same category, year and gender.
func (r *GroupRepository) ExistsByCohort(ctx context.Context, category models.AgeCategory, year int, gender models.Gender, excludeID string) (bool, error) {
	query := "SELECT 1 FROM groups WHERE age_category = $1 AND year = $2 AND gender = $3"
	args := []interface{}{category, year, gender}
	if excludeID != "" {
		query += " AND id <> $4"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check group cohort: %w", err)
	}
	return true, nil
}

// Create inserts a new group.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now
	const query = `INSERT INTO groups (id, age_category, year, gender, is_active, created_at, updated_at)
        VALUES (:id, :age_category, :year, :gender, :is_active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

// Update modifies an existing group.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().UTC()
	const query = `UPDATE groups SET age_category = :age_category, year = :year, gender = :gender, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// Delete removes a group. Students and sessions keep it alive through RESTRICT keys.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
