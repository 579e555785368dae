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

type groupRepository interface {
	List(ctx context.Context, filter models.GroupFilter) ([]models.Group, int, error)
	ListOverview(ctx context.Context, from, to time.Time) ([]models.GroupOverview, error)
	FindByID(ctx context.Context, id string) (*models.GroupDetail, error)
	ExistsByCohort(ctx context.Context, category models.AgeCategory, year int, gender models.Gender, excludeID string) (bool, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id string) error
}

type cacheStore interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	InvalidateGroup(ctx context.Context, groupID string)
}

// GroupRequest is the payload for creating and updating groups.
type GroupRequest struct {
	AgeCategory string `json:"age_category" validate:"required,age_category"`
	Year        int    `json:"year" validate:"required,min=1,max=32767"`
	Gender      string `json:"gender" validate:"required,gender"`
	IsActive    *bool  `json:"is_active"`
}

// HomeOverview is the landing page payload.
type HomeOverview struct {
	AcademicYear models.AcademicYear    `json:"academic_year"`
	Groups       []models.GroupOverview `json:"groups"`
}

// GroupService handles group use-cases.
type GroupService struct {
	repo      groupRepository
	cache     cacheStore
	validator *validator.Validate
	logger    *zap.Logger
	studio    StudioConfig
}

// NewGroupService constructs the group service. cache may be nil.
func NewGroupService(repo groupRepository, cache cacheStore, studio StudioConfig, validate *validator.Validate, logger *zap.Logger) *GroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerStudioValidations(validate)
	return &GroupService{repo: repo, cache: cache, validator: validate, logger: logger, studio: studio.withDefaults()}
}

// Home lists active groups with their session count for the running academic year.
func (s *GroupService) Home(ctx context.Context) (*HomeOverview, error) {
	var cached HomeOverview
	if s.cache != nil {
		if hit, err := s.cache.Get(ctx, homeCacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	year := models.AcademicYearFor(s.studio.today())
	groups, err := s.repo.ListOverview(ctx, year.Start, year.End)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load groups")
	}
	for i := range groups {
		groups[i].Name = groups[i].DisplayName()
	}
	if groups == nil {
		groups = []models.GroupOverview{}
	}
	overview := &HomeOverview{AcademicYear: year, Groups: groups}
	if s.cache != nil {
		_ = s.cache.Set(ctx, homeCacheKey, overview, 0)
	}
	return overview, nil
}

// List returns groups and pagination metadata.
func (s *GroupService) List(ctx context.Context, filter models.GroupFilter) ([]models.Group, *models.Pagination, error) {
	groups, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list groups")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return groups, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a group with its reference counts.
func (s *GroupService) Get(ctx context.Context, id string) (*models.GroupDetail, error) {
	detail, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}
	detail.Name = detail.DisplayName()
	return detail, nil
}

// Create registers a new group.
func (s *GroupService) Create(ctx context.Context, req GroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	group := &models.Group{
		AgeCategory: models.AgeCategory(req.AgeCategory),
		Year:        req.Year,
		Gender:      models.Gender(req.Gender),
		IsActive:    true,
	}
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	if err := s.ensureUniqueCohort(ctx, group, ""); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.FromStore(err, "group already exists", "group is referenced", "failed to create group")
	}
	s.invalidate(ctx)
	return group, nil
}

// Update modifies an existing group.
func (s *GroupService) Update(ctx context.Context, id string, req GroupRequest) (*models.Group, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid group payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	group := detail.Group
	group.AgeCategory = models.AgeCategory(req.AgeCategory)
	group.Year = req.Year
	group.Gender = models.Gender(req.Gender)
	if req.IsActive != nil {
		group.IsActive = *req.IsActive
	}
	if err := s.ensureUniqueCohort(ctx, &group, id); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &group); err != nil {
		return nil, appErrors.FromStore(err, "group already exists", "group is referenced", "failed to update group")
	}
	s.invalidate(ctx)
	return &group, nil
}

// Delete removes a group that no student or session references.
func (s *GroupService) Delete(ctx context.Context, id string) error {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if detail.StudentsCount > 0 || detail.SessionsCount > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "group still has students or sessions")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.FromStore(err, "group already exists", "group still has students or sessions", "failed to delete group")
	}
	s.invalidate(ctx)
	s.logger.Info("group deleted", zap.String("group_id", id))
	return nil
}

func (s *GroupService) ensureUniqueCohort(ctx context.Context, group *models.Group, excludeID string) error {
	exists, err := s.repo.ExistsByCohort(ctx, group.AgeCategory, group.Year, group.Gender, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate group")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "group "+group.DisplayName()+" already exists")
	}
	return nil
}

func (s *GroupService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateGroup(ctx, "")
	}
}
