package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/studio-register-api/internal/models"
	appErrors "github.com/noah-isme/studio-register-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	FindByID(ctx context.Context, id string) (*models.Student, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	Delete(ctx context.Context, id string) error
}

type groupLookup interface {
	FindByID(ctx context.Context, id string) (*models.GroupDetail, error)
}

// StudentRequest holds the payload for creating and updating students.
type StudentRequest struct {
	LastName       string `json:"last_name" validate:"max=50"`
	FirstName      string `json:"first_name" validate:"max=50"`
	MiddleName     string `json:"middle_name" validate:"max=50"`
	BirthDate      string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
	Gender         string `json:"gender" validate:"required,gender"`
	GroupID        string `json:"group_id" validate:"required,uuid"`
	Status         string `json:"status" validate:"omitempty,student_status"`
	Notes          string `json:"notes"`
	Phone          string `json:"phone" validate:"omitempty,e164"`
	EnrollmentDate string `json:"enrollment_date" validate:"omitempty,datetime=2006-01-02"`
	ExpulsionDate  string `json:"expulsion_date" validate:"omitempty,datetime=2006-01-02"`
	GraduationYear *int   `json:"graduation_year" validate:"omitempty,min=1"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	groups    groupLookup
	cache     cacheStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, groups groupLookup, cache cacheStore, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	registerStudioValidations(validate)
	return &StudentService{repo: repo, groups: groups, cache: cache, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.FromStore(err, "failed to list students", "failed to list students", "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a student.
func (s *StudentService) Get(ctx context.Context, id string) (*models.Student, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Create registers a new student.
func (s *StudentService) Create(ctx context.Context, req StudentRequest) (*models.Student, error) {
	student := &models.Student{}
	if err := s.apply(ctx, student, req); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.FromStore(err, "student already exists", "group not found", "failed to create student")
	}
	s.invalidate(ctx, student.GroupID)
	return student, nil
}

// Update modifies an existing student record.
func (s *StudentService) Update(ctx context.Context, id string, req StudentRequest) (*models.Student, error) {
	student, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previousGroup := student.GroupID
	if err := s.apply(ctx, student, req); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, student); err != nil {
		return nil, appErrors.FromStore(err, "student already exists", "group not found", "failed to update student")
	}
	s.invalidate(ctx, student.GroupID)
	if previousGroup != student.GroupID {
		s.invalidate(ctx, previousGroup)
	}
	return student, nil
}

// Delete removes a student and their attendance history.
func (s *StudentService) Delete(ctx context.Context, id string) error {
	student, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student")
	}
	s.invalidate(ctx, student.GroupID)
	return nil
}

func (s *StudentService) apply(ctx context.Context, student *models.Student, req StudentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	if _, err := s.groups.FindByID(ctx, req.GroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load group")
	}

	birth, _ := parseDate(req.BirthDate)
	enrolled, _ := parseDate(req.EnrollmentDate)
	expelled, _ := parseDate(req.ExpulsionDate)
	if enrolled != nil && expelled != nil && expelled.Before(*enrolled) {
		return appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid student payload"),
			map[string]string{"expulsion_date": "must not precede enrollment_date"})
	}

	student.LastName = req.LastName
	student.FirstName = req.FirstName
	student.MiddleName = req.MiddleName
	student.BirthDate = birth
	student.Gender = models.Gender(req.Gender)
	student.GroupID = req.GroupID
	student.Notes = req.Notes
	student.EnrollmentDate = enrolled
	student.ExpulsionDate = expelled
	student.GraduationYear = req.GraduationYear
	student.Phone = nil
	if req.Phone != "" {
		phone := req.Phone
		student.Phone = &phone
	}
	status := models.StudentStatus(req.Status)
	if status == "" {
		status = models.StudentParticipant
	}
	student.Status = status
	student.FullName = student.ComposeFullName()
	return nil
}

func (s *StudentService) invalidate(ctx context.Context, groupID string) {
	if s.cache != nil {
		s.cache.InvalidateGroup(ctx, groupID)
	}
}
