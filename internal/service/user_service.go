package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/passwords"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error)
	Delete(ctx context.Context, id string) (*models.User, error)
}

type studentEnrollments interface {
	RemoveStudent(ctx context.Context, studentID string) (int, error)
	RenameStudent(ctx context.Context, user models.User)
}

type holderReleaser interface {
	ReleaseHolder(ctx context.Context, actor string, role models.UserRole, user models.User) (bool, error)
}

type sessionRevoker interface {
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

// UserService handles user management workflows.
type UserService struct {
	repo        userRepository
	enrollments studentEnrollments
	sessions    sessionRevoker
	locks       holderReleaser
	hasher      *passwords.Hasher
	activities  activityRecorder
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// UserServiceParams groups constructor dependencies.
type UserServiceParams struct {
	Repo        userRepository
	Enrollments studentEnrollments
	Sessions    sessionRevoker
	Locks       holderReleaser
	Hasher      *passwords.Hasher
	Activities  activityRecorder
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(params UserServiceParams) *UserService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	hasher := params.Hasher
	if hasher == nil {
		hasher = passwords.NewHasher(passwords.SchemeSHA256)
	}
	return &UserService{
		repo:        params.Repo,
		enrollments: params.Enrollments,
		sessions:    params.Sessions,
		locks:       params.Locks,
		hasher:      hasher,
		activities:  recorderOrNop(params.Activities),
		validator:   validate,
		logger:      logger,
		now:         time.Now,
	}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserView, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list users")
	}

	views := make([]models.UserView, len(users))
	for i, u := range users {
		views[i] = u.View()
	}
	return views, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserView, error) {
	user, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	view := user.View()
	return &view, nil
}

// Create adds a new user.
func (s *UserService) Create(ctx context.Context, actor string, req models.CreateUserRequest) (*models.UserView, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid create user payload")
	}
	if req.Status == "" {
		req.Status = models.StatusActive
	}

	now := s.now().UTC()
	user := &models.User{
		ID:        uuid.NewString(),
		Username:  req.Username,
		Email:     strings.ToLower(req.Email),
		Role:      req.Role,
		Status:    req.Status,
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	if req.Password != "" {
		hashed, err := s.hasher.Hash(req.Password)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		user.Password = hashed
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already exists")
		}
		return nil, storeError(err, "failed to create user")
	}

	s.activities.Record(ctx, actor, fmt.Sprintf("New user added: %s (%s)", user.Username, user.Role), nil)
	view := user.View()
	return &view, nil
}

// Update replaces the editable fields of a user.
func (s *UserService) Update(ctx context.Context, actor, id string, req models.UpdateUserRequest) (*models.UserView, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid update user payload")
	}

	var before models.User
	updated, err := s.repo.Update(ctx, id, func(u *models.User) error {
		before = *u
		u.Username = req.Username
		u.Email = strings.ToLower(req.Email)
		u.Role = req.Role
		now := s.now().UTC()
		u.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update user")
	}

	if s.enrollments != nil && updated.Role == models.RoleStudent {
		s.enrollments.RenameStudent(ctx, *updated)
	}
	if before.Role != updated.Role {
		s.releaseLock(ctx, actor, before)
		s.endSessions(ctx, updated.ID)
	} else if !strings.EqualFold(before.Username, updated.Username) {
		s.releaseLock(ctx, actor, before)
	}
	s.activities.Record(ctx, actor, fmt.Sprintf("Updated user: %s (%s)", updated.Username, updated.Role), nil)
	view := updated.View()
	return &view, nil
}

// UpdateStatus activates or deactivates a user. Deactivation ends the
// user's sessions and frees any portal lock it holds.
func (s *UserService) UpdateStatus(ctx context.Context, actor, id string, req models.UpdateUserStatusRequest) (*models.UserView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid status payload")
	}

	updated, err := s.repo.Update(ctx, id, func(u *models.User) error {
		if u.Status == req.Status {
			return nil
		}
		u.Status = req.Status
		now := s.now().UTC()
		u.UpdatedAt = &now
		return nil
	})
	if err != nil {
		return nil, s.mapWriteError(err, "failed to update user status")
	}

	if updated.Status == models.StatusInactive {
		s.releaseLock(ctx, actor, *updated)
		s.endSessions(ctx, updated.ID)
	}
	s.activities.Record(ctx, actor, fmt.Sprintf("Updated user: %s (%s)", updated.Username, updated.Role), map[string]string{"status": string(updated.Status)})
	view := updated.View()
	return &view, nil
}

// Delete removes a user, its enrollments, its sessions and any portal lock
// it holds.
func (s *UserService) Delete(ctx context.Context, actor, id string) error {
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return s.mapWriteError(err, "failed to delete user")
	}

	if s.enrollments != nil && removed.Role == models.RoleStudent {
		if _, err := s.enrollments.RemoveStudent(ctx, removed.ID); err != nil {
			s.logger.Warn("failed to remove enrollments of deleted user", zap.String("user_id", removed.ID), zap.Error(err))
		}
	}
	s.releaseLock(ctx, actor, *removed)
	s.endSessions(ctx, removed.ID)
	s.activities.Record(ctx, actor, fmt.Sprintf("Deleted user: %s (%s)", removed.Username, removed.Role), nil)
	return nil
}

func (s *UserService) find(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, storeError(err, "failed to load user")
	}
	return user, nil
}

func (s *UserService) releaseLock(ctx context.Context, actor string, holder models.User) {
	if s.locks == nil {
		return
	}
	if _, err := s.locks.ReleaseHolder(ctx, actor, holder.Role, holder); err != nil {
		s.logger.Warn("failed to release portal lock", zap.String("user_id", holder.ID), zap.String("role", string(holder.Role)), zap.Error(err))
	}
}

func (s *UserService) endSessions(ctx context.Context, userID string) {
	if s.sessions == nil {
		return
	}
	if _, err := s.sessions.DeleteForUser(ctx, userID); err != nil {
		s.logger.Warn("failed to end user sessions", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *UserService) mapWriteError(err error, message string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case errors.Is(err, repository.ErrDuplicate):
		return appErrors.Clone(appErrors.ErrConflict, "username already exists")
	default:
		return storeError(err, message)
	}
}
