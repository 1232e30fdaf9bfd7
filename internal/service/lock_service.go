package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
)

type lockStore interface {
	Get(ctx context.Context, role models.UserRole) (*models.ActiveLock, int64, error)
	Claim(ctx context.Context, role models.UserRole, lock models.ActiveLock) error
	Replace(ctx context.Context, role models.UserRole, lock models.ActiveLock, rev int64) error
	Clear(ctx context.Context, role models.UserRole, rev int64) error
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// LockConfig tunes lock expiry and the operator override.
type LockConfig struct {
	TTL           time.Duration
	OverrideToken string
}

// LockService enforces one active account per privileged portal.
type LockService struct {
	repo       lockStore
	users      userFinder
	activities activityRecorder
	logger     *zap.Logger
	cfg        LockConfig
	now        func() time.Time
}

// NewLockService constructs the service.
func NewLockService(repo lockStore, users userFinder, activities activityRecorder, logger *zap.Logger, cfg LockConfig) *LockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockService{
		repo:       repo,
		users:      users,
		activities: recorderOrNop(activities),
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

const claimAttempts = 3

// Claim admits user to its portal. An empty lock is claimed, a lock held by
// the same username is accepted and any other holder is reported as
// ROLE_LOCKED. Student accounts are never locked.
func (s *LockService) Claim(ctx context.Context, user models.User) error {
	role := user.Role
	if !models.LockableRole(role) {
		return nil
	}
	for attempt := 0; attempt < claimAttempts; attempt++ {
		current, rev, err := s.repo.Get(ctx, role)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			err = s.repo.Claim(ctx, role, s.lockFor(user))
			if errors.Is(err, repository.ErrStaleLock) {
				continue
			}
			if err != nil {
				return storeError(err, "failed to claim portal")
			}
			s.activities.Record(ctx, user.Username, "become-active-"+string(role), map[string]string{string(role) + "Id": user.ID})
			return nil
		case err != nil:
			return storeError(err, "failed to read portal lock")
		}

		if user.SameUsername(current.Username) {
			return nil
		}
		if !s.expired(current) {
			return lockedError(role, current.Username)
		}

		err = s.repo.Replace(ctx, role, s.lockFor(user), rev)
		if errors.Is(err, repository.ErrStaleLock) {
			continue
		}
		if err != nil {
			return storeError(err, "failed to reclaim portal")
		}
		s.logger.Info("expired portal lock reclaimed", zap.String("role", string(role)), zap.String("previous", current.Username), zap.String("username", user.Username))
		s.activities.Record(ctx, user.Username, "reclaim-active-"+string(role), map[string]string{
			string(role) + "Id": user.ID,
			"previous":          current.Username,
		})
		return nil
	}
	return appErrors.Clone(appErrors.ErrRevisionConflict, "portal lock changed concurrently, try again")
}

// Get returns the current lock or nil when the portal is unheld.
func (s *LockService) Get(ctx context.Context, role models.UserRole) (*models.ActiveLock, error) {
	if err := checkLockRole(role); err != nil {
		return nil, err
	}
	lock, _, err := s.repo.Get(ctx, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(err, "failed to read portal lock")
	}
	return lock, nil
}

// Transfer hands the lock from actor, who must hold it, to another active
// account of the same role.
func (s *LockService) Transfer(ctx context.Context, role models.UserRole, actor string, targetID string) (*models.ActiveLock, error) {
	if err := checkLockRole(role); err != nil {
		return nil, err
	}
	current, rev, err := s.heldBy(ctx, role, actor)
	if err != nil {
		return nil, err
	}

	target, err := s.users.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "target user not found")
		}
		return nil, storeError(err, "failed to load target user")
	}
	if target.Role != role || target.Status == models.StatusInactive {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("target must be an active %s account", role))
	}

	next := s.lockFor(*target)
	if err := s.repo.Replace(ctx, role, next, rev); err != nil {
		if errors.Is(err, repository.ErrStaleLock) {
			return nil, appErrors.Clone(appErrors.ErrRevisionConflict, "portal lock changed concurrently, try again")
		}
		return nil, storeError(err, "failed to transfer portal")
	}
	s.activities.Record(ctx, actor, "transfer-active-"+string(role), map[string]string{
		"from":              current.Username,
		"to":                target.Username,
		string(role) + "Id": target.ID,
	})
	return &next, nil
}

// Revoke clears the lock held by actor.
func (s *LockService) Revoke(ctx context.Context, role models.UserRole, actor string) error {
	if err := checkLockRole(role); err != nil {
		return err
	}
	current, rev, err := s.heldBy(ctx, role, actor)
	if err != nil {
		return err
	}
	if err := s.repo.Clear(ctx, role, rev); err != nil {
		if errors.Is(err, repository.ErrStaleLock) {
			return appErrors.Clone(appErrors.ErrRevisionConflict, "portal lock changed concurrently, try again")
		}
		return storeError(err, "failed to revoke portal")
	}
	s.activities.Record(ctx, actor, "revoke-active-"+string(role), map[string]string{string(role) + "Id": current.ID})
	return nil
}

// ForceRelease clears the lock regardless of holder when token matches the
// configured override token.
func (s *LockService) ForceRelease(ctx context.Context, role models.UserRole, token, reason string) (*models.ActiveLock, error) {
	if err := checkLockRole(role); err != nil {
		return nil, err
	}
	if s.cfg.OverrideToken == "" {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "lock override is disabled")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.OverrideToken)) != 1 {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid override token")
	}

	current, rev, err := s.repo.Get(ctx, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no active %s lock", role))
	}
	if err != nil {
		return nil, storeError(err, "failed to read portal lock")
	}
	if err := s.repo.Clear(ctx, role, rev); err != nil {
		if errors.Is(err, repository.ErrStaleLock) {
			return nil, appErrors.Clone(appErrors.ErrRevisionConflict, "portal lock changed concurrently, try again")
		}
		return nil, storeError(err, "failed to release portal")
	}
	s.logger.Warn("portal lock force released", zap.String("role", string(role)), zap.String("holder", current.Username), zap.String("reason", reason))
	attrs := map[string]string{"holder": current.Username}
	if reason = strings.TrimSpace(reason); reason != "" {
		attrs["reason"] = reason
	}
	s.activities.Record(ctx, models.SystemActor, "force-release-active-"+string(role), attrs)
	return current, nil
}

// ReleaseHolder clears the role lock when it names user. It is called when
// the holder is deleted, renamed or moves to another role, since such a lock
// could never be released by signing in again.
func (s *LockService) ReleaseHolder(ctx context.Context, actor string, role models.UserRole, user models.User) (bool, error) {
	if !models.LockableRole(role) {
		return false, nil
	}
	current, rev, err := s.repo.Get(ctx, role)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeError(err, "failed to read portal lock")
	}
	if current.ID != user.ID {
		return false, nil
	}
	if err := s.repo.Clear(ctx, role, rev); err != nil {
		if errors.Is(err, repository.ErrStaleLock) {
			return false, appErrors.Clone(appErrors.ErrRevisionConflict, "portal lock changed concurrently, try again")
		}
		return false, storeError(err, "failed to release portal")
	}
	s.activities.Record(ctx, actor, "release-active-"+string(role), map[string]string{
		"holder":            current.Username,
		string(role) + "Id": current.ID,
	})
	return true, nil
}

func (s *LockService) heldBy(ctx context.Context, role models.UserRole, actor string) (*models.ActiveLock, int64, error) {
	current, rev, err := s.repo.Get(ctx, role)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, 0, appErrors.Clone(appErrors.ErrPreconditionFailed, fmt.Sprintf("no active %s lock", role))
	}
	if err != nil {
		return nil, 0, storeError(err, "failed to read portal lock")
	}
	if !strings.EqualFold(strings.TrimSpace(current.Username), strings.TrimSpace(actor)) {
		return nil, 0, appErrors.Clone(appErrors.ErrForbidden, "only the active account can change the portal lock")
	}
	return current, rev, nil
}

func (s *LockService) lockFor(user models.User) models.ActiveLock {
	return models.ActiveLock{ID: user.ID, Username: user.Username, SetAt: s.now().UnixMilli()}
}

func (s *LockService) expired(lock *models.ActiveLock) bool {
	if s.cfg.TTL <= 0 || lock.SetAt == 0 {
		return false
	}
	return s.now().Sub(time.UnixMilli(lock.SetAt)) > s.cfg.TTL
}

func checkLockRole(role models.UserRole) error {
	if !models.LockableRole(role) {
		return appErrors.Clone(appErrors.ErrValidation, "role has no portal lock")
	}
	return nil
}

func lockedError(role models.UserRole, holder string) error {
	portal := "Admin"
	if role == models.RoleTeacher {
		portal = "Teacher"
	}
	return appErrors.Clone(appErrors.ErrRoleLocked, fmt.Sprintf("%s portal reserved for '%s'. Request transfer via Manage Users.", portal, holder))
}
