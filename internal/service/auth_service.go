package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/edumatrix-api/internal/models"
	"github.com/noah-isme/edumatrix-api/internal/repository"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/passwords"
)

type authUserStore interface {
	All(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, id string, fn func(*models.User) error) (*models.User, error)
	UpdateEach(ctx context.Context, fn func(*models.User) (bool, error)) (int, error)
}

type sessionStore interface {
	Create(ctx context.Context, session models.Session) error
	Find(ctx context.Context, id string) (*models.Session, error)
	Delete(ctx context.Context, id string) error
}

type portalLocker interface {
	Claim(ctx context.Context, user models.User) error
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	TokenSecret        string
	TokenExpiry        time.Duration
	Issuer             string
	UniquePasswordHash bool
}

// AuthService signs users into their role portal and manages sessions.
type AuthService struct {
	users      authUserStore
	sessions   sessionStore
	locks      portalLocker
	hasher     *passwords.Hasher
	activities activityRecorder
	validator  *validator.Validate
	logger     *zap.Logger
	config     AuthConfig
	now        func() time.Time
}

// AuthServiceParams groups constructor dependencies.
type AuthServiceParams struct {
	Users      authUserStore
	Sessions   sessionStore
	Locks      portalLocker
	Hasher     *passwords.Hasher
	Activities activityRecorder
	Validator  *validator.Validate
	Logger     *zap.Logger
	Config     AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(params AuthServiceParams) *AuthService {
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
	cfg := params.Config
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 24 * time.Hour
	}
	return &AuthService{
		users:      params.Users,
		sessions:   params.Sessions,
		locks:      params.Locks,
		hasher:     hasher,
		activities: recorderOrNop(params.Activities),
		validator:  validate,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
	}
}

// Login authenticates a user against the requested portal and opens a
// session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid login payload")
	}

	user, err := s.accountFor(ctx, req.Username, req.Role)
	if err != nil {
		return nil, err
	}
	if user.Status == models.StatusInactive {
		return nil, appErrors.ErrInactiveAccount
	}
	if user.Password == "" {
		return nil, appErrors.ErrPasswordNotSet
	}

	ok, upgrade := s.hasher.Verify(user.Password, req.Password)
	if !ok {
		return nil, appErrors.ErrIncorrectPassword
	}
	if upgrade {
		s.upgradePassword(ctx, user.ID, req.Password)
	}

	if err := s.locks.Claim(ctx, *user); err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// SetInitialPassword stores the first password of an account that has none
// and signs it in.
func (s *AuthService) SetInitialPassword(ctx context.Context, req models.SetPasswordRequest) (*models.LoginResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid set password payload")
	}
	if req.NewPassword != req.ConfirmPassword {
		return nil, appErrors.Clone(appErrors.ErrValidation, "Passwords do not match")
	}
	if score, _ := passwords.Strength(req.NewPassword); score < passwords.MinStrength {
		return nil, appErrors.ErrWeakPassword
	}

	user, err := s.accountFor(ctx, req.Username, req.Role)
	if err != nil {
		return nil, err
	}
	if user.Status == models.StatusInactive {
		return nil, appErrors.ErrInactiveAccount
	}
	if user.Password != "" {
		return nil, appErrors.Clone(appErrors.ErrConflict, "password already set for this account")
	}
	if err := s.checkPasswordUnique(ctx, user.ID, req.NewPassword); err != nil {
		return nil, err
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	updated, err := s.users.Update(ctx, user.ID, func(u *models.User) error {
		if u.Password != "" {
			return appErrors.Clone(appErrors.ErrConflict, "password already set for this account")
		}
		u.Password = hashed
		now := s.now().UTC()
		u.UpdatedAt = &now
		return nil
	})
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, storeError(err, "failed to set password")
	}
	s.activities.Record(ctx, "", fmt.Sprintf("Password set for %s (id:%s)", updated.Username, updated.ID), nil)

	if err := s.locks.Claim(ctx, *updated); err != nil {
		return nil, err
	}
	return s.openSession(ctx, updated)
}

// ChangePassword changes the password of a signed-in user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return validationError(err, "invalid change password payload")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return storeError(err, "failed to load user")
	}
	if ok, _ := s.hasher.Verify(user.Password, req.OldPassword); user.Password == "" || !ok {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}
	if score, _ := passwords.Strength(req.NewPassword); score < passwords.MinStrength {
		return appErrors.ErrWeakPassword
	}
	if err := s.checkPasswordUnique(ctx, user.ID, req.NewPassword); err != nil {
		return err
	}

	hashed, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}
	if _, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.Password = hashed
		now := s.now().UTC()
		u.UpdatedAt = &now
		return nil
	}); err != nil {
		return storeError(err, "failed to update password")
	}
	s.activities.Record(ctx, user.Username, fmt.Sprintf("Password changed for %s (id:%s)", user.Username, user.ID), nil)
	return nil
}

// Logout deletes the session. Portal locks are kept.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return storeError(err, "failed to delete session")
	}
	return nil
}

// Me returns the signed-in user.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserView, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, storeError(err, "failed to load user")
	}
	view := user.View()
	return &view, nil
}

// MigratePasswords hashes every plaintext password in place and returns how
// many were converted.
func (s *AuthService) MigratePasswords(ctx context.Context) (int, error) {
	changed, err := s.users.UpdateEach(ctx, func(u *models.User) (bool, error) {
		if u.Password == "" || passwords.LooksHashed(u.Password) {
			return false, nil
		}
		hashed, err := s.hasher.Hash(u.Password)
		if err != nil {
			return false, err
		}
		u.Password = hashed
		return true, nil
	})
	if err != nil {
		return 0, storeError(err, "failed to migrate passwords")
	}
	if changed > 0 {
		s.logger.Info("plaintext passwords migrated", zap.Int("count", changed))
	}
	return changed, nil
}

// ValidateToken parses and validates a session token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.SessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Authenticate validates the token and requires its session to still exist.
func (s *AuthService) Authenticate(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Find(ctx, claims.SessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session has ended")
		}
		return nil, storeError(err, "failed to load session")
	}
	return claims, nil
}

func (s *AuthService) accountFor(ctx context.Context, username string, role models.UserRole) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, appErrors.ErrAccountNotFound
		}
		return nil, storeError(err, "failed to fetch user")
	}
	if user.Role != role {
		return nil, appErrors.ErrRoleMismatch
	}
	return user, nil
}

func (s *AuthService) upgradePassword(ctx context.Context, userID, password string) {
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to hash password for upgrade", zap.Error(err))
		return
	}
	if _, err := s.users.Update(ctx, userID, func(u *models.User) error {
		u.Password = hashed
		return nil
	}); err != nil {
		s.logger.Warn("failed to upgrade stored password", zap.String("user_id", userID), zap.Error(err))
	}
}

// checkPasswordUnique applies the legacy rule that no two accounts share a
// password.
func (s *AuthService) checkPasswordUnique(ctx context.Context, userID, password string) error {
	if !s.config.UniquePasswordHash {
		return nil
	}
	users, err := s.users.All(ctx)
	if err != nil {
		return storeError(err, "failed to load users")
	}
	for _, u := range users {
		if u.ID == userID || u.Password == "" {
			continue
		}
		if ok, _ := s.hasher.Verify(u.Password, password); ok {
			return appErrors.Clone(appErrors.ErrConflict, "This password is already used by another account. Choose a different password.")
		}
	}
	return nil
}

func (s *AuthService) openSession(ctx context.Context, user *models.User) (*models.LoginResponse, error) {
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: s.now().UTC(),
	}
	token, err := s.generateToken(session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session token")
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storeError(err, "failed to persist session")
	}
	return &models.LoginResponse{
		Token:     token,
		ExpiresIn: int64(s.config.TokenExpiry.Seconds()),
		Session:   session,
		User:      user.View(),
		Redirect:  models.DashboardPath(user.Role),
	}, nil
}

func (s *AuthService) generateToken(session models.Session) (string, error) {
	issuedAt := session.CreatedAt
	claims := &models.JWTClaims{
		SessionID: session.ID,
		UserID:    session.UserID,
		Username:  session.Username,
		Role:      session.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   session.UserID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.TokenSecret))
}
