package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds role-scoped credentials.
type LoginRequest struct {
	Username string   `json:"username" validate:"required"`
	Password string   `json:"password" validate:"required"`
	Role     UserRole `json:"role" validate:"required,oneof=admin teacher student"`
}

// SetPasswordRequest sets the first password of an account that has none.
type SetPasswordRequest struct {
	Username        string   `json:"username" validate:"required"`
	Role            UserRole `json:"role" validate:"required,oneof=admin teacher student"`
	NewPassword     string   `json:"newPassword" validate:"required"`
	ConfirmPassword string   `json:"confirmPassword" validate:"required"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Session is stored under user:<id> for every signed-in client.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      UserRole  `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResponse returns the issued token and where the client should go.
type LoginResponse struct {
	Token     string   `json:"token"`
	ExpiresIn int64    `json:"expiresIn"`
	Session   Session  `json:"session"`
	User      UserView `json:"user"`
	Redirect  string   `json:"redirect"`
}

// JWTClaims represents the JWT payload for session tokens.
type JWTClaims struct {
	SessionID string   `json:"sid"`
	UserID    string   `json:"uid"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
	jwt.RegisteredClaims
}

// DashboardPath is the landing page of each portal.
func DashboardPath(role UserRole) string {
	return "/" + string(role) + "/dashboard"
}
