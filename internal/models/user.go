package models

import (
	"strings"
	"time"
)

// UserRole is one of the three portals.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// UserStatus toggles whether an account may sign in.
type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
)

// User is an account stored in the users document. Password holds a hash,
// or legacy plaintext until it is migrated.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Role      UserRole   `json:"role"`
	Status    UserStatus `json:"status"`
	Password  string     `json:"password,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// SameUsername compares usernames case-insensitively.
func (u User) SameUsername(name string) bool {
	return strings.EqualFold(strings.TrimSpace(u.Username), strings.TrimSpace(name))
}

// DisplayName is the name shown on rosters: username, then email, then a
// synthesized student-<id>.
func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	if u.Email != "" {
		return u.Email
	}
	return "student-" + u.ID
}

// View strips the password.
func (u User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Status:      u.Status,
		PasswordSet: u.Password != "",
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

// UserView is the API representation of a user.
type UserView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        UserRole   `json:"role"`
	Status      UserStatus `json:"status"`
	PasswordSet bool       `json:"passwordSet"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role     *UserRole
	Status   *UserStatus
	Search   string
	Page     int
	PageSize int
}

// CreateUserRequest is the admin payload for adding an account.
type CreateUserRequest struct {
	Username string     `json:"username" validate:"required,max=64"`
	Email    string     `json:"email" validate:"required,email"`
	Role     UserRole   `json:"role" validate:"required,oneof=admin teacher student"`
	Status   UserStatus `json:"status" validate:"omitempty,oneof=active inactive"`
	Password string     `json:"password" validate:"omitempty"`
}

// UpdateUserRequest replaces the editable user fields.
type UpdateUserRequest struct {
	Username string   `json:"username" validate:"required,max=64"`
	Email    string   `json:"email" validate:"required,email"`
	Role     UserRole `json:"role" validate:"required,oneof=admin teacher student"`
}

// UpdateUserStatusRequest toggles an account.
type UpdateUserStatusRequest struct {
	Status UserStatus `json:"status" validate:"required,oneof=active inactive"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}
