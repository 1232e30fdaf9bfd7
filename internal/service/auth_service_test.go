package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edumatrix-api/internal/models"
	appErrors "github.com/noah-isme/edumatrix-api/pkg/errors"
	"github.com/noah-isme/edumatrix-api/pkg/passwords"
)

func TestLoginClaimsAdminPortal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "3", "mikeadmin", models.RoleAdmin, "secret")
	env.addUser(t, "7", "janeadmin", models.RoleAdmin, "other")

	resp, err := env.auth.Login(ctx, models.LoginRequest{Username: "mikeadmin", Password: "secret", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "/admin/dashboard", resp.Redirect)
	assert.Equal(t, "mikeadmin", resp.User.Username)

	lock, err := env.locks.Get(ctx, models.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "3", lock.ID)
	assert.Equal(t, "mikeadmin", lock.Username)
	assert.Contains(t, env.actions(t), "become-active-admin")

	_, err = env.auth.Login(ctx, models.LoginRequest{Username: "janeadmin", Password: "other", Role: models.RoleAdmin})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrRoleLocked)
	assert.Contains(t, err.Error(), "Admin portal reserved for 'mikeadmin'")

	again, err := env.auth.Login(ctx, models.LoginRequest{Username: " MikeAdmin ", Password: "secret", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.NotEqual(t, resp.Session.ID, again.Session.ID)
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "johnsmith", models.RoleStudent, "pw")
	env.addUser(t, "2", "nopass", models.RoleStudent, "")
	emma := models.User{ID: "4", Username: "emmastudent", Role: models.RoleStudent, Status: models.StatusInactive, Password: "pw"}
	require.NoError(t, env.users.Create(ctx, &emma))

	tests := []struct {
		name string
		req  models.LoginRequest
		want *appErrors.Error
	}{
		{"unknown account", models.LoginRequest{Username: "ghost", Password: "pw", Role: models.RoleStudent}, appErrors.ErrAccountNotFound},
		{"wrong portal", models.LoginRequest{Username: "johnsmith", Password: "pw", Role: models.RoleAdmin}, appErrors.ErrRoleMismatch},
		{"wrong password", models.LoginRequest{Username: "johnsmith", Password: "nope", Role: models.RoleStudent}, appErrors.ErrIncorrectPassword},
		{"no password", models.LoginRequest{Username: "nopass", Password: "x", Role: models.RoleStudent}, appErrors.ErrPasswordNotSet},
		{"inactive", models.LoginRequest{Username: "emmastudent", Password: "pw", Role: models.RoleStudent}, appErrors.ErrInactiveAccount},
		{"bad role", models.LoginRequest{Username: "johnsmith", Password: "pw", Role: "parent"}, appErrors.ErrValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.auth.Login(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoginUpgradesPlaintextPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "johnsmith", models.RoleStudent, "hunter2")

	_, err := env.auth.Login(ctx, models.LoginRequest{Username: "johnsmith", Password: "hunter2", Role: models.RoleStudent})
	require.NoError(t, err)

	stored, err := env.users.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, passwords.SHA256Hex("hunter2"), stored.Password)

	_, err = env.auth.Login(ctx, models.LoginRequest{Username: "johnsmith", Password: "hunter2", Role: models.RoleStudent})
	require.NoError(t, err)
}

func TestStudentLoginTakesNoLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "a", models.RoleStudent, "pw")
	env.addUser(t, "2", "b", models.RoleStudent, "pw2")

	_, err := env.auth.Login(ctx, models.LoginRequest{Username: "a", Password: "pw", Role: models.RoleStudent})
	require.NoError(t, err)
	_, err = env.auth.Login(ctx, models.LoginRequest{Username: "b", Password: "pw2", Role: models.RoleStudent})
	require.NoError(t, err)

	_, err = env.locks.Get(ctx, models.RoleStudent)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSetInitialPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "2", "sarahteacher", models.RoleTeacher, "")

	_, err := env.auth.SetInitialPassword(ctx, models.SetPasswordRequest{
		Username: "sarahteacher", Role: models.RoleTeacher, NewPassword: "short", ConfirmPassword: "short",
	})
	assert.ErrorIs(t, err, appErrors.ErrWeakPassword)

	_, err = env.auth.SetInitialPassword(ctx, models.SetPasswordRequest{
		Username: "sarahteacher", Role: models.RoleTeacher, NewPassword: "Str0ng!pass", ConfirmPassword: "Str0ng!pasS",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Contains(t, err.Error(), "Passwords do not match")

	resp, err := env.auth.SetInitialPassword(ctx, models.SetPasswordRequest{
		Username: "sarahteacher", Role: models.RoleTeacher, NewPassword: "Str0ng!pass", ConfirmPassword: "Str0ng!pass",
	})
	require.NoError(t, err)
	assert.Equal(t, "/teacher/dashboard", resp.Redirect)

	stored, err := env.users.FindByID(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, passwords.SHA256Hex("Str0ng!pass"), stored.Password)

	lock, err := env.locks.Get(ctx, models.RoleTeacher)
	require.NoError(t, err)
	require.NotNil(t, lock)
	assert.Equal(t, "sarahteacher", lock.Username)

	_, err = env.auth.SetInitialPassword(ctx, models.SetPasswordRequest{
		Username: "sarahteacher", Role: models.RoleTeacher, NewPassword: "An0ther!pass", ConfirmPassword: "An0ther!pass",
	})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, env.actions(t), "Password set for sarahteacher (id:2)")
}

func TestSetInitialPasswordUniqueRule(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.auth.config.UniquePasswordHash = true
	env.addUser(t, "1", "johnsmith", models.RoleStudent, passwords.SHA256Hex("Str0ng!pass"))
	env.addUser(t, "4", "newbie", models.RoleStudent, "")

	_, err := env.auth.SetInitialPassword(ctx, models.SetPasswordRequest{
		Username: "newbie", Role: models.RoleStudent, NewPassword: "Str0ng!pass", ConfirmPassword: "Str0ng!pass",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	assert.Contains(t, err.Error(), "already used by another account")
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "johnsmith", models.RoleStudent, passwords.SHA256Hex("Old!pass1"))

	err := env.auth.ChangePassword(ctx, "1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "N3w!passw"})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	err = env.auth.ChangePassword(ctx, "1", models.ChangePasswordRequest{OldPassword: "Old!pass1", NewPassword: "weak"})
	assert.ErrorIs(t, err, appErrors.ErrWeakPassword)

	require.NoError(t, env.auth.ChangePassword(ctx, "1", models.ChangePasswordRequest{OldPassword: "Old!pass1", NewPassword: "N3w!passw"}))
	stored, err := env.users.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, passwords.SHA256Hex("N3w!passw"), stored.Password)
}

func TestAuthenticateEndsWithLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "johnsmith", models.RoleStudent, "pw")

	resp, err := env.auth.Login(ctx, models.LoginRequest{Username: "johnsmith", Password: "pw", Role: models.RoleStudent})
	require.NoError(t, err)

	claims, err := env.auth.Authenticate(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, resp.Session.ID, claims.SessionID)

	require.NoError(t, env.auth.Logout(ctx, claims.SessionID))
	_, err = env.auth.Authenticate(ctx, resp.Token)
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = env.auth.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)
}

func TestMigratePasswords(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addUser(t, "1", "a", models.RoleStudent, "plain")
	env.addUser(t, "2", "b", models.RoleStudent, passwords.SHA256Hex("done"))
	env.addUser(t, "3", "c", models.RoleStudent, "")

	changed, err := env.auth.MigratePasswords(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	stored, err := env.users.FindByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, passwords.SHA256Hex("plain"), stored.Password)

	changed, err = env.auth.MigratePasswords(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}
