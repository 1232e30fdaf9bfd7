package models

// ActiveLock names the only account allowed into a privileged portal.
type ActiveLock struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	SetAt    int64  `json:"setAt"`
}

// LockableRole reports whether role has an active lock.
func LockableRole(role UserRole) bool {
	return role == RoleAdmin || role == RoleTeacher
}

// TransferLockRequest hands the lock to another account of the same role.
type TransferLockRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
}

// ForceReleaseRequest records why an operator cleared a lock.
type ForceReleaseRequest struct {
	Reason string `json:"reason" validate:"max=200"`
}
