package auth

import (
	"errors"
	"slices"
)

// RBAC errors.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role")
)

// Role is the access level carried in a token's role claim.
type Role string

const (
	// RoleAdmin may do everything.
	RoleAdmin Role = "admin"
	// RoleRenewalManager runs the renewal workflow and handles reminders.
	RoleRenewalManager Role = "renewal_manager"
	// RoleScheduler is the service account that triggers scans.
	RoleScheduler Role = "scheduler"
	// RoleViewer has read-only access.
	RoleViewer Role = "viewer"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	_, ok := rolePermissions[r]
	return ok
}

// Permission represents an action that can be performed.
type Permission string

const (
	// PermissionScanContracts allows triggering an expiration scan.
	PermissionScanContracts Permission = "scan_contracts"
	// PermissionManageRenewals allows creating and updating renewals.
	PermissionManageRenewals Permission = "manage_renewals"
	// PermissionViewContracts allows reading contracts, renewals and reminders.
	PermissionViewContracts Permission = "view_contracts"
	// PermissionAcknowledgeReminders allows acknowledging reminders.
	PermissionAcknowledgeReminders Permission = "acknowledge_reminders"
)

// rolePermissions defines which permissions each role has.
var rolePermissions = map[Role][]Permission{
	RoleAdmin: {
		PermissionScanContracts,
		PermissionManageRenewals,
		PermissionViewContracts,
		PermissionAcknowledgeReminders,
	},
	RoleRenewalManager: {
		PermissionManageRenewals,
		PermissionViewContracts,
		PermissionAcknowledgeReminders,
	},
	RoleScheduler: {
		PermissionScanContracts,
	},
	RoleViewer: {
		PermissionViewContracts,
	},
}

// ValidRoles returns all known roles.
func ValidRoles() []Role {
	return []Role{RoleAdmin, RoleRenewalManager, RoleScheduler, RoleViewer}
}

// CheckRolePermission checks if a role has a specific permission.
func CheckRolePermission(role Role, permission Permission) error {
	permissions, ok := rolePermissions[role]
	if !ok {
		return ErrPermissionDenied
	}
	if slices.Contains(permissions, permission) {
		return nil
	}
	return ErrPermissionDenied
}
