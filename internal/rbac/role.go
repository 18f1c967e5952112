// Package rbac holds the fixed role/permission catalog and the pure
// authorization decision functions built on top of it. Nothing in this
// package performs I/O; callers resolve roles and statuses from storage and
// pass plain values in.
package rbac

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/gigboard/gigboard/internal/shared"
)

// Role is one of a closed set of account roles.
type Role string

// The role set is fixed at build time. New roles require a new constant and
// an explicit entry in RolePermissions; the matrix is never patched at runtime.
const (
	RoleOwner     Role = "OWNER"
	RoleAssistant Role = "ASSISTANT"
	RoleViewer    Role = "VIEWER"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	StatusActive    UserStatus = "ACTIVE"
	StatusSuspended UserStatus = "SUSPENDED"
	StatusDeleted   UserStatus = "DELETED"
)

// roleRank gives the total order OWNER > ASSISTANT > VIEWER.
var roleRank = map[Role]int{
	RoleOwner:     3,
	RoleAssistant: 2,
	RoleViewer:    1,
}

var titleCaser = cases.Title(language.English)

// Roles returns the fixed role set, highest first.
func Roles() []Role {
	return []Role{RoleOwner, RoleAssistant, RoleViewer}
}

// IsValidRole reports whether the given string names a known role.
func IsValidRole(s string) bool {
	_, ok := roleRank[Role(s)]
	return ok
}

// ParseRole validates a role string at the boundary. Unknown values return
// shared.ErrValidation; downstream decision functions assume validated input.
func ParseRole(s string) (Role, error) {
	if !IsValidRole(s) {
		return "", fmt.Errorf("rbac: unknown role %q: %w", s, shared.ErrValidation)
	}
	return Role(s), nil
}

// IsValidUserStatus reports whether the given string names a known status.
func IsValidUserStatus(s string) bool {
	switch UserStatus(s) {
	case StatusActive, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// ParseUserStatus validates a status string at the boundary.
func ParseUserStatus(s string) (UserStatus, error) {
	if !IsValidUserStatus(s) {
		return "", fmt.Errorf("rbac: unknown user status %q: %w", s, shared.ErrValidation)
	}
	return UserStatus(s), nil
}

// IsHigherRole reports whether r1 strictly outranks r2.
func IsHigherRole(r1, r2 Role) bool {
	return roleRank[r1] > roleRank[r2]
}

// IsHigherOrEqualRole reports whether r1 outranks or equals r2.
func IsHigherOrEqualRole(r1, r2 Role) bool {
	return roleRank[r1] >= roleRank[r2]
}

// DisplayName renders a role for client consumption ("Owner", "Assistant").
func (r Role) DisplayName() string {
	return titleCaser.String(string(r))
}

// Description returns a short human-readable summary of the role's reach.
func (r Role) Description() string {
	switch r {
	case RoleOwner:
		return "Full system access and user management"
	case RoleAssistant:
		return "Limited administrative access to all data"
	case RoleViewer:
		return "Read-only access to own data"
	}
	return "Unknown role"
}

// DisplayName renders a status for client consumption ("Active").
func (s UserStatus) DisplayName() string {
	return titleCaser.String(string(s))
}
