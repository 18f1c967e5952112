package users

import (
	"time"

	"github.com/gigboard/gigboard/internal/rbac"
)

// User is an account on the board. Role and Status drive every
// authorization decision made on the account's behalf.
type User struct {
	ID           int64
	Username     string
	Email        string
	FullName     string
	Role         rbac.Role
	Status       rbac.UserStatus
	PasswordHash string
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser carries the fields needed to provision an account. Accounts
// created through an invitation start out ACTIVE.
type NewUser struct {
	Username     string
	Email        string
	FullName     string
	Role         rbac.Role
	PasswordHash string
}

func (u *User) IsActive() bool {
	return u.Status == rbac.StatusActive
}

// Actor projects the user into the form the authorization layer works with.
func (u *User) Actor() rbac.Actor {
	return rbac.Actor{ID: u.ID, Role: u.Role, Status: u.Status}
}
