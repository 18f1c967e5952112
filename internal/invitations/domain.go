// Package invitations implements the invite-only onboarding flow. Accounts
// only come into existence by accepting an invitation, so the acceptance
// path is the single write path for new users.
package invitations

import (
	"time"

	"github.com/gigboard/gigboard/internal/rbac"
)

// Invitation statuses are derived from the timestamp columns, never stored.
const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRevoked  = "revoked"
	StatusExpired  = "expired"
)

// Invitation is a single-use, role-carrying ticket bound to an email
// address. Token is a 64-character hex secret and the only way to redeem.
type Invitation struct {
	ID         int64
	Email      string
	Role       rbac.Role
	Token      string
	InvitedBy  int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	RevokedAt  *time.Time
}

// Status derives the lifecycle state at the given instant. Acceptance is
// terminal. Expiry is checked before revocation so that invitations swept
// by the cleanup job (which stamps revoked_at on expired rows) still report
// as expired.
func (i *Invitation) Status(now time.Time) string {
	switch {
	case i.AcceptedAt != nil:
		return StatusAccepted
	case !now.Before(i.ExpiresAt):
		return StatusExpired
	case i.RevokedAt != nil:
		return StatusRevoked
	default:
		return StatusPending
	}
}

// IsPending reports whether the invitation can still be accepted at now.
func (i *Invitation) IsPending(now time.Time) bool {
	return i.Status(now) == StatusPending
}
