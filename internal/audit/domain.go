// Package audit provides the append-only security audit log. Entries are
// written once and never updated or deleted; every state-mutating operation
// in the invitation and session lifecycle produces exactly one entry.
package audit

import "time"

// Action tags form a closed vocabulary. Reporting tooling matches on these
// strings, so new tags are additive and existing ones never change.
type Action string

const (
	ActionInviteCreated   Action = "INVITE_CREATED"
	ActionInviteAccepted  Action = "INVITE_ACCEPTED"
	ActionInviteRevoked   Action = "INVITE_REVOKED"
	ActionSessionCreated  Action = "SESSION_CREATED"
	ActionSessionRevoked  Action = "SESSION_REVOKED"
	ActionSessionExpired  Action = "SESSION_EXPIRED"
	ActionRoleChanged     Action = "ROLE_CHANGED"
	ActionUserCreated     Action = "USER_CREATED"
	ActionUserSuspended   Action = "USER_SUSPENDED"
	ActionUserDeleted     Action = "USER_DELETED"
	ActionUserReactivated Action = "USER_REACTIVATED"
)

// Resource types referenced by audit entries.
const (
	ResourceUser       = "user"
	ResourceInvitation = "invitation"
	ResourceSession    = "session"
)

// Entry is a single audit record. ActorUserID is nil for system actions
// (e.g. the expiry sweeper); TargetUserID is nil when no second account is
// involved.
type Entry struct {
	ID           int64
	ActorUserID  *int64
	TargetUserID *int64
	Action       Action
	Resource     string
	ResourceID   string
	Meta         map[string]any
	IPAddress    string
	UserAgent    string
	CreatedAt    time.Time
}

// ClientMeta carries request-level metadata into audit entries.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
