// Package sessions tracks authenticated sessions server-side so they can
// be listed and revoked out-of-band. The cookie names a session; this
// table decides whether that session is still allowed to act.
package sessions

import "time"

// UserSession is the server-side record of one login. SessionID matches
// the cookie store key. RevokedAt set means terminated, whatever the
// expiry says; termination is one-way.
type UserSession struct {
	ID             int64
	UserID         int64
	SessionID      string
	IPAddress      string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	RevokedAt      *time.Time
}

// IsLive reports whether the session may act at the given instant. A
// revoked session is dead even before its expiry; an expired one is dead
// even if nothing has stamped it yet.
func (s *UserSession) IsLive(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}
