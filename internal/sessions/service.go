package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
)

// DefaultTTL bounds a session's absolute lifetime.
const DefaultTTL = 24 * time.Hour

// DefaultRetention is how long terminated rows are kept for the session
// log before the cleanup job deletes them.
const DefaultRetention = 30 * 24 * time.Hour

// UserDirectory resolves session owners so the modify rule can consider
// the target's role. Satisfied by users.Store.
type UserDirectory interface {
	GetUser(ctx context.Context, id int64) (*users.User, error)
}

type Service struct {
	store     Store
	directory UserDirectory
	logger    *slog.Logger
	ttl       time.Duration
	now       func() time.Time
}

func NewService(store Store, directory UserDirectory, logger *slog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:     store,
		directory: directory,
		logger:    logger,
		ttl:       ttl,
		now:       time.Now,
	}
}

// Create records a fresh login. The caller has already authenticated the
// user; only active accounts get sessions.
func (s *Service) Create(ctx context.Context, user *users.User, sessionID string, meta audit.ClientMeta) (*UserSession, error) {
	if !user.IsActive() {
		return nil, shared.ErrForbidden
	}
	now := s.now().UTC()
	sess := UserSession{
		UserID:    user.ID,
		SessionID: sessionID,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		ExpiresAt: now.Add(s.ttl),
	}
	created, err := s.store.CreateSession(ctx, sess, audit.Entry{
		ActorUserID:  &user.ID,
		TargetUserID: &user.ID,
		Action:       audit.ActionSessionCreated,
		Resource:     audit.ResourceSession,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("session created", slog.Int64("user_id", user.ID), slog.String("session_id", sessionID))
	return created, nil
}

// Touch validates the session on each request and advances its activity
// timestamp. Dead sessions never come back: revoked reports
// ErrAlreadyResolved, expired reports ErrExpired after stamping the row.
func (s *Service) Touch(ctx context.Context, sessionID string, meta audit.ClientMeta) (*UserSession, error) {
	return s.store.TouchSession(ctx, sessionID, s.now().UTC(), meta)
}

// List returns the session log for a user. Everyone sees their own;
// seeing someone else's takes VIEW_SESSION_LOGS.
func (s *Service) List(ctx context.Context, actor rbac.Actor, targetUserID int64) ([]UserSession, error) {
	if actor.ID != targetUserID && !rbac.HasPermission(actor.Role, rbac.PermViewSessionLogs) {
		return nil, shared.ErrForbidden
	}
	return s.store.ListForUser(ctx, targetUserID)
}

// Revoke terminates a single session. Users revoke their own freely;
// revoking someone else's takes REVOKE_SESSIONS and is still subject to
// the modify rule, so an assistant cannot kick an owner off.
func (s *Service) Revoke(ctx context.Context, actor rbac.Actor, sessionID string, meta audit.ClientMeta) error {
	if !actor.IsActive() {
		return shared.ErrForbidden
	}
	sess, err := s.store.GetBySessionID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != actor.ID {
		if !rbac.HasPermission(actor.Role, rbac.PermRevokeSessions) {
			return shared.ErrForbidden
		}
		owner, err := s.directory.GetUser(ctx, sess.UserID)
		if err != nil {
			return err
		}
		if !rbac.CanModifyUserData(actor.Role, actor.ID, owner.ID, owner.Role) {
			return shared.ErrForbidden
		}
	}

	now := s.now().UTC()
	err = s.store.RevokeSession(ctx, sessionID, now, audit.Entry{
		ActorUserID:  &actor.ID,
		TargetUserID: &sess.UserID,
		Action:       audit.ActionSessionRevoked,
		Resource:     audit.ResourceSession,
		ResourceID:   sessionID,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	})
	if err != nil {
		return err
	}
	s.logger.Info("session revoked",
		slog.Int64("actor_id", actor.ID),
		slog.Int64("user_id", sess.UserID),
		slog.String("session_id", sessionID),
	)
	return nil
}

// RevokeAll terminates every session of the target user except the given
// one. Pass an empty exceptSessionID to spare none.
func (s *Service) RevokeAll(ctx context.Context, actor rbac.Actor, targetUserID int64, exceptSessionID string, meta audit.ClientMeta) (int64, error) {
	if !actor.IsActive() {
		return 0, shared.ErrForbidden
	}
	if actor.ID != targetUserID {
		if !rbac.HasPermission(actor.Role, rbac.PermRevokeSessions) {
			return 0, shared.ErrForbidden
		}
		owner, err := s.directory.GetUser(ctx, targetUserID)
		if err != nil {
			return 0, err
		}
		if !rbac.CanModifyUserData(actor.Role, actor.ID, owner.ID, owner.Role) {
			return 0, shared.ErrForbidden
		}
	}

	now := s.now().UTC()
	n, err := s.store.RevokeAllForUser(ctx, targetUserID, exceptSessionID, now, audit.Entry{
		ActorUserID:  &actor.ID,
		TargetUserID: &targetUserID,
		Action:       audit.ActionSessionRevoked,
		Resource:     audit.ResourceSession,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		CreatedAt:    now,
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("sessions revoked",
			slog.Int64("actor_id", actor.ID),
			slog.Int64("user_id", targetUserID),
			slog.Int64("count", n),
		)
	}
	return n, nil
}

// ExpireStale stamps sessions whose expiry has passed; called from the
// background cleanup job.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireStale(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale sessions", slog.Int64("count", n))
	}
	return n, nil
}

// PurgeTerminated deletes terminated rows past the retention window.
func (s *Service) PurgeTerminated(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := s.now().UTC().Add(-retention)
	n, err := s.store.DeleteTerminatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sessions: purge terminated: %w", err)
	}
	if n > 0 {
		s.logger.Info("purged terminated sessions", slog.Int64("count", n))
	}
	return n, nil
}
