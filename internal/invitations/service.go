package invitations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
)

// DefaultTTL is how long an invitation stays redeemable.
const DefaultTTL = 7 * 24 * time.Hour

const minPasswordLength = 8

// EmailEnqueuer hands the invite email off to the background worker. The
// invitation row is the source of truth; a failed enqueue is logged and the
// invite stays redeemable through its token.
type EmailEnqueuer interface {
	EnqueueInviteEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

type Service struct {
	store    Store
	enqueuer EmailEnqueuer
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewService(store Store, enqueuer EmailEnqueuer, logger *slog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create issues an invitation for email with the given role. The actor
// needs CREATE_INVITATIONS and must be allowed to hand out the role; both
// collapse to owner-only under the current matrix, but the checks stay
// separate so the matrix can evolve.
func (s *Service) Create(ctx context.Context, actor rbac.Actor, email string, role rbac.Role, meta audit.ClientMeta) (*Invitation, error) {
	if !actor.IsActive() {
		return nil, shared.ErrForbidden
	}
	if !rbac.HasPermission(actor.Role, rbac.PermCreateInvitations) {
		return nil, shared.ErrForbidden
	}
	if !rbac.CanAssignRole(actor.Role, role) {
		return nil, shared.ErrForbidden
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invitations: invalid email: %w", shared.ErrValidation)
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	inv := Invitation{
		Email:     email,
		Role:      role,
		Token:     token,
		InvitedBy: actor.ID,
		ExpiresAt: now.Add(s.ttl),
	}
	created, err := s.store.CreateInvitation(ctx, inv, audit.Entry{
		ActorUserID: &actor.ID,
		Action:      audit.ActionInviteCreated,
		Resource:    audit.ResourceInvitation,
		Meta: map[string]any{
			"email": email,
			"role":  string(role),
		},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation created",
		slog.Int64("invitation_id", created.ID),
		slog.Int64("invited_by", actor.ID),
		slog.String("role", string(role)),
	)

	if s.enqueuer != nil {
		if err := s.enqueuer.EnqueueInviteEmail(ctx, created.Email, created.Token, created.ExpiresAt); err != nil {
			s.logger.Error("enqueue invite email", slog.Int64("invitation_id", created.ID), slog.Any("error", err))
		}
	}
	return created, nil
}

// AcceptParams carries the account details supplied by the invitee.
type AcceptParams struct {
	Username string
	FullName string
	Password string
}

// Accept redeems the invitation token and provisions the account. Exactly
// one concurrent accept for a token succeeds; losers get ErrExpired,
// ErrAlreadyResolved or ErrNotFound depending on what happened first.
func (s *Service) Accept(ctx context.Context, token string, params AcceptParams, meta audit.ClientMeta) (*users.User, error) {
	if token == "" {
		return nil, shared.ErrNotFound
	}
	params.Username = strings.TrimSpace(params.Username)
	if params.Username == "" {
		return nil, fmt.Errorf("invitations: username required: %w", shared.ErrValidation)
	}
	if len(params.Password) < minPasswordLength {
		return nil, fmt.Errorf("invitations: password must be at least %d characters: %w", minPasswordLength, shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("invitations: hash password: %w", err)
	}

	account := users.NewUser{
		Username:     params.Username,
		FullName:     strings.TrimSpace(params.FullName),
		PasswordHash: string(hash),
	}
	inv, user, err := s.store.AcceptInvitation(ctx, token, account, s.now().UTC(), meta)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invitation accepted",
		slog.Int64("invitation_id", inv.ID),
		slog.Int64("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Revoke withdraws a pending invitation.
func (s *Service) Revoke(ctx context.Context, actor rbac.Actor, id int64, meta audit.ClientMeta) error {
	if !actor.IsActive() {
		return shared.ErrForbidden
	}
	if !rbac.HasPermission(actor.Role, rbac.PermRevokeInvitations) {
		return shared.ErrForbidden
	}
	now := s.now().UTC()
	err := s.store.RevokeInvitation(ctx, id, now, audit.Entry{
		ActorUserID: &actor.ID,
		Action:      audit.ActionInviteRevoked,
		Resource:    audit.ResourceInvitation,
		ResourceID:  fmt.Sprintf("%d", id),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
	})
	if err != nil {
		return err
	}
	s.logger.Info("invitation revoked", slog.Int64("invitation_id", id), slog.Int64("actor_id", actor.ID))
	return nil
}

// ListPending returns invitations still open for acceptance.
func (s *Service) ListPending(ctx context.Context, actor rbac.Actor) ([]Invitation, error) {
	if !rbac.HasPermission(actor.Role, rbac.PermCreateInvitations) {
		return nil, shared.ErrForbidden
	}
	return s.store.ListPending(ctx, s.now().UTC())
}

// ListMine returns every invitation the actor issued, resolved or not.
func (s *Service) ListMine(ctx context.Context, actor rbac.Actor) ([]Invitation, error) {
	if !actor.IsActive() {
		return nil, shared.ErrForbidden
	}
	return s.store.ListByInviter(ctx, actor.ID)
}

// Inspect returns the public view of an invitation by token, used by the
// acceptance form to show the invited email and role before signup.
func (s *Service) Inspect(ctx context.Context, token string) (*Invitation, error) {
	inv, err := s.store.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	switch inv.Status(s.now().UTC()) {
	case StatusExpired:
		return nil, shared.ErrExpired
	case StatusAccepted, StatusRevoked:
		return nil, shared.ErrAlreadyResolved
	}
	return inv, nil
}

// ExpireStale sweeps expired pending invitations, stamping revoked_at.
// Called from the background cleanup job.
func (s *Service) ExpireStale(ctx context.Context) (int64, error) {
	n, err := s.store.ExpirePending(ctx, s.now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("expired stale invitations", slog.Int64("count", n))
	}
	return n, nil
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("invitations: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
