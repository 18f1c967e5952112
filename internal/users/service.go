package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gigboard/gigboard/internal/audit"
	"github.com/gigboard/gigboard/internal/rbac"
	"github.com/gigboard/gigboard/internal/shared"
)

// Service enforces the account-management rules: who may look at whom,
// who may hand out roles, and who may change an account's standing.
type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Get returns the target account if the actor is allowed to see it.
// Every actor may read their own account regardless of role.
func (s *Service) Get(ctx context.Context, actor rbac.Actor, targetID int64) (*User, error) {
	if !rbac.CanAccessUserData(actor.Role, actor.ID, targetID) {
		return nil, shared.ErrForbidden
	}
	return s.store.GetUser(ctx, targetID)
}

// List returns a page of accounts. Callers are expected to have passed the
// VIEW_USER_LIST guard before reaching this.
func (s *Service) List(ctx context.Context, p shared.Pagination) ([]User, error) {
	return s.store.ListUsers(ctx, p.Offset(), p.Limit())
}

// ChangeRole moves the target account to a new role. Only owners assign
// roles, and the modify rule still applies: nobody demotes an owner but
// another owner acting on themselves is not a thing either, the rule
// collapses to owner-only with a valid target.
func (s *Service) ChangeRole(ctx context.Context, actor rbac.Actor, targetID int64, newRole rbac.Role, meta audit.ClientMeta) error {
	if !actor.IsActive() {
		return shared.ErrForbidden
	}
	if !rbac.CanAssignRole(actor.Role, newRole) {
		return shared.ErrForbidden
	}
	target, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if !rbac.CanModifyUserData(actor.Role, actor.ID, targetID, target.Role) {
		return shared.ErrForbidden
	}
	if target.Role == newRole {
		return nil
	}

	entry := audit.Entry{
		ActorUserID:  &actor.ID,
		TargetUserID: &target.ID,
		Action:       audit.ActionRoleChanged,
		Resource:     audit.ResourceUser,
		ResourceID:   fmt.Sprintf("%d", target.ID),
		Meta: map[string]any{
			"from": string(target.Role),
			"to":   string(newRole),
		},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.UpdateUserRole(ctx, targetID, newRole, entry); err != nil {
		return err
	}
	s.logger.Info("user role changed",
		slog.Int64("actor_id", actor.ID),
		slog.Int64("user_id", target.ID),
		slog.String("from", string(target.Role)),
		slog.String("to", string(newRole)),
	)
	return nil
}

// ChangeStatus suspends, deletes or reactivates an account. Each transition
// has its own permission; all of them are still subject to the modify rule,
// so an assistant cannot suspend an owner even with the permission bit set.
func (s *Service) ChangeStatus(ctx context.Context, actor rbac.Actor, targetID int64, status rbac.UserStatus, meta audit.ClientMeta) error {
	if !actor.IsActive() {
		return shared.ErrForbidden
	}

	var perm rbac.Permission
	var action audit.Action
	switch status {
	case rbac.StatusSuspended:
		perm, action = rbac.PermSuspendUsers, audit.ActionUserSuspended
	case rbac.StatusDeleted:
		perm, action = rbac.PermDeleteUsers, audit.ActionUserDeleted
	case rbac.StatusActive:
		perm, action = rbac.PermManageUsers, audit.ActionUserReactivated
	default:
		return fmt.Errorf("users: unknown status %q: %w", status, shared.ErrValidation)
	}
	if !rbac.HasPermission(actor.Role, perm) {
		return shared.ErrForbidden
	}

	target, err := s.store.GetUser(ctx, targetID)
	if err != nil {
		return err
	}
	if !rbac.CanModifyUserData(actor.Role, actor.ID, targetID, target.Role) {
		return shared.ErrForbidden
	}
	if target.ID == actor.ID && status != rbac.StatusActive {
		// Locking yourself out is never the intent.
		return shared.ErrForbidden
	}
	if target.Status == status {
		return nil
	}

	entry := audit.Entry{
		ActorUserID:  &actor.ID,
		TargetUserID: &target.ID,
		Action:       action,
		Resource:     audit.ResourceUser,
		ResourceID:   fmt.Sprintf("%d", target.ID),
		Meta: map[string]any{
			"from": string(target.Status),
			"to":   string(status),
		},
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
	if err := s.store.UpdateUserStatus(ctx, targetID, status, entry); err != nil {
		return err
	}
	s.logger.Info("user status changed",
		slog.Int64("actor_id", actor.ID),
		slog.Int64("user_id", target.ID),
		slog.String("status", string(status)),
	)
	return nil
}
