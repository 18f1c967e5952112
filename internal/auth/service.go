// Package auth glues credentials, cookie sessions and the tracked session
// log together. It never reveals which of email, password or account
// standing failed a login.
package auth

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/gigboard/gigboard/internal/shared"
	"github.com/gigboard/gigboard/internal/users"
)

// dummyHash is a bcrypt digest of an unguessable throwaway value, used to
// equalize timing when the email is unknown.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// UserStore is the slice of the user store the auth flow needs.
type UserStore interface {
	GetUser(ctx context.Context, id int64) (*users.User, error)
	GetUserByEmail(ctx context.Context, email string) (*users.User, error)
	TouchLastLogin(ctx context.Context, id int64) error
}

// Service wraps authentication business rules.
type Service struct {
	store UserStore
}

// NewService constructs a new Service.
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// Authenticate validates email/password credentials. Unknown accounts,
// wrong passwords and non-active accounts all fail identically.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*users.User, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		// Burn a comparison anyway so unknown emails take as long as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive() {
		return nil, shared.ErrInvalidCredentials
	}
	if err := s.store.TouchLastLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	return user, nil
}
