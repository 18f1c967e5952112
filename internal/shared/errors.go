package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the actor lacks the required permission or
	// violates an escalation rule. Never retried.
	ErrForbidden = errors.New("forbidden")
	// ErrExpired indicates an invitation or session past its expiry.
	ErrExpired = errors.New("expired")
	// ErrAlreadyResolved indicates an invitation that was already accepted
	// or revoked. Terminal; the caller must obtain a new invitation.
	ErrAlreadyResolved = errors.New("already resolved")
	// ErrValidation indicates a malformed role/permission/status value at
	// the boundary. A caller bug, fatal to the request.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserSafeMessage maps internal errors to messages that can be shown to
// clients without leaking storage details.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested resource was not found."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, ErrExpired):
		return "This link or session has expired."
	case errors.Is(err, ErrAlreadyResolved):
		return "This invitation has already been used or revoked."
	case errors.Is(err, ErrValidation):
		return "The request contained invalid values."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	default:
		return "Something went wrong. Please try again."
	}
}
