package identity

import (
	"errors"
)

// Failure causes reported by providers. Backends wrap these so callers can
// match with errors.Is while keeping backend detail in the message.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already in use")
	ErrWeakPassword       = errors.New("password is too weak")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUserNotFound       = errors.New("no account for this email")
	ErrUserDisabled       = errors.New("account is disabled")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrUnsupported        = errors.New("operation not supported by identity provider")
	ErrMissingIdentity    = errors.New("provider returned no email or user id")
	ErrUnavailable        = errors.New("identity provider unavailable")
)

var messages = []struct {
	err error
	msg string
}{
	{ErrInvalidCredentials, "The email or password is incorrect."},
	{ErrEmailExists, "An account already exists for this email."},
	{ErrWeakPassword, "The password must be at least 6 characters."},
	{ErrInvalidEmail, "The email address is badly formatted."},
	{ErrUserNotFound, "There is no account for this email."},
	{ErrUserDisabled, "This account has been disabled."},
	{ErrTooManyAttempts, "Too many attempts. Please try again later."},
	{ErrUnsupported, "This action is not available."},
	{ErrUnavailable, "Unable to reach the sign-in service. Check your connection and try again."},
}

// Message returns user-facing text for err. Unknown causes fall back to a
// generic message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, m := range messages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	return "Something went wrong. Please try again."
}
