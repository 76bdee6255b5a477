// Package identity defines the port to the external identity provider that
// owns credentials and the account lifecycle.
package identity

import (
	"context"
)

// User is the provider's handle for an authenticated account.
type User struct {
	// ID is the provider-assigned stable identifier.
	ID string `json:"id"`

	// Email is the account email, if the provider exposes one.
	Email string `json:"email,omitempty"`
}

// Username returns the name shown for a signed-in session: the email, or
// the stable ID when the provider has no email for the account.
func (u User) Username() string {
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

// Provider is the identity provider capability consumed by the session core.
// Implementations own persistence of the signed-in user across restarts.
type Provider interface {
	// SignIn authenticates an existing account.
	SignIn(ctx context.Context, email, password string) (User, error)

	// CreateUser registers a new account and signs it in.
	CreateUser(ctx context.Context, email, password string) (User, error)

	// SignOut ends the provider-side session of the current user.
	SignOut(ctx context.Context) error

	// SendPasswordReset asks the provider to email reset instructions.
	SendPasswordReset(ctx context.Context, email string) error

	// CurrentUser returns the persisted signed-in user, or nil when there is none.
	CurrentUser(ctx context.Context) (*User, error)
}
