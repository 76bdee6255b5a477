// Package app wires one session Manager and the catalog into the narrowed
// views each consumer receives.
package app

import (
	"context"

	"github.com/al-bashkir/simplifyhealth/internal/catalog"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// Dependencies hands out capability views over a single shared Manager.
// Build it once per process.
type Dependencies struct {
	manager *session.Manager
	catalog *catalog.Catalog
}

// New returns Dependencies sharing manager and cat for the process lifetime.
func New(manager *session.Manager, cat *catalog.Catalog) *Dependencies {
	return &Dependencies{manager: manager, catalog: cat}
}

// SessionInfo returns read-only access to the session state.
func (d *Dependencies) SessionInfo() session.Info {
	return sessionInfo{m: d.manager}
}

// SessionSignIn returns the sign-in capability.
func (d *Dependencies) SessionSignIn() session.SignInner {
	return sessionSignIn{m: d.manager}
}

// SessionSignUp returns the sign-up capability.
func (d *Dependencies) SessionSignUp() session.SignUpper {
	return sessionSignUp{m: d.manager}
}

// SessionSignOut returns the sign-out capability.
func (d *Dependencies) SessionSignOut() session.SignOuter {
	return sessionSignOut{m: d.manager}
}

// SessionPasswordReset returns the password reset capability.
func (d *Dependencies) SessionPasswordReset() session.PasswordResetter {
	return sessionPasswordReset{m: d.manager}
}

// Catalog returns the content catalog.
func (d *Dependencies) Catalog() *catalog.Catalog {
	return d.catalog
}

// Each adapter exposes exactly one capability, so a holder cannot assert
// its way to the Manager or to another capability.

type sessionInfo struct{ m *session.Manager }

func (v sessionInfo) Current() session.State { return v.m.Current() }

func (v sessionInfo) Observe(ctx context.Context) <-chan session.State { return v.m.Observe(ctx) }

type sessionSignIn struct{ m *session.Manager }

func (v sessionSignIn) SignIn(ctx context.Context, email, password string) error {
	return v.m.SignIn(ctx, email, password)
}

type sessionSignUp struct{ m *session.Manager }

func (v sessionSignUp) SignUp(ctx context.Context, email, password string) error {
	return v.m.SignUp(ctx, email, password)
}

type sessionSignOut struct{ m *session.Manager }

func (v sessionSignOut) SignOut(ctx context.Context) error { return v.m.SignOut(ctx) }

type sessionPasswordReset struct{ m *session.Manager }

func (v sessionPasswordReset) ResetPassword(ctx context.Context, email string) error {
	return v.m.ResetPassword(ctx, email)
}
