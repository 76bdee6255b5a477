package session

import "context"

// Info is read access to the session state.
type Info interface {
	Current() State
	Observe(ctx context.Context) <-chan State
}

// SignInner signs an existing account in.
type SignInner interface {
	SignIn(ctx context.Context, email, password string) error
}

// SignUpper creates an account and signs it in.
type SignUpper interface {
	SignUp(ctx context.Context, email, password string) error
}

// SignOuter signs the current user out.
type SignOuter interface {
	SignOut(ctx context.Context) error
}

// PasswordResetter requests a password reset email.
type PasswordResetter interface {
	ResetPassword(ctx context.Context, email string) error
}

var (
	_ Info             = (*Manager)(nil)
	_ SignInner        = (*Manager)(nil)
	_ SignUpper        = (*Manager)(nil)
	_ SignOuter        = (*Manager)(nil)
	_ PasswordResetter = (*Manager)(nil)
)
