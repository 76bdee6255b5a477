package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
)

// Manager owns the session Store and applies the four auth operations
// against the identity provider. It is safe for concurrent use.
//
// State-changing operations are serialized: while one is waiting on the
// provider, another returns ErrOperationInFlight. Reads are never blocked.
type Manager struct {
	provider identity.Provider
	store    *Store
	recorder Recorder

	mu       sync.Mutex
	inFlight Operation
}

// Option configures a Manager.
type Option func(*Manager)

// WithRecorder sets the sink for operation outcomes and transitions.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.recorder = r
		}
	}
}

// NewManager creates a Manager whose initial state comes from the provider's
// persisted current user. A lookup error leaves the session signed out.
func NewManager(ctx context.Context, provider identity.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(m)
	}

	initial := SignedOut()
	user, err := provider.CurrentUser(ctx)
	switch {
	case err != nil:
		slog.Warn("failed to restore current user, starting signed out", "error", err)
	case user != nil && user.Username() != "":
		initial = SignedIn(Session{Username: user.Username()})
		slog.Info("restored signed-in session", "username", logsanitize.Email(user.Username()))
	}

	m.store = newStore(initial)
	m.recorder.RecordTransition(initial)

	return m
}

// Current returns the current session state.
func (m *Manager) Current() State {
	return m.store.Current()
}

// Observe returns a feed of states starting with the current one.
func (m *Manager) Observe(ctx context.Context) <-chan State {
	return m.store.Observe(ctx)
}

// Subscribe returns a feed of states starting with the current one; the
// caller closes it.
func (m *Manager) Subscribe() *broadcast.Subscription[State] {
	return m.store.Subscribe()
}

// Subscribers returns the number of live state feeds.
func (m *Manager) Subscribers() int {
	return m.store.Subscribers()
}

// Close completes all state feeds. Call only at shutdown.
func (m *Manager) Close() {
	m.store.close()
}

// SignIn authenticates email/password and moves the state to SignedIn.
// It panics with *InvariantViolation if a user is already signed in.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	release, err := m.begin(OpSignIn, StatusSignedOut)
	if err != nil {
		return err
	}
	defer release()

	slog.Debug("signing in", "email", logsanitize.Email(email))

	user, err := m.provider.SignIn(ctx, email, password)
	if err != nil {
		return m.fail(OpSignIn, err)
	}

	return m.signedIn(ctx, OpSignIn, user)
}

// SignUp creates an account and moves the state to SignedIn.
// It panics with *InvariantViolation if a user is already signed in.
func (m *Manager) SignUp(ctx context.Context, email, password string) error {
	release, err := m.begin(OpSignUp, StatusSignedOut)
	if err != nil {
		return err
	}
	defer release()

	slog.Debug("creating account", "email", logsanitize.Email(email))

	user, err := m.provider.CreateUser(ctx, email, password)
	if err != nil {
		return m.fail(OpSignUp, err)
	}

	return m.signedIn(ctx, OpSignUp, user)
}

// SignOut ends the provider session and moves the state to SignedOut.
// It panics with *InvariantViolation if nobody is signed in.
func (m *Manager) SignOut(ctx context.Context) error {
	release, err := m.begin(OpSignOut, StatusSignedIn)
	if err != nil {
		return err
	}
	defer release()

	if err := m.provider.SignOut(ctx); err != nil {
		return m.fail(OpSignOut, err)
	}

	m.commit(SignedOut())
	m.recorder.RecordOperation(OpSignOut, OutcomeSuccess)
	slog.Info("signed out")

	return nil
}

// ResetPassword asks the provider to send reset instructions to email.
// It has no precondition and never changes the session state.
func (m *Manager) ResetPassword(ctx context.Context, email string) error {
	if err := m.provider.SendPasswordReset(ctx, email); err != nil {
		return m.fail(OpPasswordReset, err)
	}

	m.recorder.RecordOperation(OpPasswordReset, OutcomeSuccess)
	slog.Info("password reset requested", "email", logsanitize.Email(email))

	return nil
}

// begin checks the precondition against the committed state and takes the
// in-flight guard. While an operation holds the guard, the committed state
// cannot change, so the check is stable.
func (m *Manager) begin(op Operation, want Status) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if got := m.store.Current().Status(); got != want {
		panic(&InvariantViolation{Op: op, Want: want, Got: got})
	}

	if m.inFlight != "" {
		m.recorder.RecordOperation(op, OutcomeBusy)
		return nil, fmt.Errorf("%s: %w (%s)", op, ErrOperationInFlight, m.inFlight)
	}
	m.inFlight = op

	return func() {
		m.mu.Lock()
		m.inFlight = ""
		m.mu.Unlock()
	}, nil
}

// signedIn commits the session for user. A user without a username cannot
// be represented, so the provider session is ended again to keep both sides
// signed out.
func (m *Manager) signedIn(ctx context.Context, op Operation, user identity.User) error {
	username := user.Username()
	if username == "" {
		if err := m.provider.SignOut(ctx); err != nil {
			slog.Warn("failed to end provider session without identity", "op", string(op), "error", err)
		}
		return m.fail(op, identity.ErrMissingIdentity)
	}

	m.commit(SignedIn(Session{Username: username}))
	m.recorder.RecordOperation(op, OutcomeSuccess)
	slog.Info("signed in", "op", string(op), "username", logsanitize.Email(username))

	return nil
}

func (m *Manager) commit(st State) {
	m.store.set(st)
	m.recorder.RecordTransition(st)
}

func (m *Manager) fail(op Operation, err error) error {
	m.recorder.RecordOperation(op, OutcomeFailure)
	slog.Info("session operation failed", "op", string(op), "error", err)
	return &AuthError{Op: op, Err: err}
}
