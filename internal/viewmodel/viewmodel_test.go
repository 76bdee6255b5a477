package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/catalog"
	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/identity/memory"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// fakeAuth implements every capability. Calls block on gate when set and
// return err.
type fakeAuth struct {
	mu    sync.Mutex
	err   error
	gate  chan struct{}
	calls []string
}

func (f *fakeAuth) call(ctx context.Context, name string) error {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	gate, err := f.gate, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeAuth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeAuth) SignIn(ctx context.Context, email, password string) error {
	return f.call(ctx, "signin:"+email)
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) error {
	return f.call(ctx, "signup:"+email)
}

func (f *fakeAuth) ResetPassword(ctx context.Context, email string) error {
	return f.call(ctx, "reset:"+email)
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "feed closed")
		return v
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for value")
	}
	var zero T
	return zero
}

func eventually(t *testing.T, v *broadcast.Value[bool], want bool) {
	t.Helper()
	assert.Eventually(t, func() bool { return v.Get() == want }, time.Second, 5*time.Millisecond)
}

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	p := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	_, err := p.AddUser("a@b.com", "secret1")
	require.NoError(t, err)
	m := session.NewManager(context.Background(), p)
	t.Cleanup(m.Close)
	return m
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{
			name: "auth error",
			err:  &session.AuthError{Op: session.OpSignIn, Err: fmt.Errorf("x: %w", identity.ErrInvalidCredentials)},
			want: "The email or password is incorrect.",
		},
		{
			name: "in flight",
			err:  fmt.Errorf("sign in: %w", session.ErrOperationInFlight),
			want: "Please wait for the current request to finish.",
		},
		{name: "not ready", err: ErrNotReady, want: "Please complete the form."},
		{name: "wrong state", err: fmt.Errorf("sign out: %w", ErrWrongState), want: "This action is not available right now."},
		{name: "unknown", err: errors.New("boom"), want: "Something went wrong. Please try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorMessage(tt.err))
		})
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{"a@b.co", " a.b+c@example.com.au ", "X_Y%z@sub-domain.example.org"}
	invalid := []string{"", "a@b", "a@b.c", "a b@c.com", "@b.com", "a@.com@", "a@b.c0m"}

	for _, s := range valid {
		assert.True(t, ValidEmail(s), "%q should be valid", s)
	}
	for _, s := range invalid {
		assert.False(t, ValidEmail(s), "%q should be invalid", s)
	}
}

func TestSignInSubmit(t *testing.T) {
	auth := &fakeAuth{}
	vm := NewSignIn(auth)
	defer vm.Close()

	assert.False(t, vm.CanSubmit())
	assert.ErrorIs(t, vm.Submit(context.Background()), ErrNotReady)
	assert.Zero(t, auth.callCount(), "unready form must not reach the session")

	vm.Email.Set(" a@b.com ")
	assert.False(t, vm.CanSubmit(), "password still empty")
	vm.Password.Set("secret1")
	assert.True(t, vm.CanSubmit())

	require.NoError(t, vm.Submit(context.Background()))
	assert.Equal(t, []string{"signin:a@b.com"}, auth.calls)
	assert.False(t, vm.Busy.Get())
	assert.Empty(t, vm.ErrorMessage.Get())
}

func TestSignInBusyAndErrorLifecycle(t *testing.T) {
	auth := &fakeAuth{gate: make(chan struct{}), err: &session.AuthError{Op: session.OpSignIn, Err: identity.ErrInvalidCredentials}}
	vm := NewSignIn(auth)
	defer vm.Close()
	vm.Email.Set("a@b.com")
	vm.Password.Set("wrong")
	vm.ErrorMessage.Set("stale error")

	busy := vm.Busy.Subscribe()
	defer busy.Close()
	assert.False(t, next(t, busy.C()))

	done := make(chan error, 1)
	go func() { done <- vm.Submit(context.Background()) }()

	assert.True(t, next(t, busy.C()))
	assert.Empty(t, vm.ErrorMessage.Get(), "previous error is cleared before the attempt")
	assert.False(t, vm.CanSubmit())
	assert.False(t, vm.SetShowingSignUp(true), "sign-up sheet is disabled while busy")
	assert.ErrorIs(t, vm.Submit(context.Background()), ErrNotReady, "second submit while busy")

	close(auth.gate)
	err := <-done
	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)

	assert.False(t, next(t, busy.C()))
	assert.Equal(t, "The email or password is incorrect.", vm.ErrorMessage.Get())
	assert.Equal(t, 1, auth.callCount())

	assert.True(t, vm.SetShowingSignUp(true))
	assert.True(t, vm.ShowingSignUp.Get())
}

func TestSignUpConfirmationFlow(t *testing.T) {
	auth := &fakeAuth{}
	vm := NewSignUp(auth)
	defer vm.Close()

	vm.Email.Set("not-an-email")
	vm.Password.Set("secret1")
	assert.False(t, vm.CanSubmit())
	assert.False(t, vm.RequestConfirmation())

	vm.Email.Set(" new@b.com ")
	require.True(t, vm.CanSubmit())

	assert.False(t, vm.Confirm(context.Background()), "confirm without prompt is ignored")
	assert.Zero(t, auth.callCount())

	require.True(t, vm.RequestConfirmation())
	assert.True(t, vm.AwaitingConfirmation.Get())
	assert.True(t, vm.Busy.Get(), "form is busy while the prompt is shown")
	assert.Equal(t, "You are about to create an account for new@b.com", vm.ConfirmationPrompt())

	vm.CancelConfirmation()
	assert.False(t, vm.AwaitingConfirmation.Get())
	assert.False(t, vm.Busy.Get())
	assert.Zero(t, auth.callCount())

	require.True(t, vm.RequestConfirmation())
	assert.True(t, vm.Confirm(context.Background()))
	assert.Equal(t, []string{"signup:new@b.com"}, auth.calls)
	assert.False(t, vm.Busy.Get())
	assert.False(t, vm.AwaitingConfirmation.Get())
}

func TestSignUpConfirmFailure(t *testing.T) {
	auth := &fakeAuth{err: &session.AuthError{Op: session.OpSignUp, Err: identity.ErrEmailExists}}
	vm := NewSignUp(auth)
	defer vm.Close()
	vm.Email.Set("taken@b.com")
	vm.Password.Set("secret1")

	require.True(t, vm.RequestConfirmation())
	assert.False(t, vm.Confirm(context.Background()))
	assert.Equal(t, "An account already exists for this email.", vm.ErrorMessage.Get())
	assert.ErrorIs(t, vm.LastError(), identity.ErrEmailExists)
	assert.False(t, vm.Busy.Get())
	assert.True(t, vm.CanSubmit(), "user can retry")
}

func TestPasswordReset(t *testing.T) {
	auth := &fakeAuth{}
	vm := NewPasswordReset(auth, "bad")
	defer vm.Close()

	assert.False(t, vm.CanSubmit())
	assert.ErrorIs(t, vm.Submit(context.Background()), ErrNotReady)

	vm.Email.Set("a@b.com")
	assert.True(t, vm.CanDismiss())
	require.NoError(t, vm.Submit(context.Background()))

	assert.True(t, vm.ShowFurtherInstructions.Get())
	assert.False(t, vm.CanDismiss())
	assert.Equal(t, "Further instructions to reset your password have been sent to a@b.com.", vm.Instructions())
	assert.Equal(t, []string{"reset:a@b.com"}, auth.calls)
}

func TestPasswordResetFailure(t *testing.T) {
	auth := &fakeAuth{err: &session.AuthError{Op: session.OpPasswordReset, Err: identity.ErrUserNotFound}}
	vm := NewPasswordReset(auth, "c@d.com")
	defer vm.Close()

	require.Error(t, vm.Submit(context.Background()))
	assert.False(t, vm.ShowFurtherInstructions.Get())
	assert.Equal(t, "There is no account for this email.", vm.ErrorMessage.Get())
	assert.False(t, vm.Busy.Get())
}

func TestLaunchFollowsSession(t *testing.T) {
	m := newManager(t)
	vm := NewLaunch(m)
	defer vm.Close()

	assert.False(t, vm.SignedIn.Get())

	require.NoError(t, m.SignIn(context.Background(), "a@b.com", "secret1"))
	eventually(t, vm.SignedIn, true)

	require.NoError(t, m.SignOut(context.Background()))
	eventually(t, vm.SignedIn, false)
}

func TestLaunchCloseStopsFollowing(t *testing.T) {
	m := newManager(t)
	vm := NewLaunch(m)
	before := m.Subscribers()

	vm.Close()
	assert.Eventually(t, func() bool { return m.Subscribers() == before-1 }, time.Second, 5*time.Millisecond)
}

func TestMainScreen(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	require.NoError(t, m.SignIn(ctx, "a@b.com", "secret1"))

	cat, err := catalog.Default()
	require.NoError(t, err)

	vm := NewMain(m, m, cat)
	defer vm.Close()

	assert.Equal(t, "a@b.com", vm.Username.Get())
	assert.Equal(t, "Simplify Health", vm.Title())
	assert.Len(t, vm.Tiles(), 8)
	assert.Len(t, vm.Contact(), 3)
	_, ok := vm.Category("dietetics")
	assert.True(t, ok)

	require.True(t, vm.CanSignOut())
	require.NoError(t, vm.SignOut(ctx))
	assert.False(t, m.Current().IsSignedIn())
	assert.Eventually(t, func() bool { return vm.Username.Get() == "" }, time.Second, 5*time.Millisecond)

	assert.False(t, vm.CanSignOut())
	assert.ErrorIs(t, vm.SignOut(ctx), ErrNotReady, "signing out twice is refused before reaching the session")
}

func TestGuard(t *testing.T) {
	err := Guard(func() error {
		panic(&session.InvariantViolation{Op: session.OpSignOut, Want: session.StatusSignedIn})
	})
	assert.ErrorIs(t, err, ErrWrongState)
	assert.Contains(t, err.Error(), "sign out")

	assert.NoError(t, Guard(func() error { return nil }))
	assert.PanicsWithValue(t, "other", func() {
		_ = Guard(func() error { panic("other") })
	})
}

func TestGuardRaceWithRealManager(t *testing.T) {
	m := newManager(t)

	// Signed out: the Manager panics, Guard reports the conflict.
	err := Guard(func() error { return m.SignOut(context.Background()) })
	assert.ErrorIs(t, err, ErrWrongState)
	assert.False(t, m.Current().IsSignedIn())
}
