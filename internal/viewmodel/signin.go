package viewmodel

import (
	"context"
	"strings"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// SignIn backs the sign-in screen.
type SignIn struct {
	form

	Email    *broadcast.Value[string]
	Password *broadcast.Value[string]

	// ShowingSignUp is true while the sign-up sheet is open.
	ShowingSignUp *broadcast.Value[bool]

	auth session.SignInner
}

// NewSignIn returns an empty sign-in form.
func NewSignIn(auth session.SignInner) *SignIn {
	vm := &SignIn{
		Email:         broadcast.NewValue(""),
		Password:      broadcast.NewValue(""),
		ShowingSignUp: broadcast.NewValue(false),
		auth:          auth,
	}
	vm.init()
	return vm
}

// CanSubmit reports whether both fields are filled and nothing is running.
func (vm *SignIn) CanSubmit() bool {
	return !vm.Busy.Get() && vm.ready()
}

func (vm *SignIn) ready() bool {
	return strings.TrimSpace(vm.Email.Get()) != "" && vm.Password.Get() != ""
}

// Submit signs in with the current fields.
func (vm *SignIn) Submit(ctx context.Context) error {
	return vm.run(vm.ready, func() error {
		return vm.auth.SignIn(ctx, strings.TrimSpace(vm.Email.Get()), vm.Password.Get())
	})
}

// SetShowingSignUp opens or closes the sign-up sheet. Opening is refused
// while a sign-in is running.
func (vm *SignIn) SetShowingSignUp(show bool) bool {
	if show && vm.Busy.Get() {
		return false
	}
	vm.ShowingSignUp.Set(show)
	return true
}

// Close ends all field feeds.
func (vm *SignIn) Close() {
	vm.form.close()
	vm.Email.Close()
	vm.Password.Close()
	vm.ShowingSignUp.Close()
}
