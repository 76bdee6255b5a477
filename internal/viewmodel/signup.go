package viewmodel

import (
	"context"
	"fmt"
	"strings"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// SignUp backs the create-account sheet. Creating an account is a two-step
// action: RequestConfirmation shows a prompt, Confirm performs the call.
type SignUp struct {
	form

	Email    *broadcast.Value[string]
	Password *broadcast.Value[string]

	// AwaitingConfirmation is true while the confirmation prompt is shown.
	AwaitingConfirmation *broadcast.Value[bool]

	auth session.SignUpper
}

// NewSignUp returns an empty sign-up form.
func NewSignUp(auth session.SignUpper) *SignUp {
	vm := &SignUp{
		Email:                broadcast.NewValue(""),
		Password:             broadcast.NewValue(""),
		AwaitingConfirmation: broadcast.NewValue(false),
		auth:                 auth,
	}
	vm.init()
	return vm
}

// CanSubmit reports whether the email is valid, a password is set and
// nothing is running.
func (vm *SignUp) CanSubmit() bool {
	return !vm.Busy.Get() && vm.ready()
}

func (vm *SignUp) ready() bool {
	return ValidEmail(vm.Email.Get()) && vm.Password.Get() != ""
}

// RequestConfirmation shows the prompt. The form stays busy until the user
// confirms or cancels.
func (vm *SignUp) RequestConfirmation() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if vm.Busy.Get() || !vm.ready() {
		return false
	}
	vm.Busy.Set(true)
	vm.AwaitingConfirmation.Set(true)
	return true
}

// ConfirmationPrompt is the text shown in the prompt.
func (vm *SignUp) ConfirmationPrompt() string {
	return fmt.Sprintf("You are about to create an account for %s", strings.TrimSpace(vm.Email.Get()))
}

// CancelConfirmation dismisses the prompt without signing up.
func (vm *SignUp) CancelConfirmation() {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	if !vm.AwaitingConfirmation.Get() {
		return
	}
	vm.AwaitingConfirmation.Set(false)
	vm.Busy.Set(false)
}

// Confirm creates the account. It returns true on success, when the sheet
// should close; on failure ErrorMessage holds the reason.
func (vm *SignUp) Confirm(ctx context.Context) bool {
	vm.mu.Lock()
	if !vm.AwaitingConfirmation.Get() {
		vm.mu.Unlock()
		return false
	}
	vm.AwaitingConfirmation.Set(false)
	vm.ErrorMessage.Set("")
	vm.mu.Unlock()

	err := vm.finish(func() error {
		return vm.auth.SignUp(ctx, strings.TrimSpace(vm.Email.Get()), vm.Password.Get())
	})
	return err == nil
}

// Close ends all field feeds.
func (vm *SignUp) Close() {
	vm.form.close()
	vm.Email.Close()
	vm.Password.Close()
	vm.AwaitingConfirmation.Close()
}
