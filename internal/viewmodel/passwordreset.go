package viewmodel

import (
	"context"
	"fmt"
	"strings"

	"github.com/al-bashkir/simplifyhealth/internal/broadcast"
	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// PasswordReset backs the reset-password sheet.
type PasswordReset struct {
	form

	Email *broadcast.Value[string]

	// ShowFurtherInstructions switches the sheet to the "check your inbox"
	// view after a successful request.
	ShowFurtherInstructions *broadcast.Value[bool]

	auth session.PasswordResetter
}

// NewPasswordReset returns a form prefilled with email, usually whatever
// was typed on the sign-in screen.
func NewPasswordReset(auth session.PasswordResetter, email string) *PasswordReset {
	vm := &PasswordReset{
		Email:                   broadcast.NewValue(email),
		ShowFurtherInstructions: broadcast.NewValue(false),
		auth:                    auth,
	}
	vm.init()
	return vm
}

// CanSubmit reports whether the email is valid and nothing is running.
func (vm *PasswordReset) CanSubmit() bool {
	return !vm.Busy.Get() && ValidEmail(vm.Email.Get())
}

// CanDismiss reports whether the sheet may be cancelled.
func (vm *PasswordReset) CanDismiss() bool {
	return !vm.Busy.Get() && !vm.ShowFurtherInstructions.Get()
}

// Submit requests the reset email.
func (vm *PasswordReset) Submit(ctx context.Context) error {
	ready := func() bool { return ValidEmail(vm.Email.Get()) }
	return vm.run(ready, func() error {
		if err := vm.auth.ResetPassword(ctx, strings.TrimSpace(vm.Email.Get())); err != nil {
			return err
		}
		vm.ShowFurtherInstructions.Set(true)
		return nil
	})
}

// Instructions is the text shown once the request succeeded.
func (vm *PasswordReset) Instructions() string {
	return fmt.Sprintf("Further instructions to reset your password have been sent to %s.", strings.TrimSpace(vm.Email.Get()))
}

// Close ends all field feeds.
func (vm *PasswordReset) Close() {
	vm.form.close()
	vm.Email.Close()
	vm.ShowFurtherInstructions.Close()
}
