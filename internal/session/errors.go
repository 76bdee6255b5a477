package session

import (
	"errors"
	"fmt"

	"github.com/al-bashkir/simplifyhealth/internal/identity"
)

// ErrOperationInFlight is returned when a state-changing operation is
// invoked while another one has not resolved yet.
var ErrOperationInFlight = errors.New("another session operation is in progress")

// AuthError is a failure reported by the identity provider. The session
// state is unchanged when an operation returns one.
type AuthError struct {
	Op  Operation
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing description of the failure.
func (e *AuthError) Message() string {
	return identity.Message(e.Err)
}

// InvariantViolation is the panic value used when an operation is invoked in
// a state its precondition forbids. It signals a caller bug and is not meant
// to be recovered by normal control flow.
type InvariantViolation struct {
	Op     Operation
	Want   Status
	Got    Status
	Reason string
}

func (e *InvariantViolation) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("session invariant violated: %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("session invariant violated: %s requires %s, state is %s", e.Op, e.Want, e.Got)
}
