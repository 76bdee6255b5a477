package viewmodel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/al-bashkir/simplifyhealth/internal/session"
)

// ErrWrongState is returned when an action does not match the session
// state, either up front or because the state changed while the request
// was on its way.
var ErrWrongState = errors.New("not allowed in the current session state")

// Guard runs call and turns a session precondition panic into
// ErrWrongState. Front ends check the state before calling, but two
// clients can race between the check and the call. Other panics propagate.
func Guard(call func() error) (err error) {
	defer func() {
		v := recover()
		if v == nil {
			return
		}
		var iv *session.InvariantViolation
		if e, ok := v.(error); ok && errors.As(e, &iv) {
			slog.Warn("session state changed during request", "error", iv)
			err = fmt.Errorf("%s: %w", iv.Op, ErrWrongState)
			return
		}
		panic(v)
	}()

	return call()
}
