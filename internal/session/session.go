// Package session holds the signed-in/signed-out state of the application,
// publishes its changes, and implements the auth operations that move it.
package session

import (
	"encoding/json"
	"fmt"
)

// Status is the discriminant of State.
type Status int

const (
	// StatusSignedOut is the zero value: no user is signed in.
	StatusSignedOut Status = iota
	// StatusSignedIn means State carries a Session.
	StatusSignedIn
)

func (s Status) String() string {
	switch s {
	case StatusSignedOut:
		return "signed out"
	case StatusSignedIn:
		return "signed in"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Session is the data attached to a signed-in state.
type Session struct {
	// Username is the email or provider id of the signed-in user. Never empty.
	Username string
}

// State is either signed out or signed in with a Session. It is an immutable
// value; the zero value is SignedOut.
type State struct {
	status  Status
	session Session
}

// SignedOut returns the signed-out state.
func SignedOut() State {
	return State{}
}

// SignedIn returns the signed-in state for s. It panics if s.Username is
// empty.
func SignedIn(s Session) State {
	if s.Username == "" {
		panic(&InvariantViolation{Op: "construct state", Want: StatusSignedIn, Reason: "empty username"})
	}
	return State{status: StatusSignedIn, session: s}
}

// Status reports which variant s is.
func (s State) Status() Status {
	return s.status
}

// IsSignedIn reports whether s is the signed-in variant.
func (s State) IsSignedIn() bool {
	return s.status == StatusSignedIn
}

// Session returns the attached session and true when signed in.
func (s State) Session() (Session, bool) {
	return s.session, s.status == StatusSignedIn
}

func (s State) String() string {
	if s.IsSignedIn() {
		return fmt.Sprintf("signed in as %s", s.session.Username)
	}
	return "signed out"
}

type stateJSON struct {
	SignedIn bool   `json:"signed_in"`
	Username string `json:"username,omitempty"`
}

// MarshalJSON encodes s as {"signed_in":bool,"username":string}.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(stateJSON{SignedIn: s.IsSignedIn(), Username: s.session.Username})
}
