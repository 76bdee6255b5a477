package ipc

// MessageType represents the type of IPC message
type MessageType string

const (
	// MessageTypeStatus asks for the current session state
	MessageTypeStatus MessageType = "status"
	// MessageTypeWatch streams the session state until the client hangs up
	MessageTypeWatch MessageType = "watch"
	// MessageTypeSignIn signs in with email and password
	MessageTypeSignIn MessageType = "sign_in"
	// MessageTypeSignUp creates an account and signs it in
	MessageTypeSignUp MessageType = "sign_up"
	// MessageTypeSignOut signs the current user out
	MessageTypeSignOut MessageType = "sign_out"
	// MessageTypePasswordReset sends password reset instructions
	MessageTypePasswordReset MessageType = "password_reset"
	// MessageTypeResponse is sent from the daemon back to the client
	MessageTypeResponse MessageType = "response"
)

// Request is sent from the CLI to the daemon, one JSON object per line.
type Request struct {
	Type     MessageType `json:"type"`
	Email    string      `json:"email,omitempty"`
	Password string      `json:"password,omitempty"`
}

// Response is sent from the daemon back to the client. A watch request
// receives one Response per state change.
type Response struct {
	Type         MessageType `json:"type"`
	Status       string      `json:"status"` // "ok" or "error"
	SignedIn     bool        `json:"signed_in"`
	Username     string      `json:"username,omitempty"`
	Error        string      `json:"error,omitempty"`
	Reason       Reason      `json:"reason,omitempty"`
	Instructions string      `json:"instructions,omitempty"`
}

// ResponseStatus constants
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Reason classifies an error response.
type Reason string

const (
	// ReasonRejected means the identity provider refused the request.
	ReasonRejected Reason = "rejected"
	// ReasonConflict means the action does not fit the session state or
	// another action is running.
	ReasonConflict Reason = "conflict"
	// ReasonInvalid means the request was malformed or incomplete.
	ReasonInvalid Reason = "invalid"
	// ReasonInternal covers everything else.
	ReasonInternal Reason = "internal"
)

func (t MessageType) valid() bool {
	switch t {
	case MessageTypeStatus, MessageTypeWatch, MessageTypeSignIn, MessageTypeSignUp,
		MessageTypeSignOut, MessageTypePasswordReset:
		return true
	}
	return false
}
