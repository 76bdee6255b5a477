package session

// Operation names an auth operation in errors, logs and metrics.
type Operation string

const (
	OpSignIn        Operation = "sign in"
	OpSignUp        Operation = "sign up"
	OpSignOut       Operation = "sign out"
	OpPasswordReset Operation = "password reset"
)

// Outcome classifies how an operation ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeBusy    Outcome = "busy"
)

// Recorder receives operation outcomes and committed transitions.
type Recorder interface {
	RecordOperation(op Operation, outcome Outcome)
	RecordTransition(st State)
}

type nopRecorder struct{}

func (nopRecorder) RecordOperation(Operation, Outcome) {}
func (nopRecorder) RecordTransition(State)             {}
