package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/al-bashkir/simplifyhealth/internal/identity"
	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
	"github.com/al-bashkir/simplifyhealth/internal/session"
	"github.com/al-bashkir/simplifyhealth/internal/viewmodel"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 4 << 10

// CredentialsRequest is the body of sign-in and sign-up requests
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordResetRequest is the body of password reset requests
type PasswordResetRequest struct {
	Email string `json:"email"`
}

// SessionResponse is returned by every session action
type SessionResponse struct {
	OK           bool   `json:"ok"`
	SignedIn     bool   `json:"signed_in"`
	Username     string `json:"username,omitempty"`
	Error        string `json:"error,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// handleSession returns the current session state
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.info.Current())
}

// handleSignIn signs in with email and password
func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if s.info.Current().IsSignedIn() {
		s.writeResult(w, fmt.Errorf("sign in: %w", viewmodel.ErrWrongState), "")
		return
	}

	vm := viewmodel.NewSignIn(s.deps.SessionSignIn())
	defer vm.Close()
	vm.Email.Set(req.Email)
	vm.Password.Set(req.Password)

	err := viewmodel.Guard(func() error { return vm.Submit(operationContext(r)) })
	s.writeResult(w, err, "")
}

// handleSignUp creates an account and signs it in. The request body is the
// confirmation, so the prompt is requested and confirmed in one step.
func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if s.info.Current().IsSignedIn() {
		s.writeResult(w, fmt.Errorf("sign up: %w", viewmodel.ErrWrongState), "")
		return
	}

	vm := viewmodel.NewSignUp(s.deps.SessionSignUp())
	defer vm.Close()
	vm.Email.Set(req.Email)
	vm.Password.Set(req.Password)

	if !vm.RequestConfirmation() {
		s.writeResult(w, viewmodel.ErrNotReady, "")
		return
	}
	err := viewmodel.Guard(func() error {
		vm.Confirm(operationContext(r))
		return vm.LastError()
	})
	s.writeResult(w, err, "")
}

// handleSignOut signs the current user out
func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if !s.info.Current().IsSignedIn() {
		s.writeResult(w, fmt.Errorf("sign out: %w", viewmodel.ErrWrongState), "")
		return
	}

	vm := viewmodel.NewMain(s.info, s.deps.SessionSignOut(), s.deps.Catalog())
	defer vm.Close()

	err := viewmodel.Guard(func() error { return vm.SignOut(operationContext(r)) })
	if errors.Is(err, viewmodel.ErrNotReady) {
		// Signed out between the check above and the call.
		err = fmt.Errorf("sign out: %w", viewmodel.ErrWrongState)
	}
	s.writeResult(w, err, "")
}

// handlePasswordReset sends reset instructions. It is valid in any state.
func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	vm := viewmodel.NewPasswordReset(s.deps.SessionPasswordReset(), req.Email)
	defer vm.Close()

	if err := vm.Submit(operationContext(r)); err != nil {
		s.writeResult(w, err, "")
		return
	}
	s.writeResult(w, nil, vm.Instructions())
}

// operationContext keeps the request's values but not its cancellation. A
// client that disconnects mid-call does not stop the operation; its effect
// still lands in the session state.
func operationContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// writeResult reports the outcome of a session action along with the
// state it left behind.
func (s *Server) writeResult(w http.ResponseWriter, err error, instructions string) {
	st := s.info.Current()
	sess, _ := st.Session()
	resp := SessionResponse{
		OK:           err == nil,
		SignedIn:     st.IsSignedIn(),
		Username:     sess.Username,
		Instructions: instructions,
	}
	if err != nil {
		resp.Error = viewmodel.ErrorMessage(err)
	}
	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	var authErr *session.AuthError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, viewmodel.ErrWrongState), errors.Is(err, session.ErrOperationInFlight):
		return http.StatusConflict
	case errors.Is(err, viewmodel.ErrNotReady):
		return http.StatusBadRequest
	case errors.As(err, &authErr):
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, identity.ErrUserDisabled):
			return http.StatusUnauthorized
		case errors.Is(err, identity.ErrTooManyAttempts):
			return http.StatusTooManyRequests
		case errors.Is(err, identity.ErrUnavailable):
			return http.StatusServiceUnavailable
		case errors.Is(err, identity.ErrUnsupported):
			return http.StatusNotImplemented
		default:
			return http.StatusBadRequest
		}
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		slog.Debug("invalid request body", "path", logsanitize.Sanitize(r.URL.Path), "error", err)
		writeJSON(w, http.StatusBadRequest, SessionResponse{Error: "Invalid request body."})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort: headers/status may already be written.
		slog.Error("failed to encode response", "error", err)
	}
}
