package ipc

import (
	"context"
	"errors"
	"fmt"

	"github.com/al-bashkir/simplifyhealth/internal/app"
	"github.com/al-bashkir/simplifyhealth/internal/session"
	"github.com/al-bashkir/simplifyhealth/internal/viewmodel"
)

// Handler serves decoded requests. Watch returns a feed of responses that
// ends when ctx is done.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
	Watch(ctx context.Context) <-chan *Response
}

// SessionHandler answers requests from the shared session through the same
// view-models the HTTP API uses.
type SessionHandler struct {
	deps *app.Dependencies
	info session.Info
}

// NewSessionHandler creates a handler over deps.
func NewSessionHandler(deps *app.Dependencies) *SessionHandler {
	return &SessionHandler{deps: deps, info: deps.SessionInfo()}
}

// Handle runs one request. Failures of the action itself are reported in
// the response; the error return is for requests the handler cannot serve.
func (h *SessionHandler) Handle(ctx context.Context, req *Request) (*Response, error) {
	switch req.Type {
	case MessageTypeStatus:
		return stateResponse(h.info.Current()), nil
	case MessageTypeSignIn:
		return h.result(h.signIn(ctx, req), ""), nil
	case MessageTypeSignUp:
		return h.result(h.signUp(ctx, req), ""), nil
	case MessageTypeSignOut:
		return h.result(h.signOut(ctx), ""), nil
	case MessageTypePasswordReset:
		vm := viewmodel.NewPasswordReset(h.deps.SessionPasswordReset(), req.Email)
		defer vm.Close()
		if err := vm.Submit(ctx); err != nil {
			return h.result(err, ""), nil
		}
		return h.result(nil, vm.Instructions()), nil
	default:
		return nil, fmt.Errorf("unsupported request type %q", req.Type)
	}
}

// Watch maps the session feed to responses.
func (h *SessionHandler) Watch(ctx context.Context) <-chan *Response {
	feed := h.info.Observe(ctx)
	out := make(chan *Response)

	go func() {
		defer close(out)
		for st := range feed {
			select {
			case out <- stateResponse(st):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (h *SessionHandler) signIn(ctx context.Context, req *Request) error {
	if h.info.Current().IsSignedIn() {
		return fmt.Errorf("sign in: %w", viewmodel.ErrWrongState)
	}

	vm := viewmodel.NewSignIn(h.deps.SessionSignIn())
	defer vm.Close()
	vm.Email.Set(req.Email)
	vm.Password.Set(req.Password)

	return viewmodel.Guard(func() error { return vm.Submit(ctx) })
}

func (h *SessionHandler) signUp(ctx context.Context, req *Request) error {
	if h.info.Current().IsSignedIn() {
		return fmt.Errorf("sign up: %w", viewmodel.ErrWrongState)
	}

	vm := viewmodel.NewSignUp(h.deps.SessionSignUp())
	defer vm.Close()
	vm.Email.Set(req.Email)
	vm.Password.Set(req.Password)

	// Sending the request is the confirmation.
	if !vm.RequestConfirmation() {
		return viewmodel.ErrNotReady
	}
	return viewmodel.Guard(func() error {
		vm.Confirm(ctx)
		return vm.LastError()
	})
}

func (h *SessionHandler) signOut(ctx context.Context) error {
	if !h.info.Current().IsSignedIn() {
		return fmt.Errorf("sign out: %w", viewmodel.ErrWrongState)
	}

	vm := viewmodel.NewMain(h.info, h.deps.SessionSignOut(), h.deps.Catalog())
	defer vm.Close()

	err := viewmodel.Guard(func() error { return vm.SignOut(ctx) })
	if errors.Is(err, viewmodel.ErrNotReady) {
		return fmt.Errorf("sign out: %w", viewmodel.ErrWrongState)
	}
	return err
}

func (h *SessionHandler) result(err error, instructions string) *Response {
	resp := stateResponse(h.info.Current())
	resp.Instructions = instructions
	if err != nil {
		resp.Status = StatusError
		resp.Error = viewmodel.ErrorMessage(err)
		resp.Reason = reasonFor(err)
	}
	return resp
}

func stateResponse(st session.State) *Response {
	sess, _ := st.Session()
	return &Response{
		Type:     MessageTypeResponse,
		Status:   StatusOK,
		SignedIn: st.IsSignedIn(),
		Username: sess.Username,
	}
}

func reasonFor(err error) Reason {
	var authErr *session.AuthError
	switch {
	case errors.Is(err, viewmodel.ErrWrongState), errors.Is(err, session.ErrOperationInFlight):
		return ReasonConflict
	case errors.Is(err, viewmodel.ErrNotReady):
		return ReasonInvalid
	case errors.As(err, &authErr):
		return ReasonRejected
	default:
		return ReasonInternal
	}
}
