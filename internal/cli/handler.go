package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/al-bashkir/simplifyhealth/internal/ipc"
	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
)

// Exit codes for the control commands
const (
	ExitSuccess  = 0 // Request succeeded
	ExitFailure  = 1 // Daemon unreachable, bad input, or action not allowed now
	ExitConfig   = 3 // Configuration error
	ExitRejected = 4 // Identity provider refused the request
)

// Handler runs control commands against the daemon
type Handler struct {
	client *ipc.Client
	out    io.Writer
	errOut io.Writer
}

// NewHandler creates a handler for the daemon at socketPath
func NewHandler(socketPath string) *Handler {
	return &Handler{
		client: ipc.NewClient(socketPath),
		out:    os.Stdout,
		errOut: os.Stderr,
	}
}

// SetOutput redirects normal and error output.
func (h *Handler) SetOutput(out, errOut io.Writer) {
	h.out = out
	h.errOut = errOut
}

// SignIn signs in with the credentials in credentialsFile.
func (h *Handler) SignIn(ctx context.Context, credentialsFile string) int {
	creds, err := LoadCredentials(credentialsFile)
	if err != nil {
		slog.Error("failed to read credentials", "error", err, "file", logsanitize.Sanitize(credentialsFile))
		fmt.Fprintf(h.errOut, "Error reading credentials: %v\n", err)
		return ExitFailure
	}

	slog.Info("sign in request", "email", logsanitize.Email(creds.Email))
	resp, err := h.client.SignIn(ctx, creds.Email, creds.Password)
	return h.finish(resp, err)
}

// SignUp creates an account with the credentials in credentialsFile.
func (h *Handler) SignUp(ctx context.Context, credentialsFile string) int {
	creds, err := LoadCredentials(credentialsFile)
	if err != nil {
		slog.Error("failed to read credentials", "error", err, "file", logsanitize.Sanitize(credentialsFile))
		fmt.Fprintf(h.errOut, "Error reading credentials: %v\n", err)
		return ExitFailure
	}

	slog.Info("sign up request", "email", logsanitize.Email(creds.Email))
	resp, err := h.client.SignUp(ctx, creds.Email, creds.Password)
	return h.finish(resp, err)
}

// SignOut signs the current user out.
func (h *Handler) SignOut(ctx context.Context) int {
	resp, err := h.client.SignOut(ctx)
	return h.finish(resp, err)
}

// ResetPassword requests reset instructions for email.
func (h *Handler) ResetPassword(ctx context.Context, email string) int {
	resp, err := h.client.ResetPassword(ctx, email)
	return h.finish(resp, err)
}

// Status prints the session state. With watch it keeps printing each change
// until ctx is done.
func (h *Handler) Status(ctx context.Context, watch bool) int {
	if !watch {
		resp, err := h.client.Status(ctx)
		return h.finish(resp, err)
	}

	err := h.client.Watch(ctx, func(resp *ipc.Response) error {
		h.printState(resp)
		return nil
	})
	if err != nil {
		return h.daemonError(err)
	}
	return ExitSuccess
}

func (h *Handler) finish(resp *ipc.Response, err error) int {
	if err != nil {
		return h.daemonError(err)
	}

	if resp.Status != ipc.StatusOK {
		slog.Error("daemon returned error", "error", resp.Error, "reason", string(resp.Reason))
		fmt.Fprintf(h.errOut, "Error: %s\n", resp.Error)
		if resp.Reason == ipc.ReasonRejected {
			return ExitRejected
		}
		return ExitFailure
	}

	if resp.Instructions != "" {
		fmt.Fprintln(h.out, resp.Instructions)
		return ExitSuccess
	}
	h.printState(resp)
	return ExitSuccess
}

func (h *Handler) printState(resp *ipc.Response) {
	if resp.SignedIn {
		fmt.Fprintf(h.out, "signed in as %s\n", resp.Username)
		return
	}
	fmt.Fprintln(h.out, "signed out")
}

func (h *Handler) daemonError(err error) int {
	if errors.Is(err, context.Canceled) {
		return ExitFailure
	}
	slog.Error("failed to communicate with daemon", "error", err)
	fmt.Fprintf(h.errOut, "Error: daemon communication failed: %v\n", err)
	fmt.Fprintf(h.errOut, "Is the daemon running? Check: systemctl status simplifyhealth\n")
	return ExitFailure
}
