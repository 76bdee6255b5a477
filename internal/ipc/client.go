package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// Client is the IPC client used by the CLI to talk to the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the connection and request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Status returns the current session state.
func (c *Client) Status(ctx context.Context) (*Response, error) {
	return c.Send(ctx, &Request{Type: MessageTypeStatus})
}

// SignIn signs in with email and password.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Response, error) {
	return c.Send(ctx, &Request{Type: MessageTypeSignIn, Email: email, Password: password})
}

// SignUp creates an account and signs it in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Response, error) {
	return c.Send(ctx, &Request{Type: MessageTypeSignUp, Email: email, Password: password})
}

// SignOut signs the current user out.
func (c *Client) SignOut(ctx context.Context) (*Response, error) {
	return c.Send(ctx, &Request{Type: MessageTypeSignOut})
}

// ResetPassword asks the daemon to send reset instructions to email.
func (c *Client) ResetPassword(ctx context.Context, email string) (*Response, error) {
	return c.Send(ctx, &Request{Type: MessageTypePasswordReset, Email: email})
}

// Send sends a one-shot request and waits for the response. An error
// response from the daemon is returned as a Response, not an error.
func (c *Client) Send(ctx context.Context, req *Request) (*Response, error) {
	if req.Type == MessageTypeWatch {
		return nil, errors.New("use Watch for watch requests")
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	// Set overall deadline
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set connection deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Validate response type
	if resp.Type != MessageTypeResponse {
		return nil, fmt.Errorf("invalid response type: %s", resp.Type)
	}

	return &resp, nil
}

// Watch calls fn with the current state and then with each change until
// ctx is done, fn returns an error, or the daemon closes the stream. A
// cancelled ctx is not reported as an error.
func (c *Client) Watch(ctx context.Context, fn func(*Response) error) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	// Unblock the read below when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := json.NewEncoder(conn).Encode(&Request{Type: MessageTypeWatch}); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var resp Response
		if err := dec.Decode(&resp); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.Type != MessageTypeResponse {
			return fmt.Errorf("invalid response type: %s", resp.Type)
		}
		if err := fn(&resp); err != nil {
			return err
		}
	}
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w", err)
	}
	return conn, nil
}
