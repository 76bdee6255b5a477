package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/al-bashkir/simplifyhealth/internal/logsanitize"
)

// ioTimeout bounds reading the request line and writing the response.
// Session operations themselves are not bounded here; the identity
// provider client owns that policy.
const ioTimeout = 30 * time.Second

// Server is the IPC server that listens on a Unix socket for control requests
type Server struct {
	socketPath string
	listener   net.Listener
	handler    Handler
	wg         sync.WaitGroup
	stopChan   chan struct{}
	cancel     context.CancelFunc
	mu         sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(socketPath string, handler Handler) *Server {
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		stopChan:   make(chan struct{}),
	}
}

// Start starts the IPC server. Connections are served with a context
// derived from ctx that Stop cancels.
func (s *Server) Start(ctx context.Context) error {
	// Ensure the directory exists.
	// Access control is enforced at the socket level.
	dir := filepath.Dir(s.socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	// Remove old socket if it exists
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old socket: %w", err)
	}

	// Create Unix listener
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	// Set socket permissions: 0660 (owner + group read/write).
	// Anyone who can connect can sign the device in or out, so world
	// access is denied.
	if err := os.Chmod(s.socketPath, 0660); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.listener = listener
	s.cancel = cancel
	s.mu.Unlock()

	slog.Info("IPC server started", "socket", s.socketPath)

	// Start accept loop in goroutine
	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopChan:
				// Server is stopping, this is expected
				return
			default:
				slog.Error("failed to accept connection", "error", err)
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		// Handle connection in goroutine
		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() { _ = conn.Close() }()
	defer func() {
		if err := recover(); err != nil {
			slog.Error("panic recovered in IPC handler",
				"error", err,
				"stack", string(debug.Stack()),
			)
			s.sendErrorResponse(conn, "internal error", ReasonInternal)
		}
	}()

	if err := conn.SetReadDeadline(time.Now().Add(ioTimeout)); err != nil {
		slog.Error("failed to set connection deadline", "error", err)
		return
	}

	// Decode request
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		slog.Error("failed to decode request", "error", err)
		s.sendErrorResponse(conn, "invalid request format", ReasonInvalid)
		return
	}

	// Validate request type
	if !req.Type.valid() {
		slog.Error("invalid request type", "type", logsanitize.Sanitize(string(req.Type)))
		s.sendErrorResponse(conn, "invalid request type", ReasonInvalid)
		return
	}

	slog.Info("control request received",
		"type", string(req.Type),
		"email", logsanitize.Email(req.Email),
	)

	if req.Type == MessageTypeWatch {
		s.watch(ctx, conn)
		return
	}

	// An operation that has started runs to completion even if the client
	// hangs up or the server stops; Stop waits for it.
	resp, err := s.handler.Handle(context.WithoutCancel(ctx), &req)
	if err := conn.SetWriteDeadline(time.Now().Add(ioTimeout)); err != nil {
		slog.Debug("failed to set write deadline", "error", err)
	}
	if err != nil {
		slog.Error("handler error", "error", err)
		s.sendErrorResponse(conn, err.Error(), ReasonInternal)
		return
	}

	// Send response
	resp.Type = MessageTypeResponse
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Error("failed to send response", "error", err)
		return
	}

	slog.Debug("control response sent", "status", resp.Status, "reason", string(resp.Reason))
}

// watch streams state responses until the client hangs up or the server
// stops.
func (s *Server) watch(ctx context.Context, conn net.Conn) {
	if err := conn.SetDeadline(time.Time{}); err != nil {
		slog.Error("failed to clear connection deadline", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The client sends nothing after the request; a read returning means
	// it went away.
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		cancel()
	}()

	enc := json.NewEncoder(conn)
	for resp := range s.handler.Watch(ctx) {
		resp.Type = MessageTypeResponse
		if err := enc.Encode(resp); err != nil {
			slog.Debug("watch client gone", "error", err)
			return
		}
	}
}

// sendErrorResponse sends an error response to the client
func (s *Server) sendErrorResponse(conn net.Conn, errMsg string, reason Reason) {
	resp := &Response{
		Type:   MessageTypeResponse,
		Status: StatusError,
		Error:  errMsg,
		Reason: reason,
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		slog.Error("failed to send error response", "error", err)
	}
}

// Stop stops the IPC server gracefully
func (s *Server) Stop() error {
	slog.Info("stopping IPC server")

	// Signal accept loop to stop
	close(s.stopChan)

	// Close listener and end watch streams
	s.mu.Lock()
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			slog.Warn("failed to close listener", "error", err)
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	// Wait for all connections to finish
	s.wg.Wait()

	// Remove socket file
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove socket file", "error", err)
	}

	slog.Info("IPC server stopped")
	return nil
}
