package httpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// keepAliveInterval spaces comment lines on idle event streams.
const keepAliveInterval = 25 * time.Second

// handleSessionEvents streams the session state as server-sent events. The
// first event is the current state; each later event is one committed
// change, in order.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		slog.Debug("cannot clear write deadline", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	feed := s.info.Observe(r.Context())
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case st, ok := <-feed:
			if !ok {
				return
			}
			data, err := json.Marshal(st)
			if err != nil {
				slog.Error("failed to encode session event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: session\ndata: %s\n\n", data); err != nil {
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case <-s.done:
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
