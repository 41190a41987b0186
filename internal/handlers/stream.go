package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/livechat"
)

// Stream serves LiveChat events to an authenticated agent over SSE.
// Project notifications are limited to the ones addressed to that agent.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	agentID := agent.ID.String()
	h.serveStream(w, r, map[string]any{"agent": agent.Username}, func(ev livechat.Event) bool {
		return ev.Type != livechat.EventProjectNotification || ev.Notification.AgentID == agentID
	})
}

// ObserveStream serves read-only LiveChat events without authentication.
func (h *Handler) ObserveStream(w http.ResponseWriter, r *http.Request) {
	h.serveStream(w, r, map[string]any{"mode": "observer"}, func(ev livechat.Event) bool {
		return ev.Type != livechat.EventProjectNotification
	})
}

// serveStream writes a "connected" frame, then every accepted event as an
// SSE data frame, with comment heartbeats, until the client goes away.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, hello map[string]any, accept func(livechat.Event) bool) {
	channel := r.URL.Query().Get("channel")
	events, id, err := h.bus.Stream(r.Context(), channel)
	if err != nil {
		h.BusError(w, err)
		return
	}
	defer h.bus.StopStream(id)

	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	hello["type"] = "connected"
	hello["channel"] = channel
	if channel == "" {
		hello["channel"] = "all"
	}
	writeSSE(w, hello)
	if err := rc.Flush(); err != nil {
		h.logger.Warn().Err(err).Msg("streaming unsupported by response writer")
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat %d\n\n", time.Now().UnixMilli())
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !accept(ev) {
				continue
			}
			writeSSE(w, ev)
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// writeSSE writes a single SSE data frame.
func writeSSE(w io.Writer, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
}
