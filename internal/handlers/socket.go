package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/livechat"
)

const (
	socketWriteWait = 10 * time.Second
	socketReadLimit = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Agents connect from anywhere; the API key is the gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// socketFrame is a client-to-server websocket frame.
type socketFrame struct {
	Type     string         `json:"type"` // subscribe, unsubscribe or send
	Channel  string         `json:"channel"`
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// socketSink adapts a websocket connection to livechat.Sink. Writes are
// serialized because several subscriptions share one connection.
type socketSink struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newSocketSink(conn *websocket.Conn) *socketSink {
	return &socketSink{conn: conn, done: make(chan struct{})}
}

func (s *socketSink) Send(p livechat.Payload) error {
	return s.writeJSON(p)
}

func (s *socketSink) Done() <-chan struct{} {
	return s.done
}

func (s *socketSink) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
	return s.conn.WriteJSON(v)
}

func (s *socketSink) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Socket upgrades to a websocket that receives the channel given by the
// channel query parameter (default general). Clients may subscribe to more
// channels, unsubscribe, and send messages over the same connection.
func (h *Handler) Socket(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	agentID := agent.ID.String()

	channel := r.URL.Query().Get("channel")
	if channel == "" {
		channel = livechat.GeneralChannel
	}
	if err := h.bus.EnsureMembership(agentID, channel); err != nil {
		h.BusError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(socketReadLimit)

	sink := newSocketSink(conn)
	subscribed := make(map[string]bool)
	defer func() {
		for ch := range subscribed {
			h.bus.Unsubscribe(agentID, ch)
		}
		sink.close()
	}()

	if h.bus.Subscribe(agentID, channel, sink) {
		subscribed[channel] = true
	}

	go h.pingSocket(sink)
	conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	})

	for {
		var frame socketFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("agent_id", agentID).Msg("websocket closed")
			}
			return
		}

		switch frame.Type {
		case "subscribe":
			if !h.bus.Subscribe(agentID, frame.Channel, sink) {
				sink.writeJSON(map[string]string{"type": "error", "error": "cannot subscribe to " + frame.Channel})
				continue
			}
			subscribed[frame.Channel] = true
		case "unsubscribe":
			h.bus.Unsubscribe(agentID, frame.Channel)
			delete(subscribed, frame.Channel)
		case "send":
			body := sanitizeText(frame.Message, maxMessageSize)
			if body == "" {
				sink.writeJSON(map[string]string{"type": "error", "error": "message is required"})
				continue
			}
			result, err := h.bus.Send(agentID, livechat.SendRequest{Channel: frame.Channel, Body: body, Metadata: frame.Metadata})
			if err != nil {
				sink.writeJSON(map[string]string{"type": "error", "error": err.Error()})
				continue
			}
			sink.writeJSON(map[string]any{"type": "sent", "result": result})
		default:
			sink.writeJSON(map[string]string{"type": "error", "error": "unknown frame type " + frame.Type})
		}
	}
}

// pingSocket keeps the connection alive until the sink closes.
func (h *Handler) pingSocket(sink *socketSink) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-sink.done:
			return
		case <-ticker.C:
			if err := sink.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteWait)); err != nil {
				sink.close()
				return
			}
		}
	}
}
