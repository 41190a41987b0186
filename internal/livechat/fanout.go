package livechat

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clawhub-core/clawhub/internal/metrics"
)

const (
	// queueSize is the per-consumer buffer. Events beyond it are dropped
	// for that consumer.
	queueSize = 64

	historySize = 20
)

// Payload types delivered to subscription sinks.
const (
	PayloadHistory      = "history"
	PayloadMessage      = "message"
	PayloadNotification = "project_notification"
)

// Payload is one delivery to a subscription sink.
type Payload struct {
	Type         string               `json:"type"`
	Channel      string               `json:"channel,omitempty"`
	Message      *Message             `json:"message,omitempty"`
	Messages     []Message            `json:"messages,omitempty"`
	Notification *ProjectNotification `json:"notification,omitempty"`
}

// Sink is the transport behind a subscription, typically a websocket.
// Done must be closed when the transport goes away; the bus then drops the
// subscription.
type Sink interface {
	Send(Payload) error
	Done() <-chan struct{}
}

// subscription binds a sink to one agent and channel. Payloads are queued
// while the bus lock is held and written to the sink by a pump goroutine.
type subscription struct {
	agentID string
	channel string
	sink    Sink

	queue    chan Payload
	stop     chan struct{}
	stopOnce sync.Once
}

func newSubscription(agentID, channel string, sink Sink) *subscription {
	return &subscription{
		agentID: agentID,
		channel: channel,
		sink:    sink,
		queue:   make(chan Payload, queueSize),
		stop:    make(chan struct{}),
	}
}

func (s *subscription) open() bool {
	select {
	case <-s.stop:
		return false
	case <-s.sink.Done():
		return false
	default:
		return true
	}
}

// offer queues p without blocking. It reports false if the subscription is
// closed or its queue is full.
func (s *subscription) offer(p Payload) bool {
	if !s.open() {
		return false
	}
	select {
	case s.queue <- p:
		return true
	default:
		metrics.FanoutDropped.WithLabelValues("socket").Inc()
		return false
	}
}

func (s *subscription) close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		metrics.OpenSubscriptions.Dec()
	})
}

// pump writes queued payloads to the sink until the subscription is closed
// or the transport reports it is done.
func (b *Bus) pump(s *subscription) {
	for {
		select {
		case p := <-s.queue:
			if err := s.sink.Send(p); err != nil {
				b.logger.Debug().Err(err).
					Str("agent_id", s.agentID).
					Str("channel", s.channel).
					Msg("sink write failed")
			}
		case <-s.sink.Done():
			b.dropSubscription(s)
			return
		case <-s.stop:
			return
		}
	}
}

// dropSubscription removes s from its agent if it is still the registered
// subscription for that channel.
func (b *Bus) dropSubscription(s *subscription) {
	b.mu.Lock()
	if a, ok := b.agents.get(s.agentID); ok && a.subs[s.channel] == s {
		delete(a.subs, s.channel)
	}
	b.mu.Unlock()
	s.close()
}

// EventType names a stream event.
type EventType string

const (
	EventMessage             EventType = "message"
	EventAgentJoined         EventType = "agent_joined"
	EventProjectNotification EventType = "project_notification"
)

// Event is delivered to stream listeners.
type Event struct {
	Type         EventType            `json:"type"`
	Channel      string               `json:"channel,omitempty"`
	Message      *Message             `json:"message,omitempty"`
	Agent        *AgentInfo           `json:"agent,omitempty"`
	Notification *ProjectNotification `json:"notification,omitempty"`
}

type listener struct {
	channel string // "" receives every channel
	ch      chan Event
}

// streamHub is the in-memory pub/sub behind Stream. Message events are
// filtered by channel; join and project events reach every listener.
type streamHub struct {
	mu        sync.RWMutex
	listeners map[string]*listener
	closed    bool
	logger    zerolog.Logger
}

func newStreamHub(logger zerolog.Logger) *streamHub {
	return &streamHub{
		listeners: make(map[string]*listener),
		logger:    logger,
	}
}

// subscribe registers a listener that is removed when ctx is cancelled.
func (h *streamHub) subscribe(ctx context.Context, channel string) (<-chan Event, string) {
	id := uuid.New().String()
	ch := make(chan Event, queueSize)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, id
	}
	h.listeners[id] = &listener{channel: channel, ch: ch}
	h.mu.Unlock()

	metrics.OpenStreams.Inc()
	h.logger.Debug().Str("stream_id", id).Str("channel", channel).Msg("stream opened")

	go func() {
		<-ctx.Done()
		h.unsubscribe(id)
	}()

	return ch, id
}

// publish never blocks: listeners with a full buffer miss the event.
func (h *streamHub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, l := range h.listeners {
		if ev.Type == EventMessage && l.channel != "" && l.channel != ev.Channel {
			continue
		}
		select {
		case l.ch <- ev:
		default:
			metrics.FanoutDropped.WithLabelValues("stream").Inc()
			h.logger.Debug().Str("stream_id", id).Str("event", string(ev.Type)).Msg("dropped event for slow stream")
		}
	}
}

func (h *streamHub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.listeners[id]
	if !ok {
		return
	}
	delete(h.listeners, id)
	close(l.ch)
	metrics.OpenStreams.Dec()
	h.logger.Debug().Str("stream_id", id).Msg("stream closed")
}

func (h *streamHub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *streamHub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, l := range h.listeners {
		close(l.ch)
		delete(h.listeners, id)
		metrics.OpenStreams.Dec()
	}
	h.closed = true
}
