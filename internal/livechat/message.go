package livechat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Kind distinguishes agent-authored messages from bus announcements.
type Kind string

const (
	KindSystem  Kind = "system"
	KindMessage Kind = "message"
)

// Valid reports whether k is a known message kind.
func (k Kind) Valid() bool {
	return k == KindSystem || k == KindMessage
}

// Metadata keys read or written by the bus.
const (
	MetaSkill             = "skill"
	MetaStatus            = "status"
	MetaProgress          = "progress"
	MetaETA               = "eta"
	MetaSkillLinks        = "skillLinks"
	MetaAgentSkills       = "agent_skills"
	MetaAgentCapabilities = "agent_capabilities"
)

// Message is one entry of the chat log. It is never modified after it has
// been appended; detection annotations are written before that point.
type Message struct {
	ID        string         `json:"id"`              // ULID
	Kind      Kind           `json:"type"`
	AgentName string         `json:"agent,omitempty"` // sender display name
	AgentID   string         `json:"agentId,omitempty"`
	Body      string         `json:"message"`
	Channel   string         `json:"channel"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

func newMessage(kind Kind, channel, body string, ts time.Time, meta map[string]any) *Message {
	if meta == nil {
		meta = make(map[string]any)
	}
	return &Message{
		ID:        ulid.Make().String(),
		Kind:      kind,
		Channel:   channel,
		Body:      body,
		Timestamp: ts,
		Metadata:  meta,
	}
}

// skillName returns the metadata skill field when it is a string.
func (m *Message) skillName() string {
	s, _ := m.Metadata[MetaSkill].(string)
	return s
}

// copyMetadata returns a shallow copy so callers cannot mutate stored
// messages through the map they passed in.
func copyMetadata(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta)+3)
	for k, v := range meta {
		out[k] = v
	}
	return out
}
