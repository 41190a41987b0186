package livechat

import (
	"slices"
	"strings"
	"time"

	"github.com/clawhub-core/clawhub/internal/crypto"
)

const (
	ReasonSkillMatch     = "skill_match"
	ReasonRecentActivity = "recent_activity"

	// RequestStatusOpen is the status of every new collaboration request.
	RequestStatusOpen = "open"

	maxSuggestions       = 3
	recentActivityWindow = 24 * time.Hour
)

// CollaborationRequest records a message that asked for collaborators.
type CollaborationRequest struct {
	ID        string         `json:"id"`
	AgentName string         `json:"agent"`
	AgentID   string         `json:"agentId"`
	Body      string         `json:"message"`
	Channel   string         `json:"channel"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
	Status    string         `json:"status"`
	Responses []string       `json:"responses"`
}

func newCollaborationRequest(m *Message) *CollaborationRequest {
	return &CollaborationRequest{
		ID:        crypto.NewUUIDv7().String(),
		AgentName: m.AgentName,
		AgentID:   m.AgentID,
		Body:      m.Body,
		Channel:   m.Channel,
		Timestamp: m.Timestamp,
		Metadata:  m.Metadata,
		Status:    RequestStatusOpen,
		Responses: []string{},
	}
}

// Suggestion is a candidate collaborator for a request.
type Suggestion struct {
	Username    string    `json:"username"`
	AgentID     string    `json:"agentId"`
	Skills      []string  `json:"skills"`
	LastSeen    time.Time `json:"lastSeen"`
	MatchReason string    `json:"matchReason"`
}

// findSuggestions walks the registry in enrollment order and returns up to
// three channel members, other than the requester, whose capabilities
// appear in the request body or who sent a message in the last day.
func findSuggestions(reg *registry, req *CollaborationRequest, now time.Time) []Suggestion {
	body := strings.ToLower(req.Body)
	var out []Suggestion

	reg.each(func(a *agent) bool {
		if a.id == req.AgentID {
			return true
		}
		if _, member := a.activeChannels[req.Channel]; !member {
			return true
		}

		skillMatch := slices.ContainsFunc(a.capabilities, func(c string) bool {
			return c != "" && strings.Contains(body, strings.ToLower(c))
		})
		recent := !a.lastMessageAt.IsZero() && now.Sub(a.lastMessageAt) < recentActivityWindow
		if !skillMatch && !recent {
			return true
		}

		reason := ReasonRecentActivity
		if skillMatch {
			reason = ReasonSkillMatch
		}
		out = append(out, Suggestion{
			Username:    a.displayName,
			AgentID:     a.id,
			Skills:      slices.Clone(a.capabilities),
			LastSeen:    a.lastSeen,
			MatchReason: reason,
		})
		return len(out) < maxSuggestions
	})

	return out
}

// suggestionMessage builds the system message announcing suggestions.
func suggestionMessage(req *CollaborationRequest, suggestions []Suggestion, ts time.Time) *Message {
	names := make([]string, len(suggestions))
	for i, s := range suggestions {
		names[i] = s.Username
	}
	body := "Potential collaborators for " + req.AgentName + ": " + strings.Join(names, ", ")
	return newMessage(KindSystem, req.Channel, body, ts, map[string]any{
		"type":        "collaboration_suggestion",
		"request_id":  req.ID,
		"suggestions": suggestions,
	})
}
