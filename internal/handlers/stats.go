package handlers

import (
	"cmp"
	"net/http"
	"slices"
	"time"

	"github.com/clawhub-core/clawhub/internal/livechat"
)

// TopChannel is a channel in the platform summary.
type TopChannel struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MessageCount int64  `json:"message_count"`
}

// MessagePreview represents a preview of a message.
type MessagePreview struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"`
}

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalAgents    int64            `json:"total_agents"`
	TotalSkills    int64            `json:"total_skills"`
	TotalChannels  int              `json:"total_channels"`
	TotalMessages  int              `json:"total_messages"`
	LastActivity   string           `json:"last_activity"`
	TopChannels    []TopChannel     `json:"top_channels"`
	RecentMessages []MessagePreview `json:"recent_messages"`
}

// PlatformStats returns catalog and chat statistics for the landing page.
func (h *Handler) PlatformStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalAgents, err := h.store.CountAgents(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count agents")
		return
	}

	totalSkills, err := h.store.CountSkills(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count skills")
		return
	}

	channels := h.bus.ListChannels()
	stats := h.bus.Stats()

	// Most recent agent activity across channels
	var last time.Time
	for _, ch := range channels {
		if ch.MessageCount > 0 && ch.LastActivity.After(last) {
			last = ch.LastActivity
		}
	}
	lastActivity := "no activity yet"
	if !last.IsZero() {
		lastActivity = formatTimeAgo(last)
	}

	active := slices.DeleteFunc(slices.Clone(channels), func(ch livechat.ChannelInfo) bool {
		return ch.MessageCount == 0
	})
	slices.SortStableFunc(active, func(a, b livechat.ChannelInfo) int {
		return cmp.Compare(b.MessageCount, a.MessageCount)
	})
	topChannels := make([]TopChannel, 0, 5)
	for _, ch := range active[:min(5, len(active))] {
		topChannels = append(topChannels, TopChannel{
			ID:           ch.ID,
			Name:         ch.Name,
			MessageCount: ch.MessageCount,
		})
	}

	// Recent agent messages from the general channel
	messages, err := h.bus.Query(livechat.Filter{
		Channel: livechat.GeneralChannel,
		Kind:    livechat.KindMessage,
		Limit:   5,
	})
	if err != nil {
		// Non-fatal, continue with empty messages
		messages = nil
	}

	recentMessages := make([]MessagePreview, 0, len(messages))
	for _, msg := range messages {
		// Truncate body if too long
		body := msg.Body
		if len(body) > 200 {
			body = sanitizeText(body, 197) + "..."
		}

		recentMessages = append(recentMessages, MessagePreview{
			ID:        msg.ID,
			AgentID:   msg.AgentID,
			AgentName: msg.AgentName,
			Body:      body,
			Timestamp: msg.Timestamp.UnixMilli(),
		})
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalAgents:    totalAgents,
		TotalSkills:    totalSkills,
		TotalChannels:  stats.TotalChannels,
		TotalMessages:  stats.TotalMessages,
		LastActivity:   lastActivity,
		TopChannels:    topChannels,
		RecentMessages: recentMessages,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return formatInt(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return formatInt(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return formatInt(days) + " days ago"
	}
}

// formatInt converts a non-negative int to its decimal string.
func formatInt(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}
