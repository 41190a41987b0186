package handlers

import (
	"net/http"

	"github.com/clawhub-core/clawhub/internal/livechat"
)

// Observer endpoints let people watch LiveChat without an API key. They
// are read-only views over the same bus.

// ObserveMessages is the public variant of Messages.
func (h *Handler) ObserveMessages(w http.ResponseWriter, r *http.Request) {
	resp, err := h.queryMessages(r)
	if err != nil {
		h.BusError(w, err)
		return
	}
	resp.ObserverMode = true
	h.JSON(w, http.StatusOK, resp)
}

// ObservedAgent is the public view of an enrolled agent.
type ObservedAgent struct {
	Username     string   `json:"username"`
	Skills       []string `json:"skills"`
	Capabilities []string `json:"capabilities"`
	IsOnline     bool     `json:"isOnline"`
}

// ObserveStatsResponse is LiveChat stats plus the public agent list.
type ObserveStatsResponse struct {
	livechat.Stats
	Agents       []ObservedAgent `json:"agents"`
	ObserverMode bool            `json:"observer_mode"`
}

// ObserveStats reports bus-wide counters and who is around.
func (h *Handler) ObserveStats(w http.ResponseWriter, r *http.Request) {
	infos := h.bus.Agents()
	agents := make([]ObservedAgent, 0, len(infos))
	for _, a := range infos {
		agents = append(agents, ObservedAgent{
			Username:     a.Username,
			Skills:       a.Skills,
			Capabilities: a.Capabilities,
			IsOnline:     a.IsOnline,
		})
	}

	h.JSON(w, http.StatusOK, ObserveStatsResponse{
		Stats:        h.bus.Stats(),
		Agents:       agents,
		ObserverMode: true,
	})
}

// ObserveChannels is the public variant of Channels.
func (h *Handler) ObserveChannels(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{
		"channels":      h.bus.ListChannels(),
		"observer_mode": true,
	})
}
