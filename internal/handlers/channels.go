package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clawhub-core/clawhub/internal/livechat"
)

// Channels lists LiveChat channels.
func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"channels": h.bus.ListChannels()})
}

// ChannelsDetailed lists channels with recent messages and members.
func (h *Handler) ChannelsDetailed(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"channels": h.bus.ChannelDetails()})
}

// ChannelStats reports one channel.
func (h *Handler) ChannelStats(w http.ResponseWriter, r *http.Request) {
	stats, ok := h.bus.GetChannelStats(chi.URLParam(r, "id"))
	if !ok {
		h.Error(w, http.StatusNotFound, livechat.ErrChannelNotFound.Error())
		return
	}
	h.JSON(w, http.StatusOK, stats)
}
