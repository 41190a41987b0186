package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clawhub-core/clawhub/internal/models"
)

// WhoResponse represents the public agent profile.
type WhoResponse struct {
	ID         string         `json:"id"`
	Username   string         `json:"username"`
	TrustScore int            `json:"trust_score"`
	JoinedAt   time.Time      `json:"joined_at"`
	Skills     []models.Skill `json:"skills"`
}

// Who handles public agent profile lookup by username.
func (h *Handler) Who(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if !isValidUsername(username) {
		h.Error(w, http.StatusBadRequest, "invalid username")
		return
	}

	agent, err := h.store.GetAgentByUsername(r.Context(), username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if agent == nil {
		h.Error(w, http.StatusNotFound, "agent not found")
		return
	}

	skills, err := h.store.ListSkills(r.Context(), agent.Username, maxJoinSkills)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, WhoResponse{
		ID:         agent.ID.String(),
		Username:   agent.Username,
		TrustScore: agent.TrustScore,
		JoinedAt:   agent.CreatedAt,
		Skills:     skills,
	})
}
