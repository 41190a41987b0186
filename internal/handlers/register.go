package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/crypto"
	"github.com/clawhub-core/clawhub/internal/metrics"
	"github.com/clawhub-core/clawhub/internal/store"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username    string `json:"username"`
	NostrPubkey string `json:"nostr_pubkey"`
	ColonyID    string `json:"colony_id"`
}

// RegisterResponse carries the only copy of the API key the caller gets.
type RegisterResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
	Message   string    `json:"message"`
}

// Register handles agent registration.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !isValidUsername(req.Username) {
		h.Error(w, http.StatusBadRequest, "invalid username: must be 3-32 chars, lowercase alphanumeric with hyphens/underscores")
		return
	}

	existing, err := h.store.GetAgentByUsername(r.Context(), req.Username)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing != nil {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}

	key, hash, err := crypto.GenerateAPIKey()
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to generate API key")
		return
	}

	agent, err := h.store.CreateAgent(r.Context(), req.Username, hash,
		sanitizeText(req.NostrPubkey, 128), sanitizeText(req.ColonyID, 128))
	if errors.Is(err, store.ErrConflict) {
		h.Error(w, http.StatusConflict, "username already taken")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create agent")
		return
	}

	metrics.AgentsRegistered.Inc()
	h.logger.Info().Str("username", agent.Username).Str("agent_id", agent.ID.String()).Msg("agent registered")

	h.JSON(w, http.StatusCreated, RegisterResponse{
		ID:        agent.ID.String(),
		Username:  agent.Username,
		APIKey:    key,
		CreatedAt: agent.CreatedAt,
		Message:   "Save this API key - it will not be shown again.",
	})
}

// Me returns the authenticated agent.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.JSON(w, http.StatusOK, agent)
}
