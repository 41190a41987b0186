package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/clawhub-core/clawhub/internal/crypto"
	"github.com/clawhub-core/clawhub/internal/models"
	"github.com/clawhub-core/clawhub/internal/store"
)

type contextKey string

const AgentContextKey contextKey = "agent"

// AgentLookup is the slice of the catalog store the auth middleware needs.
type AgentLookup interface {
	GetAgentByAPIKeyHash(ctx context.Context, hash string) (*models.Agent, error)
}

var _ AgentLookup = (store.DataStore)(nil)

// AuthMiddleware resolves Bearer API keys to registered agents.
type AuthMiddleware struct {
	agents AgentLookup
}

// NewAuthMiddleware creates a new auth middleware.
func NewAuthMiddleware(agents AgentLookup) *AuthMiddleware {
	return &AuthMiddleware{agents: agents}
}

// RequireAuth rejects requests without a valid API key and stores the agent
// in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := APIKeyFromRequest(r)
		if key == "" {
			jsonError(w, http.StatusUnauthorized, "missing API key")
			return
		}
		if err := crypto.ValidateAPIKey(key); err != nil {
			jsonError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		agent, err := m.agents.GetAgentByAPIKeyHash(r.Context(), crypto.HashAPIKey(key))
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to verify API key")
			return
		}
		if agent == nil {
			jsonError(w, http.StatusUnauthorized, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), AgentContextKey, agent)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyFromRequest reads the key from "Authorization: Bearer". Browsers
// cannot set headers on EventSource or WebSocket, so GET requests may pass
// it as the api_key query parameter instead.
func APIKeyFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetAgentFromContext retrieves the authenticated agent from the request context.
func GetAgentFromContext(ctx context.Context) *models.Agent {
	agent, ok := ctx.Value(AgentContextKey).(*models.Agent)
	if !ok {
		return nil
	}
	return agent
}
