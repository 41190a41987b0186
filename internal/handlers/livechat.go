package handlers

import (
	"net/http"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/livechat"
	"github.com/clawhub-core/clawhub/internal/models"
)

const (
	// maxJoinSkills caps how many published skills are loaded on join.
	maxJoinSkills  = 100
	maxMessageSize = 4000
	// enhancedSkillScan bounds the catalog read for enhanced stats.
	enhancedSkillScan = 1000
)

// JoinResponse is the enrollment result plus the catalog data it was built from.
type JoinResponse struct {
	livechat.EnrollResult
	AgentSkills       []string `json:"agent_skills"`
	AgentCapabilities []string `json:"agent_capabilities"`
}

// Join enrolls the authenticated agent using its published skills.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	skills, err := h.store.ListSkills(r.Context(), agent.Username, maxJoinSkills)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load published skills")
		return
	}
	names, capabilities := skillProfile(skills)

	result := h.bus.Enroll(agent.ID.String(), agent.Username, names, capabilities)
	h.JSON(w, http.StatusOK, JoinResponse{
		EnrollResult:      result,
		AgentSkills:       names,
		AgentCapabilities: result.Agent.Capabilities,
	})
}

// skillProfile returns skill names and their capabilities, deduplicated in
// first-seen order.
func skillProfile(skills []models.Skill) (names, capabilities []string) {
	names = make([]string, 0, len(skills))
	capabilities = []string{}
	seen := make(map[string]bool)
	for _, s := range skills {
		names = append(names, s.Name)
		for _, c := range s.Capabilities {
			if !seen[c] {
				seen[c] = true
				capabilities = append(capabilities, c)
			}
		}
	}
	return names, capabilities
}

// Send posts a message as the authenticated agent.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req livechat.SendRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Body = sanitizeText(req.Body, maxMessageSize)
	if req.Body == "" {
		h.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	result, err := h.bus.Send(agent.ID.String(), req)
	if err != nil {
		h.BusError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, result)
}

// MessagesResponse is a page of LiveChat history.
type MessagesResponse struct {
	Messages     []livechat.Message `json:"messages"`
	HasMore      bool               `json:"has_more"`
	ObserverMode bool               `json:"observer_mode,omitempty"`
}

// Messages queries LiveChat history.
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	resp, err := h.queryMessages(r)
	if err != nil {
		h.BusError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, resp)
}

func (h *Handler) queryMessages(r *http.Request) (*MessagesResponse, error) {
	f, err := livechat.ParseFilter(r.URL.Query())
	if err != nil {
		return nil, err
	}
	messages, err := h.bus.Query(f)
	if err != nil {
		return nil, err
	}
	limit := f.Limit
	if limit == 0 {
		limit = livechat.DefaultQueryLimit
	}
	return &MessagesResponse{
		Messages: messages,
		HasMore:  len(messages) == limit,
	}, nil
}

// LiveChatStats reports bus-wide counters.
func (h *Handler) LiveChatStats(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.bus.Stats())
}

// SkillSummary names a catalog skill in enhanced stats.
type SkillSummary struct {
	Name      string `json:"name"`
	Author    string `json:"author"`
	CreatedAt string `json:"createdAt"`
}

// EnhancedStatsResponse combines catalog and chat activity.
type EnhancedStatsResponse struct {
	TotalSkills       int             `json:"totalSkills"`
	MostActiveChannel livechat.Leader `json:"mostActiveChannel"`
	TopCollaborator   livechat.Leader `json:"topCollaborator"`
	NewestSkill       SkillSummary    `json:"newestSkill"`
}

// EnhancedStats reports the busiest channel and sender next to catalog data.
func (h *Handler) EnhancedStats(w http.ResponseWriter, r *http.Request) {
	skills, err := h.store.ListSkills(r.Context(), "", enhancedSkillScan)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load skills")
		return
	}

	newest := SkillSummary{Name: "None", Author: "Unknown"}
	if len(skills) > 0 {
		newest = SkillSummary{
			Name:      skills[0].Name,
			Author:    skills[0].Author,
			CreatedAt: skills[0].CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		}
	}

	activity := h.bus.Activity()
	h.JSON(w, http.StatusOK, EnhancedStatsResponse{
		TotalSkills:       len(skills),
		MostActiveChannel: activity.MostActiveChannel,
		TopCollaborator:   activity.TopCollaborator,
		NewestSkill:       newest,
	})
}

// Projects lists tracked skill projects.
func (h *Handler) Projects(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"projects": h.bus.ListProjects()})
}

// Collaborations lists collaboration requests.
func (h *Handler) Collaborations(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"requests": h.bus.ListCollaborationRequests()})
}

// Agents lists enrolled agents with their online flag.
func (h *Handler) Agents(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]any{"agents": h.bus.Agents()})
}
