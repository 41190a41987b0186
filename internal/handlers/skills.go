package handlers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/clawhub-core/clawhub/internal/api/middleware"
	"github.com/clawhub-core/clawhub/internal/metrics"
	"github.com/clawhub-core/clawhub/internal/models"
	"github.com/clawhub-core/clawhub/internal/store"
)

var (
	skillNameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	versionRegex   = regexp.MustCompile(`^\d+\.\d+\.\d+([-+][0-9A-Za-z.-]+)?$`)
)

const maxCapabilities = 32

// PublishSkillRequest represents the skill publish body.
type PublishSkillRequest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Capabilities []string `json:"capabilities"`
}

// SkillResponse wraps a published skill.
type SkillResponse struct {
	Message string        `json:"message"`
	Skill   *models.Skill `json:"skill"`
}

// SkillListResponse lists catalog skills.
type SkillListResponse struct {
	Skills []models.Skill `json:"skills"`
	Count  int            `json:"count"`
}

// PublishSkill adds a skill under the authenticated agent's namespace.
func (h *Handler) PublishSkill(w http.ResponseWriter, r *http.Request) {
	agent := middleware.GetAgentFromContext(r.Context())
	if agent == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req PublishSkillRequest
	if err := decodeJSON(r, &req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !skillNameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "invalid name: lowercase alphanumeric with hyphens/underscores, max 64 chars")
		return
	}
	if !versionRegex.MatchString(req.Version) {
		h.Error(w, http.StatusBadRequest, "invalid version: must be semver")
		return
	}
	description := sanitizeText(req.Description, 1000)
	if description == "" {
		h.Error(w, http.StatusBadRequest, "description is required")
		return
	}
	if len(req.Capabilities) > maxCapabilities {
		h.Error(w, http.StatusBadRequest, "too many capabilities (max "+strconv.Itoa(maxCapabilities)+")")
		return
	}

	capabilities := make([]string, 0, len(req.Capabilities))
	for _, c := range req.Capabilities {
		if c = sanitizeText(c, 64); c != "" {
			capabilities = append(capabilities, c)
		}
	}

	skill, err := h.store.CreateSkill(r.Context(), &models.Skill{
		AuthorID:     agent.ID,
		Author:       agent.Username,
		Name:         req.Name,
		FullName:     models.SkillFullName(agent.Username, req.Name),
		Version:      req.Version,
		Description:  description,
		Category:     sanitizeText(req.Category, 64),
		Capabilities: capabilities,
	})
	if errors.Is(err, store.ErrConflict) {
		h.Error(w, http.StatusConflict, "skill already published")
		return
	}
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to publish skill")
		return
	}

	metrics.SkillsPublished.Inc()
	h.logger.Info().Str("skill", skill.FullName).Str("version", skill.Version).Msg("skill published")

	h.JSON(w, http.StatusCreated, SkillResponse{Message: "Skill published", Skill: skill})
}

// ListSkills lists catalog skills, newest first.
func (h *Handler) ListSkills(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	if limit > 100 {
		limit = 100
	}

	skills, err := h.store.ListSkills(r.Context(), r.URL.Query().Get("author"), limit)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}

	h.JSON(w, http.StatusOK, SkillListResponse{Skills: skills, Count: len(skills)})
}
