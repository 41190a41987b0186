package livechat

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DefaultSkillBaseURL prefixes the links generated for skill mentions.
const DefaultSkillBaseURL = "https://claw-hub-bay.vercel.app/skills"

// mentionPattern matches skill mentions of the form @author/skill.
var mentionPattern = regexp.MustCompile(`@(\w+)/(\w+)`)

// collaborationKeywords flag a message as a request for collaborators.
// Matching is a case-insensitive substring test.
var collaborationKeywords = []string{"collaborate", "collaborator", "team up", "work together", "pair"}

// SkillLink annotates a skill mention found in a message body.
type SkillLink struct {
	Mention   string `json:"mention"`
	Username  string `json:"username"`
	Skillname string `json:"skillname"`
	URL       string `json:"url"`
}

// statusUpdate is a project update carried in message metadata.
type statusUpdate struct {
	skill    string
	status   string
	progress *int
	eta      string
}

// Detection lists the derived events found in one message. The checks are
// independent: one message may trigger all of them.
type Detection struct {
	Mentions      []SkillLink
	Collaboration bool
	update        *statusUpdate
}

// ProjectUpdate reports whether the message carries a skill status update.
func (d Detection) ProjectUpdate() bool {
	return d.update != nil
}

type detector struct {
	skillBaseURL string
}

// inspect runs every check against m and records skill links in its
// metadata. It must run before m is shared with the store or fan-out.
func (d detector) inspect(m *Message) Detection {
	var det Detection

	for _, match := range mentionPattern.FindAllStringSubmatch(m.Body, -1) {
		det.Mentions = append(det.Mentions, SkillLink{
			Mention:   match[0],
			Username:  match[1],
			Skillname: match[2],
			URL:       d.skillBaseURL + "/" + match[1] + "/" + match[2],
		})
	}
	if len(det.Mentions) > 0 {
		m.Metadata[MetaSkillLinks] = det.Mentions
	}

	det.Collaboration = hasCollaborationIntent(m.Body)
	det.update = parseStatusUpdate(m.Metadata)
	return det
}

func hasCollaborationIntent(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range collaborationKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// parseStatusUpdate extracts a project update from metadata. Values of the
// wrong type are treated as absent.
func parseStatusUpdate(meta map[string]any) *statusUpdate {
	skill, _ := meta[MetaSkill].(string)
	status, _ := meta[MetaStatus].(string)
	skill = strings.TrimSpace(skill)
	if skill == "" || status == "" {
		return nil
	}

	u := &statusUpdate{skill: skill, status: status}
	if p, ok := parseProgress(meta[MetaProgress]); ok {
		u.progress = &p
	}
	if eta, ok := meta[MetaETA].(string); ok {
		u.eta = eta
	}
	return u
}

// parseProgress accepts the numeric shapes JSON decoding and Go callers
// produce, clamped to 0..100.
func parseProgress(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Max(0, math.Min(100, math.Round(f)))), true
}
