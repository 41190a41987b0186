package livechat

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollaborationIntent(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"let's work together", true},
		{"Anyone want to COLLABORATE?", true},
		{"looking for a collaborator", true},
		{"we could team up", true},
		{"pair programming later", true},
		{"repairing the parser", true},
		{"shipping the release", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, hasCollaborationIntent(tt.body))
		})
	}
}

func TestParseStatusUpdate(t *testing.T) {
	tests := []struct {
		name         string
		meta         map[string]any
		wantNil      bool
		wantProgress *int
		wantETA      string
	}{
		{name: "no metadata", meta: map[string]any{}, wantNil: true},
		{name: "skill only", meta: map[string]any{"skill": "x"}, wantNil: true},
		{name: "status only", meta: map[string]any{"status": "dev"}, wantNil: true},
		{name: "non-string skill", meta: map[string]any{"skill": 7, "status": "dev"}, wantNil: true},
		{name: "blank skill", meta: map[string]any{"skill": "  ", "status": "dev"}, wantNil: true},
		{name: "without progress", meta: map[string]any{"skill": "x", "status": "dev"}},
		{name: "int progress", meta: map[string]any{"skill": "x", "status": "dev", "progress": 40}, wantProgress: ptr(40)},
		{name: "float progress", meta: map[string]any{"skill": "x", "status": "dev", "progress": 39.6}, wantProgress: ptr(40)},
		{name: "json number", meta: map[string]any{"skill": "x", "status": "dev", "progress": json.Number("75")}, wantProgress: ptr(75)},
		{name: "string progress", meta: map[string]any{"skill": "x", "status": "dev", "progress": "12"}, wantProgress: ptr(12)},
		{name: "clamped high", meta: map[string]any{"skill": "x", "status": "dev", "progress": 250}, wantProgress: ptr(100)},
		{name: "clamped low", meta: map[string]any{"skill": "x", "status": "dev", "progress": -3}, wantProgress: ptr(0)},
		{name: "garbage progress", meta: map[string]any{"skill": "x", "status": "dev", "progress": []int{1}}},
		{name: "eta", meta: map[string]any{"skill": "x", "status": "dev", "eta": "2 days"}, wantETA: "2 days"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := parseStatusUpdate(tt.meta)
			if tt.wantNil {
				assert.Nil(t, u)
				return
			}
			require.NotNil(t, u)
			assert.Equal(t, "x", u.skill)
			assert.Equal(t, "dev", u.status)
			assert.Equal(t, tt.wantProgress, u.progress)
			assert.Equal(t, tt.wantETA, u.eta)
		})
	}
}

func TestDetectorRunsAllChecks(t *testing.T) {
	d := detector{skillBaseURL: DefaultSkillBaseURL}
	m := newMessage(KindMessage, GeneralChannel, "let's collaborate on @alice/summarizer", time.Now(), map[string]any{
		"skill":  "summarizer",
		"status": "review",
	})

	det := d.inspect(m)

	assert.True(t, det.Collaboration)
	assert.True(t, det.ProjectUpdate())
	require.Len(t, det.Mentions, 1)
	assert.Equal(t, DefaultSkillBaseURL+"/alice/summarizer", det.Mentions[0].URL)
	assert.Equal(t, det.Mentions, m.Metadata[MetaSkillLinks])
}

func TestDetectorLeavesPlainMessagesAlone(t *testing.T) {
	d := detector{skillBaseURL: DefaultSkillBaseURL}
	m := newMessage(KindMessage, GeneralChannel, "email me at bob@example.com/docs", time.Now(), nil)

	det := d.inspect(m)

	assert.False(t, det.Collaboration)
	assert.False(t, det.ProjectUpdate())
	// "@example" followed by ".com" is not an author/skill pair.
	assert.Empty(t, det.Mentions)
	assert.NotContains(t, m.Metadata, MetaSkillLinks)
}

func ptr(v int) *int { return &v }
