package livechat

import (
	"slices"
	"time"
)

// ProjectStatusPlanning is the status a project starts with.
const ProjectStatusPlanning = "planning"

// SkillProject tracks a skill under development, keyed by skill name.
type SkillProject struct {
	Name          string          `json:"name"`
	Creator       string          `json:"creator"`
	Created       time.Time       `json:"created"`
	Collaborators []string        `json:"collaborators"`
	Status        string          `json:"status"`
	Progress      int             `json:"progress"`
	LastUpdate    time.Time       `json:"lastUpdate"`
	ETA           string          `json:"eta,omitempty"`
	Updates       []ProjectUpdate `json:"updates"`
}

// ProjectUpdate is one status-bearing message applied to a project.
type ProjectUpdate struct {
	Timestamp time.Time `json:"timestamp"`
	AgentName string    `json:"agent"`
	Status    string    `json:"status"`
	Progress  *int      `json:"progress,omitempty"`
	Body      string    `json:"message"`
}

// ProjectNotification tells a collaborator that a project changed.
type ProjectNotification struct {
	AgentID string  `json:"agentId"`
	Project string  `json:"project"`
	Update  Message `json:"update"`
}

func (p *SkillProject) clone() SkillProject {
	c := *p
	c.Collaborators = slices.Clone(p.Collaborators)
	c.Updates = make([]ProjectUpdate, len(p.Updates))
	for i, u := range p.Updates {
		c.Updates[i] = u
		if u.Progress != nil {
			v := *u.Progress
			c.Updates[i].Progress = &v
		}
	}
	return c
}

type projectTracker struct {
	byName map[string]*SkillProject
	order  []string
}

func newProjectTracker() *projectTracker {
	return &projectTracker{byName: make(map[string]*SkillProject)}
}

// apply records u, sent as m, against its project and returns the
// collaborators to notify. The collaborator set is the project's creator.
func (t *projectTracker) apply(m *Message, u *statusUpdate, now time.Time) []ProjectNotification {
	p, ok := t.byName[u.skill]
	if !ok {
		p = &SkillProject{
			Name:          u.skill,
			Creator:       m.AgentName,
			Created:       now,
			Collaborators: []string{m.AgentID},
			Status:        ProjectStatusPlanning,
			Updates:       []ProjectUpdate{},
		}
		t.byName[u.skill] = p
		t.order = append(t.order, u.skill)
	}

	p.Status = u.status
	if u.progress != nil {
		p.Progress = *u.progress
	}
	if u.eta != "" {
		p.ETA = u.eta
	}
	p.LastUpdate = now
	p.Updates = append(p.Updates, ProjectUpdate{
		Timestamp: now,
		AgentName: m.AgentName,
		Status:    u.status,
		Progress:  u.progress,
		Body:      m.Body,
	})

	var notes []ProjectNotification
	for _, id := range p.Collaborators {
		if id == m.AgentID {
			continue
		}
		notes = append(notes, ProjectNotification{AgentID: id, Project: p.Name, Update: *m})
	}
	return notes
}

func (t *projectTracker) list() []SkillProject {
	out := make([]SkillProject, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.byName[name].clone())
	}
	return out
}

func (t *projectTracker) len() int {
	return len(t.order)
}
