package livechat

import (
	"container/list"
	"slices"
	"time"
)

const (
	// activeWindow is how recently an agent must have been seen to count
	// as online.
	activeWindow = 30 * time.Minute

	// DefaultPresenceHorizon is how long an idle agent without live
	// subscriptions stays enrolled before the sweep removes it.
	DefaultPresenceHorizon = 24 * time.Hour
)

// agent is the presence entry for an enrolled agent.
type agent struct {
	id            string
	displayName   string
	joinedAt      time.Time
	lastSeen      time.Time
	lastMessageAt time.Time // zero until the first send
	skills        []string
	capabilities  []string

	activeChannels map[string]struct{}
	subs           map[string]*subscription // channel id -> live sink
}

func (a *agent) isActive(now time.Time) bool {
	return now.Sub(a.lastSeen) <= activeWindow
}

func (a *agent) hasOpenSubscription() bool {
	for _, s := range a.subs {
		if s.open() {
			return true
		}
	}
	return false
}

// AgentInfo is a read-only snapshot of a presence entry.
type AgentInfo struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Skills         []string  `json:"skills"`
	Capabilities   []string  `json:"capabilities"`
	JoinedAt       time.Time `json:"joinedAt"`
	LastSeen       time.Time `json:"lastSeen"`
	ActiveChannels []string  `json:"activeChannels"`
	IsOnline       bool      `json:"isOnline"`
}

func (a *agent) info(now time.Time, dir *directory) AgentInfo {
	channels := make([]string, 0, len(a.activeChannels))
	for _, ch := range dir.order {
		if _, ok := a.activeChannels[ch.id]; ok {
			channels = append(channels, ch.id)
		}
	}
	return AgentInfo{
		ID:             a.id,
		Username:       a.displayName,
		Skills:         slices.Clone(a.skills),
		Capabilities:   slices.Clone(a.capabilities),
		JoinedAt:       a.joinedAt,
		LastSeen:       a.lastSeen,
		ActiveChannels: channels,
		IsOnline:       a.isActive(now),
	}
}

// registry holds presence entries in enrollment order. Iteration order is
// part of the collaboration matcher contract.
type registry struct {
	byID  map[string]*list.Element
	order *list.List // *agent values, oldest enrollment at front
}

func newRegistry() *registry {
	return &registry{
		byID:  make(map[string]*list.Element),
		order: list.New(),
	}
}

func (r *registry) get(id string) (*agent, bool) {
	elem, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	a, _ := elem.Value.(*agent)
	return a, a != nil
}

// add appends a new entry. Re-enrollment mutates the existing entry in
// place so its position is kept.
func (r *registry) add(a *agent) {
	r.byID[a.id] = r.order.PushBack(a)
}

func (r *registry) remove(id string) {
	elem, ok := r.byID[id]
	if !ok {
		return
	}
	r.order.Remove(elem)
	delete(r.byID, id)
}

func (r *registry) len() int {
	return len(r.byID)
}

// each visits entries in enrollment order until fn returns false.
func (r *registry) each(fn func(*agent) bool) {
	for elem := r.order.Front(); elem != nil; {
		next := elem.Next()
		a, _ := elem.Value.(*agent)
		if a != nil && !fn(a) {
			return
		}
		elem = next
	}
}

func (r *registry) activeCount(now time.Time) int {
	n := 0
	r.each(func(a *agent) bool {
		if a.isActive(now) {
			n++
		}
		return true
	})
	return n
}

// dedupe returns values with empty strings and repeats removed, keeping
// first-seen order.
func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
