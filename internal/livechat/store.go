package livechat

import (
	"slices"
	"strings"
	"time"
)

const (
	// highWaterMark is the resident count above which the log is pruned.
	highWaterMark = 10000
	// lowWaterMark is how many of the most recent messages survive a prune.
	lowWaterMark = 8000

	// DefaultQueryLimit applies when a Filter leaves Limit at zero.
	DefaultQueryLimit = 50
)

// messageLog is the append-only, capacity-bounded chat history shared by
// all channels. Callers hold the Bus lock.
type messageLog struct {
	msgs []*Message
	high int
	low  int
}

func newMessageLog(high, low int) *messageLog {
	return &messageLog{high: high, low: low}
}

// append adds m to the end of the log. Once the log holds more than the
// high-water mark it is truncated to the low-water mark most recent
// messages; the number of dropped messages is returned.
func (l *messageLog) append(m *Message) int {
	l.msgs = append(l.msgs, m)
	if len(l.msgs) <= l.high {
		return 0
	}

	pruned := len(l.msgs) - l.low
	kept := make([]*Message, l.low, l.high+1)
	copy(kept, l.msgs[pruned:])
	l.msgs = kept
	return pruned
}

func (l *messageLog) len() int {
	return len(l.msgs)
}

// query returns the Limit most recent messages matching f, oldest first.
func (l *messageLog) query(f Filter) []Message {
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	// Walk newest to oldest so that equal timestamps keep the most recently
	// appended message first through the stable sort below.
	matched := make([]*Message, 0, min(limit, len(l.msgs)))
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if f.matches(l.msgs[i]) {
			matched = append(matched, l.msgs[i])
		}
	}

	slices.SortStableFunc(matched, func(a, b *Message) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	slices.Reverse(matched)

	out := make([]Message, len(matched))
	for i, m := range matched {
		out[i] = *m
	}
	return out
}

// activeSenders counts distinct sender ids in channel after cutoff.
func (l *messageLog) activeSenders(channel string, cutoff time.Time) int {
	seen := make(map[string]struct{})
	for _, m := range l.msgs {
		if m.Channel != channel || m.AgentID == "" || !m.Timestamp.After(cutoff) {
			continue
		}
		seen[m.AgentID] = struct{}{}
	}
	return len(seen)
}

// Filter selects messages for Query. Zero-valued fields are ignored.
// Predicates are applied conjunctively.
type Filter struct {
	Channel string
	Since   time.Time // strictly after
	Agent   string    // sender display name
	Text    string    // substring of body or metadata skill
	Kind    Kind
	Limit   int // defaults to 50
}

func (f Filter) matches(m *Message) bool {
	if f.Channel != "" && m.Channel != f.Channel {
		return false
	}
	if !f.Since.IsZero() && !m.Timestamp.After(f.Since) {
		return false
	}
	if f.Agent != "" && m.AgentName != f.Agent {
		return false
	}
	if f.Text != "" && !strings.Contains(m.Body, f.Text) && !strings.Contains(m.skillName(), f.Text) {
		return false
	}
	if f.Kind != "" && m.Kind != f.Kind {
		return false
	}
	return true
}
