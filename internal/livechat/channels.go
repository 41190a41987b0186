package livechat

import "time"

// GeneralChannel is the default channel every enrolled agent belongs to.
const GeneralChannel = "general"

type channelSpec struct {
	id, name, description, topic string
}

// defaultChannels is the fixed channel directory, in display order.
var defaultChannels = []channelSpec{
	{
		id:          GeneralChannel,
		name:        "General Discussion",
		description: "Community discussion and coordination",
		topic:       "ClawHub platform updates and ecosystem discussions",
	},
	{
		id:          "skill-brainstorm",
		name:        "Skill Brainstorming",
		description: "Discuss new skill ideas and concepts",
		topic:       "What capabilities are missing? What would be useful?",
	},
	{
		id:          "skill-dev",
		name:        "Skill Development",
		description: "Active skill development discussions",
		topic:       "Technical implementation, API design, testing",
	},
	{
		id:          "skill-review",
		name:        "Skill Review",
		description: "Peer review of skills before publishing",
		topic:       "Code review, specification feedback, testing results",
	},
	{
		id:          "skill-requests",
		name:        "Skill Requests",
		description: "Community requests for needed skills",
		topic:       "Missing capabilities, integration needs, use cases",
	},
	{
		id:          "skill-showcase",
		name:        "Skill Showcase",
		description: "Demo completed skills to the community",
		topic:       "Skill announcements, usage examples, success stories",
	},
}

type channel struct {
	id           string
	name         string
	description  string
	topic        string
	members      map[string]struct{}
	messageCount int64
	lastActivity time.Time
	pinned       []Message
}

// directory is the immutable set of channels created at startup.
type directory struct {
	byID  map[string]*channel
	order []*channel
}

func newDirectory(now time.Time) *directory {
	d := &directory{byID: make(map[string]*channel, len(defaultChannels))}
	for _, spec := range defaultChannels {
		ch := &channel{
			id:           spec.id,
			name:         spec.name,
			description:  spec.description,
			topic:        spec.topic,
			members:      make(map[string]struct{}),
			lastActivity: now,
		}
		d.byID[ch.id] = ch
		d.order = append(d.order, ch)
	}
	return d
}

func (d *directory) get(id string) (*channel, bool) {
	ch, ok := d.byID[id]
	return ch, ok
}

func (d *directory) ids() []string {
	ids := make([]string, len(d.order))
	for i, ch := range d.order {
		ids[i] = ch.id
	}
	return ids
}

// join records membership on both sides. It is idempotent.
func join(a *agent, ch *channel) {
	ch.members[a.id] = struct{}{}
	a.activeChannels[ch.id] = struct{}{}
}

// ChannelInfo is the list projection of a channel.
type ChannelInfo struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Topic        string    `json:"topic"`
	MemberCount  int       `json:"members"`
	MessageCount int64     `json:"messageCount"`
	LastActivity time.Time `json:"lastActivity"`
}

func (ch *channel) info() ChannelInfo {
	return ChannelInfo{
		ID:           ch.id,
		Name:         ch.name,
		Description:  ch.description,
		Topic:        ch.topic,
		MemberCount:  len(ch.members),
		MessageCount: ch.messageCount,
		LastActivity: ch.lastActivity,
	}
}

// ChannelStats summarises one channel's activity.
type ChannelStats struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	MemberCount       int       `json:"memberCount"`
	MessageCount      int64     `json:"messageCount"`
	DailyActiveAgents int       `json:"dailyActiveAgents"`
	LastActivity      time.Time `json:"lastActivity"`
	PinnedMessages    int       `json:"pinnedMessages"`
}

// ChannelMember is a member entry in ChannelDetail.
type ChannelMember struct {
	Username string    `json:"username"`
	LastSeen time.Time `json:"lastSeen"`
	Skills   []string  `json:"skills"`
}

// ChannelDetail is a channel with its latest messages and members.
type ChannelDetail struct {
	ChannelInfo
	RecentMessages []Message       `json:"recentMessages"`
	ActiveMembers  []ChannelMember `json:"activeMembers"`
}
