package livechat

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/clawhub-core/clawhub/internal/metrics"
)

// sweepParser accepts standard 5-field cron expressions and descriptors
// such as "@every 10m".
var sweepParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Bus is the LiveChat message bus. A single mutex guards presence,
// channels, the message log, projects and collaboration requests.
type Bus struct {
	mu sync.Mutex

	now     func() time.Time
	logger  zerolog.Logger
	detect  detector
	horizon time.Duration

	agents   *registry
	channels *directory
	log      *messageLog
	projects *projectTracker
	requests []*CollaborationRequest
	streams  *streamHub

	sweeper *cron.Cron
	closed  bool
}

// Option configures a Bus.
type Option func(*Bus)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) { b.now = now }
}

// WithLogger sets the bus logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) { b.logger = logger.With().Str("component", "livechat").Logger() }
}

// WithSkillBaseURL sets the prefix of links generated for skill mentions.
func WithSkillBaseURL(url string) Option {
	return func(b *Bus) {
		if url != "" {
			b.detect.skillBaseURL = url
		}
	}
}

// WithRetention overrides the message log high and low water marks.
func WithRetention(high, low int) Option {
	return func(b *Bus) {
		if high > 0 && low > 0 && low <= high {
			b.log = newMessageLog(high, low)
		}
	}
}

// WithPresenceHorizon sets how long idle agents survive SweepPresence.
func WithPresenceHorizon(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.horizon = d
		}
	}
}

// New creates a bus with the fixed channel directory.
func New(opts ...Option) *Bus {
	b := &Bus{
		now:      time.Now,
		logger:   zerolog.Nop(),
		detect:   detector{skillBaseURL: DefaultSkillBaseURL},
		horizon:  DefaultPresenceHorizon,
		agents:   newRegistry(),
		log:      newMessageLog(highWaterMark, lowWaterMark),
		projects: newProjectTracker(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.channels = newDirectory(b.now())
	b.streams = newStreamHub(b.logger)
	return b
}

// EnrollResult is returned by Enroll.
type EnrollResult struct {
	Status         string    `json:"status"`
	Agent          AgentInfo `json:"agent"`
	Channels       []string  `json:"channels"`
	ActiveMembers  int       `json:"activeMembers"`
	WelcomeMessage Message   `json:"welcomeMessage"`
}

// Enroll adds the agent to the presence registry and to the general
// channel, announcing the join there. Enrolling an existing id replaces its
// display name, skills and capabilities; memberships and live
// subscriptions are kept.
func (b *Bus) Enroll(agentID, displayName string, skills, capabilities []string) EnrollResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	a, ok := b.agents.get(agentID)
	if !ok {
		a = &agent{
			id:             agentID,
			activeChannels: make(map[string]struct{}),
			subs:           make(map[string]*subscription),
		}
		b.agents.add(a)
	}
	a.displayName = displayName
	a.skills = slices.Clone(skills)
	a.capabilities = dedupe(capabilities)
	a.joinedAt = now
	a.lastSeen = now

	general, _ := b.channels.get(GeneralChannel)
	join(a, general)
	metrics.AgentsEnrolled.Inc()

	welcome := newMessage(KindSystem, GeneralChannel,
		displayName+" joined ClawHub LiveChat! Welcome to the collaborative skill development community!",
		now, map[string]any{"event": "agent_joined", "agent": displayName})
	b.appendLocked(welcome)

	info := a.info(now, b.channels)
	b.streams.publish(Event{Type: EventAgentJoined, Channel: GeneralChannel, Agent: &info})

	b.logger.Info().
		Str("agent_id", agentID).
		Str("username", displayName).
		Bool("rejoin", ok).
		Int("capabilities", len(a.capabilities)).
		Msg("agent joined")

	return EnrollResult{
		Status:         "joined",
		Agent:          info,
		Channels:       b.channels.ids(),
		ActiveMembers:  b.agents.activeCount(now),
		WelcomeMessage: *welcome,
	}
}

// SendRequest is the input to Send. An empty Channel means general.
type SendRequest struct {
	Channel  string         `json:"channel"`
	Body     string         `json:"message"`
	Metadata map[string]any `json:"metadata"`
}

// SendResult is returned by Send.
type SendResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
}

// Send posts a message as agentID. Detection runs before the message is
// stored; a collaboration suggestion, when one is produced, is stored just
// ahead of the message that triggered it with the same timestamp.
func (b *Bus) Send(agentID string, req SendRequest) (*SendResult, error) {
	channelID := req.Channel
	if channelID == "" {
		channelID = GeneralChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.agents.get(agentID)
	if !ok {
		return nil, fmt.Errorf("send as %q: %w", agentID, ErrAgentNotEnrolled)
	}
	ch, ok := b.channels.get(channelID)
	if !ok {
		return nil, fmt.Errorf("send to %q: %w", channelID, ErrChannelNotFound)
	}

	now := b.now()
	meta := copyMetadata(req.Metadata)
	meta[MetaAgentSkills] = slices.Clone(a.skills)
	meta[MetaAgentCapabilities] = slices.Clone(a.capabilities)

	m := newMessage(KindMessage, ch.id, req.Body, now, meta)
	m.AgentName = a.displayName
	m.AgentID = a.id
	det := b.detect.inspect(m)

	a.lastSeen = now
	a.lastMessageAt = now
	join(a, ch)
	ch.messageCount++
	ch.lastActivity = now

	if det.Collaboration {
		b.collaborateLocked(m, now)
	}
	b.appendLocked(m)

	if det.update != nil {
		notes := b.projects.apply(m, det.update, now)
		metrics.ProjectUpdates.Inc()
		for _, n := range notes {
			b.notifyLocked(n)
		}
	}

	return &SendResult{
		Success:   true,
		MessageID: m.ID,
		Timestamp: m.Timestamp,
		Channel:   ch.id,
	}, nil
}

// collaborateLocked records a collaboration request for m and posts the
// suggestion message if any candidate was found.
func (b *Bus) collaborateLocked(m *Message, now time.Time) {
	req := newCollaborationRequest(m)
	b.requests = append(b.requests, req)
	metrics.CollaborationRequests.Inc()

	suggestions := findSuggestions(b.agents, req, now)
	if len(suggestions) == 0 {
		return
	}
	b.appendLocked(suggestionMessage(req, suggestions, now))
	metrics.CollaborationSuggestions.Inc()

	b.logger.Debug().
		Str("request_id", req.ID).
		Str("channel", req.Channel).
		Int("suggestions", len(suggestions)).
		Msg("collaboration suggested")
}

// appendLocked stores m and fans it out.
func (b *Bus) appendLocked(m *Message) {
	if pruned := b.log.append(m); pruned > 0 {
		metrics.MessagesPruned.Add(float64(pruned))
		b.logger.Info().Int("pruned", pruned).Int("resident", b.log.len()).Msg("message log pruned")
	}
	metrics.MessagesPosted.WithLabelValues(m.Channel, string(m.Kind)).Inc()
	metrics.ResidentMessages.Set(float64(b.log.len()))

	b.broadcastLocked(m.Channel, Payload{Type: PayloadMessage, Channel: m.Channel, Message: m})
	b.streams.publish(Event{Type: EventMessage, Channel: m.Channel, Message: m})
}

// notifyLocked hands a project notification to the stream listeners and to
// the first open subscription of the notified agent.
func (b *Bus) notifyLocked(n ProjectNotification) {
	b.streams.publish(Event{Type: EventProjectNotification, Channel: n.Update.Channel, Notification: &n})

	a, ok := b.agents.get(n.AgentID)
	if !ok {
		return
	}
	for _, ch := range b.channels.order {
		if s := a.subs[ch.id]; s != nil && s.open() {
			s.offer(Payload{Type: PayloadNotification, Channel: ch.id, Notification: &n})
			return
		}
	}
}

// Query returns the most recent messages matching f in chronological order.
func (b *Bus) Query(f Filter) ([]Message, error) {
	if f.Limit < 0 {
		return nil, fmt.Errorf("limit %d: %w", f.Limit, ErrInvalidFilter)
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, fmt.Errorf("message type %q: %w", f.Kind, ErrInvalidFilter)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log.query(f), nil
}

// ListChannels returns every channel in directory order.
func (b *Bus) ListChannels() []ChannelInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ChannelInfo, len(b.channels.order))
	for i, ch := range b.channels.order {
		out[i] = ch.info()
	}
	return out
}

// GetChannelStats reports on one channel. The second result is false for
// unknown ids.
func (b *Bus) GetChannelStats(channelID string) (*ChannelStats, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.channels.get(channelID)
	if !ok {
		return nil, false
	}
	stats := b.channelStatsLocked(ch)
	return &stats, true
}

func (b *Bus) channelStatsLocked(ch *channel) ChannelStats {
	return ChannelStats{
		ID:                ch.id,
		Name:              ch.name,
		Description:       ch.description,
		MemberCount:       len(ch.members),
		MessageCount:      ch.messageCount,
		DailyActiveAgents: b.log.activeSenders(ch.id, b.now().Add(-24*time.Hour)),
		LastActivity:      ch.lastActivity,
		PinnedMessages:    len(ch.pinned),
	}
}

// ChannelDetails returns each channel with its five latest messages and its
// members in enrollment order.
func (b *Bus) ChannelDetails() []ChannelDetail {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]ChannelDetail, 0, len(b.channels.order))
	for _, ch := range b.channels.order {
		members := make([]ChannelMember, 0, len(ch.members))
		b.agents.each(func(a *agent) bool {
			if _, ok := ch.members[a.id]; ok {
				members = append(members, ChannelMember{
					Username: a.displayName,
					LastSeen: a.lastSeen,
					Skills:   slices.Clone(a.skills),
				})
			}
			return true
		})
		out = append(out, ChannelDetail{
			ChannelInfo:    ch.info(),
			RecentMessages: b.log.query(Filter{Channel: ch.id, Limit: 5}),
			ActiveMembers:  members,
		})
	}
	return out
}

// EnsureMembership adds the agent to the channel. Repeated calls are no-ops.
func (b *Bus) EnsureMembership(agentID, channelID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	a, ok := b.agents.get(agentID)
	if !ok {
		return fmt.Errorf("join %q as %q: %w", channelID, agentID, ErrAgentNotEnrolled)
	}
	ch, ok := b.channels.get(channelID)
	if !ok {
		return fmt.Errorf("join %q: %w", channelID, ErrChannelNotFound)
	}
	join(a, ch)
	return nil
}

// ListProjects returns copies of every skill project in creation order.
func (b *Bus) ListProjects() []SkillProject {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.projects.list()
}

// ListCollaborationRequests returns every request in creation order.
func (b *Bus) ListCollaborationRequests() []CollaborationRequest {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]CollaborationRequest, len(b.requests))
	for i, r := range b.requests {
		out[i] = *r
		out[i].Responses = slices.Clone(r.Responses)
	}
	return out
}

// Agents returns presence snapshots in enrollment order.
func (b *Bus) Agents() []AgentInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	out := make([]AgentInfo, 0, b.agents.len())
	b.agents.each(func(a *agent) bool {
		out = append(out, a.info(now, b.channels))
		return true
	})
	return out
}

// Stats is the bus-wide summary.
type Stats struct {
	TotalAgents           int                     `json:"totalAgents"`
	ActiveAgents          int                     `json:"activeAgents"`
	TotalMessages         int                     `json:"totalMessages"`
	TotalChannels         int                     `json:"totalChannels"`
	ActiveSkillProjects   int                     `json:"activeSkillProjects"`
	CollaborationRequests int                     `json:"collaborationRequests"`
	Channels              map[string]ChannelStats `json:"channels"`
}

// Stats reports bus-wide counters and per-channel stats.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalAgents:           b.agents.len(),
		ActiveAgents:          b.agents.activeCount(b.now()),
		TotalMessages:         b.log.len(),
		TotalChannels:         len(b.channels.order),
		ActiveSkillProjects:   b.projects.len(),
		CollaborationRequests: len(b.requests),
		Channels:              make(map[string]ChannelStats, len(b.channels.order)),
	}
	for _, ch := range b.channels.order {
		s.Channels[ch.id] = b.channelStatsLocked(ch)
	}
	return s
}

// Leader is a name with its resident message count.
type Leader struct {
	Name         string `json:"name"`
	MessageCount int    `json:"messageCount"`
}

// Activity names the busiest channel and sender among resident messages.
type Activity struct {
	MostActiveChannel Leader `json:"mostActiveChannel"`
	TopCollaborator   Leader `json:"topCollaborator"`
}

// Activity counts resident messages per channel and per sender.
func (b *Bus) Activity() Activity {
	b.mu.Lock()
	defer b.mu.Unlock()

	var channels, senders counter
	for _, m := range b.log.msgs {
		channels.add(m.Channel)
		if m.AgentName != "" {
			senders.add(m.AgentName)
		}
	}
	return Activity{
		MostActiveChannel: channels.top(GeneralChannel),
		TopCollaborator:   senders.top("None"),
	}
}

// counter counts names, remembering first-seen order so ties resolve to
// the earliest name.
type counter struct {
	order  []string
	counts map[string]int
}

func (c *counter) add(name string) {
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	if _, ok := c.counts[name]; !ok {
		c.order = append(c.order, name)
	}
	c.counts[name]++
}

func (c *counter) top(fallback string) Leader {
	best := Leader{Name: fallback}
	for _, name := range c.order {
		if n := c.counts[name]; n > best.MessageCount {
			best = Leader{Name: name, MessageCount: n}
		}
	}
	return best
}

// Subscribe attaches sink to the agent's subscription for channelID. The
// sink first receives one history payload with the latest 20 messages of
// the channel, then every new message. It returns false when the agent or
// channel is unknown. An existing subscription for the same channel is
// replaced.
func (b *Bus) Subscribe(agentID, channelID string, sink Sink) bool {
	if sink == nil {
		return false
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	a, ok := b.agents.get(agentID)
	if !ok {
		b.mu.Unlock()
		return false
	}
	ch, ok := b.channels.get(channelID)
	if !ok {
		b.mu.Unlock()
		return false
	}

	a.lastSeen = b.now()
	join(a, ch)

	s := newSubscription(a.id, ch.id, sink)
	s.queue <- Payload{
		Type:     PayloadHistory,
		Channel:  ch.id,
		Messages: b.log.query(Filter{Channel: ch.id, Limit: historySize}),
	}
	old := a.subs[ch.id]
	a.subs[ch.id] = s
	metrics.OpenSubscriptions.Inc()
	b.mu.Unlock()

	if old != nil {
		old.close()
	}
	go b.pump(s)

	b.logger.Debug().Str("agent_id", agentID).Str("channel", channelID).Msg("subscribed")
	return true
}

// Unsubscribe detaches the agent's subscription for channelID, if any.
func (b *Bus) Unsubscribe(agentID, channelID string) {
	b.mu.Lock()
	var s *subscription
	if a, ok := b.agents.get(agentID); ok {
		s = a.subs[channelID]
		delete(a.subs, channelID)
	}
	b.mu.Unlock()

	if s != nil {
		s.close()
	}
}

// Broadcast queues p for every member of channelID subscribed to that
// channel with an open transport, and returns how many accepted it.
func (b *Bus) Broadcast(channelID string, p Payload) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.channels.get(channelID); !ok {
		return 0, fmt.Errorf("broadcast to %q: %w", channelID, ErrChannelNotFound)
	}
	if p.Channel == "" {
		p.Channel = channelID
	}
	return b.broadcastLocked(channelID, p), nil
}

func (b *Bus) broadcastLocked(channelID string, p Payload) int {
	ch, ok := b.channels.get(channelID)
	if !ok {
		return 0
	}
	delivered := 0
	for id := range ch.members {
		a, ok := b.agents.get(id)
		if !ok {
			continue
		}
		if s := a.subs[channelID]; s != nil && s.offer(p) {
			delivered++
		}
	}
	return delivered
}

// Stream registers an event listener for one channel, or for all channels
// when channelID is empty. The listener is removed when ctx is done or
// StopStream is called; the returned channel is then closed.
func (b *Bus) Stream(ctx context.Context, channelID string) (<-chan Event, string, error) {
	if channelID != "" {
		b.mu.Lock()
		_, ok := b.channels.get(channelID)
		b.mu.Unlock()
		if !ok {
			return nil, "", fmt.Errorf("stream %q: %w", channelID, ErrChannelNotFound)
		}
	}
	events, id := b.streams.subscribe(ctx, channelID)
	return events, id, nil
}

// StopStream removes a listener registered with Stream.
func (b *Bus) StopStream(id string) {
	b.streams.unsubscribe(id)
}

// SweepPresence evicts agents not seen within the presence horizon that
// hold no open subscription, and returns how many were removed.
func (b *Bus) SweepPresence() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-b.horizon)
	var stale []*agent
	b.agents.each(func(a *agent) bool {
		if a.lastSeen.Before(cutoff) && !a.hasOpenSubscription() {
			stale = append(stale, a)
		}
		return true
	})

	for _, a := range stale {
		for id := range a.activeChannels {
			if ch, ok := b.channels.get(id); ok {
				delete(ch.members, a.id)
			}
		}
		for _, s := range a.subs {
			s.close()
		}
		b.agents.remove(a.id)
	}

	if len(stale) > 0 {
		metrics.PresenceEvicted.Add(float64(len(stale)))
		b.logger.Info().Int("evicted", len(stale)).Int("remaining", b.agents.len()).Msg("presence sweep")
	}
	return len(stale)
}

// ValidateSchedule reports whether spec is a schedule StartSweeper accepts.
func ValidateSchedule(spec string) error {
	if _, err := sweepParser.Parse(spec); err != nil {
		return fmt.Errorf("presence sweep schedule %q: %w", spec, err)
	}
	return nil
}

// StartSweeper runs SweepPresence on the given cron schedule until Close.
func (b *Bus) StartSweeper(schedule string) error {
	c := cron.New(cron.WithParser(sweepParser))
	if _, err := c.AddFunc(schedule, func() { b.SweepPresence() }); err != nil {
		return fmt.Errorf("presence sweep schedule %q: %w", schedule, err)
	}

	b.mu.Lock()
	if b.closed || b.sweeper != nil {
		b.mu.Unlock()
		return errors.New("presence sweeper already started or bus closed")
	}
	b.sweeper = c
	b.mu.Unlock()

	c.Start()
	b.logger.Info().Str("schedule", schedule).Dur("horizon", b.horizon).Msg("presence sweeper started")
	return nil
}

// Close stops the sweeper and releases every stream and subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	sweeper := b.sweeper
	var subs []*subscription
	b.agents.each(func(a *agent) bool {
		for _, s := range a.subs {
			subs = append(subs, s)
		}
		clear(a.subs)
		return true
	})
	b.mu.Unlock()

	if sweeper != nil {
		<-sweeper.Stop().Done()
	}
	for _, s := range subs {
		s.close()
	}
	b.streams.close()
}
