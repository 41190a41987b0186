package livechat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollJoinsGeneral(t *testing.T) {
	b, _ := newTestBus(t)

	res := b.Enroll("a1", "alice", []string{"summarizer"}, []string{"nlp", "nlp", ""})

	assert.Equal(t, "joined", res.Status)
	assert.Equal(t, "alice", res.Agent.Username)
	assert.Equal(t, []string{"nlp"}, res.Agent.Capabilities)
	assert.Equal(t, []string{GeneralChannel}, res.Agent.ActiveChannels)
	assert.Len(t, res.Channels, 6)
	assert.Equal(t, 1, res.ActiveMembers)
	assert.Equal(t, KindSystem, res.WelcomeMessage.Kind)
	assert.Contains(t, res.WelcomeMessage.Body, "alice joined ClawHub LiveChat")
	assert.Equal(t, map[string]any{"event": "agent_joined", "agent": "alice"}, res.WelcomeMessage.Metadata)

	channels := b.ListChannels()
	require.Len(t, channels, 6)
	assert.Equal(t, GeneralChannel, channels[0].ID)
	assert.GreaterOrEqual(t, channels[0].MemberCount, 1)
	for _, ch := range channels[1:] {
		assert.Zero(t, ch.MemberCount, ch.ID)
	}

	msgs, err := b.Query(Filter{Channel: GeneralChannel})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, res.WelcomeMessage.ID, msgs[0].ID)
}

func TestReEnrollOverwritesDisplayName(t *testing.T) {
	b, _ := newTestBus(t)

	b.Enroll("a1", "first-name", nil, []string{"nlp"})
	require.NoError(t, b.EnsureMembership("a1", "skill-dev"))
	b.Enroll("a1", "second-name", nil, []string{"api"})

	_, err := b.Send("a1", SendRequest{Body: "hello"})
	require.NoError(t, err)

	msgs, err := b.Query(Filter{Kind: KindMessage, Limit: 1})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "second-name", msgs[0].AgentName)

	agents := b.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, "second-name", agents[0].Username)
	assert.Equal(t, []string{"api"}, agents[0].Capabilities)
	assert.Equal(t, []string{GeneralChannel, "skill-dev"}, agents[0].ActiveChannels)
}

func TestSendThenQueryLimitOne(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, []string{"nlp"})
	b.Enroll("b1", "bob", nil, []string{"nlp"})

	for _, ch := range b.ListChannels() {
		for _, body := range []string{"plain text", "want to collaborate on nlp?", "@alice/summarizer ready"} {
			_, err := b.Send("a1", SendRequest{Channel: ch.ID, Body: body})
			require.NoError(t, err)

			msgs, err := b.Query(Filter{Channel: ch.ID, Limit: 1})
			require.NoError(t, err)
			require.Len(t, msgs, 1, ch.ID)
			assert.Equal(t, body, msgs[0].Body, ch.ID)
		}
	}
}

func TestSendDefaultsAndErrors(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", []string{"summarizer"}, []string{"nlp"})
	clock.Advance(time.Second)

	res, err := b.Send("a1", SendRequest{Body: "hi", Metadata: map[string]any{"k": "v"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, GeneralChannel, res.Channel)
	assert.Equal(t, clock.Now(), res.Timestamp)
	assert.NotEmpty(t, res.MessageID)

	msgs, err := b.Query(Filter{Kind: KindMessage})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "v", msgs[0].Metadata["k"])
	assert.Equal(t, []string{"summarizer"}, msgs[0].Metadata[MetaAgentSkills])
	assert.Equal(t, []string{"nlp"}, msgs[0].Metadata[MetaAgentCapabilities])

	_, err = b.Send("ghost", SendRequest{Body: "hi"})
	assert.ErrorIs(t, err, ErrAgentNotEnrolled)

	_, err = b.Send("a1", SendRequest{Channel: "random", Body: "hi"})
	assert.ErrorIs(t, err, ErrChannelNotFound)

	stats, ok := b.GetChannelStats(GeneralChannel)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.MessageCount)
}

func TestSendJoinsChannel(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	_, err := b.Send("a1", SendRequest{Channel: "skill-review", Body: "review please"})
	require.NoError(t, err)

	agents := b.Agents()
	require.Len(t, agents, 1)
	assert.Equal(t, []string{GeneralChannel, "skill-review"}, agents[0].ActiveChannels)

	stats, ok := b.GetChannelStats("skill-review")
	require.True(t, ok)
	assert.Equal(t, 1, stats.MemberCount)
	assert.Equal(t, 1, stats.DailyActiveAgents)
}

func TestMessageLogPruning(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	for i := 1; i <= highWaterMark; i++ {
		clock.Advance(time.Millisecond)
		_, err := b.Send("a1", SendRequest{Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
		if i%2500 == 0 {
			assert.LessOrEqual(t, b.Stats().TotalMessages, highWaterMark)
		}
	}

	// The welcome message plus 10,000 sends crossed the high-water mark once.
	assert.Equal(t, lowWaterMark, b.Stats().TotalMessages)

	msgs, err := b.Query(Filter{Limit: lowWaterMark})
	require.NoError(t, err)
	require.Len(t, msgs, lowWaterMark)
	assert.Equal(t, "m2001", msgs[0].Body)
	assert.Equal(t, "m10000", msgs[len(msgs)-1].Body)

	_, err = b.Send("a1", SendRequest{Body: "after"})
	require.NoError(t, err)
	assert.Equal(t, lowWaterMark+1, b.Stats().TotalMessages)
}

func TestQueryReturnsNewestInChronologicalOrder(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	for i := 1; i <= 10; i++ {
		clock.Advance(time.Second)
		_, err := b.Send("a1", SendRequest{Channel: "skill-dev", Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	msgs, err := b.Query(Filter{Channel: "skill-dev", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"m8", "m9", "m10"}, bodies(msgs))
	assert.True(t, slices.IsSortedFunc(msgs, func(a, b Message) int {
		return a.Timestamp.Compare(b.Timestamp)
	}))

	msgs, err = b.Query(Filter{Channel: "skill-dev"})
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
}

func TestQueryFilters(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)
	start := clock.Now()

	clock.Advance(time.Second)
	_, err := b.Send("a1", SendRequest{Channel: "skill-dev", Body: "parser progress", Metadata: map[string]any{"skill": "pdf-tools"}})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = b.Send("b1", SendRequest{Channel: "skill-dev", Body: "looking at pdf rendering"})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = b.Send("b1", SendRequest{Channel: "skill-review", Body: "review queue"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"channel", Filter{Channel: "skill-dev"}, []string{"parser progress", "looking at pdf rendering"}},
		{"agent", Filter{Agent: "bob", Kind: KindMessage}, []string{"looking at pdf rendering", "review queue"}},
		{"text matches body or skill", Filter{Text: "pdf"}, []string{"parser progress", "looking at pdf rendering"}},
		{"since is exclusive", Filter{Since: start.Add(2 * time.Second)}, []string{"review queue"}},
		{"kind", Filter{Kind: KindSystem}, []string{
			"alice joined ClawHub LiveChat! Welcome to the collaborative skill development community!",
			"bob joined ClawHub LiveChat! Welcome to the collaborative skill development community!",
		}},
		{"conjunctive", Filter{Channel: "skill-dev", Agent: "alice", Text: "pdf"}, []string{"parser progress"}},
		{"no match", Filter{Channel: "skill-showcase"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, err := b.Query(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, bodies(msgs))
		})
	}
}

func TestQueryRejectsInvalidFilter(t *testing.T) {
	b, _ := newTestBus(t)

	_, err := b.Query(Filter{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidFilter)

	_, err = b.Query(Filter{Kind: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestEnsureMembershipIsIdempotent(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	require.NoError(t, b.EnsureMembership("a1", "skill-brainstorm"))
	first, ok := b.GetChannelStats("skill-brainstorm")
	require.True(t, ok)

	require.NoError(t, b.EnsureMembership("a1", "skill-brainstorm"))
	second, ok := b.GetChannelStats("skill-brainstorm")
	require.True(t, ok)

	assert.Equal(t, 1, first.MemberCount)
	assert.Equal(t, first.MemberCount, second.MemberCount)

	assert.ErrorIs(t, b.EnsureMembership("a1", "nope"), ErrChannelNotFound)
	assert.ErrorIs(t, b.EnsureMembership("ghost", GeneralChannel), ErrAgentNotEnrolled)
}

func TestCollaborationRequestIsOpen(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	_, err := b.Send("a1", SendRequest{Body: "let's work together"})
	require.NoError(t, err)

	reqs := b.ListCollaborationRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, RequestStatusOpen, reqs[0].Status)
	assert.Equal(t, "alice", reqs[0].AgentName)
	assert.Equal(t, "let's work together", reqs[0].Body)
	assert.Empty(t, reqs[0].Responses)
	assert.NotEmpty(t, reqs[0].ID)

	_, err = b.Send("a1", SendRequest{Body: "nothing to see"})
	require.NoError(t, err)
	assert.Len(t, b.ListCollaborationRequests(), 1)
}

func suggestionsIn(t *testing.T, b *Bus) []Message {
	t.Helper()
	msgs, err := b.Query(Filter{Kind: KindSystem, Text: "Potential collaborators"})
	require.NoError(t, err)
	return msgs
}

func TestCollaborationSuggestions(t *testing.T) {
	t.Run("candidate without matching capability", func(t *testing.T) {
		b, _ := newTestBus(t)
		b.Enroll("a1", "alice", nil, []string{"nlp"})
		b.Enroll("b1", "bob", nil, []string{"api"})

		_, err := b.Send("a1", SendRequest{Channel: GeneralChannel, Body: "anyone want to collaborate, need nlp help"})
		require.NoError(t, err)

		assert.Empty(t, suggestionsIn(t, b))
		assert.Len(t, b.ListCollaborationRequests(), 1)
	})

	t.Run("candidate with matching capability", func(t *testing.T) {
		b, _ := newTestBus(t)
		b.Enroll("a1", "alice", nil, []string{"nlp"})
		b.Enroll("b1", "bob", nil, []string{"NLP"})

		_, err := b.Send("a1", SendRequest{Channel: GeneralChannel, Body: "anyone want to collaborate, need nlp help"})
		require.NoError(t, err)

		msgs := suggestionsIn(t, b)
		require.Len(t, msgs, 1)
		assert.Equal(t, "Potential collaborators for alice: bob", msgs[0].Body)
		assert.Equal(t, GeneralChannel, msgs[0].Channel)

		reqs := b.ListCollaborationRequests()
		require.Len(t, reqs, 1)
		assert.Equal(t, reqs[0].ID, msgs[0].Metadata["request_id"])

		suggestions, ok := msgs[0].Metadata["suggestions"].([]Suggestion)
		require.True(t, ok)
		require.Len(t, suggestions, 1)
		assert.Equal(t, "b1", suggestions[0].AgentID)
		assert.Equal(t, ReasonSkillMatch, suggestions[0].MatchReason)
	})

	t.Run("recent sender", func(t *testing.T) {
		b, clock := newTestBus(t)
		b.Enroll("a1", "alice", nil, []string{"nlp"})
		b.Enroll("b1", "bob", nil, []string{"api"})
		_, err := b.Send("b1", SendRequest{Body: "morning"})
		require.NoError(t, err)

		clock.Advance(time.Hour)
		_, err = b.Send("a1", SendRequest{Body: "who wants to pair on this?"})
		require.NoError(t, err)

		msgs := suggestionsIn(t, b)
		require.Len(t, msgs, 1)
		suggestions := msgs[0].Metadata["suggestions"].([]Suggestion)
		require.Len(t, suggestions, 1)
		assert.Equal(t, ReasonRecentActivity, suggestions[0].MatchReason)

		clock.Advance(24 * time.Hour)
		_, err = b.Send("a1", SendRequest{Body: "still looking to pair"})
		require.NoError(t, err)
		assert.Len(t, suggestionsIn(t, b), 1)
	})

	t.Run("only channel members are candidates", func(t *testing.T) {
		b, _ := newTestBus(t)
		b.Enroll("a1", "alice", nil, nil)
		b.Enroll("b1", "bob", nil, []string{"nlp"})

		_, err := b.Send("a1", SendRequest{Channel: "skill-dev", Body: "collaborate on nlp?"})
		require.NoError(t, err)
		assert.Empty(t, suggestionsIn(t, b))

		require.NoError(t, b.EnsureMembership("b1", "skill-dev"))
		_, err = b.Send("a1", SendRequest{Channel: "skill-dev", Body: "collaborate on nlp?"})
		require.NoError(t, err)
		assert.Len(t, suggestionsIn(t, b), 1)
	})

	t.Run("at most three in enrollment order", func(t *testing.T) {
		b, _ := newTestBus(t)
		b.Enroll("a1", "alice", nil, nil)
		names := []string{"bob", "carol", "dave", "erin", "frank"}
		for _, name := range names {
			b.Enroll(name+"-id", name, nil, []string{"vision"})
		}

		_, err := b.Send("a1", SendRequest{Body: "team up on vision models"})
		require.NoError(t, err)

		msgs := suggestionsIn(t, b)
		require.Len(t, msgs, 1)
		assert.Equal(t, "Potential collaborators for alice: bob, carol, dave", msgs[0].Body)
	})
}

func TestProjectTracking(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)

	_, err := b.Send("a1", SendRequest{Channel: "skill-dev", Body: "started", Metadata: map[string]any{
		"skill": "x", "status": "dev", "progress": 40, "eta": "friday",
	}})
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = b.Send("a1", SendRequest{Channel: "skill-dev", Body: "still going", Metadata: map[string]any{
		"skill": "x", "status": "dev",
	}})
	require.NoError(t, err)

	projects := b.ListProjects()
	require.Len(t, projects, 1)
	p := projects[0]
	assert.Equal(t, "x", p.Name)
	assert.Equal(t, "alice", p.Creator)
	assert.Equal(t, "dev", p.Status)
	assert.Equal(t, 40, p.Progress)
	assert.Equal(t, "friday", p.ETA)
	assert.Equal(t, []string{"a1"}, p.Collaborators)
	assert.Equal(t, clock.Now(), p.LastUpdate)
	require.Len(t, p.Updates, 2)
	require.NotNil(t, p.Updates[0].Progress)
	assert.Equal(t, 40, *p.Updates[0].Progress)
	assert.Nil(t, p.Updates[1].Progress)
	assert.Equal(t, "still going", p.Updates[1].Body)

	_, err = b.Send("b1", SendRequest{Body: "testing done", Metadata: map[string]any{
		"skill": "x", "status": "testing", "progress": 90.0,
	}})
	require.NoError(t, err)

	p = b.ListProjects()[0]
	assert.Equal(t, "testing", p.Status)
	assert.Equal(t, 90, p.Progress)
	assert.Equal(t, []string{"a1"}, p.Collaborators)
	assert.Equal(t, 1, b.Stats().ActiveSkillProjects)
}

func TestProjectNotificationsGoToCreatorOnly(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)

	events, _, err := b.Stream(t.Context(), "")
	require.NoError(t, err)

	status := func(agentID, st string) {
		t.Helper()
		_, err := b.Send(agentID, SendRequest{Body: st, Metadata: map[string]any{"skill": "x", "status": st}})
		require.NoError(t, err)
	}
	status("a1", "dev")
	status("b1", "testing")
	status("a1", "done")

	var notified []string
drain:
	for {
		select {
		case ev := <-events:
			if ev.Type == EventProjectNotification {
				notified = append(notified, ev.Notification.AgentID)
			}
		default:
			break drain
		}
	}
	assert.Equal(t, []string{"a1"}, notified)
	assert.Equal(t, []string{"a1"}, b.ListProjects()[0].Collaborators)
}

func TestMalformedStatusMetadataIsIgnored(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	_, err := b.Send("a1", SendRequest{Body: "odd", Metadata: map[string]any{"skill": 42, "status": "dev"}})
	require.NoError(t, err)
	_, err = b.Send("a1", SendRequest{Body: "odd", Metadata: map[string]any{"skill": "x", "status": "dev", "progress": "lots"}})
	require.NoError(t, err)

	projects := b.ListProjects()
	require.Len(t, projects, 1)
	assert.Zero(t, projects[0].Progress)

	msgs, err := b.Query(Filter{Kind: KindMessage})
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestProjectNotificationReachesCollaborators(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)

	sink := newTestSink()
	require.True(t, b.Subscribe("a1", "skill-showcase", sink))
	assert.Equal(t, PayloadHistory, sink.next(t).Type)

	events, _, err := b.Stream(t.Context(), "skill-showcase")
	require.NoError(t, err)

	_, err = b.Send("a1", SendRequest{Channel: GeneralChannel, Body: "kickoff", Metadata: map[string]any{"skill": "x", "status": "planning"}})
	require.NoError(t, err)
	_, err = b.Send("b1", SendRequest{Channel: GeneralChannel, Body: "joined in", Metadata: map[string]any{"skill": "x", "status": "dev"}})
	require.NoError(t, err)

	p := sink.next(t)
	assert.Equal(t, PayloadNotification, p.Type)
	require.NotNil(t, p.Notification)
	assert.Equal(t, "a1", p.Notification.AgentID)
	assert.Equal(t, "x", p.Notification.Project)
	assert.Equal(t, "joined in", p.Notification.Update.Body)

	ev := nextEvent(t, events)
	assert.Equal(t, EventProjectNotification, ev.Type)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, "a1", ev.Notification.AgentID)
}

func TestSkillMentionLinks(t *testing.T) {
	b, _ := newTestBus(t, WithSkillBaseURL("https://hub.example/skills"))
	b.Enroll("a1", "alice", nil, nil)

	_, err := b.Send("a1", SendRequest{Body: "try @bob/pdf_parser and @carol/ocr"})
	require.NoError(t, err)

	msgs, err := b.Query(Filter{Kind: KindMessage})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	links, ok := msgs[0].Metadata[MetaSkillLinks].([]SkillLink)
	require.True(t, ok)
	assert.Equal(t, []SkillLink{
		{Mention: "@bob/pdf_parser", Username: "bob", Skillname: "pdf_parser", URL: "https://hub.example/skills/bob/pdf_parser"},
		{Mention: "@carol/ocr", Username: "carol", Skillname: "ocr", URL: "https://hub.example/skills/carol/ocr"},
	}, links)
}

func TestSubscribe(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	assert.False(t, b.Subscribe("ghost", GeneralChannel, newTestSink()))
	assert.False(t, b.Subscribe("a1", "nope", newTestSink()))

	for i := 1; i <= 25; i++ {
		clock.Advance(time.Second)
		_, err := b.Send("a1", SendRequest{Channel: "skill-dev", Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	sink := newTestSink()
	require.True(t, b.Subscribe("a1", "skill-dev", sink))

	history := sink.next(t)
	assert.Equal(t, PayloadHistory, history.Type)
	assert.Equal(t, "skill-dev", history.Channel)
	require.Len(t, history.Messages, historySize)
	assert.Equal(t, "m6", history.Messages[0].Body)
	assert.Equal(t, "m25", history.Messages[historySize-1].Body)

	_, err := b.Send("a1", SendRequest{Channel: GeneralChannel, Body: "elsewhere"})
	require.NoError(t, err)
	_, err = b.Send("a1", SendRequest{Channel: "skill-dev", Body: "live"})
	require.NoError(t, err)

	live := sink.next(t)
	assert.Equal(t, PayloadMessage, live.Type)
	require.NotNil(t, live.Message)
	assert.Equal(t, "live", live.Message.Body)

	b.Unsubscribe("a1", "skill-dev")
	n, err := b.Broadcast("skill-dev", Payload{Type: "announcement"})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscribeReplacesExisting(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)

	first, second := newTestSink(), newTestSink()
	require.True(t, b.Subscribe("a1", GeneralChannel, first))
	require.True(t, b.Subscribe("a1", GeneralChannel, second))
	assert.Equal(t, PayloadHistory, second.next(t).Type)

	n, err := b.Broadcast(GeneralChannel, Payload{Type: "announcement"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "announcement", second.next(t).Type)
}

func TestBroadcast(t *testing.T) {
	b, _ := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)
	b.Enroll("c1", "carol", nil, nil)

	sa, sb, sc := newTestSink(), newTestSink(), newTestSink()
	require.True(t, b.Subscribe("a1", "skill-requests", sa))
	require.True(t, b.Subscribe("b1", "skill-requests", sb))
	require.True(t, b.Subscribe("c1", GeneralChannel, sc))
	for _, s := range []*testSink{sa, sb, sc} {
		s.next(t)
	}

	n, err := b.Broadcast("skill-requests", Payload{Type: "announcement"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "skill-requests", sa.next(t).Channel)
	assert.Equal(t, "skill-requests", sb.next(t).Channel)

	sb.Close()
	n, err = b.Broadcast("skill-requests", Payload{Type: "announcement"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = b.Broadcast("nope", Payload{})
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestStreamFiltersByChannel(t *testing.T) {
	b, _ := newTestBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	devEvents, _, err := b.Stream(ctx, "skill-dev")
	require.NoError(t, err)
	allEvents, allID, err := b.Stream(t.Context(), "")
	require.NoError(t, err)

	_, _, err = b.Stream(t.Context(), "nope")
	assert.ErrorIs(t, err, ErrChannelNotFound)

	b.Enroll("a1", "alice", nil, nil)
	_, err = b.Send("a1", SendRequest{Channel: GeneralChannel, Body: "general chatter"})
	require.NoError(t, err)
	_, err = b.Send("a1", SendRequest{Channel: "skill-dev", Body: "dev chatter"})
	require.NoError(t, err)

	ev := nextEvent(t, devEvents)
	assert.Equal(t, EventAgentJoined, ev.Type)
	require.NotNil(t, ev.Agent)
	assert.Equal(t, "alice", ev.Agent.Username)

	ev = nextEvent(t, devEvents)
	assert.Equal(t, EventMessage, ev.Type)
	assert.Equal(t, "dev chatter", ev.Message.Body)

	var seen []string
	for range 4 {
		ev := nextEvent(t, allEvents)
		seen = append(seen, string(ev.Type))
	}
	assert.Equal(t, []string{"message", "agent_joined", "message", "message"}, seen)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-devEvents:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	b.StopStream(allID)
	_, ok := <-allEvents
	assert.False(t, ok)
}

func TestSweepPresence(t *testing.T) {
	b, clock := newTestBus(t, WithPresenceHorizon(time.Hour))
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)
	b.Enroll("c1", "carol", nil, nil)

	sink := newTestSink()
	require.True(t, b.Subscribe("b1", "skill-dev", sink))

	clock.Advance(30 * time.Minute)
	_, err := b.Send("c1", SendRequest{Body: "still here"})
	require.NoError(t, err)

	clock.Advance(45 * time.Minute)
	assert.Equal(t, 1, b.SweepPresence())

	agents := b.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "bob", agents[0].Username)
	assert.Equal(t, "carol", agents[1].Username)

	general, ok := b.GetChannelStats(GeneralChannel)
	require.True(t, ok)
	assert.Equal(t, 2, general.MemberCount)

	_, err = b.Send("a1", SendRequest{Body: "hello?"})
	assert.ErrorIs(t, err, ErrAgentNotEnrolled)

	sink.Close()
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 2, b.SweepPresence())
	assert.Empty(t, b.Agents())
}

func TestStartSweeperRejectsBadSchedule(t *testing.T) {
	b, _ := newTestBus(t)

	assert.Error(t, b.StartSweeper("every now and then"))
	assert.Error(t, ValidateSchedule("* *"))
	assert.NoError(t, ValidateSchedule("@every 10m"))
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))

	require.NoError(t, b.StartSweeper("@every 1h"))
	assert.Error(t, b.StartSweeper("@every 1h"))
}

func TestStatsAndActivity(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", nil, nil)
	b.Enroll("b1", "bob", nil, nil)

	for range 4 {
		_, err := b.Send("b1", SendRequest{Channel: "skill-dev", Body: "dev"})
		require.NoError(t, err)
	}
	_, err := b.Send("a1", SendRequest{Body: "hi"})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	stats := b.Stats()
	assert.Equal(t, 2, stats.TotalAgents)
	assert.Equal(t, 0, stats.ActiveAgents)
	assert.Equal(t, 7, stats.TotalMessages)
	assert.Equal(t, 6, stats.TotalChannels)
	assert.Len(t, stats.Channels, 6)
	assert.Equal(t, int64(4), stats.Channels["skill-dev"].MessageCount)

	activity := b.Activity()
	assert.Equal(t, Leader{Name: "skill-dev", MessageCount: 4}, activity.MostActiveChannel)
	assert.Equal(t, Leader{Name: "bob", MessageCount: 4}, activity.TopCollaborator)

	empty, _ := newTestBus(t)
	assert.Equal(t, Activity{
		MostActiveChannel: Leader{Name: GeneralChannel},
		TopCollaborator:   Leader{Name: "None"},
	}, empty.Activity())
}

func TestChannelDetails(t *testing.T) {
	b, clock := newTestBus(t)
	b.Enroll("a1", "alice", []string{"ocr"}, nil)
	b.Enroll("b1", "bob", nil, nil)

	for i := 1; i <= 7; i++ {
		clock.Advance(time.Second)
		_, err := b.Send("b1", SendRequest{Body: fmt.Sprintf("m%d", i)})
		require.NoError(t, err)
	}

	details := b.ChannelDetails()
	require.Len(t, details, 6)
	general := details[0]
	assert.Equal(t, GeneralChannel, general.ID)
	assert.Equal(t, []string{"m3", "m4", "m5", "m6", "m7"}, bodies(general.RecentMessages))
	require.Len(t, general.ActiveMembers, 2)
	assert.Equal(t, "alice", general.ActiveMembers[0].Username)
	assert.Equal(t, []string{"ocr"}, general.ActiveMembers[0].Skills)

	_, ok := b.GetChannelStats("nope")
	assert.False(t, ok)
}

func TestConcurrentSends(t *testing.T) {
	b, _ := newTestBus(t)
	events, _, err := b.Stream(t.Context(), "")
	require.NoError(t, err)

	names := []string{"alice", "bob", "carol", "dave"}
	for _, n := range names {
		b.Enroll(n, n, nil, []string{"nlp"})
	}

	done := make(chan struct{})
	for _, n := range names {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := range 50 {
				_, err := b.Send(n, SendRequest{Channel: "skill-dev", Body: fmt.Sprintf("%s %d collaborate on nlp", n, i)})
				assert.NoError(t, err)
			}
		}()
	}
	for range names {
		<-done
	}

	msgs, err := b.Query(Filter{Channel: "skill-dev", Kind: KindMessage, Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, msgs, 200)
	assert.Len(t, b.ListCollaborationRequests(), 200)
	assert.NotEmpty(t, events)
	for _, m := range msgs {
		assert.True(t, strings.HasSuffix(m.Body, "collaborate on nlp"))
	}
}
