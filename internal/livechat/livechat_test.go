package livechat

import (
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testSink struct {
	payloads chan Payload
	done     chan struct{}
	once     sync.Once
}

func newTestSink() *testSink {
	return &testSink{
		payloads: make(chan Payload, 256),
		done:     make(chan struct{}),
	}
}

func (s *testSink) Send(p Payload) error {
	s.payloads <- p
	return nil
}

func (s *testSink) Done() <-chan struct{} { return s.done }

func (s *testSink) Close() { s.once.Do(func() { close(s.done) }) }

func (s *testSink) next(t *testing.T) Payload {
	t.Helper()
	select {
	case p := <-s.payloads:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for payload")
		return Payload{}
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("event stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func newTestBus(t *testing.T, opts ...Option) (*Bus, *testClock) {
	t.Helper()
	clock := newTestClock()
	b := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(b.Close)
	return b, clock
}

func bodies(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Body
	}
	return out
}
