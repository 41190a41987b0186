package livechat

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ParseFilter builds a Filter from query parameters. It accepts the
// parameter names used by the HTTP API:
//
//	channel, since, agent, skillFilter (alias q), messageType (alias type), limit
//
// since is either RFC 3339 or Unix milliseconds. Malformed values yield an
// error wrapping ErrInvalidFilter.
func ParseFilter(q url.Values) (Filter, error) {
	f := Filter{
		Channel: strings.TrimSpace(q.Get("channel")),
		Agent:   q.Get("agent"),
		Text:    firstNonEmpty(q.Get("skillFilter"), q.Get("q")),
	}

	if s := strings.TrimSpace(q.Get("since")); s != "" {
		ts, err := parseTimestamp(s)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: since %q: %v", ErrInvalidFilter, s, err)
		}
		f.Since = ts
	}

	if k := firstNonEmpty(q.Get("messageType"), q.Get("type")); k != "" {
		f.Kind = Kind(k)
		if !f.Kind.Valid() {
			return Filter{}, fmt.Errorf("%w: unknown message type %q", ErrInvalidFilter, k)
		}
	}

	if l := strings.TrimSpace(q.Get("limit")); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			return Filter{}, fmt.Errorf("%w: limit %q", ErrInvalidFilter, l)
		}
		f.Limit = n
	}

	return f, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
