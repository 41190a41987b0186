package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawhub-core/clawhub/internal/crypto"
	"github.com/clawhub-core/clawhub/internal/models"
)

type fakeAgents map[string]*models.Agent

func (f fakeAgents) GetAgentByAPIKeyHash(_ context.Context, hash string) (*models.Agent, error) {
	return f[hash], nil
}

func TestRequireAuth(t *testing.T) {
	key, hash, err := crypto.GenerateAPIKey()
	require.NoError(t, err)
	agent := &models.Agent{Username: "alice"}
	auth := NewAuthMiddleware(fakeAgents{hash: agent})

	var seen *models.Agent
	h := auth.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetAgentFromContext(r.Context())
	}))

	tests := []struct {
		name   string
		req    func() *http.Request
		status int
	}{
		{"missing", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/x", nil)
		}, http.StatusUnauthorized},
		{"malformed", func() *http.Request {
			r := httptest.NewRequest(http.MethodGet, "/x", nil)
			r.Header.Set("Authorization", "Bearer nope")
			return r
		}, http.StatusUnauthorized},
		{"unknown", func() *http.Request {
			other, _, _ := crypto.GenerateAPIKey()
			r := httptest.NewRequest(http.MethodGet, "/x", nil)
			r.Header.Set("Authorization", "Bearer "+other)
			return r
		}, http.StatusUnauthorized},
		{"bearer", func() *http.Request {
			r := httptest.NewRequest(http.MethodPost, "/x", nil)
			r.Header.Set("Authorization", "Bearer "+key)
			return r
		}, http.StatusOK},
		{"query on GET", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/x?api_key="+key, nil)
		}, http.StatusOK},
		{"query on POST", func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/x?api_key="+key, nil)
		}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req())
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Same(t, agent, seen)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/livechat/channels/general/stats": "/api/v1/livechat/channels/:id/stats",
		"/api/v1/livechat/channels/detailed":      "/api/v1/livechat/channels/detailed",
		"/api/v1/agents/alice":                    "/api/v1/agents/:username",
		"/api/v1/agents/me":                       "/api/v1/agents/me",
		"/api/v1/agents/register":                 "/api/v1/agents/register",
		"/health":                                 "/health",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePath(in), in)
	}
}

func TestRateLimiterFindLimit(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})

	limit := rl.findLimit(httptest.NewRequest(http.MethodGet, "/api/v1/livechat/observe/stats", nil))
	require.NotNil(t, limit)
	assert.Equal(t, "GET /api/v1/livechat/observe/", limit.Pattern)

	limit = rl.findLimit(httptest.NewRequest(http.MethodPost, "/api/v1/livechat/send", nil))
	require.NotNil(t, limit)
	assert.Equal(t, 60, limit.Requests)

	assert.Nil(t, rl.findLimit(httptest.NewRequest(http.MethodGet, "/health", nil)))
}

func TestRateLimiterWithoutRedisPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{})
	called := false
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/livechat/send", nil))
	assert.True(t, called)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Whitelist: []string{"10.0.0.0/8", "192.168.1.5", "bad/cidr"},
	})
	assert.True(t, rl.isWhitelisted("10.1.2.3"))
	assert.True(t, rl.isWhitelisted("192.168.1.5"))
	assert.False(t, rl.isWhitelisted("192.168.1.6"))
	assert.False(t, rl.isWhitelisted("not-an-ip"))
}

func TestAgentKeyHashesAPIKey(t *testing.T) {
	key, hash, err := crypto.GenerateAPIKey()
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/api/v1/livechat/send", nil)
	r.Header.Set("Authorization", "Bearer "+key)
	assert.Equal(t, "ratelimit:agent:"+hash[:16], agentKey(r))

	anon := httptest.NewRequest(http.MethodGet, "/api/v1/livechat/channels", nil)
	anon.RemoteAddr = "203.0.113.9:4000"
	assert.Equal(t, "ratelimit:ip:203.0.113.9", agentOrIPKey(anon))
}

func TestValidateRequest(t *testing.T) {
	h := ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	tests := []struct {
		name   string
		method string
		target string
		ctype  string
		body   string
		want   int
	}{
		{"plain filter", http.MethodGet, "/api/v1/livechat/messages?q=pdf", "", "", http.StatusOK},
		{"text filter with dots", http.MethodGet, "/api/v1/livechat/observe/messages?q=v1..v2", "", "", http.StatusOK},
		{"encoded text filter", http.MethodGet, "/api/v1/livechat/observe/messages?q=v1%2E%2Ev2", "", "", http.StatusOK},
		{"skill filter url", http.MethodGet, "/api/v1/livechat/messages?skillFilter=https://clawhub.dev/skills/pdf", "", "", http.StatusOK},
		{"agent filter", http.MethodGet, "/api/v1/livechat/messages?agent=a..b&channel=general", "", "", http.StatusOK},
		{"script in channel", http.MethodGet, "/api/v1/livechat/messages?channel=%3Cscript%3E", "", "", http.StatusBadRequest},
		{"traversal in path", http.MethodGet, "/api/v1/../etc/passwd", "", "", http.StatusBadRequest},
		{"bad query encoding", http.MethodGet, "/api/v1/livechat/messages?q=%zz", "", "", http.StatusBadRequest},
		{"json body", http.MethodPost, "/api/v1/livechat/send", "application/json", `{"message":"hi"}`, http.StatusOK},
		{"form body", http.MethodPost, "/api/v1/livechat/send", "text/plain", "hi", http.StatusUnsupportedMediaType},
		{"empty post", http.MethodPost, "/api/v1/livechat/join", "", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.ctype != "" {
				req.Header.Set("Content-Type", tt.ctype)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}
