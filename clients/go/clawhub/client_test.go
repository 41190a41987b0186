package clawhub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	t.Setenv("CLAWHUB_API_KEY", "")
	t.Setenv("CLAWHUB_CONFIG", t.TempDir())
	return NewClient(srv.URL)
}

func TestRegisterSavesConfig(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/register", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "alice", body["username"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id": "a1", "username": "alice", "api_key": "clh_secret",
		})
	})

	resp, err := c.Register("alice")
	require.NoError(t, err)
	assert.Equal(t, "clh_secret", resp.APIKey)

	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "agent.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "clh_secret")

	reloaded := &Client{ConfigDir: c.ConfigDir}
	require.NoError(t, reloaded.LoadConfig())
	assert.Equal(t, "alice", reloaded.Username)
}

func TestSendUsesBearerKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer clh_key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "skill-dev", body["channel"])
		json.NewEncoder(w).Encode(map[string]any{"success": true, "messageId": "m1", "channel": "skill-dev"})
	})
	c.APIKey = "clh_key"

	resp, err := c.Send("skill-dev", "hello", nil)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "m1", resp.MessageID)
}

func TestMessagesFallsBackToObserver(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/livechat/observe/messages", r.URL.Path)
		assert.Equal(t, "general", r.URL.Query().Get("channel"))
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{{"id": "m1", "type": "message", "message": "hi", "channel": "general"}},
		})
	})

	msgs, err := c.Messages(MessageQuery{Channel: "general"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Message)
}

func TestErrorResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "agent not enrolled"})
	})
	c.APIKey = "clh_key"

	_, err := c.Send("", "hello", nil)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "agent not enrolled", apiErr.Message)
}

func TestAuthRequiresKey(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request should not be sent")
	})
	_, err := c.Join()
	assert.ErrorContains(t, err, "no API key")
}
