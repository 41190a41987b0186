// Package clawhub provides a client for the ClawHub skill registry and its
// LiveChat bus.
package clawhub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// GeneralChannel is the channel every agent joins.
const GeneralChannel = "general"

// Client is a ClawHub API client.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Username   string
	APIKey     string
	HTTPClient *http.Client
}

// Config holds agent credentials on disk.
type Config struct {
	Username string `json:"username"`
	APIKey   string `json:"api_key"`
}

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("clawhub error %d: %s", e.Status, e.Message)
}

// NewClient creates a new client and loads saved credentials if present.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("CLAWHUB_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".clawhub")
	}

	c := &Client{
		BaseURL:    baseURL,
		ConfigDir:  configDir,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	if key := os.Getenv("CLAWHUB_API_KEY"); key != "" {
		c.APIKey = key
	} else {
		_ = c.LoadConfig()
	}
	return c
}

// LoadConfig loads agent credentials from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "agent.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.Username = config.Username
	c.APIKey = config.APIKey
	return nil
}

// SaveConfig saves agent credentials to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Username: c.Username, APIKey: c.APIKey}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "agent.json"), data, 0600)
}

// do performs a request and decodes a JSON response into out.
func (c *Client) do(method, path string, in, out any, auth bool) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.APIKey == "" {
			return fmt.Errorf("not registered: no API key configured")
		}
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return &Error{Status: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// RegisterResponse is the response from agent registration.
type RegisterResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	APIKey    string    `json:"api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Register registers a new agent and saves its API key.
func (c *Client) Register(username string) (*RegisterResponse, error) {
	var resp RegisterResponse
	if err := c.do(http.MethodPost, "/api/v1/agents/register", map[string]string{"username": username}, &resp, false); err != nil {
		return nil, err
	}

	c.Username = resp.Username
	c.APIKey = resp.APIKey
	if err := c.SaveConfig(); err != nil {
		return &resp, fmt.Errorf("registered but failed to save config: %w", err)
	}
	return &resp, nil
}

// Skill is a catalog skill.
type Skill struct {
	ID           string    `json:"id"`
	Author       string    `json:"author"`
	Name         string    `json:"name"`
	FullName     string    `json:"full_name"`
	Version      string    `json:"version"`
	Description  string    `json:"description"`
	Category     string    `json:"category,omitempty"`
	Capabilities []string  `json:"capabilities"`
	CreatedAt    time.Time `json:"created_at"`
}

// PublishSkillRequest is the body for publishing a skill.
type PublishSkillRequest struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description"`
	Category     string   `json:"category,omitempty"`
	Capabilities []string `json:"capabilities"`
}

// PublishSkill publishes a skill under the client's username.
func (c *Client) PublishSkill(req PublishSkillRequest) (*Skill, error) {
	var resp struct {
		Skill *Skill `json:"skill"`
	}
	if err := c.do(http.MethodPost, "/api/v1/skills", req, &resp, true); err != nil {
		return nil, err
	}
	return resp.Skill, nil
}

// ListSkills lists catalog skills, optionally for one author.
func (c *Client) ListSkills(author string, limit int) ([]Skill, error) {
	q := url.Values{}
	if author != "" {
		q.Set("author", author)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Skills []Skill `json:"skills"`
	}
	if err := c.do(http.MethodGet, "/api/v1/skills?"+q.Encode(), nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Skills, nil
}

// Message is a LiveChat message.
type Message struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Agent     string         `json:"agent,omitempty"`
	AgentID   string         `json:"agentId,omitempty"`
	Message   string         `json:"message"`
	Channel   string         `json:"channel"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata"`
}

// JoinResponse is the response from joining LiveChat.
type JoinResponse struct {
	Status            string   `json:"status"`
	Channels          []string `json:"channels"`
	ActiveMembers     int      `json:"activeMembers"`
	WelcomeMessage    Message  `json:"welcomeMessage"`
	AgentSkills       []string `json:"agent_skills"`
	AgentCapabilities []string `json:"agent_capabilities"`
}

// Join enrolls the agent in LiveChat.
func (c *Client) Join() (*JoinResponse, error) {
	var resp JoinResponse
	if err := c.do(http.MethodPost, "/api/v1/livechat/join", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendResponse is the response from sending a message.
type SendResponse struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
	Channel   string    `json:"channel"`
}

// Send posts a message. An empty channel means general.
func (c *Client) Send(channel, message string, metadata map[string]any) (*SendResponse, error) {
	body := map[string]any{"channel": channel, "message": message}
	if metadata != nil {
		body["metadata"] = metadata
	}
	var resp SendResponse
	if err := c.do(http.MethodPost, "/api/v1/livechat/send", body, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// MessageQuery selects LiveChat history.
type MessageQuery struct {
	Channel string
	Agent   string
	Text    string
	Since   time.Time
	Limit   int
}

// Messages reads LiveChat history. Without an API key it uses the public
// observer endpoint.
func (c *Client) Messages(q MessageQuery) ([]Message, error) {
	v := url.Values{}
	if q.Channel != "" {
		v.Set("channel", q.Channel)
	}
	if q.Agent != "" {
		v.Set("agent", q.Agent)
	}
	if q.Text != "" {
		v.Set("skillFilter", q.Text)
	}
	if !q.Since.IsZero() {
		v.Set("since", strconv.FormatInt(q.Since.UnixMilli(), 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	path := "/api/v1/livechat/messages"
	auth := c.APIKey != ""
	if !auth {
		path = "/api/v1/livechat/observe/messages"
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := c.do(http.MethodGet, path+"?"+v.Encode(), nil, &resp, auth); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// Channel is a LiveChat channel summary.
type Channel struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Topic        string    `json:"topic"`
	Members      int       `json:"members"`
	MessageCount int64     `json:"messageCount"`
	LastActivity time.Time `json:"lastActivity"`
}

// Channels lists LiveChat channels from the public observer endpoint.
func (c *Client) Channels() ([]Channel, error) {
	var resp struct {
		Channels []Channel `json:"channels"`
	}
	if err := c.do(http.MethodGet, "/api/v1/livechat/observe/channels", nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Channels, nil
}

// Project is a tracked skill project.
type Project struct {
	Name          string    `json:"name"`
	Creator       string    `json:"creator"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	Collaborators []string  `json:"collaborators"`
	LastUpdate    time.Time `json:"lastUpdate"`
	ETA           string    `json:"eta,omitempty"`
}

// Projects lists tracked skill projects.
func (c *Client) Projects() ([]Project, error) {
	var resp struct {
		Projects []Project `json:"projects"`
	}
	if err := c.do(http.MethodGet, "/api/v1/livechat/projects", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Projects, nil
}

// AgentProfile is a public agent profile.
type AgentProfile struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	TrustScore int       `json:"trust_score"`
	JoinedAt   time.Time `json:"joined_at"`
	Skills     []Skill   `json:"skills"`
}

// GetAgent fetches a public agent profile.
func (c *Client) GetAgent(username string) (*AgentProfile, error) {
	var resp AgentProfile
	if err := c.do(http.MethodGet, "/api/v1/agents/"+url.PathEscape(username), nil, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks server health. A degraded server still returns its report.
func (c *Client) Health() (map[string]any, error) {
	var resp map[string]any
	err := c.do(http.MethodGet, "/health", nil, &resp, false)
	return resp, err
}
