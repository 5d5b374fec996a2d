package ideaforgesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal IdeaForge HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Idea represents the API idea model (partial).
type Idea struct {
	ID            string  `json:"id"`
	OwnerUserID   *string `json:"owner_user_id,omitempty"`
	Title         string  `json:"title"`
	Status        string  `json:"status"`
	LikesCount    int     `json:"likes_count"`
	CommentsCount int     `json:"comments_count"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// Progression is one entry in an idea's status history.
type Progression struct {
	ID          int64   `json:"id"`
	IdeaID      string  `json:"idea_id"`
	FromStatus  *string `json:"from_status,omitempty"`
	ToStatus    string  `json:"to_status"`
	TriggerType string  `json:"trigger_type"`
	TriggerData string  `json:"trigger_data,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

// Delegation is an ownership offer.
type Delegation struct {
	ID          string  `json:"id"`
	IdeaID      string  `json:"idea_id"`
	FromUserID  *string `json:"from_user_id,omitempty"`
	ToUserID    string  `json:"to_user_id"`
	Reason      string  `json:"reason"`
	Status      string  `json:"status"`
	DelegatedAt string  `json:"delegated_at"`
	AcceptedAt  *string `json:"accepted_at,omitempty"`
}

// Notification is an inbox entry.
type Notification struct {
	ID             string  `json:"id"`
	UserID         string  `json:"user_id"`
	IdeaID         *string `json:"idea_id,omitempty"`
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	Message        string  `json:"message"`
	ActionRequired bool    `json:"action_required"`
	ReadAt         *string `json:"read_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// LikeResult reports the idea state after a like toggle.
type LikeResult struct {
	Idea  Idea `json:"idea"`
	Liked bool `json:"liked"`
}

// SweepResult summarizes one background sweep.
type SweepResult struct {
	Checked     int      `json:"checked"`
	Promotions  int      `json:"promotions"`
	Delegations int      `json:"delegations"`
	Errors      []string `json:"errors,omitempty"`
	Success     bool     `json:"success"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateIdea submits a new idea owned by the authenticated user.
func (c *Client) CreateIdea(ctx context.Context, title, target, why, what, how, impact string) (Idea, error) {
	body := map[string]any{
		"title":  title,
		"target": target,
		"why":    why,
		"what":   what,
		"how":    how,
		"impact": impact,
	}
	var resp Idea
	err := c.do(ctx, http.MethodPost, "ideas", body, &resp)
	return resp, err
}

// GetIdea fetches an idea by id.
func (c *Client) GetIdea(ctx context.Context, id string) (Idea, error) {
	var resp Idea
	err := c.do(ctx, http.MethodGet, "ideas/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListIdeas returns ideas, optionally filtered by status.
func (c *Client) ListIdeas(ctx context.Context, status string, limit int) ([]Idea, error) {
	endpoint := "ideas"
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Idea
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ToggleLike likes or unlikes an idea and reports the resulting state.
func (c *Client) ToggleLike(ctx context.Context, ideaID string) (LikeResult, error) {
	var resp LikeResult
	endpoint := fmt.Sprintf("ideas/%s/like", url.PathEscape(ideaID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AddComment posts a comment on an idea.
func (c *Client) AddComment(ctx context.Context, ideaID, content string) error {
	endpoint := fmt.Sprintf("ideas/%s/comments", url.PathEscape(ideaID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"content": content}, nil)
}

// History returns an idea's progression history, oldest first.
func (c *Client) History(ctx context.Context, ideaID string) ([]Progression, error) {
	var resp []Progression
	endpoint := fmt.Sprintf("ideas/%s/history", url.PathEscape(ideaID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Delegate offers ownership of an idea to another user.
func (c *Client) Delegate(ctx context.Context, ideaID, toUserID string) (Delegation, error) {
	var resp Delegation
	endpoint := fmt.Sprintf("ideas/%s/delegations", url.PathEscape(ideaID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"to_user_id": toUserID}, &resp)
	return resp, err
}

// MyDelegations lists delegations addressed to the authenticated user.
func (c *Client) MyDelegations(ctx context.Context, status string) ([]Delegation, error) {
	endpoint := "me/delegations"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Delegation
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AcceptDelegation accepts an ownership offer addressed to the caller.
func (c *Client) AcceptDelegation(ctx context.Context, id string) (Delegation, error) {
	var resp Delegation
	endpoint := fmt.Sprintf("delegations/%s/accept", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// DeclineDelegation declines an ownership offer addressed to the caller.
func (c *Client) DeclineDelegation(ctx context.Context, id string) (Delegation, error) {
	var resp Delegation
	endpoint := fmt.Sprintf("delegations/%s/decline", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Notifications lists the authenticated user's notifications.
func (c *Client) Notifications(ctx context.Context, unreadOnly bool, limit int) ([]Notification, error) {
	endpoint := "me/notifications"
	q := url.Values{}
	if unreadOnly {
		q.Set("unread", "true")
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp []Notification
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Sweep runs one promotion and delegation pass server-side.
func (c *Client) Sweep(ctx context.Context) (SweepResult, error) {
	var resp SweepResult
	err := c.do(ctx, http.MethodPost, "sweep", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
