package joblinesdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Jobline HTTP API client.
type Client struct {
	BaseURL     string
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

// Viewer is the logged-in identity.
type Viewer struct {
	Role        string   `json:"role"`
	ActorID     string   `json:"actor_id"`
	Worker      *Worker  `json:"worker,omitempty"`
	Permissions []string `json:"permissions"`
}

// Session is returned by Login.
type Session struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Viewer    Viewer    `json:"viewer"`
}

type Worker struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Job struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Reward         float64   `json:"reward"`
	AssignedToID   string    `json:"assigned_to_id"`
	AssignedToName string    `json:"assigned_to_name"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// Completion is the result of completing a job.
type Completion struct {
	Job          Job          `json:"job"`
	Notification Notification `json:"notification"`
}

// View is one frame of the live view stream.
type View struct {
	Viewer        Viewer         `json:"viewer"`
	Workers       []Worker       `json:"workers"`
	Jobs          []Job          `json:"jobs"`
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unread_count"`
	Seq           uint64         `json:"seq"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

// Login authenticates and stores the bearer token on the client.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "v0/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "v0/auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (Viewer, error) {
	var resp Viewer
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

func (c *Client) CreateWorker(ctx context.Context, name, email, password string) (Worker, error) {
	body := map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	}
	var resp Worker
	err := c.do(ctx, http.MethodPost, "v0/workers", body, &resp)
	return resp, err
}

func (c *Client) Workers(ctx context.Context) ([]Worker, error) {
	var resp struct {
		Items []Worker `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/workers", nil, &resp)
	return resp.Items, err
}

// CreateJob assigns a new pending job to a worker.
func (c *Client) CreateJob(ctx context.Context, title, description string, reward float64, assigneeID string) (Job, error) {
	body := map[string]any{
		"title":       title,
		"description": description,
		"reward":      reward,
		"assignee_id": assigneeID,
	}
	var resp Job
	err := c.do(ctx, http.MethodPost, "v0/jobs", body, &resp)
	return resp, err
}

// Jobs returns the jobs visible to the caller.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var resp struct {
		Items []Job `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/jobs", nil, &resp)
	return resp.Items, err
}

func (c *Client) CompleteJob(ctx context.Context, jobID string) (Completion, error) {
	var resp Completion
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/jobs/%s/complete", url.PathEscape(jobID)), nil, &resp)
	return resp, err
}

// Notifications returns unread notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var resp struct {
		Items []Notification `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "v0/notifications", nil, &resp)
	return resp.Items, err
}

func (c *Client) AckNotification(ctx context.Context, id string) (Notification, error) {
	var resp Notification
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/notifications/%s/ack", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Stream calls fn with every view frame until ctx is done, the server ends the
// stream, or fn returns an error.
func (c *Client) Stream(ctx context.Context, fn func(View) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("v0/stream"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.authorize(req)
	// No client timeout: the stream is long lived.
	client := &http.Client{}
	if c.HTTPClient != nil {
		client.Transport = c.HTTPClient.Transport
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var event string
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				if err := dispatchFrame(event, data.Bytes(), fn); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func dispatchFrame(event string, data []byte, fn func(View) error) error {
	switch event {
	case "error":
		apiErr := &APIError{StatusCode: http.StatusOK, Body: string(data)}
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil {
			apiErr.Code, apiErr.Message = body.Code, body.Message
		}
		return apiErr
	case "", "view":
		var v View
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode view: %w", err)
		}
		return fn(v)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
	}
	return apiErr
}

func (c *Client) authorize(req *http.Request) {
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
}

func (c *Client) url(endpoint string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
