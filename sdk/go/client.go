// Package fieldtaskersdk is a minimal FieldTasker HTTP API client.
package fieldtaskersdk

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

// Client talks to a FieldTasker API server.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. "http://localhost:8080/v1".
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task mirrors the API task model.
type Task struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Index       int     `json:"index"`
	Status      string  `json:"status"`
	LockedBy    *string `json:"locked_by,omitempty"`
	MappedBy    *string `json:"mapped_by,omitempty"`
	ValidatedBy *string `json:"validated_by,omitempty"`
}

// HistoryEntry mirrors one task history row.
type HistoryEntry struct {
	ID             int64   `json:"id"`
	ProjectID      string  `json:"project_id"`
	TaskID         string  `json:"task_id"`
	Action         string  `json:"action"`
	ActionText     string  `json:"action_text"`
	PreviousStatus *string `json:"previous_status,omitempty"`
	CurrentStatus  *string `json:"current_status,omitempty"`
	ActionDate     string  `json:"action_date"`
	UserID         string  `json:"user_id"`
	Username       string  `json:"username,omitempty"`
}

// DailyCount is one point of the cumulative activity series.
type DailyCount struct {
	Date                string `json:"date"`
	CumulativeMapped    int    `json:"cumulative_mapped"`
	CumulativeValidated int    `json:"cumulative_validated"`
}

// Contributor is one row of the per-user contribution counts.
type Contributor struct {
	UserID        string `json:"user_id"`
	Username      string `json:"username"`
	Contributions int    `json:"contributions"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SetTaskStatus applies a lifecycle transition.
func (c *Client) SetTaskStatus(ctx context.Context, taskID, status string, overrideLock bool) (Task, error) {
	body := map[string]any{
		"status":        status,
		"override_lock": overrideLock,
	}
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/status", body, &resp)
	return resp.Task, err
}

// GetTask fetches a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var resp struct {
		Task Task `json:"task"`
	}
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp.Task, err
}

// ListTasks lists a project's tasks, optionally filtered by status.
func (c *Client) ListTasks(ctx context.Context, projectID, status string) ([]Task, error) {
	endpoint := "projects/" + url.PathEscape(projectID) + "/tasks"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Tasks []Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Tasks, err
}

// Comment appends a comment to a task's history.
func (c *Client) Comment(ctx context.Context, taskID, text string) (HistoryEntry, error) {
	var resp struct {
		Entry HistoryEntry `json:"entry"`
	}
	err := c.do(ctx, http.MethodPost, "tasks/"+url.PathEscape(taskID)+"/comment", map[string]any{"text": text}, &resp)
	return resp.Entry, err
}

// TaskHistory returns a task's history entries, oldest first.
func (c *Client) TaskHistory(ctx context.Context, taskID string) ([]HistoryEntry, error) {
	var resp struct {
		Entries []HistoryEntry `json:"entries"`
	}
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID)+"/history", nil, &resp)
	return resp.Entries, err
}

// ProjectActivity returns the cumulative daily mapped/validated series.
// start is an optional YYYY-MM-DD date; empty means project creation.
func (c *Client) ProjectActivity(ctx context.Context, projectID, start string) ([]DailyCount, error) {
	endpoint := "projects/" + url.PathEscape(projectID) + "/activity"
	if start != "" {
		endpoint += "?start=" + url.QueryEscape(start)
	}
	var resp struct {
		Days []DailyCount `json:"days"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Days, err
}

// Contributors returns per-user contribution counts.
func (c *Client) Contributors(ctx context.Context, projectID string) ([]Contributor, error) {
	var resp struct {
		Contributors []Contributor `json:"contributors"`
	}
	err := c.do(ctx, http.MethodGet, "projects/"+url.PathEscape(projectID)+"/contributors", nil, &resp)
	return resp.Contributors, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	u := strings.TrimRight(c.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
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
