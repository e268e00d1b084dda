package scrumgamesdk

import (
	"bufio"
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

// Client is a minimal Scrumgame HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	// IMSToken is forwarded to the issue tracker on the caller's behalf.
	IMSToken   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// DataField is one typed value attached to an event.
type DataField struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Event represents a feed entry.
type Event struct {
	ID         string      `json:"id"`
	ProjectID  string      `json:"project_id"`
	UserID     string      `json:"user_id,omitempty"`
	ParentID   string      `json:"parent_id,omitempty"`
	IssueID    string      `json:"issue_id,omitempty"`
	Type       string      `json:"type"`
	Visibility string      `json:"visibility"`
	Timestamp  time.Time   `json:"timestamp"`
	Message    string      `json:"message,omitempty"`
	Data       []DataField `json:"data"`
}

// PaginatedEvents is one page of the feed.
type PaginatedEvents struct {
	Items    []Event `json:"items"`
	NextPage *int    `json:"next_page,omitempty"`
	Page     int     `json:"page"`
}

// Sprint represents the API sprint model.
type Sprint struct {
	ProjectID          string    `json:"project_id"`
	Number             int       `json:"number"`
	Name               string    `json:"name,omitempty"`
	Goal               string    `json:"goal,omitempty"`
	StartDate          time.Time `json:"start_date"`
	EndDate            time.Time `json:"end_date"`
	StoryPointsPlanned *int      `json:"story_points_planned,omitempty"`
}

// SprintStats is the progress of a sprint (partial).
type SprintStats struct {
	Number                         int     `json:"number"`
	StoryPointsCompleted           int     `json:"story_points_completed"`
	PercentageStoryPointsCompleted float64 `json:"percentage_story_points_completed"`
	PercentageTimeElapsed          float64 `json:"percentage_time_elapsed"`
	SuccessState                   string  `json:"success_state"`
	Streak                         int     `json:"streak"`
}

// Issue represents the API issue model.
type Issue struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	State        string `json:"state"`
	Type         string `json:"type"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	SprintNumber *int   `json:"sprint_number,omitempty"`
	StoryPoints  int    `json:"story_points"`
}

// IssueInput holds the fields of a new issue.
type IssueInput struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	State        string `json:"state,omitempty"`
	Type         string `json:"type,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	SprintNumber *int   `json:"sprint_number,omitempty"`
	StoryPoints  int    `json:"story_points,omitempty"`
}

// DoDItem confirms one Definition of Done item.
type DoDItem struct {
	Item        string `json:"item"`
	Checked     bool   `json:"checked"`
	Explanation string `json:"explanation,omitempty"`
}

// Meeting is a standup, retrospective or planning snapshot. The
// type-specific state is left raw.
type Meeting struct {
	ID            string          `json:"id"`
	ProjectID     string          `json:"project_id"`
	Type          string          `json:"type"`
	Active        bool            `json:"active"`
	Standup       json.RawMessage `json:"standup,omitempty"`
	Retrospective json.RawMessage `json:"retrospective,omitempty"`
	Planning      json.RawMessage `json:"planning,omitempty"`
}

// UserStats holds a user's counters (partial).
type UserStats struct {
	UserID          string `json:"user_id"`
	XP              int    `json:"xp"`
	Level           int    `json:"level"`
	IssuesCompleted int    `json:"issues_completed"`
	VirtualCurrency int    `json:"virtual_currency"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// CurrentSprint returns the sprint the project is in.
func (c *Client) CurrentSprint(ctx context.Context) (Sprint, error) {
	var resp Sprint
	err := c.do(ctx, http.MethodGet, c.projectPath("sprints/current"), nil, &resp)
	return resp, err
}

// SprintStats returns the progress of a sprint.
func (c *Client) SprintStats(ctx context.Context, number int) (SprintStats, error) {
	var resp SprintStats
	err := c.do(ctx, http.MethodGet, c.projectPath(fmt.Sprintf("sprints/%d/stats", number)), nil, &resp)
	return resp, err
}

// CreateIssue creates an issue in the project's tracker.
func (c *Client) CreateIssue(ctx context.Context, in IssueInput) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, c.projectPath("issues"), in, &resp)
	return resp, err
}

// FinishIssue confirms the Definition of Done and moves the issue to doneState.
func (c *Client) FinishIssue(ctx context.Context, issueID, doneState string, dod []DoDItem) (Issue, error) {
	body := map[string]any{
		"done_state":         doneState,
		"definition_of_done": dod,
	}
	var resp Issue
	endpoint := c.projectPath(fmt.Sprintf("issues/%s/finish", url.PathEscape(issueID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Feed returns one page of the feed, newest first.
func (c *Client) Feed(ctx context.Context, page, size int) (PaginatedEvents, error) {
	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	if size > 0 {
		q.Set("size", fmt.Sprint(size))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, c.projectPath("events")+"?"+q.Encode(), nil, &resp)
	return resp, err
}

// PostMessage posts to the feed, as a reply when parentID is set.
func (c *Client) PostMessage(ctx context.Context, message, parentID string) (Event, error) {
	body := map[string]any{"message": message}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	var resp Event
	err := c.do(ctx, http.MethodPost, c.projectPath("messages"), body, &resp)
	return resp, err
}

// React adds a reaction to an event.
func (c *Client) React(ctx context.Context, eventID, reaction string) (Event, error) {
	var resp Event
	endpoint := c.projectPath(fmt.Sprintf("events/%s/reactions", url.PathEscape(eventID)))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reaction": reaction}, &resp)
	return resp, err
}

// RecordEvent reports activity seen outside the tracker, such as pull requests.
func (c *Client) RecordEvent(ctx context.Context, eventType, userID string, data ...DataField) (Event, error) {
	body := map[string]any{"type": eventType, "data": data}
	if userID != "" {
		body["user_id"] = userID
	}
	var resp Event
	err := c.do(ctx, http.MethodPost, c.projectPath("events"), body, &resp)
	return resp, err
}

// MeetingCommand advances the active meeting of meetingType ("standup",
// "retrospective" or "planning").
func (c *Client) MeetingCommand(ctx context.Context, meetingType, command string, args map[string]string) (Meeting, error) {
	body := map[string]any{"command": command}
	for k, v := range args {
		body[k] = v
	}
	var resp Meeting
	endpoint := c.projectPath(fmt.Sprintf("meetings/%s/commands", url.PathEscape(meetingType)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UserStats returns a user's counters; "me" selects the caller.
func (c *Client) UserStats(ctx context.Context, userID string) (UserStats, error) {
	var resp UserStats
	err := c.do(ctx, http.MethodGet, c.projectPath("stats/"+url.PathEscape(userID)), nil, &resp)
	return resp, err
}

// StreamEvents follows the live feed and calls fn for each event until ctx
// ends, the server closes the stream or fn returns an error.
func (c *Client) StreamEvents(ctx context.Context, fn func(Event) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, c.projectPath("events/stream"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	client := &http.Client{Transport: c.httpClient().Transport}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	if c.IMSToken != "" {
		req.Header.Set("X-Ims-Token", c.IMSToken)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
	}
	return apiErr
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v0/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
