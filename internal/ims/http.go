package ims

import (
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

	"scrumgame/internal/domain"
)

// HTTPAdapter talks to an IMS exposing a JSON REST API. The bearer credential
// is taken from the request context (see WithToken), falling back to Token.
type HTTPAdapter struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

func NewHTTPAdapter(baseURL string, timeout time.Duration) *HTTPAdapter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPAdapter{BaseURL: baseURL, Timeout: timeout}
}

// APIError wraps non-2xx IMS responses. A 404 matches domain.ErrNotFound.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ims error: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

type commentRequest struct {
	AuthorID string `json:"author_id,omitempty"`
	Body     string `json:"body"`
	ParentID string `json:"parent_id,omitempty"`
}

func (a *HTTPAdapter) ListIssues(ctx context.Context, scope string) ([]domain.Issue, error) {
	var res []domain.Issue
	err := a.do(ctx, http.MethodGet, "projects/"+url.PathEscape(scope)+"/issues", nil, &res)
	return res, err
}

func issuePath(scope, issueID string) string {
	return "projects/" + url.PathEscape(scope) + "/issues/" + url.PathEscape(issueID)
}

func (a *HTTPAdapter) FindIssue(ctx context.Context, scope, issueID string) (domain.Issue, error) {
	var res domain.Issue
	err := a.do(ctx, http.MethodGet, issuePath(scope, issueID), nil, &res)
	return res, err
}

func (a *HTTPAdapter) CreateIssue(ctx context.Context, scope string, in domain.IssueInput) (domain.Issue, error) {
	var res domain.Issue
	err := a.do(ctx, http.MethodPost, "projects/"+url.PathEscape(scope)+"/issues", in, &res)
	return res, err
}

func (a *HTTPAdapter) UpdateIssue(ctx context.Context, scope, issueID string, m Mutation) (domain.Issue, error) {
	var res domain.Issue
	err := a.do(ctx, http.MethodPatch, issuePath(scope, issueID), m, &res)
	return res, err
}

func (a *HTTPAdapter) AddComment(ctx context.Context, scope, issueID, authorID, body, parentID string) (domain.Issue, error) {
	var res domain.Issue
	req := commentRequest{AuthorID: authorID, Body: body, ParentID: parentID}
	err := a.do(ctx, http.MethodPost, issuePath(scope, issueID)+"/comments", req, &res)
	return res, err
}

func (a *HTTPAdapter) IssueEventsSince(ctx context.Context, scope, issueID string, since time.Time) ([]domain.CreateEventInput, error) {
	var res []domain.CreateEventInput
	err := a.do(ctx, http.MethodGet, issuePath(scope, issueID)+"/events"+sinceQuery(since), nil, &res)
	return res, err
}

func (a *HTTPAdapter) ProjectEventsSince(ctx context.Context, scope string, since time.Time) ([]domain.CreateEventInput, error) {
	var res []domain.CreateEventInput
	err := a.do(ctx, http.MethodGet, "projects/"+url.PathEscape(scope)+"/events"+sinceQuery(since), nil, &res)
	return res, err
}

func sinceQuery(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
}

func (a *HTTPAdapter) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if a.HTTPClient == nil {
		a.HTTPClient = &http.Client{Timeout: a.Timeout}
	}
	target := strings.TrimRight(a.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	token := TokenFromContext(ctx)
	if token == "" {
		token = a.Token
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ims %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ims %s %s: %w", method, endpoint, &APIError{StatusCode: resp.StatusCode, Body: string(b)})
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode ims response: %w", err)
	}
	return nil
}
