package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"scrumgame/internal/db"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
	"scrumgame/internal/migrate"
	"scrumgame/internal/reward"
)

const testSecret = "test-secret"

type testServer struct {
	*httptest.Server
	Engine *engine.Engine
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e, err := engine.New(conn, engine.Options{Rewards: reward.NewSeeded(7), Logger: logger})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	handler, err := New(Config{Engine: e, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, DevLogin: true}, Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		e.Close()
		conn.Close()
	})
	return &testServer{Server: srv, Engine: e}
}

func (s *testServer) token(t *testing.T, userID string, privileges ...string) map[string]string {
	t.Helper()
	body := map[string]any{"user_id": userID}
	if len(privileges) > 0 {
		body["privileges"] = privileges
	}
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/auth/dev/login", body, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var out DevLoginResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + out.Token}
}

func (s *testServer) project(t *testing.T, owner map[string]string) ProjectResponse {
	t.Helper()
	res, data := doJSON(t, s.Client(), http.MethodPost, s.URL+"/v0/projects", map[string]any{
		"id":   "dino",
		"name": "Dino Park",
	}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p ProjectResponse
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestAuthenticationRequired(t *testing.T) {
	srv := newTestServer(t)
	res, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must be open, got %d", res.StatusCode)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, data) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
}

func TestProjectLifecycleAndErrors(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.token(t, "alice", "CREATE_PROJECT")
	p := srv.project(t, alice)
	if p.CurrentSprintNumber != 1 || len(p.UnlockedAnimals) != 0 {
		t.Fatalf("unexpected project: %+v", p)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{"id": "dino", "name": "Again"}, alice)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": " "}, alice)
	if res.StatusCode != http.StatusBadRequest || errorCode(t, data) != "bad_request" {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}

	bob := srv.token(t, "bob")
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino", nil, bob)
	if res.StatusCode != http.StatusForbidden || errorCode(t, data) != "forbidden" {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/join", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("join: %d", res.StatusCode)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/sprints", map[string]any{"story_points_planned": 10}, bob)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("developer must not create sprints: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/sprints", map[string]any{"story_points_planned": 10}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create sprint: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/sprints/current", nil, bob)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("current sprint: %d %s", res.StatusCode, string(data))
	}
	var s domain.Sprint
	_ = json.Unmarshal(data, &s)
	if s.Number != 1 || s.StoryPointsPlanned == nil || *s.StoryPointsPlanned != 10 {
		t.Fatalf("unexpected sprint: %+v", s)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/sprints/9", nil, bob)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown sprint, got %d", res.StatusCode)
	}
}

func TestIssueFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.token(t, "alice", "CREATE_PROJECT")
	srv.project(t, alice)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/issues", map[string]any{
		"title":        "Fence",
		"assignee_id":  "alice",
		"story_points": 3,
	}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create issue: %d %s", res.StatusCode, string(data))
	}
	var issue domain.Issue
	_ = json.Unmarshal(data, &issue)
	if issue.State != "Backlog" {
		t.Fatalf("new issues start in the first NEW state, got %q", issue.State)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v0/projects/dino/issues/"+issue.ID, map[string]any{"state": "In Progress"}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update issue: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &issue)
	if issue.State != "In Progress" || !issue.InSprint(1) {
		t.Fatalf("expected in-progress issue in sprint 1, got %+v", issue)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/issues/"+issue.ID+"/finish", map[string]any{
		"done_state":         "Done",
		"definition_of_done": []map[string]any{{"item": "Code is reviewed", "checked": true}},
	}, alice)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected DoD rejection, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/issues", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list issues: %d %s", res.StatusCode, string(data))
	}
	var issues []domain.Issue
	_ = json.Unmarshal(data, &issues)
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %d", len(issues))
	}
}

func TestStandupOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.token(t, "alice", "CREATE_PROJECT")
	srv.project(t, alice)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/meetings/standup", map[string]any{
		"attendee_ids": []string{"bob"},
	}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("create standup: %d %s", res.StatusCode, string(data))
	}
	for _, cmd := range []string{"start", "next"} {
		res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/meetings/standup/commands", map[string]any{"command": cmd}, alice)
		if res.StatusCode != http.StatusOK {
			t.Fatalf("%s: %d %s", cmd, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/meetings/standup/commands", map[string]any{"command": "start"}, alice)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on restart, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/meetings/standup/commands", map[string]any{"command": "award_medals"}, alice)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for retro command on standup, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/meetings/standup/commands", map[string]any{"command": "finish"}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("finish: %d %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/meetings/standup", nil, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected no active standup, got %d", res.StatusCode)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/stats/me", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", res.StatusCode, string(data))
	}
	var stats domain.UserStats
	_ = json.Unmarshal(data, &stats)
	if stats.XP != 10 {
		t.Fatalf("expected standup xp, got %+v", stats)
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.token(t, "alice")
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "ci"}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(data))
	}
	var key APIKeyResponse
	_ = json.Unmarshal(data, &key)
	if !strings.HasPrefix(key.Key, "sg_") {
		t.Fatalf("unexpected key: %+v", key)
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{apiKeyHeader: key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, string(data))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(data, &who)
	if who.UserID != "alice" || who.Source != "api_key" {
		t.Fatalf("unexpected principal: %+v", who)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v0/me/api-keys/"+key.ID, nil, alice)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete key: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{apiKeyHeader: key.Key})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked key must fail, got %d", res.StatusCode)
	}
}

func TestEventStream(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.token(t, "alice", "CREATE_PROJECT")
	srv.project(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v0/projects/dino/events/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for k, v := range alice {
		req.Header.Set(k, v)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	reader := bufio.NewReader(res.Body)
	if line, _ := reader.ReadString('\n'); !strings.HasPrefix(line, ": connected") {
		t.Fatalf("expected connected comment, got %q", line)
	}

	post, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/projects/dino/messages", map[string]any{"message": "hello"}, alice)
	if post.StatusCode != http.StatusCreated {
		t.Fatalf("post message: %d %s", post.StatusCode, string(data))
	}
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if strings.TrimSpace(line) == "event: USER_MESSAGE" {
			break
		}
	}
	line, _ := reader.ReadString('\n')
	if !strings.HasPrefix(line, "data: ") || !strings.Contains(line, `"hello"`) {
		t.Fatalf("unexpected data line %q", line)
	}
}

func TestWebhookDispatch(t *testing.T) {
	received := make(chan *http.Request, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	srv := newTestServer(t)
	alice := srv.token(t, "alice", "CREATE_PROJECT")
	srv.project(t, alice)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/dino/config", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get config: %d %s", res.StatusCode, string(data))
	}
	var cfg ProjectConfigResponse
	_ = json.Unmarshal(data, &cfg)
	raw := cfg.ConfigYAML + "webhooks:\n  - url: " + hook.URL + "\n    events: [USER_MESSAGE]\n    secret: s3\n"
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/projects/dino/config", map[string]any{"config_yaml": raw}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("import config: %d %s", res.StatusCode, string(data))
	}

	d := NewWebhookDispatcher(srv.Engine, slog.New(slog.NewTextHandler(io.Discard, nil)))
	d.Dispatch(context.Background(), domain.Event{ID: "ev-1", ProjectID: "dino", Type: "USER_JOINED", Visibility: domain.VisibilityPublic})
	d.Dispatch(context.Background(), domain.Event{ID: "ev-2", ProjectID: "dino", Type: "USER_MESSAGE", Visibility: domain.VisibilityPublic})
	select {
	case r := <-received:
		if r.Header.Get("X-Scrumgame-Delivery") != "ev-2" || r.Header.Get("X-Scrumgame-Secret") != "s3" {
			t.Fatalf("unexpected delivery headers: %v", r.Header)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook not called")
	}
}
