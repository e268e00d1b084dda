package scrumgamesdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRecordEventSendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v0/projects/dino/events" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sg_key" || r.Header.Get("X-Ims-Token") != "ims" {
			t.Errorf("missing credentials: %v", r.Header)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["type"] != "OPEN_PULL_REQUEST" || body["user_id"] != "alice" {
			t.Errorf("unexpected body %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(Event{ID: "ev-1", Type: "OPEN_PULL_REQUEST", Message: "opened the pull request 'Fence'."})
	}))
	defer srv.Close()

	c := New(srv.URL, "dino")
	c.APIKey = "sg_key"
	c.IMSToken = "ims"
	ev, err := c.RecordEvent(context.Background(), "OPEN_PULL_REQUEST", "alice", DataField{Key: "pullRequestTitle", Type: "STRING", Value: "Fence"})
	if err != nil {
		t.Fatalf("record event: %v", err)
	}
	if ev.ID != "ev-1" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestAPIErrorCarriesCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":"forbidden","message":"privilege MANAGE_MEETINGS required"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "dino")
	c.BearerToken = "token"
	_, err := c.MeetingCommand(context.Background(), "standup", "start", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Code != "forbidden" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestStreamEventsDecodesFrames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v0/projects/dino/events/stream" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": connected\n\n")
		fmt.Fprint(w, "id: ev-1\nevent: USER_MESSAGE\ndata: {\"id\":\"ev-1\",\"type\":\"USER_MESSAGE\",\"message\":\"hi\"}\n\n")
		fmt.Fprint(w, ":\n\n")
		fmt.Fprint(w, "id: ev-2\nevent: ISSUE_CREATED\ndata: {\"id\":\"ev-2\",\"type\":\"ISSUE_CREATED\"}\n\n")
	}))
	defer srv.Close()

	var got []string
	err := New(srv.URL, "dino").StreamEvents(context.Background(), func(ev Event) error {
		got = append(got, ev.Type)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(got) != 2 || got[0] != "USER_MESSAGE" || got[1] != "ISSUE_CREATED" {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestFeedQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("size") != "10" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		next := 3
		_ = json.NewEncoder(w).Encode(PaginatedEvents{Items: []Event{{ID: "a"}}, NextPage: &next, Page: 2})
	}))
	defer srv.Close()

	page, err := New(srv.URL, "dino").Feed(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(page.Items) != 1 || page.NextPage == nil || *page.NextPage != 3 {
		t.Fatalf("unexpected page %+v", page)
	}
}
