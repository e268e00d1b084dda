package ims_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/ims"
)

func TestHTTPAdapterForwardsCallerToken(t *testing.T) {
	var gotAuth, gotSince string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/projects/DINO/issues/ISS-1":
			_ = json.NewEncoder(w).Encode(domain.Issue{ID: "ISS-1", Title: "Remote", State: "Done"})
		case r.Method == http.MethodGet && r.URL.Path == "/projects/DINO/issues/ISS-1/events":
			gotSince = r.URL.Query().Get("since")
			_ = json.NewEncoder(w).Encode([]domain.CreateEventInput{{ID: "ext-1", Type: "COMMENT_ON_ISSUE"}})
		case r.Method == http.MethodPatch && r.URL.Path == "/projects/DINO/issues/ISS-1":
			var m ims.Mutation
			if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(domain.Issue{ID: "ISS-1", Title: *m.Title})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := ims.NewHTTPAdapter(srv.URL, time.Second)
	ctx := ims.WithToken(context.Background(), "caller-token")

	issue, err := a.FindIssue(ctx, "DINO", "ISS-1")
	if err != nil {
		t.Fatalf("find issue: %v", err)
	}
	if issue.Title != "Remote" || gotAuth != "Bearer caller-token" {
		t.Fatalf("unexpected issue %+v auth %q", issue, gotAuth)
	}

	since := time.Date(2024, 3, 4, 8, 55, 0, 0, time.UTC)
	drafts, err := a.IssueEventsSince(ctx, "DINO", "ISS-1", since)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(drafts) != 1 || drafts[0].ID != "ext-1" {
		t.Fatalf("unexpected drafts %+v", drafts)
	}
	if gotSince != since.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected since %q", gotSince)
	}

	title := "Renamed"
	issue, err = a.UpdateIssue(ctx, "DINO", "ISS-1", ims.Mutation{Title: &title})
	if err != nil || issue.Title != "Renamed" {
		t.Fatalf("update: %+v %v", issue, err)
	}
}

func TestHTTPAdapterNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	a := ims.NewHTTPAdapter(srv.URL, time.Second)
	_, err := a.FindIssue(context.Background(), "DINO", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	var apiErr *ims.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected wrapped api error, got %v", err)
	}
}
