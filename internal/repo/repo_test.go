package repo_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scrumgame/internal/db"
	"scrumgame/internal/domain"
	"scrumgame/internal/migrate"
	"scrumgame/internal/repo"
)

var day = 24 * time.Hour

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	now := "2024-03-04T09:00:00Z"
	if err := r.InsertProject(ctx, nil, domain.Project{ID: "p1", Name: "Park", CurrentSprintNumber: 1, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("insert project: %v", err)
	}
	return r, ctx
}

func TestCurrentAndPreviousSprint(t *testing.T) {
	r, ctx := newRepo(t)
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	sprints := []domain.Sprint{
		{ProjectID: "p1", Number: 1, StartDate: now.Add(-28 * day), EndDate: now.Add(-14 * day)},
		{ProjectID: "p1", Number: 2, StartDate: now.Add(-14 * day), EndDate: now},
		{ProjectID: "p1", Number: 3, StartDate: now, EndDate: now.Add(14 * day)},
	}
	for _, s := range sprints {
		if err := r.InsertSprint(ctx, nil, s); err != nil {
			t.Fatalf("insert sprint %d: %v", s.Number, err)
		}
	}

	cur, err := r.CurrentSprint(ctx, "p1", now)
	if err != nil || cur.Number != 3 {
		t.Fatalf("current sprint: %+v %v", cur, err)
	}
	prev, err := r.PreviousSprint(ctx, "p1", now)
	if err != nil || prev.Number != 2 {
		t.Fatalf("previous sprint: %+v %v", prev, err)
	}
	if _, err := r.CurrentSprint(ctx, "p1", now.Add(30*day)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after the last sprint, got %v", err)
	}
	if n, err := r.MaxSprintNumber(ctx, "p1"); err != nil || n != 3 {
		t.Fatalf("max sprint number: %d %v", n, err)
	}
}

func TestUpdateUserStatsSerializesWriters(t *testing.T) {
	r, ctx := newRepo(t)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.UpdateUserStats(ctx, "p1", "alice", func(s *domain.UserStats) { s.CommentsWritten++ }); err != nil {
				t.Errorf("update stats: %v", err)
			}
		}()
	}
	wg.Wait()

	s, err := r.GetUserStats(ctx, "p1", "alice")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if s.CommentsWritten != 10 {
		t.Fatalf("expected 10 comments, got %d", s.CommentsWritten)
	}
	fresh, err := r.GetUserStats(ctx, "p1", "bob")
	if err != nil || fresh.Level != 1 || fresh.XP != 0 {
		t.Fatalf("unexpected stats for a new user: %+v %v", fresh, err)
	}
}

func TestEventsForUserHonorsVisibility(t *testing.T) {
	r, ctx := newRepo(t)
	base := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	evs := []domain.Event{
		{ID: "pub", ProjectID: "p1", UserID: "bob", Type: "USER_MESSAGE", Visibility: domain.VisibilityPublic},
		{ID: "own", ProjectID: "p1", UserID: "alice", Type: "XP_GAIN", Visibility: domain.VisibilityPrivate},
		{ID: "shared", ProjectID: "p1", UserID: "bob", Type: "XP_GAIN", Visibility: domain.VisibilityPrivate, VisibleTo: []string{"alice"}},
		{ID: "other", ProjectID: "p1", UserID: "bob", Type: "XP_GAIN", Visibility: domain.VisibilityPrivate},
		{ID: "internal", ProjectID: "p1", UserID: "alice", Type: "STANDUP_ENDED", Visibility: domain.VisibilityInternal},
	}
	for i, ev := range evs {
		ev.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if err := r.InsertEvent(ctx, nil, ev); err != nil {
			t.Fatalf("insert %s: %v", ev.ID, err)
		}
	}

	got, err := r.EventsForUser(ctx, "p1", "alice", domain.Page{Size: 10})
	if err != nil {
		t.Fatalf("events for user: %v", err)
	}
	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	want := []string{"shared", "own", "pub"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, ids)
		}
	}

	page, err := r.EventsForUser(ctx, "p1", "alice", domain.Page{Number: 1, Size: 2})
	if err != nil || len(page) != 1 || page[0].ID != "pub" {
		t.Fatalf("second page: %+v %v", page, err)
	}
}
