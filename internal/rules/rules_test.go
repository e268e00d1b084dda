package rules_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"scrumgame/internal/config"
	"scrumgame/internal/db"
	"scrumgame/internal/domain"
	"scrumgame/internal/events"
	"scrumgame/internal/migrate"
	"scrumgame/internal/repo"
	"scrumgame/internal/reward"
	"scrumgame/internal/rules"
)

var fixedNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func event(typ, user string, data ...domain.DataField) domain.Event {
	return domain.Event{
		ID:         "evt-" + typ,
		ProjectID:  "proj-1",
		UserID:     user,
		Type:       typ,
		Visibility: domain.VisibilityPublic,
		Timestamp:  fixedNow,
		Data:       data,
	}
}

func TestStatCounterIssueCompleted(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eng := rules.NewEngine()
	eng.Register(rules.StatCounterRule{Stats: r})

	before, err := r.GetUserStats(ctx, "proj-1", "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	follow := eng.Run(ctx, event(events.TypeIssueCompleted, "u", domain.StringField(events.FieldIssueTitle, "Fix login")))
	if len(follow) != 0 {
		t.Fatalf("stat counter emits no follow-up, got %d", len(follow))
	}
	after, err := r.GetUserStats(ctx, "proj-1", "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := before
	want.IssuesCompleted++
	if after != want {
		t.Fatalf("expected only issues_completed to change:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestStatCounterCountsByType(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eng := rules.NewEngine()
	eng.Register(rules.StatCounterRule{Stats: r})

	for _, typ := range []string{
		events.TypeEventReaction,
		events.TypeUserMessage,
		events.TypeCommentOnIssue,
		events.TypeIssueCreated,
		events.TypeOpenPullRequest,
		events.TypeClosePullRequest,
		events.TypeReviewAccept,
		events.TypeReviewChangeRequest,
	} {
		eng.Run(ctx, event(typ, "u"))
	}
	s, err := r.GetUserStats(ctx, "proj-1", "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.ReactionsGiven != 1 || s.CommentsWritten != 2 || s.IssuesCreated != 1 ||
		s.PullRequestsCreated != 1 || s.PullRequestsClosed != 1 || s.PullRequestsReviewed != 2 {
		t.Fatalf("unexpected counters: %+v", s)
	}
}

func TestStatCounterSkipsSystemEvents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eng := rules.NewEngine()
	eng.Register(rules.StatCounterRule{Stats: r})
	eng.Run(ctx, event(events.TypeIssueCreated, ""))
	all, err := r.ListUserStats(ctx, "proj-1")
	if err != nil {
		t.Fatalf("list stats: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no stats rows, got %d", len(all))
	}
}

type failingRule struct{ calls *int }

func (failingRule) Name() string                  { return "failing" }
func (failingRule) Triggers() []string            { return []string{events.TypeUserMessage} }
func (failingRule) Condition(e domain.Event) bool { return true }
func (r failingRule) Action(ctx context.Context, e domain.Event) (*domain.CreateEventInput, error) {
	*r.calls++
	return nil, errors.New("boom")
}

func TestEngineContinuesAfterFailingRule(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	calls := 0
	eng := rules.NewEngine()
	eng.Register(failingRule{calls: &calls}, rules.StatCounterRule{Stats: r})
	eng.Run(ctx, event(events.TypeUserMessage, "u"))
	if calls != 1 {
		t.Fatalf("expected failing rule invoked once, got %d", calls)
	}
	s, err := r.GetUserStats(ctx, "proj-1", "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.CommentsWritten != 1 {
		t.Fatalf("later rule must still run, got %+v", s)
	}
}

func TestMeetingXPRuleGrantsLeader(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eng := rules.NewEngine()
	eng.Register(rules.MeetingXPRule{Configs: r})

	ended := event(events.TypeStandupEnded, "lead", domain.StringField(events.FieldMeetingLeader, "lead"))
	follow := eng.Run(ctx, ended)
	if len(follow) != 1 {
		t.Fatalf("expected one follow-up, got %d", len(follow))
	}
	xp := follow[0]
	if xp.Type != events.TypeXPGain || xp.UserID != "lead" || xp.ParentID != ended.ID || xp.Visibility != domain.VisibilityPrivate {
		t.Fatalf("unexpected follow-up: %+v", xp)
	}
	want := config.Default("proj-1").MeetingXP(domain.MeetingStandup)
	if f, _ := xp.Field(events.FieldXP); f.Value == "" || f.Value != strconv.Itoa(want) {
		t.Fatalf("expected %d xp, got %q", want, f.Value)
	}
	again := eng.Run(ctx, ended)
	if again[0].ID != xp.ID {
		t.Fatalf("expected a stable follow-up id")
	}
}

func TestLevelUpRule(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	eng := rules.NewEngine()
	eng.Register(rules.LevelUpRule{Stats: r, Rewards: reward.NewSeeded(5)})

	gain := func(id string, xp int) domain.Event {
		e := event(events.TypeXPGain, "u", domain.IntField(events.FieldXP, xp))
		e.ID = id
		e.Visibility = domain.VisibilityPrivate
		return e
	}
	if follow := eng.Run(ctx, gain("x1", 60)); len(follow) != 0 {
		t.Fatalf("60 xp must not level up, got %+v", follow)
	}
	follow := eng.Run(ctx, gain("x2", 60))
	if len(follow) != 1 || follow[0].Type != events.TypeLevelUp {
		t.Fatalf("expected LEVEL_UP, got %+v", follow)
	}
	level, _ := follow[0].Field(events.FieldNewLevel)
	if level.Value != "2" {
		t.Fatalf("expected level 2, got %s", level.Value)
	}
	s, err := r.GetUserStats(ctx, "proj-1", "u")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.XP != 120 || s.Level != 2 {
		t.Fatalf("unexpected stats: %+v", s)
	}
	if s.VirtualCurrency < 110 || s.VirtualCurrency >= 120 {
		t.Fatalf("expected level 2 currency in [110,120), got %d", s.VirtualCurrency)
	}
}
