package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"scrumgame/internal/db"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
	"scrumgame/internal/ims"
	"scrumgame/internal/migrate"
	"scrumgame/internal/reward"
)

var fixedNow = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine *engine.Engine
	Memory *ims.Memory
	Ctx    context.Context
}

func newTestEnv(t *testing.T, opts engine.Options) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	clock := func() time.Time { return fixedNow }
	mem := ims.NewMemory()
	mem.Now = clock
	opts.Adapter = mem
	opts.Now = clock
	if opts.Rewards == nil {
		opts.Rewards = reward.NewSeeded(42)
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	eng, err := engine.New(conn, opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Close)

	ctx := as(context.Background(), "alice", auth.CreateProject)
	if _, err := eng.CreateProject(ctx, engine.ProjectCreateOptions{ID: "proj-1", Name: "Dino Park"}); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return testEnv{Engine: eng, Memory: mem, Ctx: ctx}
}

func as(ctx context.Context, userID string, privileges ...auth.Privilege) context.Context {
	return auth.WithPrincipal(ctx, auth.Principal{UserID: userID, Privileges: privileges, Source: "test"})
}

func intPtr(v int) *int { return &v }

func (env testEnv) sprint(t *testing.T, start, end time.Time, planned *int) domain.Sprint {
	t.Helper()
	s, err := env.Engine.CreateSprint(env.Ctx, "proj-1", engine.SprintCreateOptions{StartDate: start, EndDate: end, StoryPointsPlanned: planned})
	if err != nil {
		t.Fatalf("create sprint: %v", err)
	}
	return s
}

func (env testEnv) doneIssue(t *testing.T, assignee string, points int) {
	t.Helper()
	_, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{
		Title:        "work of " + assignee,
		State:        "Done",
		AssigneeID:   assignee,
		SprintNumber: intPtr(1),
		StoryPoints:  points,
	})
	if err != nil {
		t.Fatalf("create issue: %v", err)
	}
}

func TestCreateProjectMakesCallerOwner(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	members, err := env.Engine.Members(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "alice" || members[0].Role != engine.OwnerRole {
		t.Fatalf("unexpected members: %+v", members)
	}
	p, err := env.Engine.GetProject(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CurrentSprintNumber != 1 {
		t.Fatalf("expected sprint counter 1, got %d", p.CurrentSprintNumber)
	}
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "proj-1", Name: "Again"})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestAuthorization(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	eve := as(context.Background(), "eve")

	_, err := env.Engine.CreateStandup(eve, "proj-1", nil)
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Privilege != auth.ManageMeetings {
		t.Fatalf("expected forbidden MANAGE_MEETINGS, got %v", err)
	}
	if _, err := env.Engine.CreateProject(eve, engine.ProjectCreateOptions{Name: "mine"}); !errors.As(err, &forbidden) {
		t.Fatalf("expected forbidden project creation, got %v", err)
	}
	if _, err := env.Engine.Feed(context.Background(), "proj-1", domain.Page{}); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	if _, err := env.Engine.JoinProject(eve, "proj-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := env.Engine.CreateStandup(eve, "proj-1", nil); err != nil {
		t.Fatalf("developer may run meetings: %v", err)
	}
	if _, err := env.Engine.CreateSprint(eve, "proj-1", engine.SprintCreateOptions{}); !errors.As(err, &forbidden) {
		t.Fatalf("developer must not manage sprints, got %v", err)
	}
	if _, err := env.Engine.AddMember(env.Ctx, "proj-1", "frank", "wizard"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unknown role to be invalid, got %v", err)
	}
}

func TestHideForbiddenReportsNotFound(t *testing.T) {
	env := newTestEnv(t, engine.Options{HideForbidden: true})
	_, err := env.Engine.GetProject(as(context.Background(), "eve"), "proj-1")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStandupLifecycle(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	m, err := env.Engine.CreateStandup(env.Ctx, "proj-1", []string{"bob", "carol", "bob"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.Leader() != "alice" || len(m.Attendees) != 3 || m.Standup.Started() {
		t.Fatalf("unexpected new standup: %+v", m)
	}
	again, err := env.Engine.CreateStandup(env.Ctx, "proj-1", nil)
	if err != nil || again.ID != m.ID {
		t.Fatalf("expected existing standup %s, got %s (%v)", m.ID, again.ID, err)
	}

	sub, err := env.Engine.MeetingUpdates(env.Ctx, "proj-1", domain.MeetingStandup)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer env.Engine.UnsubscribeMeetings(sub)

	m, err = env.Engine.StartStandup(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	order := slices.Clone(m.Standup.Order)
	slices.Sort(order)
	if !slices.Equal(order, []string{"alice", "bob", "carol"}) {
		t.Fatalf("order must permute attendees, got %v", m.Standup.Order)
	}
	if m.Standup.CurrentAttendee != m.Standup.Order[0] {
		t.Fatalf("current %s is not first of %v", m.Standup.CurrentAttendee, m.Standup.Order)
	}
	deadline := time.After(time.Second)
	for started := false; !started; {
		select {
		case snap := <-sub.Values():
			if !snap.Standup.Started() {
				continue
			}
			if snap.ID != m.ID || !slices.Equal(snap.Standup.Order, m.Standup.Order) {
				t.Fatalf("unexpected snapshot: %+v", snap)
			}
			started = true
		case <-deadline:
			t.Fatal("no meeting update received")
		}
	}

	if _, err := env.Engine.StartStandup(env.Ctx, "proj-1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second start, got %v", err)
	}
	if _, err := env.Engine.ChangeCurrentAttendee(env.Ctx, "proj-1", "mallory"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for non-attendee, got %v", err)
	}
	m, err = env.Engine.ChangeCurrentAttendee(env.Ctx, "proj-1", "carol")
	if err != nil || m.Standup.CurrentAttendee != "carol" {
		t.Fatalf("change current: %v %+v", err, m.Standup)
	}
	last := m.Standup.Order[len(m.Standup.Order)-1]
	if _, err := env.Engine.ChangeCurrentAttendee(env.Ctx, "proj-1", last); err != nil {
		t.Fatalf("change to last: %v", err)
	}
	m, err = env.Engine.NextAttendee(env.Ctx, "proj-1")
	if err != nil || m.Standup.CurrentAttendee != last {
		t.Fatalf("next must stay on last attendee %s: %v %+v", last, err, m.Standup)
	}

	m, err = env.Engine.FinishStandup(env.Ctx, "proj-1")
	if err != nil || m.Active {
		t.Fatalf("finish: %v active=%v", err, m.Active)
	}
	if _, err := env.Engine.ActiveMeeting(env.Ctx, "proj-1", domain.MeetingStandup); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no active standup, got %v", err)
	}
	stats, err := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.XP != 10 {
		t.Fatalf("leader should gain standup xp, got %d", stats.XP)
	}
	ended, err := env.Engine.Repo.LatestEvents(env.Ctx, "proj-1", events.TypeStandupEnded, 1)
	if err != nil || len(ended) != 1 {
		t.Fatalf("standup ended event: %v %d", err, len(ended))
	}
	xp, err := env.Engine.XPForUser(env.Ctx, "proj-1", ended[0].ID)
	if err != nil || xp != 10 {
		t.Fatalf("xp for event: %d %v", xp, err)
	}
	if bobXP, err := env.Engine.XPForUser(as(context.Background(), "bob", auth.ReadProject), "proj-1", ended[0].ID); err != nil || bobXP != 0 {
		t.Fatalf("attendee gains no leader xp, got %d (%v)", bobXP, err)
	}
}

func TestRetrospectiveNeedsSprint(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	_, err := env.Engine.CreateRetrospective(env.Ctx, "proj-1", nil, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found without sprint, got %v", err)
	}
}

func TestRetrospectiveMedalsAndFinish(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.sprint(t, fixedNow.Add(-24*time.Hour), fixedNow.Add(13*24*time.Hour), intPtr(8))
	env.doneIssue(t, "bob", 5)
	env.doneIssue(t, "carol", 8)
	env.doneIssue(t, "dave", 2)
	if _, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{Title: "open", State: "In Progress", AssigneeID: "bob", SprintNumber: intPtr(1), StoryPoints: 13}); err != nil {
		t.Fatalf("create open issue: %v", err)
	}

	m, err := env.Engine.CreateRetrospective(env.Ctx, "proj-1", []string{"bob", "carol", "dave"}, nil)
	if err != nil {
		t.Fatalf("create retro: %v", err)
	}
	r := m.Retrospective
	if r.SprintNumber != 1 || r.CurrentPage != domain.PageInformation || len(r.Activities) == 0 {
		t.Fatalf("unexpected retro: %+v", r)
	}
	if r.SprintStats.StoryPointsCompleted != 15 || r.SprintStats.SuccessState != domain.SuccessWithGoldChallenge {
		t.Fatalf("unexpected stats: %+v", r.SprintStats)
	}
	if r.GoldChallengeReward != "TRICERATOPS" || !slices.Equal(r.BaseRewards, []string{"ROCK_1"}) || len(r.StreakRewards) != 0 {
		t.Fatalf("unexpected rewards: %q %v %v", r.GoldChallengeReward, r.BaseRewards, r.StreakRewards)
	}
	if r.GoldMedal.UserID != "carol" || r.SilverMedal.UserID != "bob" || r.BronzeMedal.UserID != "dave" {
		t.Fatalf("unexpected medals: %+v %+v %+v", r.GoldMedal, r.SilverMedal, r.BronzeMedal)
	}

	if _, err := env.Engine.ChangeRetrospectivePage(env.Ctx, "proj-1", domain.PageMedals); err != nil {
		t.Fatalf("page: %v", err)
	}
	if _, err := env.Engine.ChangeRetrospectivePage(env.Ctx, "proj-1", "NOPE"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected invalid page, got %v", err)
	}
	for i := 0; i < 2; i++ {
		m, err = env.Engine.AwardMedals(env.Ctx, "proj-1")
		if err != nil || !m.Retrospective.MedalsAwarded {
			t.Fatalf("award %d: %v", i, err)
		}
	}
	want := map[string]struct {
		gold, silver, bronze, currency int
		badge                          domain.Badge
	}{
		"carol": {1, 0, 0, 100, domain.BadgeGold},
		"bob":   {0, 1, 0, 75, domain.BadgeSilver},
		"dave":  {0, 0, 1, 50, domain.BadgeBronze},
	}
	for user, w := range want {
		s, err := env.Engine.UserStats(env.Ctx, "proj-1", user)
		if err != nil {
			t.Fatalf("stats %s: %v", user, err)
		}
		if s.GoldMedals != w.gold || s.SilverMedals != w.silver || s.BronzeMedals != w.bronze || s.VirtualCurrency != w.currency {
			t.Fatalf("%s: unexpected stats %+v", user, s)
		}
		mem, err := env.Engine.Repo.GetMembership(env.Ctx, "proj-1", user)
		if err != nil || mem.CurrentBadge != w.badge {
			t.Fatalf("%s: badge %q (%v)", user, mem.CurrentBadge, err)
		}
	}

	m, err = env.Engine.FinishRetrospective(env.Ctx, "proj-1")
	if err != nil || m.Active {
		t.Fatalf("finish: %v", err)
	}
	p, err := env.Engine.GetProject(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if p.CurrentSprintNumber != 2 {
		t.Fatalf("sprint counter must advance by one, got %d", p.CurrentSprintNumber)
	}
	if !slices.Equal(p.UnlockedAnimals, []string{"TRICERATOPS"}) || !slices.Equal(p.UnlockedAssets, []string{"ROCK_1"}) {
		t.Fatalf("unexpected unlocks: %v %v", p.UnlockedAnimals, p.UnlockedAssets)
	}
	s, err := env.Engine.Sprint(env.Ctx, "proj-1", 1)
	if err != nil || !s.EndDate.Equal(fixedNow) {
		t.Fatalf("sprint must end now: %v %v", s.EndDate, err)
	}
	if _, err := env.Engine.CurrentSprint(env.Ctx, "proj-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no current sprint, got %v", err)
	}
	alice, _ := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if alice.XP != 50 {
		t.Fatalf("leader should gain retro xp, got %d", alice.XP)
	}
}

func TestSprintStatsStreak(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	day := 24 * time.Hour
	env.sprint(t, fixedNow.Add(-20*day), fixedNow.Add(-10*day), intPtr(5))
	env.sprint(t, fixedNow.Add(-10*day), fixedNow.Add(4*day), intPtr(5))
	env.doneIssue(t, "bob", 5)
	if _, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{Title: "second", State: "Done", AssigneeID: "bob", SprintNumber: intPtr(2), StoryPoints: 6}); err != nil {
		t.Fatalf("create: %v", err)
	}
	stats, err := env.Engine.SprintStats(env.Ctx, "proj-1", 2)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.SuccessState != domain.SuccessSuccess || stats.Streak != 2 {
		t.Fatalf("expected success with streak 2, got %s/%d", stats.SuccessState, stats.Streak)
	}
	if len(stats.UserStats) != 1 || stats.UserStats[0].IssuesCompleted != 1 || stats.UserStats[0].StoryPointsCompleted != 6 {
		t.Fatalf("unexpected user stats: %+v", stats.UserStats)
	}
	if stats.PercentageTimeElapsed <= 70 || stats.PercentageTimeElapsed >= 72 {
		t.Fatalf("expected about 71%% elapsed, got %f", stats.PercentageTimeElapsed)
	}
}

func TestReminders(t *testing.T) {
	day := 24 * time.Hour
	cases := []struct {
		name    string
		left    time.Duration
		done    int
		message string
	}{
		{"catch up on even day", 4 * day, 0, "4 days left in the sprint. You have 20 story points left to do. You can do it! 🚀"},
		{"quiet on odd day", 3 * day, 0, ""},
		{"sprint ending", 2 * day, 0, "The sprint is ending soon. You have 20 story points left to do. You can do it! 🚀"},
		{"on schedule", 4 * day, 20, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, engine.Options{})
			env.sprint(t, fixedNow.Add(-10*day), fixedNow.Add(tc.left), intPtr(20))
			if tc.done > 0 {
				env.doneIssue(t, "bob", tc.done)
			}
			feed, err := env.Engine.Feed(env.Ctx, "proj-1", domain.Page{})
			if err != nil {
				t.Fatalf("feed: %v", err)
			}
			got := systemMessages(feed)
			if tc.message == "" {
				if len(got) != 0 {
					t.Fatalf("expected no reminder, got %v", got)
				}
				return
			}
			if len(got) != 1 || got[0] != tc.message {
				t.Fatalf("expected %q, got %v", tc.message, got)
			}
			feed, _ = env.Engine.Feed(env.Ctx, "proj-1", domain.Page{})
			if n := len(systemMessages(feed)); n != 1 {
				t.Fatalf("reminder must run once per trigger, got %d", n)
			}
			env.Engine.Reminders.Schedule()
			feed, _ = env.Engine.Feed(env.Ctx, "proj-1", domain.Page{})
			if n := len(systemMessages(feed)); n != 2 {
				t.Fatalf("expected a reminder after rescheduling, got %d", n)
			}
		})
	}
}

func systemMessages(feed []domain.Event) []string {
	var res []string
	for _, e := range feed {
		if e.Type == events.TypeSystemMessage {
			res = append(res, e.Message)
		}
	}
	return res
}

func TestNextTrigger(t *testing.T) {
	env := newTestEnv(t, engine.Options{ReminderHour: intPtr(7)})
	next := env.Engine.Reminders.NextTrigger(fixedNow)
	if want := time.Date(2024, 3, 5, 7, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected %v, got %v", want, next)
	}
	early := time.Date(2024, 3, 4, 6, 59, 0, 0, time.UTC)
	if next := env.Engine.Reminders.NextTrigger(early); next.Day() != 4 {
		t.Fatalf("expected same-day trigger, got %v", next)
	}
}

func TestMessagesReactionsAndCounters(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	bob := as(context.Background(), "bob")
	if _, err := env.Engine.JoinProject(bob, "proj-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	msg, err := env.Engine.PostMessage(env.Ctx, "proj-1", "", "standup in 5")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if _, err := env.Engine.PostMessage(env.Ctx, "proj-1", "", "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected empty message to be invalid, got %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := env.Engine.React(bob, "proj-1", msg.ID, "🎉"); err != nil {
			t.Fatalf("react: %v", err)
		}
	}
	reactions, err := env.Engine.Reactions(env.Ctx, "proj-1", msg.ID)
	if err != nil {
		t.Fatalf("reactions: %v", err)
	}
	if len(reactions) != 1 || reactions[0] != (domain.Reaction{Reaction: "🎉", UserID: "bob"}) {
		t.Fatalf("expected one distinct reaction, got %+v", reactions)
	}
	if _, err := env.Engine.React(bob, "proj-1", "missing", "👍"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	bobStats, _ := env.Engine.UserStats(bob, "proj-1", "")
	aliceStats, _ := env.Engine.UserStats(env.Ctx, "proj-1", "")
	if bobStats.ReactionsGiven != 2 || aliceStats.CommentsWritten != 1 {
		t.Fatalf("unexpected counters: bob=%+v alice=%+v", bobStats, aliceStats)
	}

	pr, err := env.Engine.RecordEvent(bob, "proj-1", domain.CreateEventInput{
		Type: events.TypeOpenPullRequest,
		Data: []domain.DataField{domain.StringField(events.FieldPullRequest, "Add login")},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if pr.UserID != "bob" || pr.Message != "opened the pull request 'Add login'." {
		t.Fatalf("unexpected pull request event: %+v", pr)
	}
	if _, err := env.Engine.RecordEvent(bob, "proj-1", domain.CreateEventInput{Type: events.TypeLevelUp}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected level up to be rejected, got %v", err)
	}
}

func TestEventStreamFiltersByProjectAndVisibility(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	bob := as(context.Background(), "bob")
	if _, err := env.Engine.JoinProject(bob, "proj-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	sub, err := env.Engine.SubscribeEvents(bob, "proj-1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer env.Engine.UnsubscribeEvents(sub)

	if _, err := env.Engine.CreateStandup(env.Ctx, "proj-1", []string{"bob"}); err != nil {
		t.Fatalf("standup: %v", err)
	}
	if _, err := env.Engine.FinishStandup(env.Ctx, "proj-1"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if _, err := env.Engine.PostMessage(env.Ctx, "proj-1", "", "done"); err != nil {
		t.Fatalf("post: %v", err)
	}
	deadline := time.After(time.Second)
	for {
		select {
		case e := <-sub.Values():
			switch e.Type {
			case events.TypeUserMessage:
				return
			case events.TypeStandupEnded, events.TypeXPGain:
				t.Fatalf("bob must not see %s", e.Type)
			}
		case <-deadline:
			t.Fatal("no message received")
		}
	}
}

func TestFinishIssueCountsCompletion(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	issue, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{Title: "Login", AssigneeID: "bob", StoryPoints: 3})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.FinishIssue(env.Ctx, "proj-1", issue.ID, nil, "Done"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected unconfirmed definition of done to be invalid, got %v", err)
	}
	cfg, err := env.Engine.ProjectConfig(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	var dod []domain.DoDConfirmState
	for _, item := range cfg.DefinitionOfDone {
		dod = append(dod, domain.DoDConfirmState{Item: item.Text, Checked: item.Required})
	}
	done, err := env.Engine.FinishIssue(env.Ctx, "proj-1", issue.ID, dod, "Done")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if done.State != "Done" || done.SprintNumber == nil || *done.SprintNumber != 1 {
		t.Fatalf("expected done issue in sprint 1, got %+v", done)
	}
	evs, err := env.Engine.IssueEvents(env.Ctx, "proj-1", issue.ID)
	if err != nil {
		t.Fatalf("issue events: %v", err)
	}
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	want := []string{events.TypeIssueCreated, events.TypeCommentOnIssue, events.TypeIssueStateChanged, events.TypeIssueCompleted}
	if !slices.Equal(types, want) {
		t.Fatalf("expected %v, got %v", want, types)
	}
	if !strings.Contains(evs[1].Message, "Definition of Done") {
		t.Fatalf("expected DoD comment, got %q", evs[1].Message)
	}
	bob, _ := env.Engine.UserStats(env.Ctx, "proj-1", "bob")
	alice, _ := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if bob.IssuesCompleted != 1 || alice.IssuesCreated != 1 || alice.CommentsWritten != 1 {
		t.Fatalf("unexpected counters: bob=%+v alice=%+v", bob, alice)
	}
}

func TestPlanningFinishGrantsXP(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	m, err := env.Engine.CreatePlanning(env.Ctx, "proj-1", []string{"bob"}, "ship login")
	if err != nil || m.Planning.SprintNumber != 1 || m.Planning.Goal != "ship login" {
		t.Fatalf("create planning: %v %+v", err, m.Planning)
	}
	bob := as(context.Background(), "bob")
	if _, err := env.Engine.JoinProject(bob, "proj-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := env.Engine.JoinMeeting(bob, "proj-1", domain.MeetingPlanning); err != nil {
		t.Fatalf("join meeting: %v", err)
	}
	if _, err := env.Engine.FinishPlanning(env.Ctx, "proj-1"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	alice, _ := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if alice.XP != 30 {
		t.Fatalf("expected planning xp 30, got %d", alice.XP)
	}
}

func TestIssuesAreScopedToTheirProject(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	issue, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{Title: "secret work"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mallory := as(context.Background(), "mallory", auth.CreateProject)
	if _, err := env.Engine.CreateProject(mallory, engine.ProjectCreateOptions{ID: "proj-2", Name: "Other"}); err != nil {
		t.Fatalf("create project: %v", err)
	}

	if _, err := env.Engine.Issue(mallory, "proj-2", issue.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on read, got %v", err)
	}
	title := "renamed via proj-2"
	if _, err := env.Engine.UpdateIssue(mallory, "proj-2", issue.ID, engine.IssueUpdateOptions{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, err := env.Engine.IssueEvents(mallory, "proj-2", issue.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on issue events, got %v", err)
	}

	evs, err := env.Engine.IssueEvents(env.Ctx, "proj-1", issue.ID)
	if err != nil {
		t.Fatalf("issue events: %v", err)
	}
	if len(evs) != 1 || evs[0].ProjectID != "proj-1" || evs[0].Type != events.TypeIssueCreated {
		t.Fatalf("unexpected owner events: %+v", evs)
	}
	own, err := env.Engine.Issue(env.Ctx, "proj-1", issue.ID)
	if err != nil || own.Title != "secret work" {
		t.Fatalf("owner issue changed: %+v %v", own, err)
	}
	foreign, _ := env.Engine.UserStats(mallory, "proj-2", "alice")
	mine, _ := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if foreign.IssuesCreated != 0 || mine.IssuesCreated != 1 {
		t.Fatalf("unexpected counters: proj-2=%d proj-1=%d", foreign.IssuesCreated, mine.IssuesCreated)
	}
}

func TestFinishIssueWithRenamedDoneState(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	cfg, err := env.Engine.ProjectConfig(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	for i, st := range cfg.IMS.IssueStates {
		if st.Type == domain.StateDone {
			cfg.IMS.IssueStates[i].Name = "Closed"
		}
	}
	if err := env.Engine.ImportConfig(env.Ctx, "proj-1", cfg); err != nil {
		t.Fatalf("import config: %v", err)
	}
	issue, err := env.Engine.CreateIssue(env.Ctx, "proj-1", domain.IssueInput{Title: "Fence", AssigneeID: "bob", StoryPoints: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var dod []domain.DoDConfirmState
	for _, item := range cfg.DefinitionOfDone {
		dod = append(dod, domain.DoDConfirmState{Item: item.Text, Checked: true})
	}
	if _, err := env.Engine.FinishIssue(env.Ctx, "proj-1", issue.ID, dod, "Closed"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	evs, err := env.Engine.IssueEvents(env.Ctx, "proj-1", issue.ID)
	if err != nil {
		t.Fatalf("issue events: %v", err)
	}
	if evs[len(evs)-1].Type != events.TypeIssueCompleted {
		t.Fatalf("expected completion last, got %s", evs[len(evs)-1].Type)
	}
	bob, _ := env.Engine.UserStats(env.Ctx, "proj-1", "bob")
	if bob.IssuesCompleted != 1 {
		t.Fatalf("expected bob to complete one issue, got %d", bob.IssuesCompleted)
	}
}

func TestRecordEventForAnotherUser(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	bob := as(context.Background(), "bob")
	if _, err := env.Engine.JoinProject(bob, "proj-1"); err != nil {
		t.Fatalf("join: %v", err)
	}
	pr := func(user string) domain.CreateEventInput {
		return domain.CreateEventInput{
			Type:   events.TypeOpenPullRequest,
			UserID: user,
			Data:   []domain.DataField{domain.StringField(events.FieldPullRequest, "Fence")},
		}
	}

	var forbidden auth.ForbiddenError
	if _, err := env.Engine.RecordEvent(bob, "proj-1", pr("alice")); !errors.As(err, &forbidden) {
		t.Fatalf("expected developer to be forbidden, got %v", err)
	}
	if _, err := env.Engine.RecordEvent(env.Ctx, "proj-1", pr("ghost")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected non-member to be rejected, got %v", err)
	}
	ev, err := env.Engine.RecordEvent(env.Ctx, "proj-1", pr("bob"))
	if err != nil || ev.UserID != "bob" {
		t.Fatalf("owner records for member: %+v %v", ev, err)
	}
	stats, _ := env.Engine.UserStats(env.Ctx, "proj-1", "bob")
	if stats.PullRequestsCreated != 1 {
		t.Fatalf("expected one pull request for bob, got %d", stats.PullRequestsCreated)
	}
	alice, _ := env.Engine.UserStats(env.Ctx, "proj-1", "alice")
	if alice.PullRequestsCreated != 0 {
		t.Fatalf("alice credited with %d pull requests", alice.PullRequestsCreated)
	}
}

func TestCreateSprintLeavesCurrentSprintNumber(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	first := env.sprint(t, fixedNow.Add(-24*time.Hour), fixedNow.Add(13*24*time.Hour), intPtr(10))
	second := env.sprint(t, fixedNow.Add(13*24*time.Hour), fixedNow.Add(27*24*time.Hour), intPtr(10))
	if first.Number != 1 || second.Number != 2 {
		t.Fatalf("expected sprints 1 and 2, got %d and %d", first.Number, second.Number)
	}
	p, err := env.Engine.GetProject(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.CurrentSprintNumber != 1 {
		t.Fatalf("expected counter to stay at 1, got %d", p.CurrentSprintNumber)
	}
}
