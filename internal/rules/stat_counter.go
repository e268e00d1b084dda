package rules

import (
	"context"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

// StatsStore applies read-modify-write updates to user counters.
type StatsStore interface {
	UpdateUserStats(ctx context.Context, projectID, userID string, fn func(*domain.UserStats)) (domain.UserStats, error)
}

// StatCounterRule counts reactions, comments, issues and pull request activity per user.
type StatCounterRule struct {
	Stats StatsStore
}

func (StatCounterRule) Name() string { return "stat-counter" }

func (StatCounterRule) Triggers() []string {
	return []string{
		events.TypeEventReaction,
		events.TypeUserMessage,
		events.TypeCommentOnIssue,
		events.TypeIssueCompleted,
		events.TypeIssueCreated,
		events.TypeOpenPullRequest,
		events.TypeClosePullRequest,
		events.TypeReviewAccept,
		events.TypeReviewChangeRequest,
	}
}

func (StatCounterRule) Condition(e domain.Event) bool {
	return e.UserID != "" && e.ProjectID != ""
}

func (r StatCounterRule) Action(ctx context.Context, e domain.Event) (*domain.CreateEventInput, error) {
	_, err := r.Stats.UpdateUserStats(ctx, e.ProjectID, e.UserID, func(s *domain.UserStats) {
		increment(e.Type, s)
	})
	return nil, err
}

func increment(eventType string, s *domain.UserStats) {
	switch eventType {
	case events.TypeEventReaction:
		s.ReactionsGiven++
	case events.TypeIssueCompleted:
		s.IssuesCompleted++
	case events.TypeIssueCreated:
		s.IssuesCreated++
	case events.TypeOpenPullRequest:
		s.PullRequestsCreated++
	case events.TypeClosePullRequest:
		s.PullRequestsClosed++
	case events.TypeReviewAccept, events.TypeReviewChangeRequest:
		s.PullRequestsReviewed++
	case events.TypeCommentOnIssue, events.TypeUserMessage:
		s.CommentsWritten++
	}
}
