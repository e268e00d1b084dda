package engine

import (
	"context"
	"math"
	"slices"
	"strings"
	"time"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
)

// SprintStats computes the statistics of a sprint from the project's issues.
func (e *Engine) SprintStats(ctx context.Context, projectID string, number int) (domain.SprintStats, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.SprintStats{}, err
	}
	s, err := e.Repo.GetSprint(ctx, projectID, number)
	if err != nil {
		return domain.SprintStats{}, err
	}
	return e.sprintStats(ctx, s)
}

func (e *Engine) sprintStats(ctx context.Context, s domain.Sprint) (domain.SprintStats, error) {
	cfg, err := e.projectConfig(ctx, s.ProjectID)
	if err != nil {
		return domain.SprintStats{}, err
	}
	issues, err := e.IMS.Issues(ctx, s.ProjectID)
	if err != nil {
		return domain.SprintStats{}, err
	}
	sprints, err := e.Repo.ListSprints(ctx, s.ProjectID)
	if err != nil {
		return domain.SprintStats{}, err
	}
	return computeSprintStats(s, sprints, issues, cfg, e.now()), nil
}

func computeSprintStats(s domain.Sprint, sprints []domain.Sprint, issues []domain.Issue, cfg *config.Config, now time.Time) domain.SprintStats {
	completed, users := completedIn(s.Number, issues, cfg)
	stats := domain.SprintStats{
		ProjectID:             s.ProjectID,
		Number:                s.Number,
		StoryPointsPlanned:    s.StoryPointsPlanned,
		StoryPointsCompleted:  completed,
		PercentageTimeElapsed: timeElapsed(s, now),
		SuccessState:          successState(s.StoryPointsPlanned, completed, cfg.GoldChallengeRatio()),
		UserStats:             users,
	}
	if s.StoryPointsPlanned != nil {
		if *s.StoryPointsPlanned == 0 {
			stats.PercentageStoryPointsCompleted = 100
		} else {
			stats.PercentageStoryPointsCompleted = float64(completed) * 100 / float64(*s.StoryPointsPlanned)
		}
	}

	byNumber := make(map[int]domain.Sprint, len(sprints))
	for _, sp := range sprints {
		byNumber[sp.Number] = sp
	}
	byNumber[s.Number] = s
	for n := s.Number; n > 0; n-- {
		sp, ok := byNumber[n]
		if !ok {
			break
		}
		done, _ := completedIn(n, issues, cfg)
		if !successState(sp.StoryPointsPlanned, done, cfg.GoldChallengeRatio()).Successful() {
			break
		}
		stats.Streak++
	}
	return stats
}

// completedIn sums the story points of done issues of a sprint, overall and per assignee.
func completedIn(number int, issues []domain.Issue, cfg *config.Config) (int, []domain.UserSprintStats) {
	total := 0
	perUser := map[string]*domain.UserSprintStats{}
	for _, is := range issues {
		if !is.InSprint(number) || !cfg.IsDone(is.State) {
			continue
		}
		total += is.StoryPoints
		if is.AssigneeID == "" {
			continue
		}
		u, ok := perUser[is.AssigneeID]
		if !ok {
			u = &domain.UserSprintStats{UserID: is.AssigneeID}
			perUser[is.AssigneeID] = u
		}
		u.StoryPointsCompleted += is.StoryPoints
		u.IssuesCompleted++
	}
	users := make([]domain.UserSprintStats, 0, len(perUser))
	for _, u := range perUser {
		users = append(users, *u)
	}
	slices.SortFunc(users, func(a, b domain.UserSprintStats) int { return strings.Compare(a.UserID, b.UserID) })
	return total, users
}

func successState(planned *int, completed int, ratio float64) domain.SuccessState {
	if planned == nil {
		return domain.SuccessUnknown
	}
	switch {
	case completed < *planned:
		return domain.SuccessFailed
	case float64(completed) >= math.Ceil(float64(*planned)*ratio):
		return domain.SuccessWithGoldChallenge
	default:
		return domain.SuccessSuccess
	}
}

func timeElapsed(s domain.Sprint, now time.Time) float64 {
	total := s.EndDate.Sub(s.StartDate)
	if total <= 0 {
		return 100
	}
	elapsed := now.Sub(s.StartDate)
	switch {
	case elapsed <= 0:
		return 0
	case elapsed >= total:
		return 100
	}
	return float64(elapsed) * 100 / float64(total)
}
