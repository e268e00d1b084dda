package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
	"scrumgame/internal/reward"
)

// CreateRetrospective opens a retrospective for the current sprint, or the
// previous one when no sprint is running. Stats, medals and rewards are fixed
// at creation. An active retrospective is returned unchanged.
func (e *Engine) CreateRetrospective(ctx context.Context, projectID string, attendeeIDs []string, activities []domain.Activity) (domain.Meeting, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings)
	if err != nil {
		return domain.Meeting{}, err
	}
	return e.createMeeting(ctx, projectID, domain.MeetingRetrospective, func() (domain.Meeting, error) {
		project, err := e.Repo.GetProject(ctx, projectID)
		if err != nil {
			return domain.Meeting{}, err
		}
		sprint, err := e.retrospectiveSprint(ctx, projectID)
		if err != nil {
			return domain.Meeting{}, err
		}
		stats, err := e.sprintStats(ctx, sprint)
		if err != nil {
			return domain.Meeting{}, fmt.Errorf("sprint stats: %w", err)
		}
		if len(activities) == 0 {
			cfg, err := e.projectConfig(ctx, projectID)
			if err != nil {
				return domain.Meeting{}, err
			}
			activities = cfg.Meetings.RetrospectiveActivities
		}
		unlocks := reward.ForSprint(stats, project)
		state := &domain.RetrospectiveState{
			SprintNumber:        sprint.Number,
			CurrentPage:         domain.PageInformation,
			Activities:          slices.Clone(activities),
			SprintStats:         stats,
			GoldChallengeReward: unlocks.GoldChallenge,
			BaseRewards:         nonNil(unlocks.Base),
			StreakRewards:       nonNil(unlocks.Streak),
		}
		medals := e.Rewards.RankMedals(stats.UserStats)
		for i, slot := range []**domain.Medal{&state.GoldMedal, &state.SilverMedal, &state.BronzeMedal} {
			if i < len(medals) {
				m := medals[i]
				*slot = &m
			}
		}
		return domain.Meeting{
			Attendees:     attendees(actor, attendeeIDs),
			Retrospective: state,
		}, nil
	})
}

func (e *Engine) retrospectiveSprint(ctx context.Context, projectID string) (domain.Sprint, error) {
	now := e.now()
	s, err := e.Repo.CurrentSprint(ctx, projectID, now)
	if err == nil || !errors.Is(err, domain.ErrNotFound) {
		return s, err
	}
	s, err = e.Repo.PreviousSprint(ctx, projectID, now)
	if errors.Is(err, domain.ErrNotFound) {
		return s, domain.NotFound("current or previous sprint of project", projectID)
	}
	return s, err
}

// ChangeRetrospectivePage moves every attendee's view to page.
func (e *Engine) ChangeRetrospectivePage(ctx context.Context, projectID string, page domain.RetrospectivePage) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	if !page.Valid() {
		return domain.Meeting{}, domain.Invalid("page", "unknown page %q", page)
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingRetrospective, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		m.Retrospective.CurrentPage = page
		return nil, nil
	})
}

var medalAwards = []struct {
	badge    domain.Badge
	currency int
	count    func(*domain.UserStats)
}{
	{domain.BadgeGold, reward.GoldMedalCurrency, func(s *domain.UserStats) { s.GoldMedals++ }},
	{domain.BadgeSilver, reward.SilverMedalCurrency, func(s *domain.UserStats) { s.SilverMedals++ }},
	{domain.BadgeBronze, reward.BronzeMedalCurrency, func(s *domain.UserStats) { s.BronzeMedals++ }},
}

// AwardMedals hands out the medals fixed at creation: badges move to the
// winners, their medal counters and currency grow. A second call is a no-op.
func (e *Engine) AwardMedals(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingRetrospective, func(tx *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		r := m.Retrospective
		if r.MedalsAwarded {
			return nil, nil
		}
		if err := e.Repo.ClearBadges(ctx, tx, projectID); err != nil {
			return nil, fmt.Errorf("clear badges: %w", err)
		}
		now := e.timestamp()
		for i, medal := range []*domain.Medal{r.GoldMedal, r.SilverMedal, r.BronzeMedal} {
			if medal == nil || medal.UserID == "" {
				continue
			}
			award := medalAwards[i]
			if err := e.Repo.SetBadge(ctx, tx, projectID, medal.UserID, award.badge, now); err != nil {
				return nil, fmt.Errorf("set badge: %w", err)
			}
			_, err := e.Repo.UpdateUserStatsTx(ctx, tx, projectID, medal.UserID, func(s *domain.UserStats) {
				award.count(s)
				s.VirtualCurrency += award.currency
			})
			if err != nil {
				return nil, err
			}
		}
		r.MedalsAwarded = true
		return nil, nil
	})
}

// FinishRetrospective closes the meeting and the sprint it reviewed, advances
// the project's sprint counter by one and unlocks the sprint's rewards.
func (e *Engine) FinishRetrospective(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingRetrospective, func(tx *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		project, err := e.Repo.GetProjectTx(ctx, tx, projectID)
		if err != nil {
			return nil, err
		}
		now := e.now().UTC()
		ins := []domain.CreateEventInput{}
		sprint, err := e.Repo.GetSprint(ctx, projectID, project.CurrentSprintNumber)
		switch {
		case err == nil:
			if sprint.EndDate.After(now) {
				sprint.EndDate = now
				if sprint.StartDate.After(now) {
					sprint.StartDate = now
				}
				if err := e.Repo.UpdateSprint(ctx, tx, sprint); err != nil {
					return nil, fmt.Errorf("close sprint: %w", err)
				}
			}
			ins = append(ins, domain.CreateEventInput{
				Type:      events.TypeSprintEnded,
				Timestamp: now,
				Data:      []domain.DataField{domain.IntField(events.FieldSprintNumber, sprint.Number)},
			})
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}

		r := m.Retrospective
		reward.Unlocks{GoldChallenge: r.GoldChallengeReward, Base: r.BaseRewards, Streak: r.StreakRewards}.Merge(&project)
		project.CurrentSprintNumber++
		project.UpdatedAt = e.timestamp()
		if err := e.Repo.UpdateProject(ctx, tx, project); err != nil {
			return nil, err
		}
		m.Active = false
		return append(ins, meetingEnded(events.TypeRetrospectiveEnded, *m)), nil
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
