package engine

import (
	"context"
	"database/sql"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

// CreatePlanning opens a planning meeting for the project's upcoming sprint.
func (e *Engine) CreatePlanning(ctx context.Context, projectID string, attendeeIDs []string, goal string) (domain.Meeting, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings)
	if err != nil {
		return domain.Meeting{}, err
	}
	return e.createMeeting(ctx, projectID, domain.MeetingPlanning, func() (domain.Meeting, error) {
		project, err := e.Repo.GetProject(ctx, projectID)
		if err != nil {
			return domain.Meeting{}, err
		}
		return domain.Meeting{
			Attendees: attendees(actor, attendeeIDs),
			Planning:  &domain.PlanningState{SprintNumber: project.CurrentSprintNumber, Goal: goal},
		}, nil
	})
}

func (e *Engine) ChangePlanningGoal(ctx context.Context, projectID, goal string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingPlanning, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		m.Planning.Goal = goal
		return nil, nil
	})
}

func (e *Engine) FinishPlanning(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingPlanning, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		m.Active = false
		return []domain.CreateEventInput{meetingEnded(events.TypeSprintPlanningEnded, *m)}, nil
	})
}
