package engine

import (
	"context"
	"database/sql"
	"slices"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

// CreateStandup opens a standup led by the caller. An active standup of the
// project is returned unchanged.
func (e *Engine) CreateStandup(ctx context.Context, projectID string, attendeeIDs []string) (domain.Meeting, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings)
	if err != nil {
		return domain.Meeting{}, err
	}
	return e.createMeeting(ctx, projectID, domain.MeetingStandup, func() (domain.Meeting, error) {
		if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
			return domain.Meeting{}, err
		}
		cfg, err := e.projectConfig(ctx, projectID)
		if err != nil {
			return domain.Meeting{}, err
		}
		return domain.Meeting{
			Attendees: attendees(actor, attendeeIDs),
			Standup: &domain.StandupState{
				Order:                  []string{},
				TimePerAttendeeSeconds: cfg.Meetings.StandupSecondsPerAttendee,
			},
		}, nil
	})
}

// StartStandup fixes a random speaking order and hands the word to the first
// attendee in it.
func (e *Engine) StartStandup(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingStandup, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		if m.Standup.Started() {
			return nil, domain.Conflict("standup already started")
		}
		m.Standup.Order = e.Rewards.Permutation(m.AttendeeIDs())
		m.Standup.CurrentAttendee = m.Standup.Order[0]
		return nil, nil
	})
}

// ChangeCurrentAttendee gives the word to userID, who must be an attendee.
func (e *Engine) ChangeCurrentAttendee(ctx context.Context, projectID, userID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingStandup, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		if !m.HasAttendee(userID) {
			return nil, domain.NotFound("attendee", userID)
		}
		if !slices.Contains(m.Standup.Order, userID) {
			m.Standup.Order = append(m.Standup.Order, userID)
		}
		m.Standup.CurrentAttendee = userID
		return nil, nil
	})
}

// NextAttendee moves the word along the order. It stays on the last attendee.
func (e *Engine) NextAttendee(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingStandup, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		if !m.Standup.Started() {
			return nil, domain.Conflict("standup not started")
		}
		i := slices.Index(m.Standup.Order, m.Standup.CurrentAttendee)
		if i+1 < len(m.Standup.Order) {
			m.Standup.CurrentAttendee = m.Standup.Order[i+1]
		}
		return nil, nil
	})
}

func (e *Engine) FinishStandup(ctx context.Context, projectID string) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageMeetings); err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, domain.MeetingStandup, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		m.Active = false
		return []domain.CreateEventInput{meetingEnded(events.TypeStandupEnded, *m)}, nil
	})
}
