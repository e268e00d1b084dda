package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

// meetingFunc mutates m in place and returns events to store with the snapshot.
type meetingFunc func(tx *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error)

func meetingKey(projectID string, t domain.MeetingType) string {
	return projectID + ":" + string(t)
}

// createMeeting returns the active meeting of the kind if there is one;
// otherwise it stores the meeting build returns.
func (e *Engine) createMeeting(ctx context.Context, projectID string, t domain.MeetingType, build func() (domain.Meeting, error)) (domain.Meeting, error) {
	unlock := e.locks.Lock(meetingKey(projectID, t))
	defer unlock()

	if m, err := e.Repo.ActiveMeeting(ctx, nil, projectID, t); err == nil {
		return m, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Meeting{}, err
	}
	m, err := build()
	if err != nil {
		return domain.Meeting{}, err
	}
	now := e.now().UTC()
	m.ID = uuid.NewString()
	m.ProjectID = projectID
	m.Type = t
	m.Active = true
	m.CreatedAt = now
	m.UpdatedAt = now
	if err := e.Repo.InsertMeeting(ctx, nil, m); err != nil {
		return domain.Meeting{}, fmt.Errorf("insert %s meeting: %w", t, err)
	}
	e.Meetings.Publish(m.Clone())
	e.Logger.Info("meeting created", "project_id", projectID, "type", t, "meeting_id", m.ID)
	return m, nil
}

// updateMeeting runs fn on the active meeting under the per-kind lock, stores
// the snapshot together with the returned events and publishes both.
func (e *Engine) updateMeeting(ctx context.Context, projectID string, t domain.MeetingType, fn meetingFunc) (domain.Meeting, error) {
	unlock := e.locks.Lock(meetingKey(projectID, t))
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Meeting{}, err
	}
	defer tx.Rollback()
	m, err := e.Repo.ActiveMeeting(ctx, tx, projectID, t)
	if err != nil {
		return domain.Meeting{}, err
	}
	ins, err := fn(tx, &m)
	if err != nil {
		return domain.Meeting{}, err
	}
	m.UpdatedAt = e.now().UTC()
	if err := e.Repo.UpdateMeeting(ctx, tx, m); err != nil {
		return domain.Meeting{}, err
	}
	for i := range ins {
		ins[i].ProjectID = projectID
	}
	created, err := e.appendEvents(ctx, tx, ins...)
	if err != nil {
		return domain.Meeting{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Meeting{}, err
	}
	e.Meetings.Publish(m.Clone())
	e.announce(ctx, created)
	return m, nil
}

// ActiveMeeting returns the running meeting of a kind.
func (e *Engine) ActiveMeeting(ctx context.Context, projectID string, t domain.MeetingType) (domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Meeting{}, err
	}
	if !t.Valid() {
		return domain.Meeting{}, domain.Invalid("meetingType", "unknown type %q", t)
	}
	return e.Repo.ActiveMeeting(ctx, nil, projectID, t)
}

// MeetingHistory lists the latest meetings of a kind, newest first.
func (e *Engine) MeetingHistory(ctx context.Context, projectID string, t domain.MeetingType, limit int) ([]domain.Meeting, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.Repo.ListMeetings(ctx, projectID, t, limit)
}

// MeetingUpdates streams later snapshots of a project's meetings of one kind.
// Callers must pass the subscription to Unsubscribe.
func (e *Engine) MeetingUpdates(ctx context.Context, projectID string, t domain.MeetingType) (*events.Subscription[domain.Meeting], error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.Meetings.Subscribe(func(m domain.Meeting) bool {
		return m.ProjectID == projectID && m.Type == t
	}), nil
}

func (e *Engine) UnsubscribeMeetings(sub *events.Subscription[domain.Meeting]) {
	e.Meetings.Unsubscribe(sub)
}

// JoinMeeting adds the caller as attendee of the active meeting.
func (e *Engine) JoinMeeting(ctx context.Context, projectID string, t domain.MeetingType) (domain.Meeting, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, t, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		if !m.HasAttendee(actor) {
			m.Attendees = append(m.Attendees, domain.Attendee{UserID: actor, Role: domain.RoleAttendee})
		}
		return nil, nil
	})
}

// LeaveMeeting removes the caller from the attendees. The leader stays.
func (e *Engine) LeaveMeeting(ctx context.Context, projectID string, t domain.MeetingType) (domain.Meeting, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return domain.Meeting{}, err
	}
	return e.updateMeeting(ctx, projectID, t, func(_ *sql.Tx, m *domain.Meeting) ([]domain.CreateEventInput, error) {
		if m.Leader() == actor {
			return nil, domain.Invalid("userId", "the leader cannot leave the meeting")
		}
		kept := m.Attendees[:0]
		for _, a := range m.Attendees {
			if a.UserID != actor {
				kept = append(kept, a)
			}
		}
		m.Attendees = kept
		return nil, nil
	})
}

// attendees builds the attendee list with leader first and duplicates removed.
func attendees(leader string, userIDs []string) []domain.Attendee {
	list := []domain.Attendee{{UserID: leader, Role: domain.RoleLeader}}
	seen := map[string]bool{leader: true}
	for _, id := range userIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		list = append(list, domain.Attendee{UserID: id, Role: domain.RoleAttendee})
	}
	return list
}

// meetingEnded is the internal event that lets rules reward the leader.
func meetingEnded(eventType string, m domain.Meeting) domain.CreateEventInput {
	return domain.CreateEventInput{
		ProjectID: m.ProjectID,
		UserID:    m.Leader(),
		Type:      eventType,
		Data:      []domain.DataField{domain.StringField(events.FieldMeetingLeader, m.Leader())},
	}
}
