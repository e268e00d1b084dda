package rules

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

// ConfigSource loads a project's stored configuration.
type ConfigSource interface {
	GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error)
}

var meetingEndedTypes = map[string]domain.MeetingType{
	events.TypeStandupEnded:        domain.MeetingStandup,
	events.TypeRetrospectiveEnded:  domain.MeetingRetrospective,
	events.TypeSprintPlanningEnded: domain.MeetingPlanning,
}

// MeetingXPRule grants the meeting leader experience when a meeting ends.
type MeetingXPRule struct {
	Configs ConfigSource
}

func (MeetingXPRule) Name() string { return "meeting-xp" }

func (MeetingXPRule) Triggers() []string {
	return []string{events.TypeStandupEnded, events.TypeRetrospectiveEnded, events.TypeSprintPlanningEnded}
}

func (MeetingXPRule) Condition(e domain.Event) bool {
	f, ok := e.Field(events.FieldMeetingLeader)
	return ok && f.Value != ""
}

func (r MeetingXPRule) Action(ctx context.Context, e domain.Event) (*domain.CreateEventInput, error) {
	cfg, err := r.Configs.GetProjectConfig(ctx, e.ProjectID)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = config.Default(e.ProjectID)
	} else if err != nil {
		return nil, err
	}
	xp := cfg.MeetingXP(meetingEndedTypes[e.Type])
	if xp <= 0 {
		return nil, nil
	}
	leader, _ := e.Field(events.FieldMeetingLeader)
	return &domain.CreateEventInput{
		ID:         followUpID("xp", e.ID),
		ProjectID:  e.ProjectID,
		UserID:     leader.Value,
		ParentID:   e.ID,
		Type:       events.TypeXPGain,
		Visibility: domain.VisibilityPrivate,
		Timestamp:  e.Timestamp,
		Data:       []domain.DataField{domain.IntField(events.FieldXP, xp)},
	}, nil
}

// followUpID derives a stable id so a re-dispatched parent cannot grant twice.
func followUpID(kind, parentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+parentID)).String()
}
