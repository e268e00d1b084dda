package engine

import (
	"context"
	"errors"
	"slices"
	"strings"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

// recordableTypes are the event types clients may report directly.
var recordableTypes = []string{
	events.TypeOpenPullRequest,
	events.TypeClosePullRequest,
	events.TypeReviewAccept,
	events.TypeReviewChangeRequest,
	events.TypeAchievementUnlocked,
}

// Feed returns a page of the project's events as the caller sees them. It
// first pulls IMS activity and publishes due reminders.
func (e *Engine) Feed(ctx context.Context, projectID string, page domain.Page) ([]domain.Event, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return nil, err
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if _, err := e.IMS.SyncProject(ctx, projectID); err != nil {
		e.Logger.Warn("ims sync failed", "project_id", projectID, "error", err)
	}
	if err := e.Reminders.RunDue(ctx, projectID); err != nil {
		e.Logger.Warn("reminders failed", "project_id", projectID, "error", err)
	}
	return e.Events.FindForUser(ctx, projectID, actor, page)
}

// SubscribeEvents streams later project events visible to the caller.
// Callers must pass the subscription to UnsubscribeEvents.
func (e *Engine) SubscribeEvents(ctx context.Context, projectID string) (*events.Subscription[domain.Event], error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return nil, err
	}
	return e.Events.Subscribe(projectID, actor)
}

func (e *Engine) UnsubscribeEvents(sub *events.Subscription[domain.Event]) {
	e.Events.Unsubscribe(sub)
}

// visibleEvent loads an event of the project the caller may see.
func (e *Engine) visibleEvent(ctx context.Context, projectID, eventID, userID string) (domain.Event, error) {
	ev, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, err
	}
	if ev.ProjectID != projectID || !ev.VisibleFor(userID) {
		return domain.Event{}, domain.NotFound("event", eventID)
	}
	return ev, nil
}

// PostMessage publishes a user message, optionally as a reply to parentID.
func (e *Engine) PostMessage(ctx context.Context, projectID, parentID, message string) (domain.Event, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return domain.Event{}, err
	}
	if strings.TrimSpace(message) == "" {
		return domain.Event{}, domain.Invalid(events.FieldMessage, "required")
	}
	if parentID != "" {
		if _, err := e.visibleEvent(ctx, projectID, parentID, actor); err != nil {
			return domain.Event{}, err
		}
	}
	return e.Events.Publish(ctx, domain.CreateEventInput{
		ProjectID: projectID,
		UserID:    actor,
		ParentID:  parentID,
		Type:      events.TypeUserMessage,
		Data:      []domain.DataField{domain.StringField(events.FieldMessage, message)},
	})
}

// React attaches the caller's reaction to an event.
func (e *Engine) React(ctx context.Context, projectID, eventID, reaction string) (domain.Event, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return domain.Event{}, err
	}
	if _, err := e.visibleEvent(ctx, projectID, eventID, actor); err != nil {
		return domain.Event{}, err
	}
	return e.Events.Publish(ctx, domain.CreateEventInput{
		ProjectID: projectID,
		UserID:    actor,
		ParentID:  eventID,
		Type:      events.TypeEventReaction,
		Data:      []domain.DataField{domain.StringField(events.FieldReaction, reaction)},
	})
}

// RecordEvent publishes externally observed activity such as pull requests.
// UserID defaults to the caller. Recording for another user needs
// UPDATE_PROJECT, and that user must be a member of the project.
func (e *Engine) RecordEvent(ctx context.Context, projectID string, in domain.CreateEventInput) (domain.Event, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Event{}, err
	}
	if !slices.Contains(recordableTypes, in.Type) {
		return domain.Event{}, domain.Invalid("eventTypeIdentifier", "%q cannot be recorded directly", in.Type)
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Event{}, err
	}
	in.ProjectID = projectID
	switch {
	case in.UserID == "":
		in.UserID = actor
	case in.UserID != actor:
		if _, err := e.Auth.Require(ctx, projectID, auth.UpdateProject); err != nil {
			return domain.Event{}, err
		}
		if _, err := e.Repo.GetMembership(ctx, projectID, in.UserID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Event{}, domain.Invalid("userId", "%q is not a member of the project", in.UserID)
			}
			return domain.Event{}, err
		}
	}
	return e.Events.Publish(ctx, in)
}

// Children lists the replies and reactions of an event visible to the caller.
func (e *Engine) Children(ctx context.Context, projectID, eventID string) ([]domain.Event, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return nil, err
	}
	if _, err := e.visibleEvent(ctx, projectID, eventID, actor); err != nil {
		return nil, err
	}
	return e.Events.FindChildren(ctx, eventID, actor)
}

// Reactions returns the distinct (reaction, user) pairs on an event.
func (e *Engine) Reactions(ctx context.Context, projectID, eventID string) ([]domain.Reaction, error) {
	children, err := e.Children(ctx, projectID, eventID)
	if err != nil {
		return nil, err
	}
	res := []domain.Reaction{}
	for _, c := range children {
		if c.Type != events.TypeEventReaction {
			continue
		}
		r := domain.Reaction{UserID: c.UserID}
		if f, ok := c.Field(events.FieldReaction); ok {
			r.Reaction = f.Value
		}
		if !slices.Contains(res, r) {
			res = append(res, r)
		}
	}
	return res, nil
}

// XPForUser sums the experience the caller gained from an event. The parent
// may be internal, such as a meeting-ended event.
func (e *Engine) XPForUser(ctx context.Context, projectID, eventID string) (int, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return 0, err
	}
	parent, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if parent.ProjectID != projectID {
		return 0, domain.NotFound("event", eventID)
	}
	gains, err := e.Repo.ChildrenOfType(ctx, eventID, events.TypeXPGain)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, c := range gains {
		if c.UserID != actor {
			continue
		}
		if xp, ok := c.Int(events.FieldXP); ok {
			total += xp
		}
	}
	return total, nil
}

// EventTypes lists the registered event types.
func (e *Engine) EventTypes() []events.Type {
	return e.Events.Registry.All()
}
