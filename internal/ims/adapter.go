// Package ims connects projects to their external issue management system.
package ims

import (
	"context"
	"time"

	"scrumgame/internal/domain"
)

// Adapter is the boundary to an external issue management system. Scope is
// the IMS-side project identifier; an issue outside the given scope is
// reported as not found. Event drafts carry stable ids so that republishing
// them is idempotent; their ProjectID is filled by the caller.
type Adapter interface {
	ListIssues(ctx context.Context, scope string) ([]domain.Issue, error)
	FindIssue(ctx context.Context, scope, issueID string) (domain.Issue, error)
	CreateIssue(ctx context.Context, scope string, in domain.IssueInput) (domain.Issue, error)
	UpdateIssue(ctx context.Context, scope, issueID string, m Mutation) (domain.Issue, error)
	AddComment(ctx context.Context, scope, issueID, authorID, body, parentID string) (domain.Issue, error)
	IssueEventsSince(ctx context.Context, scope, issueID string, since time.Time) ([]domain.CreateEventInput, error)
	ProjectEventsSince(ctx context.Context, scope string, since time.Time) ([]domain.CreateEventInput, error)
}

// Mutation changes the non-nil fields of an issue. ClearSprint removes the
// sprint and wins over SprintNumber. Completes marks a state change that
// enters one of the project's done states.
type Mutation struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	State        *string `json:"state,omitempty"`
	Type         *string `json:"type,omitempty"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	SprintNumber *int    `json:"sprint_number,omitempty"`
	ClearSprint  bool    `json:"clear_sprint,omitempty"`
	StoryPoints  *int    `json:"story_points,omitempty"`
	Completes    bool    `json:"completes,omitempty"`
	ActorID      string  `json:"actor_id,omitempty"`
}

func (m Mutation) apply(issue *domain.Issue) {
	if m.Title != nil {
		issue.Title = *m.Title
	}
	if m.Description != nil {
		issue.Description = *m.Description
	}
	if m.State != nil {
		issue.State = *m.State
	}
	if m.Type != nil {
		issue.Type = *m.Type
	}
	if m.AssigneeID != nil {
		issue.AssigneeID = *m.AssigneeID
	}
	switch {
	case m.ClearSprint:
		issue.SprintNumber = nil
	case m.SprintNumber != nil:
		n := *m.SprintNumber
		issue.SprintNumber = &n
	}
	if m.StoryPoints != nil {
		issue.StoryPoints = *m.StoryPoints
	}
}

type tokenKey struct{}

// WithToken attaches the caller's IMS credential to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
