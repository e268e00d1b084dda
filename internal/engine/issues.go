package engine

import (
	"context"
	"errors"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/ims"
)

func (e *Engine) Issues(ctx context.Context, projectID string) ([]domain.Issue, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.IMS.Issues(ctx, projectID)
}

func (e *Engine) Issue(ctx context.Context, projectID, issueID string) (domain.Issue, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Issue{}, err
	}
	return e.IMS.Issue(ctx, projectID, issueID)
}

// SprintIssues lists the issues planned into a sprint.
func (e *Engine) SprintIssues(ctx context.Context, projectID string, number int) ([]domain.Issue, error) {
	all, err := e.Issues(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var res []domain.Issue
	for _, is := range all {
		if is.InSprint(number) {
			res = append(res, is)
		}
	}
	return res, nil
}

func (e *Engine) CreateIssue(ctx context.Context, projectID string, in domain.IssueInput) (domain.Issue, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Issue{}, err
	}
	if in.ReporterID == "" {
		in.ReporterID = actor
	}
	return e.IMS.CreateIssue(ctx, projectID, in)
}

// IssueUpdateOptions changes the non-nil fields of an issue. State is a
// state name of the project catalog.
type IssueUpdateOptions struct {
	Title        *string
	Description  *string
	State        *string
	Type         *string
	AssigneeID   *string
	SprintNumber *int
	ClearSprint  bool
	StoryPoints  *int
}

// UpdateIssue applies each requested change through the issue facade in a
// fixed order and returns the final issue.
func (e *Engine) UpdateIssue(ctx context.Context, projectID, issueID string, opts IssueUpdateOptions) (domain.Issue, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Issue{}, err
	}
	steps := []struct {
		set bool
		run func() (domain.Issue, error)
	}{
		{opts.Title != nil, func() (domain.Issue, error) {
			return e.IMS.ChangeTitle(ctx, projectID, issueID, actor, *opts.Title)
		}},
		{opts.Description != nil, func() (domain.Issue, error) {
			return e.IMS.ChangeDescription(ctx, projectID, issueID, actor, *opts.Description)
		}},
		{opts.Type != nil, func() (domain.Issue, error) {
			return e.IMS.ChangeType(ctx, projectID, issueID, actor, *opts.Type)
		}},
		{opts.AssigneeID != nil, func() (domain.Issue, error) {
			return e.IMS.Assign(ctx, projectID, issueID, actor, *opts.AssigneeID)
		}},
		{opts.StoryPoints != nil, func() (domain.Issue, error) {
			return e.IMS.ChangeStoryPoints(ctx, projectID, issueID, actor, *opts.StoryPoints)
		}},
		{opts.SprintNumber != nil || opts.ClearSprint, func() (domain.Issue, error) {
			if opts.ClearSprint {
				return e.IMS.ChangeSprint(ctx, projectID, issueID, actor, nil)
			}
			return e.IMS.ChangeSprint(ctx, projectID, issueID, actor, opts.SprintNumber)
		}},
		{opts.State != nil, func() (domain.Issue, error) {
			return e.IMS.ChangeStateByName(ctx, projectID, issueID, actor, *opts.State)
		}},
	}
	var issue domain.Issue
	changed := false
	for _, step := range steps {
		if !step.set {
			continue
		}
		if issue, err = step.run(); err != nil {
			return domain.Issue{}, err
		}
		changed = true
	}
	if !changed {
		return e.IMS.Issue(ctx, projectID, issueID)
	}
	return issue, nil
}

// ChangeIssueStateType moves an issue to the first state of the given kind.
func (e *Engine) ChangeIssueStateType(ctx context.Context, projectID, issueID string, t domain.IssueStateType) (domain.Issue, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Issue{}, err
	}
	return e.IMS.ChangeStateByType(ctx, projectID, issueID, actor, t)
}

func (e *Engine) CommentIssue(ctx context.Context, projectID, issueID, body, parentID string) (domain.Issue, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Issue{}, err
	}
	if body == "" {
		return domain.Issue{}, domain.Invalid("body", "required")
	}
	return e.IMS.Comment(ctx, projectID, issueID, actor, body, parentID)
}

// FinishIssue confirms the Definition of Done and moves the issue to doneState.
func (e *Engine) FinishIssue(ctx context.Context, projectID, issueID string, dod []domain.DoDConfirmState, doneState string) (domain.Issue, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.MutateIssues)
	if err != nil {
		return domain.Issue{}, err
	}
	cfg, err := e.projectConfig(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	for _, item := range cfg.DefinitionOfDone {
		if !item.Required {
			continue
		}
		confirmed := false
		for _, c := range dod {
			if c.Item == item.Text && (c.Checked || c.Explanation != "") {
				confirmed = true
				break
			}
		}
		if !confirmed {
			return domain.Issue{}, domain.Invalid("dod", "%q must be checked or explained", item.Text)
		}
	}
	return e.IMS.Finish(ctx, projectID, issueID, actor, dod, doneState)
}

// IssueEvents pulls the issue's IMS activity since its newest stored event
// and returns every event of the issue, oldest first.
func (e *Engine) IssueEvents(ctx context.Context, projectID, issueID string) ([]domain.Event, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	var since time.Time
	last, err := e.Events.FindLastSyncMarker(ctx, projectID, issueID)
	switch {
	case err == nil:
		since = last.Timestamp
	case !errors.Is(err, domain.ErrNotFound):
		return nil, err
	}
	if _, err := e.IMS.SyncIssue(ctx, projectID, issueID, since); err != nil {
		return nil, err
	}
	return e.Events.FindForIssue(ctx, projectID, issueID)
}

// SyncProject forces a throttled IMS pull for the project.
func (e *Engine) SyncProject(ctx context.Context, projectID string) (int, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return 0, err
	}
	return e.IMS.SyncProject(ctx, projectID)
}

// RunSync pulls every project's IMS activity on each tick until ctx ends.
// token, when set, is the credential used against the IMS.
func (e *Engine) RunSync(ctx context.Context, interval time.Duration, token string) {
	if interval <= 0 {
		interval = ims.DefaultSyncInterval
	}
	if token != "" {
		ctx = ims.WithToken(ctx, token)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			projects, err := e.Repo.ListProjects(ctx)
			if err != nil {
				e.Logger.Error("list projects for sync", "error", err)
				continue
			}
			for _, p := range projects {
				n, err := e.IMS.SyncProject(ctx, p.ID)
				if err != nil {
					e.Logger.Warn("ims sync failed", "project_id", p.ID, "error", err)
					continue
				}
				if n > 0 {
					e.Logger.Debug("ims sync", "project_id", p.ID, "events", n)
				}
			}
		}
	}
}
