package ims

import (
	"context"
	"time"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
)

// finishResyncWindow covers comments the IMS echoes back after Finish.
const finishResyncWindow = 5 * time.Minute

// ProjectSource loads the local project and its configuration.
type ProjectSource interface {
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error)
}

// Service is the issue facade: it reads through the cache, applies mutations
// through the adapter and keeps sprint membership consistent with the state.
type Service struct {
	Adapter  Adapter
	Projects ProjectSource
	Syncer   *Syncer
	Now      func() time.Time

	issues *Cache[[]domain.Issue]
	issue  *Cache[domain.Issue]
}

func NewService(adapter Adapter, projects ProjectSource, syncer *Syncer) *Service {
	return &Service{
		Adapter:  adapter,
		Projects: projects,
		Syncer:   syncer,
		issues:   NewCache[[]domain.Issue](),
		issue:    NewCache[domain.Issue](),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func issuesKey(projectID string) string { return "issues:" + projectID }

func issueKey(projectID, issueID string) string { return "issue:" + projectID + ":" + issueID }

func (s *Service) invalidate(projectID, issueID string) {
	s.issues.Invalidate(issuesKey(projectID))
	if issueID != "" {
		s.issue.Invalidate(issueKey(projectID, issueID))
	}
}

func (s *Service) config(ctx context.Context, projectID string) (*config.Config, error) {
	if _, err := s.Projects.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	cfg, err := s.Projects.GetProjectConfig(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func scope(cfg *config.Config, projectID string) string {
	if cfg.IMS.ProjectID != "" {
		return cfg.IMS.ProjectID
	}
	return projectID
}

func (s *Service) Issues(ctx context.Context, projectID string) ([]domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return s.issues.GetOrLoad(issuesKey(projectID), func() ([]domain.Issue, error) {
		list, err := s.Adapter.ListIssues(ctx, scope(cfg, projectID))
		if err != nil {
			return nil, err
		}
		for i := range list {
			list[i].ProjectID = projectID
		}
		return list, nil
	})
}

// Issue loads one issue of the project. Issues of another IMS scope are not found.
func (s *Service) Issue(ctx context.Context, projectID, issueID string) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	return s.issue.GetOrLoad(issueKey(projectID, issueID), func() (domain.Issue, error) {
		issue, err := s.Adapter.FindIssue(ctx, scope(cfg, projectID), issueID)
		if err != nil {
			return domain.Issue{}, err
		}
		issue.ProjectID = projectID
		return issue, nil
	})
}

func (s *Service) CreateIssue(ctx context.Context, projectID string, in domain.IssueInput) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	if in.State == "" {
		if st, ok := cfg.FirstStateOfType(domain.StateNew); ok {
			in.State = st.Name
		}
	} else if _, ok := cfg.State(in.State); !ok {
		return domain.Issue{}, domain.NotFound("issue state", in.State)
	}
	if in.Type != "" && len(cfg.IMS.IssueTypes) > 0 && !cfg.HasIssueType(in.Type) {
		return domain.Issue{}, domain.NotFound("issue type", in.Type)
	}
	issue, err := s.Adapter.CreateIssue(ctx, scope(cfg, projectID), in)
	if err != nil {
		return domain.Issue{}, err
	}
	issue.ProjectID = projectID
	s.invalidate(projectID, issue.ID)
	return issue, nil
}

func (s *Service) mutate(ctx context.Context, projectID, issueID string, m Mutation) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	defer s.invalidate(projectID, issueID)
	issue, err := s.Adapter.UpdateIssue(ctx, scope(cfg, projectID), issueID, m)
	if err != nil {
		return domain.Issue{}, err
	}
	issue.ProjectID = projectID
	return issue, nil
}

func (s *Service) ChangeTitle(ctx context.Context, projectID, issueID, actorID, title string) (domain.Issue, error) {
	if title == "" {
		return domain.Issue{}, domain.Invalid("title", "required")
	}
	return s.mutate(ctx, projectID, issueID, Mutation{Title: &title, ActorID: actorID})
}

func (s *Service) ChangeDescription(ctx context.Context, projectID, issueID, actorID, description string) (domain.Issue, error) {
	return s.mutate(ctx, projectID, issueID, Mutation{Description: &description, ActorID: actorID})
}

// ChangeStateByName moves the issue to a configured state. Leaving the sprint
// states clears the sprint; entering them puts the issue on the current sprint.
func (s *Service) ChangeStateByName(ctx context.Context, projectID, issueID, actorID, state string) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	target, ok := cfg.State(state)
	if !ok {
		return domain.Issue{}, domain.NotFound("issue state", state)
	}
	return s.changeState(ctx, cfg, projectID, issueID, actorID, target)
}

// ChangeStateByType moves the issue to the first configured state of the given type.
func (s *Service) ChangeStateByType(ctx context.Context, projectID, issueID, actorID string, t domain.IssueStateType) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	target, ok := cfg.FirstStateOfType(t)
	if !ok {
		return domain.Issue{}, domain.NotFound("issue state of type", string(t))
	}
	return s.changeState(ctx, cfg, projectID, issueID, actorID, target)
}

func (s *Service) changeState(ctx context.Context, cfg *config.Config, projectID, issueID, actorID string, target config.IssueState) (domain.Issue, error) {
	project, err := s.Projects.GetProject(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	current, err := s.Adapter.FindIssue(ctx, scope(cfg, projectID), issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	m := Mutation{State: &target.Name, ActorID: actorID}
	if target.Name != current.State {
		m.Completes = target.Type == domain.StateDone && !cfg.IsDone(current.State)
	}
	wasInSprint := cfg.InSprint(current.State)
	switch {
	case wasInSprint && !target.InSprint:
		m.ClearSprint = true
	case !wasInSprint && target.InSprint && !current.InSprint(project.CurrentSprintNumber):
		n := project.CurrentSprintNumber
		m.SprintNumber = &n
	}
	return s.mutate(ctx, projectID, issueID, m)
}

func (s *Service) ChangeType(ctx context.Context, projectID, issueID, actorID, typ string) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	if !cfg.HasIssueType(typ) {
		return domain.Issue{}, domain.NotFound("issue type", typ)
	}
	return s.mutate(ctx, projectID, issueID, Mutation{Type: &typ, ActorID: actorID})
}

func (s *Service) Assign(ctx context.Context, projectID, issueID, actorID, assigneeID string) (domain.Issue, error) {
	return s.mutate(ctx, projectID, issueID, Mutation{AssigneeID: &assigneeID, ActorID: actorID})
}

// ChangeSprint sets the sprint of an issue; nil removes it from any sprint.
func (s *Service) ChangeSprint(ctx context.Context, projectID, issueID, actorID string, sprint *int) (domain.Issue, error) {
	m := Mutation{ActorID: actorID}
	if sprint == nil {
		m.ClearSprint = true
	} else {
		m.SprintNumber = sprint
	}
	return s.mutate(ctx, projectID, issueID, m)
}

func (s *Service) ChangeStoryPoints(ctx context.Context, projectID, issueID, actorID string, points int) (domain.Issue, error) {
	if points < 0 {
		return domain.Issue{}, domain.Invalid("storyPoints", "must not be negative")
	}
	return s.mutate(ctx, projectID, issueID, Mutation{StoryPoints: &points, ActorID: actorID})
}

func (s *Service) Comment(ctx context.Context, projectID, issueID, actorID, body, parentID string) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	defer s.invalidate(projectID, issueID)
	issue, err := s.Adapter.AddComment(ctx, scope(cfg, projectID), issueID, actorID, body, parentID)
	if err != nil {
		return domain.Issue{}, err
	}
	issue.ProjectID = projectID
	return issue, nil
}

// Finish posts the Definition-of-Done summary, moves the issue to doneState
// and pulls the issue's recent IMS activity.
func (s *Service) Finish(ctx context.Context, projectID, issueID, actorID string, dod []domain.DoDConfirmState, doneState string) (domain.Issue, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return domain.Issue{}, err
	}
	st, ok := cfg.State(doneState)
	if !ok {
		return domain.Issue{}, domain.NotFound("issue state", doneState)
	}
	if st.Type != domain.StateDone {
		return domain.Issue{}, domain.Invalid("doneState", "%q is not a done state", doneState)
	}
	if _, err := s.Comment(ctx, projectID, issueID, actorID, FormatDoD(dod), ""); err != nil {
		return domain.Issue{}, err
	}
	issue, err := s.changeState(ctx, cfg, projectID, issueID, actorID, st)
	if err != nil {
		return domain.Issue{}, err
	}
	if _, err := s.SyncIssue(ctx, projectID, issueID, s.now().Add(-finishResyncWindow)); err != nil {
		return issue, err
	}
	return issue, nil
}

// SyncIssue republishes the issue's IMS activity since the given time and
// drops its cached projections.
func (s *Service) SyncIssue(ctx context.Context, projectID, issueID string, since time.Time) (int, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return 0, err
	}
	defer s.invalidate(projectID, issueID)
	return s.Syncer.SyncIssue(ctx, projectID, scope(cfg, projectID), issueID, since)
}

// SyncProject runs a throttled project pull and drops the project's cached
// issues when something arrived.
func (s *Service) SyncProject(ctx context.Context, projectID string) (int, error) {
	cfg, err := s.config(ctx, projectID)
	if err != nil {
		return 0, err
	}
	n, err := s.Syncer.SyncProject(ctx, projectID, scope(cfg, projectID))
	if n > 0 {
		s.ForgetProject(projectID)
	}
	return n, err
}

// ForgetProject drops every cached projection of a project's issues.
func (s *Service) ForgetProject(projectID string) {
	s.issues.Invalidate(issuesKey(projectID))
	s.issue.InvalidatePrefix(issueKey(projectID, ""))
}
