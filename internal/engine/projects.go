package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

// OwnerRole is granted to the creator of a project.
const OwnerRole = "owner"

// DefaultMemberRole is the role of users who join on their own.
const DefaultMemberRole = "developer"

type ProjectCreateOptions struct {
	ID          string
	Name        string
	Description string
	Config      *config.Config
}

// CreateProject stores a project with its config and makes the caller its owner.
func (e *Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	actor, err := e.Auth.Require(ctx, "", auth.CreateProject)
	if err != nil {
		return domain.Project{}, err
	}
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Project{}, domain.Invalid("name", "required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default(id)
	}
	cfg.Project.ID = id
	if cfg.Project.Name == "" {
		cfg.Project.Name = name
	}
	if err := cfg.Validate(); err != nil {
		return domain.Project{}, domain.Invalid("config", "%v", err)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, id); err == nil {
		return domain.Project{}, domain.Conflict("project %s already exists", id)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Project{}, err
	}
	now := e.timestamp()
	p := domain.Project{
		ID:                  id,
		Name:                name,
		Description:         opts.Description,
		CurrentSprintNumber: 1,
		UnlockedAnimals:     []string{},
		UnlockedAssets:      []string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, id, cfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	if err := e.Repo.AddMember(ctx, tx, domain.Membership{ProjectID: id, UserID: actor, Role: OwnerRole, JoinedAt: now}); err != nil {
		return domain.Project{}, fmt.Errorf("insert owner: %w", err)
	}
	created, err := e.appendEvents(ctx, tx, domain.CreateEventInput{ProjectID: id, UserID: actor, Type: events.TypeUserJoined})
	if err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	e.announce(ctx, created)
	e.Logger.Info("project created", "project_id", id, "owner", actor)
	return p, nil
}

type ProjectUpdateOptions struct {
	Name        *string
	Description *string
}

func (e *Engine) UpdateProject(ctx context.Context, projectID string, opts ProjectUpdateOptions) (domain.Project, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.UpdateProject); err != nil {
		return domain.Project{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if opts.Name != nil {
		name := strings.TrimSpace(*opts.Name)
		if name == "" {
			return domain.Project{}, domain.Invalid("name", "must not be empty")
		}
		p.Name = name
	}
	if opts.Description != nil {
		p.Description = *opts.Description
	}
	p.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// DeleteProject removes the project and its owned rows. Its events remain.
func (e *Engine) DeleteProject(ctx context.Context, projectID string) error {
	if _, err := e.Auth.Require(ctx, projectID, auth.DeleteProject); err != nil {
		return err
	}
	if err := e.Repo.DeleteProject(ctx, nil, projectID); err != nil {
		return err
	}
	e.IMS.ForgetProject(projectID)
	e.Logger.Info("project deleted", "project_id", projectID)
	return nil
}

func (e *Engine) GetProject(ctx context.Context, projectID string) (domain.Project, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// ListProjects returns the projects the caller may read.
func (e *Engine) ListProjects(ctx context.Context) ([]domain.Project, error) {
	if _, err := e.Auth.CurrentUserID(ctx); err != nil {
		return nil, err
	}
	all, err := e.Repo.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var res []domain.Project
	for _, p := range all {
		ok, err := e.Auth.HasPrivilege(ctx, p.ID, auth.ReadProject)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, p)
		}
	}
	return res, nil
}

// ProjectConfig returns the stored config, or the default when none is stored.
func (e *Engine) ProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.projectConfig(ctx, projectID)
}

func (e *Engine) projectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	cfg, err := e.Repo.GetProjectConfig(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		return config.Default(projectID), nil
	}
	return cfg, err
}

// ImportConfig validates and stores a project config.
func (e *Engine) ImportConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	if _, err := e.Auth.Require(ctx, projectID, auth.UpdateProject); err != nil {
		return err
	}
	if cfg == nil {
		return domain.Invalid("config", "required")
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return domain.Invalid("config", "%v", err)
	}
	if err := e.Repo.UpsertProjectConfig(ctx, projectID, cfg); err != nil {
		return err
	}
	e.IMS.ForgetProject(projectID)
	return nil
}

// JoinProject adds the caller to the project with the default member role.
// Joining twice keeps the existing membership.
func (e *Engine) JoinProject(ctx context.Context, projectID string) (domain.Membership, error) {
	actor, err := e.Auth.CurrentUserID(ctx)
	if err != nil {
		return domain.Membership{}, err
	}
	if m, err := e.Repo.GetMembership(ctx, projectID, actor); err == nil {
		return m, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Membership{}, err
	}
	return e.addMember(ctx, projectID, actor, DefaultMemberRole)
}

// AddMember grants userID a role in the project. role must exist in the
// project's RBAC table.
func (e *Engine) AddMember(ctx context.Context, projectID, userID, role string) (domain.Membership, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.UpdateProject); err != nil {
		return domain.Membership{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Membership{}, domain.Invalid("userId", "required")
	}
	cfg, err := e.projectConfig(ctx, projectID)
	if err != nil {
		return domain.Membership{}, err
	}
	if _, ok := cfg.RBAC.Roles[role]; !ok {
		return domain.Membership{}, domain.Invalid("role", "unknown role %q", role)
	}
	return e.addMember(ctx, projectID, userID, role)
}

func (e *Engine) addMember(ctx context.Context, projectID, userID, role string) (domain.Membership, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err != nil {
		return domain.Membership{}, err
	}
	_, lookupErr := e.Repo.GetMembership(ctx, projectID, userID)
	isNew := errors.Is(lookupErr, domain.ErrNotFound)
	if lookupErr != nil && !isNew {
		return domain.Membership{}, lookupErr
	}
	m := domain.Membership{ProjectID: projectID, UserID: userID, Role: role, JoinedAt: e.timestamp()}
	if err := e.Repo.AddMember(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	var created []domain.Event
	if isNew {
		created, err = e.appendEvents(ctx, tx, domain.CreateEventInput{ProjectID: projectID, UserID: userID, Type: events.TypeUserJoined})
		if err != nil {
			return domain.Membership{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	e.announce(ctx, created)
	return e.Repo.GetMembership(ctx, projectID, userID)
}

func (e *Engine) RemoveMember(ctx context.Context, projectID, userID string) error {
	if _, err := e.Auth.Require(ctx, projectID, auth.UpdateProject); err != nil {
		return err
	}
	return e.Repo.RemoveMember(ctx, nil, projectID, userID)
}

func (e *Engine) Members(ctx context.Context, projectID string) ([]domain.Membership, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.Repo.ListMembers(ctx, projectID)
}
