package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
)

type Privilege string

const (
	CreateProject  Privilege = "CREATE_PROJECT"
	UpdateProject  Privilege = "UPDATE_PROJECT"
	DeleteProject  Privilege = "DELETE_PROJECT"
	ManageSprints  Privilege = "MANAGE_SPRINTS"
	ManageMeetings Privilege = "MANAGE_MEETINGS"
	MutateIssues   Privilege = "MUTATE_ISSUES"
	ReadProject    Privilege = "READ_PROJECT"
)

// AdminRole grants every privilege in every project.
const AdminRole = "admin"

// ErrUnauthenticated is returned when no principal is attached to the context.
var ErrUnauthenticated = errors.New("authentication required")

// ForbiddenError indicates a missing privilege.
type ForbiddenError struct {
	Privilege Privilege
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("privilege %s required", e.Privilege)
}

// Principal is the authenticated caller. Privileges are global grants carried
// by the credential; project grants come from memberships.
type Principal struct {
	UserID     string
	Roles      []string
	Privileges []Privilege
	Source     string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}

// Identity answers who is calling and what they may do.
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
	HasPrivilege(ctx context.Context, projectID string, p Privilege) (bool, error)
}

// MembershipSource resolves a user's role in a project and the project's role table.
type MembershipSource interface {
	GetMembership(ctx context.Context, projectID, userID string) (domain.Membership, error)
	GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error)
}

// Policy tunes how denials are reported. HideForbidden reports denials on
// project-scoped resources as not found.
type Policy struct {
	HideForbidden bool
}

// Service implements Identity from the context principal and project memberships.
type Service struct {
	Source MembershipSource
	Policy Policy
}

func (s Service) CurrentUserID(ctx context.Context) (string, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return "", ErrUnauthenticated
	}
	return p.UserID, nil
}

func (s Service) HasPrivilege(ctx context.Context, projectID string, priv Privilege) (bool, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return false, ErrUnauthenticated
	}
	if slices.Contains(p.Roles, AdminRole) || slices.Contains(p.Privileges, priv) {
		return true, nil
	}
	if projectID == "" || s.Source == nil {
		return false, nil
	}
	m, err := s.Source.GetMembership(ctx, projectID, p.UserID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cfg, err := s.Source.GetProjectConfig(ctx, projectID)
	if errors.Is(err, domain.ErrNotFound) {
		cfg = config.Default(projectID)
	} else if err != nil {
		return false, err
	}
	return slices.Contains(cfg.RolePrivileges(m.Role), string(priv)), nil
}

// Require returns the caller's id when it holds priv, or the denial the policy asks for.
func (s Service) Require(ctx context.Context, projectID string, priv Privilege) (string, error) {
	userID, err := s.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}
	ok, err := s.HasPrivilege(ctx, projectID, priv)
	if err != nil {
		return "", err
	}
	if ok {
		return userID, nil
	}
	if s.Policy.HideForbidden && projectID != "" {
		return "", domain.NotFound("project", projectID)
	}
	return "", ForbiddenError{Privilege: priv}
}
