package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

type projectOutput struct {
	Body ProjectResponse `json:"body"`
}

func parseConfigYAML(raw string) (*config.Config, error) {
	cfg, err := config.FromYAML([]byte(raw))
	if err != nil {
		return nil, domain.Invalid("config_yaml", "%v", err)
	}
	return cfg, nil
}

func (a *api) registerProjects(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		opts := engine.ProjectCreateOptions{ID: input.Body.ID, Name: input.Body.Name}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		if input.Body.ConfigYAML != nil {
			cfg, err := parseConfigYAML(*input.Body.ConfigYAML)
			if err != nil {
				return nil, handleError(err)
			}
			opts.Config = cfg
		}
		p, err := e.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: projectResponse(p)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects visible to the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ProjectResponse `json:"body"`
	}, error) {
		items, err := e.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ProjectResponse `json:"body"`
		}{Body: mapProjects(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound, http.StatusForbidden},
	}, func(ctx context.Context, input *projectPath) (*projectOutput, error) {
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: projectResponse(p)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*projectOutput, error) {
		p, err := e.UpdateProject(ctx, input.ProjectID, engine.ProjectUpdateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &projectOutput{Body: projectResponse(p)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "delete-project",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}",
		Summary:       "Delete project",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "get-project-config",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/config",
		Summary:     "Get project configuration",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body ProjectConfigResponse `json:"body"`
	}, error) {
		cfg, err := e.ProjectConfig(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		raw, err := cfg.ToYAML()
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectConfigResponse `json:"body"`
		}{Body: ProjectConfigResponse{Config: cfg, ConfigYAML: string(raw)}}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "import-project-config",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/config",
		Summary:     "Replace project configuration",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      ImportConfigRequest `json:"body"`
	}) (*struct {
		Body ProjectConfigResponse `json:"body"`
	}, error) {
		cfg, err := parseConfigYAML(input.Body.ConfigYAML)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.ImportConfig(ctx, input.ProjectID, cfg); err != nil {
			return nil, handleError(err)
		}
		raw, _ := cfg.ToYAML()
		return &struct {
			Body ProjectConfigResponse `json:"body"`
		}{Body: ProjectConfigResponse{Config: cfg, ConfigYAML: string(raw)}}, nil
	})
}

func (a *api) registerMembers(hapi huma.API) {
	e := a.engine
	type memberOutput struct {
		Body MemberResponse `json:"body"`
	}
	huma.Register(hapi, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		members, err := e.Members(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MemberResponse, 0, len(members))
		for _, m := range members {
			out = append(out, memberResponse(m))
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "join-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/join",
		Summary:     "Join project as a member",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*memberOutput, error) {
		m, err := e.JoinProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &memberOutput{Body: memberResponse(m)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "add-member",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/members",
		Summary:     "Add or update a member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*memberOutput, error) {
		role := input.Body.Role
		if role == "" {
			role = engine.DefaultMemberRole
		}
		m, err := e.AddMember(ctx, input.ProjectID, input.Body.UserID, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &memberOutput{Body: memberResponse(m)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove a member",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		if err := e.RemoveMember(ctx, input.ProjectID, input.UserID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
