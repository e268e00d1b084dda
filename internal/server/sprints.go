package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

type sprintPath struct {
	ProjectID string `path:"project_id"`
	Number    int    `path:"number"`
}

type sprintOutput struct {
	Body domain.Sprint `json:"body"`
}

func (a *api) registerSprints(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Create sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*sprintOutput, error) {
		s, err := e.CreateSprint(ctx, input.ProjectID, sprintCreateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints, newest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Sprint `json:"body"`
	}, error) {
		items, err := e.Sprints(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Sprint `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "current-sprint",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/current",
		Summary:     "Current sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*sprintOutput, error) {
		s, err := e.CurrentSprint(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "previous-sprint",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/previous",
		Summary:     "Previous sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*sprintOutput, error) {
		s, err := e.PreviousSprint(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/{number}",
		Summary:     "Get sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*sprintOutput, error) {
		s, err := e.Sprint(ctx, input.ProjectID, input.Number)
		if err != nil {
			return nil, handleError(err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "update-sprint",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/sprints/{number}",
		Summary:     "Update sprint",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Number    int                 `path:"number"`
		Body      UpdateSprintRequest `json:"body"`
	}) (*sprintOutput, error) {
		s, err := e.UpdateSprint(ctx, input.ProjectID, input.Number, engine.SprintUpdateOptions{
			Name:               input.Body.Name,
			Goal:               input.Body.Goal,
			StartDate:          input.Body.StartDate,
			EndDate:            input.Body.EndDate,
			StoryPointsPlanned: input.Body.StoryPointsPlanned,
			ClearPlanned:       input.Body.ClearPlanned,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &sprintOutput{Body: s}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "sprint-stats",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/{number}/stats",
		Summary:     "Computed sprint statistics",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*struct {
		Body domain.SprintStats `json:"body"`
	}, error) {
		stats, err := e.SprintStats(ctx, input.ProjectID, input.Number)
		if err != nil {
			return nil, handleError(err)
		}
		stats.UserStats = nonNilSlice(stats.UserStats)
		return &struct {
			Body domain.SprintStats `json:"body"`
		}{Body: stats}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "sprint-issues",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/{number}/issues",
		Summary:     "Issues planned into a sprint",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *sprintPath) (*issuesOutput, error) {
		items, err := e.SprintIssues(ctx, input.ProjectID, input.Number)
		if err != nil {
			return nil, handleError(err)
		}
		return &issuesOutput{Body: nonNilSlice(items)}, nil
	})
}
