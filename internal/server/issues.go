package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"scrumgame/internal/domain"
)

type issuePath struct {
	ProjectID string `path:"project_id"`
	IssueID   string `path:"issue_id"`
}

type issueOutput struct {
	Body domain.Issue `json:"body"`
}

type issuesOutput struct {
	Body []domain.Issue `json:"body"`
}

func (a *api) registerIssues(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID: "list-issues",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues",
		Summary:     "List project issues",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusBadGateway},
	}, func(ctx context.Context, input *projectPath) (*issuesOutput, error) {
		items, err := e.Issues(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &issuesOutput{Body: nonNilSlice(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "create-issue",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/issues",
		Summary:       "Create issue",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      domain.IssueInput `json:"body"`
	}) (*issueOutput, error) {
		issue, err := e.CreateIssue(ctx, input.ProjectID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueOutput{Body: issue}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "get-issue",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues/{issue_id}",
		Summary:     "Get issue",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*issueOutput, error) {
		issue, err := e.Issue(ctx, input.ProjectID, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueOutput{Body: issue}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "update-issue",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/issues/{issue_id}",
		Summary:     "Update issue fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		IssueID   string             `path:"issue_id"`
		Body      UpdateIssueRequest `json:"body"`
	}) (*issueOutput, error) {
		issue, err := e.UpdateIssue(ctx, input.ProjectID, input.IssueID, issueUpdateOptions(input.Body))
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.StateType != nil {
			issue, err = e.ChangeIssueStateType(ctx, input.ProjectID, input.IssueID, domain.IssueStateType(*input.Body.StateType))
			if err != nil {
				return nil, handleError(err)
			}
		}
		return &issueOutput{Body: issue}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "comment-issue",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/issues/{issue_id}/comments",
		Summary:     "Comment on an issue",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		IssueID   string         `path:"issue_id"`
		Body      CommentRequest `json:"body"`
	}) (*issueOutput, error) {
		issue, err := e.CommentIssue(ctx, input.ProjectID, input.IssueID, input.Body.Body, input.Body.ParentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueOutput{Body: issue}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "finish-issue",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/issues/{issue_id}/finish",
		Summary:     "Confirm the Definition of Done and complete an issue",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		IssueID   string             `path:"issue_id"`
		Body      FinishIssueRequest `json:"body"`
	}) (*issueOutput, error) {
		issue, err := e.FinishIssue(ctx, input.ProjectID, input.IssueID, input.Body.DefinitionOfDone, input.Body.DoneState)
		if err != nil {
			return nil, handleError(err)
		}
		return &issueOutput{Body: issue}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "issue-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/issues/{issue_id}/events",
		Summary:     "Events of an issue, oldest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *issuePath) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.IssueEvents(ctx, input.ProjectID, input.IssueID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "sync-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/sync",
		Summary:     "Pull recent IMS activity",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body SyncResponse `json:"body"`
	}, error) {
		n, err := e.SyncProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SyncResponse `json:"body"`
		}{Body: SyncResponse{Events: n}}, nil
	})
}
