package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

type eventPath struct {
	ProjectID string `path:"project_id"`
	EventID   string `path:"event_id"`
}

type eventOutput struct {
	Body EventResponse `json:"body"`
}

func (a *api) registerEvents(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID: "event-types",
		Method:      http.MethodGet,
		Path:        "/event-types",
		Summary:     "Registered event types",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []events.Type `json:"body"`
	}, error) {
		return &struct {
			Body []events.Type `json:"body"`
		}{Body: e.EventTypes()}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "project-feed",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Project feed as the caller sees it, newest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Page      int    `query:"page" default:"0" minimum:"0"`
		Size      int    `query:"size" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		page := domain.Page{Number: input.Page, Size: input.Size}.Normalize()
		items, err := e.Feed(ctx, input.ProjectID, page)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: mapEvents(items), PageNumber: page.Number}
		if len(items) == page.Size {
			next := page.Number + 1
			resp.NextPage = &next
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "post-message",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/messages",
		Summary:       "Post a message to the feed",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      PostMessageRequest `json:"body"`
	}) (*eventOutput, error) {
		ev, err := e.PostMessage(ctx, input.ProjectID, input.Body.ParentID, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventOutput{Body: eventResponse(ev)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "record-event",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/events",
		Summary:       "Record externally observed activity",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      RecordEventRequest `json:"body"`
	}) (*eventOutput, error) {
		ev, err := e.RecordEvent(ctx, input.ProjectID, domain.CreateEventInput{
			Type:   input.Body.Type,
			UserID: input.Body.UserID,
			Data:   input.Body.Data,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &eventOutput{Body: eventResponse(ev)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "event-children",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events/{event_id}/children",
		Summary:     "Replies and reactions of an event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Children(ctx, input.ProjectID, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: mapEvents(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID:   "react",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/events/{event_id}/reactions",
		Summary:       "React to an event",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string       `path:"project_id"`
		EventID   string       `path:"event_id"`
		Body      ReactRequest `json:"body"`
	}) (*eventOutput, error) {
		ev, err := e.React(ctx, input.ProjectID, input.EventID, input.Body.Reaction)
		if err != nil {
			return nil, handleError(err)
		}
		return &eventOutput{Body: eventResponse(ev)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "reactions",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events/{event_id}/reactions",
		Summary:     "Distinct reactions on an event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body []domain.Reaction `json:"body"`
	}, error) {
		items, err := e.Reactions(ctx, input.ProjectID, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Reaction `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "event-xp",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events/{event_id}/xp",
		Summary:     "Experience the caller gained from an event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *eventPath) (*struct {
		Body XPResponse `json:"body"`
	}, error) {
		xp, err := e.XPForUser(ctx, input.ProjectID, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body XPResponse `json:"body"`
		}{Body: XPResponse{EventID: input.EventID, XP: xp}}, nil
	})
}

func (a *api) registerStats(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID: "leaderboard",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats",
		Summary:     "Counters of every user, richest first",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.UserStats `json:"body"`
	}, error) {
		items, err := e.Leaderboard(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.UserStats `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "user-stats",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stats/{user_id}",
		Summary:     "Counters of one user; \"me\" selects the caller",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct {
		Body domain.UserStats `json:"body"`
	}, error) {
		userID := input.UserID
		if userID == "me" {
			userID = ""
		}
		stats, err := e.UserStats(ctx, input.ProjectID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.UserStats `json:"body"`
		}{Body: stats}, nil
	})
}
