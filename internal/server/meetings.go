package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"scrumgame/internal/domain"
)

type meetingPath struct {
	ProjectID string `path:"project_id"`
	Type      string `path:"meeting_type"`
}

func meetingType(raw string) domain.MeetingType {
	return domain.MeetingType(strings.ToUpper(raw))
}

type meetingOutput struct {
	Body domain.Meeting `json:"body"`
}

func (a *api) registerMeetings(hapi huma.API) {
	e := a.engine
	huma.Register(hapi, huma.Operation{
		OperationID: "active-meeting",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/meetings/{meeting_type}",
		Summary:     "Active meeting of a type",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *meetingPath) (*meetingOutput, error) {
		m, err := e.ActiveMeeting(ctx, input.ProjectID, meetingType(input.Type))
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "meeting-history",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/meetings/{meeting_type}/history",
		Summary:     "Past and present meetings of a type, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `path:"meeting_type"`
		Limit     int    `query:"limit" default:"20" minimum:"1" maximum:"200"`
	}) (*struct {
		Body []domain.Meeting `json:"body"`
	}, error) {
		items, err := e.MeetingHistory(ctx, input.ProjectID, meetingType(input.Type), input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Meeting `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "create-meeting",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/meetings/{meeting_type}",
		Summary:     "Open a meeting; returns the active one if it exists",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Type      string               `path:"meeting_type"`
		Body      CreateMeetingRequest `json:"body"`
	}) (*meetingOutput, error) {
		var (
			m   domain.Meeting
			err error
		)
		switch meetingType(input.Type) {
		case domain.MeetingStandup:
			m, err = e.CreateStandup(ctx, input.ProjectID, input.Body.AttendeeIDs)
		case domain.MeetingRetrospective:
			m, err = e.CreateRetrospective(ctx, input.ProjectID, input.Body.AttendeeIDs, input.Body.Activities)
		case domain.MeetingPlanning:
			m, err = e.CreatePlanning(ctx, input.ProjectID, input.Body.AttendeeIDs, input.Body.Goal)
		default:
			err = domain.Invalid("meeting_type", "unknown meeting type %q", input.Type)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})

	huma.Register(hapi, huma.Operation{
		OperationID: "meeting-command",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/meetings/{meeting_type}/commands",
		Summary:     "Advance the active meeting",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Type      string                `path:"meeting_type"`
		Body      MeetingCommandRequest `json:"body"`
	}) (*meetingOutput, error) {
		m, err := a.runMeetingCommand(ctx, input.ProjectID, meetingType(input.Type), input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &meetingOutput{Body: m}, nil
	})
}

func (a *api) runMeetingCommand(ctx context.Context, projectID string, t domain.MeetingType, cmd MeetingCommandRequest) (domain.Meeting, error) {
	e := a.engine
	switch cmd.Command {
	case "join":
		return e.JoinMeeting(ctx, projectID, t)
	case "leave":
		return e.LeaveMeeting(ctx, projectID, t)
	}
	switch t {
	case domain.MeetingStandup:
		switch cmd.Command {
		case "start":
			return e.StartStandup(ctx, projectID)
		case "next":
			return e.NextAttendee(ctx, projectID)
		case "set_attendee":
			return e.ChangeCurrentAttendee(ctx, projectID, cmd.UserID)
		case "finish":
			return e.FinishStandup(ctx, projectID)
		}
	case domain.MeetingRetrospective:
		switch cmd.Command {
		case "set_page":
			return e.ChangeRetrospectivePage(ctx, projectID, domain.RetrospectivePage(cmd.Page))
		case "award_medals":
			return e.AwardMedals(ctx, projectID)
		case "finish":
			return e.FinishRetrospective(ctx, projectID)
		}
	case domain.MeetingPlanning:
		switch cmd.Command {
		case "set_goal":
			return e.ChangePlanningGoal(ctx, projectID, cmd.Goal)
		case "finish":
			return e.FinishPlanning(ctx, projectID)
		}
	}
	return domain.Meeting{}, domain.Invalid("command", "%q is not a %s command", cmd.Command, strings.ToLower(string(t)))
}
