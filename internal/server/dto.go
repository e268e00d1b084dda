package server

import (
	"time"

	"scrumgame/internal/config"
	"scrumgame/internal/domain"
	"scrumgame/internal/engine"
)

// Request payloads

type CreateProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	ConfigYAML  *string `json:"config_yaml,omitempty" doc:"Project configuration in YAML; defaults apply when omitted"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ImportConfigRequest struct {
	ConfigYAML string `json:"config_yaml"`
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

type CreateSprintRequest struct {
	Number             int        `json:"number,omitempty"`
	Name               string     `json:"name,omitempty"`
	Goal               string     `json:"goal,omitempty"`
	StartDate          *time.Time `json:"start_date,omitempty" format:"date-time"`
	EndDate            *time.Time `json:"end_date,omitempty" format:"date-time"`
	StoryPointsPlanned *int       `json:"story_points_planned,omitempty"`
}

type UpdateSprintRequest struct {
	Name               *string    `json:"name,omitempty"`
	Goal               *string    `json:"goal,omitempty"`
	StartDate          *time.Time `json:"start_date,omitempty" format:"date-time"`
	EndDate            *time.Time `json:"end_date,omitempty" format:"date-time"`
	StoryPointsPlanned *int       `json:"story_points_planned,omitempty"`
	ClearPlanned       bool       `json:"clear_planned,omitempty"`
}

type UpdateIssueRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	State        *string `json:"state,omitempty"`
	StateType    *string `json:"state_type,omitempty" enum:"NEW,IN_PROGRESS,DONE"`
	Type         *string `json:"type,omitempty"`
	AssigneeID   *string `json:"assignee_id,omitempty"`
	SprintNumber *int    `json:"sprint_number,omitempty"`
	ClearSprint  bool    `json:"clear_sprint,omitempty"`
	StoryPoints  *int    `json:"story_points,omitempty"`
}

type CommentRequest struct {
	Body     string `json:"body"`
	ParentID string `json:"parent_id,omitempty"`
}

type FinishIssueRequest struct {
	DoneState        string                   `json:"done_state"`
	DefinitionOfDone []domain.DoDConfirmState `json:"definition_of_done"`
}

type CreateMeetingRequest struct {
	AttendeeIDs []string          `json:"attendee_ids,omitempty"`
	Goal        string            `json:"goal,omitempty"`
	Activities  []domain.Activity `json:"activities,omitempty"`
}

type MeetingCommandRequest struct {
	Command string `json:"command" enum:"start,next,set_attendee,set_page,award_medals,set_goal,finish,join,leave"`
	UserID  string `json:"user_id,omitempty"`
	Page    string `json:"page,omitempty" enum:"INFORMATION,ACTIVITIES,MEDALS,REWARDS,SUMMARY,"`
	Goal    string `json:"goal,omitempty"`
}

type PostMessageRequest struct {
	Message  string `json:"message"`
	ParentID string `json:"parent_id,omitempty"`
}

type ReactRequest struct {
	Reaction string `json:"reaction"`
}

type RecordEventRequest struct {
	Type   string             `json:"type" enum:"OPEN_PULL_REQUEST,CLOSE_PULL_REQUEST,REVIEW_ACCEPT,REVIEW_CHANGE_REQUEST,ACHIEVEMENT_UNLOCKED"`
	UserID string             `json:"user_id,omitempty"`
	Data   []domain.DataField `json:"data,omitempty"`
}

// Responses

type ProjectResponse struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	CurrentSprintNumber int      `json:"current_sprint_number"`
	UnlockedAnimals     []string `json:"unlocked_animals"`
	UnlockedAssets      []string `json:"unlocked_assets"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

type MemberResponse struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	CurrentBadge string `json:"current_badge,omitempty"`
	JoinedAt     string `json:"joined_at" format:"date-time"`
}

type EventResponse struct {
	ID         string             `json:"id"`
	ProjectID  string             `json:"project_id"`
	UserID     string             `json:"user_id,omitempty"`
	ParentID   string             `json:"parent_id,omitempty"`
	IssueID    string             `json:"issue_id,omitempty"`
	Type       string             `json:"type"`
	Visibility string             `json:"visibility"`
	Timestamp  time.Time          `json:"timestamp" format:"date-time"`
	Message    string             `json:"message,omitempty"`
	Data       []domain.DataField `json:"data"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextPage   *int            `json:"next_page,omitempty"`
	PageNumber int             `json:"page"`
}

type XPResponse struct {
	EventID string `json:"event_id"`
	XP      int    `json:"xp"`
}

type SyncResponse struct {
	Events int `json:"events"`
}

type ProjectConfigResponse struct {
	Config     *config.Config `json:"config"`
	ConfigYAML string         `json:"config_yaml"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:                  p.ID,
		Name:                p.Name,
		Description:         p.Description,
		CurrentSprintNumber: p.CurrentSprintNumber,
		UnlockedAnimals:     nonNilSlice(p.UnlockedAnimals),
		UnlockedAssets:      nonNilSlice(p.UnlockedAssets),
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func memberResponse(m domain.Membership) MemberResponse {
	return MemberResponse{UserID: m.UserID, Role: m.Role, CurrentBadge: string(m.CurrentBadge), JoinedAt: m.JoinedAt}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		ProjectID:  e.ProjectID,
		UserID:     e.UserID,
		ParentID:   e.ParentID,
		IssueID:    e.IssueID,
		Type:       e.Type,
		Visibility: string(e.Visibility),
		Timestamp:  e.Timestamp,
		Message:    e.Message,
		Data:       nonNilSlice(e.Data),
	}
}

func mapEvents(items []domain.Event) []EventResponse {
	out := make([]EventResponse, 0, len(items))
	for _, e := range items {
		out = append(out, eventResponse(e))
	}
	return out
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, CreatedAt: k.CreatedAt}
}

func sprintCreateOptions(in CreateSprintRequest) engine.SprintCreateOptions {
	opts := engine.SprintCreateOptions{
		Number:             in.Number,
		Name:               in.Name,
		Goal:               in.Goal,
		StoryPointsPlanned: in.StoryPointsPlanned,
	}
	if in.StartDate != nil {
		opts.StartDate = *in.StartDate
	}
	if in.EndDate != nil {
		opts.EndDate = *in.EndDate
	}
	return opts
}

func issueUpdateOptions(in UpdateIssueRequest) engine.IssueUpdateOptions {
	return engine.IssueUpdateOptions{
		Title:        in.Title,
		Description:  in.Description,
		State:        in.State,
		Type:         in.Type,
		AssigneeID:   in.AssigneeID,
		SprintNumber: in.SprintNumber,
		ClearSprint:  in.ClearSprint,
		StoryPoints:  in.StoryPoints,
	}
}
