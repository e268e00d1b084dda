package domain

type IssueStateType string

const (
	StateNew        IssueStateType = "NEW"
	StateInProgress IssueStateType = "IN_PROGRESS"
	StateDone       IssueStateType = "DONE"
)

// Issue is the local projection of an IMS issue.
type Issue struct {
	ID           string `json:"id"`
	ProjectID    string `json:"project_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	State        string `json:"state"`
	Type         string `json:"type"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	SprintNumber *int   `json:"sprint_number,omitempty"`
	StoryPoints  int    `json:"story_points"`
}

func (i Issue) InSprint(number int) bool {
	return i.SprintNumber != nil && *i.SprintNumber == number
}

type IssueInput struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	State        string `json:"state,omitempty"`
	Type         string `json:"type,omitempty"`
	AssigneeID   string `json:"assignee_id,omitempty"`
	SprintNumber *int   `json:"sprint_number,omitempty"`
	StoryPoints  int    `json:"story_points,omitempty"`
	ReporterID   string `json:"reporter_id,omitempty"`
}

// DoDConfirmState is one Definition-of-Done item as confirmed when finishing an issue.
type DoDConfirmState struct {
	Item        string `json:"item"`
	Checked     bool   `json:"checked"`
	Explanation string `json:"explanation,omitempty"`
}
