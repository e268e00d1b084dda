package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"scrumgame/internal/domain"
)

// Config models a project's scrumgame.yml.
type Config struct {
	Project struct {
		ID   string `yaml:"id" json:"id"`
		Name string `yaml:"name" json:"name"`
	} `yaml:"project" json:"project"`
	IMS              IMSSettings      `yaml:"ims" json:"ims"`
	DefinitionOfDone []DoDItem        `yaml:"definition_of_done" json:"definition_of_done"`
	Sprint           SprintSettings   `yaml:"sprint" json:"sprint"`
	Meetings         MeetingSettings  `yaml:"meetings" json:"meetings"`
	Gamification     GameSettings     `yaml:"gamification" json:"gamification"`
	RBAC             struct {
		Roles map[string]RBACRole `yaml:"roles" json:"roles"`
	} `yaml:"rbac" json:"rbac"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// WebhookConfig forwards public project events to an HTTP endpoint.
// An empty Events list forwards every type.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

type IMSSettings struct {
	ProjectID       string       `yaml:"project_id" json:"project_id"`
	SprintField     string       `yaml:"sprint_field" json:"sprint_field"`
	EstimationField string       `yaml:"estimation_field" json:"estimation_field"`
	IssueStates     []IssueState `yaml:"issue_states" json:"issue_states"`
	IssueTypes      []string     `yaml:"issue_types" json:"issue_types"`
}

type IssueState struct {
	Name     string                `yaml:"name" json:"name"`
	Type     domain.IssueStateType `yaml:"type" json:"type"`
	InSprint bool                  `yaml:"in_sprint" json:"in_sprint"`
}

type DoDItem struct {
	Text     string `yaml:"text" json:"text"`
	Required bool   `yaml:"required" json:"required"`
}

type SprintSettings struct {
	LengthDays         int     `yaml:"length_days" json:"length_days"`
	GoldChallengeRatio float64 `yaml:"gold_challenge_ratio" json:"gold_challenge_ratio"`
}

type MeetingSettings struct {
	StandupSecondsPerAttendee int               `yaml:"standup_seconds_per_attendee" json:"standup_seconds_per_attendee"`
	RetrospectiveActivities   []domain.Activity `yaml:"retrospective_activities" json:"retrospective_activities"`
}

type GameSettings struct {
	MeetingXP map[string]int `yaml:"meeting_xp" json:"meeting_xp"`
}

type RBACRole struct {
	Description string   `yaml:"description" json:"description"`
	Privileges  []string `yaml:"privileges" json:"privileges"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Project.ID == "" {
		return fmt.Errorf("config.project.id is required")
	}
	if len(c.IMS.IssueStates) == 0 {
		return fmt.Errorf("config.ims.issue_states is required")
	}
	seen := map[string]bool{}
	hasDone := false
	for _, st := range c.IMS.IssueStates {
		if strings.TrimSpace(st.Name) == "" {
			return fmt.Errorf("config.ims.issue_states contains empty name")
		}
		if seen[st.Name] {
			return fmt.Errorf("issue state %s declared twice", st.Name)
		}
		seen[st.Name] = true
		switch st.Type {
		case domain.StateNew, domain.StateInProgress:
		case domain.StateDone:
			hasDone = true
		default:
			return fmt.Errorf("issue state %s has invalid type %q", st.Name, st.Type)
		}
	}
	if !hasDone {
		return fmt.Errorf("config.ims.issue_states needs a DONE state")
	}
	for _, typ := range c.IMS.IssueTypes {
		if strings.TrimSpace(typ) == "" {
			return fmt.Errorf("config.ims.issue_types contains empty type")
		}
	}
	if c.Sprint.GoldChallengeRatio != 0 && c.Sprint.GoldChallengeRatio < 1 {
		return fmt.Errorf("config.sprint.gold_challenge_ratio must be >= 1")
	}
	if c.Sprint.LengthDays < 0 {
		return fmt.Errorf("config.sprint.length_days must be positive")
	}
	for _, item := range c.DefinitionOfDone {
		if strings.TrimSpace(item.Text) == "" {
			return fmt.Errorf("config.definition_of_done contains empty item")
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be positive", i)
		}
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["owner"]; !ok {
			return fmt.Errorf("config.rbac.roles must include owner")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, p := range role.Privileges {
				if p == "" {
					return fmt.Errorf("role %s has empty privilege", roleID)
				}
			}
		}
	}
	return nil
}

// State looks up an issue state by name.
func (c *Config) State(name string) (IssueState, bool) {
	for _, st := range c.IMS.IssueStates {
		if st.Name == name {
			return st, true
		}
	}
	return IssueState{}, false
}

// FirstStateOfType returns the first configured state with the given semantic type.
func (c *Config) FirstStateOfType(t domain.IssueStateType) (IssueState, bool) {
	for _, st := range c.IMS.IssueStates {
		if st.Type == t {
			return st, true
		}
	}
	return IssueState{}, false
}

// InSprint reports whether the named state counts as "in sprint". Unknown states do not.
func (c *Config) InSprint(state string) bool {
	st, ok := c.State(state)
	return ok && st.InSprint
}

func (c *Config) IsDone(state string) bool {
	st, ok := c.State(state)
	return ok && st.Type == domain.StateDone
}

func (c *Config) HasIssueType(name string) bool {
	for _, t := range c.IMS.IssueTypes {
		if t == name {
			return true
		}
	}
	return false
}

// RolePrivileges returns the privileges granted to a project role.
func (c *Config) RolePrivileges(role string) []string {
	if c == nil || c.RBAC.Roles == nil {
		return nil
	}
	return c.RBAC.Roles[role].Privileges
}

func (c *Config) GoldChallengeRatio() float64 {
	if c.Sprint.GoldChallengeRatio < 1 {
		return 1.25
	}
	return c.Sprint.GoldChallengeRatio
}

func (c *Config) MeetingXP(t domain.MeetingType) int {
	if xp, ok := c.Gamification.MeetingXP[string(t)]; ok {
		return xp
	}
	return 0
}

// GenerateDefault returns default config YAML.
func GenerateDefault(projectID, name string) string {
	if name == "" {
		name = projectID
	}
	return fmt.Sprintf(defaultTemplate, projectID, name)
}

// Default returns the default Config struct for a project.
func Default(projectID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(projectID, ""))).Decode(&cfg)
	cfg.Project.ID = projectID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the config back to YAML.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `project:
  id: %s
  name: %s

ims:
  project_id: ""
  sprint_field: sprint
  estimation_field: story_points
  issue_states:
    - {name: Backlog, type: NEW, in_sprint: false}
    - {name: Selected, type: NEW, in_sprint: true}
    - {name: In Progress, type: IN_PROGRESS, in_sprint: true}
    - {name: In Review, type: IN_PROGRESS, in_sprint: true}
    - {name: Done, type: DONE, in_sprint: true}
  issue_types: [Story, Bug, Task]

definition_of_done:
  - text: "Acceptance criteria are met"
    required: true
  - text: "Code is reviewed"
    required: true
  - text: "Tests are written and green"
    required: true
  - text: "Documentation is updated"
    required: false

sprint:
  length_days: 14
  gold_challenge_ratio: 1.25

meetings:
  standup_seconds_per_attendee: 120
  retrospective_activities:
    - name: "Start, Stop, Continue"
      description: "What should we start doing, stop doing and keep doing?"
    - name: "Mad, Sad, Glad"
      description: "Collect the feelings the sprint left behind."

gamification:
  meeting_xp:
    STANDUP: 10
    PLANNING: 30
    RETROSPECTIVE: 50

rbac:
  roles:
    owner:
      description: "Project owner"
      privileges: [READ_PROJECT, UPDATE_PROJECT, DELETE_PROJECT, MANAGE_SPRINTS, MANAGE_MEETINGS, MUTATE_ISSUES]
    scrum_master:
      description: "Runs the ceremonies"
      privileges: [READ_PROJECT, MANAGE_SPRINTS, MANAGE_MEETINGS, MUTATE_ISSUES]
    developer:
      description: "Team member"
      privileges: [READ_PROJECT, MANAGE_MEETINGS, MUTATE_ISSUES]
    viewer:
      description: "Read-only"
      privileges: [READ_PROJECT]
`
