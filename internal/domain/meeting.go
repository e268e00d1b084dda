package domain

import (
	"slices"
	"time"
)

type MeetingType string

const (
	MeetingStandup       MeetingType = "STANDUP"
	MeetingRetrospective MeetingType = "RETROSPECTIVE"
	MeetingPlanning      MeetingType = "PLANNING"
)

func (t MeetingType) Valid() bool {
	switch t {
	case MeetingStandup, MeetingRetrospective, MeetingPlanning:
		return true
	}
	return false
}

type AttendeeRole string

const (
	RoleLeader   AttendeeRole = "LEADER"
	RoleAttendee AttendeeRole = "ATTENDEE"
)

type Attendee struct {
	UserID string       `json:"user_id"`
	Role   AttendeeRole `json:"role" enum:"LEADER,ATTENDEE"`
}

// Meeting is a tagged variant: Type selects which of the payload pointers is set.
type Meeting struct {
	ID            string              `json:"id"`
	ProjectID     string              `json:"project_id"`
	Type          MeetingType         `json:"type"`
	Active        bool                `json:"active"`
	Attendees     []Attendee          `json:"attendees"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Standup       *StandupState       `json:"standup,omitempty"`
	Retrospective *RetrospectiveState `json:"retrospective,omitempty"`
	Planning      *PlanningState      `json:"planning,omitempty"`
}

func (m Meeting) Leader() string {
	for _, a := range m.Attendees {
		if a.Role == RoleLeader {
			return a.UserID
		}
	}
	return ""
}

func (m Meeting) HasAttendee(userID string) bool {
	return slices.ContainsFunc(m.Attendees, func(a Attendee) bool { return a.UserID == userID })
}

func (m Meeting) AttendeeIDs() []string {
	ids := make([]string, 0, len(m.Attendees))
	for _, a := range m.Attendees {
		ids = append(ids, a.UserID)
	}
	return ids
}

// Clone returns a deep copy so snapshots handed to subscribers never alias session state.
func (m Meeting) Clone() Meeting {
	c := m
	c.Attendees = slices.Clone(m.Attendees)
	if m.Standup != nil {
		s := *m.Standup
		s.Order = slices.Clone(m.Standup.Order)
		c.Standup = &s
	}
	if m.Retrospective != nil {
		r := *m.Retrospective
		r.Activities = slices.Clone(m.Retrospective.Activities)
		r.BaseRewards = slices.Clone(m.Retrospective.BaseRewards)
		r.StreakRewards = slices.Clone(m.Retrospective.StreakRewards)
		c.Retrospective = &r
	}
	if m.Planning != nil {
		p := *m.Planning
		c.Planning = &p
	}
	return c
}

type StandupState struct {
	Order                  []string `json:"order"`
	CurrentAttendee        string   `json:"current_attendee,omitempty"`
	TimePerAttendeeSeconds int      `json:"time_per_attendee_seconds"`
}

func (s StandupState) Started() bool {
	return len(s.Order) > 0
}

type RetrospectivePage string

const (
	PageInformation RetrospectivePage = "INFORMATION"
	PageActivities  RetrospectivePage = "ACTIVITIES"
	PageMedals      RetrospectivePage = "MEDALS"
	PageRewards     RetrospectivePage = "REWARDS"
	PageSummary     RetrospectivePage = "SUMMARY"
)

func (p RetrospectivePage) Valid() bool {
	switch p {
	case PageInformation, PageActivities, PageMedals, PageRewards, PageSummary:
		return true
	}
	return false
}

type Activity struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type Medal struct {
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}

type RetrospectiveState struct {
	SprintNumber        int               `json:"sprint_number"`
	CurrentPage         RetrospectivePage `json:"current_page"`
	Activities          []Activity        `json:"activities"`
	SprintStats         SprintStats       `json:"sprint_stats"`
	GoldChallengeReward string            `json:"gold_challenge_reward,omitempty"`
	BaseRewards         []string          `json:"base_rewards"`
	StreakRewards       []string          `json:"streak_rewards"`
	MedalsAwarded       bool              `json:"medals_awarded"`
	GoldMedal           *Medal            `json:"gold_medal,omitempty"`
	SilverMedal         *Medal            `json:"silver_medal,omitempty"`
	BronzeMedal         *Medal            `json:"bronze_medal,omitempty"`
}

type PlanningState struct {
	SprintNumber int    `json:"sprint_number"`
	Goal         string `json:"goal,omitempty"`
}
