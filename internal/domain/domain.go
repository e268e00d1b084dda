package domain

import "time"

type Project struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Description         string   `json:"description,omitempty"`
	CurrentSprintNumber int      `json:"current_sprint_number"`
	UnlockedAnimals     []string `json:"unlocked_animals"`
	UnlockedAssets      []string `json:"unlocked_assets"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
	UpdatedAt           string   `json:"updated_at" format:"date-time"`
}

// Membership is a user's seat in a project.
type Membership struct {
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	CurrentBadge Badge  `json:"current_badge,omitempty" enum:"GOLD_MEDAL,SILVER_MEDAL,BRONZE_MEDAL,"`
	JoinedAt     string `json:"joined_at" format:"date-time"`
}

type Badge string

const (
	BadgeNone   Badge = ""
	BadgeGold   Badge = "GOLD_MEDAL"
	BadgeSilver Badge = "SILVER_MEDAL"
	BadgeBronze Badge = "BRONZE_MEDAL"
)

type Sprint struct {
	ProjectID          string    `json:"project_id"`
	Number             int       `json:"number"`
	Name               string    `json:"name,omitempty"`
	Goal               string    `json:"goal,omitempty"`
	StartDate          time.Time `json:"start_date" format:"date-time"`
	EndDate            time.Time `json:"end_date" format:"date-time"`
	StoryPointsPlanned *int      `json:"story_points_planned,omitempty"`
}

// Contains reports whether t falls inside [StartDate, EndDate).
func (s Sprint) Contains(t time.Time) bool {
	return !t.Before(s.StartDate) && t.Before(s.EndDate)
}

type SuccessState string

const (
	SuccessUnknown           SuccessState = "UNKNOWN"
	SuccessFailed            SuccessState = "FAILED"
	SuccessSuccess           SuccessState = "SUCCESS"
	SuccessWithGoldChallenge SuccessState = "SUCCESS_WITH_GOLD_CHALLENGE"
)

// Successful is true for SUCCESS and SUCCESS_WITH_GOLD_CHALLENGE.
func (s SuccessState) Successful() bool {
	return s == SuccessSuccess || s == SuccessWithGoldChallenge
}

type SprintStats struct {
	ProjectID                      string            `json:"project_id"`
	Number                         int               `json:"number"`
	StoryPointsPlanned             *int              `json:"story_points_planned,omitempty"`
	StoryPointsCompleted           int               `json:"story_points_completed"`
	PercentageStoryPointsCompleted float64           `json:"percentage_story_points_completed"`
	PercentageTimeElapsed          float64           `json:"percentage_time_elapsed"`
	SuccessState                   SuccessState      `json:"success_state"`
	Streak                         int               `json:"streak"`
	UserStats                      []UserSprintStats `json:"user_stats"`
}

type UserSprintStats struct {
	UserID               string `json:"user_id"`
	StoryPointsCompleted int    `json:"story_points_completed"`
	IssuesCompleted      int    `json:"issues_completed"`
}

// UserStats holds the gamification counters of one user in one project.
type UserStats struct {
	ProjectID            string `json:"project_id"`
	UserID               string `json:"user_id"`
	ReactionsGiven       int    `json:"reactions_given"`
	IssuesCompleted      int    `json:"issues_completed"`
	IssuesCreated        int    `json:"issues_created"`
	PullRequestsCreated  int    `json:"pull_requests_created"`
	PullRequestsClosed   int    `json:"pull_requests_closed"`
	PullRequestsReviewed int    `json:"pull_requests_reviewed"`
	CommentsWritten      int    `json:"comments_written"`
	GoldMedals           int    `json:"gold_medals"`
	SilverMedals         int    `json:"silver_medals"`
	BronzeMedals         int    `json:"bronze_medals"`
	VirtualCurrency      int    `json:"virtual_currency"`
	XP                   int    `json:"xp"`
	Level                int    `json:"level"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
