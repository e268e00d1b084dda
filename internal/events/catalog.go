package events

import "scrumgame/internal/domain"

const (
	TypeUserMessage   = "USER_MESSAGE"
	TypeSystemMessage = "SYSTEM_MESSAGE"

	TypeIssueCreated      = "ISSUE_CREATED"
	TypeIssueCompleted    = "ISSUE_COMPLETED"
	TypeCommentOnIssue    = "COMMENT_ON_ISSUE"
	TypeIssueStateChanged = "ISSUE_STATE_CHANGED"
	TypeIssueAssigned     = "ISSUE_ASSIGNED"

	TypeOpenPullRequest     = "OPEN_PULL_REQUEST"
	TypeClosePullRequest    = "CLOSE_PULL_REQUEST"
	TypeReviewAccept        = "REVIEW_ACCEPT"
	TypeReviewChangeRequest = "REVIEW_CHANGE_REQUEST"

	TypeEventReaction       = "EVENT_REACTION"
	TypeUserJoined          = "USER_JOINED"
	TypeAchievementUnlocked = "ACHIEVEMENT_UNLOCKED"
	TypeSprintStarted       = "SPRINT_STARTED"
	TypeSprintEnded         = "SPRINT_ENDED"
	TypeSprintPlanningEnded = "SPRINT_PLANNING_ENDED"
	TypeStandupEnded        = "STANDUP_ENDED"
	TypeRetrospectiveEnded  = "RETROSPECTIVE_ENDED"
	TypeXPGain              = "XP_GAIN"
	TypeLevelUp             = "LEVEL_UP"
)

// Data field names shared by producers and rules.
const (
	FieldMessage         = "message"
	FieldReaction        = "reaction"
	FieldIssueTitle      = "issueTitle"
	FieldStoryPoints     = "storyPoints"
	FieldComment         = "comment"
	FieldOldState        = "oldState"
	FieldNewState        = "newState"
	FieldAssignee        = "assigneeId"
	FieldPullRequest     = "pullRequestTitle"
	FieldAchievementName = "achievementName"
	FieldSprintNumber    = "sprintNumber"
	FieldMeetingLeader   = "meetingLeader"
	FieldXP              = "xp"
	FieldNewLevel        = "newLevel"
	FieldVirtualCurrency = "virtualCurrency"
)

func required(name string, t domain.DataType) FieldSchema {
	return FieldSchema{Name: name, Type: t, Required: true}
}

func optional(name string, t domain.DataType) FieldSchema {
	return FieldSchema{Name: name, Type: t}
}

// CoreCatalog holds the free-form message types.
func CoreCatalog() []Type {
	return []Type{
		{
			Identifier:        TypeUserMessage,
			Description:       "A message written by a user",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldMessage, domain.DataString)},
			MessageTemplate:   "${message}",
		},
		{
			Identifier:        TypeSystemMessage,
			Description:       "A message written by the system",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldMessage, domain.DataString)},
			MessageTemplate:   "${message}",
		},
	}
}

// IMSCatalog holds the types produced by issue tracker sync.
func IMSCatalog() []Type {
	return []Type{
		{
			Identifier:        TypeIssueCreated,
			Description:       "An issue was created",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldIssueTitle, domain.DataString)},
			MessageTemplate:   "created the issue '${issueTitle}'.",
		},
		{
			Identifier:        TypeIssueCompleted,
			Description:       "An issue was moved to a done state",
			DefaultVisibility: domain.VisibilityPublic,
			Schema: []FieldSchema{
				required(FieldIssueTitle, domain.DataString),
				optional(FieldStoryPoints, domain.DataInteger),
			},
			MessageTemplate: "completed the issue '${issueTitle}'.",
		},
		{
			Identifier:        TypeCommentOnIssue,
			Description:       "A comment was written on an issue",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldComment, domain.DataString)},
			MessageTemplate:   "commented: ${comment}",
		},
		{
			Identifier:        TypeIssueStateChanged,
			Description:       "The state of an issue changed",
			DefaultVisibility: domain.VisibilityPublic,
			Schema: []FieldSchema{
				optional(FieldOldState, domain.DataString),
				required(FieldNewState, domain.DataString),
			},
			MessageTemplate: "moved the issue to '${newState}'.",
		},
		{
			Identifier:        TypeIssueAssigned,
			Description:       "An issue was assigned",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldAssignee, domain.DataString)},
			MessageTemplate:   "assigned the issue to ${assigneeId}.",
		},
	}
}

// VCSCatalog holds the pull request lifecycle types.
func VCSCatalog() []Type {
	pr := []FieldSchema{required(FieldPullRequest, domain.DataString)}
	return []Type{
		{Identifier: TypeOpenPullRequest, Description: "A pull request was opened", DefaultVisibility: domain.VisibilityPublic, Schema: pr, MessageTemplate: "opened the pull request '${pullRequestTitle}'."},
		{Identifier: TypeClosePullRequest, Description: "A pull request was closed", DefaultVisibility: domain.VisibilityPublic, Schema: pr, MessageTemplate: "closed the pull request '${pullRequestTitle}'."},
		{Identifier: TypeReviewAccept, Description: "A pull request review approved the change", DefaultVisibility: domain.VisibilityPublic, Schema: pr, MessageTemplate: "approved the pull request '${pullRequestTitle}'."},
		{Identifier: TypeReviewChangeRequest, Description: "A pull request review requested changes", DefaultVisibility: domain.VisibilityPublic, Schema: pr, MessageTemplate: "requested changes on the pull request '${pullRequestTitle}'."},
	}
}

// GameCatalog holds the scrum game types.
func GameCatalog() []Type {
	leader := []FieldSchema{required(FieldMeetingLeader, domain.DataString)}
	return []Type{
		{
			Identifier:        TypeEventReaction,
			Description:       "A reaction to another event",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{optional(FieldReaction, domain.DataString)},
			MessageTemplate:   "reacted to the event with '${reaction}'.",
		},
		{
			Identifier:        TypeUserJoined,
			Description:       "A user joined the project",
			DefaultVisibility: domain.VisibilityPublic,
			MessageTemplate:   "joined the project.",
		},
		{
			Identifier:        TypeAchievementUnlocked,
			Description:       "A user unlocked an achievement",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{required(FieldAchievementName, domain.DataString)},
			MessageTemplate:   "unlocked the achievement '${achievementName}'.",
		},
		{
			Identifier:        TypeSprintStarted,
			Description:       "A sprint started",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{optional(FieldSprintNumber, domain.DataInteger)},
			MessageTemplate:   "Sprint ${sprintNumber} started.",
		},
		{
			Identifier:        TypeSprintEnded,
			Description:       "A sprint ended",
			DefaultVisibility: domain.VisibilityPublic,
			Schema:            []FieldSchema{optional(FieldSprintNumber, domain.DataInteger)},
			MessageTemplate:   "Sprint ${sprintNumber} ended.",
		},
		{Identifier: TypeSprintPlanningEnded, Description: "A sprint planning meeting ended", DefaultVisibility: domain.VisibilityInternal, Schema: leader},
		{Identifier: TypeStandupEnded, Description: "A standup meeting ended", DefaultVisibility: domain.VisibilityInternal, Schema: leader},
		{Identifier: TypeRetrospectiveEnded, Description: "A retrospective meeting ended", DefaultVisibility: domain.VisibilityInternal, Schema: leader},
		{
			Identifier:        TypeXPGain,
			Description:       "A user gained experience points",
			DefaultVisibility: domain.VisibilityPrivate,
			Schema:            []FieldSchema{required(FieldXP, domain.DataInteger)},
			MessageTemplate:   "gained ${xp} XP!",
		},
		{
			Identifier:        TypeLevelUp,
			Description:       "A user reached a new level",
			DefaultVisibility: domain.VisibilityPrivate,
			Schema: []FieldSchema{
				required(FieldNewLevel, domain.DataInteger),
				required(FieldVirtualCurrency, domain.DataInteger),
			},
			MessageTemplate: "leveled up to level ${newLevel}! You gain +${virtualCurrency} 💎!",
		},
	}
}
