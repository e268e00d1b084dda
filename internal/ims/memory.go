package ims

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

type memoryEvent struct {
	scope string
	draft domain.CreateEventInput
}

// Memory is an in-process IMS. It records an event draft for every change the
// way a real tracker exposes its activity feed.
type Memory struct {
	// Prefix namespaces issue and draft ids.
	Prefix string
	Now    func() time.Time

	mu     sync.Mutex
	seq    int
	issues map[string]domain.Issue
	scopes map[string]string
	order  []string
	events []memoryEvent
}

func NewMemory() *Memory {
	return &Memory{Prefix: "mem"}
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Memory) nextID(kind string) string {
	m.seq++
	prefix := m.Prefix
	if prefix == "" {
		prefix = "mem"
	}
	return prefix + ":" + kind + ":" + strconv.Itoa(m.seq)
}

func (m *Memory) record(scope, issueID, userID, typ string, data ...domain.DataField) {
	m.events = append(m.events, memoryEvent{scope: scope, draft: domain.CreateEventInput{
		ID:        m.nextID("event"),
		UserID:    userID,
		IssueID:   issueID,
		Type:      typ,
		Timestamp: m.now().UTC(),
		Data:      data,
	}})
}

func (m *Memory) ListIssues(ctx context.Context, scope string) ([]domain.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Issue
	for _, id := range m.order {
		if m.scopes[id] == scope {
			res = append(res, cloneIssue(m.issues[id]))
		}
	}
	return res, nil
}

// lookup returns the issue if it exists in scope. m.mu must be held.
func (m *Memory) lookup(scope, issueID string) (domain.Issue, error) {
	issue, ok := m.issues[issueID]
	if !ok || m.scopes[issueID] != scope {
		return domain.Issue{}, domain.NotFound("issue", issueID)
	}
	return issue, nil
}

func (m *Memory) FindIssue(ctx context.Context, scope, issueID string) (domain.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, err := m.lookup(scope, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	return cloneIssue(issue), nil
}

func (m *Memory) CreateIssue(ctx context.Context, scope string, in domain.IssueInput) (domain.Issue, error) {
	if in.Title == "" {
		return domain.Issue{}, domain.Invalid("title", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.issues == nil {
		m.issues = map[string]domain.Issue{}
		m.scopes = map[string]string{}
	}
	issue := domain.Issue{
		ID:          m.nextID("issue"),
		Title:       in.Title,
		Description: in.Description,
		State:       in.State,
		Type:        in.Type,
		AssigneeID:  in.AssigneeID,
		StoryPoints: in.StoryPoints,
	}
	if in.SprintNumber != nil {
		n := *in.SprintNumber
		issue.SprintNumber = &n
	}
	m.issues[issue.ID] = issue
	m.scopes[issue.ID] = scope
	m.order = append(m.order, issue.ID)
	m.record(scope, issue.ID, in.ReporterID, events.TypeIssueCreated, domain.StringField(events.FieldIssueTitle, issue.Title))
	return cloneIssue(issue), nil
}

func (m *Memory) UpdateIssue(ctx context.Context, scope, issueID string, mut Mutation) (domain.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, err := m.lookup(scope, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	before := issue
	mut.apply(&issue)
	m.issues[issueID] = issue

	if issue.State != before.State {
		m.record(scope, issueID, mut.ActorID, events.TypeIssueStateChanged,
			domain.StringField(events.FieldOldState, before.State),
			domain.StringField(events.FieldNewState, issue.State))
		if mut.Completes {
			completer := issue.AssigneeID
			if completer == "" {
				completer = mut.ActorID
			}
			m.record(scope, issueID, completer, events.TypeIssueCompleted,
				domain.StringField(events.FieldIssueTitle, issue.Title),
				domain.IntField(events.FieldStoryPoints, issue.StoryPoints))
		}
	}
	if issue.AssigneeID != before.AssigneeID && issue.AssigneeID != "" {
		m.record(scope, issueID, mut.ActorID, events.TypeIssueAssigned, domain.StringField(events.FieldAssignee, issue.AssigneeID))
	}
	return cloneIssue(issue), nil
}

func (m *Memory) AddComment(ctx context.Context, scope, issueID, authorID, body, parentID string) (domain.Issue, error) {
	if body == "" {
		return domain.Issue{}, domain.Invalid("comment", "required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, err := m.lookup(scope, issueID)
	if err != nil {
		return domain.Issue{}, err
	}
	m.record(scope, issueID, authorID, events.TypeCommentOnIssue, domain.StringField(events.FieldComment, body))
	if parentID != "" {
		m.events[len(m.events)-1].draft.ParentID = parentID
	}
	return cloneIssue(issue), nil
}

// IssueEventsSince returns drafts of one issue at or after since.
func (m *Memory) IssueEventsSince(ctx context.Context, scope, issueID string, since time.Time) ([]domain.CreateEventInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.lookup(scope, issueID); err != nil {
		return nil, err
	}
	return m.filter(func(e memoryEvent) bool { return e.draft.IssueID == issueID }, since), nil
}

// ProjectEventsSince returns drafts of every issue in scope at or after since.
func (m *Memory) ProjectEventsSince(ctx context.Context, scope string, since time.Time) ([]domain.CreateEventInput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(e memoryEvent) bool { return e.scope == scope }, since), nil
}

func (m *Memory) filter(match func(memoryEvent) bool, since time.Time) []domain.CreateEventInput {
	var res []domain.CreateEventInput
	for _, e := range m.events {
		if match(e) && !e.draft.Timestamp.Before(since) {
			d := e.draft
			d.Data = slices.Clone(d.Data)
			res = append(res, d)
		}
	}
	return res
}

func cloneIssue(i domain.Issue) domain.Issue {
	if i.SprintNumber != nil {
		n := *i.SprintNumber
		i.SprintNumber = &n
	}
	return i
}
