package events

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"scrumgame/internal/domain"
	"scrumgame/internal/repo"
)

// maxRuleDepth bounds chaining: command events (depth 0) and the follow-ups
// rules emit for them (depth 1) are dispatched; deeper follow-ups are stored only.
const maxRuleDepth = 1

var tracer = otel.Tracer("scrumgame/internal/events")

// RuleRunner evaluates rules for a stored event and returns follow-up events.
type RuleRunner interface {
	Run(ctx context.Context, e domain.Event) []domain.CreateEventInput
}

// Publisher is the only write path into the event log.
type Publisher struct {
	DB       *sql.DB
	Repo     repo.Repo
	Registry *Registry
	Hub      *Hub[domain.Event]
	Rules    RuleRunner
	Now      func() time.Time
	Logger   *slog.Logger
}

func (p *Publisher) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Publisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Publish stores, broadcasts and dispatches one event. Re-publishing a known id
// returns the stored event and has no other effect.
func (p *Publisher) Publish(ctx context.Context, in domain.CreateEventInput) (domain.Event, error) {
	return p.publish(ctx, in, 0)
}

func (p *Publisher) publish(ctx context.Context, in domain.CreateEventInput, depth int) (domain.Event, error) {
	ctx, span := tracer.Start(ctx, "events.Publish", trace.WithAttributes(
		attribute.String("event.type", in.Type),
		attribute.String("project.id", in.ProjectID),
		attribute.Int("rule.depth", depth),
	))
	defer span.End()

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()
	e, created, err := p.Append(ctx, tx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "append failed")
		return domain.Event{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Event{}, err
	}
	span.SetAttributes(attribute.String("event.id", e.ID), attribute.Bool("event.created", created))
	if created {
		p.deliver(ctx, e, depth)
	}
	return e, nil
}

// Append validates in and stores it inside tx. created is false when an event
// with the same id already exists; the stored event is returned instead.
// Callers owning tx must Announce the event after committing.
func (p *Publisher) Append(ctx context.Context, tx *sql.Tx, in domain.CreateEventInput) (domain.Event, bool, error) {
	if in.ID != "" {
		existing, err := p.Repo.GetEventTx(ctx, tx, in.ID)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.Event{}, false, err
		}
	}
	e, err := p.build(in)
	if err != nil {
		return domain.Event{}, false, err
	}
	if err := p.Repo.InsertEvent(ctx, tx, e); err != nil {
		return domain.Event{}, false, err
	}
	return e, true, nil
}

func (p *Publisher) build(in domain.CreateEventInput) (domain.Event, error) {
	if p.Registry == nil {
		return domain.Event{}, errors.New("event registry not configured")
	}
	t, ok := p.Registry.Lookup(in.Type)
	if !ok {
		return domain.Event{}, domain.Invalid("eventTypeIdentifier", "unknown event type %q", in.Type)
	}
	if in.ProjectID == "" {
		return domain.Event{}, domain.Invalid("projectId", "required")
	}
	if err := t.ValidateData(in.Data); err != nil {
		return domain.Event{}, err
	}
	vis := in.Visibility
	if vis == "" {
		vis = t.DefaultVisibility
	}
	if !vis.Valid() {
		return domain.Event{}, domain.Invalid("visibility", "unknown visibility %q", vis)
	}
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = p.now()
	}
	msg := in.Message
	if msg == "" {
		msg = t.Render(in.Data)
	}
	var visibleTo []string
	for _, uid := range in.VisibleTo {
		if uid != "" && !slices.Contains(visibleTo, uid) {
			visibleTo = append(visibleTo, uid)
		}
	}
	return domain.Event{
		ID:         id,
		ProjectID:  in.ProjectID,
		UserID:     in.UserID,
		ParentID:   in.ParentID,
		IssueID:    in.IssueID,
		Type:       t.Identifier,
		Visibility: vis,
		VisibleTo:  visibleTo,
		Timestamp:  ts.UTC(),
		Message:    msg,
		Data:       slices.Clone(in.Data),
	}, nil
}

// Announce broadcasts a committed event and runs the rules on it.
func (p *Publisher) Announce(ctx context.Context, e domain.Event) {
	p.deliver(ctx, e, 0)
}

func (p *Publisher) deliver(ctx context.Context, e domain.Event, depth int) {
	if p.Hub != nil {
		p.Hub.Publish(e)
	}
	if p.Rules == nil || depth > maxRuleDepth {
		return
	}
	for _, follow := range p.Rules.Run(ctx, e) {
		if follow.ProjectID == "" {
			follow.ProjectID = e.ProjectID
		}
		if _, err := p.publish(ctx, follow, depth+1); err != nil {
			p.logger().Error("publish rule follow-up failed",
				"parent_id", e.ID,
				"event_type", follow.Type,
				"error", err,
			)
		}
	}
}

// Subscribe streams later events of a project visible to userID.
func (p *Publisher) Subscribe(projectID, userID string) (*Subscription[domain.Event], error) {
	if p.Hub == nil {
		return nil, errors.New("event hub not configured")
	}
	return p.Hub.Subscribe(func(e domain.Event) bool {
		return e.ProjectID == projectID && e.VisibleFor(userID)
	}), nil
}

func (p *Publisher) Unsubscribe(sub *Subscription[domain.Event]) {
	if p.Hub != nil {
		p.Hub.Unsubscribe(sub)
	}
}

// FindForUser pages the project feed as userID sees it.
func (p *Publisher) FindForUser(ctx context.Context, projectID, userID string, page domain.Page) ([]domain.Event, error) {
	return p.Repo.EventsForUser(ctx, projectID, userID, page)
}

func (p *Publisher) FindForIssue(ctx context.Context, projectID, issueID string) ([]domain.Event, error) {
	return p.Repo.EventsForIssue(ctx, projectID, issueID)
}

// FindChildren lists the replies and reactions of an event visible to callerID.
func (p *Publisher) FindChildren(ctx context.Context, eventID, callerID string) ([]domain.Event, error) {
	return p.Repo.EventChildren(ctx, eventID, callerID)
}

// FindLastSyncMarker returns the newest event of an issue, the incremental sync watermark.
func (p *Publisher) FindLastSyncMarker(ctx context.Context, projectID, issueID string) (domain.Event, error) {
	e, err := p.Repo.LastEventForIssue(ctx, projectID, issueID)
	if err != nil {
		return domain.Event{}, fmt.Errorf("last sync marker: %w", err)
	}
	return e, nil
}
