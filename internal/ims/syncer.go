package ims

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"scrumgame/internal/domain"
)

const DefaultSyncInterval = 30 * time.Second

// EventPublisher republishes IMS drafts into the local event log.
type EventPublisher interface {
	Publish(ctx context.Context, in domain.CreateEventInput) (domain.Event, error)
}

type projectSync struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	mark    time.Time
}

// Syncer pulls IMS activity into the event log. Project pulls are throttled
// per project; callers arriving inside the interval return without pulling.
type Syncer struct {
	adapter   Adapter
	publisher EventPublisher
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu       sync.Mutex
	projects map[string]*projectSync
}

type SyncerOption func(*Syncer)

func WithSyncInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSyncClock(now func() time.Time) SyncerOption {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSyncLogger(logger *slog.Logger) SyncerOption {
	return func(s *Syncer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewSyncer(adapter Adapter, publisher EventPublisher, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		adapter:   adapter,
		publisher: publisher,
		interval:  DefaultSyncInterval,
		now:       time.Now,
		logger:    slog.Default(),
		projects:  map[string]*projectSync{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Syncer) project(projectID string) *projectSync {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		p = &projectSync{limiter: rate.NewLimiter(rate.Every(s.interval), 1)}
		s.projects[projectID] = p
	}
	return p
}

// SyncProject pulls the project's IMS activity since the last successful pull.
// It returns the number of drafts republished; a throttled or coalesced call
// returns 0 and no error. The watermark only advances when every draft was
// published.
func (s *Syncer) SyncProject(ctx context.Context, projectID, scope string) (int, error) {
	p := s.project(projectID)
	if !p.mu.TryLock() {
		return 0, nil
	}
	defer p.mu.Unlock()
	start := s.now()
	if !p.limiter.AllowN(start, 1) {
		return 0, nil
	}
	drafts, err := s.adapter.ProjectEventsSince(ctx, scope, p.mark)
	if err != nil {
		return 0, fmt.Errorf("pull ims events for %s: %w", projectID, err)
	}
	n, err := s.republish(ctx, projectID, drafts)
	if err != nil {
		return n, err
	}
	p.mark = start
	s.logger.Debug("ims project synced", "project_id", projectID, "events", n)
	return n, nil
}

// SyncIssue republishes the activity of one issue in scope since the given
// time, unthrottled.
func (s *Syncer) SyncIssue(ctx context.Context, projectID, scope, issueID string, since time.Time) (int, error) {
	drafts, err := s.adapter.IssueEventsSince(ctx, scope, issueID, since)
	if err != nil {
		return 0, fmt.Errorf("pull ims events for issue %s: %w", issueID, err)
	}
	return s.republish(ctx, projectID, drafts)
}

// Watermark reports the start time of the project's last successful pull.
func (s *Syncer) Watermark(projectID string) time.Time {
	p := s.project(projectID)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mark
}

func (s *Syncer) republish(ctx context.Context, projectID string, drafts []domain.CreateEventInput) (int, error) {
	for i, d := range drafts {
		d.ProjectID = projectID
		if _, err := s.publisher.Publish(ctx, d); err != nil {
			return i, fmt.Errorf("republish ims event %s: %w", d.ID, err)
		}
	}
	return len(drafts), nil
}
