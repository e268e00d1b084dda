package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
	"scrumgame/internal/ims"
	"scrumgame/internal/keylock"
	"scrumgame/internal/repo"
	"scrumgame/internal/reward"
	"scrumgame/internal/rules"
)

// Options configures New. Zero values pick the defaults.
type Options struct {
	Adapter       ims.Adapter
	Rewards       *reward.Calculator
	Registry      *events.Registry
	Logger        *slog.Logger
	Now           func() time.Time
	SyncInterval  time.Duration
	ReminderHour  *int
	HideForbidden bool
}

// Engine is the command facade over projects, sprints, issues, meetings and
// the event feed.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    *events.Publisher
	Rules     *rules.Engine
	IMS       *ims.Service
	Rewards   *reward.Calculator
	Auth      auth.Service
	Meetings  *events.Hub[domain.Meeting]
	Reminders *Reminders
	Logger    *slog.Logger
	Now       func() time.Time

	locks     keylock.Map
	closeOnce sync.Once
}

func New(db *sql.DB, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rewards := opts.Rewards
	if rewards == nil {
		src, err := reward.NewSource()
		if err != nil {
			return nil, fmt.Errorf("seed rewards: %w", err)
		}
		rewards = reward.New(src)
	}
	registry := opts.Registry
	if registry == nil {
		registry = events.DefaultRegistry()
	}
	adapter := opts.Adapter
	if adapter == nil {
		adapter = ims.NewMemory()
	}

	e := &Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Rewards: rewards,
		Logger:  logger,
		Now:     opts.Now,
	}
	e.Auth = auth.Service{Source: e.Repo, Policy: auth.Policy{HideForbidden: opts.HideForbidden}}

	e.Rules = rules.NewEngine(rules.WithLogger(logger))
	e.Rules.Register(
		rules.StatCounterRule{Stats: e.Repo},
		rules.MeetingXPRule{Configs: e.Repo},
		rules.LevelUpRule{Stats: e.Repo, Rewards: rewards},
	)

	e.Events = &events.Publisher{
		DB:       db,
		Repo:     e.Repo,
		Registry: registry,
		Hub:      events.NewHub[domain.Event](events.WithHubLogger(logger), events.WithHubName("events")),
		Rules:    e.Rules,
		Now:      e.now,
		Logger:   logger,
	}
	e.Meetings = events.NewHub[domain.Meeting](events.WithHubLogger(logger), events.WithHubName("meetings"))

	syncer := ims.NewSyncer(adapter, e.Events,
		ims.WithSyncInterval(opts.SyncInterval),
		ims.WithSyncClock(e.now),
		ims.WithSyncLogger(logger),
	)
	e.IMS = ims.NewService(adapter, e.Repo, syncer)
	e.IMS.Now = e.now

	reminderOpts := []ReminderOption{WithReminderLogger(logger)}
	if opts.ReminderHour != nil {
		reminderOpts = append(reminderOpts, WithReminderHour(*opts.ReminderHour))
	}
	e.Reminders = NewReminders(e, reminderOpts...)

	go e.Events.Hub.Run()
	go e.Meetings.Run()
	return e, nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// appendEvents stores ins inside tx and returns the newly created events.
// Callers announce them once tx is committed.
func (e *Engine) appendEvents(ctx context.Context, tx *sql.Tx, ins ...domain.CreateEventInput) ([]domain.Event, error) {
	var created []domain.Event
	for _, in := range ins {
		ev, ok, err := e.Events.Append(ctx, tx, in)
		if err != nil {
			return nil, fmt.Errorf("append %s: %w", in.Type, err)
		}
		if ok {
			created = append(created, ev)
		}
	}
	return created, nil
}

func (e *Engine) announce(ctx context.Context, evs []domain.Event) {
	for _, ev := range evs {
		e.Events.Announce(ctx, ev)
	}
}

// Close stops the stream hubs. Open subscriptions are closed.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		e.Events.Hub.Stop()
		e.Meetings.Stop()
	})
}
