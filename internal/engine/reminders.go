package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
)

const defaultReminderHour = 7

// Reminders publishes nudges for sprints that are behind schedule. A daily
// trigger marks every project due; the reminder itself is published on the
// next feed read of the project, which carries the caller's IMS credential.
type Reminders struct {
	engine *Engine
	hour   int
	logger *slog.Logger

	mu     sync.Mutex
	gen    int
	served map[string]int
}

type ReminderOption func(*Reminders)

// WithReminderHour sets the local hour of the daily trigger.
func WithReminderHour(hour int) ReminderOption {
	return func(r *Reminders) {
		if hour >= 0 && hour <= 23 {
			r.hour = hour
		}
	}
}

func WithReminderLogger(logger *slog.Logger) ReminderOption {
	return func(r *Reminders) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReminders starts with every project due.
func NewReminders(e *Engine, opts ...ReminderOption) *Reminders {
	r := &Reminders{
		engine: e,
		hour:   defaultReminderHour,
		logger: slog.Default(),
		gen:    1,
		served: map[string]int{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schedule marks every project due again.
func (r *Reminders) Schedule() {
	r.mu.Lock()
	r.gen++
	r.mu.Unlock()
	r.logger.Info("reminders scheduled")
}

// NextTrigger returns the first trigger instant strictly after now.
func (r *Reminders) NextTrigger(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run schedules reminders every day at the configured hour until ctx ends.
func (r *Reminders) Run(ctx context.Context) {
	for {
		now := r.engine.now()
		timer := time.NewTimer(r.NextTrigger(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.Schedule()
		}
	}
}

func (r *Reminders) claim(projectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.served[projectID] == r.gen {
		return false
	}
	r.served[projectID] = r.gen
	return true
}

// RunDue publishes the project's reminder if the project is due, then clears
// the due flag.
func (r *Reminders) RunDue(ctx context.Context, projectID string) error {
	if !r.claim(projectID) {
		return nil
	}
	e := r.engine
	now := e.now()
	sprint, err := e.Repo.CurrentSprint(ctx, projectID, now)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	stats, err := e.sprintStats(ctx, sprint)
	if err != nil {
		return fmt.Errorf("sprint stats: %w", err)
	}
	msg, ok := reminderMessage(sprint, stats, now)
	if !ok {
		return nil
	}
	_, err = e.Events.Publish(ctx, domain.CreateEventInput{
		ProjectID:  projectID,
		Type:       events.TypeSystemMessage,
		Visibility: domain.VisibilityPublic,
		Message:    msg,
		Data:       []domain.DataField{domain.StringField(events.FieldMessage, msg)},
	})
	if err != nil {
		return err
	}
	r.logger.Info("reminder published", "project_id", projectID, "sprint", sprint.Number)
	return nil
}

// RunAll runs RunDue for every project and reports the first failure.
func (r *Reminders) RunAll(ctx context.Context) error {
	projects, err := r.engine.Repo.ListProjects(ctx)
	if err != nil {
		return err
	}
	var first error
	for _, p := range projects {
		if err := r.RunDue(ctx, p.ID); err != nil {
			r.logger.Error("reminder failed", "project_id", p.ID, "error", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// reminderMessage decides whether a sprint that is behind schedule gets a
// nudge today: always in its last two days, every second day before that.
func reminderMessage(s domain.Sprint, stats domain.SprintStats, now time.Time) (string, bool) {
	if stats.PercentageStoryPointsCompleted >= stats.PercentageTimeElapsed {
		return "", false
	}
	daysLeft := int(s.EndDate.Sub(now).Hours() / 24)
	todo := ""
	if s.StoryPointsPlanned != nil {
		todo = fmt.Sprintf(" You have %d story points left to do.", *s.StoryPointsPlanned-stats.StoryPointsCompleted)
	}
	if daysLeft <= 2 {
		return "The sprint is ending soon." + todo + " You can do it! 🚀", true
	}
	if daysLeft%2 != 0 {
		return "", false
	}
	return fmt.Sprintf("%d days left in the sprint.%s You can do it! 🚀", daysLeft, todo), true
}
