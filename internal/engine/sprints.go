package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
	"scrumgame/internal/events"
)

const defaultSprintLength = 14 * 24 * time.Hour

type SprintCreateOptions struct {
	Number             int
	Name               string
	Goal               string
	StartDate          time.Time
	EndDate            time.Time
	StoryPointsPlanned *int
}

// CreateSprint stores a sprint. Number defaults to the next free number, the
// start to now and the end to start plus the configured sprint length.
func (e *Engine) CreateSprint(ctx context.Context, projectID string, opts SprintCreateOptions) (domain.Sprint, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ManageSprints)
	if err != nil {
		return domain.Sprint{}, err
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Sprint{}, err
	}
	cfg, err := e.projectConfig(ctx, projectID)
	if err != nil {
		return domain.Sprint{}, err
	}
	number := opts.Number
	if number == 0 {
		last, err := e.Repo.MaxSprintNumber(ctx, projectID)
		if err != nil {
			return domain.Sprint{}, err
		}
		number = last + 1
	}
	if number < 0 {
		return domain.Sprint{}, domain.Invalid("number", "must be positive")
	}
	if opts.StoryPointsPlanned != nil && *opts.StoryPointsPlanned < 0 {
		return domain.Sprint{}, domain.Invalid("storyPointsPlanned", "must not be negative")
	}
	start := opts.StartDate
	if start.IsZero() {
		start = e.now()
	}
	end := opts.EndDate
	if end.IsZero() {
		length := defaultSprintLength
		if cfg.Sprint.LengthDays > 0 {
			length = time.Duration(cfg.Sprint.LengthDays) * 24 * time.Hour
		}
		end = start.Add(length)
	}
	if !end.After(start) {
		return domain.Sprint{}, domain.Invalid("endDate", "must be after startDate")
	}
	s := domain.Sprint{
		ProjectID:          projectID,
		Number:             number,
		Name:               opts.Name,
		Goal:               opts.Goal,
		StartDate:          start.UTC(),
		EndDate:            end.UTC(),
		StoryPointsPlanned: opts.StoryPointsPlanned,
	}
	if _, err := e.Repo.GetSprint(ctx, projectID, number); err == nil {
		return domain.Sprint{}, domain.Conflict("sprint %d already exists", number)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Sprint{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Sprint{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertSprint(ctx, tx, s); err != nil {
		return domain.Sprint{}, fmt.Errorf("insert sprint: %w", err)
	}
	created, err := e.appendEvents(ctx, tx, domain.CreateEventInput{
		ProjectID: projectID,
		UserID:    actor,
		Type:      events.TypeSprintStarted,
		Timestamp: s.StartDate,
		Data:      []domain.DataField{domain.IntField(events.FieldSprintNumber, number)},
	})
	if err != nil {
		return domain.Sprint{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Sprint{}, err
	}
	e.announce(ctx, created)
	return s, nil
}

type SprintUpdateOptions struct {
	Name               *string
	Goal               *string
	StartDate          *time.Time
	EndDate            *time.Time
	StoryPointsPlanned *int
	ClearPlanned       bool
}

func (e *Engine) UpdateSprint(ctx context.Context, projectID string, number int, opts SprintUpdateOptions) (domain.Sprint, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ManageSprints); err != nil {
		return domain.Sprint{}, err
	}
	s, err := e.Repo.GetSprint(ctx, projectID, number)
	if err != nil {
		return domain.Sprint{}, err
	}
	if opts.Name != nil {
		s.Name = *opts.Name
	}
	if opts.Goal != nil {
		s.Goal = *opts.Goal
	}
	if opts.StartDate != nil {
		s.StartDate = opts.StartDate.UTC()
	}
	if opts.EndDate != nil {
		s.EndDate = opts.EndDate.UTC()
	}
	switch {
	case opts.ClearPlanned:
		s.StoryPointsPlanned = nil
	case opts.StoryPointsPlanned != nil:
		if *opts.StoryPointsPlanned < 0 {
			return domain.Sprint{}, domain.Invalid("storyPointsPlanned", "must not be negative")
		}
		v := *opts.StoryPointsPlanned
		s.StoryPointsPlanned = &v
	}
	if !s.EndDate.After(s.StartDate) {
		return domain.Sprint{}, domain.Invalid("endDate", "must be after startDate")
	}
	if err := e.Repo.UpdateSprint(ctx, nil, s); err != nil {
		return domain.Sprint{}, err
	}
	return s, nil
}

func (e *Engine) Sprints(ctx context.Context, projectID string) ([]domain.Sprint, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.Repo.ListSprints(ctx, projectID)
}

func (e *Engine) Sprint(ctx context.Context, projectID string, number int) (domain.Sprint, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Sprint{}, err
	}
	return e.Repo.GetSprint(ctx, projectID, number)
}

// CurrentSprint is the sprint whose range contains now.
func (e *Engine) CurrentSprint(ctx context.Context, projectID string) (domain.Sprint, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Sprint{}, err
	}
	return e.Repo.CurrentSprint(ctx, projectID, e.now())
}

// PreviousSprint is the latest sprint that has already ended.
func (e *Engine) PreviousSprint(ctx context.Context, projectID string) (domain.Sprint, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return domain.Sprint{}, err
	}
	return e.Repo.PreviousSprint(ctx, projectID, e.now())
}
