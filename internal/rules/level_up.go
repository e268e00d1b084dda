package rules

import (
	"context"
	"errors"

	"scrumgame/internal/domain"
	"scrumgame/internal/events"
	"scrumgame/internal/reward"
)

// LevelUpRule adds gained XP to the user's stats and announces new levels.
type LevelUpRule struct {
	Stats   StatsStore
	Rewards *reward.Calculator
}

func (LevelUpRule) Name() string { return "level-up" }

func (LevelUpRule) Triggers() []string {
	return []string{events.TypeXPGain}
}

func (LevelUpRule) Condition(e domain.Event) bool {
	xp, ok := e.Int(events.FieldXP)
	return ok && xp > 0 && e.UserID != "" && e.ProjectID != ""
}

func (r LevelUpRule) Action(ctx context.Context, e domain.Event) (*domain.CreateEventInput, error) {
	if r.Rewards == nil {
		return nil, errors.New("level-up rule has no reward calculator")
	}
	xp, _ := e.Int(events.FieldXP)
	var reached, currency int
	_, err := r.Stats.UpdateUserStats(ctx, e.ProjectID, e.UserID, func(s *domain.UserStats) {
		if s.Level < 1 {
			s.Level = 1
		}
		s.XP += xp
		next := reward.LevelForXP(s.XP)
		for s.Level < next {
			s.Level++
			currency += r.Rewards.LevelUpCurrency(s.Level)
		}
		if currency > 0 {
			s.VirtualCurrency += currency
			reached = s.Level
		}
	})
	if err != nil || reached == 0 {
		return nil, err
	}
	return &domain.CreateEventInput{
		ID:         followUpID("level-up", e.ID),
		ProjectID:  e.ProjectID,
		UserID:     e.UserID,
		ParentID:   e.ID,
		Type:       events.TypeLevelUp,
		Visibility: domain.VisibilityPrivate,
		Timestamp:  e.Timestamp,
		Data: []domain.DataField{
			domain.IntField(events.FieldNewLevel, reached),
			domain.IntField(events.FieldVirtualCurrency, currency),
		},
	}, nil
}
