package engine

import (
	"context"

	"scrumgame/internal/domain"
	"scrumgame/internal/engine/auth"
)

// UserStats returns the counters of userID, or of the caller when empty.
func (e *Engine) UserStats(ctx context.Context, projectID, userID string) (domain.UserStats, error) {
	actor, err := e.Auth.Require(ctx, projectID, auth.ReadProject)
	if err != nil {
		return domain.UserStats{}, err
	}
	if userID == "" {
		userID = actor
	}
	return e.Repo.GetUserStats(ctx, projectID, userID)
}

// Leaderboard lists every user's counters, richest first.
func (e *Engine) Leaderboard(ctx context.Context, projectID string) ([]domain.UserStats, error) {
	if _, err := e.Auth.Require(ctx, projectID, auth.ReadProject); err != nil {
		return nil, err
	}
	return e.Repo.ListUserStats(ctx, projectID)
}
