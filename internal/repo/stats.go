package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scrumgame/internal/domain"
)

const statsColumns = `project_id, user_id, reactions_given, issues_completed, issues_created, pull_requests_created, pull_requests_closed, pull_requests_reviewed, comments_written, gold_medals, silver_medals, bronze_medals, virtual_currency, xp, level`

func scanStats(row rowScanner) (domain.UserStats, error) {
	var s domain.UserStats
	err := row.Scan(&s.ProjectID, &s.UserID, &s.ReactionsGiven, &s.IssuesCompleted, &s.IssuesCreated,
		&s.PullRequestsCreated, &s.PullRequestsClosed, &s.PullRequestsReviewed, &s.CommentsWritten,
		&s.GoldMedals, &s.SilverMedals, &s.BronzeMedals, &s.VirtualCurrency, &s.XP, &s.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	return s, err
}

// GetUserStats returns the counters of a user; a user without a row gets zeroed stats.
func (r Repo) GetUserStats(ctx context.Context, projectID, userID string) (domain.UserStats, error) {
	s, err := scanStats(r.DB.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE project_id=? AND user_id=?`, projectID, userID))
	if errors.Is(err, ErrNotFound) {
		return domain.UserStats{ProjectID: projectID, UserID: userID, Level: 1}, nil
	}
	return s, err
}

// ListUserStats returns all counters of a project ordered by currency then xp.
func (r Repo) ListUserStats(ctx context.Context, projectID string) ([]domain.UserStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE project_id=? ORDER BY virtual_currency DESC, xp DESC, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserStats
	for rows.Next() {
		s, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateUserStats runs fn as one read-modify-write in its own transaction.
func (r Repo) UpdateUserStats(ctx context.Context, projectID, userID string, fn func(*domain.UserStats)) (domain.UserStats, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserStats{}, err
	}
	defer tx.Rollback()
	s, err := r.UpdateUserStatsTx(ctx, tx, projectID, userID, fn)
	if err != nil {
		return domain.UserStats{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserStats{}, err
	}
	return s, nil
}

// UpdateUserStatsTx is UpdateUserStats inside a caller-owned transaction.
func (r Repo) UpdateUserStatsTx(ctx context.Context, tx *sql.Tx, projectID, userID string, fn func(*domain.UserStats)) (domain.UserStats, error) {
	if projectID == "" || userID == "" {
		return domain.UserStats{}, errors.New("project and user required for stats")
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO user_stats(project_id,user_id) VALUES (?,?)`, projectID, userID); err != nil {
		return domain.UserStats{}, fmt.Errorf("ensure user stats: %w", err)
	}
	s, err := scanStats(tx.QueryRowContext(ctx, `SELECT `+statsColumns+` FROM user_stats WHERE project_id=? AND user_id=?`, projectID, userID))
	if err != nil {
		return domain.UserStats{}, err
	}
	fn(&s)
	s.ProjectID, s.UserID = projectID, userID
	_, err = tx.ExecContext(ctx, `UPDATE user_stats SET reactions_given=?, issues_completed=?, issues_created=?, pull_requests_created=?, pull_requests_closed=?, pull_requests_reviewed=?, comments_written=?, gold_medals=?, silver_medals=?, bronze_medals=?, virtual_currency=?, xp=?, level=? WHERE project_id=? AND user_id=?`,
		s.ReactionsGiven, s.IssuesCompleted, s.IssuesCreated, s.PullRequestsCreated, s.PullRequestsClosed, s.PullRequestsReviewed, s.CommentsWritten,
		s.GoldMedals, s.SilverMedals, s.BronzeMedals, s.VirtualCurrency, s.XP, s.Level, projectID, userID)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("update user stats: %w", err)
	}
	return s, nil
}
