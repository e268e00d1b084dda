package repo

import (
	"context"
	"database/sql"
	"errors"

	"scrumgame/internal/domain"
)

// AddMember inserts a membership or updates the role of an existing one.
func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, m domain.Membership) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO memberships(project_id,user_id,role,current_badge,joined_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET role=excluded.role`,
		m.ProjectID, m.UserID, m.Role, string(m.CurrentBadge), m.JoinedAt)
	return err
}

func (r Repo) RemoveMember(ctx context.Context, tx *sql.Tx, projectID, userID string) error {
	res, err := r.q(tx).ExecContext(ctx, `DELETE FROM memberships WHERE project_id=? AND user_id=?`, projectID, userID)
	if err != nil {
		return err
	}
	return expectAffected(res, domain.NotFound("member", userID))
}

func (r Repo) GetMembership(ctx context.Context, projectID, userID string) (domain.Membership, error) {
	var m domain.Membership
	var badge string
	err := r.DB.QueryRowContext(ctx, `SELECT project_id,user_id,role,current_badge,joined_at FROM memberships WHERE project_id=? AND user_id=?`, projectID, userID).
		Scan(&m.ProjectID, &m.UserID, &m.Role, &badge, &m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return m, domain.NotFound("member", userID)
	}
	m.CurrentBadge = domain.Badge(badge)
	return m, err
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Membership, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT project_id,user_id,role,current_badge,joined_at FROM memberships WHERE project_id=? ORDER BY joined_at, user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Membership
	for rows.Next() {
		var m domain.Membership
		var badge string
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.Role, &badge, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.CurrentBadge = domain.Badge(badge)
		res = append(res, m)
	}
	return res, rows.Err()
}

// ClearBadges removes every medal badge in a project.
func (r Repo) ClearBadges(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := r.q(tx).ExecContext(ctx, `UPDATE memberships SET current_badge='' WHERE project_id=?`, projectID)
	return err
}

// SetBadge sets a user's badge, creating a plain membership if the user has none.
func (r Repo) SetBadge(ctx context.Context, tx *sql.Tx, projectID, userID string, badge domain.Badge, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO memberships(project_id,user_id,role,current_badge,joined_at) VALUES (?,?,?,?,?)
ON CONFLICT(project_id,user_id) DO UPDATE SET current_badge=excluded.current_badge`,
		projectID, userID, "developer", string(badge), now)
	return err
}
