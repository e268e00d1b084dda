package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"scrumgame/internal/domain"
)

const sprintColumns = `project_id, number, COALESCE(name,''), COALESCE(goal,''), start_date, end_date, story_points_planned`

func scanSprint(row rowScanner) (domain.Sprint, error) {
	var s domain.Sprint
	var start, end string
	var planned sql.NullInt64
	err := row.Scan(&s.ProjectID, &s.Number, &s.Name, &s.Goal, &start, &end, &planned)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if s.StartDate, err = parseTS(start); err != nil {
		return s, fmt.Errorf("parse sprint start: %w", err)
	}
	if s.EndDate, err = parseTS(end); err != nil {
		return s, fmt.Errorf("parse sprint end: %w", err)
	}
	if planned.Valid {
		v := int(planned.Int64)
		s.StoryPointsPlanned = &v
	}
	return s, nil
}

func (r Repo) InsertSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO sprints(project_id,number,name,goal,start_date,end_date,story_points_planned) VALUES (?,?,?,?,?,?,?)`,
		s.ProjectID, s.Number, nullable(s.Name), nullable(s.Goal), formatTS(s.StartDate), formatTS(s.EndDate), nullableInt(s.StoryPointsPlanned))
	return err
}

func (r Repo) UpdateSprint(ctx context.Context, tx *sql.Tx, s domain.Sprint) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE sprints SET name=?, goal=?, start_date=?, end_date=?, story_points_planned=? WHERE project_id=? AND number=?`,
		nullable(s.Name), nullable(s.Goal), formatTS(s.StartDate), formatTS(s.EndDate), nullableInt(s.StoryPointsPlanned), s.ProjectID, s.Number)
	if err != nil {
		return err
	}
	return expectAffected(res, domain.NotFound("sprint", s.ProjectID+"#"+strconv.Itoa(s.Number)))
}

func (r Repo) GetSprint(ctx context.Context, projectID string, number int) (domain.Sprint, error) {
	s, err := scanSprint(r.DB.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id=? AND number=?`, projectID, number))
	if errors.Is(err, ErrNotFound) {
		return s, domain.NotFound("sprint", projectID+"#"+strconv.Itoa(number))
	}
	return s, err
}

// ListSprints returns the sprints of a project, highest number first.
func (r Repo) ListSprints(ctx context.Context, projectID string) ([]domain.Sprint, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+sprintColumns+` FROM sprints WHERE project_id=? ORDER BY number DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Sprint
	for rows.Next() {
		s, err := scanSprint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// CurrentSprint is the highest-numbered sprint whose range contains now.
func (r Repo) CurrentSprint(ctx context.Context, projectID string, now time.Time) (domain.Sprint, error) {
	ts := formatTS(now)
	s, err := scanSprint(r.DB.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints
WHERE project_id=? AND start_date <= ? AND end_date > ? ORDER BY number DESC LIMIT 1`, projectID, ts, ts))
	if errors.Is(err, ErrNotFound) {
		return s, domain.NotFound("current sprint of project", projectID)
	}
	return s, err
}

// PreviousSprint is the highest-numbered sprint that has ended by now.
func (r Repo) PreviousSprint(ctx context.Context, projectID string, now time.Time) (domain.Sprint, error) {
	s, err := scanSprint(r.DB.QueryRowContext(ctx, `SELECT `+sprintColumns+` FROM sprints
WHERE project_id=? AND end_date <= ? ORDER BY number DESC LIMIT 1`, projectID, formatTS(now)))
	if errors.Is(err, ErrNotFound) {
		return s, domain.NotFound("previous sprint of project", projectID)
	}
	return s, err
}

func (r Repo) MaxSprintNumber(ctx context.Context, projectID string) (int, error) {
	var n sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(number) FROM sprints WHERE project_id=?`, projectID).Scan(&n); err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}
