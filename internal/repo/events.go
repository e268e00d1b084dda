package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scrumgame/internal/domain"
)

const eventColumns = `e.id, e.project_id, COALESCE(e.user_id,''), COALESCE(e.parent_id,''), COALESCE(e.issue_id,''), e.type, e.visibility, e.ts, COALESCE(e.message,''), e.data_json,
(SELECT COALESCE(json_group_array(v.user_id), '[]') FROM event_visible_to v WHERE v.event_id = e.id)`

// visibleClause filters rows the way domain.Event.VisibleFor does; it binds the caller twice.
const visibleClause = `e.visibility <> 'INTERNAL' AND (e.visibility = 'PUBLIC' OR e.user_id = ? OR EXISTS (SELECT 1 FROM event_visible_to v WHERE v.event_id = e.id AND v.user_id = ?))`

func scanEvent(row rowScanner) (domain.Event, error) {
	var e domain.Event
	var vis, ts, data, visibleTo string
	err := row.Scan(&e.ID, &e.ProjectID, &e.UserID, &e.ParentID, &e.IssueID, &e.Type, &vis, &ts, &e.Message, &data, &visibleTo)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	e.Visibility = domain.Visibility(vis)
	if e.Timestamp, err = parseTS(ts); err != nil {
		return e, fmt.Errorf("parse event ts: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
		return e, fmt.Errorf("decode event data: %w", err)
	}
	if err := json.Unmarshal([]byte(visibleTo), &e.VisibleTo); err != nil {
		return e, fmt.Errorf("decode visible_to: %w", err)
	}
	if len(e.VisibleTo) == 0 {
		e.VisibleTo = nil
	}
	return e, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// InsertEvent appends an event. Events are never updated or deleted.
func (r Repo) InsertEvent(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	data := e.Data
	if data == nil {
		data = []domain.DataField{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	q := r.q(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO events(id,project_id,user_id,parent_id,issue_id,type,visibility,ts,message,data_json) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.ProjectID, nullable(e.UserID), nullable(e.ParentID), nullable(e.IssueID), e.Type, string(e.Visibility), formatTS(e.Timestamp), nullable(e.Message), string(raw)); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	for _, uid := range e.VisibleTo {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO event_visible_to(event_id,user_id) VALUES (?,?)`, e.ID, uid); err != nil {
			return fmt.Errorf("insert event visibility: %w", err)
		}
	}
	return nil
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return r.GetEventTx(ctx, nil, id)
}

func (r Repo) GetEventTx(ctx context.Context, tx *sql.Tx, id string) (domain.Event, error) {
	e, err := scanEvent(r.q(tx).QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return e, domain.NotFound("event", id)
	}
	return e, err
}

// EventsForUser pages the project feed newest first, filtered by visibility for userID.
func (r Repo) EventsForUser(ctx context.Context, projectID, userID string, page domain.Page) ([]domain.Event, error) {
	page = page.Normalize()
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events e
WHERE e.project_id = ? AND `+visibleClause+`
ORDER BY e.ts DESC, e.seq DESC LIMIT ? OFFSET ?`, projectID, userID, userID, page.Size, page.Offset())
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventsForIssue lists every event of the project attached to an issue, oldest first.
func (r Repo) EventsForIssue(ctx context.Context, projectID, issueID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.project_id = ? AND e.issue_id = ? ORDER BY e.ts, e.seq`, projectID, issueID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// EventChildren lists direct children of parentID visible to userID, oldest first.
func (r Repo) EventChildren(ctx context.Context, parentID, userID string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events e
WHERE e.parent_id = ? AND `+visibleClause+` ORDER BY e.ts, e.seq`, parentID, userID, userID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// ChildrenOfType lists children of parentID with the given type regardless of visibility.
func (r Repo) ChildrenOfType(ctx context.Context, parentID, eventType string) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM events e
WHERE e.parent_id = ? AND e.type = ? ORDER BY e.ts, e.seq`, parentID, eventType)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// LastEventForIssue returns the newest event of an issue; it is the sync watermark.
func (r Repo) LastEventForIssue(ctx context.Context, projectID, issueID string) (domain.Event, error) {
	e, err := scanEvent(r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events e WHERE e.project_id = ? AND e.issue_id = ? ORDER BY e.ts DESC, e.seq DESC LIMIT 1`, projectID, issueID))
	if errors.Is(err, ErrNotFound) {
		return e, domain.NotFound("event for issue", issueID)
	}
	return e, err
}

// LatestEvents is the unfiltered operator view used by the CLI.
func (r Repo) LatestEvents(ctx context.Context, projectID, eventType string, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.project_id = ?`
	args := []any{projectID}
	if eventType != "" {
		query += ` AND e.type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY e.ts DESC, e.seq DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// CountEvents counts events of a project created at or after since.
func (r Repo) CountEvents(ctx context.Context, projectID, eventType string, since time.Time) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE project_id = ? AND type = ? AND ts >= ?`,
		projectID, eventType, formatTS(since)).Scan(&n)
	return n, err
}
