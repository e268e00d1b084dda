package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"scrumgame/internal/domain"
)

const meetingColumns = `id, project_id, type, active, attendees_json, payload_json, created_at, updated_at`

func scanMeeting(row rowScanner) (domain.Meeting, error) {
	var m domain.Meeting
	var typ, attendees, payload, created, updated string
	var active int
	err := row.Scan(&m.ID, &m.ProjectID, &typ, &active, &attendees, &payload, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	m.Type = domain.MeetingType(typ)
	m.Active = active == 1
	if err := json.Unmarshal([]byte(attendees), &m.Attendees); err != nil {
		return m, fmt.Errorf("decode attendees: %w", err)
	}
	if m.CreatedAt, err = parseTS(created); err != nil {
		return m, err
	}
	if m.UpdatedAt, err = parseTS(updated); err != nil {
		return m, err
	}
	if err := decodeMeetingPayload(&m, []byte(payload)); err != nil {
		return m, err
	}
	return m, nil
}

// encodeMeetingPayload serializes the variant selected by m.Type.
func encodeMeetingPayload(m domain.Meeting) (string, error) {
	var v any
	switch m.Type {
	case domain.MeetingStandup:
		v = m.Standup
	case domain.MeetingRetrospective:
		v = m.Retrospective
	case domain.MeetingPlanning:
		v = m.Planning
	default:
		return "", domain.Invalid("meeting type", "unknown type %q", m.Type)
	}
	if v == nil {
		return "", fmt.Errorf("meeting %s has no %s payload", m.ID, m.Type)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode meeting payload: %w", err)
	}
	return string(data), nil
}

func decodeMeetingPayload(m *domain.Meeting, data []byte) error {
	var err error
	switch m.Type {
	case domain.MeetingStandup:
		m.Standup = &domain.StandupState{}
		err = json.Unmarshal(data, m.Standup)
	case domain.MeetingRetrospective:
		m.Retrospective = &domain.RetrospectiveState{}
		err = json.Unmarshal(data, m.Retrospective)
	case domain.MeetingPlanning:
		m.Planning = &domain.PlanningState{}
		err = json.Unmarshal(data, m.Planning)
	default:
		return fmt.Errorf("unknown meeting type %q", m.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}

func (r Repo) InsertMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	payload, err := encodeMeetingPayload(m)
	if err != nil {
		return err
	}
	attendees, err := json.Marshal(m.Attendees)
	if err != nil {
		return err
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO meetings(id,project_id,type,active,attendees_json,payload_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?)`,
		m.ID, m.ProjectID, string(m.Type), boolInt(m.Active), string(attendees), payload, formatTS(m.CreatedAt), formatTS(m.UpdatedAt))
	return err
}

func (r Repo) UpdateMeeting(ctx context.Context, tx *sql.Tx, m domain.Meeting) error {
	payload, err := encodeMeetingPayload(m)
	if err != nil {
		return err
	}
	attendees, err := json.Marshal(m.Attendees)
	if err != nil {
		return err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE meetings SET active=?, attendees_json=?, payload_json=?, updated_at=? WHERE id=?`,
		boolInt(m.Active), string(attendees), payload, formatTS(m.UpdatedAt), m.ID)
	if err != nil {
		return err
	}
	return expectAffected(res, domain.NotFound("meeting", m.ID))
}

func (r Repo) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	m, err := scanMeeting(r.DB.QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id=?`, id))
	if errors.Is(err, ErrNotFound) {
		return m, domain.NotFound("meeting", id)
	}
	return m, err
}

// ActiveMeeting returns the single active meeting of a kind in a project.
func (r Repo) ActiveMeeting(ctx context.Context, tx *sql.Tx, projectID string, t domain.MeetingType) (domain.Meeting, error) {
	m, err := scanMeeting(r.q(tx).QueryRowContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE project_id=? AND type=? AND active=1`, projectID, string(t)))
	if errors.Is(err, ErrNotFound) {
		return m, domain.NotFound("active "+string(t)+" meeting in project", projectID)
	}
	return m, err
}

func (r Repo) ListMeetings(ctx context.Context, projectID string, t domain.MeetingType, limit int) ([]domain.Meeting, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE project_id=? AND type=? ORDER BY created_at DESC LIMIT ?`, projectID, string(t), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
