package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/alarm"
)

// Record implements alarm.Recorder with a single insert.
func (s *Store) Record(ctx context.Context, ev alarm.Event) error {
	labels, err := json.Marshal(ev.Labels)
	if err != nil {
		return errors.Wrap(err, "encode labels")
	}
	_, err = s.exec(ctx, `
		INSERT INTO alarms (id, camera_id, algorithm_id, algorithm_name, alarm_name, labels,
			input_path, output_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(), ev.CameraID, ev.AlgorithmID, ev.AlgorithmName, ev.AlarmName, string(labels),
		ev.InputPath, ev.OutputPath, ev.Timestamp.UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "insert alarm %s", ev.ID)
	}
	return nil
}

// Alarms returns the most recent alarms, newest first. A non-positive limit
// returns all of them.
func (s *Store) Alarms(ctx context.Context, limit int) ([]alarm.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, camera_id, algorithm_id, algorithm_name, alarm_name, labels, input_path, output_path, created_at
		FROM alarms ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list alarms")
	}
	defer rows.Close()

	var out []alarm.Event
	for rows.Next() {
		var (
			ev      alarm.Event
			id      string
			labels  string
			created int64
		)
		if err := rows.Scan(&id, &ev.CameraID, &ev.AlgorithmID, &ev.AlgorithmName, &ev.AlarmName, &labels,
			&ev.InputPath, &ev.OutputPath, &created); err != nil {
			return nil, errors.Wrap(err, "scan alarm")
		}
		if ev.ID, err = uuid.Parse(id); err != nil {
			return nil, errors.Wrapf(err, "alarm id %q", id)
		}
		if err := json.Unmarshal([]byte(labels), &ev.Labels); err != nil {
			return nil, errors.Wrapf(err, "alarm %s labels", id)
		}
		ev.Timestamp = time.UnixMilli(created)
		out = append(out, ev)
	}
	return out, errors.Wrap(rows.Err(), "list alarms")
}

// DeleteAlarmsBefore removes alarms created before cutoff.
func (s *Store) DeleteAlarmsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM alarms WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "delete alarms")
	}
	return res.RowsAffected()
}
