package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/region"
)

// ErrNotFound is returned for missing cameras and algorithms.
var ErrNotFound = errors.New("not found")

// Camera is a stream endpoint.
type Camera struct {
	ID       int64
	Name     string
	Protocol string
	Username string
	Password string
	IP       string
	Port     int
	Path     string
}

// Algorithm binds a model to a decision rule.
type Algorithm struct {
	ID        int64
	Name      string
	ModelName string
	Rule      string
	// Kind overrides the detector variant the model registry infers. Empty
	// keeps the registry's choice.
	Kind detector.Kind
}

// Assignment runs an algorithm on a camera under a policy.
type Assignment struct {
	CameraID    int64
	AlgorithmID int64
	AlarmName   string
	Policy      policy.Policy
}

// Key returns the session key of the assignment.
func (a Assignment) Key() policy.Key {
	return policy.Key{CameraID: a.CameraID, AlgorithmID: a.AlgorithmID}
}

// UpsertCamera inserts c, or replaces the camera with the same id. A zero id
// allocates a new one.
func (s *Store) UpsertCamera(ctx context.Context, c Camera) (int64, error) {
	if c.Protocol == "" {
		c.Protocol = "rtsp"
	}
	res, err := s.exec(ctx, `
		INSERT INTO cameras (id, name, protocol, username, password, ip, port, path)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, protocol = excluded.protocol, username = excluded.username,
			password = excluded.password, ip = excluded.ip, port = excluded.port, path = excluded.path`,
		c.ID, c.Name, c.Protocol, c.Username, c.Password, c.IP, c.Port, c.Path)
	if err != nil {
		return 0, errors.Wrapf(err, "upsert camera %d", c.ID)
	}
	if c.ID != 0 {
		return c.ID, nil
	}
	return res.LastInsertId()
}

// Camera returns the camera with the given id.
func (s *Store) Camera(ctx context.Context, id int64) (Camera, error) {
	c := Camera{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT name, protocol, username, password, ip, port, path FROM cameras WHERE id = ?`, id).
		Scan(&c.Name, &c.Protocol, &c.Username, &c.Password, &c.IP, &c.Port, &c.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return Camera{}, errors.Wrapf(ErrNotFound, "camera %d", id)
	}
	if err != nil {
		return Camera{}, errors.Wrapf(err, "read camera %d", id)
	}
	return c, nil
}

// UpsertAlgorithm inserts a, or replaces the algorithm with the same id. A
// zero id allocates a new one.
func (s *Store) UpsertAlgorithm(ctx context.Context, a Algorithm) (int64, error) {
	res, err := s.exec(ctx, `
		INSERT INTO algorithms (id, name, model_name, rule, kind)
		VALUES (NULLIF(?, 0), ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, model_name = excluded.model_name,
			rule = excluded.rule, kind = excluded.kind`,
		a.ID, a.Name, a.ModelName, a.Rule, string(a.Kind))
	if err != nil {
		return 0, errors.Wrapf(err, "upsert algorithm %d", a.ID)
	}
	if a.ID != 0 {
		return a.ID, nil
	}
	return res.LastInsertId()
}

// Algorithm returns the algorithm with the given id.
func (s *Store) Algorithm(ctx context.Context, id int64) (Algorithm, error) {
	a := Algorithm{ID: id}
	var kind string
	err := s.db.QueryRowContext(ctx, `
		SELECT name, model_name, rule, kind FROM algorithms WHERE id = ?`, id).
		Scan(&a.Name, &a.ModelName, &a.Rule, &kind)
	if errors.Is(err, sql.ErrNoRows) {
		return Algorithm{}, errors.Wrapf(ErrNotFound, "algorithm %d", id)
	}
	if err != nil {
		return Algorithm{}, errors.Wrapf(err, "read algorithm %d", id)
	}
	if kind != "" {
		if a.Kind, err = detector.ParseKind(kind); err != nil {
			return Algorithm{}, errors.Wrapf(err, "algorithm %d", id)
		}
	}
	return a, nil
}

// UpsertAssignment creates or replaces the assignment of its key.
func (s *Store) UpsertAssignment(ctx context.Context, a Assignment) error {
	p := a.Policy
	_, err := s.exec(ctx, `
		INSERT INTO assignments (camera_id, algorithm_id, enabled, alarm_name, frame_interval_ms,
			alarm_debounce_ms, confidence, regions, intersection_ratio, schedule)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (camera_id, algorithm_id) DO UPDATE SET
			enabled = excluded.enabled, alarm_name = excluded.alarm_name,
			frame_interval_ms = excluded.frame_interval_ms, alarm_debounce_ms = excluded.alarm_debounce_ms,
			confidence = excluded.confidence, regions = excluded.regions,
			intersection_ratio = excluded.intersection_ratio, schedule = excluded.schedule`,
		a.CameraID, a.AlgorithmID, p.Enabled, a.AlarmName, p.FrameInterval.Milliseconds(),
		p.AlarmDebounce.Milliseconds(), p.Confidence, p.Regions.String(), p.IntersectionRatio,
		scheduleText(p.Schedule))
	if err != nil {
		return errors.Wrapf(err, "upsert assignment %s", a.Key())
	}
	return nil
}

func scheduleText(s policy.Schedule) string {
	if s.Always() {
		return ""
	}
	return s.String()
}

// SetEnabled flips the enabled flag of an assignment.
func (s *Store) SetEnabled(ctx context.Context, key policy.Key, enabled bool) error {
	res, err := s.exec(ctx, `UPDATE assignments SET enabled = ? WHERE camera_id = ? AND algorithm_id = ?`,
		enabled, key.CameraID, key.AlgorithmID)
	if err != nil {
		return errors.Wrapf(err, "update assignment %s", key)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "update assignment %s", key)
	}
	if n == 0 {
		return errors.Wrapf(policy.ErrNotFound, "%s", key)
	}
	return nil
}

const assignmentColumns = `camera_id, algorithm_id, enabled, alarm_name, frame_interval_ms,
	alarm_debounce_ms, confidence, regions, intersection_ratio, schedule`

type scanner interface {
	Scan(dest ...any) error
}

func scanAssignment(row scanner) (Assignment, error) {
	var (
		a                      Assignment
		intervalMS, debounceMS int64
		regions, schedule      string
	)
	err := row.Scan(&a.CameraID, &a.AlgorithmID, &a.Policy.Enabled, &a.AlarmName, &intervalMS,
		&debounceMS, &a.Policy.Confidence, &regions, &a.Policy.IntersectionRatio, &schedule)
	if err != nil {
		return Assignment{}, err
	}
	a.Policy.FrameInterval = time.Duration(intervalMS) * time.Millisecond
	a.Policy.AlarmDebounce = time.Duration(debounceMS) * time.Millisecond
	if a.Policy.Regions, err = region.Parse(regions); err != nil {
		return Assignment{}, errors.Wrapf(err, "assignment %s", a.Key())
	}
	if a.Policy.Schedule, err = policy.ParseSchedule(schedule); err != nil {
		return Assignment{}, errors.Wrapf(err, "assignment %s", a.Key())
	}
	return a, nil
}

// Assignment returns the assignment for key, or policy.ErrNotFound.
func (s *Store) Assignment(ctx context.Context, key policy.Key) (Assignment, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
		WHERE camera_id = ? AND algorithm_id = ?`, key.CameraID, key.AlgorithmID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Assignment{}, errors.Wrapf(policy.ErrNotFound, "%s", key)
	}
	if err != nil {
		return Assignment{}, errors.Wrapf(err, "read assignment %s", key)
	}
	return a, nil
}

// Policy implements policy.Source.
func (s *Store) Policy(ctx context.Context, key policy.Key) (policy.Policy, error) {
	a, err := s.Assignment(ctx, key)
	if err != nil {
		return policy.Policy{}, err
	}
	return a.Policy, nil
}

// EnabledAssignments returns every enabled assignment ordered by key.
func (s *Store) EnabledAssignments(ctx context.Context) ([]Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+assignmentColumns+` FROM assignments
		WHERE enabled = 1 ORDER BY camera_id, algorithm_id`)
	if err != nil {
		return nil, errors.Wrap(err, "list assignments")
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan assignment")
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "list assignments")
}

// EnabledKeys returns the keys of enabled assignments.
func (s *Store) EnabledKeys(ctx context.Context) ([]policy.Key, error) {
	as, err := s.EnabledAssignments(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]policy.Key, len(as))
	for i, a := range as {
		keys[i] = a.Key()
	}
	return keys, nil
}
