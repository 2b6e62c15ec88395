// Package policy describes the live, operator-owned settings of one
// (camera, algorithm) analysis session.
package policy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/region"
)

// ErrNotFound is returned by a Source when the session's policy row is missing.
var ErrNotFound = errors.New("policy not found")

// Key identifies a session.
type Key struct {
	CameraID    int64
	AlgorithmID int64
}

func (k Key) String() string {
	return fmt.Sprintf("camera=%d/algorithm=%d", k.CameraID, k.AlgorithmID)
}

// Schedule is a daily time-of-day window [start, end). A window whose start
// equals its end is always open; a start after the end wraps past midnight.
type Schedule struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// Always reports whether the window never closes.
func (s Schedule) Always() bool {
	return s.start() == s.end()
}

// Contains reports whether t falls inside the window, evaluated in t's location.
func (s Schedule) Contains(t time.Time) bool {
	if s.Always() {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	start, end := s.start(), s.end()
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// Validate checks the clock fields.
func (s Schedule) Validate() error {
	if s.StartHour < 0 || s.StartHour > 23 || s.EndHour < 0 || s.EndHour > 24 ||
		s.StartMinute < 0 || s.StartMinute > 59 || s.EndMinute < 0 || s.EndMinute > 59 ||
		(s.EndHour == 24 && s.EndMinute != 0) {
		return errors.Errorf("invalid schedule %s", s)
	}
	return nil
}

func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", s.StartHour, s.StartMinute, s.EndHour, s.EndMinute)
}

// ParseSchedule decodes a window written as "HH:MM-HH:MM". An empty string is
// the always-open window.
func ParseSchedule(v string) (Schedule, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return Schedule{}, nil
	}
	start, end, ok := strings.Cut(v, "-")
	if !ok {
		return Schedule{}, errors.Errorf("schedule %q: want HH:MM-HH:MM", v)
	}
	var s Schedule
	var err error
	if s.StartHour, s.StartMinute, err = parseClock(start); err != nil {
		return Schedule{}, errors.Wrapf(err, "schedule %q", v)
	}
	if s.EndHour, s.EndMinute, err = parseClock(end); err != nil {
		return Schedule{}, errors.Wrapf(err, "schedule %q", v)
	}
	return s, s.Validate()
}

func parseClock(v string) (int, int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
	if !ok {
		return 0, 0, errors.Errorf("clock %q: want HH:MM", v)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "hour %q", hh)
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, 0, errors.Wrapf(err, "minute %q", mm)
	}
	return h, m, nil
}

func (s Schedule) start() int { return s.StartHour*60 + s.StartMinute }
func (s Schedule) end() int   { return (s.EndHour*60 + s.EndMinute) % (24 * 60) }

// Policy is re-read before every frame attempt.
type Policy struct {
	Enabled           bool
	FrameInterval     time.Duration
	AlarmDebounce     time.Duration
	Confidence        float32
	Regions           region.Set
	IntersectionRatio float64
	Schedule          Schedule
}

// Validate rejects policies the loop cannot run with.
func (p Policy) Validate() error {
	if p.FrameInterval <= 0 {
		return errors.Errorf("frame interval %v must be positive", p.FrameInterval)
	}
	if p.AlarmDebounce < 0 {
		return errors.Errorf("alarm debounce %v must not be negative", p.AlarmDebounce)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return errors.Errorf("confidence %v outside [0, 1]", p.Confidence)
	}
	if p.IntersectionRatio < 0 || p.IntersectionRatio > 1 {
		return errors.Errorf("intersection ratio %v outside [0, 1]", p.IntersectionRatio)
	}
	return p.Schedule.Validate()
}

// Source reads the current policy of a session. It is polled every iteration.
type Source interface {
	Policy(ctx context.Context, key Key) (Policy, error)
}
