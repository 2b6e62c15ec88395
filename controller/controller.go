// Package controller turns detector output into alarm decisions.
//
// A Controller owns one detector, one rule and one track store. It is driven
// by a single session loop and is not safe for concurrent use.
package controller

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/region"
	"github.com/nvr-ai/go-alarm/snapshot"
	"github.com/nvr-ai/go-alarm/timeutil"
	"github.com/nvr-ai/go-alarm/tracking"
)

// ErrDetector matches every error caused by a failed inference call.
var ErrDetector = errors.New("detector failed")

// DetectorError carries the cause of a failed inference call.
type DetectorError struct {
	Err error
}

func (e *DetectorError) Error() string { return "detector failed: " + e.Err.Error() }

// Unwrap returns the cause.
func (e *DetectorError) Unwrap() error { return e.Err }

// Is matches ErrDetector.
func (e *DetectorError) Is(target error) bool { return target == ErrDetector }

// Observation is a gated detection together with its track, if it has one.
type Observation struct {
	detector.Detection
	// Track is nil for untracked detections.
	Track *tracking.Record
}

// Decision is the outcome of evaluating a rule on one frame.
type Decision struct {
	Fire        bool
	Labels      []string
	Annotations []snapshot.Annotation
}

// Rule decides whether a frame's observations warrant an alarm.
type Rule interface {
	// Name identifies the rule in logs.
	Name() string
	// Accept reports whether a detection is relevant to the rule.
	Accept(d detector.Detection) bool
	// Evaluate is called once per analysed frame, with or without observations.
	Evaluate(now time.Time, frame detector.Frame, obs []Observation) Decision
}

// wholeFrame is implemented by rules that judge a frame's labels rather than
// box positions. Their detections skip the region gate.
type wholeFrame interface {
	WholeFrame() bool
}

// Snapshotter persists the raw and annotated frames of an alarm.
type Snapshotter interface {
	Save(algorithmID int64, frame detector.Frame, regions region.Set, annotations []snapshot.Annotation) (string, string, error)
}

// Config identifies the session a controller serves.
type Config struct {
	CameraID      int64
	AlgorithmID   int64
	AlgorithmName string
	AlarmName     string
	// TrackMaxAge is how long a track may go unseen before it is pruned.
	// Zero keeps tracks forever.
	TrackMaxAge time.Duration
	Tracking    tracking.Config
}

// Controller runs the detection-to-decision pipeline of one session.
type Controller struct {
	cfg       Config
	detector  detector.Detector
	rule      Rule
	tracks    *tracking.Store
	snapshots Snapshotter
	clock     timeutil.Clock
}

// New creates a controller. The controller does not own det; the caller closes it.
func New(cfg Config, det detector.Detector, rule Rule, snapshots Snapshotter, clock timeutil.Clock) *Controller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Controller{
		cfg:       cfg,
		detector:  det,
		rule:      rule,
		tracks:    tracking.NewStore(cfg.Tracking),
		snapshots: snapshots,
		clock:     clock,
	}
}

// Tracks exposes the controller's track store.
func (c *Controller) Tracks() *tracking.Store {
	return c.tracks
}

// Process runs one frame through the pipeline.
//
// Arguments:
//   - ctx: Bounds the inference call.
//   - frame: The captured frame.
//   - pol: The policy read for this iteration.
//
// Returns:
//   - *alarm.Event: The alarm raised by this frame, nil when none.
//   - error: A *DetectorError when inference fails. The frame is then treated
//     as having no detections and no rule state changes.
func (c *Controller) Process(ctx context.Context, frame detector.Frame, pol policy.Policy) (*alarm.Event, error) {
	now := c.clock.Now()
	if frame.Timestamp.IsZero() {
		frame.Timestamp = now
	}

	dets, err := c.detector.Infer(ctx, frame, pol.Confidence)
	if err != nil {
		return nil, &DetectorError{Err: err}
	}

	obs := c.gate(dets, frame.Timestamp, pol)
	dec := c.rule.Evaluate(now, frame, obs)
	if !dec.Fire {
		return nil, nil
	}

	in, out, err := c.snapshots.Save(c.cfg.AlgorithmID, frame, pol.Regions, dec.Annotations)
	if err != nil {
		klog.ErrorS(err, "Failed to save alarm snapshot", "camera", c.cfg.CameraID, "algorithm", c.cfg.AlgorithmID)
	}
	ev := alarm.NewEvent(c.cfg.AlgorithmID, c.cfg.CameraID, dec.Labels, in, out, frame.Timestamp)
	ev.AlgorithmName = c.cfg.AlgorithmName
	ev.AlarmName = c.cfg.AlarmName
	return &ev, nil
}

// gate applies the confidence, class and region filters and updates tracks.
func (c *Controller) gate(dets []detector.Detection, ts time.Time, pol policy.Policy) []Observation {
	skipRegion := false
	if wf, ok := c.rule.(wholeFrame); ok {
		skipRegion = wf.WholeFrame()
	}

	obs := make([]Observation, 0, len(dets))
	for _, d := range dets {
		if d.Confidence < pol.Confidence || !c.rule.Accept(d) {
			continue
		}
		if !skipRegion && !region.IsInside(d.Box, pol.Regions, pol.IntersectionRatio) {
			continue
		}
		o := Observation{Detection: d}
		if d.Tracked() {
			o.Track = c.tracks.Update(d.TrackID, d.Box.Center(), ts)
		}
		obs = append(obs, o)
	}
	return obs
}

// Prune drops tracks not seen within the configured maximum age.
func (c *Controller) Prune(now time.Time) int {
	return c.tracks.PruneExpired(now, c.cfg.TrackMaxAge)
}
