// Package session runs the per-(camera, algorithm) polling loop.
package session

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/controller"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/profiler"
	"github.com/nvr-ai/go-alarm/timeutil"
)

// DefaultMaxCaptureFailures is the number of consecutive failed captures
// after which a session escalates its logging.
const DefaultMaxCaptureFailures = 3

var errNoFrame = errors.New("no frame")

// State is the loop state of a session.
type State string

const (
	// StateWaiting means the session is outside its schedule window.
	StateWaiting State = "waiting"
	// StateSampling means the session is acquiring and analysing frames.
	StateSampling State = "sampling"
	// StateDisabled means the policy turned the session off. It is terminal.
	StateDisabled State = "disabled"
	// StateStopped means the session ended on cancellation or a fatal error.
	StateStopped State = "stopped"
)

// FrameSource acquires one frame from a stream. A nil frame with a nil error
// means no frame was available this attempt.
type FrameSource interface {
	Capture(ctx context.Context, url string) (*detector.Frame, error)
}

// Config identifies a session and its stream.
type Config struct {
	Key       policy.Key
	StreamURL string
	// MaxCaptureFailures escalates logging every that many consecutive
	// capture failures. Zero means DefaultMaxCaptureFailures.
	MaxCaptureFailures int
}

// Deps are the collaborators of a session. The session owns Detector and
// closes it when Run returns.
type Deps struct {
	Policies   policy.Source
	Frames     FrameSource
	Detector   detector.Detector
	Controller *controller.Controller
	Sink       *alarm.Sink
	Clock      timeutil.Clock
	Profiler   *profiler.Profiler
}

// Session is the polling loop of one (camera, algorithm) pair.
type Session struct {
	cfg  Config
	deps Deps

	mu       sync.Mutex
	state    State
	failures int
}

// New creates a session. Clock defaults to the real clock.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Policies == nil || deps.Frames == nil || deps.Detector == nil || deps.Controller == nil || deps.Sink == nil {
		return nil, errors.New("session requires policies, frames, detector, controller and sink")
	}
	if cfg.MaxCaptureFailures <= 0 {
		cfg.MaxCaptureFailures = DefaultMaxCaptureFailures
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	return &Session{cfg: cfg, deps: deps, state: StateWaiting}, nil
}

// Key returns the session key.
func (s *Session) Key() policy.Key {
	return s.cfg.Key
}

// State returns the current loop state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		klog.V(2).InfoS("Session state changed", "camera", s.cfg.Key.CameraID, "algorithm", s.cfg.Key.AlgorithmID, "state", st)
	}
}

// Run loops until the policy disables the session, the policy cannot be
// read, or ctx is cancelled.
//
// Each iteration re-reads the policy. Outside the schedule window the loop
// only sleeps. Inside it one frame is captured, analysed and any alarm is
// handed to the sink. Capture failures and detector failures, including
// panics, skip the frame and never end the loop.
//
// Returns:
//   - error: nil when disabled or cancelled; the wrapped policy error when
//     the policy is missing, unreadable or invalid.
func (s *Session) Run(ctx context.Context) error {
	key := s.cfg.Key
	s.deps.Profiler.SessionStarted()
	defer s.deps.Profiler.SessionStopped()
	defer s.close()

	klog.InfoS("Session started", "camera", key.CameraID, "algorithm", key.AlgorithmID, "state", s.State())
	for {
		if ctx.Err() != nil {
			return s.stopped("cancelled")
		}

		pol, err := s.deps.Policies.Policy(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				return s.stopped("cancelled")
			}
			s.setState(StateStopped)
			err = errors.Wrapf(err, "read policy %s", key)
			klog.ErrorS(err, "Session terminated", "camera", key.CameraID, "algorithm", key.AlgorithmID, "state", StateStopped)
			return err
		}
		if !pol.Enabled {
			s.setState(StateDisabled)
			klog.InfoS("Session disabled", "camera", key.CameraID, "algorithm", key.AlgorithmID, "state", StateDisabled)
			return nil
		}
		if err := pol.Validate(); err != nil {
			s.setState(StateStopped)
			err = errors.Wrapf(err, "invalid policy %s", key)
			klog.ErrorS(err, "Session terminated", "camera", key.CameraID, "algorithm", key.AlgorithmID, "state", StateStopped)
			return err
		}
		if f := s.deps.Sink.Forwarder(); f != nil {
			f.SetDebounce(pol.AlarmDebounce)
		}

		if pol.Schedule.Contains(s.deps.Clock.Now()) {
			s.setState(StateSampling)
			s.iterate(ctx, pol)
		} else {
			s.setState(StateWaiting)
			klog.V(2).InfoS("Outside schedule window", "camera", key.CameraID, "algorithm", key.AlgorithmID,
				"state", StateWaiting, "schedule", pol.Schedule.String())
		}

		if n := s.deps.Controller.Prune(s.deps.Clock.Now()); n > 0 {
			klog.V(4).InfoS("Pruned tracks", "camera", key.CameraID, "algorithm", key.AlgorithmID, "count", n)
		}
		if err := timeutil.Sleep(ctx, s.deps.Clock, pol.FrameInterval); err != nil {
			return s.stopped("cancelled")
		}
	}
}

func (s *Session) stopped(reason string) error {
	s.setState(StateStopped)
	klog.InfoS("Session stopped", "camera", s.cfg.Key.CameraID, "algorithm", s.cfg.Key.AlgorithmID,
		"state", StateStopped, "reason", reason)
	return nil
}

// iterate captures and analyses one frame. Panics raised by the detector or
// the rules are contained here.
func (s *Session) iterate(ctx context.Context, pol policy.Policy) {
	key := s.cfg.Key
	defer func() {
		if r := recover(); r != nil {
			s.deps.Profiler.DetectorFailed()
			klog.ErrorS(errors.Errorf("panic: %v", r), "Analysis panicked, skipping frame",
				"camera", key.CameraID, "algorithm", key.AlgorithmID, "stack", string(debug.Stack()))
		}
	}()

	done := s.deps.Profiler.StartOperation("capture")
	frame, err := s.deps.Frames.Capture(ctx, s.cfg.StreamURL)
	done()
	if err == nil && frame == nil {
		err = errNoFrame
	}
	if err != nil {
		s.captureFailed(err)
		return
	}
	s.mu.Lock()
	s.failures = 0
	s.mu.Unlock()
	s.deps.Profiler.FrameProcessed()

	done = s.deps.Profiler.StartOperation("process")
	ev, err := s.deps.Controller.Process(ctx, *frame, pol)
	done()
	if err != nil {
		s.deps.Profiler.DetectorFailed()
		klog.ErrorS(err, "Analysis failed, skipping frame", "camera", key.CameraID, "algorithm", key.AlgorithmID)
		return
	}
	if ev == nil {
		klog.V(4).InfoS("Frame analysed", "camera", key.CameraID, "algorithm", key.AlgorithmID, "frame", frame.ID)
		return
	}

	res, err := s.deps.Sink.Handle(ctx, *ev)
	if err != nil {
		s.deps.Profiler.RecordFailed()
		return
	}
	s.deps.Profiler.AlarmRecorded()
	s.deps.Profiler.Forwarded(string(res))
}

func (s *Session) captureFailed(err error) {
	key := s.cfg.Key
	s.mu.Lock()
	s.failures++
	n := s.failures
	s.mu.Unlock()

	s.deps.Profiler.CaptureFailed()
	if n%s.cfg.MaxCaptureFailures == 0 {
		klog.ErrorS(err, "Camera keeps failing", "camera", key.CameraID, "algorithm", key.AlgorithmID,
			"consecutive", n)
		return
	}
	klog.InfoS("Frame capture failed, skipping", "camera", key.CameraID, "algorithm", key.AlgorithmID,
		"err", err, "consecutive", n)
}

// Failures returns the current count of consecutive capture failures.
func (s *Session) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Session) close() {
	if err := s.deps.Detector.Close(); err != nil {
		klog.ErrorS(err, "Failed to release detector", "camera", s.cfg.Key.CameraID, "algorithm", s.cfg.Key.AlgorithmID)
	}
	s.deps.Sink.Wait()
}
