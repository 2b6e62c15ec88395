package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/controller"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/region"
	"github.com/nvr-ai/go-alarm/snapshot"
	"github.com/nvr-ai/go-alarm/test"
	"github.com/nvr-ai/go-alarm/timeutil"
)

var (
	t0  = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	key = policy.Key{CameraID: 1, AlgorithmID: 2}
)

type nopSnapshots struct{}

func (nopSnapshots) Save(int64, detector.Frame, region.Set, []snapshot.Annotation) (string, string, error) {
	return "in.jpg", "out.jpg", nil
}

type fixture struct {
	clock     *timeutil.MockClock
	detector  *test.MockDetector
	frames    *test.MockFrameSource
	policies  *test.MockPolicySource
	recorder  *test.MockRecorder
	forwarder *alarm.Forwarder
}

func newFixture(steps ...test.Step) *fixture {
	clock := timeutil.NewMockClock(t0)
	return &fixture{
		clock:    clock,
		detector: test.NewMockDetector(steps...),
		frames:   &test.MockFrameSource{Generator: test.NewMockFrameGenerator(64, 48), Clock: clock},
		policies: &test.MockPolicySource{},
		recorder: &test.MockRecorder{},
	}
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	rule := controller.NewJudgeRule("any.pt", detector.KindBox, models.FallbackAnyLabel)
	ctrl := controller.New(controller.Config{CameraID: key.CameraID, AlgorithmID: key.AlgorithmID, TrackMaxAge: time.Minute},
		f.detector, rule, nopSnapshots{}, f.clock)
	s, err := New(Config{Key: key, StreamURL: "rtsp://cam/1"}, Deps{
		Policies:   f.policies,
		Frames:     f.frames,
		Detector:   f.detector,
		Controller: ctrl,
		Sink:       alarm.NewSink(f.recorder, f.forwarder),
		Clock:      f.clock,
	})
	require.NoError(t, err)
	return s
}

func enabled() policy.Policy {
	return policy.Policy{Enabled: true, FrameInterval: 10 * time.Second, Confidence: 0.5}
}

// times returns n enabled policies followed by a disabled one.
func times(n int, p policy.Policy) []policy.Policy {
	out := make([]policy.Policy, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, p)
	}
	return append(out, policy.Policy{})
}

func fire() test.Step {
	return test.Step{Detections: []detector.Detection{{ClassName: "car", Confidence: 0.9, Box: images.Rect{X2: 9, Y2: 9}}}}
}

func TestRun_DetectorFailureDoesNotStopLoop(t *testing.T) {
	f := newFixture(
		fire(),
		test.Step{Err: errors.New("cuda out of memory")},
		test.Step{Panic: "index out of range"},
		fire(),
	)
	f.policies.Policies = times(4, enabled())
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))

	assert.Equal(t, 4, f.detector.Calls())
	assert.Len(t, f.recorder.Events(), 2)
	assert.True(t, f.detector.Closed())
	assert.Equal(t, StateDisabled, s.State())
	assert.Equal(t, []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second, 10 * time.Second}, f.clock.Sleeps())
}

func TestRun_ScheduleWindowPausesSampling(t *testing.T) {
	f := newFixture()
	f.clock.Set(t0.Add(-20 * time.Second))
	p := enabled()
	p.Schedule = policy.Schedule{StartHour: 9, EndHour: 10}
	f.policies.Policies = times(4, p)
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))

	// 08:59:40 and 08:59:50 are outside, 09:00:00 and 09:00:10 inside.
	assert.Equal(t, 2, f.frames.Attempts())
	assert.Equal(t, 5, f.policies.Reads())
	assert.Equal(t, []string{"rtsp://cam/1", "rtsp://cam/1"}, f.frames.URLs())
}

func TestRun_CaptureFailuresAreSkipped(t *testing.T) {
	f := newFixture()
	f.frames.Failures = map[int]bool{1: true, 2: true, 3: true}
	f.frames.Empty = map[int]bool{4: true}
	f.policies.Policies = times(4, enabled())
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 4, f.frames.Attempts())
	assert.Zero(t, f.detector.Calls())
	assert.Equal(t, 4, s.Failures())
}

func TestRun_SuccessfulCaptureResetsFailures(t *testing.T) {
	f := newFixture()
	f.frames.Failures = map[int]bool{1: true, 2: true}
	f.policies.Policies = times(3, enabled())
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))
	assert.Equal(t, 1, f.detector.Calls())
	assert.Zero(t, s.Failures())
}

func TestRun_PolicyErrorsAreFatal(t *testing.T) {
	t.Run("unreadable", func(t *testing.T) {
		f := newFixture()
		f.policies.Err = errors.New("database is closed")
		s := f.session(t)

		err := s.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is closed")
		assert.Equal(t, StateStopped, s.State())
		assert.True(t, f.detector.Closed())
	})

	t.Run("missing", func(t *testing.T) {
		f := newFixture()
		err := f.session(t).Run(context.Background())
		assert.True(t, errors.Is(err, policy.ErrNotFound))
	})

	t.Run("invalid", func(t *testing.T) {
		f := newFixture()
		p := enabled()
		p.FrameInterval = 0
		f.policies.Policies = []policy.Policy{p}
		err := f.session(t).Run(context.Background())
		assert.Error(t, err)
		assert.Zero(t, f.frames.Attempts())
	})
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture()
	f.policies.Policies = []policy.Policy{enabled()}
	s := f.session(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))
	assert.Equal(t, StateStopped, s.State())
	assert.Zero(t, f.policies.Reads())
	assert.True(t, f.detector.Closed())
}

func TestRun_RecordFailureDropsOnlyThatAlarm(t *testing.T) {
	f := newFixture(fire(), fire(), fire())
	f.recorder.Fail = map[int]bool{2: true}
	f.policies.Policies = times(3, enabled())
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))
	assert.Len(t, f.recorder.Events(), 2)
	assert.Equal(t, 3, f.detector.Calls())
}

func TestRun_ForwardingUsesPolicyDebounce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	f := newFixture(fire(), fire(), fire(), fire(), fire(), fire(), fire())
	f.forwarder = alarm.NewForwarder(alarm.ForwarderConfig{Endpoint: srv.URL}, srv.Client(), f.clock)
	p := enabled()
	p.AlarmDebounce = 55 * time.Second
	f.policies.Policies = times(7, p)
	s := f.session(t)

	require.NoError(t, s.Run(context.Background()))

	// Frames every 10s with a 55s debounce: t=0 and t=60 are forwarded.
	assert.Len(t, f.recorder.Events(), 7)
	assert.Equal(t, int32(2), hits.Load())
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Config{Key: key}, Deps{})
	assert.Error(t, err)
}
