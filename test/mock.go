// Package test provides scripted fakes of the engine's interfaces for
// session-level tests.
package test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/policy"
)

// MockFrameGenerator creates deterministic frames.
//
// Example:
//
//	gen := NewMockFrameGenerator(640, 480)
//	img := gen.GenerateStaticFrame()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with the given dimensions.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// GenerateStaticFrame returns a mid-gray frame.
func (g *MockFrameGenerator) GenerateStaticFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 128, G: 128, B: 128, A: 255})
		}
	}
	return img
}

// GenerateObjectFrame returns a static frame with a white square of the given
// size at (x, y).
func (g *MockFrameGenerator) GenerateObjectFrame(x, y, size int) *image.RGBA {
	img := g.GenerateStaticFrame()
	r := image.Rect(x, y, x+size, y+size).Intersect(img.Bounds())
	for py := r.Min.Y; py < r.Max.Y; py++ {
		for px := r.Min.X; px < r.Max.X; px++ {
			img.SetRGBA(px, py, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	return img
}

// ErrNoScript is returned by fakes that ran past their script.
var ErrNoScript = errors.New("script exhausted")

// Step is one scripted inference outcome. A non-nil Panic value panics.
type Step struct {
	Detections []detector.Detection
	Err        error
	Panic      any
}

// MockDetector replays Steps. After the script it returns no detections.
type MockDetector struct {
	mu     sync.Mutex
	steps  []Step
	calls  int
	closed bool
}

// NewMockDetector creates a detector replaying steps.
func NewMockDetector(steps ...Step) *MockDetector {
	return &MockDetector{steps: steps}
}

// Infer implements detector.Detector.
func (m *MockDetector) Infer(ctx context.Context, frame detector.Frame, confidence float32) ([]detector.Detection, error) {
	m.mu.Lock()
	var step Step
	if m.calls < len(m.steps) {
		step = m.steps[m.calls]
	}
	m.calls++
	m.mu.Unlock()

	if step.Panic != nil {
		panic(step.Panic)
	}
	return step.Detections, step.Err
}

// Close implements detector.Detector.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns the number of Infer calls.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close was called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// MockFrameSource returns frames from a generator. Failures lists the
// 1-based attempts that fail; attempts listed in Empty return no frame.
type MockFrameSource struct {
	Generator *MockFrameGenerator
	Clock     interface{ Now() time.Time }
	Failures  map[int]bool
	Empty     map[int]bool

	mu       sync.Mutex
	attempts int
	urls     []string
}

// Capture implements the session frame source.
func (m *MockFrameSource) Capture(ctx context.Context, url string) (*detector.Frame, error) {
	m.mu.Lock()
	m.attempts++
	n := m.attempts
	m.urls = append(m.urls, url)
	m.mu.Unlock()

	if m.Failures[n] {
		return nil, errors.Errorf("camera unreachable on attempt %d", n)
	}
	if m.Empty[n] {
		return nil, nil
	}
	f := &detector.Frame{ID: int64(n), Image: m.Generator.GenerateStaticFrame()}
	if m.Clock != nil {
		f.Timestamp = m.Clock.Now()
	}
	return f, nil
}

// Attempts returns the number of Capture calls.
func (m *MockFrameSource) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

// URLs returns the stream urls requested so far.
func (m *MockFrameSource) URLs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.urls...)
}

// MockPolicySource serves a policy per read. Policies[i] answers read i+1; the
// last entry repeats. Err fails every read.
type MockPolicySource struct {
	Policies []policy.Policy
	Err      error

	mu    sync.Mutex
	reads int
}

// Policy implements policy.Source.
func (m *MockPolicySource) Policy(ctx context.Context, key policy.Key) (policy.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.Err != nil {
		return policy.Policy{}, m.Err
	}
	if len(m.Policies) == 0 {
		return policy.Policy{}, errors.Wrapf(policy.ErrNotFound, "%s", key)
	}
	return m.Policies[min(m.reads, len(m.Policies))-1], nil
}

// Reads returns the number of Policy calls.
func (m *MockPolicySource) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}

// MockRecorder keeps recorded events in memory. Fail makes the given
// 1-based Record calls fail.
type MockRecorder struct {
	Fail map[int]bool

	mu     sync.Mutex
	calls  int
	events []alarm.Event
}

// Record implements alarm.Recorder.
func (m *MockRecorder) Record(ctx context.Context, ev alarm.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.Fail[m.calls] {
		return errors.New("database is locked")
	}
	m.events = append(m.events, ev)
	return nil
}

// Events returns the recorded events.
func (m *MockRecorder) Events() []alarm.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]alarm.Event(nil), m.events...)
}
