package detector

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTimeout is returned when inference does not finish within its budget.
	ErrTimeout = errors.New("inference timed out")
	// ErrClosed is returned by a detector that has been released.
	ErrClosed = errors.New("detector closed")
)

type result struct {
	dets []Detection
	err  error
}

// timeoutDetector bounds each Infer call. Model runtimes cannot be interrupted,
// so an abandoned call keeps running in its goroutine and later calls wait for
// it before reusing the model.
type timeoutDetector struct {
	inner   Detector
	timeout time.Duration

	mu      sync.Mutex
	pending chan result
	closed  bool
}

// WithTimeout wraps d so that Infer returns ErrTimeout once timeout elapses or
// the context is done. A non-positive timeout only honours the context.
//
// Arguments:
//   - d: The detector to wrap. It is closed when the wrapper is closed.
//   - timeout: Per-call budget.
//
// Returns:
//   - Detector: The bounded detector.
func WithTimeout(d Detector, timeout time.Duration) Detector {
	return &timeoutDetector{inner: d, timeout: timeout}
}

func (t *timeoutDetector) Infer(ctx context.Context, frame Frame, confidence float32) ([]Detection, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, ErrClosed
	}
	if t.pending != nil {
		// The previous call overran; the model is still busy.
		select {
		case <-t.pending:
			t.pending = nil
		default:
			t.mu.Unlock()
			return nil, errors.Wrap(ErrTimeout, "previous inference still running")
		}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	done := make(chan result, 1)
	go func() {
		dets, err := t.inner.Infer(ctx, frame, confidence)
		done <- result{dets: dets, err: err}
	}()
	t.mu.Unlock()

	select {
	case r := <-done:
		return r.dets, r.err
	case <-ctx.Done():
		t.mu.Lock()
		t.pending = done
		t.mu.Unlock()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (t *timeoutDetector) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.pending != nil {
		<-t.pending
		t.pending = nil
	}
	return t.inner.Close()
}
