package alarm

import (
	"context"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Recorder persists alarm events. Record must be all-or-nothing per event.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Sink is the destination of a session's alarms: every event is recorded and
// then offered to the forwarder.
type Sink struct {
	recorder  Recorder
	forwarder *Forwarder
}

// NewSink creates a sink. A nil forwarder disables forwarding.
func NewSink(recorder Recorder, forwarder *Forwarder) *Sink {
	return &Sink{recorder: recorder, forwarder: forwarder}
}

// Forwarder returns the sink's forwarder, which may be nil.
func (s *Sink) Forwarder() *Forwarder {
	return s.forwarder
}

// Handle records ev and forwards it.
//
// The write is detached from ctx cancellation so a terminating session never
// leaves a partial record. A failed write drops this alarm only: it is logged,
// not forwarded, and returned for the caller to count.
//
// Arguments:
//   - ctx: The session context. Only its values are used for the write.
//   - ev: The event.
//
// Returns:
//   - ForwardResult: The forwarding outcome.
//   - error: The record error, if any.
func (s *Sink) Handle(ctx context.Context, ev Event) (ForwardResult, error) {
	if err := s.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		err = errors.Wrapf(err, "record alarm %s", ev.ID)
		klog.ErrorS(err, "Alarm dropped", "camera", ev.CameraID, "algorithm", ev.AlgorithmID, "labels", ev.Labels)
		return "", err
	}
	klog.InfoS("Alarm recorded", "camera", ev.CameraID, "algorithm", ev.AlgorithmID,
		"alarm", ev.ID, "labels", ev.Labels, "path", ev.OutputPath)

	if s.forwarder == nil {
		return ForwardDisabled, nil
	}
	return s.forwarder.Forward(ev), nil
}

// Wait blocks until in-flight forwards finish.
func (s *Sink) Wait() {
	if s.forwarder != nil {
		s.forwarder.Wait()
	}
}
