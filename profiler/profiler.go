// Package profiler exposes the runtime metrics of the alarm engine.
package profiler

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alarm"

// Profiler owns a private registry with the engine's counters, operation
// timings and Go runtime collectors.
//
// All methods are safe on a nil *Profiler, which records nothing.
type Profiler struct {
	registry *prometheus.Registry

	frames          prometheus.Counter
	captureFailures prometheus.Counter
	detectorErrors  prometheus.Counter
	alarms          prometheus.Counter
	recordFailures  prometheus.Counter
	forwards        *prometheus.CounterVec
	operations      *prometheus.HistogramVec
	running         prometheus.Gauge
}

// New creates a profiler and registers its collectors.
func New() *Profiler {
	p := &Profiler{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Frames run through the detection pipeline.",
		}),
		captureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_failures_total",
			Help:      "Frame acquisitions that failed or returned no frame.",
		}),
		detectorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_errors_total",
			Help:      "Inference calls that failed or panicked.",
		}),
		alarms: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_recorded_total",
			Help:      "Alarm events persisted.",
		}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_failures_total",
			Help:      "Alarm events dropped because they could not be persisted.",
		}),
		forwards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwards_total",
			Help:      "Webhook forwarding decisions by result.",
		}, []string{"result"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of pipeline operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"operation"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_running",
			Help:      "Analysis sessions currently looping.",
		}),
	}

	p.registry.MustRegister(
		p.frames, p.captureFailures, p.detectorErrors, p.alarms, p.recordFailures,
		p.forwards, p.operations, p.running,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Registry returns the profiler's registry.
func (p *Profiler) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Profiler) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The operation label, for example "capture" or "process".
//
// Returns:
//   - func(): Call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	if p == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		p.operations.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
}

// FrameProcessed counts a frame that reached the detector.
func (p *Profiler) FrameProcessed() {
	if p != nil {
		p.frames.Inc()
	}
}

// CaptureFailed counts a failed frame acquisition.
func (p *Profiler) CaptureFailed() {
	if p != nil {
		p.captureFailures.Inc()
	}
}

// DetectorFailed counts a failed inference call.
func (p *Profiler) DetectorFailed() {
	if p != nil {
		p.detectorErrors.Inc()
	}
}

// AlarmRecorded counts a persisted alarm.
func (p *Profiler) AlarmRecorded() {
	if p != nil {
		p.alarms.Inc()
	}
}

// RecordFailed counts an alarm lost to a storage failure.
func (p *Profiler) RecordFailed() {
	if p != nil {
		p.recordFailures.Inc()
	}
}

// Forwarded counts a forwarding decision.
func (p *Profiler) Forwarded(result string) {
	if p != nil {
		p.forwards.WithLabelValues(result).Inc()
	}
}

// SessionStarted increments the running sessions gauge.
func (p *Profiler) SessionStarted() {
	if p != nil {
		p.running.Inc()
	}
}

// SessionStopped decrements the running sessions gauge.
func (p *Profiler) SessionStopped() {
	if p != nil {
		p.running.Dec()
	}
}
