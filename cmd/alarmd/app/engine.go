package app

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/capture"
	"github.com/nvr-ai/go-alarm/config"
	"github.com/nvr-ai/go-alarm/controller"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/inference"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/onnx"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/profiler"
	"github.com/nvr-ai/go-alarm/session"
	"github.com/nvr-ai/go-alarm/snapshot"
	"github.com/nvr-ai/go-alarm/storage"
	"github.com/nvr-ai/go-alarm/tracking"
)

// detectorFunc opens the model behind a resolved spec.
type detectorFunc func(spec models.Spec) (detector.Detector, error)

// engine builds sessions from the catalog. Every session shares the frame
// source, the snapshot writer and the webhook client, and owns its detector,
// controller and forwarder.
type engine struct {
	cfg       *config.Config
	store     *storage.Store
	registry  *models.Registry
	frames    session.FrameSource
	snapshots *snapshot.Writer
	client    *http.Client
	profiler  *profiler.Profiler
	open      detectorFunc
}

func newEngine(cfg *config.Config, store *storage.Store, prof *profiler.Profiler) *engine {
	e := &engine{
		cfg:       cfg,
		store:     store,
		registry:  models.NewRegistry(cfg.Detector.ModelDir),
		frames:    &capture.OpenCVSource{Timeout: cfg.Session.CaptureTimeout},
		snapshots: snapshot.NewWriter(cfg.DataDir),
		client:    &http.Client{},
		profiler:  prof,
	}
	e.open = e.openDetector
	return e
}

// openDetector loads spec with the configured backend.
func (e *engine) openDetector(spec models.Spec) (detector.Detector, error) {
	dc := e.cfg.Detector
	switch dc.Backend {
	case config.BackendONNXRuntime:
		return inference.New(inference.Config{
			LibraryPath: dc.LibraryPath,
			Spec:        spec,
			InputSize:   dc.InputSize,
			NMS:         dc.NMS,
			Options:     inference.SessionOptions{IntraOpThreads: dc.Threads},
		})
	default:
		oc := onnx.ConfigFor(spec)
		oc.InputSize = dc.InputSize
		oc.NMS = dc.NMS
		oc.UseCUDA = dc.UseCUDA
		return onnx.New(oc)
	}
}

// resolve returns the model spec of an algorithm with its kind override applied.
func (e *engine) resolve(alg storage.Algorithm) (models.Spec, error) {
	spec, err := e.registry.Resolve(alg.ModelName)
	if err != nil {
		return models.Spec{}, err
	}
	if alg.Kind != "" {
		spec.Kind = alg.Kind
		if alg.Kind == detector.KindKeypoint && spec.Classes == models.COCOClasses {
			spec.Classes = models.PoseClasses
		}
	}
	return spec, nil
}

// detector opens the model and stacks the timeout and tracker wrappers.
// Box models get IoU identities so dwell and congestion can follow them.
func (e *engine) detector(spec models.Spec) (detector.Detector, error) {
	det, err := e.open(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "open model %s", spec.ID)
	}
	det = detector.WithTimeout(det, e.cfg.Detector.InferTimeout)
	if spec.Kind == detector.KindBox {
		det = tracking.NewIoUTracker(det, e.cfg.Detector.Tracker)
	}
	return det, nil
}

// build is the session factory of the manager.
func (e *engine) build(ctx context.Context, key policy.Key) (*session.Session, error) {
	asg, err := e.store.Assignment(ctx, key)
	if err != nil {
		return nil, err
	}
	cam, err := e.store.Camera(ctx, key.CameraID)
	if err != nil {
		return nil, err
	}
	alg, err := e.store.Algorithm(ctx, key.AlgorithmID)
	if err != nil {
		return nil, err
	}
	spec, err := e.resolve(alg)
	if err != nil {
		return nil, err
	}
	rule, err := controller.NewRule(alg.Rule, alg.ModelName, spec.Kind, e.cfg.Rules())
	if err != nil {
		return nil, err
	}

	det, err := e.detector(spec)
	if err != nil {
		return nil, err
	}
	ctrl := controller.New(controller.Config{
		CameraID:      key.CameraID,
		AlgorithmID:   key.AlgorithmID,
		AlgorithmName: alg.Name,
		AlarmName:     asg.AlarmName,
		TrackMaxAge:   e.cfg.Session.TrackMaxAge,
		Tracking:      e.cfg.Tracking(),
	}, det, rule, e.snapshots, nil)

	fwd := alarm.NewForwarder(alarm.ForwarderConfig{
		Endpoint: e.cfg.Forwarding.URL,
		Token:    e.cfg.Forwarding.Token,
		Timeout:  e.cfg.Forwarding.Timeout,
		Debounce: asg.Policy.AlarmDebounce,
	}, e.client, nil)
	fwd.OnResult = func(err error) {
		if err != nil {
			e.profiler.Forwarded("failed")
		} else {
			e.profiler.Forwarded("delivered")
		}
	}

	sess, err := session.New(session.Config{
		Key:                key,
		StreamURL:          capture.StreamURL(cam.Protocol, cam.Username, cam.Password, cam.IP, cam.Port, cam.Path),
		MaxCaptureFailures: e.cfg.Session.MaxCaptureFailures,
	}, session.Deps{
		Policies:   e.store,
		Frames:     e.frames,
		Detector:   det,
		Controller: ctrl,
		Sink:       alarm.NewSink(e.store, fwd),
		Profiler:   e.profiler,
	})
	if err != nil {
		det.Close()
		return nil, err
	}
	klog.InfoS("Session built", "camera", key.CameraID, "algorithm", key.AlgorithmID,
		"model", spec.ID, "kind", spec.Kind, "rule", rule.Name())
	return sess, nil
}
