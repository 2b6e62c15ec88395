package inference

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/models/postprocess"
	"github.com/nvr-ai/go-alarm/models/yolov8"
)

// Config for the onnxruntime detector.
type Config struct {
	// LibraryPath is the onnxruntime shared library. Empty uses DefaultSharedLibPath.
	LibraryPath string
	Spec        models.Spec
	InputSize   int
	NMS         postprocess.NMSConfig
	Options     SessionOptions
}

// Detector runs a YOLOv8 export through a persistent onnxruntime session.
type Detector struct {
	cfg    Config
	layout yolov8.Layout

	mu      sync.Mutex
	session *Session
}

// New initialises the runtime (once per process) and opens a session for the model.
func New(cfg Config) (*Detector, error) {
	if cfg.Spec.Classes == nil {
		return nil, errors.New("class set is required")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = yolov8.InputSize
	}
	if err := InitEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	layout := yolov8.LayoutFor(cfg.Spec.Kind, cfg.Spec.Classes)
	anchors := anchorsFor(cfg.InputSize)
	session, err := NewSession(cfg.Spec.Path, cfg.InputSize, layout.Features(), anchors, cfg.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", cfg.Spec.ID)
	}
	return &Detector{cfg: cfg, layout: layout, session: session}, nil
}

// anchorsFor counts YOLOv8 grid cells over strides 8, 16 and 32.
func anchorsFor(size int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		g := size / stride
		n += g * g
	}
	return n
}

// Infer runs the model over frame.
func (d *Detector) Infer(ctx context.Context, frame detector.Frame, confidence float32) ([]detector.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame.Image == nil {
		return nil, errors.New("frame has no image")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil, detector.ErrClosed
	}

	if err := PrepareInput(frame.Image, d.cfg.InputSize, d.session.Input.GetData()); err != nil {
		return nil, errors.Wrap(err, "prepare input")
	}
	if err := d.session.Session.Run(); err != nil {
		return nil, errors.Wrap(err, "run inference")
	}

	w, h := frame.Size()
	results, err := yolov8.Decode(
		d.session.Output.GetData(),
		anchorsFor(d.cfg.InputSize),
		d.layout,
		yolov8.NewScale(w, h, d.cfg.InputSize),
		confidence,
		d.cfg.NMS,
	)
	if err != nil {
		return nil, err
	}
	return yolov8.ToDetections(results, d.cfg.Spec.Classes), nil
}

// Close releases the session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.session.Close()
		d.session = nil
	}
	return nil
}
