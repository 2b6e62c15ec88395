// Package onnx runs YOLOv8 ONNX exports through the OpenCV DNN module.
package onnx

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"k8s.io/klog/v2"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models/yolov8"
)

// Detector handles ONNX model inference using gocv.ReadNet().
type Detector struct {
	cfg    Config
	layout yolov8.Layout

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

// New loads the model. The network stays loaded until Close.
//
// Arguments:
//   - cfg: Model location, kind and decoding settings.
//
// Returns:
//   - *Detector: The loaded detector.
//   - error: When the file is missing or OpenCV cannot parse it.
func New(cfg Config) (*Detector, error) {
	if cfg.Classes == nil {
		return nil, errors.New("class set is required")
	}
	if cfg.InputSize <= 0 {
		cfg.InputSize = yolov8.InputSize
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, errors.Wrap(err, "model file")
	}

	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, errors.Errorf("failed to load ONNX model: %s", cfg.ModelPath)
	}

	if cfg.UseCUDA {
		net.SetPreferableBackend(gocv.NetBackendCUDA)
		net.SetPreferableTarget(gocv.NetTargetCUDA)
	} else {
		net.SetPreferableBackend(gocv.NetBackendOpenCV)
		net.SetPreferableTarget(gocv.NetTargetCPU)
	}

	d := &Detector{cfg: cfg, net: net, layout: yolov8.LayoutFor(cfg.Kind, cfg.Classes)}
	klog.V(2).InfoS("Loaded OpenCV DNN model", "path", cfg.ModelPath, "kind", cfg.Kind,
		"classes", cfg.Classes.Len(), "input", cfg.InputSize)
	return d, nil
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
	if d.closed {
		return nil, detector.ErrClosed
	}

	blob, err := inputBlob(frame.Image, d.cfg.InputSize)
	if err != nil {
		return nil, err
	}
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read output")
	}
	anchors := len(data) / d.layout.Features()

	w, h := frame.Size()
	results, err := yolov8.Decode(data, anchors, d.layout, yolov8.NewScale(w, h, d.cfg.InputSize), confidence, d.cfg.NMS)
	if err != nil {
		return nil, err
	}
	return yolov8.ToDetections(results, d.cfg.Classes), nil
}

// inputBlob scales img into the NCHW float blob the network expects, with
// channels in RGB order and values in [0, 1].
func inputBlob(img image.Image, size int) (gocv.Mat, error) {
	// ImageToMatRGB yields OpenCV's BGR layout despite its name.
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), errors.Wrap(err, "convert frame")
	}
	defer mat.Close()
	return gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false), nil
}

// Close releases the network.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return errors.Wrap(d.net.Close(), "close network")
}
