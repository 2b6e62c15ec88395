// Package detector defines the detection capability consumed by the analysis
// pipeline and the data it exchanges with it.
package detector

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/images"
)

// Kind selects which family of model output a detector produces. It is fixed
// when a session is constructed.
type Kind string

const (
	// KindBox detectors return class-labelled boxes.
	KindBox Kind = "box"
	// KindKeypoint detectors return person boxes with COCO-17 keypoints.
	KindKeypoint Kind = "keypoint"
	// KindClassifier detectors are judged purely on the label set they return.
	KindClassifier Kind = "classifier"
)

// ParseKind validates a configured kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindBox, KindKeypoint, KindClassifier:
		return k, nil
	default:
		return "", errors.Errorf("unknown detector kind %q", s)
	}
}

// Frame is a single sampled frame of video.
type Frame struct {
	ID        int64
	Image     image.Image
	Timestamp time.Time
}

// Size returns the frame's width and height in pixels.
func (f Frame) Size() (int, int) {
	if f.Image == nil {
		return 0, 0
	}
	b := f.Image.Bounds()
	return b.Dx(), b.Dy()
}

// Keypoint is one pose landmark.
type Keypoint struct {
	X, Y       float32
	Confidence float32
}

// Detection is one model output for one frame.
type Detection struct {
	ClassID    int
	ClassName  string
	Confidence float32
	Box        images.Rect
	// TrackID is the tracker identity; 0 means the detection is untracked.
	TrackID   int
	Keypoints []Keypoint
}

// Tracked reports whether the detection carries a track identity.
func (d Detection) Tracked() bool {
	return d.TrackID > 0
}

func (d Detection) String() string {
	return fmt.Sprintf("%s#%d (%.2f) [%d,%d,%d,%d]",
		d.ClassName, d.TrackID, d.Confidence, d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2)
}

// Detector runs a model over frames. Implementations keep their model loaded
// between calls and release it in Close.
type Detector interface {
	// Infer returns the detections in frame with confidence at or above the
	// given threshold.
	Infer(ctx context.Context, frame Frame, confidence float32) ([]Detection, error)
	// Close releases the model.
	Close() error
}

// Labels returns the class names of detections in order, without duplicates.
func Labels(dets []Detection) []string {
	seen := make(map[string]struct{}, len(dets))
	out := make([]string, 0, len(dets))
	for _, d := range dets {
		if _, ok := seen[d.ClassName]; ok {
			continue
		}
		seen[d.ClassName] = struct{}{}
		out = append(out, d.ClassName)
	}
	return out
}
