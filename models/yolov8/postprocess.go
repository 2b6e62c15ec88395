// Package yolov8 - decodes YOLOv8 detection and pose model outputs.
package yolov8

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-alarm/images"
	"github.com/nvr-ai/go-alarm/models/postprocess"
)

// InputSize is the square input resolution of the exported models.
const InputSize = 640

// Anchors is the number of predictions a 640x640 model emits (80² + 40² + 20²).
const Anchors = 8400

// PoseKeypoints is the number of COCO keypoints emitted by pose models.
const PoseKeypoints = 17

// Layout describes the per-anchor feature vector: 4 box values, one score per
// class, then 3 values per keypoint.
type Layout struct {
	Classes   int
	Keypoints int
}

// Features returns the length of one anchor's feature vector.
func (l Layout) Features() int {
	return 4 + l.Classes + 3*l.Keypoints
}

// Scale maps model input coordinates back to the source image.
type Scale struct {
	X, Y          float32
	Width, Height int
}

// NewScale returns the scale for a source image of w x h resized to the model input.
func NewScale(w, h, input int) Scale {
	return Scale{
		X:      float32(w) / float32(input),
		Y:      float32(h) / float32(input),
		Width:  w,
		Height: h,
	}
}

// Decode turns a raw (1, features, anchors) output into scored results.
//
// The model lays features out channel-major; the output is transposed to one
// row per anchor before scanning.
//
// Arguments:
//   - output: The raw output tensor data. It is not modified.
//   - anchors: Number of anchors in the output.
//   - layout: The feature layout.
//   - scale: Source image scale.
//   - confidence: Minimum class score kept.
//   - nms: Suppression settings.
//
// Returns:
//   - []postprocess.Result: Results after NMS, highest score first.
//   - error: When the output size does not match the layout.
func Decode(output []float32, anchors int, layout Layout, scale Scale, confidence float32, nms postprocess.NMSConfig) ([]postprocess.Result, error) {
	features := layout.Features()
	if anchors <= 0 || len(output) != features*anchors {
		return nil, errors.Errorf("output has %d values, want %d x %d", len(output), features, anchors)
	}

	rows, err := transpose(output, features, anchors)
	if err != nil {
		return nil, err
	}

	var results []postprocess.Result
	for a := 0; a < anchors; a++ {
		row := rows[a*features : (a+1)*features]

		class, score := 0, float32(0)
		for c := 0; c < layout.Classes; c++ {
			if s := row[4+c]; s > score {
				class, score = c, s
			}
		}
		if score < confidence {
			continue
		}

		cx, cy, w, h := row[0]*scale.X, row[1]*scale.Y, row[2]*scale.X, row[3]*scale.Y
		res := postprocess.Result{
			Box: images.Rect{
				X1: clamp(cx-w/2, scale.Width),
				Y1: clamp(cy-h/2, scale.Height),
				X2: clamp(cx+w/2, scale.Width),
				Y2: clamp(cy+h/2, scale.Height),
			},
			Score: score,
			Class: class,
		}
		if layout.Keypoints > 0 {
			kp := row[4+layout.Classes:]
			res.Keypoints = make([]postprocess.Point3, layout.Keypoints)
			for k := range res.Keypoints {
				res.Keypoints[k] = postprocess.Point3{
					X:     kp[3*k] * scale.X,
					Y:     kp[3*k+1] * scale.Y,
					Score: kp[3*k+2],
				}
			}
		}
		results = append(results, res)
	}

	return postprocess.ApplyGreedyNMS(results, nms), nil
}

// transpose copies a (rows, cols) row-major matrix into (cols, rows).
func transpose(data []float32, rows, cols int) ([]float32, error) {
	backing := make([]float32, len(data))
	copy(backing, data)

	t := tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing))
	if err := t.T(); err != nil {
		return nil, errors.Wrap(err, "transpose output")
	}
	if err := t.Transpose(); err != nil {
		return nil, errors.Wrap(err, "transpose output")
	}
	out, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.New("transposed output is not float32")
	}
	return out, nil
}

// clamp rounds v to the nearest pixel inside [0, limit-1].
func clamp(v float32, limit int) int {
	v = math32.Round(v)
	return int(math32.Max(0, math32.Min(v, float32(limit-1))))
}
