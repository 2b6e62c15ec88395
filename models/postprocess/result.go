// Package postprocess - decoding helpers shared by model output parsers.
package postprocess

import "github.com/nvr-ai/go-alarm/images"

// Point3 is a keypoint in image space with its visibility score.
type Point3 struct {
	X, Y, Score float32
}

// Result represents a single detection result.
type Result struct {
	// The bounding box of the result.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
	// Keypoints, for pose models.
	Keypoints []Point3
}
