package controller

import (
	"time"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/snapshot"
)

// LabelSleeping is the label of posture alarms.
const LabelSleeping = "Sleeping Person"

// COCO pose keypoint indices.
const (
	KeypointLeftEar    = 3
	KeypointRightEar   = 4
	KeypointLeftWrist  = 9
	KeypointRightWrist = 10
)

// PostureConfig configures the posture rule.
type PostureConfig struct {
	// Ratio scales the frame height into the ear-to-wrist distance threshold.
	Ratio float32 `yaml:"ratio"`
	// MinKeypointConfidence drops ear and wrist landmarks scored below it.
	// Zero trusts every landmark.
	MinKeypointConfidence float32 `yaml:"min_keypoint_confidence"`
}

// DefaultPostureConfig returns the sleep detection defaults.
func DefaultPostureConfig() PostureConfig {
	return PostureConfig{Ratio: 0.2}
}

// PostureRule flags people resting their head on a hand: an ear closer to the
// wrist on the same side than Ratio times the frame height.
type PostureRule struct {
	cfg PostureConfig
}

// NewPostureRule creates a posture rule.
func NewPostureRule(cfg PostureConfig) *PostureRule {
	if cfg.Ratio <= 0 {
		cfg.Ratio = DefaultPostureConfig().Ratio
	}
	return &PostureRule{cfg: cfg}
}

// Name implements Rule.
func (r *PostureRule) Name() string { return "posture" }

// Accept implements Rule.
func (r *PostureRule) Accept(d detector.Detection) bool {
	return d.ClassID == models.ClassPerson && len(d.Keypoints) > KeypointRightWrist
}

// Evaluate implements Rule.
func (r *PostureRule) Evaluate(now time.Time, frame detector.Frame, obs []Observation) Decision {
	_, height := frame.Size()
	threshold := r.cfg.Ratio * float32(height)

	var dec Decision
	for _, o := range obs {
		if !Sleeping(o.Keypoints, threshold, r.cfg.MinKeypointConfidence) {
			continue
		}
		dec.Fire = true
		dec.Labels = append(dec.Labels, LabelSleeping)
		dec.Annotations = append(dec.Annotations, snapshot.Annotation{Box: o.Box, Caption: LabelSleeping, Alert: true})
	}
	return dec
}

// Sleeping reports whether either ear lies within threshold pixels of the
// wrist on the same side. A side counts only when both of its landmarks score
// at least minConfidence.
func Sleeping(kps []detector.Keypoint, threshold, minConfidence float32) bool {
	if len(kps) <= KeypointRightWrist {
		return false
	}
	near := func(ear, wrist detector.Keypoint) bool {
		if ear.Confidence < minConfidence || wrist.Confidence < minConfidence {
			return false
		}
		return distance(ear, wrist) < threshold
	}
	return near(kps[KeypointLeftEar], kps[KeypointLeftWrist]) ||
		near(kps[KeypointRightEar], kps[KeypointRightWrist])
}

func distance(a, b detector.Keypoint) float32 {
	return math32.Hypot(a.X-b.X, a.Y-b.Y)
}
