package controller

import (
	"fmt"
	"time"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/snapshot"
)

// JudgeRule alarms when the model's judge predicate accepts the labels of
// the gated detections.
type JudgeRule struct {
	model     string
	predicate models.Predicate
	// wholeFrame skips the region gate for classifier models.
	wholeFrame bool
}

// NewJudgeRule creates a rule for the given model identifier.
func NewJudgeRule(model string, kind detector.Kind, fallback models.Fallback) *JudgeRule {
	return &JudgeRule{
		model:      model,
		predicate:  models.Judge(model, fallback),
		wholeFrame: kind == detector.KindClassifier,
	}
}

// Name implements Rule.
func (r *JudgeRule) Name() string { return "judge:" + r.model }

// Accept implements Rule.
func (r *JudgeRule) Accept(detector.Detection) bool { return true }

// WholeFrame reports whether detections skip the region gate.
func (r *JudgeRule) WholeFrame() bool { return r.wholeFrame }

// Evaluate implements Rule.
func (r *JudgeRule) Evaluate(now time.Time, frame detector.Frame, obs []Observation) Decision {
	dets := make([]detector.Detection, len(obs))
	for i, o := range obs {
		dets[i] = o.Detection
	}
	labels := detector.Labels(dets)
	if !r.predicate(labels) {
		return Decision{}
	}

	dec := Decision{Fire: true, Labels: labels}
	if r.wholeFrame {
		return dec
	}
	for _, d := range dets {
		dec.Annotations = append(dec.Annotations, snapshot.Annotation{
			Box:     d.Box,
			Caption: fmt.Sprintf("%s %.2f", d.ClassName, d.Confidence),
			Alert:   true,
		})
	}
	return dec
}
