package yolov8

import (
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/models/postprocess"
)

// LayoutFor returns the output layout of a model of the given kind.
func LayoutFor(kind detector.Kind, classes *models.OutputClassSet) Layout {
	if kind == detector.KindKeypoint {
		return Layout{Classes: classes.Len(), Keypoints: PoseKeypoints}
	}
	return Layout{Classes: classes.Len()}
}

// ToDetections labels decoded results. YOLOv8 exports carry no tracker, so the
// detections are untracked.
func ToDetections(results []postprocess.Result, classes *models.OutputClassSet) []detector.Detection {
	dets := make([]detector.Detection, len(results))
	for i, r := range results {
		dets[i] = detector.Detection{
			ClassID:    r.Class,
			ClassName:  classes.Name(r.Class),
			Confidence: r.Score,
			Box:        r.Box,
		}
		if len(r.Keypoints) > 0 {
			dets[i].Keypoints = make([]detector.Keypoint, len(r.Keypoints))
			for k, p := range r.Keypoints {
				dets[i].Keypoints[k] = detector.Keypoint{X: p.X, Y: p.Y, Confidence: p.Score}
			}
		}
	}
	return dets
}
