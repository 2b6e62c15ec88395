package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-alarm/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 `yaml:"iou_threshold"` // Overlap threshold for suppression.
	ClassAware   bool    `yaml:"class_aware"`   // If true, suppress only within same class.
}

// DefaultNMSConfig returns the thresholds YOLOv8 exports are tuned for.
func DefaultNMSConfig() NMSConfig {
	return NMSConfig{IoUThreshold: 0.45, ClassAware: true}
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Arguments:
//   - detections: Candidate detections in any order. The slice is sorted in place
//     by descending score.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections, highest score first. Nil when empty.
func ApplyGreedyNMS(detections []Result, config NMSConfig) []Result {
	n := len(detections)
	if n == 0 {
		return nil
	}
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && detections[j].Class != anchor.Class {
				continue
			}
			// Suppress if IoU exceeds threshold
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
