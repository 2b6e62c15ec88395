package tracking

import (
	"context"
	"sort"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
)

// IoUConfig configures the IoU tracker.
type IoUConfig struct {
	// Threshold is the minimum IoU for a detection to continue a track.
	Threshold float32 `yaml:"threshold"`
	// MaxLost is the number of consecutive frames a track may go unmatched
	// before its identity is retired.
	MaxLost int `yaml:"max_lost"`
}

// DefaultIoUConfig returns thresholds suited to sparse sampling of slow scenes.
func DefaultIoUConfig() IoUConfig {
	return IoUConfig{Threshold: 0.3, MaxLost: 2}
}

type iouTrack struct {
	id    int
	class int
	box   images.Rect
	lost  int
}

// IoUTracker gives track ids to detections from models that do not emit them.
// Each untracked detection continues the live track of the same class it
// overlaps most, greedily by IoU; leftovers start new tracks.
type IoUTracker struct {
	inner  detector.Detector
	cfg    IoUConfig
	tracks []iouTrack
	nextID int
}

// NewIoUTracker wraps inner. The tracker owns inner and closes it.
func NewIoUTracker(inner detector.Detector, cfg IoUConfig) *IoUTracker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultIoUConfig().Threshold
	}
	if cfg.MaxLost < 0 {
		cfg.MaxLost = 0
	}
	return &IoUTracker{inner: inner, cfg: cfg, nextID: 1}
}

// Infer runs the wrapped detector and assigns identities to its output.
func (t *IoUTracker) Infer(ctx context.Context, frame detector.Frame, confidence float32) ([]detector.Detection, error) {
	dets, err := t.inner.Infer(ctx, frame, confidence)
	if err != nil {
		return nil, err
	}
	return t.Assign(dets), nil
}

// Close releases the wrapped detector.
func (t *IoUTracker) Close() error {
	return t.inner.Close()
}

// Assign sets TrackID on every untracked detection in dets and returns it.
func (t *IoUTracker) Assign(dets []detector.Detection) []detector.Detection {
	type pair struct {
		track, det int
		iou        float32
	}

	var pairs []pair
	for ti, tr := range t.tracks {
		for di, d := range dets {
			if d.Tracked() || d.ClassID != tr.class {
				continue
			}
			if iou := images.CalculateIoU(tr.box, d.Box); iou >= t.cfg.Threshold {
				pairs = append(pairs, pair{track: ti, det: di, iou: iou})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].iou > pairs[j].iou })

	matchedTrack := make([]bool, len(t.tracks))
	for _, p := range pairs {
		if matchedTrack[p.track] || dets[p.det].Tracked() {
			continue
		}
		matchedTrack[p.track] = true
		dets[p.det].TrackID = t.tracks[p.track].id
		t.tracks[p.track].box = dets[p.det].Box
		t.tracks[p.track].lost = 0
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !matchedTrack[i] {
			tr.lost++
			if tr.lost > t.cfg.MaxLost {
				continue
			}
		}
		live = append(live, tr)
	}
	t.tracks = live

	for i := range dets {
		if dets[i].Tracked() {
			continue
		}
		dets[i].TrackID = t.nextID
		t.tracks = append(t.tracks, iouTrack{id: t.nextID, class: dets[i].ClassID, box: dets[i].Box})
		t.nextID++
	}
	return dets
}
