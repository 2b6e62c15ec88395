// Package region implements the geometric gate that decides whether a detection
// lies inside a configured set of regions of interest.
package region

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-alarm/images"
)

// ErrMalformed is returned when a region set cannot be decoded.
var ErrMalformed = errors.New("malformed region set")

// Set is a collection of regions with any-match semantics. A nil or empty Set
// places no restriction on detections.
type Set []images.Rect

// Parse decodes a region set stored as a JSON array of [x1, y1, x2, y2] arrays.
//
// Arguments:
//   - s: The encoded set. An empty string, "null" or "[]" decodes to an empty Set.
//
// Returns:
//   - Set: Regions with canonical corner order.
//   - error: ErrMalformed wrapped with the cause.
func Parse(s string) (Set, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil, nil
	}

	var raw [][]float64
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	set := make(Set, 0, len(raw))
	for i, r := range raw {
		if len(r) != 4 {
			return nil, errors.Wrapf(ErrMalformed, "region %d has %d coordinates", i, len(r))
		}
		set = append(set, images.Rect{
			X1: int(r[0]), Y1: int(r[1]), X2: int(r[2]), Y2: int(r[3]),
		}.Canon())
	}
	return set, nil
}

// String encodes the set in the form accepted by Parse.
func (s Set) String() string {
	raw := make([][4]int, len(s))
	for i, r := range s {
		raw[i] = [4]int{r.X1, r.Y1, r.X2, r.Y2}
	}
	b, _ := json.Marshal(raw)
	return string(b)
}

// IntersectionRatio returns the overlap between box and region normalised by the
// box's own area. A box covering no pixels scores 0.
func IntersectionRatio(box, region images.Rect) float64 {
	area := box.Area()
	if area == 0 {
		return 0
	}
	return float64(box.Intersect(region).Area()) / float64(area)
}

// IsInside reports whether box overlaps any region in set by strictly more than
// threshold. An empty set always passes.
//
// Arguments:
//   - box: The detection box.
//   - set: The regions of interest.
//   - threshold: Minimum exclusive intersection ratio.
//
// Returns:
//   - bool: True on the first region that satisfies the threshold.
func IsInside(box images.Rect, set Set, threshold float64) bool {
	if len(set) == 0 {
		return true
	}
	for _, r := range set {
		if IntersectionRatio(box, r) > threshold {
			return true
		}
	}
	return false
}

// Contains is IsInside bound to the receiver.
func (s Set) Contains(box images.Rect, threshold float64) bool {
	return IsInside(box, s, threshold)
}
