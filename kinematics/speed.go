// Package kinematics derives real-world speed from tracked pixel positions.
package kinematics

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/nvr-ai/go-alarm/images"
)

// ErrNonPositiveInterval is returned when the sampling interval is zero or negative.
var ErrNonPositiveInterval = errors.New("interval must be positive")

// SmoothingWindow is the number of recent raw estimates averaged by Smooth.
const SmoothingWindow = 3

// Calibration is a per-scene pixels-per-meter model that approximates
// perspective foreshortening: objects lower in the frame are closer to the
// camera and span more pixels per meter.
//
//	ppm(y) = BasePPM * exp(Alpha * y / 100)
//
// Both constants are fitted to one camera placement. The curve is not a general
// law and should be recalibrated per scene.
type Calibration struct {
	BasePPM float64 `yaml:"base_ppm"`
	Alpha   float64 `yaml:"alpha"`
}

// DefaultCalibration returns the calibration shipped with the production profile.
func DefaultCalibration() Calibration {
	return Calibration{BasePPM: 0.5, Alpha: 0.6}
}

// PPM returns pixels per meter at vertical position y.
func (c Calibration) PPM(y float64) float64 {
	return c.BasePPM * math.Exp(c.Alpha*y/100)
}

// EstimateSpeed converts the displacement between two positions into km/h.
//
// Arguments:
//   - prev: The earlier position.
//   - curr: The later position. Its y coordinate selects the ppm.
//   - interval: Time between the two observations.
//
// Returns:
//   - int: Speed in km/h, truncated toward zero.
//   - error: ErrNonPositiveInterval when interval <= 0.
//
// Example:
// ```go
//
//	c := Calibration{BasePPM: 0.5, Alpha: 0.6}
//	kmh, _ := c.EstimateSpeed(images.Point{X: 0, Y: 100}, images.Point{X: 30, Y: 100}, 30*time.Second)
//	// ppm = 0.5*e^0.6 = 0.911, 30px = 32.93m, 32.93*3.6/30 = 3.95 -> 3
//
// ```
func (c Calibration) EstimateSpeed(prev, curr images.Point, interval time.Duration) (int, error) {
	if interval <= 0 {
		return 0, ErrNonPositiveInterval
	}
	dist := prev.Dist(curr)
	if dist == 0 {
		return 0, nil
	}
	ppm := c.PPM(curr.Y)
	if ppm <= 0 {
		return 0, errors.Errorf("calibration yields non-positive ppm %v", ppm)
	}
	meters := dist / ppm
	return int(meters * 3.6 / interval.Seconds()), nil
}

// Smooth returns the mean of the most recent SmoothingWindow estimates,
// truncated to an integer. Fewer samples are averaged as they are; none yields 0.
func Smooth(raw []int) int {
	if len(raw) == 0 {
		return 0
	}
	tail := raw[max(0, len(raw)-SmoothingWindow):]
	return int(Mean(tail))
}

// Mean returns the arithmetic mean of values, 0 for an empty slice.
func Mean(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	xs := make([]float64, len(values))
	for i, v := range values {
		xs[i] = float64(v)
	}
	return stat.Mean(xs, nil)
}
