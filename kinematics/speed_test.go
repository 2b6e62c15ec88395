package kinematics

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/images"
)

func TestPPM(t *testing.T) {
	c := Calibration{BasePPM: 0.5, Alpha: 0.6}
	assert.InDelta(t, 0.5*math.Exp(0.6), c.PPM(100), 1e-12)
	assert.InDelta(t, 0.5, c.PPM(0), 1e-12)
	assert.Greater(t, c.PPM(400), c.PPM(100), "lower in frame means more pixels per meter")
}

func TestEstimateSpeed_SlowCar(t *testing.T) {
	c := Calibration{BasePPM: 0.5, Alpha: 0.6}
	speed, err := c.EstimateSpeed(images.Point{X: 0, Y: 100}, images.Point{X: 30, Y: 100}, 30*time.Second)
	require.NoError(t, err)
	// 30 / 0.911059 = 32.928 m; * 3.6 / 30 = 3.951 km/h.
	assert.Equal(t, 3, speed)
}

func TestEstimateSpeed_UsesSecondPositionForScale(t *testing.T) {
	c := DefaultCalibration()
	down, err := c.EstimateSpeed(images.Point{X: 0, Y: 0}, images.Point{X: 0, Y: 300}, time.Second)
	require.NoError(t, err)
	up, err := c.EstimateSpeed(images.Point{X: 0, Y: 300}, images.Point{X: 0, Y: 0}, time.Second)
	require.NoError(t, err)
	assert.Less(t, down, up)
}

func TestEstimateSpeed_StationaryIsZero(t *testing.T) {
	c := DefaultCalibration()
	p := images.Point{X: 320, Y: 240}
	for _, interval := range []time.Duration{time.Millisecond, time.Second, time.Hour} {
		speed, err := c.EstimateSpeed(p, p, interval)
		require.NoError(t, err)
		assert.Zero(t, speed)
	}
}

func TestEstimateSpeed_MonotonicInDistance(t *testing.T) {
	c := DefaultCalibration()
	prevSpeed := -1
	for dx := 0.0; dx <= 500; dx += 7 {
		speed, err := c.EstimateSpeed(images.Point{X: 0, Y: 50}, images.Point{X: dx, Y: 50}, 2*time.Second)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, speed, prevSpeed, "dx=%v", dx)
		prevSpeed = speed
	}
}

func TestEstimateSpeed_RejectsNonPositiveInterval(t *testing.T) {
	c := DefaultCalibration()
	for _, interval := range []time.Duration{0, -time.Second} {
		_, err := c.EstimateSpeed(images.Point{}, images.Point{X: 10}, interval)
		assert.True(t, errors.Is(err, ErrNonPositiveInterval))
	}
}

func TestEstimateSpeed_BadCalibration(t *testing.T) {
	_, err := Calibration{}.EstimateSpeed(images.Point{}, images.Point{X: 10}, time.Second)
	assert.Error(t, err)
}

func TestSmooth(t *testing.T) {
	assert.Equal(t, 0, Smooth(nil))
	assert.Equal(t, 12, Smooth([]int{12}))
	assert.Equal(t, 15, Smooth([]int{10, 20}))
	assert.Equal(t, 20, Smooth([]int{100, 100, 10, 20, 30}))
	assert.Equal(t, 3, Smooth([]int{3, 4, 4}), "truncated, not rounded")
}

func TestMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.InDelta(t, 2.5, Mean([]int{1, 2, 3, 4}), 1e-12)
}
