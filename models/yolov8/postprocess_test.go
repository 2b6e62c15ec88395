package yolov8

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
	"github.com/nvr-ai/go-alarm/models"
	"github.com/nvr-ai/go-alarm/models/postprocess"
)

// channelMajor lays out per-anchor rows the way the model emits them.
func channelMajor(rows [][]float32) []float32 {
	features := len(rows[0])
	out := make([]float32, features*len(rows))
	for a, row := range rows {
		for f, v := range row {
			out[f*len(rows)+a] = v
		}
	}
	return out
}

func TestDecodeBoxes(t *testing.T) {
	layout := Layout{Classes: 3}
	output := channelMajor([][]float32{
		{100, 100, 40, 20, 0.1, 0.9, 0.0},  // class 1 kept
		{101, 101, 40, 20, 0.1, 0.8, 0.0},  // suppressed by the first
		{300, 300, 20, 20, 0.2, 0.1, 0.3},  // below confidence
		{600, 620, 100, 80, 0.7, 0.0, 0.0}, // clamped to the image
	})

	res, err := Decode(output, 4, layout, NewScale(1280, 720, InputSize), 0.5, postprocess.DefaultNMSConfig())
	require.NoError(t, err)
	require.Len(t, res, 2)

	assert.Equal(t, 1, res[0].Class)
	assert.InDelta(t, 0.9, res[0].Score, 1e-6)
	assert.Equal(t, images.Rect{X1: 160, Y1: 101, X2: 240, Y2: 124}, res[0].Box)

	assert.Equal(t, 0, res[1].Class)
	assert.Equal(t, 1279, res[1].Box.X2)
	assert.Equal(t, 719, res[1].Box.Y2)
	assert.Empty(t, res[0].Keypoints)
}

func TestDecodePose(t *testing.T) {
	layout := Layout{Classes: 1, Keypoints: PoseKeypoints}
	row := make([]float32, layout.Features())
	copy(row, []float32{320, 320, 100, 200, 0.95})
	for k := 0; k < PoseKeypoints; k++ {
		row[5+3*k] = float32(10 * k)
		row[5+3*k+1] = float32(20 * k)
		row[5+3*k+2] = 0.5
	}

	res, err := Decode(channelMajor([][]float32{row}), 1, layout, NewScale(640, 640, InputSize), 0.25, postprocess.DefaultNMSConfig())
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].Keypoints, PoseKeypoints)
	assert.Equal(t, postprocess.Point3{X: 30, Y: 60, Score: 0.5}, res[0].Keypoints[3])
}

func TestDecodeRejectsShapeMismatch(t *testing.T) {
	_, err := Decode(make([]float32, 10), 3, Layout{Classes: 80}, NewScale(640, 640, InputSize), 0.5, postprocess.DefaultNMSConfig())
	assert.Error(t, err)
	assert.Equal(t, 84, Layout{Classes: 80}.Features())
	assert.Equal(t, 56, Layout{Classes: 1, Keypoints: PoseKeypoints}.Features())
}

func TestToDetections(t *testing.T) {
	classes := models.NewOutputClassSet("person")
	dets := ToDetections([]postprocess.Result{{
		Box:       images.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4},
		Score:     0.8,
		Keypoints: []postprocess.Point3{{X: 5, Y: 6, Score: 0.7}},
	}}, classes)
	require.Len(t, dets, 1)
	assert.Equal(t, "person", dets[0].ClassName)
	assert.False(t, dets[0].Tracked())
	assert.Equal(t, detector.Keypoint{X: 5, Y: 6, Confidence: 0.7}, dets[0].Keypoints[0])

	assert.Equal(t, Layout{Classes: 1, Keypoints: 17}, LayoutFor(detector.KindKeypoint, classes))
	assert.Equal(t, Layout{Classes: 80}, LayoutFor(detector.KindBox, models.COCOClasses))
}
