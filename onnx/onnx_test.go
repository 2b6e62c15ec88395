package onnx

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/models"
)

func TestNew_MissingModel(t *testing.T) {
	_, err := New(Config{
		ModelPath: filepath.Join(t.TempDir(), "missing.onnx"),
		Kind:      detector.KindBox,
		Classes:   models.COCOClasses,
	})
	require.Error(t, err)
}

func TestNew_RequiresClasses(t *testing.T) {
	_, err := New(Config{ModelPath: "yolov8n.onnx"})
	require.Error(t, err)
}

func TestConfigFor(t *testing.T) {
	cfg := ConfigFor(models.Spec{ID: "yolov8n-pose.pt", Kind: detector.KindKeypoint, Path: "/m/yolov8n-pose.onnx", Classes: models.PoseClasses})
	assert.Equal(t, "/m/yolov8n-pose.onnx", cfg.ModelPath)
	assert.Equal(t, detector.KindKeypoint, cfg.Kind)
	assert.Equal(t, 640, cfg.InputSize)
	assert.True(t, cfg.NMS.ClassAware)
}

func TestInputBlob_RGBOrder(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 48, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 48; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	blob, err := inputBlob(img, 32)
	require.NoError(t, err)
	defer blob.Close()

	data, err := blob.DataPtrFloat32()
	require.NoError(t, err)
	plane := 32 * 32
	require.Len(t, data, 3*plane)
	for _, i := range []int{0, plane / 2, plane - 1} {
		assert.InDelta(t, 1.0, data[i], 1e-3, "red plane at %d", i)
		assert.InDelta(t, 0.0, data[plane+i], 1e-3, "green plane at %d", i)
		assert.InDelta(t, 0.0, data[2*plane+i], 1e-3, "blue plane at %d", i)
	}
}
