package inference

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/models/yolov8"
)

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 51, A: 255})
		}
	}

	const size = 8
	dst := make([]float32, 3*size*size)
	require.NoError(t, PrepareInput(img, size, dst))

	assert.InDelta(t, 1.0, dst[0], 1e-3)
	assert.InDelta(t, 0.0, dst[size*size], 1e-3)
	assert.InDelta(t, 0.2, dst[2*size*size], 1e-3)
	assert.InDelta(t, 1.0, dst[size*size-1], 1e-3)
}

func TestPrepareInput_ShortTensor(t *testing.T) {
	err := PrepareInput(image.NewRGBA(image.Rect(0, 0, 4, 4)), 8, make([]float32, 10))
	assert.Error(t, err)
}

func TestAnchorsFor(t *testing.T) {
	assert.Equal(t, yolov8.Anchors, anchorsFor(640))
	assert.Equal(t, 2100, anchorsFor(320))
}

func TestInitEnvironment_MissingLibrary(t *testing.T) {
	assert.NotEmpty(t, DefaultSharedLibPath())

	err := InitEnvironment(filepath.Join(t.TempDir(), "libonnxruntime.so"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "onnxruntime library not found")
}
