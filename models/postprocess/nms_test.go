package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/images"
)

func TestApplyGreedyNMS(t *testing.T) {
	dets := []Result{
		{Box: images.Rect{X1: 2, Y1: 2, X2: 102, Y2: 102}, Score: 0.7, Class: 2},
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.9, Class: 2},
		{Box: images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}, Score: 0.8, Class: 0},
		{Box: images.Rect{X1: 300, Y1: 300, X2: 350, Y2: 350}, Score: 0.6, Class: 2},
	}

	out := ApplyGreedyNMS(append([]Result(nil), dets...), NMSConfig{IoUThreshold: 0.5, ClassAware: true})
	require.Len(t, out, 3)
	assert.InDelta(t, 0.9, out[0].Score, 1e-6)
	assert.Equal(t, 0, out[1].Class, "other class survives class-aware NMS")
	assert.InDelta(t, 0.6, out[2].Score, 1e-6)

	out = ApplyGreedyNMS(append([]Result(nil), dets...), NMSConfig{IoUThreshold: 0.5})
	require.Len(t, out, 2)

	assert.Nil(t, ApplyGreedyNMS(nil, DefaultNMSConfig()))
}
