package region

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/images"
)

func TestIsInside_PartialOverlap(t *testing.T) {
	box := images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}
	set := Set{{X1: 0, Y1: 0, X2: 15, Y2: 15}}

	// 6x6 inclusive pixels shared out of 11x11.
	assert.InDelta(t, 36.0/121.0, IntersectionRatio(box, set[0]), 1e-9)
	assert.True(t, IsInside(box, set, 0.2))
	assert.False(t, IsInside(box, set, 0.3))
}

func TestIsInside_SpanningBox(t *testing.T) {
	// Box crossing the region's lower edge: 11 columns by 6 rows inside.
	box := images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}
	set := Set{{X1: 0, Y1: 0, X2: 30, Y2: 15}}

	assert.InDelta(t, 66.0/121.0, IntersectionRatio(box, set[0]), 1e-9)
	assert.True(t, IsInside(box, set, 0.3))
}

func TestIsInside_EmptySetAlwaysPasses(t *testing.T) {
	for _, threshold := range []float64{0, 0.5, 0.99, 1, 10} {
		assert.True(t, IsInside(images.Rect{X1: 1, Y1: 1, X2: 2, Y2: 2}, nil, threshold))
		assert.True(t, IsInside(images.Rect{X1: 1, Y1: 1, X2: 2, Y2: 2}, Set{}, threshold))
	}
}

func TestIsInside_ContainedBox(t *testing.T) {
	set := Set{{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	boxes := []images.Rect{
		{X1: 0, Y1: 0, X2: 100, Y2: 100},
		{X1: 10, Y1: 20, X2: 30, Y2: 40},
		{X1: 50, Y1: 50, X2: 50, Y2: 50},
	}
	for _, b := range boxes {
		for _, threshold := range []float64{0, 0.3, 0.9, 0.999} {
			assert.True(t, IsInside(b, set, threshold), "box %+v threshold %v", b, threshold)
		}
	}
}

func TestIsInside_DisjointBox(t *testing.T) {
	set := Set{{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 50, Y1: 50, X2: 60, Y2: 60}}
	box := images.Rect{X1: 20, Y1: 20, X2: 40, Y2: 40}
	for _, threshold := range []float64{0.0001, 0.3, 0.9} {
		assert.False(t, IsInside(box, set, threshold))
	}
}

func TestIsInside_AnyRegionMatches(t *testing.T) {
	set := Set{{X1: 0, Y1: 0, X2: 10, Y2: 10}, {X1: 50, Y1: 50, X2: 60, Y2: 60}}
	assert.True(t, IsInside(images.Rect{X1: 52, Y1: 52, X2: 58, Y2: 58}, set, 0.5))
}

func TestIntersectionRatio_StrictThreshold(t *testing.T) {
	box := images.Rect{X1: 0, Y1: 0, X2: 9, Y2: 9}
	set := Set{{X1: 0, Y1: 0, X2: 4, Y2: 9}}
	assert.InDelta(t, 0.5, IntersectionRatio(box, set[0]), 1e-9)
	assert.False(t, IsInside(box, set, 0.5))
	assert.True(t, IsInside(box, set, 0.49))
}

func TestIntersectionRatio_DegenerateBox(t *testing.T) {
	box := images.Rect{X1: 10, Y1: 10, X2: 5, Y2: 5}
	set := Set{{X1: 0, Y1: 0, X2: 100, Y2: 100}}
	assert.Zero(t, IntersectionRatio(box, set[0]))
	assert.False(t, IsInside(box, set, 0))
}

func TestParse(t *testing.T) {
	set, err := Parse("[[0,0,15,15],[100,80,20,10]]")
	require.NoError(t, err)
	assert.Equal(t, Set{
		{X1: 0, Y1: 0, X2: 15, Y2: 15},
		{X1: 20, Y1: 10, X2: 100, Y2: 80},
	}, set)

	for _, empty := range []string{"", "  ", "null", "[]"} {
		set, err := Parse(empty)
		require.NoError(t, err)
		assert.Empty(t, set)
	}
}

func TestParse_Malformed(t *testing.T) {
	for _, in := range []string{"[[1,2,3]]", "{}", "[[1,2,3,x]]"} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrMalformed), in)
	}
}

func TestSetString(t *testing.T) {
	set := Set{{X1: 1, Y1: 2, X2: 3, Y2: 4}}
	parsed, err := Parse(set.String())
	require.NoError(t, err)
	assert.Equal(t, set, parsed)
	assert.Equal(t, "[]", Set(nil).String())
}
