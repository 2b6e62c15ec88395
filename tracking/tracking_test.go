package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
)

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	_, ok := r.Last()
	assert.False(t, ok)

	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 3, r.Cap())
	assert.Equal(t, []int{3, 4, 5}, r.Values())
	assert.Equal(t, []int{4, 5}, r.Tail(2))
	assert.Equal(t, []int{3, 4, 5}, r.Tail(10))
	assert.Empty(t, r.Tail(0))

	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, 5, last)
	assert.Equal(t, 3, r.At(0))
	assert.Panics(t, func() { r.At(3) })

	r.Reset()
	assert.Zero(t, r.Len())
}

func TestStore_UpdateCreatesAndAppends(t *testing.T) {
	s := NewStore(Config{HistoryLength: 2, NominalFPS: 30})
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	rec := s.Update(7, images.Point{X: 1, Y: 1}, t0)
	assert.Equal(t, 1, rec.Frames)
	assert.Equal(t, t0, rec.FirstSeen)
	_, ok := rec.Previous()
	assert.False(t, ok)

	s.Update(7, images.Point{X: 2, Y: 2}, t0.Add(time.Second))
	rec = s.Update(7, images.Point{X: 3, Y: 3}, t0.Add(2*time.Second))
	assert.Equal(t, 2, rec.Positions.Len(), "history capacity bounds positions")
	prev, ok := rec.Previous()
	require.True(t, ok)
	assert.Equal(t, images.Point{X: 2, Y: 2}, prev.Position)
	assert.Equal(t, 2*time.Second, rec.Dwell())
	assert.Equal(t, 1, s.Len())
}

func TestStore_DwellSecondsFromFrameCount(t *testing.T) {
	for _, tc := range []struct{ frames, fps, want int }{
		{29, 30, 0}, {30, 30, 1}, {95, 30, 3}, {10, 5, 2}, {1, 1, 1},
	} {
		s := NewStore(Config{NominalFPS: tc.fps})
		var rec *Record
		for i := 0; i < tc.frames; i++ {
			rec = s.Update(1, images.Point{}, time.Unix(int64(i), 0))
		}
		assert.Equal(t, tc.want, rec.DwellSeconds, "%d frames at %d fps", tc.frames, tc.fps)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	s := NewStore(Config{})
	rec, ok := s.Get(42)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestStore_PruneExpiredAndCompact(t *testing.T) {
	s := NewStore(Config{})
	t0 := time.Unix(1000, 0)
	for id := 1; id <= 6; id++ {
		s.Update(id, images.Point{}, t0)
	}
	// Tracks 5 and 6 stay fresh.
	s.Update(5, images.Point{}, t0.Add(time.Minute))
	s.Update(6, images.Point{}, t0.Add(time.Minute))

	assert.Zero(t, s.PruneExpired(t0.Add(time.Minute), 0))
	removed := s.PruneExpired(t0.Add(time.Minute), 30*time.Second)
	assert.Equal(t, 4, removed)
	assert.Equal(t, 2, s.Len())
	assert.Len(t, s.slots, 2, "arena compacted after most slots freed")

	for _, id := range []int{5, 6} {
		rec, ok := s.Get(id)
		require.True(t, ok)
		assert.Equal(t, id, rec.ID)
	}
	_, ok := s.Get(1)
	assert.False(t, ok)

	// Recreated ids start fresh.
	rec := s.Update(1, images.Point{}, t0.Add(2*time.Minute))
	assert.Equal(t, 1, rec.Frames)
}

func TestStore_FreeSlotsReused(t *testing.T) {
	s := NewStore(Config{})
	t0 := time.Unix(0, 0)
	for id := 1; id <= 4; id++ {
		s.Update(id, images.Point{}, t0)
	}
	s.Update(2, images.Point{}, t0.Add(time.Hour))
	s.Update(3, images.Point{}, t0.Add(time.Hour))
	s.Update(4, images.Point{}, t0.Add(time.Hour))

	require.Equal(t, 1, s.PruneExpired(t0.Add(time.Hour), time.Minute))
	assert.Len(t, s.free, 1)

	s.Update(9, images.Point{}, t0.Add(time.Hour))
	assert.Len(t, s.slots, 4)
	assert.Empty(t, s.free)
}

type staticDetector struct {
	frames [][]detector.Detection
	calls  int
	closed bool
}

func (d *staticDetector) Infer(ctx context.Context, frame detector.Frame, confidence float32) ([]detector.Detection, error) {
	out := append([]detector.Detection(nil), d.frames[d.calls]...)
	d.calls++
	return out, nil
}

func (d *staticDetector) Close() error {
	d.closed = true
	return nil
}

func car(x int) detector.Detection {
	return detector.Detection{ClassID: 2, ClassName: "car", Confidence: 0.9, Box: images.Rect{X1: x, Y1: 0, X2: x + 50, Y2: 50}}
}

func TestIoUTracker_KeepsIdentity(t *testing.T) {
	inner := &staticDetector{frames: [][]detector.Detection{
		{car(0), car(200)},
		{car(205), car(5)},
		{car(10)},
		{},
		{},
		{car(12)},
	}}
	tr := NewIoUTracker(inner, IoUConfig{Threshold: 0.5, MaxLost: 1})
	ctx := context.Background()

	f1, err := tr.Infer(ctx, detector.Frame{}, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 1, f1[0].TrackID)
	assert.Equal(t, 2, f1[1].TrackID)

	f2, _ := tr.Infer(ctx, detector.Frame{}, 0.5)
	assert.Equal(t, 2, f2[0].TrackID)
	assert.Equal(t, 1, f2[1].TrackID)

	f3, _ := tr.Infer(ctx, detector.Frame{}, 0.5)
	assert.Equal(t, 1, f3[0].TrackID)

	tr.Infer(ctx, detector.Frame{}, 0.5)
	tr.Infer(ctx, detector.Frame{}, 0.5)

	// Lost for two frames with MaxLost 1: a new identity.
	f6, _ := tr.Infer(ctx, detector.Frame{}, 0.5)
	assert.Equal(t, 3, f6[0].TrackID)

	require.NoError(t, tr.Close())
	assert.True(t, inner.closed)
}

func TestIoUTracker_ClassAwareAndPassThrough(t *testing.T) {
	tr := NewIoUTracker(&staticDetector{}, DefaultIoUConfig())
	person := car(0)
	person.ClassID, person.ClassName = 0, "person"

	first := tr.Assign([]detector.Detection{car(0)})
	second := tr.Assign([]detector.Detection{person})
	assert.NotEqual(t, first[0].TrackID, second[0].TrackID)

	pre := car(0)
	pre.TrackID = 77
	out := tr.Assign([]detector.Detection{pre})
	assert.Equal(t, 77, out[0].TrackID)
}
