package timeutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClockAfterAdvances(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	fired := <-c.After(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), fired)
	assert.Equal(t, start.Add(5*time.Second), c.Now())
	assert.Equal(t, 5*time.Second, c.Since(start))
	assert.Equal(t, []time.Duration{5 * time.Second}, c.Sleeps())

	c.Advance(time.Minute)
	assert.Equal(t, start.Add(65*time.Second), c.Now())
}

func TestSleepHonoursContext(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	require.NoError(t, Sleep(context.Background(), c, time.Second))
	assert.Equal(t, time.Unix(1, 0), c.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, RealClock{}, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, c, 0), context.Canceled)
}
