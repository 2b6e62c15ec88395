package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-alarm/alarm"
	"github.com/nvr-ai/go-alarm/detector"
	"github.com/nvr-ai/go-alarm/images"
	"github.com/nvr-ai/go-alarm/policy"
	"github.com/nvr-ai/go-alarm/region"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "alarm.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) policy.Key {
	t.Helper()
	ctx := context.Background()
	camID, err := s.UpsertCamera(ctx, Camera{Name: "gate", IP: "10.0.0.5", Port: 554, Username: "admin", Password: "pw", Path: "stream1"})
	require.NoError(t, err)
	algID, err := s.UpsertAlgorithm(ctx, Algorithm{Name: "parking", ModelName: "yolov8n", Rule: "dwell"})
	require.NoError(t, err)
	return policy.Key{CameraID: camID, AlgorithmID: algID}
}

func TestMigrate(t *testing.T) {
	s := openStore(t)
	v, dirty, err := s.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	require.NoError(t, s.Migrate(), "re-running is a no-op")

	require.NoError(t, s.MigrateDown())
	v, _, err = s.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestCatalog(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := seed(t, s)

	cam, err := s.Camera(ctx, key.CameraID)
	require.NoError(t, err)
	assert.Equal(t, "rtsp", cam.Protocol)
	assert.Equal(t, "10.0.0.5", cam.IP)

	cam.IP = "10.0.0.6"
	id, err := s.UpsertCamera(ctx, cam)
	require.NoError(t, err)
	assert.Equal(t, key.CameraID, id)
	cam, err = s.Camera(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.6", cam.IP)

	alg, err := s.Algorithm(ctx, key.AlgorithmID)
	require.NoError(t, err)
	assert.Empty(t, alg.Kind)
	assert.Equal(t, "dwell", alg.Rule)

	alg.Kind = detector.KindKeypoint
	_, err = s.UpsertAlgorithm(ctx, alg)
	require.NoError(t, err)
	alg, err = s.Algorithm(ctx, key.AlgorithmID)
	require.NoError(t, err)
	assert.Equal(t, detector.KindKeypoint, alg.Kind)

	_, err = s.Camera(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = s.Algorithm(ctx, 999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestPolicyRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	key := seed(t, s)

	_, err := s.Policy(ctx, key)
	assert.True(t, errors.Is(err, policy.ErrNotFound))

	want := policy.Policy{
		Enabled:           true,
		FrameInterval:     1500 * time.Millisecond,
		AlarmDebounce:     time.Minute,
		Confidence:        0.25,
		Regions:           region.Set{images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 50}},
		IntersectionRatio: 0.5,
		Schedule:          policy.Schedule{StartHour: 22, EndHour: 6},
	}
	require.NoError(t, s.UpsertAssignment(ctx, Assignment{CameraID: key.CameraID, AlgorithmID: key.AlgorithmID, AlarmName: "Parking", Policy: want}))

	got, err := s.Policy(ctx, key)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("policy mismatch (-want +got):\n%s", diff)
	}

	keys, err := s.EnabledKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []policy.Key{key}, keys)

	require.NoError(t, s.SetEnabled(ctx, key, false))
	got, err = s.Policy(ctx, key)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	keys, err = s.EnabledKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = s.SetEnabled(ctx, policy.Key{CameraID: 5, AlgorithmID: 5}, true)
	assert.True(t, errors.Is(err, policy.ErrNotFound))
}

func TestAssignmentRequiresCameraAndAlgorithm(t *testing.T) {
	s := openStore(t)
	err := s.UpsertAssignment(context.Background(), Assignment{CameraID: 1, AlgorithmID: 1, Policy: policy.Policy{FrameInterval: time.Second}})
	assert.Error(t, err, "foreign keys are enforced")
}

func TestRecordAndList(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ev := alarm.NewEvent(2, 1, []string{"car", "truck"}, "in.jpg", "out.jpg", base.Add(time.Duration(i)*time.Hour))
		ev.AlarmName = "Parking"
		require.NoError(t, s.Record(ctx, ev))
	}

	all, err := s.Alarms(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].Timestamp.Equal(base.Add(2*time.Hour)), "newest first")
	assert.Equal(t, []string{"car", "truck"}, all[0].Labels)
	assert.Equal(t, "Parking", all[0].AlarmName)

	two, err := s.Alarms(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	n, err := s.DeleteAlarmsBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	all, err = s.Alarms(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordDuplicateIDFails(t *testing.T) {
	s := openStore(t)
	ev := alarm.NewEvent(1, 1, nil, "", "", time.Now())
	require.NoError(t, s.Record(context.Background(), ev))
	assert.Error(t, s.Record(context.Background(), ev))
}

func TestRecordConcurrent(t *testing.T) {
	s := openStore(t)
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Record(context.Background(), alarm.NewEvent(int64(i), 1, []string{"x"}, "", "", time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	all, err := s.Alarms(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
