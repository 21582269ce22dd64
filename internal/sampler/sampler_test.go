package sampler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franz/trackcache/internal/store"
)

// fakeScalarProvider serves canned frames without a database.
type fakeScalarProvider struct {
	mu      sync.Mutex
	frame   store.ScalarFrame
	hasData bool
	touches int
}

func (f *fakeScalarProvider) FrameAt(path string, positionMS int64, params any) (store.ScalarFrame, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frame, f.hasData, nil
}

func (f *fakeScalarProvider) TouchAccess(path string, params any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeScalarProvider) setData(frame store.ScalarFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
	f.hasData = true
}

type scheduleRecorder struct {
	mu    sync.Mutex
	calls []store.AnalysisType
}

func (r *scheduleRecorder) fn() ScheduleFunc {
	return func(trackPath string, typ store.AnalysisType, params any) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, typ)
	}
}

func (r *scheduleRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestLevelServiceColdCache(t *testing.T) {
	provider := &fakeScalarProvider{}
	recorder := &scheduleRecorder{}
	svc := &LevelService{
		frames:    provider,
		schedule:  recorder.fn(),
		pending:   newInflight(time.Minute),
		lastStats: time.Now(),
	}

	reading, err := svc.Sample("/music/a.mp3", 500, store.DefaultScalarParams())
	require.NoError(t, err)
	assert.Equal(t, StatusLoading, reading.Status)
	assert.Equal(t, SourceFallback, reading.Source)
	assert.Zero(t, reading.Left)
	assert.Zero(t, reading.Right)
	assert.Equal(t, 1, recorder.count())

	// Repeated misses while the request is in flight do not reschedule.
	_, err = svc.Sample("/music/a.mp3", 600, store.DefaultScalarParams())
	require.NoError(t, err)
	assert.Equal(t, 1, recorder.count())
}

func TestLevelServiceHit(t *testing.T) {
	provider := &fakeScalarProvider{}
	provider.setData(store.ScalarFrame{PositionMS: 500, LevelLeft: 0.7, LevelRight: 0.3})
	recorder := &scheduleRecorder{}
	svc := &LevelService{
		frames:    provider,
		schedule:  recorder.fn(),
		pending:   newInflight(time.Minute),
		lastStats: time.Now(),
	}

	reading, err := svc.Sample("/music/a.mp3", 500, store.DefaultScalarParams())
	require.NoError(t, err)
	assert.Equal(t, StatusReady, reading.Status)
	assert.Equal(t, SourceCache, reading.Source)
	assert.InDelta(t, 0.7, reading.Left, 1e-9)
	assert.InDelta(t, 0.3, reading.Right, 1e-9)
	assert.Zero(t, recorder.count())
	assert.Equal(t, 1, provider.touches)
}

func TestLevelServiceHitClearsInflight(t *testing.T) {
	provider := &fakeScalarProvider{}
	recorder := &scheduleRecorder{}
	svc := &LevelService{
		frames:    provider,
		schedule:  recorder.fn(),
		pending:   newInflight(time.Hour),
		lastStats: time.Now(),
	}
	params := store.DefaultScalarParams()

	_, err := svc.Sample("/music/a.mp3", 0, params)
	require.NoError(t, err)
	require.Equal(t, 1, recorder.count())

	// Analysis lands, a hit follows, then the entry is invalidated
	// again: a fresh request must be scheduled without waiting for the
	// in-flight marker to expire.
	provider.setData(store.ScalarFrame{LevelLeft: 0.5, LevelRight: 0.5})
	_, err = svc.Sample("/music/a.mp3", 0, params)
	require.NoError(t, err)

	provider.mu.Lock()
	provider.hasData = false
	provider.mu.Unlock()

	_, err = svc.Sample("/music/a.mp3", 0, params)
	require.NoError(t, err)
	assert.Equal(t, 2, recorder.count())
}

func TestLevelServiceNoSchedulerReportsMissing(t *testing.T) {
	svc := &LevelService{
		frames:    &fakeScalarProvider{},
		pending:   newInflight(time.Minute),
		lastStats: time.Now(),
	}

	reading, err := svc.Sample("/music/a.mp3", 0, store.DefaultScalarParams())
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, reading.Status)
}

func TestLevelServiceEmptyPath(t *testing.T) {
	recorder := &scheduleRecorder{}
	svc := &LevelService{
		frames:    &fakeScalarProvider{},
		schedule:  recorder.fn(),
		pending:   newInflight(time.Minute),
		lastStats: time.Now(),
	}

	reading, err := svc.Sample("", 0, store.DefaultScalarParams())
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, reading.Status)
	assert.Zero(t, recorder.count())
}

func TestInflightExpiry(t *testing.T) {
	f := newInflight(10 * time.Millisecond)

	assert.True(t, f.tryAcquire("k"))
	assert.False(t, f.tryAcquire("k"))

	time.Sleep(20 * time.Millisecond)
	assert.True(t, f.tryAcquire("k"))

	f.clear("k")
	assert.True(t, f.tryAcquire("k"))
}

func TestRequestKeyCollapsesPathSpellings(t *testing.T) {
	params := store.DefaultScalarParams()
	k1, err := requestKey("/music/../music/a.mp3", params)
	require.NoError(t, err)
	k2, err := requestKey("/music/a.mp3", params)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := requestKey("/music/a.mp3", store.ScalarParams{BucketMS: 25})
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestSpectrumServiceFallbackBands(t *testing.T) {
	svc := &SpectrumService{
		frames:  &fakeSpectrumProvider{},
		pending: newInflight(time.Minute),
	}

	reading, err := svc.Sample("/music/a.mp3", 0, store.SpectrumParams{BandCount: 16, HopMS: 40})
	require.NoError(t, err)
	assert.Equal(t, StatusMissing, reading.Status)
	assert.Len(t, reading.Bands, 16)
	for _, b := range reading.Bands {
		assert.Zero(t, b)
	}
}

type fakeSpectrumProvider struct{}

func (fakeSpectrumProvider) FrameAt(path string, positionMS int64, params any) (store.SpectrumFrame, bool, error) {
	return store.SpectrumFrame{}, false, nil
}

func (fakeSpectrumProvider) TouchAccess(path string, params any) error { return nil }
