package store

import (
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScalarInterpolation(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultScalarParams()

	err := scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0, LevelRight: 0},
		{PositionMS: 1000, LevelLeft: 1, LevelRight: 0.5},
	})
	require.NoError(t, err)

	frame, ok, err := scalar.FrameAt(path, 500, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.5, frame.LevelLeft, 1e-9)
	assert.InDelta(t, 0.25, frame.LevelRight, 1e-9)

	// Queries outside the stored range clamp to the edge frames.
	frame, ok, err = scalar.FrameAt(path, -50, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0, frame.LevelLeft, 1e-9)

	frame, ok, err = scalar.FrameAt(path, 99999, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 1, frame.LevelLeft, 1e-9)
}

func TestScalarSanitization(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultScalarParams()

	err := scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: math.NaN(), LevelRight: math.Inf(1)},
		{PositionMS: 100, LevelLeft: -0.5, LevelRight: 1.8},
	})
	require.NoError(t, err)

	frame, ok, err := scalar.FrameAt(path, 0, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, frame.LevelLeft)
	assert.Equal(t, 0.0, frame.LevelRight)

	frame, ok, err = scalar.FrameAt(path, 100, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, frame.LevelLeft)
	assert.Equal(t, 1.0, frame.LevelRight)
}

func TestUpsertRejectsUnorderedFrames(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")

	err := scalar.Upsert(path, 1000, DefaultScalarParams(), []ScalarFrame{
		{PositionMS: 100}, {PositionMS: 100},
	})
	assert.Error(t, err)

	err = scalar.Upsert(path, 1000, DefaultScalarParams(), []ScalarFrame{
		{PositionMS: -10},
	})
	assert.Error(t, err)
}

func TestUpsertReplacesEntry(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultScalarParams()

	require.NoError(t, scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.1, LevelRight: 0.1},
		{PositionMS: 100, LevelLeft: 0.2, LevelRight: 0.2},
	}))
	require.NoError(t, scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.9, LevelRight: 0.9},
	}))

	var entries, frames int
	require.NoError(t, s.db.QueryRow(
		"SELECT COUNT(*) FROM analysis_cache_entries WHERE analysis_type = 'scalar'").Scan(&entries))
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM analysis_scalar_frames").Scan(&frames))
	assert.Equal(t, 1, entries)
	assert.Equal(t, 1, frames)

	frame, ok, err := scalar.FrameAt(path, 0, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.9, frame.LevelLeft, 1e-9)
}

func TestFingerprintMismatchIsMiss(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "original content")
	params := DefaultScalarParams()

	require.NoError(t, scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.5, LevelRight: 0.5},
	}))

	ok, err := scalar.Has(path, params)
	require.NoError(t, err)
	assert.True(t, ok)

	// Rewriting the file changes size and mtime; the entry must vanish
	// from the store's point of view without being deleted.
	require.NoError(t, os.WriteFile(path, []byte("different length content"), 0o644))

	ok, err = scalar.Has(path, params)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = scalar.FrameAt(path, 0, params)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingFileIsMissNotError(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)

	ok, err := scalar.Has("/no/such/file.mp3", DefaultScalarParams())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParamsHashSeparatesEntries(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")

	require.NoError(t, scalar.Upsert(path, 1000, ScalarParams{BucketMS: 50}, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.5, LevelRight: 0.5},
	}))

	ok, err := scalar.Has(path, ScalarParams{BucketMS: 25})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = scalar.Has(path, ScalarParams{BucketMS: 50})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBeatNearestNeighbor(t *testing.T) {
	s := newTestStore(t)
	beats := NewBeatStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultBeatParams()

	err := beats.UpsertBeats(path, 1000, params, 128.5, []BeatFrame{
		{PositionMS: 0, StrengthU8: 10, IsBeat: false},
		{PositionMS: 100, StrengthU8: 200, IsBeat: true},
	})
	require.NoError(t, err)

	// Exact midpoint ties toward the earlier frame.
	frame, ok, err := beats.FrameAt(path, 50, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(10), frame.StrengthU8)
	assert.False(t, frame.IsBeat)

	frame, ok, err = beats.FrameAt(path, 51, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint8(200), frame.StrengthU8)
	assert.True(t, frame.IsBeat)

	bpm, ok, err := beats.BPM(path, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 128.5, bpm, 1e-9)
}

func TestBeatBPMSanitized(t *testing.T) {
	s := newTestStore(t)
	beats := NewBeatStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultBeatParams()

	err := beats.UpsertBeats(path, 1000, params, math.NaN(), []BeatFrame{
		{PositionMS: 0, StrengthU8: 1},
	})
	require.NoError(t, err)

	bpm, ok, err := beats.BPM(path, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.0, bpm)
}

func TestSpectrumBandNormalization(t *testing.T) {
	s := newTestStore(t)
	spectrum := NewSpectrumStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := SpectrumParams{BandCount: 4, HopMS: 40}

	err := spectrum.UpsertSpectrum(path, 1000, params, []SpectrumFrame{
		{PositionMS: 0, Bands: []byte{1, 2}},             // short, padded
		{PositionMS: 40, Bands: []byte{1, 2, 3, 4, 5, 6}}, // long, truncated
	})
	require.NoError(t, err)

	frame, ok, err := spectrum.FrameAt(path, 0, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 0, 0}, frame.Bands)

	frame, ok, err = spectrum.FrameAt(path, 40, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, frame.Bands)
}

func TestWaveformRoundTrip(t *testing.T) {
	s := newTestStore(t)
	waveform := NewWaveformStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultWaveformParams()

	err := waveform.Upsert(path, 1000, params, []WaveformFrame{
		{PositionMS: 0, MinLeftI8: -100, MaxLeftI8: 100, MinRightI8: -50, MaxRightI8: 50},
	})
	require.NoError(t, err)

	frame, ok, err := waveform.FrameAt(path, 0, params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int8(-100), frame.MinLeftI8)
	assert.Equal(t, int8(100), frame.MaxLeftI8)
	assert.Equal(t, int8(-50), frame.MinRightI8)
	assert.Equal(t, int8(50), frame.MaxRightI8)
}

func TestTouchAccessThrottle(t *testing.T) {
	throttle := newTouchThrottle(30*time.Second, 4)
	now := time.Now()

	assert.True(t, throttle.due(1, now))
	assert.False(t, throttle.due(1, now.Add(time.Second)))
	assert.True(t, throttle.due(1, now.Add(31*time.Second)))

	// Other entries are throttled independently.
	assert.True(t, throttle.due(2, now))

	// Over capacity, stale timestamps are evicted rather than growing.
	for id := int64(3); id <= 10; id++ {
		throttle.due(id, now.Add(40*time.Second))
	}
	assert.LessOrEqual(t, len(throttle.seen), 5)
}

func TestTouchAccessUpdatesTimestamp(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")
	params := DefaultScalarParams()

	require.NoError(t, scalar.Upsert(path, 1000, params, []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.5, LevelRight: 0.5},
	}))

	_, err := s.db.Exec("UPDATE analysis_cache_entries SET last_accessed_at = 0")
	require.NoError(t, err)

	require.NoError(t, scalar.TouchAccess(path, params))

	var accessed int64
	require.NoError(t, s.db.QueryRow(
		"SELECT last_accessed_at FROM analysis_cache_entries LIMIT 1").Scan(&accessed))
	assert.Greater(t, accessed, int64(0))
}
