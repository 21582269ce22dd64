package store

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// insertCacheEntry seeds one raw entry row so prune tests can control
// byte sizes and access timestamps directly.
func insertCacheEntry(t *testing.T, s *Store, path string, byteSize, lastAccessed, computedAt int64) int64 {
	t.Helper()
	res, err := s.db.Exec(`
		INSERT INTO analysis_cache_entries (
			analysis_type, path_norm, mtime_ns, size_bytes,
			analysis_version, params_hash, params_json,
			duration_ms, frame_count, byte_size, computed_at, last_accessed_at
		) VALUES ('scalar', ?, 1, 1, 1, ?, '{}', 1000, 1, ?, ?, ?)
	`, path, fmt.Sprintf("hash-%s", path), byteSize, computedAt, lastAccessed)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func TestPruneSizePassEvictsLRU(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	// Three entries of 100 bytes, distinct access times, recent compute.
	now := int64(2_000_000_000)
	oldest := insertCacheEntry(t, s, "/a", 100, now-300, now)
	middle := insertCacheEntry(t, s, "/b", 100, now-200, now)
	newest := insertCacheEntry(t, s, "/c", 100, now-100, now)

	res, err := p.Prune(150, 365, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(300), res.BytesBefore)
	assert.LessOrEqual(t, res.BytesAfter, int64(150))
	assert.Equal(t, 2, res.EntriesPruned)
	assert.Equal(t, int64(200), res.BytesReclaimed())

	var survivors []int64
	rows, err := s.db.Query("SELECT id FROM analysis_cache_entries ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		survivors = append(survivors, id)
	}
	require.NoError(t, rows.Err())

	assert.Equal(t, []int64{newest}, survivors)
	_ = oldest
	_ = middle
}

func TestPruneAgePass(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	// One ancient entry, one fresh. No size cap.
	insertCacheEntry(t, s, "/old", 100, 1000, 1000)
	insertCacheEntry(t, s, "/new", 100, 9_999_999_999, 9_999_999_999)

	res, err := p.Prune(0, 30, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, res.EntriesPruned)
	assert.Equal(t, int64(100), res.BytesAfter)
}

func TestPruneProtectsRecentSet(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	// All entries are ancient; protection alone keeps the two most
	// recently accessed alive.
	insertCacheEntry(t, s, "/a", 100, 1000, 1000)
	insertCacheEntry(t, s, "/b", 100, 2000, 1000)
	insertCacheEntry(t, s, "/c", 100, 3000, 1000)

	res, err := p.Prune(0, 30, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntriesPruned)

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM analysis_cache_entries").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestPruneNoCapMeansNoSizePass(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	now := int64(9_999_999_999)
	insertCacheEntry(t, s, "/a", 1_000_000, now, now)
	insertCacheEntry(t, s, "/b", 1_000_000, now, now)

	res, err := p.Prune(0, 365, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.EntriesPruned)
	assert.Equal(t, res.BytesBefore, res.BytesAfter)
}

func TestExceedsThreshold(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	now := int64(9_999_999_999)
	insertCacheEntry(t, s, "/a", 90, now, now)

	over, err := p.ExceedsThreshold(100, 0.9)
	require.NoError(t, err)
	assert.True(t, over)

	over, err = p.ExceedsThreshold(100, 0.95)
	require.NoError(t, err)
	assert.False(t, over)

	// No cap, never over.
	over, err = p.ExceedsThreshold(0, 0.5)
	require.NoError(t, err)
	assert.False(t, over)
}

func TestPruneCascadesFrames(t *testing.T) {
	s := newTestStore(t)
	scalar := NewScalarStore(s)
	path := writeTestTrack(t, "a.mp3", "audio bytes")

	require.NoError(t, scalar.Upsert(path, 1000, DefaultScalarParams(), []ScalarFrame{
		{PositionMS: 0, LevelLeft: 0.5, LevelRight: 0.5},
		{PositionMS: 50, LevelLeft: 0.6, LevelRight: 0.6},
	}))

	// Age the entry far past the ceiling with no protection.
	_, err := s.db.Exec("UPDATE analysis_cache_entries SET computed_at = 1000, last_accessed_at = 1000")
	require.NoError(t, err)

	p := NewPruner(s)
	res, err := p.Prune(0, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.EntriesPruned)

	var frames int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM analysis_scalar_frames").Scan(&frames))
	assert.Equal(t, 0, frames)
}

func TestCacheStats(t *testing.T) {
	s := newTestStore(t)
	p := NewPruner(s)

	now := int64(9_999_999_999)
	insertCacheEntry(t, s, "/a", 100, now, now)
	insertCacheEntry(t, s, "/b", 50, now, now)

	stats, err := p.CacheStats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, "scalar", stats[0].AnalysisType)
	assert.Equal(t, 2, stats[0].Entries)
	assert.Equal(t, int64(150), stats[0].Bytes)
}
