package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// writeTestTrack creates a file on disk so fingerprinting has something
// to stat. Content length varies the fingerprint.
func writeTestTrack(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestOpenAndMigrate(t *testing.T) {
	s := newTestStore(t)

	version, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	tables := []string{
		"schema_version", "tracks", "track_meta", "playlists", "playlist_items",
		"analysis_cache_entries", "analysis_scalar_frames", "analysis_beat_frames",
		"analysis_spectrum_frames", "analysis_waveform_frames", "track_search",
	}
	for _, table := range tables {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
			table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "expected table %s to exist", table)
	}

	// The superseded single-feature envelope tables must be gone after
	// the v4 migration.
	for _, table := range []string{"audio_envelopes", "audio_envelope_points"} {
		var count int
		err := s.db.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
			table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 0, count, "expected table %s to be dropped", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	version, err := s2.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)

	// Exactly one row per schema step, no duplicates from the reopen.
	var rows int
	require.NoError(t, s2.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&rows))
	assert.Equal(t, currentSchemaVersion, rows)
}

func TestMigrateRefusesNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion+1)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
}

func TestCheckIntegrity(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.CheckIntegrity())
}

func TestEnvelopeDataSurvivesV4Migration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	// Build a database stopped at v3 with one stored envelope, the way
	// an older build would have left it.
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	legacy, err := Open(path)
	require.NoError(t, err)
	_, err = legacy.db.Exec("DELETE FROM analysis_cache_entries")
	require.NoError(t, err)
	_, err = legacy.db.Exec(schemaV3)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`
		INSERT INTO audio_envelopes (id, path_norm, mtime_ns, size_bytes, duration_ms, analysis_version)
		VALUES (1, '/music/a.mp3', 123, 456, 180000, 1)
	`)
	require.NoError(t, err)
	_, err = legacy.db.Exec(`
		INSERT INTO audio_envelope_points (envelope_id, position_ms, level_left, level_right)
		VALUES (1, 0, 0.1, 0.2), (1, 50, 0.3, 0.4)
	`)
	require.NoError(t, err)

	tx, err := legacy.db.Begin()
	require.NoError(t, err)
	require.NoError(t, migrateV3ToV4(tx))
	require.NoError(t, tx.Commit())
	require.NoError(t, legacy.Close())

	verify, err := Open(path)
	require.NoError(t, err)
	defer verify.Close()

	var frames int
	err = verify.db.QueryRow(`
		SELECT e.frame_count FROM analysis_cache_entries e
		WHERE e.analysis_type = 'scalar' AND e.path_norm = '/music/a.mp3'
	`).Scan(&frames)
	require.NoError(t, err)
	assert.Equal(t, 2, frames)
}
