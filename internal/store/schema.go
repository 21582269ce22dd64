package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

const currentSchemaVersion = 7

// ErrUnsupportedSchema is returned when the database declares a schema
// version newer than this build supports. Proceeding would corrupt data,
// so migration refuses to run.
var ErrUnsupportedSchema = errors.New("database schema version is newer than supported")

// Schema v1 - base tables for tracks, metadata and playlists
const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tracks (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path TEXT NOT NULL UNIQUE,
  path_norm TEXT NOT NULL UNIQUE,
  mtime_ns INTEGER,
  size_bytes INTEGER,
  created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
  updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS track_meta (
  track_id INTEGER PRIMARY KEY REFERENCES tracks(id) ON DELETE CASCADE,
  title TEXT,
  artist TEXT,
  album TEXT,
  year INTEGER,
  duration_ms INTEGER,
  meta_loaded_at INTEGER,
  meta_valid INTEGER NOT NULL DEFAULT 0,
  meta_error TEXT
);

CREATE TABLE IF NOT EXISTS playlists (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL,
  created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
  updated_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS playlist_items (
  playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
  track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
  pos_key INTEGER NOT NULL,
  added_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_tracks_path_norm ON tracks(path_norm);
CREATE INDEX IF NOT EXISTS idx_track_meta_title ON track_meta(title);
CREATE INDEX IF NOT EXISTS idx_track_meta_artist ON track_meta(artist);
CREATE INDEX IF NOT EXISTS idx_track_meta_valid ON track_meta(meta_valid);
CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist_pos ON playlist_items(playlist_id, pos_key);
CREATE INDEX IF NOT EXISTS idx_playlist_items_track ON playlist_items(track_id);
`

// Schema v3 - single-feature envelope cache, superseded by the generic
// analysis cache in v4. Kept in the chain so databases written by older
// builds migrate without losing computed envelopes.
const schemaV3 = `
CREATE TABLE IF NOT EXISTS audio_envelopes (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  path_norm TEXT NOT NULL UNIQUE,
  mtime_ns INTEGER,
  size_bytes INTEGER,
  duration_ms INTEGER NOT NULL,
  analysis_version INTEGER NOT NULL,
  computed_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS audio_envelope_points (
  envelope_id INTEGER NOT NULL REFERENCES audio_envelopes(id) ON DELETE CASCADE,
  position_ms INTEGER NOT NULL,
  level_left REAL NOT NULL,
  level_right REAL NOT NULL,
  PRIMARY KEY (envelope_id, position_ms)
);

CREATE INDEX IF NOT EXISTS idx_audio_envelopes_path_norm ON audio_envelopes(path_norm);
`

// Schema v4 - generic analysis cache entries plus scalar frames
const schemaV4 = `
CREATE TABLE IF NOT EXISTS analysis_cache_entries (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  analysis_type TEXT NOT NULL,
  path_norm TEXT NOT NULL,
  mtime_ns INTEGER,
  size_bytes INTEGER,
  analysis_version INTEGER NOT NULL,
  params_hash TEXT NOT NULL,
  params_json TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  frame_count INTEGER NOT NULL DEFAULT 0,
  byte_size INTEGER NOT NULL DEFAULT 0,
  computed_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
  last_accessed_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
  UNIQUE(analysis_type, path_norm, params_hash)
);

CREATE TABLE IF NOT EXISTS analysis_scalar_frames (
  entry_id INTEGER NOT NULL REFERENCES analysis_cache_entries(id) ON DELETE CASCADE,
  position_ms INTEGER NOT NULL,
  level_left REAL NOT NULL,
  level_right REAL NOT NULL,
  PRIMARY KEY (entry_id, position_ms)
);

CREATE TABLE IF NOT EXISTS analysis_spectrum_frames (
  entry_id INTEGER NOT NULL REFERENCES analysis_cache_entries(id) ON DELETE CASCADE,
  position_ms INTEGER NOT NULL,
  bands BLOB NOT NULL,
  PRIMARY KEY (entry_id, position_ms)
);

CREATE INDEX IF NOT EXISTS idx_analysis_cache_lookup ON analysis_cache_entries(analysis_type, path_norm, params_hash);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_access ON analysis_cache_entries(last_accessed_at);
CREATE INDEX IF NOT EXISTS idx_analysis_cache_computed ON analysis_cache_entries(computed_at);
CREATE INDEX IF NOT EXISTS idx_analysis_scalar_pos ON analysis_scalar_frames(entry_id, position_ms);
CREATE INDEX IF NOT EXISTS idx_analysis_spectrum_pos ON analysis_spectrum_frames(entry_id, position_ms);
`

// Schema v5 - full-text search over playlist entries
const schemaV5 = `
CREATE VIRTUAL TABLE IF NOT EXISTS track_search USING fts5(
  title, artist, album, path, track_id UNINDEXED
);
`

// Schema v6 - beat frame table (entry-level bpm column added separately)
const schemaV6 = `
CREATE TABLE IF NOT EXISTS analysis_beat_frames (
  entry_id INTEGER NOT NULL REFERENCES analysis_cache_entries(id) ON DELETE CASCADE,
  position_ms INTEGER NOT NULL,
  strength_u8 INTEGER NOT NULL,
  is_beat INTEGER NOT NULL DEFAULT 0,
  PRIMARY KEY (entry_id, position_ms)
);

CREATE INDEX IF NOT EXISTS idx_analysis_beat_pos ON analysis_beat_frames(entry_id, position_ms);
`

// Schema v7 - waveform min/max proxy frame table
const schemaV7 = `
CREATE TABLE IF NOT EXISTS analysis_waveform_frames (
  entry_id INTEGER NOT NULL REFERENCES analysis_cache_entries(id) ON DELETE CASCADE,
  position_ms INTEGER NOT NULL,
  min_left_i8 INTEGER NOT NULL,
  max_left_i8 INTEGER NOT NULL,
  min_right_i8 INTEGER NOT NULL,
  max_right_i8 INTEGER NOT NULL,
  PRIMARY KEY (entry_id, position_ms)
);

CREATE INDEX IF NOT EXISTS idx_analysis_waveform_pos ON analysis_waveform_frames(entry_id, position_ms);
`

// Migrate brings the database up to currentSchemaVersion. Each step runs
// in its own write transaction and records its version before the next
// step starts, so a failed step leaves the database at the last good
// version rather than partially upgraded.
func (s *Store) Migrate() error {
	version, err := s.schemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("%w: database has version %d, supported is %d",
			ErrUnsupportedSchema, version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	steps := []struct {
		version int
		apply   func(*sql.Tx) error
	}{
		{1, applyV1},
		{2, migrateV1ToV2},
		{3, applyV3},
		{4, migrateV3ToV4},
		{5, migrateV4ToV5},
		{6, migrateV5ToV6},
		{7, applyV7},
	}

	for _, step := range steps {
		if version >= step.version {
			continue
		}
		if err := s.applyStep(step.version, step.apply); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", step.version, err)
		}
		version = step.version
	}

	log.Debug("schema migrated", "version", version)
	return nil
}

// applyStep runs one migration step and its version bump in a single
// transaction.
func (s *Store) applyStep(version int, apply func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := apply(tx); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}
	return nil
}

// schemaVersion returns the highest recorded schema version, or 0 for a
// fresh database.
func (s *Store) schemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func applyV1(tx *sql.Tx) error {
	_, err := tx.Exec(schemaV1)
	return err
}

// migrateV1ToV2 rebuilds playlist_items with a stable item primary key
// so reordering no longer depends on rowid stability.
func migrateV1ToV2(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS playlist_items_new (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			pos_key INTEGER NOT NULL,
			added_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
		)`,
		`INSERT INTO playlist_items_new (playlist_id, track_id, pos_key, added_at)
			SELECT playlist_id, track_id, pos_key, added_at FROM playlist_items`,
		`DROP TABLE playlist_items`,
		`ALTER TABLE playlist_items_new RENAME TO playlist_items`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist_pos ON playlist_items(playlist_id, pos_key)`,
		`CREATE INDEX IF NOT EXISTS idx_playlist_items_playlist_track ON playlist_items(playlist_id, track_id)`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func applyV3(tx *sql.Tx) error {
	_, err := tx.Exec(schemaV3)
	return err
}

// migrateV3ToV4 generalizes the envelope cache pair into the shared
// analysis cache tables, carrying all previously computed envelopes over
// as scalar entries, then drops the superseded pair.
func migrateV3ToV4(tx *sql.Tx) error {
	if _, err := tx.Exec(schemaV4); err != nil {
		return err
	}

	paramsJSON, paramsHash, err := HashParams(ScalarParams{BucketMS: defaultScalarBucketMS})
	if err != nil {
		return err
	}

	// Each scalar frame row stores position + two floats; 24 bytes is the
	// accounting weight used everywhere for scalar payloads.
	_, err = tx.Exec(`
		INSERT OR IGNORE INTO analysis_cache_entries (
			analysis_type, path_norm, mtime_ns, size_bytes,
			analysis_version, params_hash, params_json,
			duration_ms, frame_count, byte_size, computed_at, last_accessed_at
		)
		SELECT
			'scalar', e.path_norm, e.mtime_ns, e.size_bytes,
			e.analysis_version, ?, ?,
			e.duration_ms, COUNT(p.position_ms), COUNT(p.position_ms) * 24,
			e.computed_at, e.computed_at
		FROM audio_envelopes AS e
		LEFT JOIN audio_envelope_points AS p ON p.envelope_id = e.id
		GROUP BY e.id
	`, paramsHash, paramsJSON)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO analysis_scalar_frames (entry_id, position_ms, level_left, level_right)
		SELECT a.id, p.position_ms, p.level_left, p.level_right
		FROM audio_envelopes AS e
		JOIN analysis_cache_entries AS a
		  ON a.analysis_type = 'scalar'
		 AND a.path_norm = e.path_norm
		 AND a.params_hash = ?
		JOIN audio_envelope_points AS p ON p.envelope_id = e.id
	`, paramsHash)
	if err != nil {
		return err
	}

	for _, stmt := range []string{
		"DROP TABLE IF EXISTS audio_envelope_points",
		"DROP TABLE IF EXISTS audio_envelopes",
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateV4ToV5 adds the playlist search index and backfills it from
// existing track metadata.
func migrateV4ToV5(tx *sql.Tx) error {
	if _, err := tx.Exec(schemaV5); err != nil {
		return err
	}
	_, err := tx.Exec(`
		INSERT INTO track_search (title, artist, album, path, track_id)
		SELECT COALESCE(m.title, ''), COALESCE(m.artist, ''), COALESCE(m.album, ''), t.path, t.id
		FROM tracks AS t
		LEFT JOIN track_meta AS m ON m.track_id = t.id
		WHERE t.id NOT IN (SELECT track_id FROM track_search)
	`)
	return err
}

// migrateV5ToV6 adds beat frames and the entry-level bpm estimate.
func migrateV5ToV6(tx *sql.Tx) error {
	if _, err := tx.Exec(schemaV6); err != nil {
		return err
	}
	hasBPM, err := columnExists(tx, "analysis_cache_entries", "bpm")
	if err != nil {
		return err
	}
	if !hasBPM {
		if _, err := tx.Exec("ALTER TABLE analysis_cache_entries ADD COLUMN bpm REAL NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func applyV7(tx *sql.Tx) error {
	_, err := tx.Exec(schemaV7)
	return err
}

// columnExists reports whether a table already carries a column, used to
// keep ALTER TABLE migration steps idempotent under retry.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	rows, err := tx.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
