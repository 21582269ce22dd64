package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// Track is one known audio file, keyed by normalized path.
type Track struct {
	ID        int64
	Path      string
	PathNorm  string
	MtimeNS   int64
	SizeBytes int64
}

// TrackMeta holds extracted tag metadata for a track.
type TrackMeta struct {
	TrackID    int64
	Title      string
	Artist     string
	Album      string
	Year       int
	DurationMS int64
	Valid      bool
	Error      string
}

// EnsureTrack inserts the track if unknown and returns its id.
func (s *Store) EnsureTrack(path string) (int64, error) {
	pathNorm := NormalizePath(path)

	var mtimeNS, sizeBytes int64
	if info, err := os.Stat(path); err == nil {
		mtimeNS = info.ModTime().UnixNano()
		sizeBytes = info.Size()
	}

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO tracks (path, path_norm, mtime_ns, size_bytes)
		VALUES (?, ?, ?, ?)
	`, path, pathNorm, mtimeNS, sizeBytes)
	if err != nil {
		return 0, fmt.Errorf("failed to insert track: %w", err)
	}

	var id int64
	err = s.db.QueryRow("SELECT id FROM tracks WHERE path_norm = ?", pathNorm).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get track ID: %w", err)
	}
	return id, nil
}

// GetTrackByPath returns the track for a path, or nil when unknown.
func (s *Store) GetTrackByPath(path string) (*Track, error) {
	t := &Track{}
	err := s.db.QueryRow(`
		SELECT id, path, path_norm, COALESCE(mtime_ns, 0), COALESCE(size_bytes, 0)
		FROM tracks WHERE path_norm = ?
	`, NormalizePath(path)).Scan(&t.ID, &t.Path, &t.PathNorm, &t.MtimeNS, &t.SizeBytes)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track: %w", err)
	}
	return t, nil
}

// UpsertTrackMeta replaces a track's tag metadata and keeps the playlist
// search index in sync.
func (s *Store) UpsertTrackMeta(meta *TrackMeta) error {
	return s.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO track_meta (track_id, title, artist, album, year, duration_ms, meta_loaded_at, meta_valid, meta_error)
			VALUES (?, ?, ?, ?, ?, ?, strftime('%s','now'), ?, ?)
			ON CONFLICT(track_id) DO UPDATE SET
				title = excluded.title,
				artist = excluded.artist,
				album = excluded.album,
				year = excluded.year,
				duration_ms = excluded.duration_ms,
				meta_loaded_at = excluded.meta_loaded_at,
				meta_valid = excluded.meta_valid,
				meta_error = excluded.meta_error
		`, meta.TrackID, meta.Title, meta.Artist, meta.Album, meta.Year, meta.DurationMS, meta.Valid, meta.Error)
		if err != nil {
			return fmt.Errorf("failed to upsert track meta: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM track_search WHERE track_id = ?", meta.TrackID); err != nil {
			return fmt.Errorf("failed to clear search row: %w", err)
		}
		_, err = tx.Exec(`
			INSERT INTO track_search (title, artist, album, path, track_id)
			SELECT ?, ?, ?, path, id FROM tracks WHERE id = ?
		`, meta.Title, meta.Artist, meta.Album, meta.TrackID)
		if err != nil {
			return fmt.Errorf("failed to update search row: %w", err)
		}
		return nil
	})
}

// GetTrackMeta returns stored metadata for a track, or nil when absent.
func (s *Store) GetTrackMeta(trackID int64) (*TrackMeta, error) {
	m := &TrackMeta{}
	err := s.db.QueryRow(`
		SELECT track_id, COALESCE(title, ''), COALESCE(artist, ''), COALESCE(album, ''),
		       COALESCE(year, 0), COALESCE(duration_ms, 0), meta_valid, COALESCE(meta_error, '')
		FROM track_meta WHERE track_id = ?
	`, trackID).Scan(&m.TrackID, &m.Title, &m.Artist, &m.Album, &m.Year, &m.DurationMS, &m.Valid, &m.Error)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track meta: %w", err)
	}
	return m, nil
}

// InvalidateTrackMeta marks metadata stale for the given tracks, or for
// all tracks when none are given.
func (s *Store) InvalidateTrackMeta(trackIDs ...int64) error {
	if len(trackIDs) == 0 {
		_, err := s.db.Exec("UPDATE track_meta SET meta_valid = 0")
		if err != nil {
			return fmt.Errorf("failed to invalidate track meta: %w", err)
		}
		return nil
	}

	for _, id := range trackIDs {
		if _, err := s.db.Exec("UPDATE track_meta SET meta_valid = 0 WHERE track_id = ?", id); err != nil {
			return fmt.Errorf("failed to invalidate track meta: %w", err)
		}
	}
	return nil
}
