package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// posKeyStep is the spacing between playlist position keys. Sparse keys
// let single-item moves update one row instead of renumbering the list.
const posKeyStep = 10_000

// Playlist is one named playlist.
type Playlist struct {
	ID   int64
	Name string
}

// PlaylistRow is one playlist entry joined with its track and metadata.
type PlaylistRow struct {
	TrackID    int64
	PosKey     int64
	Path       string
	Title      string
	Artist     string
	Album      string
	Year       int
	DurationMS int64
}

// EnsurePlaylist returns the id of the named playlist, creating it if
// needed.
func (s *Store) EnsurePlaylist(name string) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM playlists WHERE name = ? LIMIT 1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up playlist: %w", err)
	}

	result, err := s.db.Exec("INSERT INTO playlists (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create playlist: %w", err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get playlist ID: %w", err)
	}
	return id, nil
}

// Playlists lists all playlists ordered by name.
func (s *Store) Playlists() ([]Playlist, error) {
	rows, err := s.db.Query("SELECT id, name FROM playlists ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []Playlist
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// AddTracks appends the given paths to a playlist, registering unknown
// tracks on the way, and returns how many items were added.
func (s *Store) AddTracks(playlistID int64, paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}

	added := 0
	err := s.Transaction(func(tx *sql.Tx) error {
		var nextPos int64
		err := tx.QueryRow(
			"SELECT COALESCE(MAX(pos_key), 0) FROM playlist_items WHERE playlist_id = ?",
			playlistID).Scan(&nextPos)
		if err != nil {
			return fmt.Errorf("failed to get max pos_key: %w", err)
		}
		nextPos += posKeyStep

		for _, path := range paths {
			pathNorm := NormalizePath(path)
			_, err := tx.Exec(`
				INSERT OR IGNORE INTO tracks (path, path_norm) VALUES (?, ?)
			`, path, pathNorm)
			if err != nil {
				return fmt.Errorf("failed to insert track: %w", err)
			}

			var trackID int64
			err = tx.QueryRow("SELECT id FROM tracks WHERE path_norm = ?", pathNorm).Scan(&trackID)
			if err != nil {
				return fmt.Errorf("failed to get track ID: %w", err)
			}

			_, err = tx.Exec(`
				INSERT INTO playlist_items (playlist_id, track_id, pos_key) VALUES (?, ?, ?)
			`, playlistID, trackID, nextPos)
			if err != nil {
				return fmt.Errorf("failed to insert playlist item: %w", err)
			}
			nextPos += posKeyStep
			added++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// RemoveTracks removes the given tracks from a playlist. Analysis cache
// entries are keyed by file identity and are never touched by playlist
// membership changes.
func (s *Store) RemoveTracks(playlistID int64, trackIDs []int64) (int, error) {
	if len(trackIDs) == 0 {
		return 0, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(trackIDs)), ", ")
	args := make([]any, 0, len(trackIDs)+1)
	args = append(args, playlistID)
	for _, id := range trackIDs {
		args = append(args, id)
	}

	result, err := s.db.Exec(fmt.Sprintf(`
		DELETE FROM playlist_items
		WHERE playlist_id = ? AND track_id IN (%s)
	`, placeholders), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to remove playlist items: %w", err)
	}
	removed, _ := result.RowsAffected()
	return int(removed), nil
}

// ClearPlaylist removes all items from a playlist. Track rows and any
// cached analysis for them remain untouched.
func (s *Store) ClearPlaylist(playlistID int64) error {
	_, err := s.db.Exec("DELETE FROM playlist_items WHERE playlist_id = ?", playlistID)
	if err != nil {
		return fmt.Errorf("failed to clear playlist: %w", err)
	}
	return nil
}

// CountItems returns the number of items in a playlist.
func (s *Store) CountItems(playlistID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM playlist_items WHERE playlist_id = ?", playlistID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count playlist items: %w", err)
	}
	return count, nil
}

// FetchWindow returns one page of playlist rows ordered by position.
func (s *Store) FetchWindow(playlistID int64, offset, limit int) ([]PlaylistRow, error) {
	rows, err := s.db.Query(`
		SELECT
			playlist_items.track_id,
			playlist_items.pos_key,
			tracks.path,
			COALESCE(track_meta.title, ''),
			COALESCE(track_meta.artist, ''),
			COALESCE(track_meta.album, ''),
			COALESCE(track_meta.year, 0),
			COALESCE(track_meta.duration_ms, 0)
		FROM playlist_items
		JOIN tracks ON tracks.id = playlist_items.track_id
		LEFT JOIN track_meta ON track_meta.track_id = tracks.id
		WHERE playlist_items.playlist_id = ?
		ORDER BY playlist_items.pos_key
		LIMIT ? OFFSET ?
	`, playlistID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist window: %w", err)
	}
	defer rows.Close()

	var items []PlaylistRow
	for rows.Next() {
		var r PlaylistRow
		err := rows.Scan(&r.TrackID, &r.PosKey, &r.Path, &r.Title, &r.Artist, &r.Album, &r.Year, &r.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist row: %w", err)
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

// NextTrackID returns the track after the given one in playlist order,
// wrapping to the first when wrap is set. Returns 0 when there is no
// successor.
func (s *Store) NextTrackID(playlistID, trackID int64, wrap bool) (int64, error) {
	return s.adjacentTrackID(playlistID, trackID, wrap, true)
}

// PrevTrackID returns the track before the given one in playlist order,
// wrapping to the last when wrap is set. Returns 0 when there is no
// predecessor.
func (s *Store) PrevTrackID(playlistID, trackID int64, wrap bool) (int64, error) {
	return s.adjacentTrackID(playlistID, trackID, wrap, false)
}

func (s *Store) adjacentTrackID(playlistID, trackID int64, wrap, forward bool) (int64, error) {
	var posKey int64
	err := s.db.QueryRow(`
		SELECT pos_key FROM playlist_items
		WHERE playlist_id = ? AND track_id = ?
	`, playlistID, trackID).Scan(&posKey)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get pos_key: %w", err)
	}

	cmp, order := "<", "DESC"
	if forward {
		cmp, order = ">", "ASC"
	}

	var next int64
	err = s.db.QueryRow(fmt.Sprintf(`
		SELECT track_id FROM playlist_items
		WHERE playlist_id = ? AND pos_key %s ?
		ORDER BY pos_key %s LIMIT 1
	`, cmp, order), playlistID, posKey).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get adjacent track: %w", err)
	}

	if !wrap {
		return 0, nil
	}

	err = s.db.QueryRow(fmt.Sprintf(`
		SELECT track_id FROM playlist_items
		WHERE playlist_id = ?
		ORDER BY pos_key %s LIMIT 1
	`, order), playlistID).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to wrap playlist: %w", err)
	}
	return next, nil
}

// Renumber rewrites a playlist's position keys back to even spacing.
func (s *Store) Renumber(playlistID int64) error {
	return s.Transaction(func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id FROM playlist_items
			WHERE playlist_id = ?
			ORDER BY pos_key
		`, playlistID)
		if err != nil {
			return fmt.Errorf("failed to query playlist items: %w", err)
		}

		var itemIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan playlist item: %w", err)
			}
			itemIDs = append(itemIDs, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		rows.Close()

		nextPos := int64(posKeyStep)
		for _, id := range itemIDs {
			if _, err := tx.Exec("UPDATE playlist_items SET pos_key = ? WHERE id = ?", nextPos, id); err != nil {
				return fmt.Errorf("failed to renumber playlist item: %w", err)
			}
			nextPos += posKeyStep
		}
		return nil
	})
}
