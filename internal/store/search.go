package store

import (
	"fmt"
	"strings"
)

// SearchResult is one full-text match over playlist entries.
type SearchResult struct {
	TrackID int64
	Path    string
	Title   string
	Artist  string
	Album   string
}

// SearchTracks runs a full-text query over track titles, artists, albums
// and paths. The query is quoted per term, so user input cannot inject
// FTS syntax.
func (s *Store) SearchTracks(query string, limit int) ([]SearchResult, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + strings.ReplaceAll(term, `"`, `""`) + `"`
	}
	match := strings.Join(quoted, " ")

	rows, err := s.db.Query(`
		SELECT track_id, path, title, artist, album
		FROM track_search
		WHERE track_search MATCH ?
		ORDER BY rank
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.TrackID, &r.Path, &r.Title, &r.Artist, &r.Album); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
