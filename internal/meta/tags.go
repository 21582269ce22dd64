// Package meta extracts display metadata from audio file tags for the
// playlist view. Extraction failures are recorded on the track rather
// than returned: a track with broken tags still plays, it just shows
// its filename.
package meta

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/franz/trackcache/internal/store"
)

// Extract reads the tags of one audio file. The returned TrackMeta has
// Valid=false and Error set when the file cannot be opened or carries no
// readable tags; Title then falls back to the filename stem.
func Extract(path string) store.TrackMeta {
	m := store.TrackMeta{Title: titleFromFilename(path)}

	f, err := os.Open(path)
	if err != nil {
		m.Error = fmt.Sprintf("failed to open file: %v", err)
		return m
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		m.Error = fmt.Sprintf("failed to read tags: %v", err)
		return m
	}

	if title := strings.TrimSpace(tags.Title()); title != "" {
		m.Title = title
	}
	m.Artist = strings.TrimSpace(tags.Artist())
	m.Album = strings.TrimSpace(tags.Album())
	m.Year = tags.Year()
	m.Valid = true
	return m
}

// titleFromFilename derives a display title from the file name with the
// extension stripped.
func titleFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// AudioExtensions are the file types the scanner registers.
var AudioExtensions = map[string]bool{
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".m4a":  true,
	".mp4":  true,
	".wav":  true,
	".aiff": true,
	".aif":  true,
}

// IsAudioFile reports whether the path has a supported audio extension.
func IsAudioFile(path string) bool {
	return AudioExtensions[strings.ToLower(filepath.Ext(path))]
}
