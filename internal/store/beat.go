package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// BeatAnalysisVersion tags the beat/onset analyzer.
const BeatAnalysisVersion = 2

// BeatFrame is one beat-analysis snapshot: onset strength and whether
// the frame lands on a detected beat.
type BeatFrame struct {
	PositionMS int64
	StrengthU8 uint8
	IsBeat     bool
}

// BeatStore persists beat frames plus one whole-track bpm estimate per
// entry. Frames are discrete analysis snapshots, so retrieval picks the
// nearest frame by time, never interpolating between unrelated beats.
type BeatStore struct {
	*AnalysisStore[BeatFrame]
}

// NewBeatStore returns the analysis store for beat timelines.
func NewBeatStore(s *Store) *BeatStore {
	return &BeatStore{
		AnalysisStore: newAnalysisStore(s, AnalysisBeat, BeatAnalysisVersion, frameCodec[BeatFrame]{
			table:    "analysis_beat_frames",
			columns:  []string{"strength_u8", "is_beat"},
			position: func(f BeatFrame) int64 { return f.PositionMS },
			args: func(f BeatFrame) []any {
				return []any{f.StrengthU8, f.IsBeat}
			},
			dest: func(f *BeatFrame) []any {
				return []any{&f.PositionMS, &f.StrengthU8, &f.IsBeat}
			},
			sanitize:   func(f BeatFrame) BeatFrame { return f },
			frameBytes: func(BeatFrame) int { return 16 },
		}),
	}
}

// UpsertBeats replaces the cached beat timeline along with the track's
// bpm estimate, stored once on the entry rather than per frame.
func (b *BeatStore) UpsertBeats(path string, durationMS int64, params BeatParams, bpm float64, frames []BeatFrame) error {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) || bpm < 0 {
		bpm = 0
	}
	return b.upsert(path, durationMS, params, bpm, frames)
}

// BPM returns the whole-track tempo estimate for a cached entry, or
// ok=false on a cache miss.
func (b *BeatStore) BPM(path string, params BeatParams) (float64, bool, error) {
	entryID, err := b.lookupEntry(path, params)
	if err != nil || entryID == 0 {
		return 0, false, err
	}

	var bpm float64
	row := b.store.db.QueryRow("SELECT bpm FROM analysis_cache_entries WHERE id = ?", entryID)
	switch err := row.Scan(&bpm); {
	case err == nil:
		return bpm, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("failed to read bpm: %w", err)
	}
}
