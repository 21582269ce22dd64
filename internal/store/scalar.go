package store

import "math"

// ScalarAnalysisVersion tags the loudness envelope analyzer. Bumping it
// invalidates all previously cached scalar entries.
const ScalarAnalysisVersion = 1

// ScalarFrame is one loudness envelope sample: normalized stereo levels
// in [0, 1] at a playback position.
type ScalarFrame struct {
	PositionMS int64
	LevelLeft  float64
	LevelRight float64
}

// ScalarStore persists loudness envelope frames.
type ScalarStore = AnalysisStore[ScalarFrame]

// NewScalarStore returns the analysis store for loudness envelopes.
// Envelope levels vary continuously, so retrieval linearly interpolates
// between the two frames bracketing the query position.
func NewScalarStore(s *Store) *ScalarStore {
	return newAnalysisStore(s, AnalysisScalar, ScalarAnalysisVersion, frameCodec[ScalarFrame]{
		table:    "analysis_scalar_frames",
		columns:  []string{"level_left", "level_right"},
		position: func(f ScalarFrame) int64 { return f.PositionMS },
		args: func(f ScalarFrame) []any {
			return []any{f.LevelLeft, f.LevelRight}
		},
		dest: func(f *ScalarFrame) []any {
			return []any{&f.PositionMS, &f.LevelLeft, &f.LevelRight}
		},
		sanitize: func(f ScalarFrame) ScalarFrame {
			f.LevelLeft = clampLevel(f.LevelLeft)
			f.LevelRight = clampLevel(f.LevelRight)
			return f
		},
		frameBytes: func(ScalarFrame) int { return 24 },
		lerp: func(prev, next ScalarFrame, ratio float64) ScalarFrame {
			return ScalarFrame{
				PositionMS: prev.PositionMS + int64(ratio*float64(next.PositionMS-prev.PositionMS)),
				LevelLeft:  clampLevel(prev.LevelLeft + (next.LevelLeft-prev.LevelLeft)*ratio),
				LevelRight: clampLevel(prev.LevelRight + (next.LevelRight-prev.LevelRight)*ratio),
			}
		},
	})
}

// clampLevel normalizes a level into [0, 1], mapping NaN/±Inf to 0 so
// non-finite values are never persisted or returned.
func clampLevel(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
