package store

// WaveformAnalysisVersion tags the waveform min/max proxy analyzer.
const WaveformAnalysisVersion = 1

// WaveformFrame is one waveform proxy sample: signed 8-bit min/max
// channel envelopes for a time bucket.
type WaveformFrame struct {
	PositionMS int64
	MinLeftI8  int8
	MaxLeftI8  int8
	MinRightI8 int8
	MaxRightI8 int8
}

// WaveformStore persists waveform proxy frames.
type WaveformStore = AnalysisStore[WaveformFrame]

// NewWaveformStore returns the analysis store for waveform proxies.
// Proxy buckets are discrete snapshots, so retrieval is nearest-neighbor
// like beat and spectrum frames.
func NewWaveformStore(s *Store) *WaveformStore {
	return newAnalysisStore(s, AnalysisWaveform, WaveformAnalysisVersion, frameCodec[WaveformFrame]{
		table:    "analysis_waveform_frames",
		columns:  []string{"min_left_i8", "max_left_i8", "min_right_i8", "max_right_i8"},
		position: func(f WaveformFrame) int64 { return f.PositionMS },
		args: func(f WaveformFrame) []any {
			return []any{f.MinLeftI8, f.MaxLeftI8, f.MinRightI8, f.MaxRightI8}
		},
		dest: func(f *WaveformFrame) []any {
			return []any{&f.PositionMS, &f.MinLeftI8, &f.MaxLeftI8, &f.MinRightI8, &f.MaxRightI8}
		},
		sanitize:   func(f WaveformFrame) WaveformFrame { return f },
		frameBytes: func(WaveformFrame) int { return 12 },
	})
}
