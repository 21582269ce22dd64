package store

// SpectrumAnalysisVersion tags the spectral-band analyzer.
const SpectrumAnalysisVersion = 1

// SpectrumFrame is one spectral snapshot: one magnitude byte per band.
// The band count is fixed by the entry's params.
type SpectrumFrame struct {
	PositionMS int64
	Bands      []byte
}

// SpectrumStore persists quantized spectrum frames. Retrieval is
// nearest-neighbor: interpolating between unrelated spectral frames
// would fabricate frequency content that was never analyzed.
type SpectrumStore struct {
	*AnalysisStore[SpectrumFrame]
}

// NewSpectrumStore returns the analysis store for spectrum timelines.
func NewSpectrumStore(s *Store) *SpectrumStore {
	return &SpectrumStore{
		AnalysisStore: newAnalysisStore(s, AnalysisSpectrum, SpectrumAnalysisVersion, frameCodec[SpectrumFrame]{
			table:    "analysis_spectrum_frames",
			columns:  []string{"bands"},
			position: func(f SpectrumFrame) int64 { return f.PositionMS },
			args: func(f SpectrumFrame) []any {
				return []any{f.Bands}
			},
			dest: func(f *SpectrumFrame) []any {
				return []any{&f.PositionMS, &f.Bands}
			},
			sanitize:   func(f SpectrumFrame) SpectrumFrame { return f },
			frameBytes: func(f SpectrumFrame) int { return 8 + len(f.Bands) },
		}),
	}
}

// UpsertSpectrum replaces the cached spectrum timeline, normalizing each
// frame's band payload to exactly params.BandCount bytes (truncating or
// zero-padding) so readers can rely on a fixed width.
func (s *SpectrumStore) UpsertSpectrum(path string, durationMS int64, params SpectrumParams, frames []SpectrumFrame) error {
	normalized := make([]SpectrumFrame, len(frames))
	for i, frame := range frames {
		normalized[i] = SpectrumFrame{
			PositionMS: frame.PositionMS,
			Bands:      normalizeBands(frame.Bands, params.BandCount),
		}
	}
	return s.Upsert(path, durationMS, params, normalized)
}

func normalizeBands(raw []byte, bandCount int) []byte {
	if bandCount <= 0 {
		bandCount = defaultBandCount
	}
	bands := make([]byte, bandCount)
	copy(bands, raw)
	return bands
}
