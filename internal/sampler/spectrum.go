package sampler

import (
	"github.com/charmbracelet/log"

	"github.com/franz/trackcache/internal/store"
)

// SpectrumReading is one spectral sample: quantized band magnitudes,
// 0..255 per band, params.BandCount bands.
type SpectrumReading struct {
	Bands  []byte
	Status Status
	Source Source
}

// SpectrumService answers spectral-band queries cache-first. On a miss
// the reading carries zeroed bands sized to the requested band count, so
// visualizers can render a flat spectrum without special-casing.
type SpectrumService struct {
	frames   provider[store.SpectrumFrame]
	schedule ScheduleFunc
	pending  *inflight
}

// NewSpectrumService wires the service to a spectrum store. schedule may
// be nil.
func NewSpectrumService(frames *store.SpectrumStore, schedule ScheduleFunc) *SpectrumService {
	return &SpectrumService{
		frames:   frames,
		schedule: schedule,
		pending:  newInflight(defaultInflightTTL),
	}
}

// Sample returns the band magnitudes at positionMS, or zeroed bands on a
// miss.
func (s *SpectrumService) Sample(trackPath string, positionMS int64, params store.SpectrumParams) (SpectrumReading, error) {
	bands := params.BandCount
	if bands <= 0 {
		bands = store.DefaultSpectrumParams().BandCount
	}
	fallback := SpectrumReading{
		Bands:  make([]byte, bands),
		Status: StatusMissing,
		Source: SourceFallback,
	}
	if trackPath == "" {
		return fallback, nil
	}

	key, err := requestKey(trackPath, params)
	if err != nil {
		return fallback, err
	}

	frame, ok, err := s.frames.FrameAt(trackPath, positionMS, params)
	if err != nil {
		return fallback, err
	}
	if ok {
		s.pending.clear(key)
		if err := s.frames.TouchAccess(trackPath, params); err != nil {
			log.Warn("failed to touch spectrum entry", "path", trackPath, "error", err)
		}
		return SpectrumReading{
			Bands:  frame.Bands,
			Status: StatusReady,
			Source: SourceCache,
		}, nil
	}

	if s.schedule == nil {
		return fallback, nil
	}
	if s.pending.tryAcquire(key) {
		s.schedule(trackPath, store.AnalysisSpectrum, params)
	}
	fallback.Status = StatusLoading
	return fallback, nil
}
