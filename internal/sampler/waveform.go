package sampler

import (
	"github.com/charmbracelet/log"

	"github.com/franz/trackcache/internal/store"
)

// WaveformReading is one min/max amplitude sample per channel, scaled
// from the stored int8 quantization to [-1, 1].
type WaveformReading struct {
	MinLeft  float64
	MaxLeft  float64
	MinRight float64
	MaxRight float64
	Status   Status
	Source   Source
}

// WaveformService answers waveform-proxy queries cache-first. A miss
// returns a flat (all-zero) reading while analysis runs.
type WaveformService struct {
	frames   provider[store.WaveformFrame]
	schedule ScheduleFunc
	pending  *inflight
}

// NewWaveformService wires the service to a waveform store. schedule may
// be nil.
func NewWaveformService(frames *store.WaveformStore, schedule ScheduleFunc) *WaveformService {
	return &WaveformService{
		frames:   frames,
		schedule: schedule,
		pending:  newInflight(defaultInflightTTL),
	}
}

// Sample returns the waveform extremes at positionMS.
func (s *WaveformService) Sample(trackPath string, positionMS int64, params store.WaveformParams) (WaveformReading, error) {
	fallback := WaveformReading{Status: StatusMissing, Source: SourceFallback}
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
			log.Warn("failed to touch waveform entry", "path", trackPath, "error", err)
		}
		return WaveformReading{
			MinLeft:  float64(frame.MinLeftI8) / 127,
			MaxLeft:  float64(frame.MaxLeftI8) / 127,
			MinRight: float64(frame.MinRightI8) / 127,
			MaxRight: float64(frame.MaxRightI8) / 127,
			Status:   StatusReady,
			Source:   SourceCache,
		}, nil
	}

	if s.schedule == nil {
		return fallback, nil
	}
	if s.pending.tryAcquire(key) {
		s.schedule(trackPath, store.AnalysisWaveform, params)
	}
	fallback.Status = StatusLoading
	return fallback, nil
}
