package sampler

import (
	"github.com/charmbracelet/log"

	"github.com/franz/trackcache/internal/store"
)

// BeatReading is one beat-grid sample. Strength is normalized to [0, 1];
// BPM is the whole-track tempo estimate, 0 when unknown.
type BeatReading struct {
	Strength float64
	IsBeat   bool
	BPM      float64
	Status   Status
	Source   Source
}

// beatProvider extends the frame provider with the entry-level tempo.
type beatProvider interface {
	provider[store.BeatFrame]
	BPM(path string, params store.BeatParams) (float64, bool, error)
}

// BeatService answers beat-grid queries cache-first. Retrieval is
// nearest-neighbor: onset flags must not be smeared across frames, so
// there is no interpolation.
type BeatService struct {
	frames   beatProvider
	schedule ScheduleFunc
	pending  *inflight
}

// NewBeatService wires the service to a beat store. schedule may be nil.
func NewBeatService(frames *store.BeatStore, schedule ScheduleFunc) *BeatService {
	return &BeatService{
		frames:   frames,
		schedule: schedule,
		pending:  newInflight(defaultInflightTTL),
	}
}

// Sample returns the beat state at positionMS, falling back to a quiet
// no-beat reading on a miss.
func (s *BeatService) Sample(trackPath string, positionMS int64, params store.BeatParams) (BeatReading, error) {
	fallback := BeatReading{Status: StatusMissing, Source: SourceFallback}
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
			log.Warn("failed to touch beat entry", "path", trackPath, "error", err)
		}

		bpm, _, err := s.frames.BPM(trackPath, params)
		if err != nil {
			return fallback, err
		}
		return BeatReading{
			Strength: float64(frame.StrengthU8) / 255,
			IsBeat:   frame.IsBeat,
			BPM:      bpm,
			Status:   StatusReady,
			Source:   SourceCache,
		}, nil
	}

	if s.schedule == nil {
		return fallback, nil
	}
	if s.pending.tryAcquire(key) {
		s.schedule(trackPath, store.AnalysisBeat, params)
	}
	fallback.Status = StatusLoading
	return fallback, nil
}
