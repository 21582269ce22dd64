package sampler

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/franz/trackcache/internal/store"
)

// LevelReading is one loudness sample for the playback visualizer.
// Levels are in [0, 1] per channel.
type LevelReading struct {
	Left   float64
	Right  float64
	Status Status
	Source Source
}

// LevelService answers loudness queries cache-first. Between stored
// buckets the level is linearly interpolated by the store; on a miss the
// reading is silent (0, 0) while analysis runs in the background.
type LevelService struct {
	frames   provider[store.ScalarFrame]
	schedule ScheduleFunc
	pending  *inflight

	statsMu   sync.Mutex
	hits      int64
	misses    int64
	lastStats time.Time
}

// NewLevelService wires the service to a scalar store. schedule may be
// nil, in which case misses report StatusMissing and nothing is queued.
func NewLevelService(frames *store.ScalarStore, schedule ScheduleFunc) *LevelService {
	return &LevelService{
		frames:    frames,
		schedule:  schedule,
		pending:   newInflight(defaultInflightTTL),
		lastStats: time.Now(),
	}
}

// Sample returns the loudness at positionMS. Never blocks on analysis:
// a miss returns a silent fallback immediately.
func (s *LevelService) Sample(trackPath string, positionMS int64, params store.ScalarParams) (LevelReading, error) {
	fallback := LevelReading{Status: StatusMissing, Source: SourceFallback}
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
		s.recordHit()
		if err := s.frames.TouchAccess(trackPath, params); err != nil {
			log.Warn("failed to touch level entry", "path", trackPath, "error", err)
		}
		return LevelReading{
			Left:   frame.LevelLeft,
			Right:  frame.LevelRight,
			Status: StatusReady,
			Source: SourceCache,
		}, nil
	}

	s.recordMiss()
	if s.schedule == nil {
		return fallback, nil
	}
	if s.pending.tryAcquire(key) {
		s.schedule(trackPath, store.AnalysisScalar, params)
	}
	fallback.Status = StatusLoading
	return fallback, nil
}

const statsLogInterval = 30 * time.Second

func (s *LevelService) recordHit()  { s.recordSample(true) }
func (s *LevelService) recordMiss() { s.recordSample(false) }

func (s *LevelService) recordSample(hit bool) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	if hit {
		s.hits++
	} else {
		s.misses++
	}

	now := time.Now()
	if now.Sub(s.lastStats) < statsLogInterval {
		return
	}
	log.Debug("level sampler stats", "hits", s.hits, "misses", s.misses)
	s.hits, s.misses = 0, 0
	s.lastStats = now
}
