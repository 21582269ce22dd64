// Package sampler provides cache-first read services over the analysis
// stores. Each service answers position queries from the cache when a
// usable entry exists, and otherwise returns a neutral fallback payload
// immediately while requesting analysis through an injected scheduler.
// The playback hot path never blocks on analysis.
package sampler

import (
	"sync"
	"time"

	"github.com/franz/trackcache/internal/store"
)

// Status reports how a sample request was resolved.
type Status string

const (
	// StatusReady means a usable cache entry answered the request.
	StatusReady Status = "ready"
	// StatusLoading means analysis has been scheduled and the payload
	// is a fallback until it completes.
	StatusLoading Status = "loading"
	// StatusMissing means no cache entry exists and no scheduler is
	// wired, so the fallback is all the caller will ever get.
	StatusMissing Status = "missing"
)

// Source reports where a sample's payload came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceFallback Source = "fallback"
)

// ScheduleFunc requests out-of-band analysis of a track. Implementations
// must not block; the sampler calls it from the playback read path.
type ScheduleFunc func(trackPath string, analysisType store.AnalysisType, params any)

// provider is the slice of AnalysisStore each service needs. Declared
// here so tests can substitute a fake store.
type provider[F any] interface {
	FrameAt(path string, positionMS int64, params any) (F, bool, error)
	TouchAccess(path string, params any) error
}

const defaultInflightTTL = 2 * time.Minute

// inflight de-duplicates analysis requests per (path, params) while one
// is pending. Markers expire so a crashed or failed analysis does not
// suppress rescheduling forever; a cache hit clears the marker early.
type inflight struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]time.Time
}

func newInflight(ttl time.Duration) *inflight {
	return &inflight{ttl: ttl, pending: make(map[string]time.Time)}
}

// tryAcquire marks the key as pending and reports whether the caller
// should schedule analysis. Returns false while a fresh marker exists.
func (f *inflight) tryAcquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	if at, ok := f.pending[key]; ok && now.Sub(at) < f.ttl {
		return false
	}
	f.pending[key] = now
	return true
}

// clear removes a pending marker, typically after the analysis landed in
// the cache.
func (f *inflight) clear(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.pending, key)
}

// requestKey builds the de-duplication key for one track and parameter
// set. It uses the same normalization and hashing as cache entries, so
// equivalent spellings of a path collapse to one in-flight request.
func requestKey(trackPath string, params any) (string, error) {
	_, paramsHash, err := store.HashParams(params)
	if err != nil {
		return "", err
	}
	return store.NormalizePath(trackPath) + "|" + paramsHash, nil
}
