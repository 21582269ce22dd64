package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// AnalysisType names one cached feature kind. Each type owns its own
// frame table; all types share the analysis_cache_entries table.
type AnalysisType string

const (
	AnalysisScalar   AnalysisType = "scalar"
	AnalysisBeat     AnalysisType = "beat"
	AnalysisSpectrum AnalysisType = "spectrum"
	AnalysisWaveform AnalysisType = "waveform_proxy"
)

// frameCodec describes how one feature kind persists and samples its
// frames: payload columns, field binding, write-time sanitization, byte
// accounting and the retrieval policy. A nil lerp selects
// nearest-neighbor retrieval; a non-nil lerp selects linear
// interpolation with edge clamping.
type frameCodec[F any] struct {
	table      string
	columns    []string
	position   func(F) int64
	args       func(F) []any
	dest       func(*F) []any
	sanitize   func(F) F
	frameBytes func(F) int
	lerp       func(prev, next F, ratio float64) F
}

// AnalysisStore persists one feature kind's time series keyed by
// (analysis_type, normalized path, params hash) and guarded by a file
// fingerprint. One instance exists per analysis type; all share the
// Store's database handle.
type AnalysisStore[F any] struct {
	store   *Store
	retry   *RetryConfig
	typ     AnalysisType
	version int
	codec   frameCodec[F]
	touch   *touchThrottle
}

func newAnalysisStore[F any](s *Store, typ AnalysisType, version int, codec frameCodec[F]) *AnalysisStore[F] {
	return &AnalysisStore[F]{
		store:   s,
		retry:   DefaultRetryConfig(),
		typ:     typ,
		version: version,
		codec:   codec,
		touch:   newTouchThrottle(defaultTouchInterval, defaultTouchCapacity),
	}
}

// Type returns the analysis type this store persists.
func (a *AnalysisStore[F]) Type() AnalysisType { return a.typ }

// Upsert atomically replaces any cached entry for (type, path, params)
// with the given frames. The prior entry and its frames are deleted and
// re-inserted inside one transaction, so concurrent readers see either
// the fully-old or fully-new entry. Frames must be strictly increasing
// by position; payload values are sanitized before storage.
func (a *AnalysisStore[F]) Upsert(path string, durationMS int64, params any, frames []F) error {
	return a.upsert(path, durationMS, params, 0, frames)
}

func (a *AnalysisStore[F]) upsert(path string, durationMS int64, params any, bpm float64, frames []F) error {
	fp, err := FingerprintPath(path)
	if err != nil {
		return fmt.Errorf("failed to fingerprint %s: %w", path, err)
	}
	paramsJSON, paramsHash, err := HashParams(params)
	if err != nil {
		return err
	}

	sanitized := make([]F, len(frames))
	byteSize := 0
	lastPos := int64(-1)
	for i, frame := range frames {
		pos := a.codec.position(frame)
		if pos < 0 {
			return fmt.Errorf("frame %d has negative position %d", i, pos)
		}
		if pos <= lastPos {
			return fmt.Errorf("frame positions must be strictly increasing: frame %d at %dms after %dms", i, pos, lastPos)
		}
		lastPos = pos
		sanitized[i] = a.codec.sanitize(frame)
		byteSize += a.codec.frameBytes(sanitized[i])
	}

	if durationMS < 1 {
		durationMS = 1
	}

	return LockRetry(a.retry, fmt.Sprintf("upsert %s", a.typ), func() error {
		return a.store.Transaction(func(tx *sql.Tx) error {
			// Replacement is delete-then-insert: ON DELETE CASCADE
			// removes the prior entry's frames with it.
			_, err := tx.Exec(`
				DELETE FROM analysis_cache_entries
				WHERE analysis_type = ? AND path_norm = ? AND params_hash = ?
			`, a.typ, fp.PathNorm, paramsHash)
			if err != nil {
				return fmt.Errorf("failed to delete prior entry: %w", err)
			}

			result, err := tx.Exec(`
				INSERT INTO analysis_cache_entries (
					analysis_type, path_norm, mtime_ns, size_bytes,
					analysis_version, params_hash, params_json,
					duration_ms, frame_count, byte_size, bpm,
					computed_at, last_accessed_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, strftime('%s','now'), strftime('%s','now'))
			`, a.typ, fp.PathNorm, fp.MtimeNS, fp.SizeBytes,
				a.version, paramsHash, paramsJSON,
				durationMS, len(sanitized), byteSize, bpm)
			if err != nil {
				return fmt.Errorf("failed to insert entry: %w", err)
			}
			entryID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get entry ID: %w", err)
			}

			insertSQL := fmt.Sprintf(
				"INSERT INTO %s (entry_id, position_ms, %s) VALUES (?, ?%s)",
				a.codec.table,
				strings.Join(a.codec.columns, ", "),
				strings.Repeat(", ?", len(a.codec.columns)),
			)
			stmt, err := tx.Prepare(insertSQL)
			if err != nil {
				return fmt.Errorf("failed to prepare frame insert: %w", err)
			}
			defer stmt.Close()

			for _, frame := range sanitized {
				args := append([]any{entryID, a.codec.position(frame)}, a.codec.args(frame)...)
				if _, err := stmt.Exec(args...); err != nil {
					return fmt.Errorf("failed to insert frame: %w", err)
				}
			}
			return nil
		})
	})
}

// Has reports whether a usable entry exists: stored fingerprint equal to
// the path's live fingerprint, matching params and analysis version, and
// at least one frame.
func (a *AnalysisStore[F]) Has(path string, params any) (bool, error) {
	entryID, err := a.lookupEntry(path, params)
	if err != nil {
		return false, err
	}
	return entryID != 0, nil
}

// FrameAt samples the cached time series at positionMS. It returns
// ok=false when no entry matches the live fingerprint and params, or
// when the entry has zero frames. A miss is not an error.
//
// FrameAt is a pure read: it never updates last_accessed_at. Liveness is
// recorded only through TouchAccess, which the consuming service calls
// on each hit.
func (a *AnalysisStore[F]) FrameAt(path string, positionMS int64, params any) (F, bool, error) {
	var zero F

	entryID, err := a.lookupEntry(path, params)
	if err != nil || entryID == 0 {
		return zero, false, err
	}

	if positionMS < 0 {
		positionMS = 0
	}

	cols := "position_ms, " + strings.Join(a.codec.columns, ", ")

	var prev, next F
	var hasPrev, hasNext bool

	prevRow := a.store.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE entry_id = ? AND position_ms <= ?
		ORDER BY position_ms DESC LIMIT 1
	`, cols, a.codec.table), entryID, positionMS)
	switch err := prevRow.Scan(a.codec.dest(&prev)...); {
	case err == nil:
		hasPrev = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return zero, false, fmt.Errorf("failed to scan frame: %w", err)
	}

	nextRow := a.store.db.QueryRow(fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE entry_id = ? AND position_ms >= ?
		ORDER BY position_ms ASC LIMIT 1
	`, cols, a.codec.table), entryID, positionMS)
	switch err := nextRow.Scan(a.codec.dest(&next)...); {
	case err == nil:
		hasNext = true
	case errors.Is(err, sql.ErrNoRows):
	default:
		return zero, false, fmt.Errorf("failed to scan frame: %w", err)
	}

	if !hasPrev && !hasNext {
		return zero, false, nil
	}

	// Edge clamp: out-of-range queries resolve to the nearest stored
	// frame under both policies, never extrapolated.
	if !hasPrev {
		return next, true, nil
	}
	if !hasNext {
		return prev, true, nil
	}

	prevPos := a.codec.position(prev)
	nextPos := a.codec.position(next)
	if prevPos == nextPos {
		return prev, true, nil
	}

	if a.codec.lerp != nil {
		ratio := float64(positionMS-prevPos) / float64(nextPos-prevPos)
		return a.codec.lerp(prev, next, ratio), true, nil
	}

	// Nearest by absolute distance, ties toward the earlier frame.
	if positionMS-prevPos <= nextPos-positionMS {
		return prev, true, nil
	}
	return next, true, nil
}

// TouchAccess records cache liveness for the pruner's recency ordering.
// Repeated touches for the same entry within the throttle interval are
// coalesced into a single write.
func (a *AnalysisStore[F]) TouchAccess(path string, params any) error {
	entryID, err := a.lookupEntry(path, params)
	if err != nil || entryID == 0 {
		return err
	}

	if !a.touch.due(entryID, time.Now()) {
		return nil
	}

	return LockRetry(a.retry, fmt.Sprintf("touch %s", a.typ), func() error {
		_, err := a.store.db.Exec(
			"UPDATE analysis_cache_entries SET last_accessed_at = strftime('%s','now') WHERE id = ?",
			entryID)
		if err != nil {
			return fmt.Errorf("failed to touch entry: %w", err)
		}
		return nil
	})
}

// lookupEntry resolves the entry id for (type, live fingerprint, params),
// requiring the store's analysis version and at least one frame. Returns
// 0 when no usable entry exists.
func (a *AnalysisStore[F]) lookupEntry(path string, params any) (int64, error) {
	fp, err := FingerprintPath(path)
	if err != nil {
		// A vanished file has no fingerprint: every entry is stale.
		return 0, nil
	}
	_, paramsHash, err := HashParams(params)
	if err != nil {
		return 0, err
	}

	var entryID int64
	row := a.store.db.QueryRow(`
		SELECT id FROM analysis_cache_entries
		WHERE analysis_type = ?
		  AND path_norm = ?
		  AND params_hash = ?
		  AND analysis_version = ?
		  AND mtime_ns = ?
		  AND size_bytes = ?
		  AND frame_count > 0
		LIMIT 1
	`, a.typ, fp.PathNorm, paramsHash, a.version, fp.MtimeNS, fp.SizeBytes)
	switch err := row.Scan(&entryID); {
	case err == nil:
		return entryID, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to look up entry: %w", err)
	}
}

const (
	defaultTouchInterval = 30 * time.Second
	defaultTouchCapacity = 1024
)

// touchThrottle coalesces repeated access touches per entry. It is owned
// by one store instance and bounded: when the map exceeds capacity the
// stalest timestamps are dropped, which at worst causes one extra write.
type touchThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	capacity int
	seen     map[int64]time.Time
}

func newTouchThrottle(interval time.Duration, capacity int) *touchThrottle {
	return &touchThrottle{
		interval: interval,
		capacity: capacity,
		seen:     make(map[int64]time.Time),
	}
}

// due reports whether a write-through touch is due for the entry and, if
// so, records it.
func (t *touchThrottle) due(entryID int64, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.seen[entryID]; ok && now.Sub(last) < t.interval {
		return false
	}

	if len(t.seen) >= t.capacity {
		t.evictStale(now)
	}
	t.seen[entryID] = now
	return true
}

func (t *touchThrottle) evictStale(now time.Time) {
	for id, last := range t.seen {
		if now.Sub(last) >= t.interval {
			delete(t.seen, id)
		}
	}
	// Everything is fresh: drop the map rather than grow unbounded.
	if len(t.seen) >= t.capacity {
		t.seen = make(map[int64]time.Time)
	}
}
