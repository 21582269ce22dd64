package store

import (
	"database/sql"
	"fmt"

	"github.com/charmbracelet/log"
)

// PruneResult summarizes one prune run across all analysis types.
type PruneResult struct {
	EntriesPruned int
	BytesBefore   int64
	BytesAfter    int64
}

// BytesReclaimed returns how many payload bytes the run freed.
func (r PruneResult) BytesReclaimed() int64 {
	if r.BytesBefore <= r.BytesAfter {
		return 0
	}
	return r.BytesBefore - r.BytesAfter
}

// Pruner enforces the age ceiling and total-size cap over the shared
// analysis cache entry table. Protection of recently accessed entries is
// global across analysis types, not per type.
type Pruner struct {
	store *Store
	retry *RetryConfig
}

// NewPruner returns a pruner over the shared entry table.
func NewPruner(s *Store) *Pruner {
	return &Pruner{store: s, retry: DefaultRetryConfig()}
}

// TotalCacheBytes sums byte_size over all cached entries.
func (p *Pruner) TotalCacheBytes() (int64, error) {
	var total int64
	err := p.store.db.QueryRow(
		"SELECT COALESCE(SUM(byte_size), 0) FROM analysis_cache_entries",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cache bytes: %w", err)
	}
	return total, nil
}

// ExceedsThreshold is the cheap pre-check callers use to decide whether
// a full prune is worth running: true iff current total bytes reach
// maxCacheBytes * threshold. A zero or negative cap means "no limit".
func (p *Pruner) ExceedsThreshold(maxCacheBytes int64, threshold float64) (bool, error) {
	if maxCacheBytes <= 0 {
		return false, nil
	}
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 1 {
		threshold = 1
	}

	total, err := p.TotalCacheBytes()
	if err != nil {
		return false, err
	}
	return total >= int64(float64(maxCacheBytes)*threshold), nil
}

// Prune deletes entries older than maxAgeDays, then evicts
// least-recently-used entries until total bytes fit under maxCacheBytes.
// The minRecentProtected most-recently-accessed entries survive both
// passes regardless of age or size. The whole run executes in one
// transaction: a failure rolls back fully, never leaving a partial
// eviction behind.
func (p *Pruner) Prune(maxCacheBytes int64, maxAgeDays int, minRecentProtected int) (PruneResult, error) {
	if maxCacheBytes < 0 {
		maxCacheBytes = 0
	}
	if maxAgeDays < 1 {
		maxAgeDays = 1
	}
	if minRecentProtected < 0 {
		minRecentProtected = 0
	}

	res, err := WithLockRetry(p.retry, "prune analysis cache", func() (PruneResult, error) {
		return p.pruneOnce(maxCacheBytes, maxAgeDays, minRecentProtected)
	})
	if err != nil {
		return PruneResult{}, err
	}

	log.Info("analysis cache pruned",
		"entries_pruned", res.EntriesPruned,
		"bytes_before", res.BytesBefore,
		"bytes_after", res.BytesAfter)
	return res, nil
}

func (p *Pruner) pruneOnce(maxCacheBytes int64, maxAgeDays int, minRecentProtected int) (PruneResult, error) {
	var result PruneResult

	err := p.store.Transaction(func(tx *sql.Tx) error {
		bytesBefore, err := sumBytes(tx)
		if err != nil {
			return err
		}
		result.BytesBefore = bytesBefore

		// Age pass: drop everything past the ceiling except the globally
		// protected recent set.
		aged, err := tx.Exec(`
			DELETE FROM analysis_cache_entries
			WHERE id NOT IN (
				SELECT id FROM analysis_cache_entries
				ORDER BY last_accessed_at DESC
				LIMIT ?
			)
			  AND computed_at < (strftime('%s','now') - (? * 86400))
		`, minRecentProtected, maxAgeDays)
		if err != nil {
			return fmt.Errorf("age pass failed: %w", err)
		}
		agedRows, _ := aged.RowsAffected()
		result.EntriesPruned += int(agedRows)

		totalBytes, err := sumBytes(tx)
		if err != nil {
			return err
		}

		// Size pass: evict least-recently-used until under the cap,
		// skipping the protected set. A cap of 0 means no limit.
		if maxCacheBytes > 0 && totalBytes > maxCacheBytes {
			rows, err := tx.Query(`
				SELECT id, byte_size FROM analysis_cache_entries
				WHERE id NOT IN (
					SELECT id FROM analysis_cache_entries
					ORDER BY last_accessed_at DESC
					LIMIT ?
				)
				ORDER BY last_accessed_at ASC
			`, minRecentProtected)
			if err != nil {
				return fmt.Errorf("size pass query failed: %w", err)
			}

			type victim struct {
				id    int64
				bytes int64
			}
			var victims []victim
			for rows.Next() {
				var v victim
				if err := rows.Scan(&v.id, &v.bytes); err != nil {
					rows.Close()
					return fmt.Errorf("size pass scan failed: %w", err)
				}
				victims = append(victims, v)
			}
			if err := rows.Err(); err != nil {
				rows.Close()
				return err
			}
			rows.Close()

			for _, v := range victims {
				if totalBytes <= maxCacheBytes {
					break
				}
				if _, err := tx.Exec("DELETE FROM analysis_cache_entries WHERE id = ?", v.id); err != nil {
					return fmt.Errorf("size pass delete failed: %w", err)
				}
				result.EntriesPruned++
				totalBytes -= v.bytes
				if totalBytes < 0 {
					totalBytes = 0
				}
			}
		}

		bytesAfter, err := sumBytes(tx)
		if err != nil {
			return err
		}
		result.BytesAfter = bytesAfter
		return nil
	})
	if err != nil {
		return PruneResult{}, err
	}
	return result, nil
}

func sumBytes(tx *sql.Tx) (int64, error) {
	var total int64
	err := tx.QueryRow(
		"SELECT COALESCE(SUM(byte_size), 0) FROM analysis_cache_entries",
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum cache bytes: %w", err)
	}
	return total, nil
}

// TypeStats summarizes cached state for one analysis type.
type TypeStats struct {
	AnalysisType string
	Entries      int
	Frames       int64
	Bytes        int64
}

// CacheStats returns per-type entry/frame/byte totals, ordered by type.
func (p *Pruner) CacheStats() ([]TypeStats, error) {
	rows, err := p.store.db.Query(`
		SELECT analysis_type, COUNT(*), COALESCE(SUM(frame_count), 0), COALESCE(SUM(byte_size), 0)
		FROM analysis_cache_entries
		GROUP BY analysis_type
		ORDER BY analysis_type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache stats: %w", err)
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var s TypeStats
		if err := rows.Scan(&s.AnalysisType, &s.Entries, &s.Frames, &s.Bytes); err != nil {
			return nil, fmt.Errorf("failed to scan cache stats: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
