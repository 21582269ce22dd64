// Package jobs runs background analysis work on a bounded worker pool.
// The sampler services enqueue requests from the playback read path, so
// Schedule never blocks: when the queue is full the request is dropped
// and the caller's in-flight marker expires and retries later.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/franz/trackcache/internal/store"
)

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is one queued analysis request.
type Job struct {
	ID         string
	TrackPath  string
	Type       store.AnalysisType
	Params     any
	Status     JobStatus
	Error      string
	EnqueuedAt time.Time
	FinishedAt time.Time
}

// AnalyzeFunc performs the actual analysis and writes the result into
// the cache. It must honor ctx cancellation.
type AnalyzeFunc func(ctx context.Context, job Job) error

// Scheduler owns the worker pool and the job registry. One Scheduler
// serves all analysis types.
type Scheduler struct {
	run     AnalyzeFunc
	workers int
	queue   chan string

	mu   sync.RWMutex
	jobs map[string]*Job

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewScheduler builds a scheduler with the given pool size and queue
// capacity. Call Start before scheduling.
func NewScheduler(workers, queueSize int, run AnalyzeFunc) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Scheduler{
		run:     run,
		workers: workers,
		queue:   make(chan string, queueSize),
		jobs:    make(map[string]*Job),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled or
// Close is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	log.Debug("analysis scheduler started", "workers", s.workers)
}

// Close stops accepting work, drains the queue and waits for in-flight
// jobs to finish.
func (s *Scheduler) Close() {
	close(s.queue)
	s.wg.Wait()
	if s.cancel != nil {
		s.cancel()
	}
}

// Schedule enqueues an analysis request and returns its job ID. Returns
// ok=false when the queue is full; the request is dropped, not queued.
func (s *Scheduler) Schedule(trackPath string, typ store.AnalysisType, params any) (string, bool) {
	job := &Job{
		ID:         uuid.New().String(),
		TrackPath:  trackPath,
		Type:       typ,
		Params:     params,
		Status:     JobStatusPending,
		EnqueuedAt: time.Now(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	select {
	case s.queue <- job.ID:
		return job.ID, true
	default:
		s.mu.Lock()
		delete(s.jobs, job.ID)
		s.mu.Unlock()
		log.Warn("analysis queue full, dropping request", "path", trackPath, "type", typ)
		return "", false
	}
}

// Job returns a snapshot of the job with the given ID.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns snapshots of all known jobs.
func (s *Scheduler) Jobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *job)
	}
	return out
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id, ok := <-s.queue:
			if !ok {
				return
			}
			s.execute(ctx, id)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, id string) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	snapshot := *job
	s.mu.Unlock()

	err := s.run(ctx, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	job.FinishedAt = time.Now()
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		log.Error("analysis job failed", "id", job.ID, "path", job.TrackPath, "type", job.Type, "error", err)
		return
	}
	job.Status = JobStatusCompleted
	log.Debug("analysis job completed", "id", job.ID, "path", job.TrackPath, "type", job.Type)
}
