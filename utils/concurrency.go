package utils

import (
	"sync"
	"time"
)

// WorkerPool manages a pool of goroutines with rate limiting.
// The interval is an aggregate limit: job starts across all workers are
// spaced at least interval apart.
type WorkerPool struct {
	maxWorkers  int
	interval    time.Duration
	semaphore   chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	lastRequest time.Time
}

// NewWorkerPool creates a WorkerPool with the given concurrency and rate limit.
func NewWorkerPool(maxWorkers int, interval time.Duration) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		interval:   interval,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Submit enqueues a job for execution in the pool. It blocks while all
// workers are busy.
func (wp *WorkerPool) Submit(job func()) {
	wp.wg.Add(1)
	wp.semaphore <- struct{}{}

	go func() {
		defer wp.wg.Done()
		defer func() { <-wp.semaphore }()

		wp.enforceRateLimit()
		job()
	}()
}

// Wait blocks until all submitted jobs have completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) enforceRateLimit() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if !wp.lastRequest.IsZero() {
		elapsed := time.Since(wp.lastRequest)
		if elapsed < wp.interval {
			time.Sleep(wp.interval - elapsed)
		}
	}
	wp.lastRequest = time.Now()
}

// Set is a read-only set of comparable keys. It is filled once by NewSet and
// is safe for concurrent lookups.
type Set[K comparable] struct {
	seen map[K]struct{}
}

// NewSet creates a Set holding the given keys.
func NewSet[K comparable](keys ...K) *Set[K] {
	s := &Set[K]{seen: make(map[K]struct{}, len(keys))}
	for _, k := range keys {
		s.seen[k] = struct{}{}
	}
	return s
}

// Contains returns true if the key is present.
func (s *Set[K]) Contains(key K) bool {
	_, exists := s.seen[key]
	return exists
}
