package internal

import "sync"

// WorkerPool runs queued funcs on a fixed number of goroutines.
type WorkerPool struct {
	N  int
	ch chan func()

	mu      *sync.RWMutex
	stopped bool
}

// Create a new worker pool of size N. Up to N work can be done concurrently.
// Once N work is in flight and N more is queued, Queue blocks.
func NewWorkerPool(n int) *WorkerPool {
	return &WorkerPool{
		N:  n,
		ch: make(chan func(), n),
		mu: &sync.RWMutex{},
	}
}

// Start the workers. Only call this once.
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.N; i++ {
		go wp.worker()
	}
}

// Stop the worker pool. Work already queued still runs. Safe to call more than once.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.stopped {
		return
	}
	wp.stopped = true
	close(wp.ch)
}

// Queue some work on the pool. May block until some work is processed. Returns false without
// running fn if the pool has been stopped.
func (wp *WorkerPool) Queue(fn func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	wp.ch <- fn
	return true
}

func (wp *WorkerPool) worker() {
	for fn := range wp.ch {
		fn()
	}
}
