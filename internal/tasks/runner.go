package tasks

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Runner executes background tasks handed off by request handlers, so a
// trigger can be acknowledged immediately while a seconds-to-minutes batch
// keeps running. It replaces fire-and-forget goroutines with a bounded
// queue and a drain step wired into process shutdown.
type Runner struct {
	queue chan func()
	wg    sync.WaitGroup

	mu       sync.Mutex
	draining bool
}

// NewRunner starts workers goroutines consuming a queue of queueSize
// pending tasks.
func NewRunner(workers, queueSize int) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	r := &Runner{queue: make(chan func(), queueSize)}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.work()
	}

	return r
}

func (r *Runner) work() {
	defer r.wg.Done()
	for task := range r.queue {
		task()
	}
}

// Submit enqueues a task for background execution. It returns false when
// the runner is draining or the queue is full; callers surface that as a
// retry-later condition instead of blocking the request.
func (r *Runner) Submit(name string, task func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.draining {
		logrus.Warnf("Rejecting task %q: runner is draining", name)
		return false
	}

	select {
	case r.queue <- task:
		logrus.Debugf("Queued background task %q", name)
		return true
	default:
		logrus.Warnf("Rejecting task %q: queue is full", name)
		return false
	}
}

// Drain stops intake and waits for queued and in-flight tasks to finish,
// or for ctx to expire.
func (r *Runner) Drain(ctx context.Context) error {
	r.mu.Lock()
	if !r.draining {
		r.draining = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
