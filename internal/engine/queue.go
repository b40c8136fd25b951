package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/nutristat/internal/tasks"
)

// queuedJob is the descriptor handed from Submit to a worker.
type queuedJob struct {
	id   int64
	kind tasks.Kind
	args tasks.Args
}

// jobQueue is an unbounded FIFO safe for many producers and consumers.
// push never blocks. pop waits on either a new-item signal or the stop
// channel, so idle workers observe shutdown without polling. depth is set
// under mu, so it always reports the length left by the latest change.
type jobQueue struct {
	mu     sync.Mutex
	items  []queuedJob
	signal chan struct{}
	depth  prometheus.Gauge
}

func newJobQueue(depth prometheus.Gauge) *jobQueue {
	return &jobQueue{signal: make(chan struct{}, 1), depth: depth}
}

func (q *jobQueue) push(j queuedJob) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.depth.Set(float64(len(q.items)))
	q.mu.Unlock()
	q.notify()
}

// notify wakes at most one waiting consumer. The signal channel holds a
// single token, so repeated notifies coalesce; tryPop re-notifies while
// items remain.
func (q *jobQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *jobQueue) tryPop() (queuedJob, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return queuedJob{}, false
	}
	j := q.items[0]
	q.items[0] = queuedJob{}
	q.items = q.items[1:]
	q.depth.Set(float64(len(q.items)))
	more := len(q.items) > 0
	q.mu.Unlock()

	if more {
		q.notify()
	}
	return j, true
}

// pop returns the next job, blocking until one is available. Once stop is
// closed it keeps returning queued jobs until the queue is empty and then
// reports false.
func (q *jobQueue) pop(stop <-chan struct{}) (queuedJob, bool) {
	for {
		if j, ok := q.tryPop(); ok {
			return j, true
		}

		select {
		case <-stop:
			return q.tryPop()
		default:
		}

		select {
		case <-q.signal:
		case <-stop:
		}
	}
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
