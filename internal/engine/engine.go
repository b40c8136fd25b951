package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alphadose/haxmap"

	"github.com/seantiz/nutristat/internal/model"
	"github.com/seantiz/nutristat/internal/resultstore"
	"github.com/seantiz/nutristat/internal/tasks"
)

var (
	// ErrInvalidJobID is returned for ids that were never issued.
	ErrInvalidJobID = errors.New("invalid job id")
	// ErrShuttingDown is returned by Submit once shutdown was requested.
	ErrShuttingDown = errors.New("engine is shutting down")
	// ErrNotReady is returned by Result while the job has not completed or
	// its artifact is not readable yet.
	ErrNotReady = resultstore.ErrNotReady
	// ErrTaskPanicked marks a computation that panicked.
	ErrTaskPanicked = errors.New("task panicked")
)

// Stats holds an aggregate snapshot of the job table.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	ByTaskType   map[string]int `json:"by_task_type"`
	Remaining    int            `json:"remaining_jobs"`
	Workers      int            `json:"workers"`
	ShuttingDown bool           `json:"shutting_down"`
}

// Engine runs submitted jobs on a fixed pool of workers.
type Engine struct {
	registry *tasks.Registry
	results  resultstore.Store
	logger   *slog.Logger
	workers  int

	// mu serializes submissions against the shutdown flag so that no job
	// can be queued after the workers were told to drain.
	mu     sync.Mutex
	closed bool
	lastID atomic.Int64

	jobs   *haxmap.Map[int64, *model.Job]
	queue  *jobQueue
	broker *StatusBroker

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	done     chan struct{}
}

// NewEngine creates an engine and starts its workers. A non-positive
// workers value means one worker per CPU.
func NewEngine(reg *tasks.Registry, results resultstore.Store, logger *slog.Logger, workers int) *Engine {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	e := &Engine{
		registry: reg,
		results:  results,
		logger:   logger,
		workers:  workers,
		jobs:     haxmap.New[int64, *model.Job](),
		queue:    newJobQueue(queueDepth),
		broker:   NewStatusBroker(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	for i := 0; i < workers; i++ {
		e.wg.Go(func() {
			e.worker(i)
		})
	}
	go func() {
		e.wg.Wait()
		close(e.done)
	}()

	logger.Info("engine started", "workers", workers)
	return e
}

// Broker returns the engine's status broker for SSE subscription.
func (e *Engine) Broker() *StatusBroker {
	return e.broker
}

// Workers returns the size of the worker pool.
func (e *Engine) Workers() int {
	return e.workers
}

// Submit records a pending job and queues it. It returns the new job id
// without waiting for execution.
func (e *Engine) Submit(ctx context.Context, kind tasks.Kind, args tasks.Args) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		jobsRejected.Inc()
		return 0, ErrShuttingDown
	}

	// The id is published only after its record exists, so readers bounded
	// by lastID never observe a missing entry.
	id := e.lastID.Load() + 1
	e.jobs.Set(id, &model.Job{
		ID:          id,
		TaskType:    string(kind),
		Args:        args.Positional(kind),
		Status:      model.StatusPending,
		SubmittedAt: time.Now().UTC(),
	})
	e.lastID.Store(id)

	e.queue.push(queuedJob{id: id, kind: kind, args: args})
	jobsSubmitted.WithLabelValues(string(kind)).Inc()

	e.logger.Debug("job submitted", "job_id", id, "task_type", kind)
	return id, nil
}

// Status returns a copy of the job's current record.
func (e *Engine) Status(id int64) (*model.Job, error) {
	if id < 1 || id > e.lastID.Load() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidJobID, id)
	}
	j, ok := e.jobs.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrInvalidJobID, id)
	}
	return j.Clone(), nil
}

// Result returns the persisted result of a completed job. It returns
// ErrNotReady while the job is pending or processing, and also when the
// artifact cannot be read yet.
func (e *Engine) Result(ctx context.Context, id int64) (json.RawMessage, error) {
	j, err := e.Status(id)
	if err != nil {
		return nil, err
	}
	if j.Status != model.StatusCompleted {
		return nil, ErrNotReady
	}

	payload, err := e.results.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load result %d: %w", id, err)
	}
	return payload, nil
}

// Remaining returns the number of queued jobs not yet picked up by a worker.
func (e *Engine) Remaining() int {
	return e.queue.len()
}

// List returns a snapshot of every issued job, ordered by id.
func (e *Engine) List() []*model.Job {
	last := e.lastID.Load()
	out := make([]*model.Job, 0, last)
	for id := int64(1); id <= last; id++ {
		if j, ok := e.jobs.Get(id); ok {
			out = append(out, j.Clone())
		}
	}
	return out
}

// Stats returns counts by status and task type.
func (e *Engine) Stats() Stats {
	s := Stats{
		ByStatus: map[string]int{
			model.StatusPending:    0,
			model.StatusProcessing: 0,
			model.StatusCompleted:  0,
		},
		ByTaskType:   make(map[string]int),
		Remaining:    e.Remaining(),
		Workers:      e.workers,
		ShuttingDown: e.ShuttingDown(),
	}
	for _, j := range e.List() {
		s.Total++
		s.ByStatus[j.Status]++
		s.ByTaskType[j.TaskType]++
	}
	return s
}

// ShuttingDown reports whether Shutdown has been called.
func (e *Engine) ShuttingDown() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Shutdown stops accepting jobs and waits until the workers have drained
// the queue and exited. Calling it again waits on the same drain. If ctx
// ends first, Shutdown returns ctx.Err() and the workers keep draining.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.logger.Info("engine shutting down", "remaining_jobs", e.Remaining())
		close(e.stop)
	})

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once every worker has exited.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// worker drains the queue until shutdown is requested and nothing is left.
func (e *Engine) worker(idx int) {
	logger := e.logger.With("worker", idx)
	for {
		j, ok := e.queue.pop(e.stop)
		if !ok {
			logger.Debug("worker stopped")
			return
		}
		e.process(idx, j, logger)
	}
}

// process runs one job: pending→processing, compute, persist, completed.
// A failing job is logged and left in processing; the worker moves on.
func (e *Engine) process(idx int, j queuedJob, logger *slog.Logger) {
	busyWorkers.Inc()
	defer busyWorkers.Dec()

	start := time.Now()
	e.transition(j.id, model.StatusProcessing, idx)

	logger = logger.With("job_id", j.id, "task_type", j.kind)
	payload, err := e.execute(j, logger)
	if err != nil {
		logger.Error("job failed, left in processing", "error", err)
		jobsFaulted.WithLabelValues(string(j.kind)).Inc()
		return
	}

	// The artifact is fully written before the status flips.
	if err := e.results.Save(context.Background(), j.id, payload); err != nil {
		logger.Error("persist result failed, left in processing", "error", err)
		jobsFaulted.WithLabelValues(string(j.kind)).Inc()
		return
	}

	e.transition(j.id, model.StatusCompleted, idx)
	jobsCompleted.WithLabelValues(string(j.kind)).Inc()
	jobDuration.WithLabelValues(string(j.kind)).Observe(time.Since(start).Seconds())
	logger.Debug("job completed", "duration_ms", time.Since(start).Milliseconds())
}

// execute resolves and runs the computation, returning its JSON encoding.
// Panics are converted to ErrTaskPanicked.
func (e *Engine) execute(j queuedJob, logger *slog.Logger) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("task panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	compute, err := e.registry.Resolve(j.kind)
	if err != nil {
		return nil, err
	}

	out, err := compute(context.Background(), j.args)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", j.kind, err)
	}

	payload, err = json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return payload, nil
}

// transition installs a new record for the job. Only the worker owning the
// job calls it, so the read-then-replace cannot race another writer.
func (e *Engine) transition(id int64, status string, worker int) {
	cur, ok := e.jobs.Get(id)
	if !ok || !model.ValidTransition(cur.Status, status) {
		e.logger.Error("invalid status transition", "job_id", id, "to", status)
		return
	}

	next := cur.Transition(status, worker, time.Now().UTC())
	e.jobs.Set(id, next)

	e.broker.Publish(next)
	if status == model.StatusCompleted {
		e.broker.Close(id)
	}
}
