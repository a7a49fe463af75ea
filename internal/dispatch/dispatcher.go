package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"acadgen/internal/cache"
	"acadgen/internal/models"
	"acadgen/internal/utils"
)

var (
	// ErrBackpressure is returned when the job queue is saturated.
	// Distinct from rate limiting: rate limiting bounds who gets in,
	// backpressure bounds total in-flight work.
	ErrBackpressure = errors.New("dispatcher queue is full")

	// ErrDispatcherClosed is returned when submitting after shutdown
	ErrDispatcherClosed = errors.New("dispatcher is closed")

	// ErrHandleNotFound is returned when polling an unknown or expired handle
	ErrHandleNotFound = errors.New("no job for handle")
)

// Executor runs one generation job to completion. It is supplied by
// the orchestrator and is the only mutator of the request after submit.
type Executor func(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error)

// Job is one queued generation request together with its completion
// signal. All callers attached to the same fingerprint share one Job.
type Job struct {
	Request *models.GenerationRequest

	done   chan struct{}
	result *models.GenerationResult
	err    error
}

// Done returns a channel closed when the job reaches a terminal state
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Outcome returns the result after Done is closed
func (j *Job) Outcome() (*models.GenerationResult, error) {
	return j.result, j.err
}

// Config sizes the dispatcher.
type Config struct {
	// QueueSize bounds queued jobs; submits beyond it fail fast
	QueueSize int

	// Workers is the fixed pool size, bounding upstream concurrency
	Workers int

	// CompletedTTL is how long finished jobs stay pollable
	CompletedTTL time.Duration
}

// DefaultConfig returns the standard dispatcher sizing
func DefaultConfig() Config {
	return Config{
		QueueSize:    64,
		Workers:      4,
		CompletedTTL: 10 * time.Minute,
	}
}

// Dispatcher executes generation jobs on a fixed worker pool behind a
// bounded queue. At most one job is in flight per fingerprint: a
// second submit for the same fingerprint attaches to the running job
// instead of starting a duplicate upstream call.
type Dispatcher struct {
	cfg    Config
	exec   Executor
	logger *utils.Logger

	queue chan *Job

	mu       sync.Mutex
	inflight map[string]*Job // fingerprint -> job, exclusive claim
	byID     map[string]*Job // request ID -> job, for polling
	closed   bool

	completed *cache.LRU // request ID -> *Job after completion

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a dispatcher and starts its worker pool
func New(cfg Config, exec Executor) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CompletedTTL <= 0 {
		cfg.CompletedTTL = 10 * time.Minute
	}

	d := &Dispatcher{
		cfg:       cfg,
		exec:      exec,
		logger:    utils.NewLogger("dispatcher"),
		queue:     make(chan *Job, cfg.QueueSize),
		inflight:  make(map[string]*Job),
		byID:      make(map[string]*Job),
		completed: cache.NewLRU(4096, cfg.CompletedTTL),
		stopCh:    make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}

	return d
}

// Submit enqueues a generation request. If a job with the same
// fingerprint is already queued or running, the existing job is
// returned (attached=true) and no new work is started. A full queue
// fails fast with ErrBackpressure; nothing is silently dropped or
// silently queued unboundedly.
func (d *Dispatcher) Submit(req *models.GenerationRequest) (*Job, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, false, ErrDispatcherClosed
	}

	if existing, ok := d.inflight[req.Fingerprint]; ok {
		return existing, true, nil
	}

	job := &Job{
		Request: req,
		done:    make(chan struct{}),
	}

	select {
	case d.queue <- job:
	default:
		return nil, false, ErrBackpressure
	}

	req.State = models.StateQueued
	d.inflight[req.Fingerprint] = job
	d.byID[req.ID.String()] = job

	return job, false, nil
}

// Lookup returns the job for a request ID, including recently
// completed jobs still within their retention window
func (d *Dispatcher) Lookup(id string) (*Job, error) {
	d.mu.Lock()
	if job, ok := d.byID[id]; ok {
		d.mu.Unlock()
		return job, nil
	}
	d.mu.Unlock()

	if v, ok := d.completed.Get(id); ok {
		return v.(*Job), nil
	}

	return nil, ErrHandleNotFound
}

// Await blocks until the job completes, the timeout elapses, or ctx is
// cancelled. Timing out does NOT cancel the job: it keeps running so
// its result can populate the cache for the next caller.
func (d *Dispatcher) Await(ctx context.Context, job *Job, timeout time.Duration) (*models.GenerationResult, error, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-job.done:
		res, err := job.Outcome()
		return res, err, true
	case <-timer.C:
		return nil, nil, false
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}

// worker pulls jobs and executes them serially; concurrency comes from
// the pool size
func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case job, ok := <-d.queue:
			if !ok {
				return
			}
			d.run(job)
		}
	}
}

// run executes one job. The execution context is detached from any
// caller: an abandoned job still completes and populates the cache,
// since the generation cost is already being spent.
func (d *Dispatcher) run(job *Job) {
	job.Request.State = models.StateRunning

	res, err := d.exec(context.Background(), job.Request)

	now := time.Now()
	job.Request.CompletedAt = &now
	if err != nil {
		job.Request.State = models.StateFailed
		d.logger.Warn("Job failed",
			"request_id", job.Request.ID,
			"fingerprint", job.Request.Fingerprint,
			"error", err)
	} else {
		job.Request.State = models.StateSucceeded
	}

	job.result = res
	job.err = err

	d.mu.Lock()
	delete(d.inflight, job.Request.Fingerprint)
	delete(d.byID, job.Request.ID.String())
	// Retained for pollers that come back after completion. Inserted
	// under the same lock as the deletes so a concurrent Lookup sees
	// the job in one map or the other, never in neither.
	d.completed.Set(job.Request.ID.String(), job)
	d.mu.Unlock()

	close(job.done)
}

// QueueDepth returns the number of jobs waiting for a worker
func (d *Dispatcher) QueueDepth() int {
	return len(d.queue)
}

// Shutdown stops accepting work and waits for running jobs to finish.
// Jobs still waiting in the queue are abandoned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.stopCh)

	doneCh := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(doneCh)
	}()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
