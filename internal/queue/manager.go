// Package queue implements the four typed job queues from spec §4.4: health,
// test, warmup, and rotation, each with its own concurrency cap and retry
// backoff. Concurrency is capped with golang.org/x/sync/semaphore, the same
// primitive the source product's broadcast sender and task processor use to
// bound parallel work.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/domainfleet/engine/internal/domain"
	"github.com/domainfleet/engine/pkg/clock"
	"github.com/domainfleet/engine/pkg/logger"
	"golang.org/x/sync/semaphore"
)

// Handler executes one job attempt. A returned error is retried (subject to
// MaxRetries) unless it wraps domain.ErrFatal or domain.ErrNotFound, in
// which case it is logged and dropped without further retries, or wraps
// domain.ErrRateLimited, in which case the job is re-queued for RetryAt
// without counting the attempt.
type Handler func(ctx context.Context, job *domain.Job) error

// Limiter is the subset of RateLimiter behavior the queue depends on. A
// denied acquisition defers the job rather than counting as a failed
// attempt (spec §4.1/§4.4).
type Limiter interface {
	TryAcquire(domainID string) bool
}

// ExhaustionHandler is invoked once a job has failed MaxRetries+1 times
// (spec §4.4's "after 3 retries, send critical notification").
type ExhaustionHandler func(job *domain.Job, lastErr error)

type typeQueue struct {
	mu   sync.Mutex
	cond *sync.Cond
	heap jobHeap
	sem  *semaphore.Weighted
	cfg  TypeConfig
}

// JobQueue dispatches jobs of each type to a Handler, honoring per-type
// concurrency caps, backoff, and the rotation queue's implicit global
// exclusivity (its concurrency cap of 1 serializes every rotation).
type JobQueue struct {
	cfg      Config
	clock    clock.Clock
	log      logger.Logger
	limiter  Limiter
	handlers map[domain.JobType]Handler
	onGiveUp ExhaustionHandler
	logs     domain.JobLogRepository

	queues map[domain.JobType]*typeQueue

	seqMu sync.Mutex
	seq   int64

	stop   chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// New builds a JobQueue. Enqueue panics on a job type with no entry in
// cfg.Types; a job whose type has no entry in handlers is logged as an
// error and dropped when it comes up to run.
func New(cfg Config, c clock.Clock, log logger.Logger, limiter Limiter, logs domain.JobLogRepository, handlers map[domain.JobType]Handler, onGiveUp ExhaustionHandler) *JobQueue {
	q := &JobQueue{
		cfg:      cfg,
		clock:    c,
		log:      log,
		limiter:  limiter,
		handlers: handlers,
		onGiveUp: onGiveUp,
		logs:     logs,
		queues:   make(map[domain.JobType]*typeQueue),
		stop:     make(chan struct{}),
	}
	for t, tc := range cfg.Types {
		tq := &typeQueue{sem: semaphore.NewWeighted(int64(tc.Concurrency)), cfg: tc}
		tq.cond = sync.NewCond(&tq.mu)
		q.queues[t] = tq
	}
	return q
}

// Start spawns one dispatcher goroutine per job type.
func (q *JobQueue) Start(ctx context.Context) {
	for t, tq := range q.queues {
		q.wg.Add(1)
		go q.dispatch(ctx, t, tq)
	}
}

// Stop signals every dispatcher to exit and waits for in-flight jobs to
// finish their current attempt.
func (q *JobQueue) Stop() {
	if q.closed {
		return
	}
	q.closed = true
	close(q.stop)
	for _, tq := range q.queues {
		tq.mu.Lock()
		tq.cond.Broadcast()
		tq.mu.Unlock()
	}
	q.wg.Wait()
}

// Enqueue adds a job to its type's queue, ready to run as soon as NotBefore
// has passed and a concurrency slot is free.
func (q *JobQueue) Enqueue(job *domain.Job) {
	tq, ok := q.queues[job.Type]
	if !ok {
		panic("queue: no queue configured for job type " + string(job.Type))
	}
	if job.NotBefore.IsZero() {
		job.NotBefore = q.clock.Now()
	}
	tq.mu.Lock()
	heap.Push(&tq.heap, &entry{job: job, seq: q.nextSeq()})
	tq.cond.Broadcast()
	tq.mu.Unlock()
}

func (q *JobQueue) nextSeq() int64 {
	q.seqMu.Lock()
	defer q.seqMu.Unlock()
	q.seq++
	return q.seq
}

// Depth reports how many jobs of a given type are waiting in the queue;
// jobs already handed to a worker are not counted.
func (q *JobQueue) Depth(t domain.JobType) int {
	tq, ok := q.queues[t]
	if !ok {
		return 0
	}
	tq.mu.Lock()
	defer tq.mu.Unlock()
	return len(tq.heap)
}

func (q *JobQueue) dispatch(ctx context.Context, t domain.JobType, tq *typeQueue) {
	defer q.wg.Done()
	for {
		job, ok := q.next(tq)
		if !ok {
			return
		}
		if err := tq.sem.Acquire(ctx, 1); err != nil {
			return
		}
		q.wg.Add(1)
		go func(j *domain.Job) {
			defer q.wg.Done()
			defer tq.sem.Release(1)
			q.run(ctx, t, tq, j)
		}(job)
	}
}

// next blocks until a due job is available or the queue is stopped, then
// pops and returns it. Jobs whose NotBefore is still in the future are left
// in the heap and the dispatcher sleeps until that deadline or a new push.
func (q *JobQueue) next(tq *typeQueue) (*domain.Job, bool) {
	tq.mu.Lock()
	defer tq.mu.Unlock()
	for {
		select {
		case <-q.stop:
			return nil, false
		default:
		}
		if len(tq.heap) == 0 {
			tq.cond.Wait()
			continue
		}
		top := tq.heap[0]
		now := q.clock.Now()
		if top.job.NotBefore.After(now) {
			wait := top.job.NotBefore.Sub(now)
			tq.mu.Unlock()
			select {
			case <-q.clock.After(wait):
			case <-q.stop:
				tq.mu.Lock()
				return nil, false
			}
			tq.mu.Lock()
			continue
		}
		job := heap.Pop(&tq.heap).(*entry).job
		return job, true
	}
}

func (q *JobQueue) run(ctx context.Context, t domain.JobType, tq *typeQueue, job *domain.Job) {
	if !q.limiter.TryAcquire(job.DomainID) {
		job.NotBefore = q.clock.Now().Add(time.Second)
		q.Enqueue(job)
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, tq.cfg.Deadline)
	defer cancel()

	start := q.clock.Now()
	handler, ok := q.handlers[t]
	if !ok {
		q.log.WithField("type", string(t)).Error("no handler registered for job type")
		return
	}
	err := handler(runCtx, job)
	duration := q.clock.Now().Sub(start)

	status := domain.JobLogSuccess
	errMsg := ""
	if err != nil {
		status = domain.JobLogFailed
		errMsg = err.Error()
	}
	if q.logs != nil {
		_ = q.logs.Append(runCtx, domain.JobLogEntry{
			JobID:     job.ID,
			Type:      t,
			Status:    status,
			Duration:  duration,
			Error:     errMsg,
			Timestamp: q.clock.Now(),
		})
	}
	if err == nil {
		return
	}

	var fatal *domain.ErrFatal
	if isFatal(err, &fatal) {
		q.log.WithFields(map[string]interface{}{
			"job_id": job.ID, "type": string(t), "error": err.Error(),
		}).Error("job failed fatally, not retrying")
		return
	}
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		q.log.WithFields(map[string]interface{}{
			"job_id": job.ID, "type": string(t), "error": err.Error(),
		}).Warn("job target not found, dropping")
		return
	}
	var limited *domain.ErrRateLimited
	if errors.As(err, &limited) {
		job.NotBefore = limited.RetryAt
		q.Enqueue(job)
		return
	}

	job.Attempt++
	if job.Attempt > q.cfg.MaxRetries {
		if q.onGiveUp != nil {
			q.onGiveUp(job, err)
		}
		return
	}
	job.NotBefore = q.clock.Now().Add(tq.cfg.RetryDelay)
	if q.logs != nil {
		_ = q.logs.Append(runCtx, domain.JobLogEntry{
			JobID: job.ID, Type: t, Status: domain.JobLogRetry,
			Error: errMsg, Timestamp: q.clock.Now(),
		})
	}
	q.Enqueue(job)
}

func isFatal(err error, target **domain.ErrFatal) bool {
	for err != nil {
		if f, ok := err.(*domain.ErrFatal); ok {
			*target = f
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
