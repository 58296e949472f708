package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/articleforge/articleforge/internal/job/model"
	"github.com/articleforge/articleforge/internal/job/state"
	"github.com/articleforge/articleforge/internal/job/store"
	"github.com/articleforge/articleforge/internal/metrics"
)

// ProgressFunc is handed to the work function so it can report step
// progress. Each invocation is persisted before the next one is
// expected; the work function must not call it concurrently for the
// same job.
type ProgressFunc func(step, totalSteps int, name string)

// WorkFunc is the long-running content pipeline the orchestrator
// invokes and monitors. It resolves with an opaque result payload or
// rejects with an error. The orchestrator treats the whole invocation
// as a single awaited unit.
type WorkFunc func(ctx context.Context, req *model.Request, progress ProgressFunc) (json.RawMessage, error)

// Classifier decides whether a work function error is retryable.
// Returning false sends the job straight to failed regardless of the
// remaining retry budget.
type Classifier func(error) bool

// AlwaysRetry is the default Classifier: every rejection is retryable
// up to the ceiling.
func AlwaysRetry(error) bool { return true }

// Ack is the synchronous acknowledgement returned by Submit.
type Ack struct {
	JobID     string       `json:"jobId"`
	Status    state.Status `json:"status"`
	RequestID string       `json:"requestId"`
}

// ErrClosed is returned by Submit after Close has been called.
var ErrClosed = errors.New("orchestrator is shutting down")

// Config carries the orchestrator's dependencies. Store and Work are
// required; everything else has a sensible default.
type Config struct {
	Store      store.Store
	Work       WorkFunc
	Retry      RetryPolicy
	Classifier Classifier
	Scheduler  Scheduler
	IDs        IDGenerator
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Orchestrator is the single owning actor for job records. It accepts
// submissions, drives each job's execution as an independent task,
// applies retry backoff, and serves status reads through a write-through
// in-memory index backed by the durable store.
type Orchestrator struct {
	store    store.Store
	work     WorkFunc
	retry    RetryPolicy
	classify Classifier
	sched    Scheduler
	ids      IDGenerator
	metrics  *metrics.Metrics
	logger   *slog.Logger
	machine  *state.Machine

	mu     sync.RWMutex
	index  map[string]*model.Record
	done   map[string]chan struct{}
	timers map[string]Timer
	closed bool

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New constructs an orchestrator. It owns all its state explicitly;
// nothing here is a package-level singleton, so tests can build as many
// isolated instances as they need.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("orchestrator requires a store")
	}
	if cfg.Work == nil {
		return nil, fmt.Errorf("orchestrator requires a work function")
	}
	if cfg.Retry.BaseDelay == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = AlwaysRetry
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewTimerScheduler()
	}
	if cfg.IDs == nil {
		cfg.IDs = NewULIDGenerator()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		store:    cfg.Store,
		work:     cfg.Work,
		retry:    cfg.Retry,
		classify: cfg.Classifier,
		sched:    cfg.Scheduler,
		ids:      cfg.IDs,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "orchestrator"),
		machine:  state.NewMachine(),
		index:    make(map[string]*model.Record),
		done:     make(map[string]chan struct{}),
		timers:   make(map[string]Timer),
		baseCtx:  ctx,
		cancel:   cancel,
	}, nil
}

// Submit validates the request, creates and persists a queued record,
// schedules execution asynchronously, and returns immediately. The
// returned job id is resolvable via Get as soon as Submit returns.
func (o *Orchestrator) Submit(ctx context.Context, req *model.Request) (*Ack, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	id := o.ids.Generate()
	rec := model.NewRecord(id, req, o.retry.MaxRetries, o.sched.Now())

	// Reserve the execution slot before persisting. A record must never
	// reach the store unless an execution is committed to it, otherwise
	// a Close racing the write would strand a queued record forever.
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.index[id] = rec
	o.done[id] = make(chan struct{})
	o.wg.Add(1)
	o.mu.Unlock()

	if err := o.store.Put(ctx, rec); err != nil {
		o.mu.Lock()
		delete(o.index, id)
		delete(o.done, id)
		o.mu.Unlock()
		o.wg.Done()
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if o.metrics != nil {
		o.metrics.JobsSubmitted.Inc()
		o.metrics.JobsInFlight.Inc()
	}
	o.logger.Info("job submitted",
		"jobId", id, "requestId", req.RequestID, "clientId", req.ClientID,
		"keyword", req.Keyword, "mode", req.Mode)

	go o.execute(req, rec)

	return &Ack{JobID: id, Status: state.Queued, RequestID: req.RequestID}, nil
}

// Get returns a copy of the job record, reading through the in-memory
// index to the durable store. No side effects.
func (o *Orchestrator) Get(ctx context.Context, id string) (*model.Record, error) {
	o.mu.RLock()
	rec, ok := o.index[id]
	var snapshot *model.Record
	if ok {
		snapshot = rec.Clone()
	}
	o.mu.RUnlock()

	if ok {
		return snapshot, nil
	}

	// Cold miss: the index is only a cache, the store is the truth.
	return o.store.Get(ctx, id)
}

// WaitTerminal blocks until the job reaches completed or failed, then
// returns its final record. Observability hook for tests and draining;
// polling clients go through Get.
func (o *Orchestrator) WaitTerminal(id string, timeout time.Duration) (*model.Record, error) {
	o.mu.RLock()
	ch, ok := o.done[id]
	o.mu.RUnlock()
	if !ok {
		return nil, store.ErrNotFound
	}

	select {
	case <-ch:
		return o.Get(context.Background(), id)
	case <-time.After(timeout):
		return nil, fmt.Errorf("timed out waiting for job %s", id)
	}
}

// Close stops accepting submissions, cancels pending retry timers, and
// waits for in-flight attempts to finish or the context to expire.
// Jobs whose retries were cancelled stay persisted as processing.
func (o *Orchestrator) Close(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for id, t := range o.timers {
		if t.Stop() {
			// The retry attempt already reserved a waitgroup slot.
			o.wg.Done()
			o.logger.Info("retry cancelled by shutdown", "jobId", id)
		}
	}
	o.timers = make(map[string]Timer)
	o.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		o.cancel()
		return nil
	case <-ctx.Done():
		o.cancel()
		return ctx.Err()
	}
}

// execute drives one attempt of a job. It never lets an error or panic
// escape: every outcome becomes a terminal transition or a scheduled
// retry.
func (o *Orchestrator) execute(req *model.Request, rec *model.Record) {
	defer o.wg.Done()

	ctx := o.baseCtx

	if err := o.machine.ValidateTransition(o.status(rec), state.Processing); err != nil {
		// A terminal record can never re-enter execution.
		o.logger.Error("refusing to execute job", "jobId", rec.ID, "error", err)
		return
	}

	snapshot := o.mutate(rec, func(r *model.Record) {
		r.Begin(o.sched.Now())
	})
	if err := o.persist(ctx, snapshot); err != nil {
		o.handleFailure(ctx, req, rec, err)
		return
	}

	started := o.sched.Now()
	result, err := o.invoke(ctx, req, rec)
	if o.metrics != nil {
		o.metrics.JobDuration.Observe(o.sched.Now().Sub(started).Seconds())
	}

	if err != nil {
		o.handleFailure(ctx, req, rec, err)
		return
	}

	// The completed write must land before the transition is committed.
	// If it fails the attempt is unaccounted for, so the record stays in
	// processing and the failure path decides between retry and failed.
	finished := o.sched.Now()
	completed := o.preview(rec, func(r *model.Record) {
		r.Complete(result, finished)
	})
	if perr := o.persist(ctx, completed); perr != nil {
		o.logger.Error("failed to persist completed job", "jobId", rec.ID, "error", perr)
		o.handleFailure(ctx, req, rec, fmt.Errorf("attempt succeeded but persistence failed: %w", perr))
		return
	}
	o.mutate(rec, func(r *model.Record) {
		r.Complete(result, finished)
	})

	o.logger.Info("job completed", "jobId", rec.ID, "retryCount", completed.RetryCount)
	o.finish(rec.ID, state.Completed)
}

// invoke runs the work function for one attempt, converting panics into
// ordinary errors and persisting every progress tick.
func (o *Orchestrator) invoke(ctx context.Context, req *model.Request, rec *model.Record) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in work function", "jobId", rec.ID, "panic", r)
			err = fmt.Errorf("panic in work function: %v", r)
		}
	}()

	var persistErr error
	progress := func(step, totalSteps int, name string) {
		snapshot := o.mutate(rec, func(r *model.Record) {
			r.Progress(step, totalSteps, name)
		})
		if perr := o.persist(ctx, snapshot); perr != nil {
			o.logger.Warn("failed to persist progress", "jobId", rec.ID, "step", step, "error", perr)
			if persistErr == nil {
				persistErr = perr
			}
		}
	}

	result, err = o.work(ctx, req, progress)
	if err == nil && persistErr != nil {
		// A dropped progress write makes the attempt unaccounted for;
		// treat it as an attempt failure so the retry path re-runs it.
		return nil, fmt.Errorf("attempt succeeded but persistence failed: %w", persistErr)
	}
	return result, err
}

// handleFailure decides between a scheduled retry and the failed
// terminal status.
func (o *Orchestrator) handleFailure(ctx context.Context, req *model.Request, rec *model.Record, execErr error) {
	retryable := o.classify(execErr)

	o.mu.Lock()
	closed := o.closed
	canRetry := retryable && rec.CanRetry()
	if canRetry && !closed {
		rec.ScheduleRetry(o.sched.Now())
	}
	snapshot := rec.Clone()
	o.mu.Unlock()

	if canRetry && closed {
		// Shutdown raced the failure. The record stays persisted as
		// processing with budget left; forcing it terminal here would
		// misreport a job that was never given its retries.
		o.logger.Warn("retry abandoned by shutdown", "jobId", rec.ID, "error", execErr)
		return
	}

	if canRetry {
		if perr := o.persist(ctx, snapshot); perr != nil {
			o.logger.Warn("failed to persist retry bookkeeping", "jobId", rec.ID, "error", perr)
		}

		delay := o.retry.Backoff(snapshot.RetryCount)
		o.logger.Warn("job attempt failed, retrying",
			"jobId", rec.ID, "retryCount", snapshot.RetryCount,
			"maxRetries", snapshot.MaxRetries, "delay", delay, "error", execErr)
		if o.metrics != nil {
			o.metrics.JobRetries.Inc()
		}

		o.mu.Lock()
		if o.closed {
			o.mu.Unlock()
			return
		}
		o.wg.Add(1)
		o.timers[rec.ID] = o.sched.AfterFunc(delay, func() {
			o.mu.Lock()
			delete(o.timers, rec.ID)
			o.mu.Unlock()
			o.execute(req, rec)
		})
		o.mu.Unlock()
		return
	}

	snapshot = o.mutate(rec, func(r *model.Record) {
		r.Fail(execErr, o.sched.Now())
	})
	if perr := o.persist(ctx, snapshot); perr != nil {
		o.logger.Error("failed to persist failed job", "jobId", rec.ID, "error", perr)
	}

	o.logger.Error("job failed",
		"jobId", rec.ID, "retryCount", snapshot.RetryCount, "retryable", retryable, "error", execErr)
	o.finish(rec.ID, state.Failed)
}

// preview applies fn to a clone, leaving the orchestrator-owned record
// untouched. Used to build a terminal snapshot that must be persisted
// before the transition is committed in memory.
func (o *Orchestrator) preview(rec *model.Record, fn func(*model.Record)) *model.Record {
	o.mu.RLock()
	snapshot := rec.Clone()
	o.mu.RUnlock()
	fn(snapshot)
	return snapshot
}

// mutate applies fn to the orchestrator-owned record under the lock and
// returns a snapshot safe to persist outside it. Reads clone under the
// same lock, so a half-applied mutation is never observable.
func (o *Orchestrator) mutate(rec *model.Record, fn func(*model.Record)) *model.Record {
	o.mu.Lock()
	fn(rec)
	snapshot := rec.Clone()
	o.mu.Unlock()
	return snapshot
}

func (o *Orchestrator) persist(ctx context.Context, snapshot *model.Record) error {
	return o.store.Put(ctx, snapshot)
}

// status reads the record's current status under the lock.
func (o *Orchestrator) status(rec *model.Record) state.Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return rec.Status
}

// finish closes the job's terminal-wait channel and settles metrics.
func (o *Orchestrator) finish(id string, final state.Status) {
	o.mu.Lock()
	ch, ok := o.done[id]
	o.mu.Unlock()
	if ok {
		close(ch)
	}

	if o.metrics != nil {
		o.metrics.JobsInFlight.Dec()
		switch final {
		case state.Completed:
			o.metrics.JobsCompleted.Inc()
		case state.Failed:
			o.metrics.JobsFailed.Inc()
		}
	}
}
