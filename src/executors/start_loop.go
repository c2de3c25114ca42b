package executors

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	json "github.com/goccy/go-json"
	logger "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"signalmirror/src/controller"
	"signalmirror/src/execution"
	"signalmirror/src/model"
	"signalmirror/src/repository"
	"signalmirror/src/telemetry"
)

// ErrUnknownTaskKind fails tasks nobody registered a handler for.
var ErrUnknownTaskKind = errors.New("unknown task kind")

const (
	resultDone    = "done"
	resultRetried = "retried"
	resultFailed  = "failed"
)

type taskQueue interface {
	ClaimNext(ctx context.Context, workerID string) (*model.Task, error)
	Complete(ctx context.Context, task *model.Task) error
	Fail(ctx context.Context, task *model.Task, cause error, retryIn time.Duration) (bool, error)
	RequeueStale(ctx context.Context, timeout time.Duration) (int64, error)
}

type signalSweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Handler processes one claimed task. A returned error fails the task.
type Handler func(ctx context.Context, task *model.Task) error

// Pool runs the queue workers, the stale task janitor and the pending
// signal sweeper of one process.
type Pool struct {
	cfg      Config
	queue    taskQueue
	sweeper  signalSweeper
	metrics  *telemetry.Metrics
	handlers map[string]Handler
	id       string
}

// NewPool builds a pool. sweeper and metrics may be nil.
func NewPool(cfg Config, queue taskQueue, sweeper signalSweeper, metrics *telemetry.Metrics) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pool{
		cfg:      cfg,
		queue:    queue,
		sweeper:  sweeper,
		metrics:  metrics,
		handlers: make(map[string]Handler),
		id:       uuid.NewString(),
	}
}

// Handle registers the handler of a task kind.
func (p *Pool) Handle(kind string, h Handler) {
	p.handlers[kind] = h
}

// HandlePayload registers a handler that receives the decoded task payload.
func HandlePayload[T any](p *Pool, kind string, fn func(ctx context.Context, payload T) error) {
	p.Handle(kind, func(ctx context.Context, task *model.Task) error {
		var payload T
		if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
			return fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return fn(ctx, payload)
	})
}

// StartLoop blocks until ctx is cancelled.
func (p *Pool) StartLoop(ctx context.Context) error {
	logger.WithFields(map[string]interface{}{
		"pool_id":     p.id,
		"concurrency": p.cfg.Concurrency,
	}).Info("Worker pool starting")

	workers := pool.New().WithMaxGoroutines(p.cfg.Concurrency + 2)
	for i := 0; i < p.cfg.Concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", p.id, i)
		workers.Go(func() { p.claimLoop(ctx, workerID) })
	}
	workers.Go(func() { p.every(ctx, p.cfg.VisibilityTimeout/2, p.requeueStale) })
	if p.sweeper != nil {
		workers.Go(func() { p.every(ctx, p.cfg.SweepInterval, p.sweep) })
	}
	workers.Wait()

	logger.WithField("pool_id", p.id).Println("Worker pool stopped")
	return nil
}

func (p *Pool) claimLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain the queue before waiting for the next tick
		for ctx.Err() == nil {
			processed, err := p.RunOnce(ctx, workerID)
			if err != nil || !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pool) every(ctx context.Context, interval time.Duration, fn func(ctx context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (p *Pool) requeueStale(ctx context.Context) {
	if _, err := p.queue.RequeueStale(ctx, p.cfg.VisibilityTimeout); err != nil {
		logger.WithError(err).Error("Failed to requeue stale tasks")
	}
}

func (p *Pool) sweep(ctx context.Context) {
	if _, err := p.sweeper.Sweep(ctx); err != nil {
		logger.WithError(err).Error("Pending signal sweep failed")
	}
}

// RunOnce claims and processes at most one task. It reports whether a task
// was processed.
func (p *Pool) RunOnce(ctx context.Context, workerID string) (bool, error) {
	task, err := p.queue.ClaimNext(ctx, workerID)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	p.process(ctx, task)
	return true, nil
}

func (p *Pool) process(ctx context.Context, task *model.Task) {
	fields := map[string]interface{}{
		"task_id":  task.ID,
		"kind":     task.Kind,
		"attempts": task.Attempts,
	}
	logger.WithFields(fields).Debug("Processing task")

	err := p.dispatch(ctx, task)
	// task bookkeeping outlives a shutdown that interrupted the handler
	bookkeeping := context.WithoutCancel(ctx)

	if err == nil {
		if err := p.queue.Complete(bookkeeping, task); err != nil {
			logLockErr(fields, err, "Failed to complete task")
			return
		}
		p.metrics.TaskFinished(bookkeeping, task.Kind, resultDone)
		return
	}

	retry, ferr := p.queue.Fail(bookkeeping, task, err, p.retryDelay(task.Attempts))
	if ferr != nil {
		logLockErr(fields, ferr, "Failed to record task failure")
		return
	}
	result := resultFailed
	if retry {
		result = resultRetried
	}
	p.metrics.TaskFinished(bookkeeping, task.Kind, result)
}

// logLockErr reports a bookkeeping error. A lost lock means another worker
// owns the task now and its result wins.
func logLockErr(fields map[string]interface{}, err error, msg string) {
	if errors.Is(err, repository.ErrTaskLockLost) {
		logger.WithFields(fields).WithError(err).Warn("Task lock lost, result dropped")
		return
	}
	logger.WithFields(fields).WithError(err).Error(msg)
}

func (p *Pool) dispatch(ctx context.Context, task *model.Task) (err error) {
	h, ok := p.handlers[task.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTaskKind, task.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %d panicked: %v", task.ID, r)
		}
	}()
	return h(ctx, task)
}

// retryDelay is the exponential backoff delay after the given attempt.
func (p *Pool) retryDelay(attempts int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInitialInterval
	b.MaxInterval = p.cfg.RetryMaxInterval
	b.RandomizationFactor = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempts; i++ {
		delay = b.NextBackOff()
	}
	if delay == backoff.Stop {
		return p.cfg.RetryMaxInterval
	}
	return delay
}

// RegisterPipeline wires the mirror and execution handlers.
func RegisterPipeline(p *Pool, mirror *controller.MirrorController, executor *execution.Executor) {
	HandlePayload(p, model.TaskKindMirrorSignal, mirror.HandleSignal)
	HandlePayload(p, model.TaskKindExecuteAccount, executor.Run)
}
