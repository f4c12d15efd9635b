package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agendia-app/agendia-platform/internal/observability/metrics"
	"github.com/agendia-app/agendia-platform/pkg/logging"
)

const (
	defaultWorkerCount = 50
	defaultMaxAttempts = 3
	defaultRetryBase   = 2 * time.Second
	defaultWaitSeconds = 2
	defaultBatchSize   = 5
	maxWaitSeconds     = 20
	maxBatchSize       = 10
)

// Handler processes one decoded job. A non-nil error triggers a retry
// re-enqueue until attempts run out.
type Handler func(ctx context.Context, job Payload) error

// JobUpdater finalizes persisted job state and answers pre-handling
// cancellation checks.
type JobUpdater interface {
	MarkCompleted(ctx context.Context, jobID uuid.UUID, attempts int) error
	MarkFailed(ctx context.Context, jobID uuid.UUID, attempts int, errMsg string) error
	IsCancelled(ctx context.Context, jobID uuid.UUID) (bool, error)
}

// Dispatcher consumes jobs from the queue with a pool of worker goroutines
// and retries failures with exponential backoff.
type Dispatcher struct {
	queue   Client
	handler Handler
	jobs    JobUpdater
	logger  *logging.Logger
	metrics *metrics.PipelineMetrics

	cfg dispatcherConfig
	wg  sync.WaitGroup
}

type dispatcherConfig struct {
	workers          int
	maxAttempts      int
	retryBase        time.Duration
	receiveWaitSecs  int
	receiveBatchSize int
}

// DispatcherOption customizes dispatcher behavior.
type DispatcherOption func(*dispatcherConfig)

// WithWorkerCount sets the number of concurrent consumer goroutines.
func WithWorkerCount(count int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithMaxAttempts caps how many times a job runs before dead-lettering.
func WithMaxAttempts(attempts int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if attempts > 0 {
			cfg.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay sets the backoff base; attempt n waits base << (n-1).
func WithRetryBaseDelay(base time.Duration) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if base > 0 {
			cfg.retryBase = base
		}
	}
}

// WithReceiveWaitSeconds sets the long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) DispatcherOption {
	return func(cfg *dispatcherConfig) {
		if size <= 0 {
			return
		}
		if size > maxBatchSize {
			size = maxBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewDispatcher constructs a queue consumer around the provided handler.
func NewDispatcher(queue Client, handler Handler, jobs JobUpdater, logger *logging.Logger, m *metrics.PipelineMetrics, opts ...DispatcherOption) *Dispatcher {
	if queue == nil {
		panic("queue: queue client cannot be nil")
	}
	if handler == nil {
		panic("queue: handler cannot be nil")
	}
	if jobs == nil {
		panic("queue: job updater cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := dispatcherConfig{
		workers:          defaultWorkerCount,
		maxAttempts:      defaultMaxAttempts,
		retryBase:        defaultRetryBase,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Dispatcher{
		queue:   queue,
		handler: handler,
		jobs:    jobs,
		logger:  logger,
		metrics: m,
		cfg:     cfg,
	}
}

// Start launches worker goroutines until ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.cfg.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx, i+1)
	}
}

// Wait blocks until all worker goroutines exit.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, workerID int) {
	defer d.wg.Done()
	d.logger.Debug("dispatcher worker started", "worker_id", workerID)

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("dispatcher worker stopping", "worker_id", workerID)
			return
		default:
		}

		messages, err := d.queue.Receive(ctx, d.cfg.receiveBatchSize, d.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			d.logger.Error("failed to receive jobs", "error", err, "worker_id", workerID)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			d.handleMessage(ctx, msg)
		}
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg Message) {
	payload, err := DecodePayload(msg.Body)
	if err != nil {
		d.logger.Error("failed to decode job", "error", err, "msg_id", msg.ID)
		d.deleteMessage(msg.ReceiptHandle)
		return
	}
	if payload.Attempt < 1 {
		payload.Attempt = 1
	}

	// The transport cannot remove an enqueued message, so cancellation is a
	// status the job store carries and the dispatcher honors here.
	if cancelled, err := d.jobs.IsCancelled(ctx, payload.JobID); err != nil {
		d.logger.Warn("failed to check job cancellation", "error", err, "job_id", payload.JobID)
	} else if cancelled {
		d.logger.Info("dropping cancelled job", "job_id", payload.JobID)
		d.deleteMessage(msg.ReceiptHandle)
		return
	}

	started := time.Now()
	handleErr := d.handler(ctx, payload)
	elapsed := time.Since(started).Seconds()

	if handleErr == nil {
		d.metrics.ObserveJob(JobStatusCompleted, elapsed)
		if err := d.jobs.MarkCompleted(ctx, payload.JobID, payload.Attempt); err != nil && !errors.Is(err, ErrJobNotFound) {
			d.logger.Error("failed to update job status", "error", err, "job_id", payload.JobID)
		}
		d.deleteMessage(msg.ReceiptHandle)
		return
	}

	d.logger.Error("job attempt failed",
		"error", handleErr, "job_id", payload.JobID, "attempt", payload.Attempt)

	if payload.Attempt >= d.cfg.maxAttempts {
		d.metrics.ObserveJob(JobStatusFailed, elapsed)
		if err := d.jobs.MarkFailed(ctx, payload.JobID, payload.Attempt, handleErr.Error()); err != nil && !errors.Is(err, ErrJobNotFound) {
			d.logger.Error("failed to dead-letter job", "error", err, "job_id", payload.JobID)
		}
		d.deleteMessage(msg.ReceiptHandle)
		return
	}

	d.retry(ctx, payload, msg.ReceiptHandle)
}

// retry re-enqueues the payload with an incremented attempt counter and a
// delay of base << (attempt-1): 2s before the second attempt, 4s before the
// third with the defaults.
func (d *Dispatcher) retry(ctx context.Context, payload Payload, receiptHandle string) {
	delay := d.cfg.retryBase << (payload.Attempt - 1)
	payload.Attempt++

	body, err := payload.Encode()
	if err != nil {
		d.logger.Error("failed to encode retry payload", "error", err, "job_id", payload.JobID)
		return
	}
	if err := d.queue.SendDelayed(ctx, body, delay); err != nil {
		d.logger.Error("failed to re-enqueue job", "error", err, "job_id", payload.JobID)
		// The original message stays in flight; the transport redelivers it.
		return
	}

	d.metrics.ObserveRetry()
	d.logger.Info("job scheduled for retry",
		"job_id", payload.JobID, "attempt", payload.Attempt, "delay", delay.String())
	d.deleteMessage(receiptHandle)
}

func (d *Dispatcher) deleteMessage(receiptHandle string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.queue.Delete(ctx, receiptHandle); err != nil {
		d.logger.Warn("failed to delete queue message", "error", err)
	}
}
