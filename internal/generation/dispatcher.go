package generation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/platform/broker"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
)

// Dispatcher schedules generation jobs without waiting for them. At most one
// job per user and document is in flight. Jobs go to the broker when one is
// configured and otherwise run on a local goroutine.
type Dispatcher struct {
	locks     Locker
	lockTTL   time.Duration
	publisher broker.Publisher
	local     *Worker
	timeout   time.Duration
	metrics   *metrics.Metrics

	wg sync.WaitGroup
}

// DispatcherConfig configures a Dispatcher. Exactly one of Publisher and
// Local should be set.
type DispatcherConfig struct {
	Locks     Locker
	LockTTL   time.Duration
	Publisher broker.Publisher
	Local     *Worker
	// Timeout bounds a locally run job.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Locks == nil {
		return nil, fmt.Errorf("dispatcher needs a locker")
	}
	if cfg.Publisher == nil && cfg.Local == nil {
		return nil, fmt.Errorf("dispatcher needs a publisher or a local worker")
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.LockTTL
	}
	return &Dispatcher{
		locks:     cfg.Locks,
		lockTTL:   cfg.LockTTL,
		publisher: cfg.Publisher,
		local:     cfg.Local,
		timeout:   cfg.Timeout,
		metrics:   cfg.Metrics,
	}, nil
}

// Schedule starts job unless one for the same user and document is already
// running. It reports whether a new job was started.
func (d *Dispatcher) Schedule(ctx context.Context, job Job) (bool, error) {
	if job.Count <= 0 {
		return false, fmt.Errorf("job count must be positive: %w", learning.ErrInvalidInput)
	}

	token, err := d.locks.Acquire(ctx, job.LockKey(), d.lockTTL)
	if err != nil {
		return false, learning.Upstream("acquire generation lock", err)
	}
	if token == "" {
		d.count("deduplicated")
		slog.Debug("generation already in flight", "user_id", job.UserID, "document_id", job.DocumentID)
		return false, nil
	}

	job.ID = uuid.NewString()
	job.LockToken = token
	job.RequestedAt = time.Now().UTC()

	if d.publisher != nil {
		if err := d.publisher.Publish(ctx, RoutingKeyRequested, job); err != nil {
			_ = d.locks.Release(context.WithoutCancel(ctx), job.LockKey(), token)
			return false, learning.Upstream("publish generation job", err)
		}
	} else {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			// The request that scheduled the job has already returned.
			runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
			defer cancel()
			_, _ = d.local.Handle(runCtx, job)
		}()
	}

	d.count("scheduled")
	slog.Info("generation scheduled", "job_id", job.ID, "user_id", job.UserID, "document_id", job.DocumentID, "count", job.Count)
	return true, nil
}

func (d *Dispatcher) count(outcome string) {
	if d.metrics != nil {
		d.metrics.GenerationJobs.WithLabelValues(outcome).Inc()
	}
}

// Wait blocks until locally running jobs finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
