// Package reminder periodically announces how many reviews each user has due.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/p-n-ai/pai-adaptive/internal/platform/broker"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
)

// RoutingKey is the routing key of due-review digests.
const RoutingKey = "review.due"

const sweepTimeout = 30 * time.Second

// DueCounter counts due reviews per user.
type DueCounter interface {
	DueReviewCounts(ctx context.Context, t time.Time) (map[string]int, error)
}

// Digest tells a user's notification channel how many reviews are waiting.
type Digest struct {
	UserID string    `json:"user_id"`
	Due    int       `json:"due"`
	At     time.Time `json:"at"`
}

// Sweeper publishes one digest per user with due reviews.
type Sweeper struct {
	counter   DueCounter
	publisher broker.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSweeper creates a sweeper. m may be nil.
func NewSweeper(counter DueCounter, publisher broker.Publisher, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		counter:   counter,
		publisher: publisher,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep publishes the digests and returns how many were sent. A failed
// publish does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	counts, err := s.counter.DueReviewCounts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("counting due reviews: %w", err)
	}

	users := make([]string, 0, len(counts))
	total := 0
	for user, n := range counts {
		if n > 0 {
			users = append(users, user)
			total += n
		}
	}
	slices.Sort(users)
	if s.metrics != nil {
		s.metrics.DueReviews.Set(float64(total))
	}

	sent := 0
	var errs []error
	for _, user := range users {
		d := Digest{UserID: user, Due: counts[user], At: now}
		if err := s.publisher.Publish(ctx, RoutingKey, d); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", user, err))
			continue
		}
		sent++
	}

	slog.Info("review reminder sweep", "users", len(users), "due", total, "sent", sent)
	return sent, errors.Join(errs...)
}

// Scheduler runs a Sweeper on a fixed interval.
type Scheduler struct {
	scheduler *gocron.Scheduler
	sweeper   *Sweeper
	interval  time.Duration
}

// NewScheduler creates a scheduler that sweeps every interval.
func NewScheduler(sweeper *Sweeper, interval time.Duration) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		sweeper:   sweeper,
		interval:  interval,
	}
}

// Start schedules the sweep and returns without blocking. The first sweep
// runs immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("reminder interval must be positive, got %s", s.interval)
	}
	if _, err := s.scheduler.Every(s.interval).Do(s.run, ctx); err != nil {
		return fmt.Errorf("scheduling reminder sweep: %w", err)
	}
	s.scheduler.StartAsync()
	slog.Info("reminder scheduler started", "interval", s.interval)
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		slog.Error("review reminder sweep failed", "error", err)
	}
}

// Stop terminates the scheduler.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}
