package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/platform/broker"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
)

// QuestionSaver stores generated questions and registers them in the pool.
type QuestionSaver interface {
	SaveQuestions(ctx context.Context, qs []learning.Question) ([]learning.Question, error)
}

// Sources supplies the text questions are generated from.
type Sources interface {
	Topics(documentID string) []string
	Context(documentID, topic string) string
}

// Worker executes generation jobs.
type Worker struct {
	gen       *Generator
	store     QuestionSaver
	sources   Sources
	locks     Locker
	publisher broker.Publisher
	metrics   *metrics.Metrics
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPublisher announces finished jobs on the broker.
func WithPublisher(p broker.Publisher) WorkerOption {
	return func(w *Worker) { w.publisher = p }
}

// WithMetrics counts job outcomes.
func WithMetrics(m *metrics.Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

// NewWorker creates a worker. locks must be the Locker the dispatcher uses.
func NewWorker(gen *Generator, store QuestionSaver, sources Sources, locks Locker, opts ...WorkerOption) *Worker {
	w := &Worker{gen: gen, store: store, sources: sources, locks: locks}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle generates and stores the questions of job, then frees its lock.
// Topics without source text are skipped. It fails only when nothing
// could be generated.
func (w *Worker) Handle(ctx context.Context, job Job) ([]learning.Question, error) {
	defer func() {
		if err := w.locks.Release(context.WithoutCancel(ctx), job.LockKey(), job.LockToken); err != nil {
			slog.Warn("failed to release generation lock", "job_id", job.ID, "error", err)
		}
	}()

	topics := job.Topics
	if len(topics) == 0 {
		topics = w.sources.Topics(job.DocumentID)
	}
	if len(topics) == 0 {
		topics = []string{""} // whole document
	}

	var generated []learning.Question
	var errs []error
	for i, n := range split(job.Count, len(topics)) {
		if n == 0 {
			continue
		}
		topic := topics[i]
		text := w.sources.Context(job.DocumentID, topic)
		if text == "" {
			slog.Warn("no source text for topic", "document_id", job.DocumentID, "topic", topic)
			continue
		}
		qs, err := w.gen.Generate(ctx, Request{
			DocumentID: job.DocumentID,
			UserID:     job.UserID,
			Context:    text,
			Topic:      topic,
			Count:      n,
			Difficulty: job.Difficulty,
			Type:       job.Type,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("topic %q: %w", topic, err))
			continue
		}
		generated = append(generated, qs...)
	}

	if len(generated) == 0 {
		err := errors.Join(errs...)
		if err == nil {
			err = fmt.Errorf("document %s has no source text: %w", job.DocumentID, learning.ErrNotFound)
		}
		w.finish(ctx, job, 0, err)
		return nil, err
	}

	saved, err := w.store.SaveQuestions(ctx, generated)
	if err != nil {
		err = fmt.Errorf("saving generated questions: %w", err)
		w.finish(ctx, job, 0, err)
		return nil, err
	}

	w.finish(ctx, job, len(saved), nil)
	return saved, nil
}

func (w *Worker) finish(ctx context.Context, job Job, generated int, err error) {
	outcome := "succeeded"
	done := Completed{
		JobID:       job.ID,
		UserID:      job.UserID,
		DocumentID:  job.DocumentID,
		Generated:   generated,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		outcome = "failed"
		done.Error = err.Error()
		slog.Error("generation job failed", "job_id", job.ID, "user_id", job.UserID, "document_id", job.DocumentID, "error", err)
	} else {
		slog.Info("generation job finished", "job_id", job.ID, "user_id", job.UserID, "document_id", job.DocumentID, "generated", generated)
	}

	if w.metrics != nil {
		w.metrics.GenerationJobs.WithLabelValues(outcome).Inc()
	}
	if w.publisher != nil {
		if err := w.publisher.Publish(context.WithoutCancel(ctx), RoutingKeyCompleted, done); err != nil {
			slog.Warn("failed to publish generation result", "job_id", job.ID, "error", err)
		}
	}
}

// HandleMessage decodes a job published on RoutingKeyRequested and runs it.
// It satisfies broker.Handler.
func (w *Worker) HandleMessage(ctx context.Context, _ string, body []byte) error {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("decoding generation job: %w", err)
	}
	_, err := w.Handle(ctx, job)
	return err
}
