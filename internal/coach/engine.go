// Package coach orchestrates the learning core: it fetches everything a
// request needs from the store once, runs the pure analytics over it, and
// applies mutations through the store's atomic update methods.
package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/analytics"
	"github.com/p-n-ai/pai-adaptive/internal/generation"
	"github.com/p-n-ai/pai-adaptive/internal/insight"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/platform/metrics"
	"github.com/p-n-ai/pai-adaptive/internal/store"
)

const defaultRetryAfter = 5 * time.Second

// ErrGenerationDisabled is returned when more questions are needed but no
// generator is configured.
var ErrGenerationDisabled = errors.New("question generation is not configured")

// ResultCache memoizes analytics results per user. cache.Results implements
// it over Redis.
type ResultCache interface {
	Get(ctx context.Context, userID, key string, dst any) (bool, error)
	Set(ctx context.Context, userID, key string, v any) error
	Invalidate(ctx context.Context, userID string) error
}

// Catalog lists the topics of a document and their source text.
type Catalog interface {
	Topics(documentID string) []string
	Context(documentID, topic string) string
}

// GenerationScheduler starts question generation without waiting for it.
type GenerationScheduler interface {
	Schedule(ctx context.Context, job generation.Job) (bool, error)
}

// Explainer explains a wrong answer.
type Explainer interface {
	Explain(ctx context.Context, m generation.Mistake) generation.Explanation
}

// EngineConfig holds dependencies for the engine. Only Store is required.
type EngineConfig struct {
	Store      store.Store
	Events     EventLogger
	Cache      ResultCache
	Catalog    Catalog
	Generation GenerationScheduler
	Explainer  Explainer
	Metrics    *metrics.Metrics
	RetryAfter time.Duration // how long clients wait for generation (default 5s)
	Now        func() time.Time
}

// Engine is the entry point of every learning operation.
type Engine struct {
	store      store.Store
	events     EventLogger
	cache      ResultCache
	catalog    Catalog
	generation GenerationScheduler
	explainer  Explainer
	metrics    *metrics.Metrics
	retryAfter time.Duration
	now        func() time.Time
}

// NewEngine creates a new engine.
func NewEngine(cfg EngineConfig) *Engine {
	st := cfg.Store
	if st == nil {
		st = store.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	retryAfter := cfg.RetryAfter
	if retryAfter <= 0 {
		retryAfter = defaultRetryAfter
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:      st,
		events:     events,
		cache:      cfg.Cache,
		catalog:    cfg.Catalog,
		generation: cfg.Generation,
		explainer:  cfg.Explainer,
		metrics:    cfg.Metrics,
		retryAfter: retryAfter,
		now:        now,
	}
}

func (e *Engine) logEvent(ctx context.Context, ev Event) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = e.now()
	}
	if err := e.events.LogEvent(ctx, ev); err != nil {
		slog.Warn("failed to log event", "type", ev.EventType, "user_id", ev.UserID, "error", err)
	}
}

func (e *Engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveAnalysis(operation, start)
	}
}

func (e *Engine) documentTopics(documentID string) []string {
	if e.catalog == nil || documentID == "" {
		return nil
	}
	return e.catalog.Topics(documentID)
}

// ownedSession returns the session if it belongs to userID. Sessions of
// other users are reported as missing.
func (e *Engine) ownedSession(ctx context.Context, userID, sessionID string) (*learning.Session, error) {
	sess, err := e.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, learning.ErrNotFound)
	}
	return sess, nil
}

// questionContexts loads the questions and statistics referenced by the
// answers of sessions.
func (e *Engine) questionContexts(ctx context.Context, sessions []learning.Session) (map[string]analytics.QuestionContext, error) {
	var ids []string
	for _, s := range sessions {
		for _, a := range s.Answers {
			ids = append(ids, a.QuestionID)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	if len(ids) == 0 {
		return map[string]analytics.QuestionContext{}, nil
	}

	questions, err := e.store.GetQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	stats, err := e.store.GetQuestionStatistics(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading question statistics: %w", err)
	}

	out := make(map[string]analytics.QuestionContext, len(questions))
	for _, q := range questions {
		qc := analytics.QuestionContext{Topic: q.Topic, Difficulty: q.Difficulty}
		if st, ok := stats[q.ID]; ok {
			qc.Stats = &st
		}
		out[q.ID] = qc
	}
	return out, nil
}

// sessionSignals extracts the signals of every session, keeping them apart.
func (e *Engine) sessionSignals(ctx context.Context, sessions []learning.Session) ([]insight.SessionSignals, error) {
	contexts, err := e.questionContexts(ctx, sessions)
	if err != nil {
		return nil, err
	}
	out := make([]insight.SessionSignals, 0, len(sessions))
	for _, s := range sessions {
		ss := insight.SessionSignals{
			SessionID: s.ID,
			Signals:   analytics.ExtractSignals([]learning.Session{s}, contexts),
		}
		if s.CompletedAt != nil {
			ss.CompletedAt = *s.CompletedAt
		} else {
			ss.CompletedAt = s.StartedAt
		}
		out = append(out, ss)
	}
	return out, nil
}

// completedSignals loads a user's completed sessions, oldest first. An
// empty documentID spans every document.
func (e *Engine) completedSignals(ctx context.Context, userID, documentID string) ([]insight.SessionSignals, error) {
	sessions, err := e.store.CompletedSessions(ctx, userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("loading completed sessions: %w", err)
	}
	return e.sessionSignals(ctx, sessions)
}

func flatten(sessions []insight.SessionSignals) []analytics.BehavioralSignal {
	var out []analytics.BehavioralSignal
	for _, s := range sessions {
		out = append(out, s.Signals...)
	}
	return out
}

// cached serves key from the result cache or computes and stores it.
// Cache failures degrade to computing the value.
func cached[T any](ctx context.Context, e *Engine, userID, key string, compute func() (T, error)) (T, error) {
	if e.cache == nil {
		return compute()
	}

	var v T
	hit, err := e.cache.Get(ctx, userID, key, &v)
	switch {
	case err != nil:
		e.countCache("error")
		slog.Warn("analytics cache read failed", "user_id", userID, "key", key, "error", err)
	case hit:
		e.countCache("hit")
		return v, nil
	default:
		e.countCache("miss")
	}

	v, err = compute()
	if err != nil {
		return v, err
	}
	if err := e.cache.Set(ctx, userID, key, v); err != nil {
		slog.Warn("analytics cache write failed", "user_id", userID, "key", key, "error", err)
	}
	return v, nil
}

func (e *Engine) countCache(result string) {
	if e.metrics != nil {
		e.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (e *Engine) invalidate(ctx context.Context, userID string) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, userID); err != nil {
		slog.Warn("analytics cache invalidation failed", "user_id", userID, "error", err)
	}
}
