package coach

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/generation"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/selection"
)

// Selection statuses.
const (
	StatusReady      = "ready"
	StatusGenerating = "generating"
)

// SelectRequest asks for Count questions of a document.
type SelectRequest struct {
	UserID       string                  `json:"user_id"`
	DocumentID   string                  `json:"document_id"`
	Count        int                     `json:"count"`
	Types        []learning.QuestionType `json:"question_types,omitempty"`
	Topics       []string                `json:"topics,omitempty"`
	Difficulties []learning.Difficulty   `json:"difficulties,omitempty"`
}

// SelectResult is the outcome of SelectQuestions. With StatusGenerating the
// pool is short by Shortfall questions and the client should retry after
// RetryAfter; Questions then holds what is available so far.
type SelectResult struct {
	Status     string              `json:"status"`
	Questions  []learning.Question `json:"questions"`
	Shortfall  int                 `json:"shortfall,omitempty"`
	RetryAfter time.Duration       `json:"-"`
	Pool       selection.PoolStats `json:"pool"`
}

func (r SelectRequest) filter() learning.PoolFilter {
	return learning.PoolFilter{
		Types:           r.Types,
		Topics:          r.Topics,
		Difficulties:    r.Difficulties,
		IncludeMastered: true,
	}
}

// SelectQuestions picks questions for a new practice test, reusing the pool
// before asking for generation. When the pool runs short, generation is
// scheduled in the background and the result says to come back later.
func (e *Engine) SelectQuestions(ctx context.Context, req SelectRequest) (SelectResult, error) {
	if req.UserID == "" || req.DocumentID == "" {
		return SelectResult{}, fmt.Errorf("user and document are required: %w", learning.ErrInvalidInput)
	}
	if req.Count <= 0 {
		return SelectResult{}, fmt.Errorf("count must be positive, got %d: %w", req.Count, learning.ErrInvalidInput)
	}

	pool, err := e.store.GetQuestionPool(ctx, req.DocumentID, req.UserID, req.filter())
	if err != nil {
		return SelectResult{}, fmt.Errorf("loading question pool: %w", err)
	}
	picked := selection.Select(pool, req.Count)

	ids := make([]string, len(picked.Entries))
	for i, entry := range picked.Entries {
		ids[i] = entry.QuestionID
	}
	questions, err := e.orderedQuestions(ctx, ids)
	if err != nil {
		return SelectResult{}, err
	}

	res := SelectResult{
		Status:    StatusReady,
		Questions: questions,
		Pool:      selection.Stats(pool),
	}
	if picked.NeedsGeneration {
		if err := e.requestGeneration(ctx, req, picked.Shortfall); err != nil {
			return SelectResult{}, err
		}
		res.Status = StatusGenerating
		res.Shortfall = picked.Shortfall
		res.RetryAfter = e.retryAfter
		return res, nil
	}

	if err := e.store.MarkQuestionsUsed(ctx, ids, e.now()); err != nil {
		return SelectResult{}, fmt.Errorf("marking questions used: %w", err)
	}
	return res, nil
}

// QuestionPool summarises a user's pool for a document.
func (e *Engine) QuestionPool(ctx context.Context, userID, documentID string) (selection.PoolStats, error) {
	pool, err := e.store.GetQuestionPool(ctx, documentID, userID, learning.PoolFilter{IncludeMastered: true})
	if err != nil {
		return selection.PoolStats{}, fmt.Errorf("loading question pool: %w", err)
	}
	return selection.Stats(pool), nil
}

func (e *Engine) orderedQuestions(ctx context.Context, ids []string) ([]learning.Question, error) {
	out := make([]learning.Question, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	qs, err := e.store.GetQuestions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	byID := make(map[string]learning.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (e *Engine) requestGeneration(ctx context.Context, req SelectRequest, shortfall int) error {
	if e.generation == nil {
		return learning.Upstream("schedule generation", ErrGenerationDisabled)
	}

	job := generation.Job{
		UserID:     req.UserID,
		DocumentID: req.DocumentID,
		Topics:     req.Topics,
		Count:      shortfall,
		Difficulty: learning.DifficultyMedium,
		Type:       learning.QuestionMCQ,
	}
	if len(req.Difficulties) > 0 {
		job.Difficulty = req.Difficulties[0]
	}
	if len(req.Types) > 0 {
		job.Type = req.Types[0]
	}

	started, err := e.generation.Schedule(ctx, job)
	if err != nil {
		return err
	}
	if started {
		e.logEvent(ctx, Event{
			UserID:    req.UserID,
			EventType: EventGenerationRequested,
			Data:      map[string]any{"document_id": req.DocumentID, "count": shortfall},
		})
	} else {
		slog.Debug("generation already running", "user_id", req.UserID, "document_id", req.DocumentID)
	}
	return nil
}
