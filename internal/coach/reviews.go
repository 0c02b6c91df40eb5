package coach

import (
	"context"
	"fmt"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/generation"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/review"
)

// SubmitReview records a review answer and reschedules the item with SM-2.
func (e *Engine) SubmitReview(ctx context.Context, userID, questionID string, resp review.Response) (learning.ReviewItem, error) {
	if resp.Quality < 0 || resp.Quality > review.MaxQuality {
		return learning.ReviewItem{}, fmt.Errorf("quality must be between 0 and %d, got %d: %w", review.MaxQuality, resp.Quality, learning.ErrInvalidInput)
	}

	now := e.now()
	item, err := e.store.UpdateReviewItem(ctx, userID, questionID, func(item *learning.ReviewItem, exists bool) error {
		if !exists {
			return fmt.Errorf("review of question %s: %w", questionID, learning.ErrNotFound)
		}
		*item = review.Apply(*item, resp, now)
		return nil
	})
	if err != nil {
		return learning.ReviewItem{}, err
	}

	if e.metrics != nil {
		outcome := "passed"
		if resp.Quality < 3 {
			outcome = "reset"
		}
		e.metrics.ReviewsSubmitted.WithLabelValues(outcome).Inc()
	}
	e.logEvent(ctx, Event{
		UserID:    userID,
		EventType: EventReviewSubmitted,
		Data: map[string]any{
			"question_id": questionID,
			"quality":     resp.Quality,
			"interval":    item.Interval,
		},
	})
	return item, nil
}

// DueReviews returns up to limit reviews due now, most urgent first. An
// empty documentID spans every document; limit <= 0 means no limit.
func (e *Engine) DueReviews(ctx context.Context, userID, documentID string, limit int) ([]review.QueueItem, error) {
	now := e.now()
	items, err := e.store.ListReviewItems(ctx, userID, learning.ReviewFilter{DocumentID: documentID, DueBefore: now})
	if err != nil {
		return nil, fmt.Errorf("listing due reviews: %w", err)
	}
	return review.DueQueue(items, now, limit), nil
}

// ReviewSchedule summarises when the user's reviews fall due.
func (e *Engine) ReviewSchedule(ctx context.Context, userID, documentID string) (review.Schedule, error) {
	items, err := e.store.ListReviewItems(ctx, userID, learning.ReviewFilter{DocumentID: documentID})
	if err != nil {
		return review.Schedule{}, fmt.Errorf("listing reviews: %w", err)
	}
	return review.Summarize(items, e.now()), nil
}

// RequestReview adds one of the user's questions to their reviews. An
// existing item is returned unchanged.
func (e *Engine) RequestReview(ctx context.Context, userID, questionID string) (learning.ReviewItem, error) {
	qs, err := e.store.GetQuestions(ctx, []string{questionID})
	if err != nil {
		return learning.ReviewItem{}, fmt.Errorf("loading question: %w", err)
	}
	if len(qs) == 0 || (qs[0].UserID != "" && qs[0].UserID != userID) {
		return learning.ReviewItem{}, fmt.Errorf("question %s: %w", questionID, learning.ErrNotFound)
	}

	if _, err := e.ensureReview(ctx, userID, qs[0], e.now()); err != nil {
		return learning.ReviewItem{}, err
	}
	item, err := e.store.GetReviewItem(ctx, userID, questionID)
	if err != nil {
		return learning.ReviewItem{}, err
	}

	e.logEvent(ctx, Event{
		UserID:    userID,
		EventType: EventReviewRequested,
		Data:      map[string]any{"question_id": questionID},
	})
	return *item, nil
}

// RescheduleReview moves a review to due without changing its SM-2 state.
func (e *Engine) RescheduleReview(ctx context.Context, userID, questionID string, due time.Time) (learning.ReviewItem, error) {
	if due.IsZero() {
		return learning.ReviewItem{}, fmt.Errorf("due date is required: %w", learning.ErrInvalidInput)
	}
	now := e.now()
	return e.store.UpdateReviewItem(ctx, userID, questionID, func(item *learning.ReviewItem, exists bool) error {
		if !exists {
			return fmt.Errorf("review of question %s: %w", questionID, learning.ErrNotFound)
		}
		*item = review.Reschedule(*item, due.UTC(), now)
		return nil
	})
}

// ExplainMistake explains why the user's answer to a question of a
// completed session was wrong, grounded in the document's text.
func (e *Engine) ExplainMistake(ctx context.Context, userID, sessionID, questionID string) (generation.Explanation, error) {
	sess, err := e.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return generation.Explanation{}, err
	}
	if sess.Status != learning.SessionCompleted {
		return generation.Explanation{}, fmt.Errorf("session %s is %s: %w", sessionID, sess.Status, learning.ErrInvalidState)
	}

	var answer *learning.Answer
	for i := range sess.Answers {
		if sess.Answers[i].QuestionID == questionID {
			answer = &sess.Answers[i]
			break
		}
	}
	if answer == nil {
		return generation.Explanation{}, fmt.Errorf("answer to question %s: %w", questionID, learning.ErrNotFound)
	}
	if answer.Outcome() == learning.StatusCorrect {
		return generation.Explanation{}, fmt.Errorf("answer to question %s is correct: %w", questionID, learning.ErrInvalidState)
	}

	qs, err := e.store.GetQuestions(ctx, []string{questionID})
	if err != nil {
		return generation.Explanation{}, fmt.Errorf("loading question: %w", err)
	}
	if len(qs) == 0 {
		return generation.Explanation{}, fmt.Errorf("question %s: %w", questionID, learning.ErrNotFound)
	}
	if e.explainer == nil {
		return generation.Explanation{}, learning.Upstream("explain mistake", ErrGenerationDisabled)
	}

	m := generation.Mistake{Question: qs[0], Answer: *answer}
	if e.catalog != nil {
		m.Context = e.catalog.Context(sess.DocumentID, qs[0].Topic)
	}
	return e.explainer.Explain(ctx, m), nil
}
