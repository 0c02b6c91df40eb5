package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/review"
)

// StartSession opens a practice session over questionIDs. The questions
// must exist and belong to the user and document.
func (e *Engine) StartSession(ctx context.Context, userID, documentID string, questionIDs []string) (learning.Session, error) {
	if userID == "" || documentID == "" || len(questionIDs) == 0 {
		return learning.Session{}, fmt.Errorf("user, document and questions are required: %w", learning.ErrInvalidInput)
	}

	questions, err := e.store.GetQuestions(ctx, questionIDs)
	if err != nil {
		return learning.Session{}, fmt.Errorf("loading questions: %w", err)
	}
	found := make(map[string]bool, len(questions))
	for _, q := range questions {
		if q.DocumentID == documentID && (q.UserID == "" || q.UserID == userID) {
			found[q.ID] = true
		}
	}
	for _, id := range questionIDs {
		if !found[id] {
			return learning.Session{}, fmt.Errorf("question %s: %w", id, learning.ErrNotFound)
		}
	}

	sess := learning.Session{
		UserID:      userID,
		DocumentID:  documentID,
		QuestionIDs: slices.Clone(questionIDs),
		Answers:     []learning.Answer{},
		Status:      learning.SessionInProgress,
		StartedAt:   e.now(),
	}
	id, err := e.store.CreateSession(ctx, sess)
	if err != nil {
		return learning.Session{}, fmt.Errorf("creating session: %w", err)
	}
	sess.ID = id

	e.logEvent(ctx, Event{
		UserID:    userID,
		SessionID: id,
		EventType: EventSessionStarted,
		Data:      map[string]any{"document_id": documentID, "questions": len(questionIDs)},
	})
	return sess, nil
}

// Session returns one of the user's sessions.
func (e *Engine) Session(ctx context.Context, userID, sessionID string) (learning.Session, error) {
	sess, err := e.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return learning.Session{}, err
	}
	return *sess, nil
}

// RecordAnswer stores an answer in an in-progress session. Answering a
// question again replaces the earlier answer.
func (e *Engine) RecordAnswer(ctx context.Context, sessionID string, answer learning.Answer) (learning.Session, error) {
	if answer.QuestionID == "" {
		return learning.Session{}, fmt.Errorf("question_id is required: %w", learning.ErrInvalidInput)
	}
	answer.Status = answer.Outcome()
	answer.IsCorrect = answer.Status == learning.StatusCorrect
	answer.TimeTaken = max(answer.TimeTaken, 0)
	answer.HesitationCount = max(answer.HesitationCount, 0)
	answer.Applied = false
	if answer.AnsweredAt.IsZero() {
		answer.AnsweredAt = e.now()
	}

	return e.store.UpdateSession(ctx, sessionID, func(s *learning.Session) error {
		if s.Status != learning.SessionInProgress {
			return fmt.Errorf("session %s is %s: %w", sessionID, s.Status, learning.ErrInvalidState)
		}
		if !slices.Contains(s.QuestionIDs, answer.QuestionID) {
			return fmt.Errorf("question %s is not part of session %s: %w", answer.QuestionID, sessionID, learning.ErrInvalidInput)
		}
		if i := slices.IndexFunc(s.Answers, func(a learning.Answer) bool { return a.QuestionID == answer.QuestionID }); i >= 0 {
			if s.Answers[i].UserAnswer != answer.UserAnswer {
				answer.ChangedAnswer = true
			}
			s.Answers[i] = answer
			return nil
		}
		s.Answers = append(s.Answers, answer)
		return nil
	})
}

// CompleteSession closes an in-progress session. The call that makes the
// transition applies its effects: question statistics and pool counters are
// updated once per answer, every wrong answer gets a review item, and the
// user's cached analytics are dropped. Each answer is marked applied as it
// goes, so when a write fails the call can be repeated to finish the rest.
func (e *Engine) CompleteSession(ctx context.Context, sessionID string) (learning.Session, error) {
	now := e.now()
	sess, err := e.store.UpdateSession(ctx, sessionID, func(s *learning.Session) error {
		switch {
		case s.Status == learning.SessionInProgress:
			s.Status = learning.SessionCompleted
			s.CompletedAt = &now
			return nil
		case s.Status == learning.SessionCompleted && slices.ContainsFunc(s.Answers, learning.Answer.Pending):
			return nil
		default:
			return fmt.Errorf("session %s is %s: %w", sessionID, s.Status, learning.ErrInvalidState)
		}
	})
	if err != nil {
		return learning.Session{}, err
	}

	sess, reviews, err := e.applyAnswers(ctx, sess, now)
	if err != nil {
		return sess, err
	}

	e.invalidate(ctx, sess.UserID)
	if e.metrics != nil {
		e.metrics.SessionsCompleted.Inc()
	}

	correct := 0
	for _, a := range sess.Answers {
		if a.Outcome() == learning.StatusCorrect {
			correct++
		}
	}
	e.logEvent(ctx, Event{
		UserID:    sess.UserID,
		SessionID: sess.ID,
		EventType: EventSessionCompleted,
		Data: map[string]any{
			"document_id":     sess.DocumentID,
			"answers":         len(sess.Answers),
			"correct":         correct,
			"reviews_created": reviews,
		},
	})
	slog.Info("session completed",
		"session_id", sess.ID,
		"user_id", sess.UserID,
		"document_id", sess.DocumentID,
		"answers", len(sess.Answers),
	)
	return sess, nil
}

// applyAnswers folds the pending answers of a completed session into
// question statistics, pool counters and review items, marking each one
// applied. It returns the updated session and the number of review items
// created.
func (e *Engine) applyAnswers(ctx context.Context, sess learning.Session, now time.Time) (learning.Session, int, error) {
	var wrongIDs []string
	for _, a := range sess.Answers {
		if a.Pending() && a.Outcome() == learning.StatusWrong {
			wrongIDs = append(wrongIDs, a.QuestionID)
		}
	}
	missed := map[string]learning.Question{}
	if len(wrongIDs) > 0 {
		questions, err := e.store.GetQuestions(ctx, wrongIDs)
		if err != nil {
			return sess, 0, fmt.Errorf("loading missed questions: %w", err)
		}
		for _, q := range questions {
			missed[q.ID] = q
		}
	}

	created := 0
	for _, a := range sess.Answers {
		if !a.Pending() {
			continue
		}
		ok, err := e.applyAnswer(ctx, sess.UserID, a, missed, now)
		if err != nil {
			return sess, created, err
		}
		if ok {
			created++
		}

		sess, err = e.store.UpdateSession(ctx, sess.ID, func(s *learning.Session) error {
			if i := slices.IndexFunc(s.Answers, func(x learning.Answer) bool { return x.QuestionID == a.QuestionID }); i >= 0 {
				s.Answers[i].Applied = true
			}
			return nil
		})
		if err != nil {
			return sess, created, fmt.Errorf("marking answer %s applied: %w", a.QuestionID, err)
		}
	}
	return sess, created, nil
}

// applyAnswer records one answer. It reports whether a review item was created.
func (e *Engine) applyAnswer(ctx context.Context, userID string, a learning.Answer, missed map[string]learning.Question, now time.Time) (bool, error) {
	correct := a.Outcome() == learning.StatusCorrect

	if _, err := e.store.UpdateQuestionStatistics(ctx, a.QuestionID, func(st *learning.QuestionStatistics) error {
		st.Record(correct, a.TimeTaken, now)
		return nil
	}); err != nil {
		return false, fmt.Errorf("updating statistics of %s: %w", a.QuestionID, err)
	}

	_, err := e.store.UpdatePoolEntry(ctx, a.QuestionID, func(p *learning.PoolEntry) error {
		p.RecordAttempt(correct)
		return nil
	})
	if err != nil && !errors.Is(err, learning.ErrNotFound) {
		return false, fmt.Errorf("updating pool entry of %s: %w", a.QuestionID, err)
	}

	q, ok := missed[a.QuestionID]
	if correct || !ok {
		return false, nil
	}
	return e.ensureReview(ctx, userID, q, now)
}

// ensureReview creates a review item for q unless the user already has one.
func (e *Engine) ensureReview(ctx context.Context, userID string, q learning.Question, now time.Time) (bool, error) {
	created := false
	_, err := e.store.UpdateReviewItem(ctx, userID, q.ID, func(item *learning.ReviewItem, exists bool) error {
		if exists {
			return nil
		}
		*item = review.NewItem(userID, q, now)
		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("creating review of %s: %w", q.ID, err)
	}
	return created, nil
}
