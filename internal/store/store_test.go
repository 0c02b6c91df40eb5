package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
	"github.com/p-n-ai/pai-adaptive/internal/store"
)

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) store.Store { return store.NewMemoryStore() })
}

// runStoreContract exercises behaviour every Store implementation shares.
// newStore must return an empty store.
func runStoreContract(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("session lifecycle", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		id, err := s.CreateSession(ctx, learning.Session{UserID: "u1", DocumentID: "d1", QuestionIDs: []string{"q1"}})
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}

		got, err := s.GetSession(ctx, id)
		if err != nil {
			t.Fatalf("GetSession() error = %v", err)
		}
		if got.Status != learning.SessionInProgress || len(got.QuestionIDs) != 1 {
			t.Errorf("GetSession() = %+v", got)
		}

		done := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
		_, err = s.UpdateSession(ctx, id, func(sess *learning.Session) error {
			sess.Answers = append(sess.Answers, learning.Answer{QuestionID: "q1", Status: learning.StatusCorrect, TimeTaken: 12})
			sess.Status = learning.SessionCompleted
			sess.CompletedAt = &done
			return nil
		})
		if err != nil {
			t.Fatalf("UpdateSession() error = %v", err)
		}

		completed, err := s.CompletedSessions(ctx, "u1", "d1")
		if err != nil {
			t.Fatalf("CompletedSessions() error = %v", err)
		}
		if len(completed) != 1 || len(completed[0].Answers) != 1 || completed[0].Answers[0].TimeTaken != 12 {
			t.Errorf("CompletedSessions() = %+v", completed)
		}
		if other, _ := s.CompletedSessions(ctx, "u2", ""); len(other) != 0 {
			t.Errorf("CompletedSessions(u2) = %d sessions, want 0", len(other))
		}
	})

	t.Run("missing session", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetSession(t.Context(), "nope"); !errors.Is(err, learning.ErrNotFound) {
			t.Errorf("GetSession() error = %v, want ErrNotFound", err)
		}
		_, err := s.UpdateSession(t.Context(), "nope", func(*learning.Session) error { return nil })
		if !errors.Is(err, learning.ErrNotFound) {
			t.Errorf("UpdateSession() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("failed mutation is not applied", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		id, err := s.CreateSession(ctx, learning.Session{UserID: "u1", DocumentID: "d1"})
		if err != nil {
			t.Fatalf("CreateSession() error = %v", err)
		}
		boom := errors.New("boom")
		_, err = s.UpdateSession(ctx, id, func(sess *learning.Session) error {
			sess.Status = learning.SessionAbandoned
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("UpdateSession() error = %v, want boom", err)
		}
		got, _ := s.GetSession(ctx, id)
		if got.Status != learning.SessionInProgress {
			t.Errorf("status = %q, mutation leaked", got.Status)
		}
	})

	t.Run("questions and pool", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()

		saved, err := s.SaveQuestions(ctx, []learning.Question{
			{DocumentID: "d1", UserID: "u1", Text: "What is ATP?", Type: learning.QuestionMCQ, Difficulty: "easy", Topic: "Energy",
				Options: []learning.Option{{Text: "A molecule", IsCorrect: true}, {Text: "A cell"}}},
			{DocumentID: "d1", UserID: "u1", Text: "Explain osmosis", Type: learning.QuestionShortAnswer, Difficulty: "legendary", Topic: "Cells"},
		})
		if err != nil {
			t.Fatalf("SaveQuestions() error = %v", err)
		}
		if len(saved) != 2 || saved[0].ID == "" || saved[1].Difficulty != learning.DifficultyMedium {
			t.Fatalf("SaveQuestions() = %+v", saved)
		}

		qs, err := s.GetQuestions(ctx, []string{saved[1].ID, "missing", saved[0].ID})
		if err != nil {
			t.Fatalf("GetQuestions() error = %v", err)
		}
		if len(qs) != 2 || len(qs[1].Options) != 2 {
			t.Errorf("GetQuestions() = %+v", qs)
		}

		pool, err := s.GetQuestionPool(ctx, "d1", "u1", learning.PoolFilter{Topics: []string{"energy"}})
		if err != nil {
			t.Fatalf("GetQuestionPool() error = %v", err)
		}
		if len(pool) != 1 || pool[0].QuestionID != saved[0].ID {
			t.Fatalf("GetQuestionPool() = %+v", pool)
		}

		for _, correct := range []bool{true, true} {
			if _, err := s.UpdatePoolEntry(ctx, saved[0].ID, func(e *learning.PoolEntry) error {
				e.RecordAttempt(correct)
				return nil
			}); err != nil {
				t.Fatalf("UpdatePoolEntry() error = %v", err)
			}
		}
		e, err := s.UpdatePoolEntry(ctx, saved[0].ID, func(e *learning.PoolEntry) error {
			e.IsMastered = false
			return nil
		})
		if err != nil {
			t.Fatalf("UpdatePoolEntry() error = %v", err)
		}
		if !e.IsMastered {
			t.Error("mastery must not be cleared")
		}

		open, _ := s.GetQuestionPool(ctx, "d1", "u1", learning.PoolFilter{})
		if len(open) != 1 || open[0].QuestionID != saved[1].ID {
			t.Errorf("open pool = %+v, want only the unmastered question", open)
		}

		at := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
		if err := s.MarkQuestionsUsed(ctx, []string{saved[1].ID}, at); err != nil {
			t.Fatalf("MarkQuestionsUsed() error = %v", err)
		}
		open, _ = s.GetQuestionPool(ctx, "d1", "u1", learning.PoolFilter{})
		if open[0].LastUsedAt == nil || !open[0].LastUsedAt.Equal(at) {
			t.Errorf("LastUsedAt = %v, want %v", open[0].LastUsedAt, at)
		}

		if _, err := s.UpdatePoolEntry(ctx, "missing", func(*learning.PoolEntry) error { return nil }); !errors.Is(err, learning.ErrNotFound) {
			t.Errorf("UpdatePoolEntry(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("statistics", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		now := time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC)

		for _, correct := range []bool{true, false, false, true} {
			if _, err := s.UpdateQuestionStatistics(ctx, "q1", func(st *learning.QuestionStatistics) error {
				st.Record(correct, 20, now)
				return nil
			}); err != nil {
				t.Fatalf("UpdateQuestionStatistics() error = %v", err)
			}
		}
		stats, err := s.GetQuestionStatistics(ctx, []string{"q1", "q2"})
		if err != nil {
			t.Fatalf("GetQuestionStatistics() error = %v", err)
		}
		st, ok := stats["q1"]
		if !ok || st.TotalAttempts != 4 || st.CorrectAttempts != 2 || st.EmpiricalDifficulty != 0.5 {
			t.Errorf("statistics = %+v", st)
		}
		if _, ok := stats["q2"]; ok {
			t.Error("statistics for an unseen question should be absent")
		}
	})

	t.Run("concurrent statistics updates", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		now := time.Now().UTC()

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = s.UpdateQuestionStatistics(ctx, "q1", func(st *learning.QuestionStatistics) error {
					st.Record(true, 10, now)
					return nil
				})
			}()
		}
		wg.Wait()

		stats, _ := s.GetQuestionStatistics(ctx, []string{"q1"})
		if stats["q1"].TotalAttempts != 10 {
			t.Errorf("TotalAttempts = %d, want 10", stats["q1"].TotalAttempts)
		}
	})

	t.Run("review items", func(t *testing.T) {
		s := newStore(t)
		ctx := t.Context()
		now := time.Date(2026, 4, 4, 0, 0, 0, 0, time.UTC)

		if _, err := s.GetReviewItem(ctx, "u1", "q1"); !errors.Is(err, learning.ErrNotFound) {
			t.Fatalf("GetReviewItem() error = %v, want ErrNotFound", err)
		}

		create := func(item *learning.ReviewItem, exists bool) error {
			if exists {
				return nil
			}
			*item = learning.ReviewItem{
				DocumentID: "d1", Topic: "Cells", Difficulty: learning.DifficultyEasy,
				Interval: 1, EaseFactor: 2.5, NextReviewDate: now.Add(24 * time.Hour),
				CreatedAt: now, UpdatedAt: now,
			}
			return nil
		}
		first, err := s.UpdateReviewItem(ctx, "u1", "q1", create)
		if err != nil {
			t.Fatalf("UpdateReviewItem() error = %v", err)
		}
		second, err := s.UpdateReviewItem(ctx, "u1", "q1", create)
		if err != nil {
			t.Fatalf("UpdateReviewItem() error = %v", err)
		}
		if first.ID == "" || first.ID != second.ID {
			t.Errorf("review item IDs = %q, %q, want one stable item", first.ID, second.ID)
		}

		_, err = s.UpdateReviewItem(ctx, "u1", "q2", func(_ *learning.ReviewItem, exists bool) error {
			if !exists {
				return learning.ErrNotFound
			}
			return nil
		})
		if !errors.Is(err, learning.ErrNotFound) {
			t.Errorf("UpdateReviewItem(q2) error = %v, want ErrNotFound", err)
		}

		items, err := s.ListReviewItems(ctx, "u1", learning.ReviewFilter{DueBefore: now.Add(48 * time.Hour)})
		if err != nil {
			t.Fatalf("ListReviewItems() error = %v", err)
		}
		if len(items) != 1 || items[0].Topic != "Cells" {
			t.Errorf("ListReviewItems() = %+v", items)
		}
		if none, _ := s.ListReviewItems(ctx, "u1", learning.ReviewFilter{DueBefore: now}); len(none) != 0 {
			t.Errorf("ListReviewItems(not yet due) = %d items", len(none))
		}

		counts, err := s.DueReviewCounts(ctx, now.Add(48*time.Hour))
		if err != nil {
			t.Fatalf("DueReviewCounts() error = %v", err)
		}
		if counts["u1"] != 1 {
			t.Errorf("DueReviewCounts() = %v", counts)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		s := newStore(t)
		ctx, cancel := context.WithCancel(t.Context())
		cancel()
		if _, err := s.CompletedSessions(ctx, "u1", ""); err == nil {
			t.Error("CompletedSessions() with cancelled context should fail")
		}
	})
}
