package review

import (
	"math"
	"testing"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

var now = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNext_FirstPassingReview(t *testing.T) {
	got := Next(State{Interval: 1, Repetitions: 0, EaseFactor: 2.5}, 4)
	if got.Interval != 1 || got.Repetitions != 1 || !approxEqual(got.EaseFactor, 2.5) {
		t.Errorf("Next() = %+v, want {1 1 2.5}", got)
	}
}

func TestNext_PerfectRun(t *testing.T) {
	s := State{Interval: 1, Repetitions: 0, EaseFactor: 2.5}
	wantIntervals := []int{1, 6, 17, 49}
	wantEase := []float64{2.6, 2.7, 2.8, 2.9}
	prev := 0
	for i := range wantIntervals {
		s = Next(s, 5)
		if s.Interval != wantIntervals[i] {
			t.Errorf("review %d: interval = %d, want %d", i+1, s.Interval, wantIntervals[i])
		}
		if !approxEqual(s.EaseFactor, wantEase[i]) {
			t.Errorf("review %d: ease = %v, want %v", i+1, s.EaseFactor, wantEase[i])
		}
		if i >= 2 && s.Interval <= prev {
			t.Errorf("review %d: interval %d did not grow from %d", i+1, s.Interval, prev)
		}
		prev = s.Interval
	}
}

func TestNext_FailureResets(t *testing.T) {
	starts := []State{
		{Interval: 1, Repetitions: 0, EaseFactor: 2.5},
		{Interval: 40, Repetitions: 6, EaseFactor: 2.9},
		{Interval: 3, Repetitions: 2, EaseFactor: 1.3},
	}
	for _, start := range starts {
		for q := 0; q < 3; q++ {
			got := Next(start, q)
			if got.Repetitions != 0 || got.Interval != 1 {
				t.Errorf("Next(%+v, %d) = %+v, want reset", start, q, got)
			}
		}
	}
}

func TestNext_EaseFloor(t *testing.T) {
	for q := -1; q <= 6; q++ {
		s := State{Interval: 1, EaseFactor: MinEaseFactor}
		for i := 0; i < 5; i++ {
			s = Next(s, q)
			if s.EaseFactor < MinEaseFactor {
				t.Fatalf("quality %d: ease %v below floor", q, s.EaseFactor)
			}
		}
	}
}

func TestApply(t *testing.T) {
	item := NewItem("u1", learning.Question{ID: "q1", DocumentID: "d1", Topic: "Cells"}, now)
	if item.Interval != 1 || item.Repetitions != 0 || item.EaseFactor != 2.5 {
		t.Fatalf("NewItem() state = %d/%d/%v", item.Interval, item.Repetitions, item.EaseFactor)
	}
	if !item.NextReviewDate.Equal(now.Add(24 * time.Hour)) {
		t.Fatalf("NewItem() due = %v", item.NextReviewDate)
	}

	later := now.Add(48 * time.Hour)
	item = Apply(item, Response{Quality: 5, Correct: true}, later)
	item = Apply(item, Response{Quality: 2, Correct: true}, later)

	if item.TotalReviews != 2 || item.SuccessfulReviews != 2 {
		t.Errorf("reviews = %d/%d, want 2/2", item.SuccessfulReviews, item.TotalReviews)
	}
	if item.Repetitions != 0 || item.Interval != 1 {
		t.Errorf("quality 2 should reset, got reps %d interval %d", item.Repetitions, item.Interval)
	}
	if !approxEqual(item.AverageQuality, 3.5) {
		t.Errorf("AverageQuality = %v, want 3.5", item.AverageQuality)
	}
	if !item.NextReviewDate.Equal(later.Add(24 * time.Hour)) {
		t.Errorf("NextReviewDate = %v", item.NextReviewDate)
	}
	if item.LastReviewedAt == nil || !item.LastReviewedAt.Equal(later) {
		t.Errorf("LastReviewedAt = %v", item.LastReviewedAt)
	}

	item = Apply(item, Response{Quality: 4, Correct: false}, later)
	if item.SuccessfulReviews != 2 {
		t.Errorf("incorrect response counted as successful")
	}
}

func TestDueQueue(t *testing.T) {
	items := []learning.ReviewItem{
		{ID: "future", EaseFactor: 2.5, NextReviewDate: now.Add(time.Hour)},
		{ID: "overdue", EaseFactor: 2.5, NextReviewDate: now.Add(-72 * time.Hour)},
		{ID: "hard", EaseFactor: 1.3, NextReviewDate: now.Add(-time.Hour)},
		{ID: "due", EaseFactor: 2.5, Repetitions: 2, NextReviewDate: now},
	}
	got := DueQueue(items, now, 0)
	if len(got) != 3 {
		t.Fatalf("len(DueQueue()) = %d, want 3", len(got))
	}
	// hard: 0*2 + 17 = 17; overdue: 3*2 + 5 = 11; due: 0 + 5 + 1 = 6
	wantOrder := []string{"hard", "overdue", "due"}
	for i, id := range wantOrder {
		if got[i].ReviewID != id {
			t.Errorf("queue[%d] = %s, want %s", i, got[i].ReviewID, id)
		}
	}
	if got[1].DaysOverdue != 3 || !approxEqual(got[1].Priority, 11) {
		t.Errorf("overdue item = %+v", got[1])
	}

	limited := DueQueue(items, now, 1)
	if len(limited) != 1 || limited[0].ReviewID != "overdue" {
		t.Errorf("DueQueue(limit 1) = %+v, want the earliest due item", limited)
	}
}

func TestSummarize(t *testing.T) {
	items := []learning.ReviewItem{
		{Topic: "A", NextReviewDate: now.Add(12 * time.Hour)},
		{Topic: "B", NextReviewDate: now.Add(-2 * time.Hour)},
		{Topic: "C", NextReviewDate: now.Add(5 * 24 * time.Hour)},
		{Topic: "D", NextReviewDate: now.Add(20 * 24 * time.Hour)},
		{Topic: "E", NextReviewDate: now.Add(90 * 24 * time.Hour)},
	}
	got := Summarize(items, now)
	if got.DueToday != 2 || got.DueThisWeek != 3 || got.DueThisMonth != 4 || got.TotalReviews != 5 {
		t.Errorf("Summarize() = %+v", got)
	}
	if got.NextTopic != "B" || got.NextReviewDate == nil || !got.NextReviewDate.Equal(items[1].NextReviewDate) {
		t.Errorf("next = %v %q", got.NextReviewDate, got.NextTopic)
	}

	empty := Summarize(nil, now)
	if empty.TotalReviews != 0 || empty.NextReviewDate != nil {
		t.Errorf("Summarize(nil) = %+v", empty)
	}
}

func TestReschedule(t *testing.T) {
	item := NewItem("u1", learning.Question{ID: "q1"}, now)
	due := now.Add(10 * 24 * time.Hour)
	got := Reschedule(item, due, now)
	if !got.NextReviewDate.Equal(due) || got.Interval != item.Interval || got.EaseFactor != item.EaseFactor {
		t.Errorf("Reschedule() = %+v", got)
	}
}
