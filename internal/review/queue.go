package review

import (
	"cmp"
	"slices"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// QueueItem is a due review with its urgency.
type QueueItem struct {
	ReviewID       string              `json:"review_id"`
	QuestionID     string              `json:"question_id"`
	DocumentID     string              `json:"document_id"`
	Topic          string              `json:"topic"`
	Difficulty     learning.Difficulty `json:"difficulty"`
	NextReviewDate time.Time           `json:"next_review_date"`
	DaysOverdue    int                 `json:"days_overdue"`
	EaseFactor     float64             `json:"ease_factor"`
	Repetitions    int                 `json:"repetitions"`
	Priority       float64             `json:"priority"`
}

// DaysOverdue is the number of whole days item has been due at now.
// It is negative for items that are not yet due.
func DaysOverdue(item learning.ReviewItem, now time.Time) int {
	d := now.Sub(item.NextReviewDate)
	days := int(d / day)
	if d < 0 && d%day != 0 {
		days--
	}
	return days
}

// Priority scores how urgently item should be reviewed.
func Priority(item learning.ReviewItem, now time.Time) float64 {
	return float64(DaysOverdue(item, now))*2 + (3.0-item.EaseFactor)*10 + float64(item.Repetitions)*0.5
}

// DueQueue returns up to limit items due at now. The earliest-due items
// are taken first, then ordered by descending priority. limit <= 0 means
// no limit.
func DueQueue(items []learning.ReviewItem, now time.Time, limit int) []QueueItem {
	var due []learning.ReviewItem
	for _, it := range items {
		if !it.NextReviewDate.After(now) {
			due = append(due, it)
		}
	}
	slices.SortStableFunc(due, func(a, b learning.ReviewItem) int {
		return a.NextReviewDate.Compare(b.NextReviewDate)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	out := make([]QueueItem, len(due))
	for i, it := range due {
		out[i] = QueueItem{
			ReviewID:       it.ID,
			QuestionID:     it.QuestionID,
			DocumentID:     it.DocumentID,
			Topic:          it.Topic,
			Difficulty:     it.Difficulty,
			NextReviewDate: it.NextReviewDate,
			DaysOverdue:    max(DaysOverdue(it, now), 0),
			EaseFactor:     it.EaseFactor,
			Repetitions:    it.Repetitions,
			Priority:       Priority(it, now),
		}
	}
	slices.SortStableFunc(out, func(a, b QueueItem) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return out
}

// Schedule summarises upcoming reviews.
type Schedule struct {
	DueToday       int        `json:"due_today"`
	DueThisWeek    int        `json:"due_this_week"`
	DueThisMonth   int        `json:"due_this_month"`
	TotalReviews   int        `json:"total_reviews"`
	NextReviewDate *time.Time `json:"next_review_date,omitempty"`
	NextTopic      string     `json:"next_review_topic,omitempty"`
}

// Summarize buckets items by how soon they fall due. Buckets are cumulative.
func Summarize(items []learning.ReviewItem, now time.Time) Schedule {
	s := Schedule{TotalReviews: len(items)}
	var next *learning.ReviewItem
	for i := range items {
		it := &items[i]
		switch due := it.NextReviewDate; {
		case !due.After(now.Add(day)):
			s.DueToday++
			s.DueThisWeek++
			s.DueThisMonth++
		case !due.After(now.Add(7 * day)):
			s.DueThisWeek++
			s.DueThisMonth++
		case !due.After(now.Add(30 * day)):
			s.DueThisMonth++
		}
		if next == nil || it.NextReviewDate.Before(next.NextReviewDate) {
			next = it
		}
	}
	if next != nil {
		d := next.NextReviewDate
		s.NextReviewDate = &d
		s.NextTopic = next.Topic
	}
	return s
}
