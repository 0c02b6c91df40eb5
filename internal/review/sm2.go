// Package review implements SM-2 spaced repetition for missed questions.
package review

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

const (
	MinEaseFactor     = 1.3
	InitialEaseFactor = 2.5
	InitialInterval   = 1
	MaxQuality        = 5
	passingQuality    = 3
	day               = 24 * time.Hour
)

// State is the scheduling part of a review item.
type State struct {
	Interval    int     `json:"interval"`
	Repetitions int     `json:"repetitions"`
	EaseFactor  float64 `json:"ease_factor"`
}

// Next applies one SM-2 transition. quality is clamped to [0,5].
func Next(s State, quality int) State {
	q := float64(min(max(quality, 0), MaxQuality))
	miss := 5 - q
	ease := math.Max(MinEaseFactor, s.EaseFactor+(0.1-miss*(0.08+miss*0.02)))

	if quality < passingQuality {
		return State{Interval: 1, Repetitions: 0, EaseFactor: ease}
	}

	next := State{Repetitions: s.Repetitions + 1, EaseFactor: ease}
	switch next.Repetitions {
	case 1:
		next.Interval = 1
	case 2:
		next.Interval = 6
	default:
		next.Interval = int(math.RoundToEven(float64(s.Interval) * ease))
	}
	return next
}

// Response is a learner's self-assessed answer to a due review.
type Response struct {
	Quality   int  `json:"quality"`
	TimeSpent int  `json:"time_spent"`
	Correct   bool `json:"correct"`
}

// Apply returns item after recording resp at now.
func Apply(item learning.ReviewItem, resp Response, now time.Time) learning.ReviewItem {
	next := Next(State{Interval: item.Interval, Repetitions: item.Repetitions, EaseFactor: item.EaseFactor}, resp.Quality)

	item = item.Clone()
	item.Interval = next.Interval
	item.Repetitions = next.Repetitions
	item.EaseFactor = next.EaseFactor
	item.NextReviewDate = now.Add(time.Duration(next.Interval) * day)
	item.LastReviewedAt = &now
	item.TotalReviews++
	if resp.Correct {
		item.SuccessfulReviews++
	}
	q := float64(min(max(resp.Quality, 0), MaxQuality))
	item.AverageQuality += (q - item.AverageQuality) / float64(item.TotalReviews)
	item.UpdatedAt = now
	return item
}

// NewItem returns a fresh review item for q, due one day after now.
func NewItem(userID string, q learning.Question, now time.Time) learning.ReviewItem {
	return learning.ReviewItem{
		ID:             uuid.NewString(),
		UserID:         userID,
		QuestionID:     q.ID,
		DocumentID:     q.DocumentID,
		Topic:          learning.TopicName(q.Topic),
		Difficulty:     q.Difficulty,
		Interval:       InitialInterval,
		Repetitions:    0,
		EaseFactor:     InitialEaseFactor,
		NextReviewDate: now.Add(InitialInterval * day),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Reschedule moves the item's due date without touching its SM-2 state.
func Reschedule(item learning.ReviewItem, due, now time.Time) learning.ReviewItem {
	item = item.Clone()
	item.NextReviewDate = due
	item.UpdatedAt = now
	return item
}
