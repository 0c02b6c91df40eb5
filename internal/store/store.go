// Package store persists sessions, questions, statistics, review items and
// pool usage counters. Every Update method applies its mutate func as one
// atomic read-modify-write against the backing store.
package store

import (
	"context"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Store is the storage collaborator of the learning core.
type Store interface {
	CreateSession(ctx context.Context, s learning.Session) (string, error)
	GetSession(ctx context.Context, id string) (*learning.Session, error)
	UpdateSession(ctx context.Context, id string, mutate func(*learning.Session) error) (learning.Session, error)
	// CompletedSessions returns a user's completed sessions ordered by
	// completion time. An empty documentID matches every document.
	CompletedSessions(ctx context.Context, userID, documentID string) ([]learning.Session, error)

	// SaveQuestions stores new questions, assigning IDs where missing, and
	// registers a fresh pool entry for each.
	SaveQuestions(ctx context.Context, qs []learning.Question) ([]learning.Question, error)
	// GetQuestions returns the questions that exist among ids. Missing IDs are skipped.
	GetQuestions(ctx context.Context, ids []string) ([]learning.Question, error)
	DocumentQuestions(ctx context.Context, documentID string) ([]learning.Question, error)

	// GetQuestionStatistics returns the statistics that exist among ids.
	GetQuestionStatistics(ctx context.Context, ids []string) (map[string]learning.QuestionStatistics, error)
	// UpdateQuestionStatistics starts from NewQuestionStatistics when none exist.
	UpdateQuestionStatistics(ctx context.Context, questionID string, mutate func(*learning.QuestionStatistics) error) (learning.QuestionStatistics, error)

	GetReviewItem(ctx context.Context, userID, questionID string) (*learning.ReviewItem, error)
	// UpdateReviewItem passes exists=false and a zero item when the user has
	// no item for the question; the mutated item is then inserted.
	UpdateReviewItem(ctx context.Context, userID, questionID string, mutate func(item *learning.ReviewItem, exists bool) error) (learning.ReviewItem, error)
	ListReviewItems(ctx context.Context, userID string, f learning.ReviewFilter) ([]learning.ReviewItem, error)
	// DueReviewCounts counts items due at or before t, per user.
	DueReviewCounts(ctx context.Context, t time.Time) (map[string]int, error)

	GetQuestionPool(ctx context.Context, documentID, userID string, f learning.PoolFilter) ([]learning.PoolEntry, error)
	UpdatePoolEntry(ctx context.Context, questionID string, mutate func(*learning.PoolEntry) error) (learning.PoolEntry, error)
	MarkQuestionsUsed(ctx context.Context, ids []string, at time.Time) error
}
