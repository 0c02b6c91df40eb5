package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// MemoryStore is an in-memory Store. A single mutex serialises writers, so
// every mutate func runs atomically.
type MemoryStore struct {
	mu        sync.RWMutex
	sessions  map[string]learning.Session
	questions map[string]learning.Question
	order     []string // question IDs in insertion order
	stats     map[string]learning.QuestionStatistics
	reviews   map[reviewKey]learning.ReviewItem
	pool      map[string]learning.PoolEntry
}

type reviewKey struct {
	userID     string
	questionID string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions:  make(map[string]learning.Session),
		questions: make(map[string]learning.Question),
		stats:     make(map[string]learning.QuestionStatistics),
		reviews:   make(map[reviewKey]learning.ReviewItem),
		pool:      make(map[string]learning.PoolEntry),
	}
}

func (s *MemoryStore) CreateSession(ctx context.Context, sess learning.Session) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sess.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess = sess.Clone()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if _, ok := s.sessions[sess.ID]; ok {
		return "", fmt.Errorf("session %s: %w", sess.ID, learning.ErrInvalidState)
	}
	if sess.Status == "" {
		sess.Status = learning.SessionInProgress
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now().UTC()
	}
	if sess.Answers == nil {
		sess.Answers = []learning.Answer{}
	}
	s.sessions[sess.ID] = sess
	return sess.ID, nil
}

func (s *MemoryStore) GetSession(ctx context.Context, id string) (*learning.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, learning.ErrNotFound)
	}
	out := sess.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateSession(ctx context.Context, id string, mutate func(*learning.Session) error) (learning.Session, error) {
	if err := ctx.Err(); err != nil {
		return learning.Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return learning.Session{}, fmt.Errorf("session %s: %w", id, learning.ErrNotFound)
	}
	next := sess.Clone()
	if err := mutate(&next); err != nil {
		return learning.Session{}, err
	}
	next.ID = id
	s.sessions[id] = next.Clone()
	return next, nil
}

func (s *MemoryStore) CompletedSessions(ctx context.Context, userID, documentID string) ([]learning.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []learning.Session
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.Status != learning.SessionCompleted {
			continue
		}
		if documentID != "" && sess.DocumentID != documentID {
			continue
		}
		out = append(out, sess.Clone())
	}
	slices.SortFunc(out, func(a, b learning.Session) int {
		if c := completedAt(a).Compare(completedAt(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func completedAt(s learning.Session) time.Time {
	if s.CompletedAt != nil {
		return *s.CompletedAt
	}
	return s.StartedAt
}

func (s *MemoryStore) SaveQuestions(ctx context.Context, qs []learning.Question) ([]learning.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]learning.Question, 0, len(qs))
	now := time.Now().UTC()
	for _, q := range qs {
		q = normalizeQuestion(q, now)
		if _, ok := s.questions[q.ID]; !ok {
			s.order = append(s.order, q.ID)
		}
		s.questions[q.ID] = cloneQuestion(q)
		if _, ok := s.pool[q.ID]; !ok {
			s.pool[q.ID] = learning.PoolEntryFromQuestion(q)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *MemoryStore) GetQuestions(ctx context.Context, ids []string) ([]learning.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]learning.Question, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		q, ok := s.questions[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, cloneQuestion(q))
	}
	return out, nil
}

func (s *MemoryStore) DocumentQuestions(ctx context.Context, documentID string) ([]learning.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []learning.Question
	for _, id := range s.order {
		if q := s.questions[id]; q.DocumentID == documentID {
			out = append(out, cloneQuestion(q))
		}
	}
	return out, nil
}

func (s *MemoryStore) GetQuestionStatistics(ctx context.Context, ids []string) (map[string]learning.QuestionStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]learning.QuestionStatistics, len(ids))
	for _, id := range ids {
		if st, ok := s.stats[id]; ok {
			out[id] = st
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateQuestionStatistics(ctx context.Context, questionID string, mutate func(*learning.QuestionStatistics) error) (learning.QuestionStatistics, error) {
	if err := ctx.Err(); err != nil {
		return learning.QuestionStatistics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.stats[questionID]
	if !ok {
		st = learning.NewQuestionStatistics(questionID)
	}
	if err := mutate(&st); err != nil {
		return learning.QuestionStatistics{}, err
	}
	st.QuestionID = questionID
	s.stats[questionID] = st
	return st, nil
}

func (s *MemoryStore) GetReviewItem(ctx context.Context, userID, questionID string) (*learning.ReviewItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.reviews[reviewKey{userID, questionID}]
	if !ok {
		return nil, fmt.Errorf("review item %s/%s: %w", userID, questionID, learning.ErrNotFound)
	}
	out := item.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateReviewItem(ctx context.Context, userID, questionID string, mutate func(*learning.ReviewItem, bool) error) (learning.ReviewItem, error) {
	if err := ctx.Err(); err != nil {
		return learning.ReviewItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := reviewKey{userID, questionID}
	item, exists := s.reviews[key]
	item = item.Clone()
	if err := mutate(&item, exists); err != nil {
		return learning.ReviewItem{}, err
	}
	item.UserID, item.QuestionID = userID, questionID
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	s.reviews[key] = item.Clone()
	return item, nil
}

func (s *MemoryStore) ListReviewItems(ctx context.Context, userID string, f learning.ReviewFilter) ([]learning.ReviewItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []learning.ReviewItem
	for key, item := range s.reviews {
		if key.userID == userID && f.Matches(item) {
			out = append(out, item.Clone())
		}
	}
	slices.SortFunc(out, func(a, b learning.ReviewItem) int {
		if c := a.NextReviewDate.Compare(b.NextReviewDate); c != 0 {
			return c
		}
		return cmp.Compare(a.QuestionID, b.QuestionID)
	})
	return out, nil
}

func (s *MemoryStore) DueReviewCounts(ctx context.Context, t time.Time) (map[string]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := map[string]int{}
	for key, item := range s.reviews {
		if !item.NextReviewDate.After(t) {
			out[key.userID]++
		}
	}
	return out, nil
}

func (s *MemoryStore) GetQuestionPool(ctx context.Context, documentID, userID string, f learning.PoolFilter) ([]learning.PoolEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []learning.PoolEntry
	for _, id := range s.order {
		e, ok := s.pool[id]
		if !ok || e.DocumentID != documentID || e.UserID != userID || !f.Matches(e) {
			continue
		}
		out = append(out, e.Clone())
	}
	return out, nil
}

func (s *MemoryStore) UpdatePoolEntry(ctx context.Context, questionID string, mutate func(*learning.PoolEntry) error) (learning.PoolEntry, error) {
	if err := ctx.Err(); err != nil {
		return learning.PoolEntry{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pool[questionID]
	if !ok {
		return learning.PoolEntry{}, fmt.Errorf("pool entry %s: %w", questionID, learning.ErrNotFound)
	}
	e = e.Clone()
	wasMastered := e.IsMastered
	if err := mutate(&e); err != nil {
		return learning.PoolEntry{}, err
	}
	e.QuestionID = questionID
	e.IsMastered = e.IsMastered || wasMastered
	s.pool[questionID] = e.Clone()
	return e, nil
}

func (s *MemoryStore) MarkQuestionsUsed(ctx context.Context, ids []string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.pool[id]; ok {
			t := at
			e.LastUsedAt = &t
			s.pool[id] = e
		}
	}
	return nil
}

func normalizeQuestion(q learning.Question, now time.Time) learning.Question {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	if !q.Type.Valid() {
		q.Type = learning.ParseQuestionType(string(q.Type))
	}
	q.Difficulty = learning.ParseDifficulty(string(q.Difficulty))
	q.Topic = learning.TopicName(q.Topic)
	return q
}

func cloneQuestion(q learning.Question) learning.Question {
	q.Options = slices.Clone(q.Options)
	return q
}
