// Package learning holds the domain model shared by the adaptive learning
// analytics, review scheduling, and question selection packages.
package learning

import (
	"slices"
	"time"
)

// Option is one choice of a multiple-choice question.
type Option struct {
	Text        string `json:"text"`
	IsCorrect   bool   `json:"is_correct"`
	Explanation string `json:"explanation,omitempty"`
}

// Question is a stored practice question generated for a user and document.
type Question struct {
	ID            string       `json:"id"`
	DocumentID    string       `json:"document_id"`
	UserID        string       `json:"user_id"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Topic         string       `json:"topic"`
	Options       []Option     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
	SourceContext string       `json:"source_context,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Answer is one recorded response within a session.
type Answer struct {
	QuestionID      string       `json:"question_id"`
	UserAnswer      string       `json:"user_answer"`
	IsCorrect       bool         `json:"is_correct"`
	TimeTaken       int          `json:"time_taken"`
	Status          AnswerStatus `json:"status"`
	MarkedTricky    bool         `json:"marked_tricky"`
	MarkedReview    bool         `json:"marked_review"`
	ChangedAnswer   bool         `json:"changed_answer"`
	HesitationCount int          `json:"hesitation_count"`
	AnsweredAt      time.Time    `json:"answered_at"`
	// Applied is set once a completed session has folded the answer into
	// statistics, the pool and reviews.
	Applied bool `json:"applied,omitempty"`
}

// Pending reports whether the answer still has completion effects to apply.
func (a Answer) Pending() bool {
	outcome := a.Outcome()
	return !a.Applied && (outcome == StatusCorrect || outcome == StatusWrong)
}

// Outcome returns the effective status of the answer. Answers recorded
// without an explicit status are derived from IsCorrect.
func (a Answer) Outcome() AnswerStatus {
	if a.Status == "" {
		if a.IsCorrect {
			return StatusCorrect
		}
		return StatusWrong
	}
	return a.Status
}

// Session is a practice test taken by a user against a document.
type Session struct {
	ID          string        `json:"id"`
	UserID      string        `json:"user_id"`
	DocumentID  string        `json:"document_id"`
	QuestionIDs []string      `json:"questions"`
	Answers     []Answer      `json:"answers"`
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	s.QuestionIDs = slices.Clone(s.QuestionIDs)
	s.Answers = slices.Clone(s.Answers)
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	return s
}

// QuestionStatistics aggregates every user's attempts at one question.
type QuestionStatistics struct {
	QuestionID          string    `json:"question_id"`
	TotalAttempts       int       `json:"total_attempts"`
	CorrectAttempts     int       `json:"correct_attempts"`
	EmpiricalDifficulty float64   `json:"empirical_difficulty"`
	AvgTimeTaken        float64   `json:"avg_time_taken"`
	LastUpdated         time.Time `json:"last_updated"`
}

// DefaultEmpiricalDifficulty is used until a question has been attempted.
const DefaultEmpiricalDifficulty = 0.5

// NewQuestionStatistics returns empty statistics for questionID.
func NewQuestionStatistics(questionID string) QuestionStatistics {
	return QuestionStatistics{
		QuestionID:          questionID,
		EmpiricalDifficulty: DefaultEmpiricalDifficulty,
	}
}

// Record folds one attempt into the statistics. EmpiricalDifficulty is the
// fraction of correct attempts, so higher means easier.
func (s *QuestionStatistics) Record(correct bool, timeTaken int, now time.Time) {
	s.TotalAttempts++
	if correct {
		s.CorrectAttempts++
	}
	s.EmpiricalDifficulty = float64(s.CorrectAttempts) / float64(s.TotalAttempts)
	s.AvgTimeTaken += (float64(max(timeTaken, 0)) - s.AvgTimeTaken) / float64(s.TotalAttempts)
	s.LastUpdated = now
}

// ReviewItem is the spaced-repetition state of one question for one user.
type ReviewItem struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	QuestionID        string     `json:"question_id"`
	DocumentID        string     `json:"document_id"`
	Topic             string     `json:"topic"`
	Difficulty        Difficulty `json:"difficulty"`
	Interval          int        `json:"interval"`
	Repetitions       int        `json:"repetitions"`
	EaseFactor        float64    `json:"ease_factor"`
	NextReviewDate    time.Time  `json:"next_review_date"`
	LastReviewedAt    *time.Time `json:"last_reviewed_at,omitempty"`
	TotalReviews      int        `json:"total_reviews"`
	SuccessfulReviews int        `json:"successful_reviews"`
	AverageQuality    float64    `json:"average_quality"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the item.
func (r ReviewItem) Clone() ReviewItem {
	if r.LastReviewedAt != nil {
		t := *r.LastReviewedAt
		r.LastReviewedAt = &t
	}
	return r
}

// ReviewFilter narrows a review item listing.
type ReviewFilter struct {
	DocumentID string
	// DueBefore, when non-zero, keeps only items due at or before it.
	DueBefore time.Time
}

// Matches reports whether item passes the filter.
func (f ReviewFilter) Matches(item ReviewItem) bool {
	if f.DocumentID != "" && item.DocumentID != f.DocumentID {
		return false
	}
	if !f.DueBefore.IsZero() && item.NextReviewDate.After(f.DueBefore) {
		return false
	}
	return true
}

// PoolEntry is a stored question together with its per-user usage counters.
type PoolEntry struct {
	QuestionID    string       `json:"question_id"`
	DocumentID    string       `json:"document_id"`
	UserID        string       `json:"user_id"`
	Topic         string       `json:"topic"`
	Type          QuestionType `json:"question_type"`
	Difficulty    Difficulty   `json:"difficulty"`
	TimesAnswered int          `json:"times_answered"`
	TimesCorrect  int          `json:"times_correct"`
	IsMastered    bool         `json:"is_mastered"`
	LastUsedAt    *time.Time   `json:"last_used_at,omitempty"`
}

// MasteredAfterCorrect is the number of correct answers after which a pool
// entry is retired from selection.
const MasteredAfterCorrect = 2

// RecordAttempt updates the usage counters. Mastery is one-way.
func (e *PoolEntry) RecordAttempt(correct bool) {
	e.TimesAnswered++
	if correct {
		e.TimesCorrect++
	}
	if e.TimesCorrect >= MasteredAfterCorrect {
		e.IsMastered = true
	}
}

// Clone returns a deep copy of the entry.
func (e PoolEntry) Clone() PoolEntry {
	if e.LastUsedAt != nil {
		t := *e.LastUsedAt
		e.LastUsedAt = &t
	}
	return e
}

// PoolFilter narrows a question pool lookup. Empty slices match everything.
type PoolFilter struct {
	Types        []QuestionType
	Topics       []string
	Difficulties []Difficulty
	// IncludeMastered keeps retired entries in the result.
	IncludeMastered bool
}

// Matches reports whether entry passes the filter.
func (f PoolFilter) Matches(entry PoolEntry) bool {
	if !f.IncludeMastered && entry.IsMastered {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, entry.Type) {
		return false
	}
	if len(f.Difficulties) > 0 && !slices.Contains(f.Difficulties, entry.Difficulty) {
		return false
	}
	if len(f.Topics) > 0 && !slices.ContainsFunc(f.Topics, func(t string) bool {
		return TopicKey(t) == TopicKey(entry.Topic)
	}) {
		return false
	}
	return true
}

// PoolEntryFromQuestion returns a fresh, never-used entry for q.
func PoolEntryFromQuestion(q Question) PoolEntry {
	return PoolEntry{
		QuestionID: q.ID,
		DocumentID: q.DocumentID,
		UserID:     q.UserID,
		Topic:      q.Topic,
		Type:       q.Type,
		Difficulty: q.Difficulty,
	}
}
