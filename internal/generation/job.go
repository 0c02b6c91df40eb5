package generation

import (
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Routing keys on the learning exchange.
const (
	RoutingKeyRequested = "generation.requested"
	RoutingKeyCompleted = "generation.completed"
)

// Job asks for Count new questions for one user and document.
type Job struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	DocumentID  string                `json:"document_id"`
	Topics      []string              `json:"topics,omitempty"`
	Count       int                   `json:"count"`
	Difficulty  learning.Difficulty   `json:"difficulty"`
	Type        learning.QuestionType `json:"question_type"`
	LockToken   string                `json:"lock_token,omitempty"`
	RequestedAt time.Time             `json:"requested_at"`
}

// LockKey identifies the in-flight slot of the job: one generation per
// user and document at a time.
func (j Job) LockKey() string {
	return j.UserID + ":" + j.DocumentID
}

// Completed is published once a job's questions are stored.
type Completed struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	DocumentID  string    `json:"document_id"`
	Generated   int       `json:"generated"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// split spreads count over n topics, earlier topics taking the remainder.
func split(count, n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = count / n
		if i < count%n {
			out[i]++
		}
	}
	return out
}
