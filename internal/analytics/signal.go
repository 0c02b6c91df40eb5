// Package analytics turns raw answer records into behavioral signals and
// derives cognitive scores, topic mastery, ranked weaknesses and targeting
// recommendations from them. Every function is pure.
package analytics

import "github.com/p-n-ai/pai-adaptive/internal/learning"

// BehavioralSignal is the set of raw facts about one answer attempt.
type BehavioralSignal struct {
	QuestionID          string              `json:"question_id"`
	TimeSpent           int                 `json:"time_spent"`
	Answered            bool                `json:"answered"`
	Correct             bool                `json:"correct"`
	ChangedAnswer       bool                `json:"changed_answer"`
	HesitationCount     int                 `json:"hesitation_count"`
	MarkedTricky        bool                `json:"marked_tricky"`
	EmpiricalDifficulty float64             `json:"empirical_difficulty"`
	Topic               string              `json:"topic"`
	DifficultyLabel     learning.Difficulty `json:"original_difficulty_label"`
}

// QuestionContext is what the extractor needs to know about the question
// an answer belongs to.
type QuestionContext struct {
	Topic      string
	Difficulty learning.Difficulty
	// Stats is nil when the question has never been attempted.
	Stats *learning.QuestionStatistics
}

// ExtractSignal converts one answer record into a signal. Missing or
// out-of-range fields are replaced by defaults.
func ExtractSignal(a learning.Answer, q QuestionContext) BehavioralSignal {
	difficulty := learning.DefaultEmpiricalDifficulty
	if q.Stats != nil && q.Stats.TotalAttempts > 0 {
		difficulty = clamp01(q.Stats.EmpiricalDifficulty)
	}
	label := q.Difficulty
	if label == "" {
		label = learning.DifficultyMedium
	}

	outcome := a.Outcome()
	return BehavioralSignal{
		QuestionID:          a.QuestionID,
		TimeSpent:           max(a.TimeTaken, 0),
		Answered:            outcome != learning.StatusSkipped,
		Correct:             outcome == learning.StatusCorrect,
		ChangedAnswer:       a.ChangedAnswer,
		HesitationCount:     max(a.HesitationCount, 0),
		MarkedTricky:        a.MarkedTricky,
		EmpiricalDifficulty: difficulty,
		Topic:               learning.TopicName(q.Topic),
		DifficultyLabel:     label,
	}
}

// ExtractSignals extracts signals for every answer of the given sessions in
// order. Answers whose question is absent from questions get an unknown
// topic and the bootstrap difficulty.
func ExtractSignals(sessions []learning.Session, questions map[string]QuestionContext) []BehavioralSignal {
	var out []BehavioralSignal
	for _, s := range sessions {
		for _, a := range s.Answers {
			out = append(out, ExtractSignal(a, questions[a.QuestionID]))
		}
	}
	return out
}

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
