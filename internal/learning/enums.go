package learning

import "strings"

// Difficulty is the author-assigned difficulty label of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyTricky Difficulty = "tricky"
)

// ParseDifficulty maps any stored or generated label onto the closed set.
// Unknown and legacy labels fall back to medium.
func ParseDifficulty(s string) Difficulty {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "beginner", "basic", "simple":
		return DifficultyEasy
	case "hard", "difficult", "advanced", "expert":
		return DifficultyHard
	case "tricky", "trick":
		return DifficultyTricky
	default:
		return DifficultyMedium
	}
}

// QuestionType is the answer format of a question.
type QuestionType string

const (
	QuestionMCQ         QuestionType = "mcq"
	QuestionShortAnswer QuestionType = "short_answer"
	QuestionConceptual  QuestionType = "conceptual"
)

// ParseQuestionType maps a label onto the closed set, defaulting to mcq.
func ParseQuestionType(s string) QuestionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "short_answer", "short-answer", "short":
		return QuestionShortAnswer
	case "conceptual", "concept":
		return QuestionConceptual
	default:
		return QuestionMCQ
	}
}

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionMCQ, QuestionShortAnswer, QuestionConceptual:
		return true
	}
	return false
}

// AnswerStatus is the outcome recorded for one answer.
type AnswerStatus string

const (
	StatusCorrect      AnswerStatus = "correct"
	StatusWrong        AnswerStatus = "wrong"
	StatusSkipped      AnswerStatus = "skipped"
	StatusNotAttempted AnswerStatus = "not_attempted"
)

// ParseAnswerStatus maps a label onto the closed set, defaulting to not_attempted.
func ParseAnswerStatus(s string) AnswerStatus {
	switch AnswerStatus(strings.ToLower(strings.TrimSpace(s))) {
	case StatusCorrect:
		return StatusCorrect
	case StatusWrong:
		return StatusWrong
	case StatusSkipped:
		return StatusSkipped
	default:
		return StatusNotAttempted
	}
}

// SessionStatus is the lifecycle state of a practice session.
type SessionStatus string

const (
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionAbandoned  SessionStatus = "abandoned"
)

// FailurePattern classifies how a topic is being answered wrongly.
type FailurePattern string

const (
	PatternFastWrong            FailurePattern = "fast_wrong"
	PatternSlowWrong            FailurePattern = "slow_wrong"
	PatternRepeatedTopicFailure FailurePattern = "repeated_topic_failure"
	PatternTrickyWrong          FailurePattern = "tricky_wrong"
	PatternEasyWrong            FailurePattern = "easy_wrong"
)
