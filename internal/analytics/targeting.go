package analytics

import "github.com/p-n-ai/pai-adaptive/internal/learning"

const (
	maxTargetTopics   = 3
	defaultQuestions  = 10
	minTargetQuestion = 5
	maxTargetQuestion = 50
)

// AdaptiveTargeting proposes the shape of the learner's next practice test.
type AdaptiveTargeting struct {
	WeakTopics               []string                `json:"weak_topics"`
	RecommendedDifficulty    []learning.Difficulty   `json:"recommended_difficulty"`
	FocusQuestionTypes       []learning.QuestionType `json:"focus_question_types"`
	EstimatedQuestionsNeeded int                     `json:"estimated_questions_needed"`
}

// PlanTargeting builds targeting from a ranked weakness list.
func PlanTargeting(weaknesses []WeaknessAnalysis) AdaptiveTargeting {
	t := AdaptiveTargeting{
		WeakTopics:               []string{},
		RecommendedDifficulty:    []learning.Difficulty{learning.DifficultyMedium},
		FocusQuestionTypes:       []learning.QuestionType{learning.QuestionMCQ},
		EstimatedQuestionsNeeded: defaultQuestions,
	}
	if len(weaknesses) == 0 {
		return t
	}

	for _, w := range weaknesses[:min(maxTargetTopics, len(weaknesses))] {
		t.WeakTopics = append(t.WeakTopics, w.Topic)
	}

	worst := weaknesses[0].MasteryScore
	for _, w := range weaknesses[1:] {
		worst = min(worst, w.MasteryScore)
	}
	switch {
	case worst < 0.3:
		t.RecommendedDifficulty = []learning.Difficulty{learning.DifficultyEasy}
	case worst < 0.6:
		t.RecommendedDifficulty = []learning.Difficulty{learning.DifficultyEasy, learning.DifficultyMedium}
	}
	if hasPattern(weaknesses[0].FailurePatterns, learning.PatternSlowWrong) {
		t.FocusQuestionTypes = append(t.FocusQuestionTypes, learning.QuestionConceptual)
	}

	needed := int(20 * (1 - weaknesses[0].MasteryScore))
	t.EstimatedQuestionsNeeded = min(max(needed, minTargetQuestion), maxTargetQuestion)
	return t
}
