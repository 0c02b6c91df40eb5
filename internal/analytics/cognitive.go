package analytics

import "math"

// Thresholds shared by the cognitive scorer.
const (
	FastSeconds    = 20
	SlowSeconds    = 60
	EasyDifficulty = 0.7
	HardDifficulty = 0.3
)

// CognitiveScores are rule-derived estimates of the learner's state while
// answering one question. Each score is in [0,1].
type CognitiveScores struct {
	Guessing     float64 `json:"guessing_score"`
	Confusion    float64 `json:"confusion_score"`
	Avoidance    float64 `json:"avoidance_score"`
	KnowledgeGap float64 `json:"knowledge_gap_score"`
	Confidence   float64 `json:"confidence_score"`
}

// Score applies the cognitive rule table to one signal.
func Score(s BehavioralSignal) CognitiveScores {
	var c CognitiveScores

	switch {
	case !s.Answered:
		c.Avoidance = 0.6
		if s.EmpiricalDifficulty > EasyDifficulty {
			c.Avoidance = 0.9
		}

	case !s.Correct:
		if s.TimeSpent < FastSeconds {
			if s.EmpiricalDifficulty < HardDifficulty {
				c.Guessing = 0.8
			} else {
				c.Guessing = 0.5
			}
		}
		if s.TimeSpent > SlowSeconds {
			c.Confusion = math.Min(0.7+math.Min(float64(s.HesitationCount)*0.1, 0.3), 1.0)
		}
		if s.EmpiricalDifficulty > EasyDifficulty {
			c.KnowledgeGap = 0.9
		}

	default:
		switch {
		case s.TimeSpent < FastSeconds && !s.ChangedAnswer:
			c.Confidence = 0.9
		case !s.ChangedAnswer && !s.MarkedTricky:
			c.Confidence = 0.7
		}
	}
	return c
}

// Observation pairs a signal with its cognitive scores.
type Observation struct {
	Signal BehavioralSignal `json:"signal"`
	Scores CognitiveScores  `json:"scores"`
}

// Observe scores every signal, preserving order.
func Observe(signals []BehavioralSignal) []Observation {
	out := make([]Observation, len(signals))
	for i, s := range signals {
		out[i] = Observation{Signal: s, Scores: Score(s)}
	}
	return out
}
