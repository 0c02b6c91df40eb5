package analytics

import (
	"math"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// RecencyDecay is the per-attempt exponential decay of older attempts
// (half-life of roughly five attempts).
const RecencyDecay = 0.14

// DifficultyBreakdown counts attempts bucketed by empirical difficulty.
type DifficultyBreakdown struct {
	EasyCorrect   int `json:"easy_correct"`
	EasyWrong     int `json:"easy_wrong"`
	MediumCorrect int `json:"medium_correct"`
	MediumWrong   int `json:"medium_wrong"`
	HardCorrect   int `json:"hard_correct"`
	HardWrong     int `json:"hard_wrong"`
}

func (b *DifficultyBreakdown) add(difficulty float64, correct bool) {
	switch {
	case difficulty > EasyDifficulty:
		if correct {
			b.EasyCorrect++
		} else {
			b.EasyWrong++
		}
	case difficulty < HardDifficulty:
		if correct {
			b.HardCorrect++
		} else {
			b.HardWrong++
		}
	default:
		if correct {
			b.MediumCorrect++
		} else {
			b.MediumWrong++
		}
	}
}

// TopicMastery summarises a learner's answered attempts in one topic.
type TopicMastery struct {
	Topic             string              `json:"topic"`
	TotalAttempts     int                 `json:"total_attempts"`
	CorrectAttempts   int                 `json:"correct_attempts"`
	WrongAttempts     int                 `json:"wrong_attempts"`
	MasteryScore      float64             `json:"mastery_score"`
	MasteryPercentage float64             `json:"mastery_percentage"`
	AvgTimeTaken      float64             `json:"avg_time_taken"`
	Breakdown         DifficultyBreakdown `json:"difficulty_breakdown"`
}

// WeightedMastery computes the difficulty and recency weighted fraction of
// correct attempts. signals must be answered attempts, oldest first.
func WeightedMastery(signals []BehavioralSignal) float64 {
	n := len(signals)
	var num, den float64
	for i, s := range signals {
		w := (1 - s.EmpiricalDifficulty) * math.Exp(-RecencyDecay*float64(n-i-1))
		if s.Correct {
			num += w
		}
		den += w
	}
	if den == 0 {
		return 0
	}
	return clamp01(num / den)
}

// ComputeMastery groups answered signals by topic and computes a mastery
// entry per topic, in order of first appearance. Topics without answered
// attempts are omitted.
func ComputeMastery(signals []BehavioralSignal) []TopicMastery {
	groups := groupByTopic(answeredOnly(signals))

	out := make([]TopicMastery, 0, len(groups))
	for _, g := range groups {
		m := TopicMastery{Topic: g.name, TotalAttempts: len(g.signals)}
		var totalTime int
		for _, s := range g.signals {
			if s.Correct {
				m.CorrectAttempts++
			} else {
				m.WrongAttempts++
			}
			totalTime += s.TimeSpent
			m.Breakdown.add(s.EmpiricalDifficulty, s.Correct)
		}
		m.MasteryScore = WeightedMastery(g.signals)
		m.MasteryPercentage = m.MasteryScore * 100
		m.AvgTimeTaken = float64(totalTime) / float64(len(g.signals))
		out = append(out, m)
	}
	return out
}

func answeredOnly(signals []BehavioralSignal) []BehavioralSignal {
	out := make([]BehavioralSignal, 0, len(signals))
	for _, s := range signals {
		if s.Answered {
			out = append(out, s)
		}
	}
	return out
}

type topicGroup struct {
	name    string
	signals []BehavioralSignal
}

// groupByTopic buckets signals by folded topic key, keeping the first
// spelling seen as the display name.
func groupByTopic(signals []BehavioralSignal) []*topicGroup {
	var groups []*topicGroup
	index := map[string]*topicGroup{}
	for _, s := range signals {
		key := learning.TopicKey(s.Topic)
		g, ok := index[key]
		if !ok {
			g = &topicGroup{name: learning.TopicName(s.Topic)}
			index[key] = g
			groups = append(groups, g)
		}
		g.signals = append(g.signals, s)
	}
	return groups
}
