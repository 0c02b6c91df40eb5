package analytics

import "github.com/p-n-ai/pai-adaptive/internal/learning"

// Analysis is the full result of running the pipeline over an answer set.
type Analysis struct {
	Signals        []BehavioralSignal `json:"-"`
	Observations   []Observation      `json:"-"`
	TotalQuestions int                `json:"total_questions"`
	Answered       int                `json:"answered"`
	Correct        int                `json:"correct"`
	Accuracy       float64            `json:"accuracy"`
	Mastery        []TopicMastery     `json:"topic_mastery"`
	Weaknesses     []WeaknessAnalysis `json:"weakness_areas"`
	Targeting      AdaptiveTargeting  `json:"adaptive_targeting"`
	BehavioralType BehavioralType     `json:"behavioral_type"`
	ReviewOrder    []ReviewQuestion   `json:"review_order"`
}

// Analyze runs the whole pipeline over signals, oldest first.
func Analyze(signals []BehavioralSignal) Analysis {
	obs := Observe(signals)
	mastery := ComputeMastery(signals)
	weaknesses := RankWeaknesses(mastery, obs)

	a := Analysis{
		Signals:        signals,
		Observations:   obs,
		TotalQuestions: len(signals),
		Mastery:        mastery,
		Weaknesses:     weaknesses,
		Targeting:      PlanTargeting(weaknesses),
		BehavioralType: InferBehavioralType(signals),
		ReviewOrder:    OrderForReview(weaknesses),
	}
	for _, s := range signals {
		if s.Answered {
			a.Answered++
			if s.Correct {
				a.Correct++
			}
		}
	}
	if a.Answered > 0 {
		a.Accuracy = float64(a.Correct) / float64(a.Answered)
	}
	return a
}

// FilterTopic returns the signals that belong to topic.
func FilterTopic(signals []BehavioralSignal, topic string) []BehavioralSignal {
	key := learning.TopicKey(topic)
	var out []BehavioralSignal
	for _, s := range signals {
		if learning.TopicKey(s.Topic) == key {
			out = append(out, s)
		}
	}
	return out
}
