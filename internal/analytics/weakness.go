package analytics

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Weakness ranking constants.
const (
	WeaknessCutoff    = 0.75
	maxPenalty        = 2.0
	confusionWeight   = 0.5
	trickyMarkWeight  = 0.3
	dominantThreshold = 0.5
	confusionDominant = 0.6
)

// WeaknessAnalysis describes one topic below the mastery cutoff.
type WeaknessAnalysis struct {
	Topic             string                    `json:"topic"`
	MasteryScore      float64                   `json:"mastery_score"`
	WeaknessScore     float64                   `json:"weakness_score"`
	ExposureCount     int                       `json:"exposure_count"`
	ConfidencePenalty float64                   `json:"confidence_penalty"`
	PriorityScore     float64                   `json:"priority_score"`
	QuestionIDs       []string                  `json:"question_ids"`
	FailurePatterns   []learning.FailurePattern `json:"failure_patterns"`
	Recommendation    string                    `json:"recommendation"`
}

// RankWeaknesses ranks the topics whose mastery is at most WeaknessCutoff.
// observations must cover the same answer set the masteries were built from,
// including skipped answers. Ties on priority are ordered by topic name.
func RankWeaknesses(masteries []TopicMastery, observations []Observation) []WeaknessAnalysis {
	byTopic := map[string][]Observation{}
	for _, o := range observations {
		key := learning.TopicKey(o.Signal.Topic)
		byTopic[key] = append(byTopic[key], o)
	}

	var out []WeaknessAnalysis
	for _, m := range masteries {
		if m.MasteryScore > WeaknessCutoff {
			continue
		}
		obs := byTopic[learning.TopicKey(m.Topic)]
		ids := distinctQuestionIDs(obs)

		w := WeaknessAnalysis{
			Topic:             m.Topic,
			MasteryScore:      m.MasteryScore,
			WeaknessScore:     1 - m.MasteryScore,
			ExposureCount:     len(ids),
			ConfidencePenalty: confidencePenalty(obs, len(ids)),
			QuestionIDs:       ids,
			FailurePatterns:   DetectFailurePatterns(signalsOf(obs), m.WrongAttempts),
		}
		w.PriorityScore = w.WeaknessScore * float64(w.ExposureCount) * w.ConfidencePenalty
		w.Recommendation = recommend(m, obs)
		out = append(out, w)
	}

	slices.SortStableFunc(out, func(a, b WeaknessAnalysis) int {
		if c := cmp.Compare(b.PriorityScore, a.PriorityScore); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
	return out
}

// confidencePenalty averages confusion over every score of the topic and
// rates tricky marks per distinct question.
func confidencePenalty(obs []Observation, exposure int) float64 {
	if len(obs) == 0 {
		return 1.0
	}
	var confusion float64
	var marked int
	for _, o := range obs {
		confusion += o.Scores.Confusion
		if o.Signal.MarkedTricky {
			marked++
		}
	}
	penalty := 1.0 + confusionWeight*confusion/float64(len(obs))
	if marked > 0 && exposure > 0 {
		penalty += trickyMarkWeight * float64(marked) / float64(exposure)
	}
	return clamp(penalty, 1.0, maxPenalty)
}

func recommend(m TopicMastery, obs []Observation) string {
	var gap, confusion, guessing float64
	for _, o := range obs {
		gap += o.Scores.KnowledgeGap
		confusion += o.Scores.Confusion
		guessing += o.Scores.Guessing
	}
	if n := float64(len(obs)); n > 0 {
		gap, confusion, guessing = gap/n, confusion/n, guessing/n
	}

	switch {
	case m.Breakdown.EasyWrong > m.Breakdown.EasyCorrect:
		return fmt.Sprintf("Critical gap in %s fundamentals - review basics first", m.Topic)
	case gap > dominantThreshold:
		return fmt.Sprintf("Struggling with basic %s concepts - focused review needed", m.Topic)
	case confusion > confusionDominant:
		return fmt.Sprintf("High confusion in %s - try different explanations or examples", m.Topic)
	case guessing > dominantThreshold:
		return fmt.Sprintf("Answers in %s look rushed - slow down and work each problem through", m.Topic)
	default:
		return fmt.Sprintf("Practice more %s problems to build confidence", m.Topic)
	}
}

func distinctQuestionIDs(obs []Observation) []string {
	seen := map[string]bool{}
	var ids []string
	for _, o := range obs {
		id := o.Signal.QuestionID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func signalsOf(obs []Observation) []BehavioralSignal {
	out := make([]BehavioralSignal, len(obs))
	for i, o := range obs {
		out[i] = o.Signal
	}
	return out
}
