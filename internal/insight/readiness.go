package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Readiness levels.
const (
	LevelReady       = "Ready"
	LevelAlmostReady = "Almost Ready"
	LevelNeedsWork   = "Needs Work"
	LevelNotStarted  = "Not Started"
)

// ExamReadiness is a composite score of how prepared a learner is for a
// document's exam. Component scores are percentages.
type ExamReadiness struct {
	OverallScore        float64  `json:"overall_score"`
	MasteryScore        float64  `json:"mastery_score"`
	ConsistencyScore    float64  `json:"consistency_score"`
	ConfidenceScore     float64  `json:"confidence_score"`
	CoverageScore       float64  `json:"coverage_score"`
	StrongTopics        []string `json:"strong_topics"`
	WeakTopics          []string `json:"weak_topics"`
	InconsistentTopics  []string `json:"inconsistent_topics"`
	EstimatedStudyHours int      `json:"estimated_study_hours"`
	PriorityActions     []string `json:"priority_actions"`
	ReadinessLevel      string   `json:"readiness_level"`
}

// DefaultReadiness is reported before any session has been completed.
func DefaultReadiness() ExamReadiness {
	return ExamReadiness{
		StrongTopics:        []string{},
		WeakTopics:          []string{},
		InconsistentTopics:  []string{},
		EstimatedStudyHours: 20,
		PriorityActions:     []string{"Complete at least one practice test"},
		ReadinessLevel:      LevelNotStarted,
	}
}

// ComputeReadiness scores readiness over a document's completed sessions.
// documentTopics lists every topic of the document; topics seen only in
// sessions are added to it.
func ComputeReadiness(documentTopics []string, sessions []SessionSignals) ExamReadiness {
	if len(sessions) == 0 {
		return DefaultReadiness()
	}

	topics := mergeTopics(documentTopics, Topics(sessions))
	r := ExamReadiness{
		StrongTopics:       []string{},
		WeakTopics:         []string{},
		InconsistentTopics: []string{},
		PriorityActions:    []string{},
	}

	var masterySum, varianceSum float64
	var covered int
	for _, topic := range topics {
		values := masteries(Trajectory(sessions, topic))
		m, v := mean(values), sampleVariance(values)
		masterySum += m
		varianceSum += v
		if len(values) > 0 {
			covered++
		}
		if m > 0.8 {
			r.StrongTopics = append(r.StrongTopics, topic)
		}
		if m < 0.5 {
			r.WeakTopics = append(r.WeakTopics, topic)
		}
		if v > 0.1 {
			r.InconsistentTopics = append(r.InconsistentTopics, topic)
		}
	}

	var mastery, consistency, coverage float64
	if n := float64(len(topics)); n > 0 {
		mastery = masterySum / n
		consistency = math.Max(0, 1-2*varianceSum/n)
		coverage = float64(covered) / n
	} else {
		consistency = 1
	}

	var hesitation, answered int
	for _, s := range sessions {
		for _, sig := range s.Signals {
			if sig.Answered {
				answered++
				hesitation += sig.HesitationCount
			}
		}
	}
	confidence := 1.0
	if answered > 0 {
		confidence = math.Max(0, 1-0.2*float64(hesitation)/float64(answered))
	}

	overall := (mastery*0.40 + consistency*0.25 + confidence*0.20 + coverage*0.15) * 100

	r.OverallScore = round(overall, 1)
	r.MasteryScore = round(mastery*100, 1)
	r.ConsistencyScore = round(consistency*100, 1)
	r.ConfidenceScore = round(confidence*100, 1)
	r.CoverageScore = round(coverage*100, 1)
	r.EstimatedStudyHours = int(math.RoundToEven(math.Max(0, 90-overall) * 0.5))

	switch {
	case overall >= 85:
		r.ReadinessLevel = LevelReady
	case overall >= 70:
		r.ReadinessLevel = LevelAlmostReady
	default:
		r.ReadinessLevel = LevelNeedsWork
	}

	if len(r.WeakTopics) > 0 {
		r.PriorityActions = append(r.PriorityActions,
			fmt.Sprintf("Focus on weak topics: %s", strings.Join(r.WeakTopics[:min(3, len(r.WeakTopics))], ", ")))
	}
	if len(r.InconsistentTopics) > 0 {
		r.PriorityActions = append(r.PriorityActions,
			fmt.Sprintf("Practice inconsistent topics: %s", strings.Join(r.InconsistentTopics[:min(2, len(r.InconsistentTopics))], ", ")))
	}
	if coverage < 0.8 {
		r.PriorityActions = append(r.PriorityActions, "Cover more topics to improve breadth")
	}
	if confidence < 0.7 {
		r.PriorityActions = append(r.PriorityActions, "Build confidence: practice under time pressure")
	}
	return r
}

func mergeTopics(lists ...[]string) []string {
	seen := map[string]bool{}
	var out []string
	for _, list := range lists {
		for _, t := range list {
			key := learning.TopicKey(t)
			if !seen[key] {
				seen[key] = true
				out = append(out, learning.TopicName(t))
			}
		}
	}
	return out
}
