package analytics

import (
	"slices"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Failure pattern cutoffs. They are wider than the cognitive FAST/SLOW
// thresholds on purpose: a pattern describes the topic, not one attempt.
const (
	fastWrongSeconds   = 30
	slowWrongSeconds   = 60
	repeatedWrongCount = 3
)

// DetectFailurePatterns tags the ways a topic is being answered wrongly.
// wrongAttempts is the topic's total wrong count from its mastery entry.
func DetectFailurePatterns(signals []BehavioralSignal, wrongAttempts int) []learning.FailurePattern {
	seen := map[learning.FailurePattern]bool{}
	for _, s := range signals {
		if !s.Answered || s.Correct {
			continue
		}
		if s.TimeSpent < fastWrongSeconds {
			seen[learning.PatternFastWrong] = true
		} else if s.TimeSpent > slowWrongSeconds {
			seen[learning.PatternSlowWrong] = true
		}
		if s.MarkedTricky {
			seen[learning.PatternTrickyWrong] = true
		}
		if s.EmpiricalDifficulty > EasyDifficulty {
			seen[learning.PatternEasyWrong] = true
		}
	}
	if wrongAttempts >= repeatedWrongCount {
		seen[learning.PatternRepeatedTopicFailure] = true
	}

	var out []learning.FailurePattern
	for _, p := range patternOrder {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out
}

var patternOrder = []learning.FailurePattern{
	learning.PatternFastWrong,
	learning.PatternSlowWrong,
	learning.PatternTrickyWrong,
	learning.PatternEasyWrong,
	learning.PatternRepeatedTopicFailure,
}

// patternReason describes why a question from a weak topic is worth reviewing.
func patternReason(patterns []learning.FailurePattern) string {
	has := func(p learning.FailurePattern) bool { return hasPattern(patterns, p) }
	switch {
	case has(learning.PatternEasyWrong):
		return "Critical knowledge gap"
	case has(learning.PatternTrickyWrong):
		return "High-priority confusion point"
	case has(learning.PatternSlowWrong):
		return "Concept unclear"
	case has(learning.PatternFastWrong):
		return "Guessed incorrectly"
	case has(learning.PatternRepeatedTopicFailure):
		return "Repeated failures"
	default:
		return "Needs review"
	}
}

func hasPattern(patterns []learning.FailurePattern, p learning.FailurePattern) bool {
	return slices.Contains(patterns, p)
}
