package insight

import (
	"cmp"
	"math"
	"slices"

	"github.com/p-n-ai/pai-adaptive/internal/analytics"
)

// Trait names, in tie-break order.
const (
	TraitRiskTaker     = "Risk-taker"
	TraitPerfectionist = "Perfectionist"
	TraitSkimmer       = "Skimmer"
	TraitGrinder       = "Grinder"
	TraitDeveloping    = "Developing"
)

const (
	secondaryTraitMin  = 0.3
	coachingThreshold  = 0.6
	defaultConsistency = 0.7
)

type traitScore struct {
	name  string
	score float64
}

// Fingerprint is a multi-trait profile of how a learner takes tests.
type Fingerprint struct {
	UserID                string   `json:"user_id"`
	RiskTaking            float64  `json:"risk_taking"`
	Perfectionism         float64  `json:"perfectionism"`
	Skimming              float64  `json:"skimming"`
	Grinding              float64  `json:"grinding"`
	ConfidenceCalibration float64  `json:"confidence_calibration"`
	SpeedAccuracyTradeoff float64  `json:"speed_accuracy_tradeoff"`
	DifficultySeeking     float64  `json:"difficulty_seeking"`
	Consistency           float64  `json:"consistency"`
	PrimaryTrait          string   `json:"primary_trait"`
	SecondaryTrait        string   `json:"secondary_trait,omitempty"`
	Strengths             []string `json:"strengths"`
	GrowthAreas           []string `json:"growth_areas"`
	OptimalStudyStrategy  string   `json:"optimal_study_strategy"`
}

// DefaultFingerprint is reported when nothing has been answered yet.
func DefaultFingerprint(userID string) Fingerprint {
	return Fingerprint{
		UserID:                userID,
		RiskTaking:            0.5,
		Perfectionism:         0.5,
		Skimming:              0.5,
		Grinding:              0.5,
		ConfidenceCalibration: 0.5,
		DifficultySeeking:     0.5,
		Consistency:           0.5,
		PrimaryTrait:          TraitDeveloping,
		Strengths:             []string{"Building foundation"},
		GrowthAreas:           []string{"Complete more tests for analysis"},
		OptimalStudyStrategy:  "Focus on consistent practice",
	}
}

// ComputeFingerprint profiles a learner from all of their sessions.
func ComputeFingerprint(userID string, sessions []SessionSignals) Fingerprint {
	var signals []analytics.BehavioralSignal
	for _, s := range sessions {
		signals = append(signals, s.Signals...)
	}
	var answered []analytics.BehavioralSignal
	for _, s := range signals {
		if s.Answered {
			answered = append(answered, s)
		}
	}
	if len(answered) == 0 {
		return DefaultFingerprint(userID)
	}

	total := float64(len(signals))
	n := float64(len(answered))
	skipped := len(signals) - len(answered)

	var fast, fastCorrect, slow, correct, marked, hesitation, timeSum int
	var quickCorrect, slowWrong, hardAttempts int
	for _, s := range answered {
		timeSum += s.TimeSpent
		hesitation += s.HesitationCount
		if s.Correct {
			correct++
		}
		if s.MarkedTricky {
			marked++
		}
		if s.TimeSpent < analytics.FastSeconds {
			fast++
			if s.Correct {
				fastCorrect++
			}
		}
		if s.TimeSpent > analytics.SlowSeconds {
			slow++
			if !s.Correct {
				slowWrong++
			}
		}
		if s.TimeSpent < 30 && s.Correct {
			quickCorrect++
		}
		if s.EmpiricalDifficulty < analytics.HardDifficulty {
			hardAttempts++
		}
	}
	var hardSkips, easySkips int
	for _, s := range signals {
		if s.Answered {
			continue
		}
		if s.EmpiricalDifficulty < analytics.HardDifficulty {
			hardSkips++
		}
		if s.EmpiricalDifficulty > analytics.EasyDifficulty {
			easySkips++
		}
	}

	fastRate := float64(fast) / n
	var fastAccuracy float64
	if fast > 0 {
		fastAccuracy = float64(fastCorrect) / float64(fast)
	}
	slowRate := float64(slow) / n
	accuracy := float64(correct) / n
	var hardSkipRate float64
	if skipped > 0 {
		hardSkipRate = float64(hardSkips) / float64(skipped)
	}

	risk := math.Min(1, fastRate*(1+(1-fastAccuracy)*0.5))
	perfectionism := math.Min(1, float64(hesitation)/n*0.3+float64(marked)/n*0.4+slowRate*0.3)
	skimming := math.Min(1, float64(skipped)/total*0.6+hardSkipRate*0.4)
	grinding := math.Min(1, slowRate*accuracy)

	calibration := clampf((float64(quickCorrect-slowWrong)/n+1)/2, 0, 1)
	tradeoff := clampf((float64(timeSum)/n-45)/45-(accuracy-0.5)/0.5, -1, 1)
	seeking := clampf((float64(hardAttempts-easySkips)/total+1)/2, 0, 1)

	f := Fingerprint{
		UserID:                userID,
		RiskTaking:            round(risk, 2),
		Perfectionism:         round(perfectionism, 2),
		Skimming:              round(skimming, 2),
		Grinding:              round(grinding, 2),
		ConfidenceCalibration: round(calibration, 2),
		SpeedAccuracyTradeoff: round(tradeoff, 2),
		DifficultySeeking:     round(seeking, 2),
		Consistency:           round(sessionConsistency(sessions), 2),
		Strengths:             []string{},
		GrowthAreas:           []string{},
	}

	traits := []traitScore{
		{TraitRiskTaker, risk},
		{TraitPerfectionist, perfectionism},
		{TraitSkimmer, skimming},
		{TraitGrinder, grinding},
	}
	slices.SortStableFunc(traits, func(a, b traitScore) int {
		return cmp.Compare(b.score, a.score)
	})
	f.PrimaryTrait = traits[0].name
	if traits[1].score > secondaryTraitMin {
		f.SecondaryTrait = traits[1].name
	}

	if risk > coachingThreshold {
		f.Strengths = append(f.Strengths, "Bold decision-making under time pressure")
		f.GrowthAreas = append(f.GrowthAreas, "Slow down on complex questions")
	}
	if perfectionism > coachingThreshold {
		f.Strengths = append(f.Strengths, "Attention to detail and accuracy")
		f.GrowthAreas = append(f.GrowthAreas, "Trust your first instinct more")
	}
	if grinding > coachingThreshold {
		f.Strengths = append(f.Strengths, "Thorough understanding of concepts", "High accuracy through persistence")
	}
	if skimming > coachingThreshold {
		f.GrowthAreas = append(f.GrowthAreas, "Engage with difficult material", "Build tolerance for challenging problems")
	}
	if accuracy > 0.8 {
		f.Strengths = append(f.Strengths, "Strong foundational knowledge")
	}

	switch f.PrimaryTrait {
	case TraitRiskTaker:
		f.OptimalStudyStrategy = "Use timed practice to channel your speed advantage. Review mistakes to improve accuracy."
	case TraitPerfectionist:
		f.OptimalStudyStrategy = "Set time limits to prevent overthinking. Practice trusting your preparation."
	case TraitGrinder:
		f.OptimalStudyStrategy = "Your persistence is your strength. Focus on efficiency to maximize coverage."
	default:
		f.OptimalStudyStrategy = "Build stamina for difficult topics. Start with moderate difficulty, then increase."
	}
	return f
}

// sessionConsistency is 1 - 2 x the variance of per-session accuracy. With
// fewer than two scored sessions there is nothing to compare and a neutral
// value is used.
func sessionConsistency(sessions []SessionSignals) float64 {
	var accuracies []float64
	for _, s := range sessions {
		var answered, correct int
		for _, sig := range s.Signals {
			if sig.Answered {
				answered++
				if sig.Correct {
					correct++
				}
			}
		}
		if answered > 0 {
			accuracies = append(accuracies, float64(correct)/float64(answered))
		}
	}
	if len(accuracies) < 2 {
		return defaultConsistency
	}
	return math.Max(0, 1-2*sampleVariance(accuracies))
}

func clampf(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
