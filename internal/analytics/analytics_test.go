package analytics

import (
	"math"
	"slices"
	"testing"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

func approxEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func wrong(id, topic string, time int, difficulty float64) BehavioralSignal {
	return BehavioralSignal{QuestionID: id, Topic: topic, TimeSpent: time, Answered: true, EmpiricalDifficulty: difficulty}
}

func right(id, topic string, time int, difficulty float64) BehavioralSignal {
	s := wrong(id, topic, time, difficulty)
	s.Correct = true
	return s
}

func TestExtractSignal(t *testing.T) {
	stats := learning.NewQuestionStatistics("q1")
	stats.TotalAttempts, stats.CorrectAttempts, stats.EmpiricalDifficulty = 4, 3, 0.75

	tests := []struct {
		name           string
		answer         learning.Answer
		ctx            QuestionContext
		wantAnswered   bool
		wantCorrect    bool
		wantDifficulty float64
		wantTopic      string
	}{
		{
			name:           "correct with stats",
			answer:         learning.Answer{QuestionID: "q1", Status: learning.StatusCorrect, TimeTaken: 12},
			ctx:            QuestionContext{Topic: "Cells", Stats: &stats},
			wantAnswered:   true,
			wantCorrect:    true,
			wantDifficulty: 0.75,
			wantTopic:      "Cells",
		},
		{
			name:           "skipped without stats",
			answer:         learning.Answer{QuestionID: "q2", Status: learning.StatusSkipped, TimeTaken: -5},
			ctx:            QuestionContext{Topic: ""},
			wantAnswered:   false,
			wantDifficulty: 0.5,
			wantTopic:      learning.UnknownTopic,
		},
		{
			name:           "empty status derives from flag",
			answer:         learning.Answer{QuestionID: "q3", IsCorrect: false},
			ctx:            QuestionContext{Topic: "Genes", Stats: &learning.QuestionStatistics{}},
			wantAnswered:   true,
			wantDifficulty: 0.5,
			wantTopic:      "Genes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractSignal(tt.answer, tt.ctx)
			if got.Answered != tt.wantAnswered || got.Correct != tt.wantCorrect {
				t.Errorf("answered/correct = %v/%v, want %v/%v", got.Answered, got.Correct, tt.wantAnswered, tt.wantCorrect)
			}
			if !approxEqual(got.EmpiricalDifficulty, tt.wantDifficulty) {
				t.Errorf("EmpiricalDifficulty = %v, want %v", got.EmpiricalDifficulty, tt.wantDifficulty)
			}
			if got.Topic != tt.wantTopic {
				t.Errorf("Topic = %q, want %q", got.Topic, tt.wantTopic)
			}
			if got.TimeSpent < 0 {
				t.Errorf("TimeSpent = %d, want >= 0", got.TimeSpent)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		signal BehavioralSignal
		want   CognitiveScores
	}{
		{
			name:   "fast wrong on hard question is guessing",
			signal: wrong("q", "t", 10, 0.1),
			want:   CognitiveScores{Guessing: 0.8},
		},
		{
			name:   "fast wrong on medium question",
			signal: wrong("q", "t", 10, 0.5),
			want:   CognitiveScores{Guessing: 0.5},
		},
		{
			name:   "fast wrong on easy question adds knowledge gap",
			signal: wrong("q", "t", 5, 0.9),
			want:   CognitiveScores{Guessing: 0.5, KnowledgeGap: 0.9},
		},
		{
			name: "slow wrong with hesitation",
			signal: func() BehavioralSignal {
				s := wrong("q", "t", 90, 0.5)
				s.HesitationCount = 2
				return s
			}(),
			want: CognitiveScores{Confusion: 0.9},
		},
		{
			name: "slow wrong hesitation capped",
			signal: func() BehavioralSignal {
				s := wrong("q", "t", 90, 0.8)
				s.HesitationCount = 9
				return s
			}(),
			want: CognitiveScores{Confusion: 1.0, KnowledgeGap: 0.9},
		},
		{
			name:   "skipped easy question",
			signal: BehavioralSignal{EmpiricalDifficulty: 0.8},
			want:   CognitiveScores{Avoidance: 0.9},
		},
		{
			name:   "skipped hard question",
			signal: BehavioralSignal{EmpiricalDifficulty: 0.2},
			want:   CognitiveScores{Avoidance: 0.6},
		},
		{
			name:   "fast correct",
			signal: right("q", "t", 5, 0.5),
			want:   CognitiveScores{Confidence: 0.9},
		},
		{
			name:   "slow correct unchanged",
			signal: right("q", "t", 45, 0.5),
			want:   CognitiveScores{Confidence: 0.7},
		},
		{
			name: "correct but changed",
			signal: func() BehavioralSignal {
				s := right("q", "t", 5, 0.5)
				s.ChangedAnswer = true
				return s
			}(),
			want: CognitiveScores{},
		},
		{
			name: "slow correct marked tricky",
			signal: func() BehavioralSignal {
				s := right("q", "t", 40, 0.5)
				s.MarkedTricky = true
				return s
			}(),
			want: CognitiveScores{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.signal)
			if !approxEqual(got.Guessing, tt.want.Guessing) ||
				!approxEqual(got.Confusion, tt.want.Confusion) ||
				!approxEqual(got.Avoidance, tt.want.Avoidance) ||
				!approxEqual(got.KnowledgeGap, tt.want.KnowledgeGap) ||
				!approxEqual(got.Confidence, tt.want.Confidence) {
				t.Errorf("Score() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWeightedMastery(t *testing.T) {
	if got := WeightedMastery(nil); got != 0 {
		t.Errorf("WeightedMastery(nil) = %v, want 0", got)
	}
	// Every attempt on a question everyone answers: zero weight.
	if got := WeightedMastery([]BehavioralSignal{right("a", "t", 10, 1.0)}); got != 0 {
		t.Errorf("WeightedMastery(zero weight) = %v, want 0", got)
	}

	// Older wrong, newer right: recency favours the correct attempt.
	signals := []BehavioralSignal{wrong("a", "t", 10, 0.5), right("b", "t", 10, 0.5)}
	w0 := 0.5 * math.Exp(-0.14)
	w1 := 0.5
	want := w1 / (w0 + w1)
	if got := WeightedMastery(signals); !approxEqual(got, want) {
		t.Errorf("WeightedMastery() = %v, want %v", got, want)
	}
}

func TestWeightedMastery_Monotonic(t *testing.T) {
	for _, correct := range []bool{true, false} {
		var run []BehavioralSignal
		prev := -1.0
		if !correct {
			prev = 2.0
		}
		// Start from a mixed history so the run has room to move.
		run = append(run, wrong("x", "t", 10, 0.4), right("y", "t", 10, 0.4))
		for i := 0; i < 10; i++ {
			s := wrong("z", "t", 10, 0.4)
			s.Correct = correct
			run = append(run, s)
			got := WeightedMastery(run)
			if got < 0 || got > 1 {
				t.Fatalf("mastery %v out of bounds", got)
			}
			if correct && got < prev {
				t.Fatalf("all-correct run decreased: %v < %v", got, prev)
			}
			if !correct && got > prev {
				t.Fatalf("all-wrong run increased: %v > %v", got, prev)
			}
			prev = got
		}
	}
}

func TestComputeMastery(t *testing.T) {
	signals := []BehavioralSignal{
		right("q1", "Cells", 10, 0.8),
		wrong("q2", "cells", 30, 0.2),
		right("q3", "Genes", 20, 0.5),
		{QuestionID: "q4", Topic: "Skipped Only", EmpiricalDifficulty: 0.5},
	}
	got := ComputeMastery(signals)
	if len(got) != 2 {
		t.Fatalf("len(ComputeMastery()) = %d, want 2 (skip-only topic omitted)", len(got))
	}

	cells := got[0]
	if cells.Topic != "Cells" || cells.TotalAttempts != 2 || cells.CorrectAttempts != 1 || cells.WrongAttempts != 1 {
		t.Errorf("cells = %+v", cells)
	}
	if cells.Breakdown.EasyCorrect != 1 || cells.Breakdown.HardWrong != 1 {
		t.Errorf("breakdown = %+v", cells.Breakdown)
	}
	if !approxEqual(cells.AvgTimeTaken, 20) {
		t.Errorf("AvgTimeTaken = %v, want 20", cells.AvgTimeTaken)
	}
	if !approxEqual(cells.MasteryPercentage, cells.MasteryScore*100) {
		t.Errorf("MasteryPercentage = %v", cells.MasteryPercentage)
	}

	again := ComputeMastery(signals)
	if !slices.Equal(got, again) {
		t.Error("ComputeMastery() is not deterministic")
	}
}

func TestRankWeaknesses(t *testing.T) {
	marked := wrong("g2", "Genes", 90, 0.5)
	marked.MarkedTricky = true
	marked.HesitationCount = 3

	signals := []BehavioralSignal{
		right("c1", "Cells", 10, 0.5),
		right("c2", "Cells", 10, 0.5),
		wrong("g1", "Genes", 10, 0.1),
		marked,
		wrong("e1", "Energy", 40, 0.5),
	}
	obs := Observe(signals)
	got := RankWeaknesses(ComputeMastery(signals), obs)

	for _, w := range got {
		if w.MasteryScore > WeaknessCutoff {
			t.Errorf("topic %q with mastery %v should be excluded", w.Topic, w.MasteryScore)
		}
		if w.PriorityScore < 0 {
			t.Errorf("topic %q has negative priority", w.Topic)
		}
		if w.ConfidencePenalty < 1 || w.ConfidencePenalty > 2 {
			t.Errorf("topic %q penalty %v out of [1,2]", w.Topic, w.ConfidencePenalty)
		}
	}
	if len(got) != 2 {
		t.Fatalf("len(RankWeaknesses()) = %d, want 2", len(got))
	}

	genes := got[0]
	if genes.Topic != "Genes" || genes.ExposureCount != 2 {
		t.Fatalf("first weakness = %+v, want Genes with 2 questions", genes)
	}
	// confusion: (0 + 1.0)/2 = 0.5 -> +0.25; tricky 1/2 -> +0.15
	if !approxEqual(genes.ConfidencePenalty, 1.4) {
		t.Errorf("ConfidencePenalty = %v, want 1.4", genes.ConfidencePenalty)
	}
	if !approxEqual(genes.PriorityScore, 1*2*1.4) {
		t.Errorf("PriorityScore = %v, want 2.8", genes.PriorityScore)
	}
	want := []learning.FailurePattern{learning.PatternFastWrong, learning.PatternSlowWrong, learning.PatternTrickyWrong}
	if !slices.Equal(genes.FailurePatterns, want) {
		t.Errorf("FailurePatterns = %v, want %v", genes.FailurePatterns, want)
	}

	if got[1].Topic != "Energy" || got[1].Recommendation != "Practice more Energy problems to build confidence" {
		t.Errorf("second weakness = %+v", got[1])
	}
}

func TestRankWeaknesses_RepeatedTrickyQuestion(t *testing.T) {
	var signals []BehavioralSignal
	for range 3 {
		s := wrong("g1", "Genes", 40, 0.5)
		s.MarkedTricky = true
		signals = append(signals, s)
	}
	got := RankWeaknesses(ComputeMastery(signals), Observe(signals))
	if len(got) != 1 {
		t.Fatalf("len(RankWeaknesses()) = %d, want 1", len(got))
	}
	if got[0].ExposureCount != 1 {
		t.Errorf("ExposureCount = %d, want 1", got[0].ExposureCount)
	}
	// three tricky marks over one distinct question: 1 + 0.3 x 3/1
	if !approxEqual(got[0].ConfidencePenalty, 1.9) {
		t.Errorf("ConfidencePenalty = %v, want 1.9", got[0].ConfidencePenalty)
	}
}

func TestRankWeaknesses_TiesByTopic(t *testing.T) {
	signals := []BehavioralSignal{
		wrong("b1", "Beta", 40, 0.5),
		wrong("a1", "Alpha", 40, 0.5),
	}
	got := RankWeaknesses(ComputeMastery(signals), Observe(signals))
	if len(got) != 2 || got[0].Topic != "Alpha" || got[1].Topic != "Beta" {
		t.Errorf("tie order = %v, want Alpha, Beta", []string{got[0].Topic, got[1].Topic})
	}
}

func TestRecommendations(t *testing.T) {
	tests := []struct {
		name    string
		signals []BehavioralSignal
		want    string
	}{
		{
			name:    "easy wrong dominates",
			signals: []BehavioralSignal{wrong("1", "Cells", 40, 0.8)},
			want:    "Critical gap in Cells fundamentals - review basics first",
		},
		{
			name:    "confusion",
			signals: []BehavioralSignal{wrong("1", "Cells", 90, 0.5), wrong("2", "Cells", 90, 0.5)},
			want:    "High confusion in Cells - try different explanations or examples",
		},
		{
			name:    "guessing",
			signals: []BehavioralSignal{wrong("1", "Cells", 5, 0.2), wrong("2", "Cells", 5, 0.5)},
			want:    "Answers in Cells look rushed - slow down and work each problem through",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RankWeaknesses(ComputeMastery(tt.signals), Observe(tt.signals))
			if len(got) != 1 || got[0].Recommendation != tt.want {
				t.Errorf("Recommendation = %v, want %q", got, tt.want)
			}
		})
	}
}

func TestPlanTargeting(t *testing.T) {
	empty := PlanTargeting(nil)
	if len(empty.WeakTopics) != 0 || empty.EstimatedQuestionsNeeded != 10 ||
		!slices.Equal(empty.RecommendedDifficulty, []learning.Difficulty{learning.DifficultyMedium}) {
		t.Errorf("PlanTargeting(nil) = %+v", empty)
	}

	tests := []struct {
		mastery    float64
		difficulty []learning.Difficulty
		questions  int
	}{
		{0.0, []learning.Difficulty{learning.DifficultyEasy}, 20},
		{0.5, []learning.Difficulty{learning.DifficultyEasy, learning.DifficultyMedium}, 10},
		{0.8, []learning.Difficulty{learning.DifficultyMedium}, 5},
	}
	for _, tt := range tests {
		ws := []WeaknessAnalysis{
			{Topic: "A", MasteryScore: tt.mastery},
			{Topic: "B", MasteryScore: 0.9},
			{Topic: "C", MasteryScore: 0.9},
			{Topic: "D", MasteryScore: 0.9},
		}
		got := PlanTargeting(ws)
		if !slices.Equal(got.WeakTopics, []string{"A", "B", "C"}) {
			t.Errorf("WeakTopics = %v", got.WeakTopics)
		}
		if !slices.Equal(got.RecommendedDifficulty, tt.difficulty) {
			t.Errorf("mastery %v: difficulty = %v, want %v", tt.mastery, got.RecommendedDifficulty, tt.difficulty)
		}
		if got.EstimatedQuestionsNeeded != tt.questions {
			t.Errorf("mastery %v: questions = %d, want %d", tt.mastery, got.EstimatedQuestionsNeeded, tt.questions)
		}
	}
}

func TestPlanTargeting_WorstTopicSetsDifficulty(t *testing.T) {
	ws := []WeaknessAnalysis{
		{Topic: "Broad", MasteryScore: 0.7, PriorityScore: 3.0},
		{Topic: "Narrow", MasteryScore: 0.1, PriorityScore: 0.9},
	}
	got := PlanTargeting(ws)
	if !slices.Equal(got.RecommendedDifficulty, []learning.Difficulty{learning.DifficultyEasy}) {
		t.Errorf("difficulty = %v, want [easy] from the weakest topic", got.RecommendedDifficulty)
	}
	// 20 x (1 - 0.7) = 6 follows the top-ranked topic.
	if got.EstimatedQuestionsNeeded != 6 {
		t.Errorf("questions = %d, want 6", got.EstimatedQuestionsNeeded)
	}
}

func TestInferBehavioralType(t *testing.T) {
	fast := func(correct bool) BehavioralSignal {
		s := wrong("q", "t", 5, 0.5)
		s.Correct = correct
		return s
	}
	slowHesitant := wrong("q", "t", 80, 0.5)
	slowHesitant.HesitationCount = 3

	tests := []struct {
		name    string
		signals []BehavioralSignal
		want    BehavioralType
	}{
		{"empty", nil, BehaviorGrinder},
		{"nothing answered", []BehavioralSignal{{}}, BehaviorAvoider},
		{"skips", []BehavioralSignal{{}, fast(true), fast(true)}, BehaviorAvoider},
		{"random clicker", []BehavioralSignal{fast(false), fast(false), fast(true)}, BehaviorRandomClicker},
		{"rusher", []BehavioralSignal{fast(true), fast(true), fast(false)}, BehaviorRusher},
		{"hesitator", []BehavioralSignal{slowHesitant, slowHesitant}, BehaviorHesitator},
		{"grinder", []BehavioralSignal{right("q", "t", 40, 0.5)}, BehaviorGrinder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferBehavioralType(tt.signals); got != tt.want {
				t.Errorf("InferBehavioralType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOrderForReview(t *testing.T) {
	ws := []WeaknessAnalysis{
		{Topic: "A", PriorityScore: 3, QuestionIDs: []string{"1", "2"}, FailurePatterns: []learning.FailurePattern{learning.PatternEasyWrong}},
		{Topic: "B", PriorityScore: 1, QuestionIDs: []string{"2", "3"}},
	}
	got := OrderForReview(ws)
	if len(got) != 3 {
		t.Fatalf("len(OrderForReview()) = %d, want 3", len(got))
	}
	if got[0].Reason != "Critical knowledge gap" || got[2].Reason != "Needs review" || got[2].QuestionID != "3" {
		t.Errorf("OrderForReview() = %+v", got)
	}
}

func TestAnalyze(t *testing.T) {
	a := Analyze([]BehavioralSignal{
		right("1", "A", 10, 0.5),
		wrong("2", "A", 10, 0.5),
		{QuestionID: "3", Topic: "A"},
	})
	if a.TotalQuestions != 3 || a.Answered != 2 || a.Correct != 1 || !approxEqual(a.Accuracy, 0.5) {
		t.Errorf("Analyze() totals = %d/%d/%d acc %v", a.TotalQuestions, a.Answered, a.Correct, a.Accuracy)
	}
	if len(a.Observations) != 3 || len(a.Mastery) != 1 {
		t.Errorf("Analyze() observations=%d mastery=%d", len(a.Observations), len(a.Mastery))
	}
}
