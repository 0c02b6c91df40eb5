package learning

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"
)

func TestParseDifficulty(t *testing.T) {
	tests := []struct {
		in   string
		want Difficulty
	}{
		{"easy", DifficultyEasy},
		{" Beginner ", DifficultyEasy},
		{"HARD", DifficultyHard},
		{"advanced", DifficultyHard},
		{"tricky", DifficultyTricky},
		{"medium", DifficultyMedium},
		{"", DifficultyMedium},
		{"legendary", DifficultyMedium},
	}
	for _, tt := range tests {
		if got := ParseDifficulty(tt.in); got != tt.want {
			t.Errorf("ParseDifficulty(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAnswerStatus(t *testing.T) {
	if got := ParseAnswerStatus("Correct"); got != StatusCorrect {
		t.Errorf("ParseAnswerStatus(Correct) = %q", got)
	}
	if got := ParseAnswerStatus("bogus"); got != StatusNotAttempted {
		t.Errorf("ParseAnswerStatus(bogus) = %q, want not_attempted", got)
	}
}

func TestAnswerOutcome(t *testing.T) {
	if got := (Answer{IsCorrect: true}).Outcome(); got != StatusCorrect {
		t.Errorf("Outcome() = %q, want correct", got)
	}
	if got := (Answer{}).Outcome(); got != StatusWrong {
		t.Errorf("Outcome() = %q, want wrong", got)
	}
	if got := (Answer{IsCorrect: true, Status: StatusSkipped}).Outcome(); got != StatusSkipped {
		t.Errorf("Outcome() = %q, want skipped", got)
	}
}

func TestAnswerPending(t *testing.T) {
	tests := []struct {
		answer Answer
		want   bool
	}{
		{Answer{Status: StatusWrong}, true},
		{Answer{IsCorrect: true}, true},
		{Answer{Status: StatusCorrect, Applied: true}, false},
		{Answer{Status: StatusSkipped}, false},
		{Answer{Status: StatusNotAttempted}, false},
	}
	for _, tt := range tests {
		if got := tt.answer.Pending(); got != tt.want {
			t.Errorf("%+v.Pending() = %v, want %v", tt.answer, got, tt.want)
		}
	}
}

func TestTopicKey(t *testing.T) {
	if TopicKey("Photosynthesis") != TopicKey("  photosynthesis ") {
		t.Error("TopicKey should fold case and whitespace")
	}
	if TopicName("   ") != UnknownTopic {
		t.Errorf("TopicName(blank) = %q, want %q", TopicName("   "), UnknownTopic)
	}
}

func TestQuestionStatistics_Record(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s := NewQuestionStatistics("q1")
	if s.EmpiricalDifficulty != 0.5 {
		t.Fatalf("initial difficulty = %v, want 0.5", s.EmpiricalDifficulty)
	}

	s.Record(true, 10, now)
	s.Record(false, 30, now)
	s.Record(true, 20, now)

	if s.TotalAttempts != 3 || s.CorrectAttempts != 2 {
		t.Fatalf("attempts = %d/%d, want 2/3", s.CorrectAttempts, s.TotalAttempts)
	}
	if math.Abs(s.EmpiricalDifficulty-2.0/3.0) > 1e-9 {
		t.Errorf("EmpiricalDifficulty = %v, want 0.667", s.EmpiricalDifficulty)
	}
	if math.Abs(s.AvgTimeTaken-20) > 1e-9 {
		t.Errorf("AvgTimeTaken = %v, want 20", s.AvgTimeTaken)
	}
	if !s.LastUpdated.Equal(now) {
		t.Errorf("LastUpdated = %v, want %v", s.LastUpdated, now)
	}
}

func TestPoolEntry_RecordAttempt(t *testing.T) {
	var e PoolEntry
	e.RecordAttempt(true)
	if e.IsMastered {
		t.Fatal("one correct answer should not master the entry")
	}
	e.RecordAttempt(false)
	e.RecordAttempt(true)
	if !e.IsMastered {
		t.Fatal("two correct answers should master the entry")
	}
	e.RecordAttempt(false)
	if !e.IsMastered {
		t.Error("mastery should be one-way")
	}
	if e.TimesAnswered != 4 || e.TimesCorrect != 2 {
		t.Errorf("counters = %d/%d, want 2/4", e.TimesCorrect, e.TimesAnswered)
	}
}

func TestPoolFilter_Matches(t *testing.T) {
	entry := PoolEntry{Topic: "Cells", Type: QuestionMCQ, Difficulty: DifficultyEasy}

	tests := []struct {
		name   string
		filter PoolFilter
		want   bool
	}{
		{"empty filter", PoolFilter{}, true},
		{"topic folded", PoolFilter{Topics: []string{"cells"}}, true},
		{"other topic", PoolFilter{Topics: []string{"Genes"}}, false},
		{"type mismatch", PoolFilter{Types: []QuestionType{QuestionShortAnswer}}, false},
		{"difficulty match", PoolFilter{Difficulties: []Difficulty{DifficultyEasy, DifficultyHard}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(entry); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}

	mastered := entry
	mastered.IsMastered = true
	if (PoolFilter{}).Matches(mastered) {
		t.Error("mastered entries should be excluded by default")
	}
	if !(PoolFilter{IncludeMastered: true}).Matches(mastered) {
		t.Error("IncludeMastered should keep mastered entries")
	}
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("generate: %w", Upstream("llm", cause))

	if !IsUpstream(err) {
		t.Fatal("IsUpstream() = false, want true")
	}
	if !errors.Is(err, cause) {
		t.Error("UpstreamError should unwrap to its cause")
	}
	if Upstream("llm", nil) != nil {
		t.Error("Upstream(nil) should be nil")
	}
}
