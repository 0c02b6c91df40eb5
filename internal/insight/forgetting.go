package insight

import (
	"math"
	"time"
)

// ForgettingCurve describes how far a topic has decayed from its peak.
type ForgettingCurve struct {
	Topic          string    `json:"topic"`
	PeakMastery    float64   `json:"peak_mastery"`
	PeakDate       time.Time `json:"peak_date"`
	CurrentMastery float64   `json:"current_mastery"`
	DaysSincePeak  int       `json:"days_since_peak"`
	DecayRate      float64   `json:"decay_rate"`
	HalfLifeDays   *float64  `json:"half_life_days"`
	NeedsReview    bool      `json:"needs_review"`
}

// DetectForgetting finds the peak of a topic's trajectory and the decay
// since. An empty trajectory reports zero mastery with PeakDate set to now.
func DetectForgetting(topic string, points []Point, now time.Time) ForgettingCurve {
	if len(points) == 0 {
		return ForgettingCurve{Topic: topic, PeakDate: now}
	}

	peak := points[0]
	for _, p := range points[1:] {
		if p.Mastery > peak.Mastery {
			peak = p
		}
	}
	current := points[len(points)-1]

	fc := ForgettingCurve{
		Topic:          topic,
		PeakMastery:    peak.Mastery,
		PeakDate:       peak.CompletedAt,
		CurrentMastery: current.Mastery,
		DaysSincePeak:  wholeDays(current.CompletedAt.Sub(peak.CompletedAt)),
	}

	if fc.DaysSincePeak > 0 && fc.PeakMastery > 0 {
		if ratio := fc.CurrentMastery / fc.PeakMastery; ratio > 0 {
			fc.DecayRate = -math.Log(ratio) / float64(fc.DaysSincePeak)
			if fc.DecayRate > 0 {
				h := math.Ln2 / fc.DecayRate
				fc.HalfLifeDays = &h
			}
		} else {
			fc.DecayRate = 1.0
			zero := 0.0
			fc.HalfLifeDays = &zero
		}
	}

	fc.NeedsReview = fc.PeakMastery > 0.7 &&
		fc.CurrentMastery < 0.8*fc.PeakMastery &&
		fc.DaysSincePeak >= 7
	return fc
}

func wholeDays(d time.Duration) int {
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}
