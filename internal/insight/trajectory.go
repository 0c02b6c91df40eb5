// Package insight computes cross-session analytics: learning velocity,
// forgetting curves, exam readiness and the behavior fingerprint.
// InsufficientData never fails; each computation has a documented default.
package insight

import (
	"math"
	"time"

	"github.com/p-n-ai/pai-adaptive/internal/analytics"
	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// SessionSignals are the signals of one completed session.
type SessionSignals struct {
	SessionID   string
	CompletedAt time.Time
	Signals     []analytics.BehavioralSignal
}

// Point is a topic's mastery in one session.
type Point struct {
	SessionID   string    `json:"session_id"`
	CompletedAt time.Time `json:"completed_at"`
	Mastery     float64   `json:"mastery"`
	Attempts    int       `json:"attempts"`
}

// Trajectory returns topic mastery per session, in session order. Sessions
// with no answered question of the topic are skipped.
func Trajectory(sessions []SessionSignals, topic string) []Point {
	key := learning.TopicKey(topic)
	var out []Point
	for _, s := range sessions {
		var attempts []analytics.BehavioralSignal
		for _, sig := range s.Signals {
			if sig.Answered && learning.TopicKey(sig.Topic) == key {
				attempts = append(attempts, sig)
			}
		}
		if len(attempts) == 0 {
			continue
		}
		out = append(out, Point{
			SessionID:   s.SessionID,
			CompletedAt: s.CompletedAt,
			Mastery:     analytics.WeightedMastery(attempts),
			Attempts:    len(attempts),
		})
	}
	return out
}

// Topics returns the distinct topics across sessions, in order of first appearance.
func Topics(sessions []SessionSignals) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range sessions {
		for _, sig := range s.Signals {
			key := learning.TopicKey(sig.Topic)
			if !seen[key] {
				seen[key] = true
				out = append(out, learning.TopicName(sig.Topic))
			}
		}
	}
	return out
}

func masteries(points []Point) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Mastery
	}
	return out
}

// Slope is the least-squares slope of values against their index.
func Slope(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	xMean := float64(n-1) / 2
	var yMean float64
	for _, v := range values {
		yMean += v
	}
	yMean /= float64(n)

	var num, den float64
	for i, v := range values {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance uses n-1 and is zero for fewer than two values.
func sampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return sum / float64(len(values)-1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
