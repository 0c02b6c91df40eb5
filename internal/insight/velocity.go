package insight

import (
	"cmp"
	"fmt"
	"math"
	"slices"
)

// MasteryTarget is the mastery level velocity forecasts aim for.
const MasteryTarget = 0.9

// Velocity is how fast a topic's mastery improves per session.
type Velocity struct {
	Topic             string    `json:"topic"`
	SessionsAnalyzed  int       `json:"sessions_analyzed"`
	MasteryTrajectory []float64 `json:"mastery_trajectory"`
	Velocity          float64   `json:"velocity"`
	Acceleration      float64   `json:"acceleration"`
	SessionsToMastery *int      `json:"sessions_to_mastery"`
	ComparativeRank   string    `json:"comparative_rank,omitempty"`
	// SlowdownRatio is fastest.Velocity / Velocity, set by CompareVelocities.
	SlowdownRatio *float64 `json:"slowdown_ratio,omitempty"`
}

// ComputeVelocity fits a trend to a topic's per-session trajectory. Fewer
// than two points yield zero velocity and no forecast.
func ComputeVelocity(topic string, points []Point) Velocity {
	traj := masteries(points)
	v := Velocity{
		Topic:             topic,
		SessionsAnalyzed:  len(traj),
		MasteryTrajectory: traj,
	}
	if len(traj) < 2 {
		return v
	}

	v.Velocity = Slope(traj)
	if n := len(traj); n >= 4 {
		v.Acceleration = Slope(traj[n/2:]) - Slope(traj[:n/2])
	}

	current := traj[len(traj)-1]
	if v.Velocity > 0 && current < MasteryTarget {
		sessions := max(1, int(math.Ceil((MasteryTarget-current)/v.Velocity)))
		v.SessionsToMastery = &sessions
	}
	return v
}

// CompareVelocities orders topics by velocity, fastest first, and labels
// each one relative to the fastest. Equal velocities keep topic name order.
func CompareVelocities(velocities []Velocity) []Velocity {
	out := slices.Clone(velocities)
	slices.SortStableFunc(out, func(a, b Velocity) int {
		if c := cmp.Compare(b.Velocity, a.Velocity); c != 0 {
			return c
		}
		return cmp.Compare(a.Topic, b.Topic)
	})
	if len(out) < 2 {
		return out
	}

	fastest := out[0]
	out[0].ComparativeRank = "Fastest learning topic"
	for i := 1; i < len(out); i++ {
		if out[i].Velocity <= 0 {
			continue
		}
		ratio := fastest.Velocity / out[i].Velocity
		out[i].SlowdownRatio = &ratio
		out[i].ComparativeRank = fmt.Sprintf("%.1f× slower than %s", ratio, fastest.Topic)
	}
	return out
}
