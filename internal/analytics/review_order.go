package analytics

// ReviewQuestion is a question worth revisiting, with the reason it was picked.
type ReviewQuestion struct {
	QuestionID    string  `json:"question_id"`
	Topic         string  `json:"topic"`
	PriorityScore float64 `json:"priority"`
	Reason        string  `json:"reason"`
}

// OrderForReview lists the questions of every weak topic, most urgent topic
// first. A question appears once, under its highest-priority topic.
func OrderForReview(weaknesses []WeaknessAnalysis) []ReviewQuestion {
	var out []ReviewQuestion
	seen := map[string]bool{}
	for _, w := range weaknesses {
		reason := patternReason(w.FailurePatterns)
		for _, id := range w.QuestionIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, ReviewQuestion{
				QuestionID:    id,
				Topic:         w.Topic,
				PriorityScore: w.PriorityScore,
				Reason:        reason,
			})
		}
	}
	return out
}
