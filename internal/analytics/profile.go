package analytics

// BehavioralType is a coarse label for how a learner approaches a test.
type BehavioralType string

const (
	BehaviorRusher        BehavioralType = "rusher"
	BehaviorAvoider       BehavioralType = "avoider"
	BehaviorHesitator     BehavioralType = "hesitator"
	BehaviorRandomClicker BehavioralType = "random_clicker"
	BehaviorGrinder       BehavioralType = "grinder"
)

// InferBehavioralType classifies a learner from all of their signals.
func InferBehavioralType(signals []BehavioralSignal) BehavioralType {
	if len(signals) == 0 {
		return BehaviorGrinder
	}
	answered := answeredOnly(signals)
	if len(answered) == 0 {
		return BehaviorAvoider
	}

	n := float64(len(answered))
	skipRate := float64(len(signals)-len(answered)) / float64(len(signals))
	var totalTime, fast, correct, hesitation int
	for _, s := range answered {
		totalTime += s.TimeSpent
		hesitation += s.HesitationCount
		if s.TimeSpent < FastSeconds {
			fast++
		}
		if s.Correct {
			correct++
		}
	}
	fastRate := float64(fast) / n
	accuracy := float64(correct) / n

	switch {
	case skipRate > 0.3:
		return BehaviorAvoider
	case fastRate > 0.7 && accuracy < 0.5:
		return BehaviorRandomClicker
	case fastRate > 0.7:
		return BehaviorRusher
	case float64(totalTime)/n > SlowSeconds && float64(hesitation)/n > 1:
		return BehaviorHesitator
	default:
		return BehaviorGrinder
	}
}
