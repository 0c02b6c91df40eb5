// Package selection orders a user's stored questions for reuse so that
// generation is only requested when the pool runs dry.
package selection

import (
	"cmp"
	"slices"

	"github.com/p-n-ai/pai-adaptive/internal/learning"
)

// Tier ranks a pool entry for reuse. Lower tiers are served first.
type Tier int

const (
	TierNeverAnswered Tier = iota
	TierNeedsPractice
	TierCorrectOnce
	TierOther
)

func (t Tier) String() string {
	switch t {
	case TierNeverAnswered:
		return "never_answered"
	case TierNeedsPractice:
		return "needs_practice"
	case TierCorrectOnce:
		return "correct_once"
	default:
		return "other"
	}
}

// TierOf returns the reuse tier of e.
func TierOf(e learning.PoolEntry) Tier {
	switch {
	case e.TimesAnswered == 0:
		return TierNeverAnswered
	case e.TimesCorrect < e.TimesAnswered:
		return TierNeedsPractice
	case e.TimesCorrect == 1:
		return TierCorrectOnce
	default:
		return TierOther
	}
}

// Prioritize returns a sorted copy of entries: by tier, then least recently
// used (never used first), then question ID.
func Prioritize(entries []learning.PoolEntry) []learning.PoolEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b learning.PoolEntry) int {
		if c := cmp.Compare(TierOf(a), TierOf(b)); c != 0 {
			return c
		}
		switch {
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return -1
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return 1
		case a.LastUsedAt != nil && b.LastUsedAt != nil:
			if c := a.LastUsedAt.Compare(*b.LastUsedAt); c != 0 {
				return c
			}
		}
		return cmp.Compare(a.QuestionID, b.QuestionID)
	})
	return out
}

// Result is the outcome of a selection. A shortfall is a normal outcome
// that asks the caller to generate more questions.
type Result struct {
	Entries         []learning.PoolEntry `json:"questions"`
	NeedsGeneration bool                 `json:"needs_generation"`
	Shortfall       int                  `json:"shortfall"`
}

// Select drops mastered entries and takes the numNeeded highest priority ones.
func Select(entries []learning.PoolEntry, numNeeded int) Result {
	var open []learning.PoolEntry
	for _, e := range entries {
		if !e.IsMastered {
			open = append(open, e)
		}
	}
	sorted := Prioritize(open)

	numNeeded = max(numNeeded, 0)
	r := Result{Entries: sorted[:min(numNeeded, len(sorted))]}
	if r.Entries == nil {
		r.Entries = []learning.PoolEntry{}
	}
	if short := numNeeded - len(r.Entries); short > 0 {
		r.NeedsGeneration = true
		r.Shortfall = short
	}
	return r
}

// PoolStats counts a pool by reuse state.
type PoolStats struct {
	Total         int `json:"total_questions"`
	Available     int `json:"available_questions"`
	NeverAnswered int `json:"never_answered"`
	NeedsPractice int `json:"needs_practice"`
	Mastered      int `json:"mastered"`
}

// Stats summarises entries.
func Stats(entries []learning.PoolEntry) PoolStats {
	s := PoolStats{Total: len(entries)}
	for _, e := range entries {
		if e.IsMastered {
			s.Mastered++
			continue
		}
		s.Available++
		switch TierOf(e) {
		case TierNeverAnswered:
			s.NeverAnswered++
		case TierNeedsPractice:
			s.NeedsPractice++
		}
	}
	return s
}
