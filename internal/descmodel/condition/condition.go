// Package condition implements the pluggable condition-scoring predicate of
// spec §4.1.4. The exact condition grammar is an Open Question the spec
// declines to pin down (SPEC_FULL.md "Open Questions — decisions" #1); this
// package treats a condition as an opaque map[string]any and scores by
// key/value agreement against the current device state, the conservative
// reading that matches "a pure integer scoring predicate" in spec §4.1.4.
package condition

// Scorer assigns an integer score reflecting how well a candidate's
// condition matches the current device state. Highest score among
// candidates for the same (key, appId, country) wins; a zero score
// discards the candidate entirely.
type Scorer interface {
	Score(state map[string]any, candidate map[string]any) int
}

// DefaultScorer awards one point per key/value pair in candidate that is
// present and equal in state, and disqualifies (score 0) any candidate
// carrying a key/value pair that contradicts state. A nil or empty
// candidate always scores 1 (it applies unconditionally, but loses ties
// against any candidate with an actual match).
type DefaultScorer struct{}

// Score implements Scorer.
func (DefaultScorer) Score(state map[string]any, candidate map[string]any) int {
	if len(candidate) == 0 {
		return 1
	}
	score := 0
	for k, want := range candidate {
		got, ok := state[k]
		if !ok {
			continue
		}
		if got != want {
			return 0
		}
		score++
	}
	return score + 1
}

// Best returns the index of the highest-scoring candidate in candidates
// under state, or -1 if every candidate scores 0. Ties keep the earliest
// candidate, matching a stable "first applicable wins" reading.
func Best(scorer Scorer, state map[string]any, candidates []map[string]any) int {
	if scorer == nil {
		scorer = DefaultScorer{}
	}
	best := -1
	bestScore := 0
	for i, c := range candidates {
		s := scorer.Score(state, c)
		if s > bestScore {
			bestScore = s
			best = i
		}
	}
	return best
}
