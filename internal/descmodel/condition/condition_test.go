package condition

import "testing"

func TestDefaultScorerUnconditionalCandidateScoresOne(t *testing.T) {
	s := DefaultScorer{}
	if got := s.Score(map[string]any{"region": "US"}, nil); got != 1 {
		t.Errorf("Score(state, nil) = %d, want 1", got)
	}
}

func TestDefaultScorerDisqualifiesMismatch(t *testing.T) {
	s := DefaultScorer{}
	state := map[string]any{"region": "US"}
	candidate := map[string]any{"region": "KR"}
	if got := s.Score(state, candidate); got != 0 {
		t.Errorf("Score() = %d, want 0 (mismatched region)", got)
	}
}

func TestDefaultScorerRewardsMoreMatchedPairs(t *testing.T) {
	s := DefaultScorer{}
	state := map[string]any{"region": "US", "model": "oled"}
	one := s.Score(state, map[string]any{"region": "US"})
	two := s.Score(state, map[string]any{"region": "US", "model": "oled"})
	if two <= one {
		t.Errorf("two-match score %d should exceed one-match score %d", two, one)
	}
}

func TestBestPicksHighestScoringIndex(t *testing.T) {
	state := map[string]any{"region": "US", "model": "oled"}
	candidates := []map[string]any{
		{"region": "KR"},                  // disqualified
		{"region": "US"},                  // score 2
		{"region": "US", "model": "oled"}, // score 3, best
	}
	if got := Best(DefaultScorer{}, state, candidates); got != 2 {
		t.Errorf("Best() = %d, want 2", got)
	}
}

func TestBestReturnsMinusOneWhenAllDisqualified(t *testing.T) {
	state := map[string]any{"region": "US"}
	candidates := []map[string]any{
		{"region": "KR"},
		{"region": "FR"},
	}
	if got := Best(DefaultScorer{}, state, candidates); got != -1 {
		t.Errorf("Best() = %d, want -1", got)
	}
}
