package country

import "testing"

type tagged string

func (t tagged) CountryTag() string { return string(t) }

func TestSelectPrefersLiveCountryMatch(t *testing.T) {
	candidates := []tagged{"KR", "default", ""}
	idx := Select(candidates, "FR-KR")
	if idx != 0 {
		t.Errorf("Select() = %d, want 0 (substring match on KR)", idx)
	}
}

func TestSelectFallsBackToDefaultThenUntagged(t *testing.T) {
	withDefault := []tagged{"US", "default"}
	if idx := Select(withDefault, "FR"); idx != 1 {
		t.Errorf("Select() = %d, want 1 (default)", idx)
	}

	onlyUntagged := []tagged{"US", ""}
	if idx := Select(onlyUntagged, "FR"); idx != 1 {
		t.Errorf("Select() = %d, want 1 (untagged fallback)", idx)
	}
}

func TestSelectNoneApplies(t *testing.T) {
	candidates := []tagged{"US", "KR"}
	if idx := Select(candidates, "FR"); idx != -1 {
		t.Errorf("Select() = %d, want -1", idx)
	}
}

func TestCaptureThenReapplyPreservesLocaleUI(t *testing.T) {
	allowlist := []PropertyPath{{Category: "option", Key: "localeInfo", Path: "locales.UI"}}

	before := map[string]MainValues{
		"option": {"localeInfo": `{"locales":{"UI":"en-US"},"keyboards":["us"]}`},
	}
	captured := Capture(before, allowlist)

	after := map[string]MainValues{
		"option": {"localeInfo": `{"locales":{"UI":"fr-FR"},"keyboards":["fr"]}`},
	}
	reapplied := Reapply(after, captured)

	got := reapplied["option"]["localeInfo"]
	if want := "en-US"; !contains(got, want) {
		t.Errorf("localeInfo = %s, want it to still contain %q", got, want)
	}
}

func TestCaptureMissingKeyYieldsNotFound(t *testing.T) {
	allowlist := []PropertyPath{{Category: "option", Key: "localeInfo", Path: "locales.UI"}}
	captured := Capture(map[string]MainValues{}, allowlist)
	if len(captured) != 1 || captured[0].Found {
		t.Errorf("captured = %+v, want one not-found entry", captured)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
