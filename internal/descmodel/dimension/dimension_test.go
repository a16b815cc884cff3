package dimension

import "testing"

type fakeSource map[string]string // "categoryDim/key" -> value

func (f fakeSource) CurrentValue(categoryDim, key string) (string, bool) {
	v, ok := f[categoryDim+"/"+key]
	return v, ok
}

func TestRebuildResolvesIndependentThenDependent(t *testing.T) {
	src := fakeSource{
		"dimensionInfo/input":       "dtv",
		"dimensionInfo/pictureMode": "vivid",
		"picture$dtv.vivid/_3dStatus": "2d",
	}

	s := New()
	s.Rebuild(src,
		IndependentKeys{"input", "pictureMode"},
		[]DependentKey{{Key: "_3dStatus", Category: "picture", Dims: []string{"input", "pictureMode"}}},
	)

	snap := s.Snapshot()
	if snap["input"] != "dtv" || snap["pictureMode"] != "vivid" || snap["_3dStatus"] != "2d" {
		t.Errorf("snapshot = %+v, want input=dtv pictureMode=vivid _3dStatus=2d", snap)
	}
}

func TestRebuildUsesWildcardWhenIndependentUnresolved(t *testing.T) {
	src := fakeSource{
		"dimensionInfo/input":        "dtv",
		"picture$dtv.x/_3dStatus":    "3d",
	}

	s := New()
	s.Rebuild(src,
		IndependentKeys{"input", "pictureMode"}, // pictureMode never resolves
		[]DependentKey{{Key: "_3dStatus", Category: "picture", Dims: []string{"input", "pictureMode"}}},
	)

	if got := s.Value("_3dStatus"); got != "3d" {
		t.Errorf("_3dStatus = %q, want 3d (resolved via wildcard coordinate)", got)
	}
}

func TestRebuildReplacesWholesaleNotIncrementally(t *testing.T) {
	s := New()
	s.Rebuild(fakeSource{"dimensionInfo/input": "dtv"}, IndependentKeys{"input"}, nil)
	if s.Value("input") != "dtv" {
		t.Fatalf("setup failed")
	}

	// second rebuild from a source that no longer has "input" — it must
	// disappear, not linger from the prior generation.
	s.Rebuild(fakeSource{}, IndependentKeys{"input"}, nil)
	if got := s.Value("input"); got != "" {
		t.Errorf("input = %q after rebuild with no source data, want empty (stale data must not persist)", got)
	}
}

func TestDependsOn(t *testing.T) {
	categoryDims := map[string][]string{"picture": {"input", "pictureMode"}}
	if !DependsOn(categoryDims, "picture", "input") {
		t.Error("DependsOn(picture, input) = false, want true")
	}
	if DependsOn(categoryDims, "picture", "country") {
		t.Error("DependsOn(picture, country) = true, want false")
	}
}
