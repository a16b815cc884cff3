package descmodel

import (
	"testing"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel/diskstore"
)

func TestDescribeMergesBaseAndOverrideLayers(t *testing.T) {
	base := diskstore.New([]Description{{Key: "k", Category: "cat", DBType: define.DBTypeGlobal, Values: map[string]any{"a": 1, "b": 1}}})
	override := diskstore.New([]Description{{Key: "k", Values: map[string]any{"b": 2}}})
	m := New(Config{Base: base, Override: override})

	d, ok := m.Describe("k", "")
	if !ok {
		t.Fatal("Describe() = not found, want found")
	}
	if d.Values["a"] != float64(1) && d.Values["a"] != 1 {
		t.Errorf("Values[a] = %v, want base value 1 preserved", d.Values["a"])
	}
	if d.Values["b"] != float64(2) && d.Values["b"] != 2 {
		t.Errorf("Values[b] = %v, want override value 2", d.Values["b"])
	}
}

func TestDescribeDiscardsZeroScoredConditionAndBreaksCountryTiesByScore(t *testing.T) {
	base := diskstore.New([]Description{
		{Key: "k", Condition: map[string]any{"input": "hdmi2"}, Values: map[string]any{"v": "wrong-input"}},
		{Key: "k", Condition: map[string]any{"input": "hdmi1"}, Values: map[string]any{"v": "hdmi1-only"}},
		{Key: "k", Values: map[string]any{"v": "unconditional"}},
	})
	m := New(Config{Base: base})
	m.SetDeviceState(map[string]any{"input": "hdmi1", "mode": "movie"})

	d, ok := m.Describe("k", "")
	if !ok {
		t.Fatal("Describe() = not found, want found")
	}
	if d.Values["v"] != "hdmi1-only" {
		t.Errorf("Values[v] = %v, want hdmi1-only (matching-condition candidate beats the unconditional one on score, the contradicting one is discarded entirely)", d.Values["v"])
	}
}

func TestDescribePerAppShadowsGlobal(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{
		{Key: "k", Category: "cat", DBType: define.DBTypePerApp, AppID: define.GlobalAppID, Values: map[string]any{"v": "global"}},
		{Key: "k", Category: "cat", DBType: define.DBTypePerApp, AppID: "com.app.x", Values: map[string]any{"v": "mine"}},
	}, nil)

	d, ok := m.Describe("k", "com.app.x")
	if !ok || d.Values["v"] != "mine" {
		t.Errorf("Describe(k, com.app.x) = %+v, want per-app value to shadow global", d)
	}

	d2, ok2 := m.Describe("k", "com.app.other")
	if !ok2 || d2.Values["v"] != "global" {
		t.Errorf("Describe(k, com.app.other) = %+v, want fallback to global", d2)
	}
}

func TestDescribePerAppDefaultShadowsGlobalSystemEntry(t *testing.T) {
	m := New(Config{})
	m.LoadCaches(
		[]Description{
			{Key: "k", Category: "cat", DBType: define.DBTypePerApp, AppID: "com.app.x", Values: map[string]any{"v": "per-app-default"}},
		},
		[]Description{
			{Key: "k", Category: "cat", DBType: define.DBTypePerApp, AppID: define.GlobalAppID, Values: map[string]any{"v": "global-system"}},
		},
	)

	d, ok := m.Describe("k", "com.app.x")
	if !ok || d.Values["v"] != "per-app-default" {
		t.Errorf("Describe(k, com.app.x) = %+v, want the per-app default entry, with the global system entry suppressed", d)
	}

	d2, ok2 := m.Describe("k", "com.app.other")
	if !ok2 || d2.Values["v"] != "global-system" {
		t.Errorf("Describe(k, com.app.other) = %+v, want global system fallback for an unrelated app", d2)
	}
}

func TestDescribeUnknownKeyNotFound(t *testing.T) {
	m := New(Config{})
	if _, ok := m.Describe("nope", ""); ok {
		t.Error("Describe(nope) = found, want not found")
	}
}

func TestCategoryOfAndDBTypeOf(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{{Key: "k", Category: "picture", DBType: define.DBTypeMixed}}, nil)

	if cat, _ := m.CategoryOf("k"); cat != "picture" {
		t.Errorf("CategoryOf(k) = %q, want picture", cat)
	}
	if dbt := m.DBTypeOf("k"); dbt != define.DBTypeMixed {
		t.Errorf("DBTypeOf(k) = %q, want M", dbt)
	}
	if dbt := m.DBTypeOf("missing"); dbt != define.DBTypeGlobal {
		t.Errorf("DBTypeOf(missing) = %q, want G default", dbt)
	}
}

func TestIsVolatileAndIsNewKey(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{{Key: "k", Volatile: true}}, nil)

	if !m.IsVolatile("k") {
		t.Error("IsVolatile(k) = false, want true")
	}
	if m.IsVolatile("other") {
		t.Error("IsVolatile(other) = true, want false")
	}
	if m.IsNewKey("k") {
		t.Error("IsNewKey(k) = true, want false")
	}
	if !m.IsNewKey("brand-new") {
		t.Error("IsNewKey(brand-new) = false, want true")
	}
}

func TestBuildCategoryDimUsesWildcardWhenUnresolved(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{{Key: "k", Category: "picture", Dimension: []string{"input", "pictureMode"}}}, nil)

	got := m.BuildCategoryDim("k", map[string]string{"input": "dtv"})
	want := "picture$dtv.x"
	if got != want {
		t.Errorf("BuildCategoryDim = %q, want %q", got, want)
	}
}

func TestGetCategoryKeyListMapGroupsByRequestedCoordinate(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{
		{Key: "k1", Category: "picture", Dimension: []string{"input"}},
		{Key: "k2", Category: "picture", Dimension: []string{"input"}},
	}, nil)

	out := m.GetCategoryKeyListMap("picture", map[string]string{"input": "dtv"}, []string{"k1", "k2"})
	if got := out["picture$dtv"]; len(got) != 2 {
		t.Errorf("GetCategoryKeyListMap = %+v, want both keys under picture$dtv", out)
	}
}

func TestGetCategoryKeyListMapAllEnumeratesCrossProduct(t *testing.T) {
	m := New(Config{CategoryDims: map[string][]string{"picture": {"input"}}})
	valuesOf := func(dimKey string) []string {
		if dimKey == "input" {
			return []string{"dtv", "hdmi1"}
		}
		return nil
	}

	out := m.GetCategoryKeyListMapAll("picture", []string{"k1"}, valuesOf)
	if len(out) != 2 {
		t.Fatalf("GetCategoryKeyListMapAll = %+v, want 2 partitions", out)
	}
	if _, ok := out["picture$dtv"]; !ok {
		t.Error("missing picture$dtv partition")
	}
	if _, ok := out["picture$hdmi1"]; !ok {
		t.Error("missing picture$hdmi1 partition")
	}
}

func TestSplitKeysIntoGlobalOrPerApp(t *testing.T) {
	m := New(Config{})
	m.LoadCaches([]Description{
		{Key: "g", DBType: define.DBTypeGlobal},
		{Key: "p", DBType: define.DBTypePerApp},
	}, nil)

	global, perApp := m.SplitKeysIntoGlobalOrPerApp([]string{"g", "p"}, "com.app.x")
	if len(global) != 1 || global[0] != "g" {
		t.Errorf("global = %+v, want [g]", global)
	}
	if len(perApp) != 1 || perApp[0] != "p" {
		t.Errorf("perApp = %+v, want [p]", perApp)
	}
}
