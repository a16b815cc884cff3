package resolver

import "testing"

func TestVolatileMapSetGetRoundTrips(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "com.app.x", "k", 42)

	got, ok := v.Get("picture$dtv", "com.app.x", "k")
	if !ok || got != 42 {
		t.Errorf("Get() = (%v, %v), want (42, true)", got, ok)
	}

	if _, ok := v.Get("picture$dtv", "com.app.other", "k"); ok {
		t.Error("Get() found a value scoped to a different appId")
	}
}

func TestVolatileMapGetAllScopesToPartitionAndApp(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "com.app.x", "a", 1)
	v.Set("picture$dtv", "com.app.x", "b", 2)
	v.Set("picture$hdmi1", "com.app.x", "c", 3)

	all := v.GetAll("picture$dtv", "com.app.x")
	if len(all) != 2 || all["a"] != 1 || all["b"] != 2 {
		t.Errorf("GetAll() = %+v, want {a:1 b:2}", all)
	}
}

func TestVolatileMapDeleteRemovesOnlyOneEntry(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "", "a", 1)
	v.Set("picture$dtv", "", "b", 2)
	v.Delete("picture$dtv", "", "a")

	if _, ok := v.Get("picture$dtv", "", "a"); ok {
		t.Error("a still present after Delete")
	}
	if _, ok := v.Get("picture$dtv", "", "b"); !ok {
		t.Error("b removed by an unrelated Delete")
	}
}

func TestVolatileMapPurgeCategoryClearsOnlyThatPartition(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "", "a", 1)
	v.Set("sound$default", "", "b", 2)
	v.PurgeCategory("picture$dtv", "")

	if _, ok := v.Get("picture$dtv", "", "a"); ok {
		t.Error("a still present after PurgeCategory")
	}
	if _, ok := v.Get("sound$default", "", "b"); !ok {
		t.Error("unrelated partition purged")
	}
}

func TestVolatileMapPurgeCategoryMatchesBareCategoryAcrossDimensionedPartitions(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "", "a", 1)
	v.Set("picture$hdmi1", "", "b", 2)
	v.Set("picture", "", "c", 3)
	v.Set("sound$default", "", "d", 4)
	v.PurgeCategory("picture", "")

	if _, ok := v.Get("picture$dtv", "", "a"); ok {
		t.Error("picture$dtv entry survived a bare-category PurgeCategory(\"picture\")")
	}
	if _, ok := v.Get("picture$hdmi1", "", "b"); ok {
		t.Error("picture$hdmi1 entry survived a bare-category PurgeCategory(\"picture\")")
	}
	if _, ok := v.Get("picture", "", "c"); ok {
		t.Error("dimensionless picture entry survived PurgeCategory(\"picture\")")
	}
	if _, ok := v.Get("sound$default", "", "d"); !ok {
		t.Error("unrelated category purged")
	}
}

func TestVolatileMapPurgeAppClearsEveryPartitionForThatApp(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "com.app.x", "a", 1)
	v.Set("sound$default", "com.app.x", "b", 2)
	v.Set("picture$dtv", "com.app.other", "c", 3)
	v.PurgeApp("com.app.x")

	if _, ok := v.Get("picture$dtv", "com.app.x", "a"); ok {
		t.Error("a still present after PurgeApp")
	}
	if _, ok := v.Get("sound$default", "com.app.x", "b"); ok {
		t.Error("b still present after PurgeApp")
	}
	if _, ok := v.Get("picture$dtv", "com.app.other", "c"); !ok {
		t.Error("unrelated app's entry purged")
	}
}

func TestVolatileMapAppIDsReturnsDistinctNonGlobalApps(t *testing.T) {
	v := NewVolatileMap()
	v.Set("picture$dtv", "com.app.x", "a", 1)
	v.Set("sound$default", "com.app.x", "b", 2)
	v.Set("picture$dtv", "com.app.other", "c", 3)
	v.Set("picture$dtv", "", "d", 4)

	got := v.AppIDs()
	seen := map[string]bool{}
	for _, id := range got {
		seen[id] = true
	}
	if len(got) != 2 || !seen["com.app.x"] || !seen["com.app.other"] {
		t.Errorf("AppIDs() = %v, want [com.app.x com.app.other] in any order", got)
	}
}
