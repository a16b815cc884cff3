package resolver

import (
	"testing"

	"settingsvc/internal/define"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/store"
)

func dbTypeTable(m map[string]string) func(string) string {
	return func(key string) string {
		if t, ok := m[key]; ok {
			return t
		}
		return define.DBTypeGlobal
	}
}

func TestMergeLayeredRecordsLaterKindWins(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindDefault, Category: "picture$dtv", AppID: "", Value: map[string]any{"brightness": 50}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Value: map[string]any{"brightness": 70}},
	}
	out := MergeLayeredRecords(MergeInput{
		Category: "picture$dtv",
		Records:  records,
		AppID:    "",
		DBTypeOf: dbTypeTable(map[string]string{"brightness": define.DBTypeGlobal}),
	})
	if out["brightness"] != 70 {
		t.Errorf("brightness = %v, want 70 (main overrides default)", out["brightness"])
	}
}

func TestMergeLayeredRecordsGlobalKeyIgnoresPerAppValue(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Value: map[string]any{"brightness": 70}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "com.app.x", Value: map[string]any{"brightness": 99}},
	}
	out := MergeLayeredRecords(MergeInput{
		Category: "picture$dtv",
		Records:  records,
		AppID:    "com.app.x",
		DBTypeOf: dbTypeTable(map[string]string{"brightness": define.DBTypeGlobal}),
	})
	if out["brightness"] != 70 {
		t.Errorf("brightness = %v, want 70 (G dbtype never takes a per-app value)", out["brightness"])
	}
}

func TestMergeLayeredRecordsMixedPerAppFallsBackToGlobal(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Value: map[string]any{"arcPerApp": "auto"}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "com.bdp", Value: map[string]any{"arcPerApp": "zoom"}},
	}
	dbType := dbTypeTable(map[string]string{"arcPerApp": define.DBTypeMixed})

	got := MergeLayeredRecords(MergeInput{Category: "picture$dtv", Records: records, AppID: "com.bdp", DBTypeOf: dbType})
	if got["arcPerApp"] != "zoom" {
		t.Errorf("com.bdp arcPerApp = %v, want zoom", got["arcPerApp"])
	}

	got2 := MergeLayeredRecords(MergeInput{Category: "picture$dtv", Records: records, AppID: "com.other", DBTypeOf: dbType})
	if got2["arcPerApp"] != "auto" {
		t.Errorf("com.other arcPerApp = %v, want auto (fallback to global)", got2["arcPerApp"])
	}
}

func TestMergeLayeredRecordsFilterMixedDropsInheritedKeys(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Value: map[string]any{"arcPerApp": "auto", "other": 1}},
	}
	dbType := dbTypeTable(map[string]string{"arcPerApp": define.DBTypeMixed, "other": define.DBTypeGlobal})

	out := MergeLayeredRecords(MergeInput{Category: "picture$dtv", Records: records, AppID: "com.bdp", DBTypeOf: dbType, FilterMixed: true})
	if _, ok := out["arcPerApp"]; ok {
		t.Error("arcPerApp present after FilterMixed, want dropped (no explicit per-app record)")
	}
	if out["other"] != 1 {
		t.Errorf("other = %v, want 1 (non-mixed keys unaffected by FilterMixed)", out["other"])
	}
}

func TestMergeLayeredRecordsExceptionRequiresAllowList(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Value: map[string]any{"k": "global"}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "com.app.x", Value: map[string]any{"k": "mine"}},
	}
	dbType := dbTypeTable(map[string]string{"k": define.DBTypeException})

	withAllow := MergeLayeredRecords(MergeInput{Category: "picture$dtv", Records: records, AppID: "com.app.x", DBTypeOf: dbType, Exceptions: fakeAllower{"com.app.x": true}})
	if withAllow["k"] != "mine" {
		t.Errorf("k = %v, want mine (allowed exception)", withAllow["k"])
	}

	withoutAllow := MergeLayeredRecords(MergeInput{Category: "picture$dtv", Records: records, AppID: "com.app.x", DBTypeOf: dbType, Exceptions: fakeAllower{}})
	if withoutAllow["k"] != "global" {
		t.Errorf("k = %v, want global (not on exception list)", withoutAllow["k"])
	}
}

func TestMergeLayeredRecordsDisambiguatesSiblingConditionVariants(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Condition: map[string]any{"input": "hdmi2"}, Value: map[string]any{"brightness": 10}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Condition: map[string]any{"input": "hdmi1"}, Value: map[string]any{"brightness": 20}},
	}
	model := descmodel.New(descmodel.Config{})
	model.SetDeviceState(map[string]any{"input": "hdmi1"})

	out := MergeLayeredRecords(MergeInput{
		Category: "picture$dtv",
		Records:  records,
		AppID:    "",
		DBTypeOf: dbTypeTable(map[string]string{"brightness": define.DBTypeGlobal}),
		Model:    model,
	})
	if out["brightness"] != 20 {
		t.Errorf("brightness = %v, want 20 (only the hdmi1-matching sibling survives condition scoring)", out["brightness"])
	}
}

func TestMergeLayeredRecordsDropsBucketWhenEverySiblingIsConditionDisqualified(t *testing.T) {
	records := []store.Record{
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Condition: map[string]any{"input": "hdmi2"}, Value: map[string]any{"brightness": 10}},
		{Kind: define.KindMain, Category: "picture$dtv", AppID: "", Condition: map[string]any{"input": "hdmi3"}, Value: map[string]any{"brightness": 30}},
	}
	model := descmodel.New(descmodel.Config{})
	model.SetDeviceState(map[string]any{"input": "hdmi1"})

	out := MergeLayeredRecords(MergeInput{
		Category: "picture$dtv",
		Records:  records,
		AppID:    "",
		DBTypeOf: dbTypeTable(map[string]string{"brightness": define.DBTypeGlobal}),
		Model:    model,
	})
	if _, ok := out["brightness"]; ok {
		t.Errorf("brightness present = %v, want absent (every sibling condition-disqualified)", out["brightness"])
	}
}

type fakeAllower map[string]bool

func (f fakeAllower) Allows(key, appID string) bool { return f[appID] }
