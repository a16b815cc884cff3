package service

import (
	"context"
	"testing"

	"settingsvc/internal/define"
	"settingsvc/internal/store"
)

func TestRunSweepPurgesVolatileEntriesForUninstalledApp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.volatile.Set("picture$dtv", "com.app.gone", "brightness", 5)
	svc.volatile.Set("picture$dtv", "com.app.still-here", "brightness", 7)

	if _, err := svc.store.Put(ctx, []store.Record{{
		ID: "rec-1", Kind: define.KindMain, Category: "picture$dtv", AppID: "com.app.still-here",
		Value: map[string]any{"brightness": 7},
	}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	svc.maintenance.runSweep(ctx)

	if _, ok := svc.volatile.Get("picture$dtv", "com.app.gone", "brightness"); ok {
		t.Error("volatile entry for uninstalled app survived the sweep")
	}
	if _, ok := svc.volatile.Get("picture$dtv", "com.app.still-here", "brightness"); !ok {
		t.Error("volatile entry for an app with a surviving store record was purged")
	}
}

func TestRunSweepLeavesEverythingAloneWhenAllAppsStillInstalled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.volatile.Set("sound$default", "com.app.x", "volume", 3)
	if _, err := svc.store.Put(ctx, []store.Record{{
		ID: "rec-1", Kind: define.KindMain, Category: "sound$default", AppID: "com.app.x",
		Value: map[string]any{"volume": 3},
	}}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	svc.maintenance.runSweep(ctx)

	if _, ok := svc.volatile.Get("sound$default", "com.app.x", "volume"); !ok {
		t.Error("volatile entry for an installed app was purged")
	}
}
