package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"settingsvc/internal/bus"
	"settingsvc/internal/config"
	"settingsvc/internal/define"
	"settingsvc/internal/derivedfile"
	"settingsvc/internal/descmodel"
	"settingsvc/internal/descmodel/condition"
	"settingsvc/internal/descmodel/diskstore"
	"settingsvc/internal/notify"
	"settingsvc/internal/resolver"
	"settingsvc/internal/store"
	"settingsvc/internal/store/sqlstore"
	"settingsvc/internal/taskengine"
	"settingsvc/pkg/exceptionlist"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus is an in-memory bus.Bus used in place of wsbus for tests: it
// records replies and publishes per sender instead of writing to a socket.
type fakeBus struct {
	mu        sync.Mutex
	replies   map[string][]bus.Response
	published map[string][]any
}

func newFakeBus() *fakeBus {
	return &fakeBus{replies: map[string][]bus.Response{}, published: map[string][]any{}}
}

func (f *fakeBus) Requests() <-chan bus.Request { return nil }

func (f *fakeBus) Reply(req bus.Request, resp bus.Response) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[req.Sender] = append(f.replies[req.Sender], resp)
	return nil
}

func (f *fakeBus) Publish(_ context.Context, sender string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[sender] = append(f.published[sender], payload)
	return nil
}

func (f *fakeBus) publishedTo(sender string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.published[sender]...)
}

// newTestService builds a Service the same way New does, but over a fake
// bus and with no on-disk description artifacts (tests seed descriptions
// directly through model.AddKeyDesc).
func newTestService(t *testing.T) (*Service, *fakeBus) {
	t.Helper()
	dir := t.TempDir()
	log := discardLogger()

	ctx := context.Background()
	db, err := sqlstore.Open(ctx, log, dir, "settings.db")
	if err != nil {
		t.Fatalf("sqlstore.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	model := descmodel.New(descmodel.Config{
		Base:       diskstore.Empty(),
		Override:   diskstore.Empty(),
		Exceptions: exceptionlist.Empty(),
		Scorer:     condition.DefaultScorer{},
	})

	st := sqlstore.New(db)
	volatile := resolver.NewVolatileMap()
	res := resolver.New(st, model, volatile, exceptionlist.Empty(), nil, log)

	engine, err := taskengine.New(db.SQLWriteDB(), log)
	if err != nil {
		t.Fatalf("taskengine.New: %v", err)
	}

	derived, err := derivedfile.New(filepath.Join(dir, "derived"))
	if err != nil {
		t.Fatalf("derivedfile.New: %v", err)
	}

	reg := notify.NewRegistry()
	fb := newFakeBus()
	fetch := func(fctx context.Context, category, appID string, keys []string) (map[string]any, error) {
		result, ferr := res.Get(fctx, resolver.GetRequest{Category: category, AppID: appID, Keys: keys})
		if ferr != nil {
			return nil, ferr
		}
		return result.Settings, nil
	}
	emit := notify.NewEmitter(reg, fb, engine, fetch, derived, log)

	svc := &Service{
		cfg:      config.Config{DataDir: dir},
		log:      log,
		db:       db,
		store:    st,
		model:    model,
		volatile: volatile,
		resolver: res,
		engine:   engine,
		reg:      reg,
		emit:     emit,
		bus:      fb,
		derived:  derived,
	}
	svc.maintenance = newMaintenanceSweeper(svc, "", log)
	return svc, fb
}

func TestDispatchSetThenGetRoundTrips(t *testing.T) {
	svc, _ := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "lang", Category: "locale", VType: "String", DBType: define.DBTypeGlobal,
	})

	ctx := context.Background()
	setResp := svc.call(ctx, "sender-a", "setSystemSettings", map[string]any{
		"settings": map[string]any{"lang": "en"},
	})
	if !setResp.ReturnValue {
		t.Fatalf("set failed: %+v", setResp)
	}

	getResp := svc.call(ctx, "sender-a", "getSystemSettings", map[string]any{
		"keys": []any{"lang"},
	})
	if !getResp.ReturnValue {
		t.Fatalf("get failed: %+v", getResp)
	}
	if getResp.Settings["lang"] != "en" {
		t.Errorf("Settings[lang] = %v, want en", getResp.Settings["lang"])
	}
}

func TestDispatchSetNotifiesSubscribedSender(t *testing.T) {
	svc, fb := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "lang", Category: "locale", VType: "String", DBType: define.DBTypeGlobal,
	})

	ctx := context.Background()
	getResp := svc.call(ctx, "subscriber", "getSystemSettings", map[string]any{
		"keys":      []any{"lang"},
		"subscribe": true,
	})
	if !getResp.ReturnValue {
		t.Fatalf("get failed: %+v", getResp)
	}

	setResp := svc.call(ctx, "writer", "setSystemSettings", map[string]any{
		"settings": map[string]any{"lang": "fr"},
	})
	if !setResp.ReturnValue {
		t.Fatalf("set failed: %+v", setResp)
	}

	published := fb.publishedTo("subscriber")
	if len(published) == 0 {
		t.Fatal("expected at least one publish to subscriber, got none")
	}
	payload, ok := published[0].(map[string]any)
	if !ok {
		t.Fatalf("publish payload type = %T, want map[string]any", published[0])
	}
	settings, _ := payload["settings"].(map[string]any)
	if settings["lang"] != "fr" {
		t.Errorf("published lang = %v, want fr", settings["lang"])
	}
}

func TestDispatchUnknownMethodReportsError(t *testing.T) {
	svc, _ := newTestService(t)
	resp := svc.call(context.Background(), "sender", "bogusMethod", nil)
	if resp.ReturnValue {
		t.Error("expected ReturnValue false for an unknown method")
	}
	if resp.ErrorText == "" {
		t.Error("expected a non-empty ErrorText for an unknown method")
	}
}

func TestSetDescNotifiesDescSubscriber(t *testing.T) {
	svc, fb := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "lang", Category: "locale", VType: "String", DBType: define.DBTypeGlobal,
	})

	ctx := context.Background()
	getResp := svc.call(ctx, "subscriber", "getSystemSettingDesc", map[string]any{
		"keys":      []any{"lang"},
		"subscribe": true,
	})
	if !getResp.ReturnValue {
		t.Fatalf("getSystemSettingDesc failed: %+v", getResp)
	}

	setResp := svc.call(ctx, "writer", "setSystemSettingDesc", map[string]any{
		"key": "lang", "category": "locale", "vtype": "String", "dbtype": define.DBTypeGlobal,
	})
	if !setResp.ReturnValue {
		t.Fatalf("setSystemSettingDesc failed: %+v", setResp)
	}

	published := fb.publishedTo("subscriber")
	if len(published) == 0 {
		t.Fatal("expected a desc-change publish to subscriber, got none")
	}
	payload, ok := published[0].(map[string]any)
	if !ok {
		t.Fatalf("publish payload type = %T, want map[string]any", published[0])
	}
	if payload["key"] != "lang" {
		t.Errorf("published key = %v, want lang", payload["key"])
	}
}

func TestUninstallAppPurgesVolatileAndDescriptions(t *testing.T) {
	svc, _ := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "theme", Category: "ui", VType: "String", DBType: define.DBTypeGlobal, AppID: "app1",
	})
	svc.volatile.Set("ui", "app1", "session-key", "value")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(ctx)
	defer svc.engine.Stop()

	if err := svc.UninstallApp(ctx, "app1"); err != nil {
		t.Fatalf("UninstallApp: %v", err)
	}

	if _, ok := svc.model.Describe("theme", "app1"); ok {
		t.Error("expected theme description for app1 to be purged")
	}
	if v, ok := svc.volatile.Get("ui", "app1", "session-key"); ok {
		t.Errorf("expected app1 volatile entries to be purged, found %v", v)
	}
}

func TestSetCurrentAppUpdatesEngine(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(ctx)
	defer svc.engine.Stop()

	if err := svc.SetCurrentApp(ctx, "app7"); err != nil {
		t.Fatalf("SetCurrentApp: %v", err)
	}
	if got := svc.engine.CurrentApp(); got != "app7" {
		t.Errorf("CurrentApp() = %q, want app7", got)
	}
}

func TestChangeCountryPreservesConservativePropertyAndNotifiesSubscriber(t *testing.T) {
	svc, fb := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "localeInfo", Category: "option", VType: "String", DBType: define.DBTypeGlobal,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(ctx)
	defer svc.engine.Stop()

	setResp := svc.call(ctx, "writer", "setSystemSettings", map[string]any{
		"settings": map[string]any{"localeInfo": map[string]any{
			"locales": map[string]any{"UI": "en-US"}, "keyboards": []any{"en"},
		}},
	})
	if !setResp.ReturnValue {
		t.Fatalf("seed setSystemSettings failed: %+v", setResp)
	}

	getResp := svc.call(ctx, "subscriber", "getSystemSettings", map[string]any{
		"keys": []any{"localeInfo"}, "category": "option", "subscribe": true,
	})
	if !getResp.ReturnValue {
		t.Fatalf("subscribe get failed: %+v", getResp)
	}

	if _, err := svc.store.Put(ctx, []store.Record{
		{ID: "def-default", Kind: define.KindDefault, Category: "option", Country: define.CountryDefault,
			Value: map[string]any{"localeInfo": map[string]any{"locales": map[string]any{"UI": "en-US"}}}},
		{ID: "def-fr", Kind: define.KindDefault, Category: "option", Country: "FR",
			Value: map[string]any{"localeInfo": map[string]any{"locales": map[string]any{"UI": "fr-FR"}}}},
	}); err != nil {
		t.Fatalf("seed default variants: %v", err)
	}

	if err := svc.ChangeCountry(ctx, "FR"); err != nil {
		t.Fatalf("ChangeCountry: %v", err)
	}

	published := fb.publishedTo("subscriber")
	if len(published) == 0 {
		t.Fatal("expected a country-change publish to subscriber, got none")
	}
	payload, ok := published[len(published)-1].(map[string]any)
	if !ok {
		t.Fatalf("publish payload type = %T, want map[string]any", published[len(published)-1])
	}
	settings, _ := payload["settings"].(map[string]any)
	locale, _ := settings["localeInfo"].(map[string]any)
	locales, _ := locale["locales"].(map[string]any)
	if locales["UI"] != "en-US" {
		t.Errorf("published localeInfo.locales.UI = %v, want en-US preserved across the FR change", locales["UI"])
	}
}

func TestBatchDispatchesSubOpsAndPreservesOrder(t *testing.T) {
	svc, _ := newTestService(t)
	svc.model.AddKeyDesc(define.DescKindSystem, descmodel.Description{
		Key: "lang", Category: "locale", VType: "String", DBType: define.DBTypeGlobal,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.engine.Start(ctx)
	defer svc.engine.Stop()

	resp := svc.call(ctx, "sender-a", "batch", map[string]any{
		"operations": []any{
			map[string]any{"method": "setSystemSettings", "params": map[string]any{"settings": map[string]any{"lang": "de"}}},
			map[string]any{"method": "getSystemSettings", "params": map[string]any{"keys": []any{"lang"}}},
		},
	})
	if !resp.ReturnValue {
		t.Fatalf("batch failed: %+v", resp)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(resp.Results))
	}
	settings, _ := resp.Results[1]["settings"].(map[string]any)
	if settings["lang"] != "de" {
		t.Errorf("batch second op settings[lang] = %v, want de", settings["lang"])
	}
}
