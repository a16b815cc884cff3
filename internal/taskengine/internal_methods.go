package taskengine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// SettingsTuple names one (category, appId, keys) fetch performed on
// behalf of the notification path's internal "request-get-system-
// settings" pseudo-method (spec §4.3.4).
type SettingsTuple struct {
	Category string
	AppID    string
	Keys     []string
	Sender   string // opaque caller-supplied id, round-tripped to the callback unused by the fetch itself
}

// SettingsFetcher resolves one tuple to its merged settings map; the
// service wires this to resolver.Get.
type SettingsFetcher func(ctx context.Context, category, appID string, keys []string) (map[string]any, error)

// RequestGetSystemSettings dispatches the internal pseudo-method used by
// the notification engine (§4.3.4, §4.4.2 step 3) to re-fetch values
// under a new dimension coordinate. It runs as a non-mutating task so it
// can proceed alongside other reads, and invokes callback once per tuple
// as each fetch completes.
func (e *Engine) RequestGetSystemSettings(ctx context.Context, tuples []SettingsTuple, fetch SettingsFetcher, callback func(SettingsTuple, map[string]any, error)) error {
	_, err := e.Submit(false, "", func(taskCtx context.Context, t *Task) error {
		var wg sync.WaitGroup
		for _, tuple := range tuples {
			tuple := tuple
			wg.Add(1)
			t.Hold()
			go func() {
				defer wg.Done()
				defer t.Release()
				settings, ferr := fetch(taskCtx, tuple.Category, tuple.AppID, tuple.Keys)
				callback(tuple, settings, ferr)
			}()
		}
		wg.Wait()
		return nil
	})
	return err
}

// SetCurrentApp updates the engine's "current app" pointer (spec §4.3.4).
// This mutates shared state the resolver consults for appId defaulting,
// so it runs as a mutating task and serializes against concurrent reads
// and writes. It blocks the caller (normally the embedding host process,
// not a bus sender) until the pointer has actually been updated.
func (e *Engine) SetCurrentApp(ctx context.Context, appID string) error {
	done := make(chan struct{})
	_, err := e.Submit(true, "current-app-change", func(_ context.Context, _ *Task) error {
		e.mu.Lock()
		e.currentApp = appID
		e.mu.Unlock()
		close(done)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CurrentApp returns the engine's last-set current-app pointer.
func (e *Engine) CurrentApp() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentApp
}

// PurgeFunc removes an uninstalled app's per-app settings and
// descriptions; the service wires this to volatile.PurgeApp plus the
// descmodel's per-app description removal.
type PurgeFunc func(ctx context.Context, appID string) error

// UninstallApp dispatches the app-uninstall internal method (§4.3.4): it
// runs as a mutating task so the purge is serialized against concurrent
// reads of the same app's settings, and blocks the caller until purge has
// run to completion (or failed).
func (e *Engine) UninstallApp(ctx context.Context, appID string, purge PurgeFunc) error {
	done := make(chan error, 1)
	_, err := e.Submit(true, fmt.Sprintf("app-uninstall:%s", appID), func(taskCtx context.Context, _ *Task) error {
		done <- purge(taskCtx, appID)
		return nil
	})
	if err != nil {
		return err
	}
	select {
	case perr := <-done:
		return perr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CountryChangeFunc performs the actual country-variant resolution and
// write-back (resolver.ChangeCountry); the service wires this directly.
type CountryChangeFunc func(ctx context.Context, code string) (any, error)

// ChangeCountry dedupes concurrent triggers of the country-change internal
// method for the same country code through RebuildGroup (spec §4.1.2
// "Country change triggers", §4.3.6): a country key write and a
// supervisory re-sync racing each other collapse into whichever one
// RebuildGroup admits first, and every caller observes its result. The
// admitted call runs change as a mutating task (key "", never replaced in
// flight) so it still serializes against concurrent reads/writes; it
// blocks every deduped caller until that task has completed.
func (e *Engine) ChangeCountry(ctx context.Context, code string, change CountryChangeFunc) (any, error) {
	val, err, _ := e.Rebuild.Rebuild(code, func() (any, error) {
		type outcome struct {
			val any
			err error
		}
		done := make(chan outcome, 1)
		_, submitErr := e.Submit(true, "", func(taskCtx context.Context, _ *Task) error {
			v, rerr := change(taskCtx, code)
			done <- outcome{val: v, err: rerr}
			return rerr
		})
		if submitErr != nil {
			return nil, submitErr
		}
		select {
		case o := <-done:
			return o.val, o.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	return val, err
}

// RebuildGroup deduplicates concurrent triggers of the description-cache
// rebuild that follows a country change (spec §4.1.2, §4.3.6): a country
// key write and a supervisory re-sync racing each other collapse into one
// rebuild, and every caller observes the resulting generation.
type RebuildGroup struct {
	g singleflight.Group
}

// Rebuild runs fn at most once per concurrent burst of calls sharing key,
// matching golang.org/x/sync/singleflight's do-once-per-key semantics.
func (r *RebuildGroup) Rebuild(key string, fn func() (any, error)) (any, error, bool) {
	return r.g.Do(key, fn)
}
