package notify

import (
	"context"
	"log/slog"

	"settingsvc/internal/bus"
	"settingsvc/internal/taskengine"
)

// DerivedFileWriter reconciles on-disk projections of certain keys
// (locale info, system PIN) after a successful write (spec §4.4.5, §9
// design note). The core treats it as write-only: it is handed the
// post-change values for categories it declared interest in and is never
// consulted for reads.
type DerivedFileWriter interface {
	CategoriesOfInterest() map[string]bool
	Update(ctx context.Context, category string, values map[string]any) error
}

// noopDerivedFileWriter is used when the service is wired without a
// concrete writer (e.g. in tests).
type noopDerivedFileWriter struct{}

func (noopDerivedFileWriter) CategoriesOfInterest() map[string]bool          { return nil }
func (noopDerivedFileWriter) Update(context.Context, string, map[string]any) error { return nil }

// WriteChange describes one committed set/delete/reset for the emission
// protocol (spec §4.4.2).
type WriteChange struct {
	Category    string
	CategoryDim string // category plus dimension suffix actually written, or equal to Category if dimensionless
	Dimension   map[string]string
	AppID       string
	// Values holds the post-write value for every changed key that still
	// has one; a key present here with a nil value signals "removed, no
	// default available" (reported as an per-key errorText).
	Values map[string]any
	// DBTypeOf classifies a key as G/P/M/E for the mixed-type quirk (§4.4.3).
	DBTypeOf func(key string) string
	// IsDimensionKey reports whether key participates in dimension
	// resolution (§4.1.6); such a write triggers the rebuild fan-out.
	IsDimensionKey func(key string) bool
	Sender         string // originating bus sender, for the notifySelf=false echo suppression
	NotifySelf     bool
}

// Emitter drives the write-completion notification protocol: registry
// lookups, payload composition, and dispatch through a bus.Bus. Dimension
// rebuild fan-out is dispatched through the task engine's internal
// request-get-system-settings method (§4.3.4) so refreshed values are
// read back under the writer-quiesce discipline rather than racing the
// write that triggered them.
type Emitter struct {
	reg     *Registry
	bus     bus.Bus
	engine  *taskengine.Engine
	fetch   taskengine.SettingsFetcher
	derived DerivedFileWriter
	log     *slog.Logger
}

// NewEmitter wires a Registry to a bus, task engine, settings fetcher
// (normally resolver.Get), and derived-file writer. derived may be nil,
// in which case writes simply skip the file-projection hook.
func NewEmitter(reg *Registry, b bus.Bus, engine *taskengine.Engine, fetch taskengine.SettingsFetcher, derived DerivedFileWriter, log *slog.Logger) *Emitter {
	if derived == nil {
		derived = noopDerivedFileWriter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{reg: reg, bus: b, engine: engine, fetch: fetch, derived: derived, log: log}
}

// PostWrite runs the full §4.4.2 emission protocol for one committed
// change: per-subscriber postPrefChange payloads, the mixed-type dual-
// bucket quirk, dimension rebuild fan-out, and the derived-file hook.
func (e *Emitter) PostWrite(ctx context.Context, ch WriteChange) {
	if len(ch.Values) > 0 && e.derived.CategoriesOfInterest()[ch.Category] {
		if err := e.derived.Update(ctx, ch.Category, ch.Values); err != nil {
			e.log.Error("notify: derived file update failed", "category", ch.Category, "error", err)
		}
	}

	var dimensionKeys []string
	for key, val := range ch.Values {
		e.postPrefChange(ctx, ch, key, val)
		if ch.IsDimensionKey != nil && ch.IsDimensionKey(key) {
			dimensionKeys = append(dimensionKeys, key)
		}
	}

	if len(dimensionKeys) > 0 {
		e.rebuildFanOut(ctx, ch)
	}
}

// postPrefChange composes and publishes one key's payload to every
// matching subscriber bucket, including the mixed-type dual-bucket quirk
// (§4.4.3): an M key with no appId (a global-scoped write, e.g.
// resetSystemSettings without app_id) posts the same val to both the
// per-app bucket it would otherwise strand and the global bucket; no
// per-app value is stripped here.
func (e *Emitter) postPrefChange(ctx context.Context, ch WriteChange, key string, val any) {
	e.publishTo(ctx, ch, e.reg.ValueSubscribers(key, ch.AppID, ch.CategoryDim), key, val, ch.AppID)

	dbType := "G"
	if ch.DBTypeOf != nil {
		dbType = ch.DBTypeOf(key)
	}
	if dbType == "M" && ch.AppID == "" {
		// A global reset of a mixed key must still reach subscribers parked
		// under a specific app_id, or they are stranded until their own next
		// write. val is the global-scoped write's own value, so this
		// message carries the global value only.
		e.publishTo(ctx, ch, e.reg.perAppSubscribers(key, ch.CategoryDim), key, val, ch.AppID)
	}
}

func (e *Emitter) publishTo(ctx context.Context, ch WriteChange, subs []*Subscription, key string, val any, appID string) {
	for _, sub := range subs {
		if !ch.NotifySelf && sub.Sender == ch.Sender {
			continue
		}
		payload := map[string]any{
			"returnValue": val != nil,
			"category":    ch.Category,
			"app_id":      appID,
			"settings":    map[string]any{key: val},
		}
		if len(ch.Dimension) > 0 {
			payload["dimension"] = ch.Dimension
		}
		if val == nil {
			payload["errorText"] = "no default value for removed key"
		}
		if err := e.bus.Publish(ctx, sub.Sender, payload); err != nil {
			e.log.Warn("notify: publish failed, dropping stranded subscriber", "sender", sub.Sender, "error", err)
		}
	}
}

// rebuildFanOut re-fetches values for every dimension-dependent
// subscriber of ch.CategoryDim after a dimension-key write, per §4.4.2
// step 3.
func (e *Emitter) rebuildFanOut(ctx context.Context, ch WriteChange) {
	subs := e.reg.DimensionDependent(ch.CategoryDim)
	if len(subs) == 0 || e.engine == nil || e.fetch == nil {
		return
	}

	tuples := make([]taskengine.SettingsTuple, 0, len(subs))
	bySender := make(map[string]*Subscription, len(subs))
	for _, sub := range subs {
		tuples = append(tuples, taskengine.SettingsTuple{Category: sub.CategoryDim, AppID: sub.AppID, Keys: []string{sub.Key}, Sender: sub.Sender})
		bySender[sub.Sender+"|"+sub.Key] = sub
	}

	err := e.engine.RequestGetSystemSettings(ctx, tuples, e.fetch, func(tuple taskengine.SettingsTuple, settings map[string]any, ferr error) {
		if ferr != nil {
			e.log.Error("notify: rebuild fan-out fetch failed", "category", tuple.Category, "error", ferr)
			return
		}
		sub := bySender[tuple.Sender+"|"+tuple.Keys[0]]
		if sub == nil {
			return
		}
		payload := map[string]any{
			"returnValue": true,
			"category":    ch.Category,
			"dimension":   ch.Dimension,
			"app_id":      sub.AppID,
			"settings":    settings,
		}
		if err := e.bus.Publish(ctx, sub.Sender, payload); err != nil {
			e.log.Warn("notify: rebuild publish failed", "sender", sub.Sender, "error", err)
		}
	})
	if err != nil {
		e.log.Error("notify: rebuild fan-out dispatch failed", "error", err)
	}
}

// PostDescChange publishes a description-change payload to DESC
// subscribers of key/appId (spec §4.4.4). merged is the fully composed
// description (all layers applied at send time).
func (e *Emitter) PostDescChange(ctx context.Context, key, appID string, merged any) {
	for _, sub := range e.reg.DescSubscribers(key, appID) {
		payload := map[string]any{
			"returnValue": true,
			"key":         key,
			"app_id":      appID,
			"desc":        merged,
		}
		if err := e.bus.Publish(ctx, sub.Sender, payload); err != nil {
			e.log.Warn("notify: desc publish failed", "sender", sub.Sender, "error", err)
		}
	}
}
